// Package enricher gathers external context for in-domain messages: product
// pages linked in the message, a storefront search, and static facts.
//
// Enrich fails open. Any fetch or parse failure degrades the returned
// context; nothing is returned to the caller as an error.
package enricher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"shopbot/internal/config"
	"shopbot/internal/domain"
	"shopbot/internal/metrics"
)

const (
	defaultTimeout        = 8 * time.Second
	defaultMaxURLs        = 5
	defaultMaxConcurrency = 4
	defaultFetchError     = "Could not fetch product details."
	defaultSearchError    = "Search failed."
)

type Config struct {
	AllowedHosts   []string
	MaxURLs        int
	Timeout        time.Duration // shared budget for every fetch of one call
	MaxConcurrency int
	Product        config.ProductSelectors
	Search         config.SearchConfig
	Facts          []config.FactTopic
	FetchError     string // error marker put on a failed product snippet
	SearchError    string
	Fetcher        Fetcher
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

type Enricher struct {
	allowed        []string
	maxURLs        int
	timeout        time.Duration
	maxConcurrency int

	title, price, availability []extractor

	search      config.SearchConfig
	searchBase  *url.URL
	searchItem  *Selector
	searchName  []extractor
	searchPrice []extractor
	searchLink  []extractor
	facts       []config.FactTopic
	fetchError  string
	searchError string
	fetcher     Fetcher
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// New compiles the selector strategies. A bad selector is a config error.
func New(cfg Config) (*Enricher, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("enricher: fetcher is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxURLs <= 0 {
		cfg.MaxURLs = defaultMaxURLs
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.FetchError == "" {
		cfg.FetchError = defaultFetchError
	}
	if cfg.SearchError == "" {
		cfg.SearchError = defaultSearchError
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Search.MaxResults <= 0 {
		cfg.Search.MaxResults = 3
	}
	if cfg.Search.QueryParam == "" {
		cfg.Search.QueryParam = "q"
	}

	e := &Enricher{
		allowed:        cfg.AllowedHosts,
		maxURLs:        cfg.MaxURLs,
		timeout:        cfg.Timeout,
		maxConcurrency: cfg.MaxConcurrency,
		search:         cfg.Search,
		facts:          cfg.Facts,
		fetchError:     cfg.FetchError,
		searchError:    cfg.SearchError,
		fetcher:        cfg.Fetcher,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
	}

	var err error
	if e.title, err = compileStrategies("product.title", cfg.Product.Title); err != nil {
		return nil, err
	}
	if e.price, err = compileStrategies("product.price", cfg.Product.Price); err != nil {
		return nil, err
	}
	if e.availability, err = compileStrategies("product.availability", cfg.Product.Availability); err != nil {
		return nil, err
	}

	if cfg.Search.Enabled {
		if e.searchBase, err = url.Parse(cfg.Search.BaseURL); err != nil || e.searchBase.Host == "" {
			return nil, fmt.Errorf("search.baseUrl %q is not an absolute URL", cfg.Search.BaseURL)
		}
		if e.searchItem, err = Compile(cfg.Search.Item); err != nil {
			return nil, fmt.Errorf("search.item: %w", err)
		}
		if e.searchName, err = compileStrategies("search.name", cfg.Search.Name); err != nil {
			return nil, err
		}
		if e.searchPrice, err = compileStrategies("search.price", cfg.Search.Price); err != nil {
			return nil, err
		}
		if e.searchLink, err = compileStrategies("search.link", cfg.Search.Link); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Enrich builds the context for text. Product pages for allow-listed links
// are fetched concurrently; when there are none and the classifier saw
// product intent, one storefront search runs instead. Snippets keep the
// order of the links in text regardless of completion order.
func (e *Enricher) Enrich(ctx context.Context, text string, cls domain.Classification) (out domain.EnrichmentContext) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("enricher panic recovered", "panic", r)
			out = domain.EnrichmentContext{}
		}
	}()

	out.StaticFacts = e.matchFacts(text)

	urls := allowedURLs(text, e.allowed, e.maxURLs)
	runSearch := len(urls) == 0 && cls.ProductIntent && e.search.Enabled
	if len(urls) == 0 && !runSearch {
		return out
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	products := make([]domain.ProductSnippet, len(urls))
	var g errgroup.Group
	g.SetLimit(e.maxConcurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			products[i] = e.fetchProduct(ctx, u)
			return nil
		})
	}

	var sr searchOutcome
	if runSearch {
		g.Go(func() error {
			sr = e.runSearch(ctx, text)
			return nil
		})
	}
	_ = g.Wait()

	if len(products) > 0 {
		out.ScrapedProducts = products
	}
	if runSearch {
		out.SearchURL = sr.url
		out.SearchResults = sr.results
		out.SearchError = sr.err
	}
	return out
}

func (e *Enricher) fetchProduct(ctx context.Context, rawURL string) (snip domain.ProductSnippet) {
	snip.SourceURL = rawURL
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("product scrape panic recovered", "url", rawURL, "panic", r)
			snip = domain.ProductSnippet{SourceURL: rawURL, Error: e.fetchError}
		}
	}()

	doc, err := e.fetchDocument(ctx, rawURL)
	e.metrics.Fetch("product", err)
	if err != nil {
		e.logger.Warn("product fetch failed", "url", rawURL, "err", err)
		return domain.ProductSnippet{SourceURL: rawURL, Error: e.fetchError}
	}

	snip.Title = extract(doc, e.title)
	snip.Price = extract(doc, e.price)
	snip.Availability = extract(doc, e.availability)
	e.logger.Debug("product scraped", "url", rawURL,
		"title", snip.Title != "", "price", snip.Price != "", "availability", snip.Availability != "")
	return snip
}

type searchOutcome struct {
	url     string
	results []domain.ProductSnippet
	err     string
}

func (e *Enricher) runSearch(ctx context.Context, query string) (out searchOutcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("search panic recovered", "panic", r)
			out = searchOutcome{url: out.url, err: e.searchError}
		}
	}()

	out.url = e.searchURL(strings.TrimSpace(query))
	doc, err := e.fetchDocument(ctx, out.url)
	e.metrics.Fetch("search", err)
	if err != nil {
		e.logger.Warn("search fetch failed", "url", out.url, "err", err)
		out.err = e.searchError
		return out
	}

	out.results = []domain.ProductSnippet{}
	items := e.searchItem.All(doc)
	if len(items) > e.search.MaxResults {
		items = items[:e.search.MaxResults]
	}
	for _, item := range items {
		name := extract(item, e.searchName)
		link := extract(item, e.searchLink)
		if name == "" || link == "" {
			continue
		}
		out.results = append(out.results, domain.ProductSnippet{
			SourceURL: e.absolute(link),
			Title:     name,
			Price:     extract(item, e.searchPrice),
		})
	}
	e.logger.Debug("search parsed", "url", out.url, "items", len(items), "results", len(out.results))
	return out
}

func (e *Enricher) searchURL(query string) string {
	u := *e.searchBase
	if e.search.Path != "" {
		if ref, err := url.Parse(e.search.Path); err == nil {
			u = *e.searchBase.ResolveReference(ref)
		}
	}
	q := u.Query()
	q.Set(e.search.QueryParam, query)
	u.RawQuery = q.Encode()
	return u.String()
}

// absolute resolves a result link against the search origin.
func (e *Enricher) absolute(link string) string {
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return e.searchBase.ResolveReference(ref).String()
}

func (e *Enricher) fetchDocument(ctx context.Context, rawURL string) (*html.Node, error) {
	body, err := e.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	return doc, nil
}

func (e *Enricher) matchFacts(text string) []domain.Fact {
	lower := strings.ToLower(text)
	var out []domain.Fact
	for _, f := range e.facts {
		for _, kw := range f.Keywords {
			kw = strings.ToLower(kw)
			if kw != "" && strings.Contains(lower, kw) {
				out = append(out, domain.Fact{Topic: f.Topic, Text: f.Text})
				break
			}
		}
	}
	return out
}

package enricher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"shopbot/internal/config"
	"shopbot/internal/domain"
	"shopbot/internal/metrics"
)

const searchPage = `<html><body>
<article class="prd"><a class="core" href="/tecno-spark-20.html"><h3 class="name">Tecno Spark 20</h3><div class="prc">₦ 125,000</div></a></article>
<article class="prd"><a class="core" href="https://www.jumia.com.ng/itel-a70.html"><h3 class="name">Itel A70</h3><div class="prc">₦ 80,000</div></a></article>
<article class="prd"><a class="core" href="/no-name.html"><div class="prc">₦ 1</div></a></article>
<article class="prd"><a class="core" href="/fourth.html"><h3 class="name">Fourth</h3></a></article>
</body></html>`

func newTestEnricher(t *testing.T, f Fetcher, mut func(*Config)) *Enricher {
	t.Helper()
	d := config.Defaults()
	cfg := Config{
		AllowedHosts:   []string{"127.0.0.1", "jumia.com.ng"},
		MaxURLs:        5,
		Timeout:        2 * time.Second,
		MaxConcurrency: 4,
		Product:        d.Enricher.Product,
		Search:         d.Enricher.Search,
		Facts:          d.Rules.Facts,
		Fetcher:        f,
	}
	if mut != nil {
		mut(&cfg)
	}
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

// stubFetcher serves canned pages by URL and records requests.
type stubFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	delay map[string]time.Duration
	calls []string
}

func (s *stubFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, rawURL)
	d := s.delay[rawURL]
	s.mu.Unlock()
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	for prefix, page := range s.pages {
		if strings.HasPrefix(rawURL, prefix) {
			return []byte(page), nil
		}
	}
	return nil, fmt.Errorf("no page for %s", rawURL)
}

// hangingFetcher never answers before the context expires.
type hangingFetcher struct{}

func (hangingFetcher) Fetch(ctx context.Context, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEnrich_ScrapesProductOverHTTP(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		fmt.Fprint(w, productPage)
	}))
	defer srv.Close()

	e := newTestEnricher(t, NewHTTPFetcher(HTTPFetcherConfig{Client: srv.Client()}), nil)
	out := e.Enrich(context.Background(), "how much is "+srv.URL+"/p.html ?", domain.Classification{InDomain: true})

	if len(out.ScrapedProducts) != 1 {
		t.Fatalf("expected 1 snippet, got %+v", out.ScrapedProducts)
	}
	p := out.ScrapedProducts[0]
	if p.SourceURL != srv.URL+"/p.html" || p.Title != "Tecno Spark 20 128GB" || p.Price != "₦ 125,000" || p.Availability != "In stock" || p.Error != "" {
		t.Errorf("unexpected snippet: %+v", p)
	}
	if hits.Load() != 1 {
		t.Errorf("expected exactly 1 request, got %d", hits.Load())
	}
	if out.SearchURL != "" {
		t.Errorf("search must not run when a URL is present")
	}
}

func TestEnrich_HTTPErrorYieldsMarker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	e := newTestEnricher(t, NewHTTPFetcher(HTTPFetcherConfig{Client: srv.Client()}), func(c *Config) { c.Metrics = m })
	out := e.Enrich(context.Background(), srv.URL+"/p", domain.Classification{})

	marker := domain.ProductSnippet{SourceURL: srv.URL + "/p", Error: "Could not fetch product details."}
	if len(out.ScrapedProducts) != 1 || out.ScrapedProducts[0] != marker {
		t.Fatalf("got %+v", out.ScrapedProducts)
	}
	if hits.Load() != 1 {
		t.Errorf("fetch retried: %d requests", hits.Load())
	}
	want := `
# HELP shopbot_enrich_fetches_total Enrichment fetches by kind and result
# TYPE shopbot_enrich_fetches_total counter
shopbot_enrich_fetches_total{kind="product",result="error"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "shopbot_enrich_fetches_total"); err != nil {
		t.Error(err)
	}
}

func TestEnrich_TimeoutYieldsMarker(t *testing.T) {
	e := newTestEnricher(t, hangingFetcher{}, func(c *Config) { c.Timeout = 50 * time.Millisecond })

	start := time.Now()
	out := e.Enrich(context.Background(), "https://www.jumia.com.ng/a.html", domain.Classification{})
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not enforced: %v", time.Since(start))
	}
	if len(out.ScrapedProducts) != 1 || out.ScrapedProducts[0].Error == "" {
		t.Fatalf("expected error snippet, got %+v", out.ScrapedProducts)
	}
}

func TestEnrich_PreservesURLOrder(t *testing.T) {
	f := &stubFetcher{
		pages: map[string]string{
			"https://jumia.com.ng/": `<html><head><title>t</title></head><body><h1>page</h1></body></html>`,
		},
		delay: map[string]time.Duration{
			"https://jumia.com.ng/1": 60 * time.Millisecond,
			"https://jumia.com.ng/2": 30 * time.Millisecond,
		},
	}
	e := newTestEnricher(t, f, nil)
	out := e.Enrich(context.Background(),
		"https://jumia.com.ng/1 https://jumia.com.ng/2 https://jumia.com.ng/3", domain.Classification{})

	if len(out.ScrapedProducts) != 3 {
		t.Fatalf("got %d snippets", len(out.ScrapedProducts))
	}
	for i, p := range out.ScrapedProducts {
		if want := fmt.Sprintf("https://jumia.com.ng/%d", i+1); p.SourceURL != want {
			t.Errorf("slot %d = %s, want %s", i, p.SourceURL, want)
		}
	}
}

func TestEnrich_Search(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/catalog/" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("q")
		fmt.Fprint(w, searchPage)
	}))
	defer srv.Close()

	e := newTestEnricher(t, NewHTTPFetcher(HTTPFetcherConfig{Client: srv.Client()}), func(c *Config) {
		c.Search.BaseURL = srv.URL
	})
	text := "what is the price of a phone"
	out := e.Enrich(context.Background(), text, domain.Classification{InDomain: true, ProductIntent: true})

	if gotQuery != text {
		t.Errorf("query = %q", gotQuery)
	}
	if out.SearchError != "" {
		t.Fatalf("unexpected search error %q", out.SearchError)
	}
	if !strings.HasPrefix(out.SearchURL, srv.URL+"/catalog/?q=") {
		t.Errorf("search url = %s", out.SearchURL)
	}
	// first three entries, the nameless one skipped
	if len(out.SearchResults) != 2 {
		t.Fatalf("expected 2 results, got %+v", out.SearchResults)
	}
	first := out.SearchResults[0]
	if first.Title != "Tecno Spark 20" || first.Price != "₦ 125,000" || first.SourceURL != srv.URL+"/tecno-spark-20.html" {
		t.Errorf("first = %+v", first)
	}
	if out.SearchResults[1].SourceURL != "https://www.jumia.com.ng/itel-a70.html" {
		t.Errorf("absolute link rewritten: %+v", out.SearchResults[1])
	}
}

func TestEnrich_SearchFailure(t *testing.T) {
	f := &stubFetcher{}
	e := newTestEnricher(t, f, nil)
	out := e.Enrich(context.Background(), "cheapest laptop", domain.Classification{ProductIntent: true})
	if out.SearchError != "Search failed." || out.SearchResults != nil {
		t.Errorf("got %+v", out)
	}
	if len(f.calls) != 1 {
		t.Errorf("expected one attempt, got %v", f.calls)
	}
}

func TestEnrich_NoSearchWithoutIntent(t *testing.T) {
	f := &stubFetcher{}
	e := newTestEnricher(t, f, nil)
	out := e.Enrich(context.Background(), "where is my order", domain.Classification{InDomain: true})
	if len(f.calls) != 0 || out.SearchURL != "" {
		t.Errorf("unexpected fetches %v", f.calls)
	}
}

func TestEnrich_Facts(t *testing.T) {
	e := newTestEnricher(t, &stubFetcher{}, nil)
	out := e.Enrich(context.Background(), "How long does DELIVERY take and can I return it?", domain.Classification{InDomain: true})
	var topics []string
	for _, f := range out.StaticFacts {
		topics = append(topics, f.Topic)
	}
	if strings.Join(topics, ",") != "delivery,returns" {
		t.Errorf("topics = %v", topics)
	}
}

func TestNew_BadSelector(t *testing.T) {
	d := config.Defaults()
	d.Enricher.Product.Title = []config.Strategy{{Selector: "div >"}}
	_, err := New(Config{Fetcher: &stubFetcher{}, Product: d.Enricher.Product})
	if err == nil || !strings.Contains(err.Error(), "product.title") {
		t.Fatalf("expected product.title error, got %v", err)
	}
}

package enricher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/chromedp/chromedp"
)

// Fetcher retrieves the HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// HTTPFetcher does a single GET per call. It never retries.
type HTTPFetcher struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
}

type HTTPFetcherConfig struct {
	Client       *http.Client
	UserAgent    string
	MaxBodyBytes int64
}

func NewHTTPFetcher(cfg HTTPFetcherConfig) *HTTPFetcher {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 2 * 1024 * 1024
	}
	return &HTTPFetcher{client: cfg.Client, userAgent: cfg.UserAgent, maxBodyBytes: cfg.MaxBodyBytes}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch %s: HTTP %d: %s", rawURL, resp.StatusCode, bytes.ToValidUTF8(snippet, nil))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// BrowserFetcher renders the page in headless Chrome, for storefronts that
// build their markup client-side.
type BrowserFetcher struct {
	userAgent    string
	maxBodyBytes int
	logger       *slog.Logger
}

type BrowserFetcherConfig struct {
	UserAgent    string
	MaxBodyBytes int
	Logger       *slog.Logger
}

func NewBrowserFetcher(cfg BrowserFetcherConfig) *BrowserFetcher {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 2 * 1024 * 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &BrowserFetcher{userAgent: cfg.UserAgent, maxBodyBytes: cfg.MaxBodyBytes, logger: cfg.Logger}
}

func (b *BrowserFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Headless,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if b.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.userAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var page string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &page, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("browser fetch %s: %w", rawURL, err)
	}
	if len(page) > b.maxBodyBytes {
		b.logger.Debug("browser page truncated", "url", rawURL, "bytes", len(page))
		page = page[:b.maxBodyBytes]
	}
	return []byte(page), nil
}

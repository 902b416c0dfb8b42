package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"shopbot/internal/channel"
	"shopbot/internal/classifier"
	"shopbot/internal/config"
	"shopbot/internal/dedup"
	"shopbot/internal/enricher"
	"shopbot/internal/metrics"
	"shopbot/internal/netutil"
	"shopbot/internal/pipeline"
	"shopbot/internal/provider"
	"shopbot/internal/responder"
)

// app holds the components serve wires together.
type app struct {
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	telegram *channel.Telegram
	provider *provider.OpenAI
	dedup    dedup.Store
	pipeline *pipeline.Pipeline
}

func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	enr, err := newEnricher(cfg, m, logger)
	if err != nil {
		return nil, err
	}

	prov := newProvider(cfg, logger)
	resp, err := responder.New(responder.Config{
		Provider:     prov,
		Model:        cfg.Completion.Model,
		MaxTokens:    cfg.Completion.MaxTokens,
		Temperature:  cfg.Completion.Temperature,
		SystemPrompt: cfg.Replies.SystemPrompt,
		Fallback:     cfg.Replies.Fallback,
		Profanity:    cfg.Rules.Profanity,
		Markup:       cfg.Telegram.ParseMode != "",
		Metrics:      m,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("responder: %w", err)
	}

	store, err := dedup.New(cfg.Dedup, logger)
	if err != nil {
		return nil, fmt.Errorf("dedup: %w", err)
	}

	tg := newTelegram(cfg, logger)

	var limiter *pipeline.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = pipeline.NewRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.PerMinute, cfg.RateLimitMaxWait())
	}

	p := pipeline.New(pipeline.Config{
		Classifier: newClassifier(cfg),
		Enricher:   enr,
		Responder:  resp,
		Sender:     tg,
		Replies:    cfg.Replies,
		Limiter:    limiter,
		Timeout:    cfg.HandlerTimeout(),
		Metrics:    m,
		Logger:     logger,
	})

	return &app{
		registry: reg,
		metrics:  m,
		telegram: tg,
		provider: prov,
		dedup:    store,
		pipeline: p,
	}, nil
}

func (a *app) Close() {
	if a.dedup != nil {
		if err := a.dedup.Close(); err != nil {
			logger.Warn("dedup close failed", "err", err)
		}
	}
}

func newClassifier(cfg *config.Config) *classifier.Classifier {
	return classifier.New(cfg.Rules)
}

func newFetcher(cfg *config.Config, logger *slog.Logger) enricher.Fetcher {
	if cfg.Enricher.FetchMode == "browser" {
		return enricher.NewBrowserFetcher(enricher.BrowserFetcherConfig{
			UserAgent:    cfg.Enricher.UserAgent,
			MaxBodyBytes: int(cfg.Enricher.MaxBodyBytes),
			Logger:       logger,
		})
	}
	return enricher.NewHTTPFetcher(enricher.HTTPFetcherConfig{
		Client: netutil.NewClient(netutil.ClientOptions{
			Timeout:         cfg.EnrichTimeout(),
			MaxConnsPerHost: cfg.Enricher.MaxConcurrency,
			UserAgent:       cfg.Enricher.UserAgent,
		}),
		UserAgent:    cfg.Enricher.UserAgent,
		MaxBodyBytes: cfg.Enricher.MaxBodyBytes,
	})
}

func newEnricher(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*enricher.Enricher, error) {
	enr, err := enricher.New(enricher.Config{
		AllowedHosts:   cfg.Enricher.AllowedHosts,
		MaxURLs:        cfg.Enricher.MaxURLs,
		Timeout:        cfg.EnrichTimeout(),
		MaxConcurrency: cfg.Enricher.MaxConcurrency,
		Product:        cfg.Enricher.Product,
		Search:         cfg.Enricher.Search,
		Facts:          cfg.Rules.Facts,
		FetchError:     cfg.Replies.FetchError,
		SearchError:    cfg.Replies.SearchError,
		Fetcher:        newFetcher(cfg, logger),
		Metrics:        m,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("enricher: %w", err)
	}
	return enr, nil
}

func newProvider(cfg *config.Config, logger *slog.Logger) *provider.OpenAI {
	return provider.NewOpenAI(provider.OpenAIConfig{
		APIKey:  cfg.Completion.APIKey,
		APIBase: cfg.Completion.APIBase,
		Model:   cfg.Completion.Model,
		Timeout: cfg.CompletionTimeout(),
		Logger:  logger,
	})
}

func newTelegram(cfg *config.Config, logger *slog.Logger) *channel.Telegram {
	return channel.NewTelegram(channel.TelegramConfig{
		Token:       cfg.Telegram.Token,
		APIEndpoint: cfg.Telegram.APIEndpoint,
		ParseMode:   cfg.Telegram.ParseMode,
		SendTyping:  cfg.Telegram.SendTyping,
		Logger:      logger,
	})
}

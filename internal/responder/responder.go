// Package responder turns a message and its enrichment context into the
// final reply through one chat completion.
package responder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"shopbot/internal/config"
	"shopbot/internal/domain"
	"shopbot/internal/metrics"
)

const (
	productsHeader = "Scraped Jumia product info (use if helpful):"
	searchHeader   = "Jumia search results (use if helpful):"
	factsHeader    = "Jumia help facts (use if relevant):"
)

type Config struct {
	Provider     domain.Provider
	Model        string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
	Fallback     string
	Profanity    []config.Substitution
	Markup       bool // reply is sent with the configured parse mode
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

type Responder struct {
	provider     domain.Provider
	model        string
	maxTokens    int
	temperature  float64
	systemPrompt string
	fallback     string
	format       domain.ReplyFormat
	filter       *Substituter
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func New(cfg Config) (*Responder, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("responder: provider is required")
	}
	if cfg.Fallback == "" {
		cfg.Fallback = "Sorry, I couldn't generate a helpful reply."
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	filter, err := NewSubstituter(cfg.Profanity)
	if err != nil {
		return nil, err
	}
	format := domain.FormatPlain
	if cfg.Markup {
		format = domain.FormatMarkup
	}
	return &Responder{
		provider:     cfg.Provider,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		systemPrompt: cfg.SystemPrompt,
		fallback:     cfg.Fallback,
		format:       format,
		filter:       filter,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}, nil
}

// Respond asks the completion API for an answer. A completion error is
// returned as is; an empty answer becomes the fallback reply.
func (r *Responder) Respond(ctx context.Context, text string, cls domain.Classification, ectx domain.EnrichmentContext) (domain.OutboundReply, error) {
	req := domain.ChatRequest{
		Messages:    r.BuildMessages(text, ectx),
		Model:       r.model,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	}

	start := time.Now()
	resp, err := r.provider.Chat(ctx, req)
	r.metrics.Completion(time.Since(start), err)
	if err != nil {
		return domain.OutboundReply{}, fmt.Errorf("completion: %w", err)
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		r.logger.Warn("empty completion, using fallback", "kind", cls.Kind, "finish_reason", resp.FinishReason)
		return domain.OutboundReply{Text: r.fallback, Format: domain.FormatPlain, Kind: domain.ReplyFallback}, nil
	}
	return domain.OutboundReply{
		Text:   r.filter.Apply(content),
		Format: r.format,
		Kind:   domain.ReplyAnswer,
	}, nil
}

// BuildMessages composes the prompt: persona first, then one system block
// per context section, then the user text.
func (r *Responder) BuildMessages(text string, ectx domain.EnrichmentContext) []domain.Message {
	msgs := []domain.Message{{Role: "system", Content: r.systemPrompt}}

	if len(ectx.ScrapedProducts) > 0 {
		msgs = r.appendBlock(msgs, productsHeader, ectx.ScrapedProducts)
	}
	// A search that ran cleanly is shown even with no items, so the model
	// knows nothing matched. A failed search adds no block.
	if ectx.SearchURL != "" && ectx.SearchError == "" {
		items := ectx.SearchResults
		if items == nil {
			items = []domain.ProductSnippet{}
		}
		msgs = r.appendBlock(msgs, searchHeader, struct {
			SearchURL string                  `json:"searchUrl"`
			Items     []domain.ProductSnippet `json:"items"`
		}{ectx.SearchURL, items})
	}
	if len(ectx.StaticFacts) > 0 {
		msgs = r.appendBlock(msgs, factsHeader, ectx.StaticFacts)
	}

	return append(msgs, domain.Message{Role: "user", Content: text})
}

func (r *Responder) appendBlock(msgs []domain.Message, header string, v any) []domain.Message {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		r.logger.Warn("context block dropped", "header", header, "err", err)
		return msgs
	}
	return append(msgs, domain.Message{Role: "system", Content: header + "\n" + string(b)})
}

// Package pipeline runs one inbound message through classification,
// enrichment and response, and sends exactly one reply.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shopbot/internal/config"
	"shopbot/internal/domain"
	"shopbot/internal/metrics"
)

type Classifier interface {
	Classify(text string) domain.Classification
}

type Enricher interface {
	Enrich(ctx context.Context, text string, cls domain.Classification) domain.EnrichmentContext
}

type Responder interface {
	Respond(ctx context.Context, text string, cls domain.Classification, ectx domain.EnrichmentContext) (domain.OutboundReply, error)
}

type Config struct {
	Classifier Classifier
	Enricher   Enricher
	Responder  Responder
	Sender     domain.Sender
	Replies    config.RepliesConfig
	Limiter    *RateLimiter  // optional
	Timeout    time.Duration // per message; 0 means none
	// SendTimeout bounds the reply send. The send is not cut short by
	// Timeout or by cancellation of the caller's context.
	SendTimeout time.Duration
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

type Pipeline struct {
	classifier Classifier
	enricher   Enricher
	responder  Responder
	sender     domain.Sender
	replies    config.RepliesConfig
	limiter    *RateLimiter
	timeout    time.Duration
	sendTO     time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

const defaultSendTimeout = 10 * time.Second

func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	return &Pipeline{
		classifier: cfg.Classifier,
		enricher:   cfg.Enricher,
		responder:  cfg.Responder,
		sender:     cfg.Sender,
		replies:    cfg.Replies,
		limiter:    cfg.Limiter,
		timeout:    cfg.Timeout,
		sendTO:     cfg.SendTimeout,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// Handle produces and sends the reply for msg. A failed send of a normal
// reply is logged and swallowed; only a failed send of the internal-error
// apology is returned, so the webhook can report it.
func (p *Pipeline) Handle(ctx context.Context, msg domain.InboundMessage) (domain.OutboundReply, error) {
	log := LoggerFrom(ctx, p.logger).With("chat_id", msg.ChatID, "update_id", msg.UpdateID)
	workCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		workCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	reply := p.produce(workCtx, log, msg)
	reply.ChatID = msg.ChatID

	sendCtx, cancelSend := context.WithTimeout(context.WithoutCancel(ctx), p.sendTO)
	defer cancelSend()
	err := p.sender.Send(sendCtx, reply)
	p.metrics.Reply(string(reply.Kind), err)
	if err != nil {
		if reply.Kind == domain.ReplyApology {
			return reply, fmt.Errorf("send apology: %w", err)
		}
		log.Error("send reply failed", "kind", reply.Kind, "err", err)
		return reply, nil
	}
	log.Info("reply sent", "kind", reply.Kind, "len", len(reply.Text), "duration_ms", time.Since(start).Milliseconds())
	return reply, nil
}

func (p *Pipeline) produce(ctx context.Context, log *slog.Logger, msg domain.InboundMessage) (reply domain.OutboundReply) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline panic recovered", "panic", r)
			reply = p.canned(p.replies.Apology, domain.ReplyApology)
		}
	}()

	cls := p.classifier.Classify(msg.Text)
	p.metrics.Classification(string(cls.Kind))
	log.Info("message classified",
		"kind", cls.Kind,
		"signal", cls.MatchedSignal,
		"product_intent", cls.ProductIntent,
		"text_len", len(msg.Text),
	)

	switch cls.Kind {
	case domain.ClassGreeting:
		return p.canned(p.replies.Greeting, domain.ReplyGreeting)
	case domain.ClassCommand:
		if cls.MatchedSignal == "help" {
			return p.canned(p.replies.Help, domain.ReplyCommand)
		}
		return p.canned(p.replies.Start, domain.ReplyCommand)
	case domain.ClassNone:
		return p.canned(p.replies.OutOfDomain, domain.ReplyOutOfDomain)
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			p.metrics.RateLimited()
			log.Warn("rate limit wait failed", "err", err)
			return p.canned(p.replies.Apology, domain.ReplyApology)
		}
	}

	ectx := p.enricher.Enrich(ctx, msg.Text, cls)
	log.Debug("message enriched",
		"products", len(ectx.ScrapedProducts),
		"search_results", len(ectx.SearchResults),
		"search_error", ectx.SearchError != "",
		"facts", len(ectx.StaticFacts),
	)

	reply, err := p.responder.Respond(ctx, msg.Text, cls, ectx)
	if err != nil {
		log.Error("respond failed", "err", err)
		return p.canned(p.replies.Apology, domain.ReplyApology)
	}
	return reply
}

func (p *Pipeline) canned(text string, kind domain.ReplyKind) domain.OutboundReply {
	return domain.OutboundReply{Text: text, Format: domain.FormatPlain, Kind: kind}
}

package channel

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"shopbot/internal/dedup"
	"shopbot/internal/domain"
	"shopbot/internal/metrics"
	"shopbot/internal/pipeline"
)

const (
	secretHeader = "X-Telegram-Bot-Api-Secret-Token"
	maxBodyBytes = 1 << 20
	healthText   = "Jumia Telegram Assistant (webhook) OK"
)

// MessageHandler processes one inbound message and sends its reply.
type MessageHandler interface {
	Handle(ctx context.Context, msg domain.InboundMessage) (domain.OutboundReply, error)
}

// TypingNotifier shows a typing indicator before the reply is ready.
type TypingNotifier interface {
	SendTyping(ctx context.Context, chatID string)
}

type WebhookConfig struct {
	Secret  string // empty disables the header check
	Handler MessageHandler
	Dedup   dedup.Store    // optional
	Typing  TypingNotifier // optional
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Webhook receives Telegram updates over HTTP and hands text messages to the
// pipeline synchronously. Telegram redelivers on any non-2xx, so everything
// except a pipeline failure is acknowledged with 200.
type Webhook struct {
	secret  string
	handler MessageHandler
	dedup   dedup.Store
	typing  TypingNotifier
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Webhook{
		secret:  cfg.Secret,
		handler: cfg.Handler,
		dedup:   cfg.Dedup,
		typing:  cfg.Typing,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

func (w *Webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(rw, healthText)
		return
	case http.MethodPost:
	default:
		rw.Header().Set("Allow", http.MethodPost)
		http.Error(rw, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := uuid.NewString()
	log := w.logger.With("request_id", requestID)

	if w.secret != "" {
		got := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(w.secret)) != 1 {
			log.Warn("invalid webhook secret token", "remote", r.RemoteAddr)
			w.metrics.Update("unauthorized")
			http.Error(rw, "Invalid webhook secret token", http.StatusUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	defer r.Body.Close()
	if err != nil {
		log.Warn("read webhook body failed", "err", err)
		w.ack(rw, "malformed")
		return
	}

	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		log.Warn("malformed update", "err", err, "bytes", len(body))
		w.ack(rw, "malformed")
		return
	}

	msg, ok := inboundFrom(update)
	if !ok {
		log.Debug("update without text ignored", "update_id", update.UpdateID)
		w.ack(rw, "ignored")
		return
	}

	if w.dedup != nil {
		dup, err := w.dedup.Seen(r.Context(), strconv.Itoa(update.UpdateID))
		if err != nil {
			log.Warn("dedup check failed, processing anyway", "update_id", update.UpdateID, "err", err)
		} else if dup {
			log.Info("duplicate update ignored", "update_id", update.UpdateID)
			w.ack(rw, "duplicate")
			return
		}
	}

	ctx := pipeline.WithLogger(r.Context(), log)
	if w.typing != nil {
		w.typing.SendTyping(ctx, msg.ChatID)
	}

	if _, err := w.handler.Handle(ctx, msg); err != nil {
		log.Error("handle update failed", "update_id", update.UpdateID, "err", err)
		w.forget(r.Context(), log, update.UpdateID)
		w.metrics.Update("error")
		http.Error(rw, "Bot error", http.StatusInternalServerError)
		return
	}
	w.ack(rw, "handled")
}

// forget releases the update so Telegram's redelivery after a 500 is
// processed instead of acked as a duplicate.
func (w *Webhook) forget(ctx context.Context, log *slog.Logger, updateID int) {
	if w.dedup == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.dedup.Forget(ctx, strconv.Itoa(updateID)); err != nil {
		log.Warn("dedup forget failed", "update_id", updateID, "err", err)
	}
}

func (w *Webhook) ack(rw http.ResponseWriter, outcome string) {
	w.metrics.Update(outcome)
	rw.WriteHeader(http.StatusOK)
}

// inboundFrom extracts a text message. Edits, callbacks and non-text
// messages are not answered.
func inboundFrom(u tgbotapi.Update) (domain.InboundMessage, bool) {
	m := u.Message
	if m == nil || m.Chat == nil {
		return domain.InboundMessage{}, false
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return domain.InboundMessage{}, false
	}
	msg := domain.InboundMessage{
		UpdateID:   u.UpdateID,
		ChatID:     strconv.FormatInt(m.Chat.ID, 10),
		Text:       text,
		ReceivedAt: time.Unix(int64(m.Date), 0),
	}
	if m.From != nil {
		msg.SenderName = m.From.FirstName
	}
	return msg, true
}

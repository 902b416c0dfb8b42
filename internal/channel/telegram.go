package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shopbot/internal/domain"
	"shopbot/internal/netutil"
)

const telegramMaxMsgLen = 4096

// Telegram sends replies through the Bot API and manages the webhook
// registration. It never polls for updates.
type Telegram struct {
	bot        *tgbotapi.BotAPI
	parseMode  string
	sendTyping bool
	logger     *slog.Logger
}

type TelegramConfig struct {
	Token       string
	APIEndpoint string // format string with token and method, as tgbotapi.APIEndpoint
	ParseMode   string // empty sends plain text
	SendTyping  bool
	Client      *http.Client
	Logger      *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.Client == nil {
		cfg.Client = netutil.NewClient(netutil.ClientOptions{MaxConnsPerHost: 4})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	// Built directly instead of tgbotapi.NewBotAPI, which calls getMe.
	bot := &tgbotapi.BotAPI{
		Token:  cfg.Token,
		Client: cfg.Client,
		Buffer: 100,
	}
	bot.SetAPIEndpoint(cfg.APIEndpoint)
	return &Telegram{
		bot:        bot,
		parseMode:  cfg.ParseMode,
		sendTyping: cfg.SendTyping,
		logger:     cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Send delivers reply, split into chunks under the message size limit. Each
// chunk is sent once.
func (t *Telegram) Send(ctx context.Context, reply domain.OutboundReply) error {
	chatID, err := parseChatID(reply.ChatID)
	if err != nil {
		return err
	}
	for _, chunk := range splitMessage(reply.Text, telegramMaxMsgLen) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		msg := tgbotapi.NewMessage(chatID, chunk)
		if reply.Format == domain.FormatMarkup && t.parseMode != "" {
			msg.ParseMode = t.parseMode
		}
		if _, err := t.bot.Send(msg); err != nil {
			return fmt.Errorf("telegram sendMessage: %w", err)
		}
	}
	return nil
}

// SendTyping shows the typing indicator. Failures are only logged.
func (t *Telegram) SendTyping(_ context.Context, chatID string) {
	if !t.sendTyping {
		return
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return
	}
	if _, err := t.bot.Request(tgbotapi.NewChatAction(id, tgbotapi.ChatTyping)); err != nil {
		t.logger.Debug("typing action failed", "chat_id", chatID, "err", err)
	}
}

// SetWebhook registers url with Telegram. secret is echoed back by Telegram
// in the X-Telegram-Bot-Api-Secret-Token header of every update.
func (t *Telegram) SetWebhook(url, secret string, dropPending bool) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	params.AddBool("drop_pending_updates", dropPending)
	if _, err := t.bot.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("setWebhook: %w", err)
	}
	return nil
}

func (t *Telegram) DeleteWebhook(dropPending bool) error {
	params := tgbotapi.Params{}
	params.AddBool("drop_pending_updates", dropPending)
	if _, err := t.bot.MakeRequest("deleteWebhook", params); err != nil {
		return fmt.Errorf("deleteWebhook: %w", err)
	}
	return nil
}

func (t *Telegram) WebhookInfo() (tgbotapi.WebhookInfo, error) {
	info, err := t.bot.GetWebhookInfo()
	if err != nil {
		return info, fmt.Errorf("getWebhookInfo: %w", err)
	}
	return info, nil
}

// Me returns the bot account; used to check the token.
func (t *Telegram) Me() (tgbotapi.User, error) {
	u, err := t.bot.GetMe()
	if err != nil {
		return u, fmt.Errorf("getMe: %w", err)
	}
	return u, nil
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: %w", s, err)
	}
	return id, nil
}

// splitMessage cuts msg into chunks of at most maxLen bytes, preferring a
// line break in the second half of a chunk and never splitting a rune.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}

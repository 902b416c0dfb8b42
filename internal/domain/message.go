package domain

import "time"

// InboundMessage is one text message taken from a webhook update.
type InboundMessage struct {
	UpdateID   int
	ChatID     string
	SenderName string // optional
	Text       string
	ReceivedAt time.Time
}

type ReplyFormat string

const (
	FormatPlain  ReplyFormat = "plain"
	FormatMarkup ReplyFormat = "markup"
)

type ReplyKind string

const (
	ReplyGreeting    ReplyKind = "greeting"
	ReplyCommand     ReplyKind = "command"
	ReplyOutOfDomain ReplyKind = "out_of_domain"
	ReplyAnswer      ReplyKind = "answer"
	ReplyFallback    ReplyKind = "fallback"
	ReplyApology     ReplyKind = "apology"
)

// OutboundReply is the single reply produced for an InboundMessage.
type OutboundReply struct {
	ChatID string      `json:"chat_id"`
	Text   string      `json:"text"`
	Format ReplyFormat `json:"format"`
	Kind   ReplyKind   `json:"kind"`
}

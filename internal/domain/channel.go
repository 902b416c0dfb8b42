package domain

import "context"

// Sender delivers a reply to the messaging platform.
type Sender interface {
	Send(ctx context.Context, reply OutboundReply) error
}

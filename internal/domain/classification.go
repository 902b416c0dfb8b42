package domain

type ClassKind string

const (
	ClassGreeting ClassKind = "greeting"
	ClassCommand  ClassKind = "command"
	ClassDomain   ClassKind = "domain"
	ClassProduct  ClassKind = "product"
	ClassNone     ClassKind = "none"
)

// Classification is the classifier's verdict for one message text.
// MatchedSignal names the keyword, phrase or command that decided it.
type Classification struct {
	InDomain      bool      `json:"in_domain"`
	Kind          ClassKind `json:"kind"`
	MatchedSignal string    `json:"matched_signal,omitempty"`
	ProductIntent bool      `json:"product_intent"`
}

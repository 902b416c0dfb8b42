// Package classifier decides whether an inbound message is something the
// assistant should answer.
//
// Matching is plain containment with no scoring or negation handling, so a
// keyword inside an unrelated sentence ("I hate buying things") still counts
// as in-domain.
package classifier

import (
	"strings"
	"unicode"

	"shopbot/internal/config"
	"shopbot/internal/domain"
)

// Classifier matches message text against the rules resource.
type Classifier struct {
	greetings      [][]string // greeting phrases, pre-split into lowercase words
	greetingRaw    []string
	keywords       []string
	productPhrases []string
	productNouns   []string
}

func New(rules config.RulesConfig) *Classifier {
	c := &Classifier{
		keywords:       lowerAll(rules.DomainKeywords),
		productPhrases: lowerAll(rules.ProductPhrases),
		productNouns:   lowerAll(rules.ProductNouns),
	}
	for _, g := range lowerAll(rules.Greetings) {
		words := splitWords(g)
		if len(words) == 0 {
			continue
		}
		c.greetings = append(c.greetings, words)
		c.greetingRaw = append(c.greetingRaw, g)
	}
	return c
}

// Classify returns the verdict for text. It is pure: the same text always
// yields the same result.
func (c *Classifier) Classify(text string) domain.Classification {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return domain.Classification{Kind: domain.ClassNone}
	}

	if cmd, ok := command(lower); ok {
		return domain.Classification{InDomain: true, Kind: domain.ClassCommand, MatchedSignal: cmd}
	}

	if g, ok := c.matchGreeting(lower); ok {
		return domain.Classification{InDomain: true, Kind: domain.ClassGreeting, MatchedSignal: g}
	}

	intentSignal, intent := c.matchProductIntent(lower)

	for _, kw := range c.keywords {
		if kw != "" && strings.Contains(lower, kw) {
			return domain.Classification{
				InDomain:      true,
				Kind:          domain.ClassDomain,
				MatchedSignal: kw,
				ProductIntent: intent,
			}
		}
	}

	if intent {
		return domain.Classification{
			InDomain:      true,
			Kind:          domain.ClassProduct,
			MatchedSignal: intentSignal,
			ProductIntent: true,
		}
	}
	return domain.Classification{Kind: domain.ClassNone}
}

// matchProductIntent reports a phrase OR a noun hit; either alone suffices.
func (c *Classifier) matchProductIntent(lower string) (string, bool) {
	for _, p := range c.productPhrases {
		if p != "" && strings.Contains(lower, p) {
			return strings.TrimSpace(p), true
		}
	}
	for _, n := range c.productNouns {
		if n != "" && strings.Contains(lower, n) {
			return n, true
		}
	}
	return "", false
}

// matchGreeting looks for a greeting phrase on word boundaries, so "hi"
// matches "hi there" but not "this".
func (c *Classifier) matchGreeting(lower string) (string, bool) {
	words := splitWords(lower)
	for i, phrase := range c.greetings {
		if containsSeq(words, phrase) {
			return c.greetingRaw[i], true
		}
	}
	return "", false
}

// command recognizes /start and /help, with an optional @botname suffix.
func command(lower string) (string, bool) {
	if !strings.HasPrefix(lower, "/") {
		return "", false
	}
	name := strings.Fields(lower)[0][1:]
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	switch name {
	case "start", "help":
		return name, true
	}
	return "", false
}

func containsSeq(words, seq []string) bool {
	if len(seq) == 0 || len(seq) > len(words) {
		return false
	}
outer:
	for i := 0; i+len(seq) <= len(words); i++ {
		for j := range seq {
			if words[i+j] != seq[j] {
				continue outer
			}
		}
		return true
	}
	return false
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}

package responder

import (
	"fmt"
	"regexp"

	"shopbot/internal/config"
)

type rule struct {
	re          *regexp.Regexp
	replacement string
}

// Substituter replaces disallowed terms, in configured order, matching whole
// words case-insensitively.
type Substituter struct {
	rules []rule
}

func NewSubstituter(subs []config.Substitution) (*Substituter, error) {
	s := &Substituter{rules: make([]rule, 0, len(subs))}
	for i, sub := range subs {
		if sub.Term == "" {
			return nil, fmt.Errorf("profanity[%d]: empty term", i)
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(sub.Term) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("profanity[%d]: %w", i, err)
		}
		s.rules = append(s.rules, rule{re: re, replacement: sub.Replacement})
	}
	return s, nil
}

func (s *Substituter) Apply(text string) string {
	if s == nil {
		return text
	}
	for _, r := range s.rules {
		text = r.re.ReplaceAllLiteralString(text, r.replacement)
	}
	return text
}

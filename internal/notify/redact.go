package notify

import (
	"fmt"
	"regexp"
)

// Redactor removes sensitive substrings from outbound message bodies.
// Patterns match case-insensitively; every match is replaced with the same
// fixed token, so redaction is idempotent as long as the token itself does
// not match any pattern.
type Redactor struct {
	patterns    []*regexp.Regexp
	replacement string
}

// NewRedactor compiles the configured patterns. An empty pattern list yields
// a pass-through redactor.
func NewRedactor(patterns []string, replacement string) (*Redactor, error) {
	if replacement == "" {
		replacement = "[REDACTED]"
	}
	r := &Redactor{replacement: replacement}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("redact pattern %q: %w", p, err)
		}
		if re.MatchString(replacement) {
			return nil, fmt.Errorf("redact pattern %q matches the replacement token", p)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// Redact applies every pattern to the text.
func (r *Redactor) Redact(text string) string {
	for _, re := range r.patterns {
		text = re.ReplaceAllString(text, r.replacement)
	}
	return text
}

package middleware

import "regexp"

// Redaction is a single named pattern/replacement pair.
type Redaction struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

// DefaultRedactions covers the common PII shapes: emails, US SSNs, and
// 16-digit card numbers.
func DefaultRedactions() []Redaction {
	return []Redaction{
		{Name: "email", Pattern: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), Replacement: "[REDACTED_EMAIL]"},
		{Name: "ssn", Pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), Replacement: "[REDACTED_SSN]"},
		{Name: "card", Pattern: regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`), Replacement: "[REDACTED_CARD]"},
	}
}

// PIIRedactionMiddleware rewrites user-visible message text before it is
// sent to the model. Patterns are explicit regexes so the filter set stays
// auditable.
type PIIRedactionMiddleware struct {
	Base
	redactions []Redaction
}

// NewPIIRedactionMiddleware returns a PIIRedactionMiddleware using the given
// redactions, or DefaultRedactions if none are supplied.
func NewPIIRedactionMiddleware(redactions ...Redaction) *PIIRedactionMiddleware {
	if len(redactions) == 0 {
		redactions = DefaultRedactions()
	}
	return &PIIRedactionMiddleware{redactions: redactions}
}

func (m *PIIRedactionMiddleware) Name() string { return "pii_redaction" }

// Redactions returns the configured pattern set.
func (m *PIIRedactionMiddleware) Redactions() []Redaction { return m.redactions }

func (m *PIIRedactionMiddleware) ProcessRequest(ctx *Context) error {
	if ctx.Operation != OpModelCall {
		return nil
	}
	data, ok := ctx.Data.(*ModelCallData)
	if !ok {
		return nil
	}
	for i := range data.Messages {
		text := data.Messages[i].Text
		for _, r := range m.redactions {
			text = r.Pattern.ReplaceAllString(text, r.Replacement)
		}
		data.Messages[i].Text = text
	}
	return nil
}

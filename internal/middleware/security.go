package middleware

import (
	"strings"

	"github.com/kestrelai/agentkit/internal/errkind"
)

// SecurityMiddleware blocks a model call when any outbound message contains
// a denylisted phrase, raising to abort the call.
type SecurityMiddleware struct {
	Base
	denylist      []string
	caseSensitive bool
}

// NewSecurityMiddleware returns a content filter over the given phrases.
func NewSecurityMiddleware(denylist []string, caseSensitive bool) *SecurityMiddleware {
	return &SecurityMiddleware{denylist: denylist, caseSensitive: caseSensitive}
}

func (m *SecurityMiddleware) Name() string { return "security" }

// Denylist returns the configured phrases.
func (m *SecurityMiddleware) Denylist() []string { return m.denylist }

// CaseSensitive reports whether matching is case sensitive.
func (m *SecurityMiddleware) CaseSensitive() bool { return m.caseSensitive }

func (m *SecurityMiddleware) ProcessRequest(ctx *Context) error {
	if ctx.Operation != OpModelCall {
		return nil
	}
	data, ok := ctx.Data.(*ModelCallData)
	if !ok {
		return nil
	}
	for _, msg := range data.Messages {
		text := msg.Text
		if !m.caseSensitive {
			text = strings.ToLower(text)
		}
		for _, phrase := range m.denylist {
			needle := phrase
			if !m.caseSensitive {
				needle = strings.ToLower(needle)
			}
			if strings.Contains(text, needle) {
				return errkind.New(errkind.Validation, "blocked by security policy: matched denylisted content")
			}
		}
	}
	return nil
}

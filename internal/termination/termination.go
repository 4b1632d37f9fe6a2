// Package termination implements the pluggable termination predicates:
// MaxMessages, TextMention, and logical Composite combinators.
package termination

import (
	"fmt"
	"strings"

	"github.com/kestrelai/agentkit/pkg/types"
)

// Condition decides, given the full message sequence so far, whether a
// multi-turn process (orchestration or agent loop) should stop.
type Condition interface {
	Evaluate(messages []types.Message) (stop bool, reason string)
	// Or and And compose conditions the way an infix "a | b" / "a & b"
	// expression would.
	Or(other Condition) Condition
	And(other Condition) Condition
}

// base gives every concrete condition the Or/And combinators for free.
type base struct{ self Condition }

func (b base) Or(other Condition) Condition  { return NewComposite(ModeAny, b.self, other) }
func (b base) And(other Condition) Condition { return NewComposite(ModeAll, b.self, other) }

// MaxMessages stops once the message count reaches N.
type MaxMessages struct {
	base
	N int
}

// NewMaxMessages returns a condition that stops once len(messages) >= n.
func NewMaxMessages(n int) *MaxMessages {
	c := &MaxMessages{N: n}
	c.base = base{self: c}
	return c
}

func (c *MaxMessages) Evaluate(messages []types.Message) (bool, string) {
	if len(messages) >= c.N {
		return true, fmt.Sprintf("reached max messages: %d", c.N)
	}
	return false, ""
}

// TextMention stops when an Assistant message contains Text. Only
// assistant messages are inspected; user and tool messages never match.
type TextMention struct {
	base
	Text          string
	CaseSensitive bool
}

// NewTextMention returns a condition stopping on the first Assistant
// message containing text.
func NewTextMention(text string, caseSensitive bool) *TextMention {
	c := &TextMention{Text: text, CaseSensitive: caseSensitive}
	c.base = base{self: c}
	return c
}

func (c *TextMention) Evaluate(messages []types.Message) (bool, string) {
	needle := c.Text
	if !c.CaseSensitive {
		needle = strings.ToLower(needle)
	}
	for _, m := range messages {
		if m.Role != types.RoleAssistant {
			continue
		}
		haystack := m.Text
		if !c.CaseSensitive {
			haystack = strings.ToLower(haystack)
		}
		if strings.Contains(haystack, needle) {
			return true, fmt.Sprintf("text mention matched: %q", c.Text)
		}
	}
	return false, ""
}

// Mode selects how a Composite's children combine.
type Mode string

const (
	ModeAny Mode = "any"
	ModeAll Mode = "all"
)

// Composite combines child conditions with logical any/all, short-circuiting
// appropriately.
type Composite struct {
	base
	Mode     Mode
	Children []Condition
}

// NewComposite builds a Composite node from children, flattening nested
// composites of the same mode so "a | b | c" stays a single flat node
// rather than a chain of pairs.
func NewComposite(mode Mode, children ...Condition) *Composite {
	var flat []Condition
	for _, c := range children {
		if nested, ok := c.(*Composite); ok && nested.Mode == mode {
			flat = append(flat, nested.Children...)
			continue
		}
		flat = append(flat, c)
	}
	comp := &Composite{Mode: mode, Children: flat}
	comp.base = base{self: comp}
	return comp
}

func (c *Composite) Evaluate(messages []types.Message) (bool, string) {
	switch c.Mode {
	case ModeAll:
		var reasons []string
		for _, child := range c.Children {
			stop, reason := child.Evaluate(messages)
			if !stop {
				return false, ""
			}
			reasons = append(reasons, reason)
		}
		if len(c.Children) == 0 {
			return false, ""
		}
		return true, "all: " + strings.Join(reasons, "; ")
	default: // ModeAny
		for _, child := range c.Children {
			if stop, reason := child.Evaluate(messages); stop {
				return true, reason
			}
		}
		return false, ""
	}
}

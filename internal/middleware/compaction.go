package middleware

import "github.com/kestrelai/agentkit/pkg/types"

// ContextCompactionMiddleware trims the outbound message list to the last
// MaxTurns conversation turns, always preserving System messages and
// keeping each turn atomic: a User message together with its following
// Assistant message(s) and any Tool messages tied to that assistant's tool
// calls is either wholly kept or wholly dropped.
type ContextCompactionMiddleware struct {
	Base
	MaxTurns int
}

// NewContextCompactionMiddleware returns a middleware retaining the last
// maxTurns turns.
func NewContextCompactionMiddleware(maxTurns int) *ContextCompactionMiddleware {
	if maxTurns <= 0 {
		maxTurns = 1
	}
	return &ContextCompactionMiddleware{MaxTurns: maxTurns}
}

func (m *ContextCompactionMiddleware) Name() string { return "context_compaction" }

func (m *ContextCompactionMiddleware) ProcessRequest(ctx *Context) error {
	if ctx.Operation != OpModelCall {
		return nil
	}
	data, ok := ctx.Data.(*ModelCallData)
	if !ok {
		return nil
	}
	data.Messages = CompactTurns(data.Messages, m.MaxTurns)
	return nil
}

// CompactTurns groups messages into turns (a User message plus everything
// up to, not including, the next User message), preserves all System
// messages unconditionally, and keeps only the last maxTurns turns.
func CompactTurns(messages []types.Message, maxTurns int) []types.Message {
	var system []types.Message
	var turns [][]types.Message
	var current []types.Message

	for _, m := range messages {
		switch m.Role {
		case types.RoleSystem:
			system = append(system, m)
		case types.RoleUser:
			if len(current) > 0 {
				turns = append(turns, current)
			}
			current = []types.Message{m}
		default:
			current = append(current, m)
		}
	}
	if len(current) > 0 {
		turns = append(turns, current)
	}
	if len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}

	out := make([]types.Message, 0, len(system)+len(messages))
	out = append(out, system...)
	for _, t := range turns {
		out = append(out, t...)
	}
	return out
}

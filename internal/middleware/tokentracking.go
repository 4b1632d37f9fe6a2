package middleware

import (
	"github.com/kestrelai/agentkit/pkg/llm"
	"github.com/kestrelai/agentkit/pkg/types"
)

// TokenTrackingMiddleware accumulates usage (tokens, call counts, cost
// estimate) on the agent's context across every call it wraps.
// Cost is estimated from a per-model PriceTable when the provider result
// doesn't carry its own cost.
type TokenTrackingMiddleware struct {
	Base
	Prices types.PriceTable
}

// NewTokenTrackingMiddleware returns a tracker using prices for cost
// estimation; a nil table disables estimation (cost stays 0).
func NewTokenTrackingMiddleware(prices types.PriceTable) *TokenTrackingMiddleware {
	return &TokenTrackingMiddleware{Prices: prices}
}

func (m *TokenTrackingMiddleware) Name() string { return "token_tracking" }

func (m *TokenTrackingMiddleware) ProcessResponse(ctx *Context, result any) (any, error) {
	if ctx.Agent == nil {
		return result, nil
	}
	agentCtx := ctx.Agent.Context()
	if agentCtx == nil {
		return result, nil
	}

	switch ctx.Operation {
	case OpModelCall:
		res, ok := result.(llm.ChatCompletionResult)
		if !ok {
			return result, nil
		}
		delta := res.Usage
		delta.LLMCalls = 1
		if delta.CostEstimate == 0 && m.Prices != nil {
			delta.CostEstimate = m.Prices.Estimate(res.Model, res.Usage.TokensInput, res.Usage.TokensOutput)
		}
		agentCtx.AddUsage(delta)
	case OpToolCall:
		agentCtx.AddUsage(types.Usage{ToolCalls: 1})
	}
	return result, nil
}

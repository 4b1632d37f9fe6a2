package types

import "time"

// Usage accumulates cost and call counters for a conversation. Counters
// only ever increase.
type Usage struct {
	TokensInput  int64         `json:"tokens_input"`
	TokensOutput int64         `json:"tokens_output"`
	LLMCalls     int64         `json:"llm_calls"`
	ToolCalls    int64         `json:"tool_calls"`
	Duration     time.Duration `json:"duration_ms"`
	CostEstimate float64       `json:"cost_estimate"`
}

// Add merges another Usage snapshot into the receiver. Both must be
// non-negative; Add never decreases any counter.
func (u *Usage) Add(delta Usage) {
	u.TokensInput += delta.TokensInput
	u.TokensOutput += delta.TokensOutput
	u.LLMCalls += delta.LLMCalls
	u.ToolCalls += delta.ToolCalls
	u.Duration += delta.Duration
	u.CostEstimate += delta.CostEstimate
}

// ModelPrice is a per-million-token price pair used to estimate cost from
// token counts when a provider does not report cost directly.
type ModelPrice struct {
	InputPerMillion  float64 `json:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million"`
}

// PriceTable maps a model name to its ModelPrice.
type PriceTable map[string]ModelPrice

// Estimate returns the dollar cost of the given token counts for model,
// or zero if the model is not in the table.
func (t PriceTable) Estimate(model string, tokensIn, tokensOut int64) float64 {
	price, ok := t[model]
	if !ok {
		return 0
	}
	return float64(tokensIn)/1_000_000*price.InputPerMillion +
		float64(tokensOut)/1_000_000*price.OutputPerMillion
}

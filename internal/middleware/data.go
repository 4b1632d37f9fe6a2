package middleware

import (
	"encoding/json"

	"github.com/kestrelai/agentkit/pkg/llm"
	"github.com/kestrelai/agentkit/pkg/types"
)

// ModelCallData is the Data payload carried on a Context for OpModelCall.
// Middlewares mutate Messages/Tools/Format in ProcessRequest to affect what
// is actually sent to the provider.
type ModelCallData struct {
	Messages []types.Message
	Tools    []llm.ToolDeclaration
	Format   *llm.OutputFormat
}

// ToolCallData is the Data payload carried on a Context for OpToolCall.
type ToolCallData struct {
	ToolName string
	CallID   string
	Params   json.RawMessage
}

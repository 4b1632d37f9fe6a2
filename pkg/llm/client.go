// Package llm defines the ChatCompletionClient contract: the single
// boundary between the engine and a concrete model provider. Provider wire
// protocols live outside this module; this package only declares the
// interface and the shared shapes every implementation must speak.
package llm

import (
	"context"
	"encoding/json"

	"github.com/kestrelai/agentkit/internal/schema"
	"github.com/kestrelai/agentkit/pkg/types"
)

// ToolDeclaration is what the engine advertises to a model for one
// registered tool: name, description, and its parameter schema.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  *schema.Spec
}

// OutputFormat optionally requests structured output validated against spec.
// When a provider has no native structured-output support, the engine (or
// the provider implementation) parses JSON out of the textual completion
// against Spec instead.
type OutputFormat struct {
	Spec *schema.Spec
}

// ChatCompletionResult is the outcome of a single, non-streaming model call.
type ChatCompletionResult struct {
	Message      types.Message
	FinishReason string
	Usage        types.Usage
	Model        string
}

// Chunk is one piece of a streamed model call.
type Chunk struct {
	ContentDelta  string
	ToolCallChunk *types.ToolCallRequest
	IsComplete    bool
	Usage         *types.Usage
}

// ChatCompletionClient is the external collaborator contract every model
// provider implements. The engine never imports a concrete provider
// package; it depends on this interface alone.
type ChatCompletionClient interface {
	Create(ctx context.Context, messages []types.Message, tools []ToolDeclaration, format *OutputFormat) (ChatCompletionResult, error)
	CreateStream(ctx context.Context, messages []types.Message, tools []ToolDeclaration, format *OutputFormat) (<-chan Chunk, error)
}

// RawParameters is a convenience helper turning a Go value into the
// json.RawMessage shape ToolCallRequest.Parameters expects.
func RawParameters(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}

// Package tool implements the tool registry and execution pipeline:
// registration, schema validation, parallel invocation, and the
// approval-gate plumbing the agent loop drives.
package tool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kestrelai/agentkit/internal/schema"
	"github.com/kestrelai/agentkit/pkg/types"
)

// Tool is a callable the model can request during a turn.
type Tool interface {
	Name() string
	Description() string
	ParameterSchema() *schema.Spec
	ApprovalMode() types.ApprovalMode
	Invoke(ctx context.Context, args json.RawMessage) (types.ToolResult, error)
}

// Timeout is implemented by tools that declare their own per-call timeout.
// Tools that don't implement it run unbounded.
type Timeout interface {
	Timeout() time.Duration
}

// AgentTool marks a tool backed by a nested agent run: invoking it runs an
// isolated agent and returns its
// final assistant text as the tool result. The interface adds only the
// IsAgentTool marker method; it exists purely so callers (e.g.
// serialization) can detect the case and refuse to dump the opaque nested
// agent.
type AgentTool interface {
	Tool
	IsAgentTool() bool
}

// Func adapts a plain function plus static metadata into a Tool. Explicit
// registration keeps the metadata visible at the call site instead of
// reflecting it out of the function signature.
type Func struct {
	NameValue        string
	DescriptionValue string
	Schema           *schema.Spec
	Approval         types.ApprovalMode
	Fn               func(ctx context.Context, args json.RawMessage) (types.ToolResult, error)
	CallTimeout      time.Duration
}

func (f *Func) Name() string                     { return f.NameValue }
func (f *Func) Description() string              { return f.DescriptionValue }
func (f *Func) ParameterSchema() *schema.Spec    { return f.Schema }
func (f *Func) ApprovalMode() types.ApprovalMode { return f.Approval }
func (f *Func) Timeout() time.Duration           { return f.CallTimeout }
func (f *Func) Invoke(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
	return f.Fn(ctx, args)
}

package agentloop

import "github.com/kestrelai/agentkit/pkg/types"

// EventType discriminates the tagged events observable on an agent's
// stream.
type EventType string

const (
	EventModelCallStart    EventType = "model_call_start"
	EventTokenDelta        EventType = "token_delta"
	EventAssistantMessage  EventType = "assistant_message"
	EventToolCallStart     EventType = "tool_call_start"
	EventToolCallEnd       EventType = "tool_call_end"
	EventApprovalRequested EventType = "approval_requested"
	EventIterationBoundary EventType = "iteration_boundary"
	EventError             EventType = "error"
	EventAgentResponse     EventType = "agent_response"
)

// FinishReason is the terminal classification of one Run.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishToolCalls     FinishReason = "tool_calls"
	FinishMaxIterations FinishReason = "max_iterations"
	FinishNeedsApproval FinishReason = "needs_approval"
	FinishCancelled     FinishReason = "cancelled"
	FinishError         FinishReason = "error"
)

// AgentResponse is the terminal value of a Run, also carried as the payload
// of the stream's final agent_response event.
type AgentResponse struct {
	FinishReason     FinishReason
	Context          *types.AgentContext
	ApprovalRequests []types.ToolApprovalRequest
	Err              error
}

// Event is one element of the stream a Run produces. Only the fields
// relevant to Type are populated.
type Event struct {
	Type       EventType
	Iteration  int
	TokenDelta string
	Message    *types.Message
	ToolCall   *types.ToolCallRequest
	ToolResult *types.ToolResult
	Approval   *types.ToolApprovalRequest
	Err        error
	Response   *AgentResponse
}

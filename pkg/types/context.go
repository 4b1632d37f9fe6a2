package types

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ToolApprovalRequest is a pending human-in-the-loop gate on a tool call
// that declared approval_mode=always.
type ToolApprovalRequest struct {
	RequestID  string `json:"request_id"`
	CallID     string `json:"call_id"`
	ToolName   string `json:"tool_name"`
	Parameters []byte `json:"parameters"`
}

// AgentContext is the mutable conversation state owned by a single logical
// agent execution. It is not safe for concurrent use by more than one
// logical run; the mutex here only protects against incidental concurrent
// reads (e.g. a UI polling WaitingForApproval while the loop is mid-turn).
type AgentContext struct {
	mu sync.RWMutex

	messages []Message

	pendingApprovals  map[string]ToolApprovalRequest // request_id -> request
	approvalResponses map[string]bool                // request_id -> approved

	usage Usage

	Metadata map[string]any
}

// NewAgentContext returns an empty AgentContext ready to receive messages.
func NewAgentContext() *AgentContext {
	return &AgentContext{
		pendingApprovals:  make(map[string]ToolApprovalRequest),
		approvalResponses: make(map[string]bool),
		Metadata:          make(map[string]any),
	}
}

// Append adds a message to the ordered conversation. Messages are never
// reordered or mutated after append.
func (c *AgentContext) Append(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
}

// Messages returns a copy of the ordered message sequence.
func (c *AgentContext) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages currently in the conversation.
func (c *AgentContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// RequestApproval records a pending approval request for a tool call and
// returns its request_id. Calling this twice for the same CallID is not
// idempotent: a fresh request_id is minted every call and a second pending
// request is recorded, so callers should check PendingApprovals first.
func (c *AgentContext) RequestApproval(callID, toolName string, params []byte) ToolApprovalRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	req := ToolApprovalRequest{
		RequestID:  uuid.NewString(),
		CallID:     callID,
		ToolName:   toolName,
		Parameters: params,
	}
	c.pendingApprovals[req.RequestID] = req
	return req
}

// Respond records an approval decision for request_id. Responding twice is
// idempotent: the second response has no observable effect since the
// stored decision is unchanged.
func (c *AgentContext) Respond(requestID string, approved bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pendingApprovals[requestID]; !ok {
		return fmt.Errorf("no pending approval request: %s", requestID)
	}
	c.approvalResponses[requestID] = approved
	return nil
}

// PendingApprovals returns the approval requests that have not yet
// received a response, in no particular order.
func (c *AgentContext) PendingApprovals() []ToolApprovalRequest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []ToolApprovalRequest
	for id, req := range c.pendingApprovals {
		if _, answered := c.approvalResponses[id]; !answered {
			out = append(out, req)
		}
	}
	return out
}

// ApprovalDecision returns the stored decision for a call, if any response
// has been recorded for any pending request matching that call ID.
func (c *AgentContext) ApprovalDecision(callID string) (approved bool, answered bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, req := range c.pendingApprovals {
		if req.CallID != callID {
			continue
		}
		if decision, ok := c.approvalResponses[id]; ok {
			return decision, true
		}
	}
	return false, false
}

// ClearApproval removes bookkeeping for a resolved call so future calls
// with the same CallID (duplicate-tool-call edge case, renamed by the
// loop) do not collide.
func (c *AgentContext) ClearApproval(callID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, req := range c.pendingApprovals {
		if req.CallID == callID {
			delete(c.pendingApprovals, id)
			delete(c.approvalResponses, id)
		}
	}
}

// WaitingForApproval reports whether any approval request has no matching
// response.
func (c *AgentContext) WaitingForApproval() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id := range c.pendingApprovals {
		if _, answered := c.approvalResponses[id]; !answered {
			return true
		}
	}
	return false
}

// AddUsage merges usage deltas into the cumulative counters.
func (c *AgentContext) AddUsage(delta Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage.Add(delta)
}

// Usage returns the cumulative usage counters.
func (c *AgentContext) Usage() Usage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.usage
}

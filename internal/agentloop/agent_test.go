package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/kestrelai/agentkit/internal/middleware"
	"github.com/kestrelai/agentkit/internal/schema"
	"github.com/kestrelai/agentkit/internal/tool"
	"github.com/kestrelai/agentkit/pkg/llm"
	"github.com/kestrelai/agentkit/pkg/types"
)

// fakeClient plays back a queue of canned completions, one per Create call.
// Calls past the end of the queue return a plain "done" message.
type fakeClient struct {
	mu        sync.Mutex
	calls     int
	responses []llm.ChatCompletionResult
	createErr error
	blockCtx  bool // block until the context is cancelled
}

func (c *fakeClient) Create(ctx context.Context, messages []types.Message, tools []llm.ToolDeclaration, format *llm.OutputFormat) (llm.ChatCompletionResult, error) {
	if c.blockCtx {
		<-ctx.Done()
		return llm.ChatCompletionResult{}, ctx.Err()
	}
	if c.createErr != nil {
		return llm.ChatCompletionResult{}, c.createErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	call := c.calls
	c.calls++
	if call < len(c.responses) {
		return c.responses[call], nil
	}
	return llm.ChatCompletionResult{
		Message:      types.NewAssistantMessage("", "done", nil),
		FinishReason: "stop",
	}, nil
}

func (c *fakeClient) CreateStream(ctx context.Context, messages []types.Message, tools []llm.ToolDeclaration, format *llm.OutputFormat) (<-chan llm.Chunk, error) {
	result, err := c.Create(ctx, messages, tools, format)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.Chunk, 8)
	go func() {
		defer close(ch)
		text := result.Message.Text
		half := len(text) / 2
		if half > 0 {
			ch <- llm.Chunk{ContentDelta: text[:half]}
			ch <- llm.Chunk{ContentDelta: text[half:]}
		} else if text != "" {
			ch <- llm.Chunk{ContentDelta: text}
		}
		for i := range result.Message.ToolCalls {
			call := result.Message.ToolCalls[i]
			ch <- llm.Chunk{ToolCallChunk: &call}
		}
		usage := result.Usage
		ch <- llm.Chunk{IsComplete: true, Usage: &usage}
	}()
	return ch, nil
}

func assistantWithCalls(calls ...types.ToolCallRequest) llm.ChatCompletionResult {
	return llm.ChatCompletionResult{
		Message:      types.NewAssistantMessage("", "", calls),
		FinishReason: "tool_calls",
	}
}

func assistantText(text string) llm.ChatCompletionResult {
	return llm.ChatCompletionResult{
		Message:      types.NewAssistantMessage("", text, nil),
		FinishReason: "stop",
	}
}

func calculatorTool(t *testing.T) *tool.Func {
	t.Helper()
	spec, err := schema.Compile("calculator", json.RawMessage(`{
		"type": "object",
		"properties": {
			"a": {"type": "number"},
			"b": {"type": "number"},
			"op": {"type": "string"}
		},
		"required": ["a", "b", "op"]
	}`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return &tool.Func{
		NameValue:        "calculator",
		DescriptionValue: "basic arithmetic",
		Schema:           spec,
		Fn: func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			var params struct {
				A, B float64
				Op   string
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return types.ToolResult{}, err
			}
			var v float64
			switch params.Op {
			case "mul":
				v = params.A * params.B
			case "add":
				v = params.A + params.B
			default:
				return types.ToolResult{Success: false, Error: "unsupported op"}, nil
			}
			return types.ToolResult{Result: fmt.Sprintf("%.4f", v), Success: true}, nil
		},
	}
}

func collect(t *testing.T, events <-chan Event) ([]Event, *AgentResponse) {
	t.Helper()
	var all []Event
	for ev := range events {
		all = append(all, ev)
	}
	if len(all) == 0 {
		t.Fatal("stream produced no events")
	}
	last := all[len(all)-1]
	if last.Type != EventAgentResponse || last.Response == nil {
		t.Fatalf("last event = %s, want agent_response", last.Type)
	}
	return all, last.Response
}

func TestAgent_CalculatorFlow(t *testing.T) {
	client := &fakeClient{responses: []llm.ChatCompletionResult{
		assistantWithCalls(types.ToolCallRequest{
			CallID:     "call-1",
			ToolName:   "calculator",
			Parameters: json.RawMessage(`{"a": 545.34567, "b": 34555.34, "op": "mul"}`),
		}),
		assistantText("The result is 18844605.0444."),
	}}

	registry := tool.NewRegistry()
	registry.MustRegister(calculatorTool(t))
	agent := New("calc-agent", client, registry, nil, nil)

	agentCtx := types.NewAgentContext()
	events, err := agent.RunStream(context.Background(), "What is 545.34567 * 34555.34?", agentCtx, false)
	if err != nil {
		t.Fatalf("RunStream: %v", err)
	}
	all, resp := collect(t, events)

	if resp.FinishReason != FinishStop {
		t.Errorf("FinishReason = %s, want stop", resp.FinishReason)
	}

	sawToolStart := false
	for _, ev := range all {
		if ev.Type == EventToolCallStart && ev.ToolCall != nil && ev.ToolCall.ToolName == "calculator" {
			sawToolStart = true
		}
	}
	if !sawToolStart {
		t.Error("no tool_call_start event for calculator")
	}

	var toolMsg *types.Message
	final := ""
	for _, m := range resp.Context.Messages() {
		m := m
		if m.Role == types.RoleTool {
			toolMsg = &m
		}
		if m.Role == types.RoleAssistant && m.Text != "" {
			final = m.Text
		}
	}
	if toolMsg == nil || !toolMsg.Success {
		t.Fatalf("expected a successful Tool message, got %+v", toolMsg)
	}
	if !strings.HasPrefix(toolMsg.Text, "18844605.04") {
		t.Errorf("tool result = %q, want product prefix 18844605.04", toolMsg.Text)
	}
	if !strings.Contains(final, "18844") {
		t.Errorf("final text %q should contain the product prefix", final)
	}
}

func TestAgent_ToolResultCorrelation(t *testing.T) {
	client := &fakeClient{responses: []llm.ChatCompletionResult{
		assistantWithCalls(
			types.ToolCallRequest{CallID: "c1", ToolName: "calculator", Parameters: json.RawMessage(`{"a":1,"b":2,"op":"add"}`)},
			types.ToolCallRequest{CallID: "c2", ToolName: "calculator", Parameters: json.RawMessage(`{"a":3,"b":4,"op":"mul"}`)},
		),
		assistantText("done"),
	}}
	registry := tool.NewRegistry()
	registry.MustRegister(calculatorTool(t))
	agent := New("a", client, registry, nil, nil)

	resp, err := agent.Run(context.Background(), "compute", types.NewAgentContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	counts := make(map[string]int)
	for _, m := range resp.Context.Messages() {
		if m.Role == types.RoleTool {
			counts[m.CallID]++
		}
	}
	for _, id := range []string{"c1", "c2"} {
		if counts[id] != 1 {
			t.Errorf("call %s has %d tool messages, want exactly 1", id, counts[id])
		}
	}
}

func TestAgent_UnknownToolContinues(t *testing.T) {
	client := &fakeClient{responses: []llm.ChatCompletionResult{
		assistantWithCalls(types.ToolCallRequest{CallID: "c1", ToolName: "missing", Parameters: json.RawMessage(`{}`)}),
		assistantText("recovered"),
	}}
	agent := New("a", client, tool.NewRegistry(), nil, nil)

	resp, err := agent.Run(context.Background(), "go", types.NewAgentContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.FinishReason != FinishStop {
		t.Errorf("FinishReason = %s, want stop (loop continues past unknown tool)", resp.FinishReason)
	}

	found := false
	for _, m := range resp.Context.Messages() {
		if m.Role == types.RoleTool && m.CallID == "c1" {
			found = true
			if m.Success {
				t.Error("unknown tool result should not be successful")
			}
			if !strings.Contains(m.Error, "unknown tool") {
				t.Errorf("Error = %q, want unknown tool", m.Error)
			}
		}
	}
	if !found {
		t.Error("no Tool message for the unknown tool call")
	}
}

func TestAgent_ApprovalFlow(t *testing.T) {
	deleteTool := &tool.Func{
		NameValue:        "delete_file",
		DescriptionValue: "deletes a file",
		Approval:         types.ApprovalAlways,
		Fn: func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			return types.ToolResult{Result: "deleted", Success: true}, nil
		},
	}
	client := &fakeClient{responses: []llm.ChatCompletionResult{
		assistantWithCalls(types.ToolCallRequest{
			CallID: "c1", ToolName: "delete_file",
			Parameters: json.RawMessage(`{"path": "/tmp/old_data.csv"}`),
		}),
		assistantText("The file has been deleted."),
	}}
	registry := tool.NewRegistry()
	registry.MustRegister(deleteTool)
	agent := New("a", client, registry, nil, nil)

	agentCtx := types.NewAgentContext()
	resp, err := agent.Run(context.Background(), "Delete /tmp/old_data.csv", agentCtx)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if resp.FinishReason != FinishNeedsApproval {
		t.Fatalf("FinishReason = %s, want needs_approval", resp.FinishReason)
	}
	if len(resp.ApprovalRequests) != 1 {
		t.Fatalf("len(ApprovalRequests) = %d, want 1", len(resp.ApprovalRequests))
	}
	req := resp.ApprovalRequests[0]
	if req.ToolName != "delete_file" {
		t.Errorf("ToolName = %s, want delete_file", req.ToolName)
	}

	if err := agentCtx.Respond(req.RequestID, true); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	resp, err = agent.Run(context.Background(), "", agentCtx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if resp.FinishReason != FinishStop {
		t.Fatalf("FinishReason after approval = %s, want stop", resp.FinishReason)
	}

	var toolMsg *types.Message
	for _, m := range resp.Context.Messages() {
		m := m
		if m.Role == types.RoleTool && m.CallID == "c1" {
			toolMsg = &m
		}
	}
	if toolMsg == nil || !toolMsg.Success {
		t.Fatalf("expected a successful Tool message after approval, got %+v", toolMsg)
	}
	final := resp.Context.Messages()[resp.Context.Len()-1]
	if !strings.Contains(strings.ToLower(final.Text), "deleted") {
		t.Errorf("final text %q should acknowledge the deletion", final.Text)
	}
}

func TestAgent_ApprovalRejected(t *testing.T) {
	invoked := false
	deleteTool := &tool.Func{
		NameValue: "delete_file",
		Approval:  types.ApprovalAlways,
		Fn: func(ctx context.Context, args json.RawMessage) (types.ToolResult, error) {
			invoked = true
			return types.ToolResult{Result: "deleted", Success: true}, nil
		},
	}
	client := &fakeClient{responses: []llm.ChatCompletionResult{
		assistantWithCalls(types.ToolCallRequest{CallID: "c1", ToolName: "delete_file", Parameters: json.RawMessage(`{}`)}),
		assistantText("Understood, I will not delete it."),
	}}
	registry := tool.NewRegistry()
	registry.MustRegister(deleteTool)
	agent := New("a", client, registry, nil, nil)

	agentCtx := types.NewAgentContext()
	resp, err := agent.Run(context.Background(), "delete it", agentCtx)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := agentCtx.Respond(resp.ApprovalRequests[0].RequestID, false); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	resp, err = agent.Run(context.Background(), "", agentCtx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if invoked {
		t.Error("rejected tool must not execute")
	}

	found := false
	for _, m := range resp.Context.Messages() {
		if m.Role == types.RoleTool && m.CallID == "c1" {
			found = true
			if m.Success {
				t.Error("rejected call should produce a failed Tool message")
			}
			if !strings.Contains(m.Error, "rejected by user") {
				t.Errorf("Error = %q, want rejected by user", m.Error)
			}
		}
	}
	if !found {
		t.Error("no Tool message for the rejected call")
	}
}

func TestAgent_MaxIterations(t *testing.T) {
	// The model asks for a tool on every call; the loop must give up.
	calls := []llm.ChatCompletionResult{}
	for i := 0; i < 10; i++ {
		calls = append(calls, assistantWithCalls(types.ToolCallRequest{
			CallID: fmt.Sprintf("c%d", i), ToolName: "calculator",
			Parameters: json.RawMessage(`{"a":1,"b":1,"op":"add"}`),
		}))
	}
	client := &fakeClient{responses: calls}
	registry := tool.NewRegistry()
	registry.MustRegister(calculatorTool(t))
	agent := New("a", client, registry, nil, nil, WithMaxIterations(3))

	resp, err := agent.Run(context.Background(), "loop forever", types.NewAgentContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.FinishReason != FinishMaxIterations {
		t.Errorf("FinishReason = %s, want max_iterations", resp.FinishReason)
	}
}

func TestAgent_CancellationBeforeAssistant(t *testing.T) {
	client := &fakeClient{blockCtx: true}
	agent := New("a", client, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	agentCtx := types.NewAgentContext()
	events, err := agent.RunStream(ctx, "task", agentCtx, false)
	if err != nil {
		t.Fatalf("RunStream: %v", err)
	}
	cancel()
	_, resp := collect(t, events)

	if resp.FinishReason != FinishCancelled {
		t.Errorf("FinishReason = %s, want cancelled", resp.FinishReason)
	}
	// Conversation holds only messages up to the cancel point: the user
	// task, no partial assistant message.
	for _, m := range resp.Context.Messages() {
		if m.Role == types.RoleAssistant {
			t.Errorf("cancelled run leaked an assistant message: %+v", m)
		}
	}
}

func TestAgent_ModelErrorUnrecovered(t *testing.T) {
	client := &fakeClient{createErr: errors.New("upstream 500")}
	agent := New("a", client, nil, nil, nil)

	resp, err := agent.Run(context.Background(), "task", types.NewAgentContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.FinishReason != FinishError {
		t.Errorf("FinishReason = %s, want error", resp.FinishReason)
	}
	if resp.Err == nil || !strings.Contains(resp.Err.Error(), "upstream 500") {
		t.Errorf("Err = %v, want the provider error preserved", resp.Err)
	}
}

func TestAgent_MiddlewareRecoversModelError(t *testing.T) {
	client := &fakeClient{createErr: errors.New("upstream 500")}
	recovery := &recoveryMiddleware{}
	agent := New("a", client, nil, middleware.NewChain(recovery), nil)

	resp, err := agent.Run(context.Background(), "task", types.NewAgentContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.FinishReason != FinishStop {
		t.Errorf("FinishReason = %s, want stop (middleware recovered)", resp.FinishReason)
	}
}

type recoveryMiddleware struct {
	middleware.Base
}

func (m *recoveryMiddleware) Name() string { return "recovery" }

func (m *recoveryMiddleware) ProcessError(ctx *middleware.Context, err error) (any, error) {
	return llm.ChatCompletionResult{
		Message:      types.NewAssistantMessage("", "fallback answer", nil),
		FinishReason: "stop",
	}, nil
}

func TestAgent_DuplicateCallIDsRenamed(t *testing.T) {
	client := &fakeClient{responses: []llm.ChatCompletionResult{
		assistantWithCalls(types.ToolCallRequest{CallID: "c1", ToolName: "calculator", Parameters: json.RawMessage(`{"a":1,"b":2,"op":"add"}`)}),
		assistantWithCalls(types.ToolCallRequest{CallID: "c1", ToolName: "calculator", Parameters: json.RawMessage(`{"a":2,"b":3,"op":"add"}`)}),
		assistantText("done"),
	}}
	registry := tool.NewRegistry()
	registry.MustRegister(calculatorTool(t))
	agent := New("a", client, registry, nil, nil)

	resp, err := agent.Run(context.Background(), "twice", types.NewAgentContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	ids := make(map[string]int)
	for _, m := range resp.Context.Messages() {
		for _, call := range m.ToolCalls {
			ids[call.CallID]++
		}
	}
	for id, n := range ids {
		if n != 1 {
			t.Errorf("call id %s used %d times, want unique ids", id, n)
		}
	}
	if _, ok := ids["c1#2"]; !ok {
		t.Errorf("duplicate call id not renamed deterministically, got %v", ids)
	}
}

func TestAgent_StreamTokens(t *testing.T) {
	client := &fakeClient{responses: []llm.ChatCompletionResult{
		assistantText("streamed answer"),
	}}
	agent := New("a", client, nil, nil, nil)

	events, err := agent.RunStream(context.Background(), "task", types.NewAgentContext(), true)
	if err != nil {
		t.Fatalf("RunStream: %v", err)
	}
	all, resp := collect(t, events)

	var deltas []string
	for _, ev := range all {
		if ev.Type == EventTokenDelta {
			deltas = append(deltas, ev.TokenDelta)
		}
	}
	if len(deltas) < 2 {
		t.Fatalf("expected multiple token deltas, got %d", len(deltas))
	}
	if got := strings.Join(deltas, ""); got != "streamed answer" {
		t.Errorf("joined deltas = %q, want %q", got, "streamed answer")
	}
	if resp.FinishReason != FinishStop {
		t.Errorf("FinishReason = %s, want stop", resp.FinishReason)
	}
}

func TestAgent_StructuredOutput(t *testing.T) {
	spec, err := schema.Compile("answer", json.RawMessage(`{
		"type": "object",
		"properties": {"answer": {"type": "string"}},
		"required": ["answer"]
	}`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	client := &fakeClient{responses: []llm.ChatCompletionResult{
		assistantText(`{"answer": "42"}`),
	}}
	agent := New("a", client, nil, nil, nil, WithOutputFormat(&llm.OutputFormat{Spec: spec}))

	resp, err := agent.Run(context.Background(), "meaning of life", types.NewAgentContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	msgs := resp.Context.Messages()
	last := msgs[len(msgs)-1]
	if len(last.StructuredContent) == 0 {
		t.Fatal("assistant message missing structured content")
	}
	var parsed struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(last.StructuredContent, &parsed); err != nil || parsed.Answer != "42" {
		t.Errorf("structured content = %s, parse err %v", last.StructuredContent, err)
	}
}

func TestAgent_StructuredOutputParseFailure(t *testing.T) {
	spec, err := schema.Compile("answer", json.RawMessage(`{
		"type": "object",
		"properties": {"answer": {"type": "string"}},
		"required": ["answer"]
	}`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	client := &fakeClient{responses: []llm.ChatCompletionResult{
		assistantText("not json at all"),
	}}
	agent := New("a", client, nil, nil, nil, WithOutputFormat(&llm.OutputFormat{Spec: spec}))

	events, err := agent.RunStream(context.Background(), "task", types.NewAgentContext(), false)
	if err != nil {
		t.Fatalf("RunStream: %v", err)
	}
	all, resp := collect(t, events)

	sawError := false
	for _, ev := range all {
		if ev.Type == EventError {
			sawError = true
		}
	}
	if !sawError {
		t.Error("parse failure should emit an error event")
	}
	// Raw text stays available; the run itself still completes.
	if resp.FinishReason != FinishStop {
		t.Errorf("FinishReason = %s, want stop", resp.FinishReason)
	}
	msgs := resp.Context.Messages()
	if msgs[len(msgs)-1].Text != "not json at all" {
		t.Error("raw completion text should be preserved")
	}
}

func TestAgent_SystemPromptSeededOnce(t *testing.T) {
	client := &fakeClient{}
	agent := New("a", client, nil, nil, nil, WithSystemPrompt("be brief"))

	agentCtx := types.NewAgentContext()
	if _, err := agent.Run(context.Background(), "one", agentCtx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := agent.Run(context.Background(), "two", agentCtx); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	systems := 0
	for _, m := range agentCtx.Messages() {
		if m.Role == types.RoleSystem {
			systems++
		}
	}
	if systems != 1 {
		t.Errorf("system messages = %d, want 1", systems)
	}
}

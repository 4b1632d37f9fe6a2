// Package agentloop implements the agent iteration loop: model call, tool
// planning, tool execution, context update, with cancellation, approval
// gating, streaming events, and usage accounting.
package agentloop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kestrelai/agentkit/internal/errkind"
	"github.com/kestrelai/agentkit/internal/logging"
	"github.com/kestrelai/agentkit/internal/metrics"
	"github.com/kestrelai/agentkit/internal/middleware"
	"github.com/kestrelai/agentkit/internal/schema"
	"github.com/kestrelai/agentkit/internal/tool"
	"github.com/kestrelai/agentkit/pkg/llm"
	"github.com/kestrelai/agentkit/pkg/types"
)

const eventBufferSize = 8

// DefaultMaxIterations bounds a single Run absent an explicit override.
const DefaultMaxIterations = 10

// Option configures an Agent at construction time.
type Option func(*Agent)

// WithMaxIterations overrides DefaultMaxIterations.
func WithMaxIterations(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxIterations = n
		}
	}
}

// WithSystemPrompt seeds a System message the first time an AgentContext
// with no existing System message is run.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) { a.systemPrompt = prompt }
}

// WithOutputFormat requests structured output validated against spec.
func WithOutputFormat(format *llm.OutputFormat) Option {
	return func(a *Agent) { a.outputFormat = format }
}

// WithLogger overrides the no-op default logger.
func WithLogger(log logging.Logger) Option {
	return func(a *Agent) {
		if log != nil {
			a.log = log
		}
	}
}

// WithDescription sets the agent's description, consumed by AI-selected and
// plan-based orchestrators when choosing among agents.
func WithDescription(desc string) Option {
	return func(a *Agent) { a.description = desc }
}

// WithMetrics records loop-level counters (approval pauses) into collector.
// Per-call counters live in middleware.MetricsMiddleware.
func WithMetrics(collector *metrics.Collector) Option {
	return func(a *Agent) { a.metrics = collector }
}

// Agent runs a bounded loop coordinating a model client, a tool registry,
// and a conversation context.
type Agent struct {
	name        string
	description string

	client     llm.ChatCompletionClient
	registry   *tool.Registry
	executor   *tool.Executor
	modelChain *middleware.Chain

	maxIterations int
	systemPrompt  string
	outputFormat  *llm.OutputFormat
	log           logging.Logger
	metrics       *metrics.Collector
}

// New constructs an Agent. modelChain wraps every model call; executor
// (built over the same or a separate chain) wraps every tool call.
func New(name string, client llm.ChatCompletionClient, registry *tool.Registry, modelChain *middleware.Chain, executor *tool.Executor, opts ...Option) *Agent {
	if registry == nil {
		registry = tool.NewRegistry()
	}
	if modelChain == nil {
		modelChain = middleware.NewChain()
	}
	if executor == nil {
		executor = tool.NewExecutor(registry, middleware.NewChain(), logging.Nop())
	}
	a := &Agent{
		name:          name,
		client:        client,
		registry:      registry,
		executor:      executor,
		modelChain:    modelChain,
		maxIterations: DefaultMaxIterations,
		log:           logging.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the agent's name (middleware.AgentView).
func (a *Agent) Name() string { return a.name }

// Description returns the agent's description, used by selection policies.
func (a *Agent) Description() string { return a.description }

// Registry exposes the tool registry, e.g. for serialization dumps.
func (a *Agent) Registry() *tool.Registry { return a.registry }

// agentView adapts one Run's (Agent, AgentContext) pair into the read-only
// middleware.AgentView, avoiding a back-reference cycle.
type agentView struct {
	name string
	ctx  *types.AgentContext
}

func (v *agentView) Name() string                 { return v.name }
func (v *agentView) Context() *types.AgentContext { return v.ctx }

// Run executes a turn to completion and returns its terminal AgentResponse,
// the collected last element of RunStream.
func (a *Agent) Run(ctx context.Context, task string, agentCtx *types.AgentContext) (*AgentResponse, error) {
	events, err := a.RunStream(ctx, task, agentCtx, false)
	if err != nil {
		return nil, err
	}
	var last Event
	for ev := range events {
		last = ev
	}
	if last.Type != EventAgentResponse || last.Response == nil {
		return nil, fmt.Errorf("agent loop: stream closed without a terminal response")
	}
	return last.Response, nil
}

// RunStream is the canonical streaming form of a turn.
func (a *Agent) RunStream(ctx context.Context, task string, agentCtx *types.AgentContext, streamTokens bool) (<-chan Event, error) {
	if a.client == nil {
		return nil, errkind.ErrNoProvider
	}
	if agentCtx == nil {
		agentCtx = types.NewAgentContext()
	}

	events := make(chan Event, eventBufferSize)
	go a.runLoop(ctx, task, agentCtx, streamTokens, events)
	return events, nil
}

func (a *Agent) runLoop(ctx context.Context, task string, agentCtx *types.AgentContext, streamTokens bool, events chan<- Event) {
	defer close(events)

	a.seedSystemPrompt(agentCtx)
	if task != "" {
		agentCtx.Append(types.NewUserMessage("user", task))
	}

	view := &agentView{name: a.name, ctx: agentCtx}

	iteration := 0
	for iteration < a.maxIterations {
		select {
		case <-ctx.Done():
			a.emitResponse(events, agentCtx, FinishCancelled, nil, ctx.Err())
			return
		default:
		}

		events <- Event{Type: EventIterationBoundary, Iteration: iteration}

		if agentCtx.WaitingForApproval() {
			if a.metrics != nil {
				a.metrics.ApprovalWaits.Inc()
			}
			a.emitResponse(events, agentCtx, FinishNeedsApproval, agentCtx.PendingApprovals(), nil)
			return
		}

		// A prior turn may have ended waiting on approval; now that
		// responses are in, execute those calls before going back to the
		// model.
		if pending := unresolvedToolCalls(agentCtx); len(pending) > 0 {
			a.handleToolCalls(ctx, agentCtx, view, pending, events, iteration)
			iteration++
			continue
		}

		events <- Event{Type: EventModelCallStart, Iteration: iteration}

		assistantMsg, err := a.callModel(ctx, agentCtx, view, streamTokens, events, iteration)
		if err != nil {
			if ctx.Err() != nil {
				a.emitResponse(events, agentCtx, FinishCancelled, nil, ctx.Err())
				return
			}
			events <- Event{Type: EventError, Iteration: iteration, Err: err}
			a.emitResponse(events, agentCtx, FinishError, nil, err)
			return
		}

		assistantMsg = dedupeCallIDs(agentCtx, assistantMsg)
		agentCtx.Append(assistantMsg)
		msgCopy := assistantMsg
		events <- Event{Type: EventAssistantMessage, Iteration: iteration, Message: &msgCopy}

		if !assistantMsg.HasToolCalls() {
			a.emitResponse(events, agentCtx, FinishStop, nil, nil)
			return
		}

		a.handleToolCalls(ctx, agentCtx, view, assistantMsg.ToolCalls, events, iteration)
		iteration++
	}

	a.emitResponse(events, agentCtx, FinishMaxIterations, nil, errkind.ErrMaxIterations)
}

// handleToolCalls runs one batch of tool calls through approval gating,
// rejection resolution, and execution. Calls newly gated on approval are
// left unexecuted; the next loop pass finds the context waiting and pauses
// the turn.
func (a *Agent) handleToolCalls(ctx context.Context, agentCtx *types.AgentContext, view middleware.AgentView, calls []types.ToolCallRequest, events chan<- Event, iteration int) {
	cleared, recordedApproval := a.gateApprovals(agentCtx, calls, events, iteration)
	if recordedApproval {
		return
	}

	runnable := a.resolveRejections(agentCtx, cleared, events, iteration)
	for _, call := range runnable {
		c := call
		events <- Event{Type: EventToolCallStart, Iteration: iteration, ToolCall: &c}
	}
	results := a.executor.ExecuteAll(ctx, view, runnable)
	for i, msg := range results {
		agentCtx.Append(msg)
		agentCtx.ClearApproval(runnable[i].CallID)
		c := runnable[i]
		tr := types.ToolResult{Result: msg.Text, Success: msg.Success, Error: msg.Error}
		events <- Event{Type: EventToolCallEnd, Iteration: iteration, ToolCall: &c, ToolResult: &tr}
	}
}

// unresolvedToolCalls returns tool calls from the most recent assistant
// message that have no Tool result message yet.
func unresolvedToolCalls(agentCtx *types.AgentContext) []types.ToolCallRequest {
	msgs := agentCtx.Messages()
	resolved := make(map[string]bool)
	for _, m := range msgs {
		if m.Role == types.RoleTool {
			resolved[m.CallID] = true
		}
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role != types.RoleAssistant {
			continue
		}
		var out []types.ToolCallRequest
		for _, call := range m.ToolCalls {
			if !resolved[call.CallID] {
				out = append(out, call)
			}
		}
		return out
	}
	return nil
}

// gateApprovals splits an assistant message's tool calls into those cleared
// to run now and those newly gated on approval.
func (a *Agent) gateApprovals(agentCtx *types.AgentContext, calls []types.ToolCallRequest, events chan<- Event, iteration int) ([]types.ToolCallRequest, bool) {
	var cleared []types.ToolCallRequest
	recorded := false
	for _, call := range calls {
		t, ok := a.registry.Get(call.ToolName)
		if ok && t.ApprovalMode() == types.ApprovalAlways {
			if _, answered := agentCtx.ApprovalDecision(call.CallID); !answered {
				req := agentCtx.RequestApproval(call.CallID, call.ToolName, call.Parameters)
				events <- Event{Type: EventApprovalRequested, Iteration: iteration, Approval: &req}
				recorded = true
				continue
			}
		}
		cleared = append(cleared, call)
	}
	return cleared, recorded
}

// resolveRejections removes calls whose approval was denied, appending a
// rejection Tool message for each, and returns the remainder to execute.
func (a *Agent) resolveRejections(agentCtx *types.AgentContext, calls []types.ToolCallRequest, events chan<- Event, iteration int) []types.ToolCallRequest {
	var runnable []types.ToolCallRequest
	for _, call := range calls {
		if approved, answered := agentCtx.ApprovalDecision(call.CallID); answered && !approved {
			agentCtx.Append(types.NewToolMessage(call.ToolName, call.CallID, false, "", "rejected by user"))
			agentCtx.ClearApproval(call.CallID)
			c := call
			tr := types.ToolResult{Success: false, Error: "rejected by user"}
			events <- Event{Type: EventToolCallEnd, Iteration: iteration, ToolCall: &c, ToolResult: &tr}
			continue
		}
		runnable = append(runnable, call)
	}
	return runnable
}

func (a *Agent) emitResponse(events chan<- Event, agentCtx *types.AgentContext, reason FinishReason, approvals []types.ToolApprovalRequest, err error) {
	resp := &AgentResponse{FinishReason: reason, Context: agentCtx, ApprovalRequests: approvals, Err: err}
	events <- Event{Type: EventAgentResponse, Response: resp}
}

func (a *Agent) seedSystemPrompt(agentCtx *types.AgentContext) {
	if a.systemPrompt == "" {
		return
	}
	for _, m := range agentCtx.Messages() {
		if m.Role == types.RoleSystem {
			return
		}
	}
	agentCtx.Append(types.NewSystemMessage(a.name, a.systemPrompt))
}

func (a *Agent) toolDeclarations() []llm.ToolDeclaration {
	var decls []llm.ToolDeclaration
	for _, t := range a.registry.List() {
		decls = append(decls, llm.ToolDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.ParameterSchema(),
		})
	}
	return decls
}

func (a *Agent) callModel(ctx context.Context, agentCtx *types.AgentContext, view middleware.AgentView, streamTokens bool, events chan<- Event, iteration int) (types.Message, error) {
	data := &middleware.ModelCallData{
		Messages: agentCtx.Messages(),
		Tools:    a.toolDeclarations(),
		Format:   a.outputFormat,
	}
	mctx := middleware.NewContext(middleware.OpModelCall, a.name, view, data)

	result, err := a.modelChain.Invoke(mctx, func(mctx *middleware.Context) (any, error) {
		d := mctx.Data.(*middleware.ModelCallData)
		if streamTokens {
			return a.consumeStream(ctx, d, events, iteration)
		}
		return a.client.Create(ctx, d.Messages, d.Tools, d.Format)
	})
	if err != nil {
		return types.Message{}, err
	}
	res, ok := result.(llm.ChatCompletionResult)
	if !ok {
		return types.Message{}, fmt.Errorf("model call: unexpected result type %T", result)
	}

	msg := res.Message
	if msg.Role == "" {
		msg.Role = types.RoleAssistant
	}
	if msg.Source == "" {
		msg.Source = a.name
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	if a.outputFormat != nil && a.outputFormat.Spec != nil && len(msg.StructuredContent) == 0 && msg.Text != "" {
		parsed, perr := schema.ParseStructured(a.outputFormat.Spec, []byte(msg.Text))
		if perr != nil {
			events <- Event{Type: EventError, Iteration: iteration, Err: fmt.Errorf("structured output parse: %w", perr)}
		} else {
			msg.StructuredContent = parsed
		}
	}
	return msg, nil
}

func (a *Agent) consumeStream(ctx context.Context, d *middleware.ModelCallData, events chan<- Event, iteration int) (llm.ChatCompletionResult, error) {
	chunks, err := a.client.CreateStream(ctx, d.Messages, d.Tools, d.Format)
	if err != nil {
		return llm.ChatCompletionResult{}, err
	}

	var text strings.Builder
	var toolCalls []types.ToolCallRequest
	var usage types.Usage
	model := ""

	for {
		select {
		case <-ctx.Done():
			return llm.ChatCompletionResult{}, ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				goto done
			}
			if chunk.ContentDelta != "" {
				text.WriteString(chunk.ContentDelta)
				events <- Event{Type: EventTokenDelta, Iteration: iteration, TokenDelta: chunk.ContentDelta}
			}
			if chunk.ToolCallChunk != nil {
				toolCalls = append(toolCalls, *chunk.ToolCallChunk)
			}
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
			if chunk.IsComplete {
				goto done
			}
		}
	}
done:
	msg := types.NewAssistantMessage(a.name, text.String(), toolCalls)
	return llm.ChatCompletionResult{Message: msg, FinishReason: "stop", Usage: usage, Model: model}, nil
}

// dedupeCallIDs renames tool_call_ids in msg that collide with a call_id
// already used in agentCtx, with a deterministic suffix counter.
func dedupeCallIDs(agentCtx *types.AgentContext, msg types.Message) types.Message {
	if len(msg.ToolCalls) == 0 {
		return msg
	}
	seen := make(map[string]bool)
	for _, m := range agentCtx.Messages() {
		for _, c := range m.ToolCalls {
			seen[c.CallID] = true
		}
	}
	for i := range msg.ToolCalls {
		id := msg.ToolCalls[i].CallID
		if !seen[id] {
			seen[id] = true
			continue
		}
		n := 2
		candidate := fmt.Sprintf("%s#%d", id, n)
		for seen[candidate] {
			n++
			candidate = fmt.Sprintf("%s#%d", id, n)
		}
		msg.ToolCalls[i].CallID = candidate
		seen[candidate] = true
	}
	return msg
}

package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kestrelai/agentkit/internal/errkind"
	"github.com/kestrelai/agentkit/internal/logging"
	"github.com/kestrelai/agentkit/internal/middleware"
	"github.com/kestrelai/agentkit/pkg/types"
)

// Executor validates, invokes, and times out tool calls through the
// middleware chain. Approval gating is the agent loop's
// responsibility; by the time a call reaches Execute,
// the loop has already decided it is cleared to run.
type Executor struct {
	registry *Registry
	chain    *middleware.Chain
	log      logging.Logger
}

// NewExecutor returns an Executor dispatching through registry and chain.
// A nil chain runs tools with no interception.
func NewExecutor(registry *Registry, chain *middleware.Chain, log logging.Logger) *Executor {
	if chain == nil {
		chain = middleware.NewChain()
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Executor{registry: registry, chain: chain, log: log}
}

// Execute validates args, runs the tool through the middleware chain, and
// enforces any declared per-tool timeout. Tool-side failures are folded
// into ToolResult.Success=false so the agent loop can keep going; only a
// middleware raise that nothing recovers surfaces as a failed result with
// the chain's error text.
func (e *Executor) Execute(ctx context.Context, agent middleware.AgentView, call types.ToolCallRequest) types.ToolResult {
	t, ok := e.registry.Get(call.ToolName)
	if !ok {
		return types.ToolResult{Success: false, Error: errkind.ErrUnknownTool.Error()}
	}

	if t.ParameterSchema() != nil {
		if err := t.ParameterSchema().Validate(call.Parameters); err != nil {
			return types.ToolResult{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}
		}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if withTimeout, ok := t.(Timeout); ok && withTimeout.Timeout() > 0 {
		callCtx, cancel = context.WithTimeout(ctx, withTimeout.Timeout())
		defer cancel()
	}

	mctx := middleware.NewContext(middleware.OpToolCall, agent.Name(), agent, &middleware.ToolCallData{
		ToolName: call.ToolName,
		CallID:   call.CallID,
		Params:   call.Parameters,
	})

	result, err := e.chain.Invoke(mctx, func(mctx *middleware.Context) (any, error) {
		data := mctx.Data.(*middleware.ToolCallData)
		return t.Invoke(callCtx, data.Params)
	})
	if err != nil {
		if callCtx.Err() != nil {
			return types.ToolResult{Success: false, Error: fmt.Sprintf("tool timed out: %v", callCtx.Err())}
		}
		return types.ToolResult{Success: false, Error: err.Error()}
	}

	tr, ok := result.(types.ToolResult)
	if !ok {
		return types.ToolResult{Success: false, Error: "tool returned an unexpected result type"}
	}
	return tr
}

// ExecuteAll dispatches calls concurrently and returns one Tool message
// per call, in the original request order rather than completion order, so
// transcripts stay deterministic.
func (e *Executor) ExecuteAll(ctx context.Context, agent middleware.AgentView, calls []types.ToolCallRequest) []types.Message {
	out := make([]types.Message, len(calls))
	var wg sync.WaitGroup
	wg.Add(len(calls))
	for i, call := range calls {
		go func(i int, call types.ToolCallRequest) {
			defer wg.Done()
			start := time.Now()
			result := e.Execute(ctx, agent, call)
			e.log.Debug("tool call end", "tool", call.ToolName, "call_id", call.CallID,
				"success", result.Success, "duration_ms", time.Since(start).Milliseconds())
			out[i] = types.NewToolMessage(call.ToolName, call.CallID, result.Success, result.Result, result.Error)
		}(i, call)
	}
	wg.Wait()
	return out
}

// Package middleware implements the composable interceptor chain wrapping
// every model call and tool call: short-circuit, content mutation, and
// error recovery, with mirror-order response propagation.
package middleware

import (
	"github.com/kestrelai/agentkit/pkg/types"
)

// Operation identifies which of the two intercepted call kinds a Context
// belongs to.
type Operation string

const (
	OpModelCall Operation = "model_call"
	OpToolCall  Operation = "tool_call"
)

// AgentView is a read-only view of the running agent passed into middleware
// context, replacing a back-reference cycle between agent and middleware.
type AgentView interface {
	Name() string
	Context() *types.AgentContext
}

// Context is the mutable per-call object every middleware hook receives.
// Data carries the operation's input (mutate freely); Result, once set by
// ProcessRequest, short-circuits the chain; Metadata is scratch space a
// middleware can use to pass state from ProcessRequest to ProcessResponse
// (e.g. a start time for computing a duration).
type Context struct {
	Operation Operation
	AgentName string
	Agent     AgentView
	Data      any
	Result    any
	Metadata  map[string]any
}

// NewContext returns a Context with an initialized Metadata map.
func NewContext(op Operation, agentName string, agent AgentView, data any) *Context {
	return &Context{
		Operation: op,
		AgentName: agentName,
		Agent:     agent,
		Data:      data,
		Metadata:  make(map[string]any),
	}
}

// Interceptor is the three-hook contract every middleware implements.
// Embed Base to get no-op defaults and override only what's needed.
type Interceptor interface {
	Name() string
	ProcessRequest(ctx *Context) error
	ProcessResponse(ctx *Context, result any) (any, error)
	ProcessError(ctx *Context, err error) (any, error)
}

// Base provides pass-through defaults for Interceptor's three hooks so a
// concrete middleware only needs to implement the hook it cares about.
type Base struct{}

func (Base) ProcessRequest(ctx *Context) error { return nil }
func (Base) ProcessResponse(ctx *Context, result any) (any, error) {
	return result, nil
}

// ProcessError re-raises by default: a middleware that doesn't declare
// recovery logic passes the error to the next outer middleware unchanged.
func (Base) ProcessError(ctx *Context, err error) (any, error) { return nil, err }

// Chain is an ordered stack of Interceptors wrapping one underlying
// operation (a model call or a tool call).
type Chain struct {
	middlewares []Interceptor
}

// NewChain builds a Chain in outer-to-inner order: the first middleware's
// ProcessRequest runs first, and its ProcessResponse runs last.
func NewChain(middlewares ...Interceptor) *Chain {
	return &Chain{middlewares: middlewares}
}

// Invoke runs the chain around call. Request hooks execute outer→inner;
// once all have run (or one short-circuits by setting ctx.Result, or one
// errors), response/error hooks run inner→outer over exactly the
// middlewares whose ProcessRequest already executed, in mirror order.
func (c *Chain) Invoke(ctx *Context, call func(*Context) (any, error)) (any, error) {
	n := len(c.middlewares)
	executed := make([]int, 0, n)

	var result any
	var err error
	shortCircuited := false

	for i := 0; i < n; i++ {
		m := c.middlewares[i]
		executed = append(executed, i)
		if rerr := m.ProcessRequest(ctx); rerr != nil {
			err = rerr
			break
		}
		if ctx.Result != nil {
			result = ctx.Result
			shortCircuited = true
			break
		}
	}

	if err == nil && !shortCircuited {
		result, err = call(ctx)
	}

	for i := len(executed) - 1; i >= 0; i-- {
		m := c.middlewares[executed[i]]
		if err != nil {
			recovered, rerr := m.ProcessError(ctx, err)
			if rerr == nil {
				result = recovered
				err = nil
				continue
			}
			err = rerr
			continue
		}
		result, err = m.ProcessResponse(ctx, result)
	}

	return result, err
}

// Names returns the configured middleware names in outer-to-inner order,
// useful for diagnostics and serialization.
func (c *Chain) Names() []string {
	out := make([]string, len(c.middlewares))
	for i, m := range c.middlewares {
		out[i] = m.Name()
	}
	return out
}

// Len reports the number of middlewares in the chain.
func (c *Chain) Len() int { return len(c.middlewares) }

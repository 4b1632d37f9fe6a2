package middleware

import (
	"time"

	"github.com/kestrelai/agentkit/internal/logging"
)

// LoggingMiddleware emits structured begin/end lines with durations around
// every intercepted call.
type LoggingMiddleware struct {
	Base
	log logging.Logger
}

// NewLoggingMiddleware returns a LoggingMiddleware writing through log.
func NewLoggingMiddleware(log logging.Logger) *LoggingMiddleware {
	if log == nil {
		log = logging.Nop()
	}
	return &LoggingMiddleware{log: log}
}

func (m *LoggingMiddleware) Name() string { return "logging" }

func (m *LoggingMiddleware) ProcessRequest(ctx *Context) error {
	ctx.Metadata["logging.start"] = time.Now()
	m.log.Debug("call start", "operation", string(ctx.Operation), "agent", ctx.AgentName)
	return nil
}

func (m *LoggingMiddleware) ProcessResponse(ctx *Context, result any) (any, error) {
	m.log.Debug("call end", "operation", string(ctx.Operation), "agent", ctx.AgentName,
		"duration_ms", m.elapsedMillis(ctx))
	return result, nil
}

func (m *LoggingMiddleware) ProcessError(ctx *Context, err error) (any, error) {
	m.log.Warn("call error", "operation", string(ctx.Operation), "agent", ctx.AgentName,
		"duration_ms", m.elapsedMillis(ctx), "error", err.Error())
	return nil, err
}

func (m *LoggingMiddleware) elapsedMillis(ctx *Context) int64 {
	start, ok := ctx.Metadata["logging.start"].(time.Time)
	if !ok {
		return 0
	}
	return time.Since(start).Milliseconds()
}

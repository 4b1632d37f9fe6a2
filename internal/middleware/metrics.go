package middleware

import (
	"time"

	"github.com/kestrelai/agentkit/internal/metrics"
)

// MetricsMiddleware updates the engine's Prometheus counters around every
// intercepted call: model calls on the LLMCalls counter, tool calls on the
// per-tool counters, with failures split out.
type MetricsMiddleware struct {
	Base
	collector *metrics.Collector
}

// NewMetricsMiddleware returns a middleware recording into collector.
func NewMetricsMiddleware(collector *metrics.Collector) *MetricsMiddleware {
	return &MetricsMiddleware{collector: collector}
}

func (m *MetricsMiddleware) Name() string { return "metrics" }

func (m *MetricsMiddleware) ProcessRequest(ctx *Context) error {
	ctx.Metadata["metrics.start"] = time.Now()
	return nil
}

func (m *MetricsMiddleware) ProcessResponse(ctx *Context, result any) (any, error) {
	switch ctx.Operation {
	case OpModelCall:
		m.collector.LLMCalls.Inc()
	case OpToolCall:
		if data, ok := ctx.Data.(*ToolCallData); ok {
			m.collector.ToolCalls.WithLabelValues(data.ToolName).Inc()
		}
	}
	return result, nil
}

func (m *MetricsMiddleware) ProcessError(ctx *Context, err error) (any, error) {
	if ctx.Operation == OpToolCall {
		if data, ok := ctx.Data.(*ToolCallData); ok {
			m.collector.ToolErrors.WithLabelValues(data.ToolName).Inc()
		}
	}
	return nil, err
}

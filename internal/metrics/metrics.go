// Package metrics exposes engine counters as Prometheus collectors.
// Registration only; serving an HTTP exporter is the host's concern.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector bundles the counters/histograms the agent loop, tool executor,
// and workflow runner update as they run.
type Collector struct {
	LLMCalls      prometheus.Counter
	ToolCalls     *prometheus.CounterVec
	ToolErrors    *prometheus.CounterVec
	ApprovalWaits prometheus.Counter
	WorkflowSteps *prometheus.CounterVec
	StepDuration  *prometheus.HistogramVec
}

// NewCollector builds a Collector with the given namespace, ready to
// register against a prometheus.Registerer.
func NewCollector(namespace string) *Collector {
	return &Collector{
		LLMCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_calls_total",
			Help: "Total number of model calls issued by the agent loop.",
		}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tool_calls_total",
			Help: "Total number of tool invocations, by tool name.",
		}, []string{"tool"}),
		ToolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tool_errors_total",
			Help: "Total number of tool invocations that failed, by tool name.",
		}, []string{"tool"}),
		ApprovalWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "approval_waits_total",
			Help: "Total number of turns that paused for human approval.",
		}),
		WorkflowSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "workflow_steps_total",
			Help: "Total number of workflow step executions, by step id and outcome.",
		}, []string{"step_id", "outcome"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "workflow_step_duration_seconds",
			Help:    "Workflow step execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"step_id"}),
	}
}

// MustRegister registers every collector against reg, panicking on
// duplicate registration (programmer error, mirrors prometheus convention).
func (c *Collector) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(c.LLMCalls, c.ToolCalls, c.ToolErrors, c.ApprovalWaits, c.WorkflowSteps, c.StepDuration)
}

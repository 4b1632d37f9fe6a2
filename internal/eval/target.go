// Package eval implements the evaluation harness: runnable
// targets, trajectory-scoring judges, and a runner executing task lists
// sequentially or with bounded concurrency.
package eval

import (
	"context"

	"github.com/kestrelai/agentkit/internal/agentloop"
	"github.com/kestrelai/agentkit/internal/orchestrator"
	"github.com/kestrelai/agentkit/pkg/llm"
	"github.com/kestrelai/agentkit/pkg/types"
)

// Trajectory is the full run record a judge scores: the task, every message
// produced, and the usage counters accumulated along the way.
type Trajectory struct {
	Task     string
	Messages []types.Message
	Usage    types.Usage
}

// Target is something runnable that produces a final assistant message.
type Target interface {
	Name() string
	Run(ctx context.Context, task string) (Trajectory, error)
}

// ModelTarget runs a raw model client: one call, no tools, no loop.
type ModelTarget struct {
	Client llm.ChatCompletionClient
}

func (t *ModelTarget) Name() string { return "model" }

func (t *ModelTarget) Run(ctx context.Context, task string) (Trajectory, error) {
	messages := []types.Message{types.NewUserMessage("user", task)}
	result, err := t.Client.Create(ctx, messages, nil, nil)
	if err != nil {
		return Trajectory{}, err
	}
	msg := result.Message
	if msg.Role == "" {
		msg.Role = types.RoleAssistant
	}
	return Trajectory{
		Task:     task,
		Messages: append(messages, msg),
		Usage:    result.Usage,
	}, nil
}

// AgentTarget runs a full agent loop over a fresh context per task.
type AgentTarget struct {
	Agent *agentloop.Agent
}

func (t *AgentTarget) Name() string { return t.Agent.Name() }

func (t *AgentTarget) Run(ctx context.Context, task string) (Trajectory, error) {
	agentCtx := types.NewAgentContext()
	resp, err := t.Agent.Run(ctx, task, agentCtx)
	if err != nil {
		return Trajectory{}, err
	}
	return Trajectory{
		Task:     task,
		Messages: resp.Context.Messages(),
		Usage:    resp.Context.Usage(),
	}, nil
}

// Runnable is the orchestrator surface OrchestratorTarget needs, satisfied
// by both *orchestrator.Orchestrator and *orchestrator.PlanOrchestrator.
type Runnable interface {
	Run(ctx context.Context, task string) (*orchestrator.OrchestrationResponse, error)
}

// OrchestratorTarget runs a multi-agent orchestration per task.
type OrchestratorTarget struct {
	TargetName   string
	Orchestrator Runnable
}

func (t *OrchestratorTarget) Name() string { return t.TargetName }

func (t *OrchestratorTarget) Run(ctx context.Context, task string) (Trajectory, error) {
	resp, err := t.Orchestrator.Run(ctx, task)
	if err != nil {
		return Trajectory{}, err
	}
	return Trajectory{Task: task, Messages: resp.Messages}, nil
}

// Package orchestrator implements the multi-agent coordination layer: a
// shared loop running named agents under a pluggable selection policy, with
// round-robin, AI-selected, and plan-based variants.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/kestrelai/agentkit/internal/agentloop"
	"github.com/kestrelai/agentkit/internal/errkind"
	"github.com/kestrelai/agentkit/internal/logging"
	"github.com/kestrelai/agentkit/internal/termination"
	"github.com/kestrelai/agentkit/pkg/types"
)

// Agent is the minimal surface an orchestrator needs from a participant,
// satisfied structurally by *agentloop.Agent.
type Agent interface {
	Name() string
	Description() string
	Run(ctx context.Context, task string, agentCtx *types.AgentContext) (*agentloop.AgentResponse, error)
}

// Selection records one policy decision, accumulated into an
// orchestrator's pattern_metadata.
type Selection struct {
	AgentName  string
	Confidence float64
	Rationale  string
}

// SelectionPolicy decides which agent runs next given the agents available
// and the transcript so far.
type SelectionPolicy interface {
	Next(ctx context.Context, agents []Agent, transcript []types.Message, history []Selection) (Agent, Selection, error)
}

// DefaultMaxIterations bounds a shared loop run absent an explicit override.
const DefaultMaxIterations = 20

// EventType discriminates events on an orchestration's stream.
type EventType string

const (
	EventTurnStart             EventType = "turn_start"
	EventTurnEnd               EventType = "turn_end"
	EventAgentEvent            EventType = "agent_event"
	EventError                 EventType = "error"
	EventOrchestrationResponse EventType = "orchestration_response"
	EventPlanCreated           EventType = "plan_created"
	EventStepStart             EventType = "step_start"
	EventStepEnd               EventType = "step_end"
)

// Event is one element of an orchestration's stream. Extra carries
// variant-specific payloads (e.g. a Plan or a step progress result for the
// plan-based orchestrator) without widening this struct per variant.
type Event struct {
	Type      EventType
	AgentName string
	Inner     *agentloop.Event
	Err       error
	Response  *OrchestrationResponse
	Extra     any
}

// OrchestrationResponse is the terminal value of an orchestration run.
type OrchestrationResponse struct {
	Messages        []types.Message
	FinalResult     string
	StopMessage     string
	PatternMetadata map[string]any
}

// Orchestrator runs the shared loop common to round-robin and AI-selected
// coordination.
type Orchestrator struct {
	agents        []Agent
	policy        SelectionPolicy
	termination   termination.Condition
	maxIterations int
	log           logging.Logger
}

// New builds an Orchestrator. maxIterations<=0 uses DefaultMaxIterations.
func New(agents []Agent, policy SelectionPolicy, term termination.Condition, maxIterations int, log logging.Logger) *Orchestrator {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Orchestrator{agents: agents, policy: policy, termination: term, maxIterations: maxIterations, log: log}
}

// RunStream executes the shared loop: seed the buffer with task, repeatedly
// ask the policy for the next agent, run it over the buffer, and evaluate
// termination, until it fires or maxIterations is reached.
func (o *Orchestrator) RunStream(ctx context.Context, task string) (<-chan Event, error) {
	if len(o.agents) == 0 {
		return nil, errkind.New(errkind.Configuration, "orchestrator: no agents configured")
	}
	events := make(chan Event, 8)
	go o.runLoop(ctx, task, events)
	return events, nil
}

// Run collects RunStream into its terminal OrchestrationResponse.
func (o *Orchestrator) Run(ctx context.Context, task string) (*OrchestrationResponse, error) {
	events, err := o.RunStream(ctx, task)
	if err != nil {
		return nil, err
	}
	var last Event
	for ev := range events {
		last = ev
	}
	if last.Type != EventOrchestrationResponse || last.Response == nil {
		return nil, fmt.Errorf("orchestrator: stream closed without a terminal response")
	}
	return last.Response, nil
}

func (o *Orchestrator) runLoop(ctx context.Context, task string, events chan<- Event) {
	defer close(events)

	buffer := []types.Message{types.NewUserMessage("user", task)}
	var history []Selection

	stopReason := ""
	for i := 0; i < o.maxIterations; i++ {
		select {
		case <-ctx.Done():
			o.emitResponse(events, buffer, "cancelled: "+ctx.Err().Error(), history)
			return
		default:
		}

		agent, sel, err := o.policy.Next(ctx, o.agents, buffer, history)
		if err != nil {
			events <- Event{Type: EventError, Err: err}
			o.emitResponse(events, buffer, fmt.Sprintf("error selecting next agent: %v", err), history)
			return
		}
		history = append(history, sel)

		events <- Event{Type: EventTurnStart, AgentName: agent.Name()}

		turnCtx := types.NewAgentContext()
		for _, m := range buffer {
			turnCtx.Append(m)
		}
		before := turnCtx.Len()

		resp, err := agent.Run(ctx, "", turnCtx)
		if err != nil {
			events <- Event{Type: EventError, AgentName: agent.Name(), Err: err}
			o.emitResponse(events, buffer, fmt.Sprintf("agent %s error: %v", agent.Name(), err), history)
			return
		}

		after := resp.Context.Messages()
		newMsgs := after[before:]
		buffer = append(buffer, newMsgs...)

		events <- Event{Type: EventTurnEnd, AgentName: agent.Name()}

		if stop, reason := o.termination.Evaluate(buffer); stop {
			stopReason = reason
			break
		}
	}

	if stopReason == "" {
		stopReason = fmt.Sprintf("reached max iterations: %d", o.maxIterations)
	}
	o.emitResponse(events, buffer, stopReason, history)
}

func (o *Orchestrator) emitResponse(events chan<- Event, buffer []types.Message, stopReason string, history []Selection) {
	final := ""
	for i := len(buffer) - 1; i >= 0; i-- {
		if buffer[i].Role == types.RoleAssistant {
			final = buffer[i].Text
			break
		}
	}
	events <- Event{
		Type: EventOrchestrationResponse,
		Response: &OrchestrationResponse{
			Messages:        buffer,
			FinalResult:     final,
			StopMessage:     stopReason,
			PatternMetadata: selectionMetadata(history),
		},
	}
}

func selectionMetadata(history []Selection) map[string]any {
	distinct := make(map[string]struct{})
	var confidenceSum float64
	for _, s := range history {
		distinct[s.AgentName] = struct{}{}
		confidenceSum += s.Confidence
	}
	diversity := 0.0
	if len(history) > 0 {
		diversity = float64(len(distinct)) / float64(len(history))
	}
	avgConfidence := 0.0
	if len(history) > 0 {
		avgConfidence = confidenceSum / float64(len(history))
	}
	return map[string]any{
		"selection_history":  history,
		"agent_diversity":    diversity,
		"average_confidence": avgConfidence,
	}
}

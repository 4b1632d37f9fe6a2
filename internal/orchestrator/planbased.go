package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kestrelai/agentkit/internal/errkind"
	"github.com/kestrelai/agentkit/internal/logging"
	"github.com/kestrelai/agentkit/internal/schema"
	"github.com/kestrelai/agentkit/pkg/llm"
	"github.com/kestrelai/agentkit/pkg/types"
)

// PlanStep is one entry of a plan-based orchestration's plan.
type PlanStep struct {
	StepID    string `json:"step_id"`
	Task      string `json:"task"`
	AgentName string `json:"agent_name"`
	Reasoning string `json:"reasoning"`
}

// Plan is the ordered list of steps produced on the first call.
type Plan struct {
	Steps []PlanStep `json:"steps"`
}

// ProgressResult is the progress evaluator's verdict on one step.
type ProgressResult struct {
	StepCompleted         bool     `json:"step_completed"`
	Confidence            float64  `json:"confidence"`
	SuggestedImprovements []string `json:"suggested_improvements"`
}

const planSchemaJSON = `{
  "type": "object",
  "properties": {
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "step_id": {"type": "string"},
          "task": {"type": "string"},
          "agent_name": {"type": "string"},
          "reasoning": {"type": "string"}
        },
        "required": ["step_id", "task", "agent_name"]
      }
    }
  },
  "required": ["steps"]
}`

const progressSchemaJSON = `{
  "type": "object",
  "properties": {
    "step_completed": {"type": "boolean"},
    "confidence": {"type": "number"},
    "suggested_improvements": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["step_completed"]
}`

// DefaultMaxStepRetries bounds retries of one plan step before the run
// fails that step and moves on.
const DefaultMaxStepRetries = 2

// PlanOrchestrator produces a plan from agent descriptions, then steps
// through it, evaluating each step's progress and retrying a failed step
// with the same plan. The plan is created once per run and is never
// regenerated.
type PlanOrchestrator struct {
	agents         []Agent
	client         llm.ChatCompletionClient
	maxStepRetries int
	planSpec       *schema.Spec
	progressSpec   *schema.Spec
	log            logging.Logger

	// current execution position, exposed via metadata.
	currentStep int
	retries     map[string]int
}

// NewPlanOrchestrator builds a PlanOrchestrator. maxStepRetries<=0 uses
// DefaultMaxStepRetries.
func NewPlanOrchestrator(agents []Agent, client llm.ChatCompletionClient, maxStepRetries int, log logging.Logger) (*PlanOrchestrator, error) {
	if maxStepRetries <= 0 {
		maxStepRetries = DefaultMaxStepRetries
	}
	if log == nil {
		log = logging.Nop()
	}
	planSpec, err := schema.Compile("plan", json.RawMessage(planSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("plan orchestrator: %w", err)
	}
	progressSpec, err := schema.Compile("plan_progress", json.RawMessage(progressSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("plan orchestrator: %w", err)
	}
	return &PlanOrchestrator{
		agents: agents, client: client, maxStepRetries: maxStepRetries,
		planSpec: planSpec, progressSpec: progressSpec, log: log,
		retries: make(map[string]int),
	}, nil
}

// RunStream runs the full plan lifecycle: create the plan, then execute
// each step, evaluating and retrying as needed.
func (p *PlanOrchestrator) RunStream(ctx context.Context, task string) (<-chan Event, error) {
	if len(p.agents) == 0 {
		return nil, errkind.New(errkind.Configuration, "plan orchestrator: no agents configured")
	}
	events := make(chan Event, 8)
	go p.runLoop(ctx, task, events)
	return events, nil
}

// Run collects RunStream into its terminal OrchestrationResponse.
func (p *PlanOrchestrator) Run(ctx context.Context, task string) (*OrchestrationResponse, error) {
	events, err := p.RunStream(ctx, task)
	if err != nil {
		return nil, err
	}
	var last Event
	for ev := range events {
		last = ev
	}
	if last.Type != EventOrchestrationResponse || last.Response == nil {
		return nil, fmt.Errorf("plan orchestrator: stream closed without a terminal response")
	}
	return last.Response, nil
}

func (p *PlanOrchestrator) runLoop(ctx context.Context, task string, events chan<- Event) {
	defer close(events)

	buffer := []types.Message{types.NewUserMessage("user", task)}

	plan, err := p.createPlan(ctx, task)
	if err != nil {
		events <- Event{Type: EventError, Err: err}
		p.emitResponse(events, buffer, fmt.Sprintf("planning failed: %v", err), plan, 0, 0)
		return
	}
	events <- Event{Type: EventPlanCreated, Extra: plan}

	stepsCompleted, stepsFailed := 0, 0

	for p.currentStep = 0; p.currentStep < len(plan.Steps); p.currentStep++ {
		step := plan.Steps[p.currentStep]

		select {
		case <-ctx.Done():
			p.emitResponse(events, buffer, "cancelled: "+ctx.Err().Error(), plan, stepsCompleted, stepsFailed)
			return
		default:
		}

		agent := p.findAgent(step.AgentName)
		if agent == nil {
			stepsFailed++
			continue
		}

		events <- Event{Type: EventStepStart, AgentName: agent.Name(), Extra: step}

		completed := p.runStepWithRetries(ctx, agent, step, &buffer, events)
		events <- Event{Type: EventStepEnd, AgentName: agent.Name(), Extra: step}

		if completed {
			stepsCompleted++
		} else {
			stepsFailed++
		}
	}

	reason := fmt.Sprintf("plan complete: %d/%d steps succeeded", stepsCompleted, len(plan.Steps))
	p.emitResponse(events, buffer, reason, plan, stepsCompleted, stepsFailed)
}

func (p *PlanOrchestrator) runStepWithRetries(ctx context.Context, agent Agent, step PlanStep, buffer *[]types.Message, events chan<- Event) bool {
	for attempt := 0; attempt <= p.maxStepRetries; attempt++ {
		turnCtx := types.NewAgentContext()
		for _, m := range *buffer {
			turnCtx.Append(m)
		}
		before := turnCtx.Len()

		resp, err := agent.Run(ctx, step.Task, turnCtx)
		if err != nil {
			p.retries[step.StepID]++
			continue
		}
		after := resp.Context.Messages()
		*buffer = append(*buffer, after[before:]...)

		progress, perr := p.evaluateProgress(ctx, step, *buffer)
		if perr != nil {
			p.retries[step.StepID]++
			continue
		}
		if progress.StepCompleted {
			return true
		}
		p.retries[step.StepID]++
	}
	return false
}

func (p *PlanOrchestrator) createPlan(ctx context.Context, task string) (Plan, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Produce a step-by-step plan for: %s\n\nAvailable agents:\n", task)
	for _, a := range p.agents {
		fmt.Fprintf(&b, "- %s: %s\n", a.Name(), a.Description())
	}
	b.WriteString("\nRespond with JSON: {\"steps\": [{\"step_id\", \"task\", \"agent_name\", \"reasoning\"}, ...]}.")

	result, err := p.client.Create(ctx, []types.Message{types.NewUserMessage("orchestrator", b.String())}, nil, &llm.OutputFormat{Spec: p.planSpec})
	if err != nil {
		return Plan{}, err
	}
	var plan Plan
	if err := json.Unmarshal([]byte(result.Message.Text), &plan); err != nil {
		return Plan{}, fmt.Errorf("parse plan: %w", err)
	}
	return plan, nil
}

func (p *PlanOrchestrator) evaluateProgress(ctx context.Context, step PlanStep, buffer []types.Message) (ProgressResult, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Evaluate whether this step is complete: %s\n\nRecent transcript:\n", step.Task)
	start := 0
	if len(buffer) > 6 {
		start = len(buffer) - 6
	}
	for _, m := range buffer[start:] {
		fmt.Fprintf(&b, "[%s/%s] %s\n", m.Role, m.Source, m.Text)
	}
	b.WriteString("\nRespond with JSON: {\"step_completed\": bool, \"confidence\": number, \"suggested_improvements\": [string]}.")

	result, err := p.client.Create(ctx, []types.Message{types.NewUserMessage("orchestrator", b.String())}, nil, &llm.OutputFormat{Spec: p.progressSpec})
	if err != nil {
		return ProgressResult{}, err
	}
	var progress ProgressResult
	if err := json.Unmarshal([]byte(result.Message.Text), &progress); err != nil {
		return ProgressResult{}, fmt.Errorf("parse progress: %w", err)
	}
	return progress, nil
}

func (p *PlanOrchestrator) findAgent(name string) Agent {
	for _, a := range p.agents {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

func (p *PlanOrchestrator) emitResponse(events chan<- Event, buffer []types.Message, stopReason string, plan Plan, completed, failed int) {
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
			Messages:    buffer,
			FinalResult: final,
			StopMessage: stopReason,
			PatternMetadata: map[string]any{
				"plan":            plan,
				"current_step":    p.currentStep,
				"steps_completed": completed,
				"steps_failed":    failed,
				"retry_counts":    p.retries,
			},
		},
	}
}

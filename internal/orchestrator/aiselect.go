package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kestrelai/agentkit/internal/schema"
	"github.com/kestrelai/agentkit/pkg/llm"
	"github.com/kestrelai/agentkit/pkg/types"
)

const decisionSchemaJSON = `{
  "type": "object",
  "properties": {
    "next_agent": {"type": "string"},
    "confidence": {"type": "number"},
    "rationale": {"type": "string"}
  },
  "required": ["next_agent"]
}`

type aiDecision struct {
	NextAgent  string  `json:"next_agent"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// AISelectionPolicy asks a model which agent should run next, given each
// agent's name/description and the recent transcript. Invalid selections
// fall back to round-robin.
type AISelectionPolicy struct {
	client           llm.ChatCompletionClient
	fallback         *RoundRobinPolicy
	transcriptWindow int
	decisionSpec     *schema.Spec
}

// NewAISelectionPolicy returns a policy issuing selection calls through
// client. transcriptWindow<=0 defaults to the last 10 messages.
func NewAISelectionPolicy(client llm.ChatCompletionClient, transcriptWindow int) (*AISelectionPolicy, error) {
	if transcriptWindow <= 0 {
		transcriptWindow = 10
	}
	spec, err := schema.Compile("orchestrator_selection", json.RawMessage(decisionSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("ai selection policy: %w", err)
	}
	return &AISelectionPolicy{
		client:           client,
		fallback:         NewRoundRobinPolicy(),
		transcriptWindow: transcriptWindow,
		decisionSpec:     spec,
	}, nil
}

func (p *AISelectionPolicy) Next(ctx context.Context, agents []Agent, transcript []types.Message, history []Selection) (Agent, Selection, error) {
	prompt := p.buildPrompt(agents, transcript)
	messages := []types.Message{types.NewUserMessage("orchestrator", prompt)}

	result, err := p.client.Create(ctx, messages, nil, &llm.OutputFormat{Spec: p.decisionSpec})
	if err != nil {
		return p.fallback.Next(ctx, agents, transcript, history)
	}

	var decision aiDecision
	if jerr := json.Unmarshal([]byte(result.Message.Text), &decision); jerr != nil {
		return p.fallback.Next(ctx, agents, transcript, history)
	}

	for _, a := range agents {
		if a.Name() == decision.NextAgent {
			return a, Selection{AgentName: a.Name(), Confidence: decision.Confidence, Rationale: decision.Rationale}, nil
		}
	}
	return p.fallback.Next(ctx, agents, transcript, history)
}

func (p *AISelectionPolicy) buildPrompt(agents []Agent, transcript []types.Message) string {
	var b strings.Builder
	b.WriteString("Select which agent should act next.\n\nAgents:\n")
	for _, a := range agents {
		fmt.Fprintf(&b, "- %s: %s\n", a.Name(), a.Description())
	}
	b.WriteString("\nRecent transcript:\n")
	start := 0
	if len(transcript) > p.transcriptWindow {
		start = len(transcript) - p.transcriptWindow
	}
	for _, m := range transcript[start:] {
		fmt.Fprintf(&b, "[%s/%s] %s\n", m.Role, m.Source, m.Text)
	}
	b.WriteString("\nRespond with JSON: {\"next_agent\": string, \"confidence\": number, \"rationale\": string}.")
	return b.String()
}

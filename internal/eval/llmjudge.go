package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kestrelai/agentkit/internal/schema"
	"github.com/kestrelai/agentkit/pkg/llm"
	"github.com/kestrelai/agentkit/pkg/types"
)

const llmScoreSchemaJSON = `{
  "type": "object",
  "properties": {
    "dimensions": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "score": {"type": "number"},
          "reasoning": {"type": "string"}
        },
        "required": ["score"]
      }
    }
  },
  "required": ["dimensions"]
}`

// LLMEvalJudge asks a model to score the trajectory along the configured
// criteria, each on a 0..10 scale; overall is the unweighted mean.
type LLMEvalJudge struct {
	client       llm.ChatCompletionClient
	criteria     []string
	instructions string
	spec         *schema.Spec
}

// NewLLMEvalJudge builds a judge scoring the given criteria through client.
// Empty criteria defaults to a single "correctness" dimension.
// customInstructions, if non-empty, is appended to the scoring prompt.
func NewLLMEvalJudge(client llm.ChatCompletionClient, criteria []string, customInstructions string) (*LLMEvalJudge, error) {
	if len(criteria) == 0 {
		criteria = []string{"correctness"}
	}
	spec, err := schema.Compile("llm_eval_score", json.RawMessage(llmScoreSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("llm eval judge: %w", err)
	}
	return &LLMEvalJudge{client: client, criteria: criteria, instructions: customInstructions, spec: spec}, nil
}

func (j *LLMEvalJudge) Score(ctx context.Context, task EvalTask, trajectory Trajectory) (Score, error) {
	prompt := j.buildPrompt(task, trajectory)
	messages := []types.Message{types.NewUserMessage("evaluator", prompt)}

	result, err := j.client.Create(ctx, messages, nil, &llm.OutputFormat{Spec: j.spec})
	if err != nil {
		return Score{}, fmt.Errorf("llm eval judge: %w", err)
	}

	var parsed struct {
		Dimensions map[string]struct {
			Score     float64 `json:"score"`
			Reasoning string  `json:"reasoning"`
		} `json:"dimensions"`
	}
	if err := json.Unmarshal([]byte(result.Message.Text), &parsed); err != nil {
		return Score{}, fmt.Errorf("llm eval judge: parse verdict: %w", err)
	}

	dimensions := make(map[string]float64)
	reasoning := make(map[string]string)
	var sum float64
	var count int
	for _, name := range j.criteria {
		d, ok := parsed.Dimensions[name]
		if !ok {
			continue
		}
		score := clamp(d.Score, 0, 10)
		dimensions[name] = score
		reasoning[name] = d.Reasoning
		sum += score
		count++
	}
	overall := 0.0
	if count > 0 {
		overall = sum / float64(count)
	}
	return Score{Overall: overall, Dimensions: dimensions, Reasoning: reasoning, Trajectory: trajectory}, nil
}

func (j *LLMEvalJudge) buildPrompt(task EvalTask, trajectory Trajectory) string {
	var b strings.Builder
	b.WriteString("Score the following agent run on each criterion from 0 to 10.\n\n")
	fmt.Fprintf(&b, "Task: %s\n", task.Input)
	if task.ExpectedOutput != "" {
		fmt.Fprintf(&b, "Expected output: %s\n", task.ExpectedOutput)
	}
	b.WriteString("\nTranscript:\n")
	for _, m := range trajectory.Messages {
		fmt.Fprintf(&b, "[%s/%s] %s\n", m.Role, m.Source, m.Text)
	}
	b.WriteString("\nCriteria: " + strings.Join(j.criteria, ", ") + "\n")
	if j.instructions != "" {
		b.WriteString(j.instructions + "\n")
	}
	b.WriteString("\nRespond with JSON: {\"dimensions\": {<criterion>: {\"score\": number, \"reasoning\": string}}}.")
	return b.String()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

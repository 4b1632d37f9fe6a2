package eval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kestrelai/agentkit/pkg/llm"
	"github.com/kestrelai/agentkit/pkg/types"
)

func trajectoryWith(texts ...string) Trajectory {
	traj := Trajectory{Task: "t"}
	for _, text := range texts {
		traj.Messages = append(traj.Messages, types.NewAssistantMessage("bot", text, nil))
	}
	return traj
}

func TestExtract(t *testing.T) {
	msgs := []types.Message{
		types.NewUserMessage("user", "question"),
		types.NewAssistantMessage("bot", "first answer", nil),
		types.NewToolMessage("calc", "c1", true, "42", ""),
		types.NewAssistantMessage("bot", "final answer", nil),
		types.NewToolMessage("calc", "c2", true, "", ""),
	}

	tests := []struct {
		strategy Extraction
		want     string
	}{
		{ExtractLastContent, ""},
		{ExtractLastAssistant, "final answer"},
		{ExtractAllAssistant, "first answer\nfinal answer"},
		{ExtractLastNonEmpty, "final answer"},
	}
	for _, tt := range tests {
		if got := Extract(msgs, tt.strategy); got != tt.want {
			t.Errorf("Extract(%s) = %q, want %q", tt.strategy, got, tt.want)
		}
	}

	if got := Extract(nil, ExtractLastContent); got != "" {
		t.Errorf("Extract on empty = %q, want empty", got)
	}
}

func TestExactMatchJudge(t *testing.T) {
	judge := &ExactMatchJudge{Extraction: ExtractLastAssistant}
	task := EvalTask{Name: "t", Input: "q", ExpectedOutput: "42"}

	score, err := judge.Score(context.Background(), task, trajectoryWith("42"))
	if err != nil || score.Overall != 10 {
		t.Errorf("exact match = (%v, %v), want 10", score.Overall, err)
	}
	score, _ = judge.Score(context.Background(), task, trajectoryWith("41"))
	if score.Overall != 0 {
		t.Errorf("mismatch = %v, want 0", score.Overall)
	}
}

func TestContainsJudge(t *testing.T) {
	judge := &ContainsJudge{Extraction: ExtractLastAssistant}
	task := EvalTask{ExpectedOutput: "Paris"}

	score, _ := judge.Score(context.Background(), task, trajectoryWith("The capital is paris."))
	if score.Overall != 10 {
		t.Errorf("case-insensitive contains = %v, want 10", score.Overall)
	}

	strict := &ContainsJudge{Extraction: ExtractLastAssistant, CaseSensitive: true}
	score, _ = strict.Score(context.Background(), task, trajectoryWith("The capital is paris."))
	if score.Overall != 0 {
		t.Errorf("case-sensitive contains = %v, want 0", score.Overall)
	}
}

func TestFuzzyMatchJudge(t *testing.T) {
	judge := &FuzzyMatchJudge{Extraction: ExtractLastAssistant, Threshold: 0.9}
	task := EvalTask{ExpectedOutput: "hello world"}

	score, _ := judge.Score(context.Background(), task, trajectoryWith("hello world!"))
	if score.Overall != 10 {
		t.Errorf("near match = %v, want 10 (above threshold)", score.Overall)
	}

	score, _ = judge.Score(context.Background(), task, trajectoryWith("completely different"))
	if score.Overall >= 5 {
		t.Errorf("distant match = %v, want low score", score.Overall)
	}
}

func TestLevenshteinRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1.0},
		{"abc", "abc", 1.0},
		{"abc", "", 0.0},
		{"kitten", "sitten", 1.0 - 1.0/6.0},
	}
	for _, tt := range tests {
		if got := levenshteinRatio(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshteinRatio(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCompositeJudge(t *testing.T) {
	task := EvalTask{ExpectedOutput: "42"}
	exact := &ExactMatchJudge{Extraction: ExtractLastAssistant}
	contains := &ContainsJudge{Extraction: ExtractLastAssistant}
	judge := &CompositeJudge{Judges: []WeightedJudge{
		{Judge: exact, Weight: 3},
		{Judge: contains, Weight: 1},
	}}

	// "the answer is 42": contains hits (10), exact misses (0).
	score, err := judge.Score(context.Background(), task, trajectoryWith("the answer is 42"))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score.Overall != 2.5 {
		t.Errorf("weighted overall = %v, want 2.5", score.Overall)
	}
	if len(score.Dimensions) != 2 {
		t.Errorf("dimensions = %v, want both children represented", score.Dimensions)
	}
}

func TestLLMEvalJudge(t *testing.T) {
	client := &stubClient{text: `{"dimensions": {
		"correctness": {"score": 8, "reasoning": "mostly right"},
		"clarity": {"score": 6, "reasoning": "wordy"}
	}}`}
	judge, err := NewLLMEvalJudge(client, []string{"correctness", "clarity"}, "be strict")
	if err != nil {
		t.Fatalf("NewLLMEvalJudge: %v", err)
	}

	score, err := judge.Score(context.Background(), EvalTask{Input: "q"}, trajectoryWith("a"))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score.Overall != 7 {
		t.Errorf("Overall = %v, want 7 (mean of 8 and 6)", score.Overall)
	}
	if score.Reasoning["clarity"] != "wordy" {
		t.Errorf("Reasoning = %v", score.Reasoning)
	}
}

func TestLLMEvalJudge_ClampsScores(t *testing.T) {
	client := &stubClient{text: `{"dimensions": {"correctness": {"score": 99}}}`}
	judge, err := NewLLMEvalJudge(client, nil, "")
	if err != nil {
		t.Fatalf("NewLLMEvalJudge: %v", err)
	}
	score, err := judge.Score(context.Background(), EvalTask{}, trajectoryWith("a"))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if score.Overall != 10 {
		t.Errorf("Overall = %v, want clamped 10", score.Overall)
	}
}

func TestRunner_ResultsInTaskOrder(t *testing.T) {
	target := &slowTarget{}
	judge := &ContainsJudge{Extraction: ExtractLastAssistant}

	tasks := []EvalTask{
		{Name: "t0", Input: "task-0", ExpectedOutput: "task-0"},
		{Name: "t1", Input: "task-1", ExpectedOutput: "task-1"},
		{Name: "t2", Input: "task-2", ExpectedOutput: "task-2"},
	}
	results := NewRunner(target, judge, 3, nil).Run(context.Background(), tasks)

	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	for i, res := range results {
		if res.Task.Name != fmt.Sprintf("t%d", i) {
			t.Errorf("results[%d] = %s, want task order preserved", i, res.Task.Name)
		}
		if res.Err != nil || res.Score.Overall != 10 {
			t.Errorf("results[%d] = (%v, %v)", i, res.Score.Overall, res.Err)
		}
	}
}

func TestRunner_TargetErrorCaptured(t *testing.T) {
	target := &slowTarget{failOn: "task-1"}
	judge := &ContainsJudge{Extraction: ExtractLastAssistant}

	tasks := []EvalTask{
		{Name: "t0", Input: "task-0", ExpectedOutput: "task-0"},
		{Name: "t1", Input: "task-1", ExpectedOutput: "task-1"},
	}
	results := NewRunner(target, judge, 1, nil).Run(context.Background(), tasks)

	if results[0].Err != nil {
		t.Errorf("results[0].Err = %v, want nil", results[0].Err)
	}
	if results[1].Err == nil {
		t.Error("results[1].Err = nil, want target failure captured")
	}

	mean, failures := Summary(results)
	if failures != 1 {
		t.Errorf("failures = %d, want 1", failures)
	}
	if mean != 10 {
		t.Errorf("mean = %v, want 10 over the one success", mean)
	}
}

func TestModelTarget(t *testing.T) {
	client := &stubClient{text: "model answer"}
	target := &ModelTarget{Client: client}

	traj, err := target.Run(context.Background(), "question")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(traj.Messages) != 2 {
		t.Fatalf("len(messages) = %d, want user + assistant", len(traj.Messages))
	}
	if traj.Messages[1].Role != types.RoleAssistant || traj.Messages[1].Text != "model answer" {
		t.Errorf("assistant message = %+v", traj.Messages[1])
	}
}

// stubClient returns one canned completion for every Create call.
type stubClient struct {
	text string
	err  error
}

func (c *stubClient) Create(ctx context.Context, messages []types.Message, tools []llm.ToolDeclaration, format *llm.OutputFormat) (llm.ChatCompletionResult, error) {
	if c.err != nil {
		return llm.ChatCompletionResult{}, c.err
	}
	return llm.ChatCompletionResult{
		Message:      types.NewAssistantMessage("", c.text, nil),
		FinishReason: "stop",
		Usage:        types.Usage{TokensInput: 10, TokensOutput: 5},
	}, nil
}

func (c *stubClient) CreateStream(ctx context.Context, messages []types.Message, tools []llm.ToolDeclaration, format *llm.OutputFormat) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}

// slowTarget echoes the task after a small jittered delay so concurrent
// completion order differs from submission order.
type slowTarget struct {
	mu     sync.Mutex
	calls  int
	failOn string
}

func (t *slowTarget) Name() string { return "slow" }

func (t *slowTarget) Run(ctx context.Context, task string) (Trajectory, error) {
	t.mu.Lock()
	call := t.calls
	t.calls++
	t.mu.Unlock()
	time.Sleep(time.Duration((3-call%3)*5) * time.Millisecond)
	if t.failOn != "" && task == t.failOn {
		return Trajectory{}, errors.New("target blew up")
	}
	return Trajectory{
		Task:     task,
		Messages: []types.Message{types.NewAssistantMessage("slow", task, nil)},
	}, nil
}

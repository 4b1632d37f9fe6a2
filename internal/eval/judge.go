package eval

import (
	"context"
	"fmt"
	"strings"
)

// EvalTask is one item of an evaluation suite.
type EvalTask struct {
	Name           string `json:"name" yaml:"name"`
	Input          string `json:"input" yaml:"input"`
	ExpectedOutput string `json:"expected_output" yaml:"expected_output"`
}

// Score is a judge's verdict on one trajectory. Overall runs 0..10;
// Dimensions break the verdict down by named criterion with per-dimension
// reasoning.
type Score struct {
	Overall    float64
	Dimensions map[string]float64
	Reasoning  map[string]string
	Trajectory Trajectory
}

// Judge scores a trajectory against a task.
type Judge interface {
	Score(ctx context.Context, task EvalTask, trajectory Trajectory) (Score, error)
}

// ExactMatchJudge scores 10 when the extracted answer equals the expected
// output exactly, 0 otherwise.
type ExactMatchJudge struct {
	Extraction Extraction
}

func (j *ExactMatchJudge) Score(ctx context.Context, task EvalTask, trajectory Trajectory) (Score, error) {
	answer := Extract(trajectory.Messages, j.Extraction)
	overall := 0.0
	reason := "answer does not match expected output"
	if answer == task.ExpectedOutput {
		overall = 10.0
		reason = "exact match"
	}
	return Score{
		Overall:    overall,
		Dimensions: map[string]float64{"exact_match": overall},
		Reasoning:  map[string]string{"exact_match": reason},
		Trajectory: trajectory,
	}, nil
}

// ContainsJudge scores 10 when the extracted answer contains the expected
// output as a substring, 0 otherwise.
type ContainsJudge struct {
	Extraction    Extraction
	CaseSensitive bool
}

func (j *ContainsJudge) Score(ctx context.Context, task EvalTask, trajectory Trajectory) (Score, error) {
	answer := Extract(trajectory.Messages, j.Extraction)
	expected := task.ExpectedOutput
	if !j.CaseSensitive {
		answer = strings.ToLower(answer)
		expected = strings.ToLower(expected)
	}
	overall := 0.0
	reason := "expected output not found in answer"
	if strings.Contains(answer, expected) {
		overall = 10.0
		reason = "expected output found in answer"
	}
	return Score{
		Overall:    overall,
		Dimensions: map[string]float64{"contains": overall},
		Reasoning:  map[string]string{"contains": reason},
		Trajectory: trajectory,
	}, nil
}

// FuzzyMatchJudge scores by normalized edit-distance similarity: 10 when
// similarity meets Threshold, otherwise similarity scaled to 0..10.
type FuzzyMatchJudge struct {
	Extraction Extraction
	// Threshold is the similarity ratio in 0..1 above which the answer
	// counts as a full match.
	Threshold float64
}

func (j *FuzzyMatchJudge) Score(ctx context.Context, task EvalTask, trajectory Trajectory) (Score, error) {
	answer := Extract(trajectory.Messages, j.Extraction)
	similarity := levenshteinRatio(answer, task.ExpectedOutput)
	overall := similarity * 10
	reason := "below similarity threshold"
	if similarity >= j.Threshold {
		overall = 10.0
		reason = "met similarity threshold"
	}
	return Score{
		Overall:    overall,
		Dimensions: map[string]float64{"fuzzy_match": similarity * 10},
		Reasoning:  map[string]string{"fuzzy_match": reason},
		Trajectory: trajectory,
	}, nil
}

// levenshteinRatio returns 1 - dist/maxLen, the similarity of a and b in
// 0..1. Two empty strings are identical.
func levenshteinRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	dist := levenshtein(ra, rb)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// WeightedJudge pairs a judge with its weight in a composite.
type WeightedJudge struct {
	Judge  Judge
	Weight float64
}

// CompositeJudge combines child verdicts as a weighted average of their
// overall scores, merging dimensions with the child's index appended as a
// suffix ("name_i") when names collide.
type CompositeJudge struct {
	Judges []WeightedJudge
}

func (j *CompositeJudge) Score(ctx context.Context, task EvalTask, trajectory Trajectory) (Score, error) {
	var totalWeight, weightedSum float64
	dimensions := make(map[string]float64)
	reasoning := make(map[string]string)

	for i, wj := range j.Judges {
		score, err := wj.Judge.Score(ctx, task, trajectory)
		if err != nil {
			return Score{}, err
		}
		totalWeight += wj.Weight
		weightedSum += score.Overall * wj.Weight
		for name, v := range score.Dimensions {
			key := name
			if _, exists := dimensions[key]; exists {
				key = fmt.Sprintf("%s_%d", name, i)
			}
			dimensions[key] = v
			if r, ok := score.Reasoning[name]; ok {
				reasoning[key] = r
			}
		}
	}

	overall := 0.0
	if totalWeight > 0 {
		overall = weightedSum / totalWeight
	}
	return Score{
		Overall:    overall,
		Dimensions: dimensions,
		Reasoning:  reasoning,
		Trajectory: trajectory,
	}, nil
}

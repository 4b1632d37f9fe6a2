package eval

import (
	"context"
	"sync"

	"github.com/kestrelai/agentkit/internal/logging"
)

// Result is one task's evaluated outcome. Err is set when the target run
// or the judge itself failed; Score is only meaningful when Err is nil.
type Result struct {
	Task  EvalTask
	Score Score
	Err   error
}

// Runner evaluates a list of tasks on one target with one judge,
// sequentially or with bounded concurrency. Results come back in task
// order regardless of completion order.
type Runner struct {
	target      Target
	judge       Judge
	concurrency int
	log         logging.Logger
}

// NewRunner builds a Runner. concurrency<=1 runs tasks sequentially.
func NewRunner(target Target, judge Judge, concurrency int, log logging.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Runner{target: target, judge: judge, concurrency: concurrency, log: log}
}

// Run evaluates every task and returns one Result per task, in task order.
func (r *Runner) Run(ctx context.Context, tasks []EvalTask) []Result {
	results := make([]Result, len(tasks))

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, task EvalTask) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = r.runOne(ctx, task)
		}(i, task)
	}
	wg.Wait()
	return results
}

func (r *Runner) runOne(ctx context.Context, task EvalTask) Result {
	trajectory, err := r.target.Run(ctx, task.Input)
	if err != nil {
		r.log.Warn("eval target failed", "task", task.Name, "target", r.target.Name(), "error", err.Error())
		return Result{Task: task, Err: err}
	}
	score, err := r.judge.Score(ctx, task, trajectory)
	if err != nil {
		r.log.Warn("eval judge failed", "task", task.Name, "error", err.Error())
		return Result{Task: task, Err: err}
	}
	r.log.Debug("eval task scored", "task", task.Name, "overall", score.Overall)
	return Result{Task: task, Score: score}
}

// Summary aggregates a result list: mean overall score over successful
// tasks plus the failure count.
func Summary(results []Result) (mean float64, failures int) {
	var sum float64
	var n int
	for _, res := range results {
		if res.Err != nil {
			failures++
			continue
		}
		sum += res.Score.Overall
		n++
	}
	if n > 0 {
		mean = sum / float64(n)
	}
	return mean, failures
}

package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kestrelai/agentkit/internal/errkind"
	"github.com/kestrelai/agentkit/internal/logging"
	"github.com/kestrelai/agentkit/internal/metrics"
)

// Runner executes one Workflow run: readiness scheduling, bounded
// concurrency across independent steps, shared context, and checkpointing.
// One Runner corresponds to exactly one run.
type Runner struct {
	wf          *Workflow
	checkpoint  *Config
	concurrency int
	log         logging.Logger
	metrics     *metrics.Collector
}

// WithMetrics records per-step counters and durations into collector and
// returns the Runner for chaining.
func (r *Runner) WithMetrics(collector *metrics.Collector) *Runner {
	r.metrics = collector
	return r
}

// NewRunner builds a Runner for wf. checkpoint may be nil to disable
// checkpointing entirely. concurrency<=0 bounds at the number of steps
// ready in any given round.
func NewRunner(wf *Workflow, checkpoint *Config, concurrency int, log logging.Logger) *Runner {
	if log == nil {
		log = logging.Nop()
	}
	return &Runner{wf: wf, checkpoint: checkpoint, concurrency: concurrency, log: log}
}

type runState struct {
	mu          sync.Mutex
	wctx        *Context
	completed   map[string]bool
	outputs     map[string]any
	sinceSave   int
	checkpointN int
}

// Run validates the workflow and executes it from scratch.
func (r *Runner) Run(ctx context.Context) (<-chan Event, error) {
	if err := r.wf.Validate(); err != nil {
		return nil, err
	}
	state := &runState{
		wctx:      NewContext(r.wf.InitialState),
		completed: make(map[string]bool),
		outputs:   make(map[string]any),
	}
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		events <- Event{Type: EventWorkflowStarted}
		r.execute(ctx, state, events)
	}()
	return events, nil
}

// Resume reconstructs shared state from checkpoint and restarts execution
// from the frontier, re-feeding completed steps' recorded outputs without
// re-executing them. It refuses to resume if the workflow's current
// structure hash doesn't match the checkpoint's.
func (r *Runner) Resume(ctx context.Context, checkpoint Checkpoint) (<-chan Event, error) {
	if err := r.wf.Validate(); err != nil {
		return nil, err
	}
	if checkpoint.StructureHash != r.wf.StructureHash() {
		return nil, errkind.Wrap(errkind.ResumeRefused, errkind.ErrStructureChanged, "workflow "+r.wf.Metadata.Name)
	}
	state := &runState{
		wctx:      NewContext(checkpoint.SharedState),
		completed: make(map[string]bool, len(checkpoint.CompletedStepIDs)),
		outputs:   make(map[string]any, len(checkpoint.StepOutputs)),
	}
	for _, id := range checkpoint.CompletedStepIDs {
		state.completed[id] = true
	}
	for id, out := range checkpoint.StepOutputs {
		state.outputs[id] = out
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		events <- Event{Type: EventWorkflowResumed, Checkpoint: &checkpoint}
		r.execute(ctx, state, events)
	}()
	return events, nil
}

type stepResult struct {
	id     string
	output any
	err    error
}

func (r *Runner) execute(ctx context.Context, state *runState, events chan<- Event) {
	for {
		select {
		case <-ctx.Done():
			events <- Event{Type: EventWorkflowFailed, Err: ctx.Err()}
			return
		default:
		}

		ready := r.readySteps(state)
		if len(ready) == 0 {
			break
		}

		bound := r.concurrency
		if bound <= 0 || bound > len(ready) {
			bound = len(ready)
		}
		sem := make(chan struct{}, bound)
		results := make(chan stepResult, len(ready))
		var wg sync.WaitGroup

		for _, id := range ready {
			wg.Add(1)
			sem <- struct{}{}
			go func(id string) {
				defer wg.Done()
				defer func() { <-sem }()
				events <- Event{Type: EventStepStarted, StepID: id}
				out, err := r.runStep(ctx, id, state)
				results <- stepResult{id: id, output: out, err: err}
			}(id)
		}
		wg.Wait()
		close(results)

		failed := false
		for res := range results {
			if res.err != nil {
				if r.metrics != nil {
					r.metrics.WorkflowSteps.WithLabelValues(res.id, "failed").Inc()
				}
				events <- Event{Type: EventWorkflowFailed, StepID: res.id, Err: res.err}
				failed = true
				continue
			}
			if r.metrics != nil {
				r.metrics.WorkflowSteps.WithLabelValues(res.id, "completed").Inc()
			}
			state.mu.Lock()
			state.completed[res.id] = true
			state.outputs[res.id] = res.output
			state.sinceSave++
			state.mu.Unlock()
			events <- Event{Type: EventStepCompleted, StepID: res.id, Output: res.output}
			r.maybeCheckpoint(state, events)
		}
		if failed {
			r.saveCheckpoint(state, events) // preserve partial outputs for a fixed-version resume
			return
		}
	}
	events <- Event{Type: EventWorkflowCompleted}
}

func (r *Runner) runStep(ctx context.Context, id string, state *runState) (any, error) {
	step := r.wf.Steps[id]
	preds := r.wf.Predecessors(id)

	if r.metrics != nil {
		start := time.Now()
		defer func() {
			r.metrics.StepDuration.WithLabelValues(id).Observe(time.Since(start).Seconds())
		}()
	}

	var input any
	switch len(preds) {
	case 0:
		input = r.wf.InitialState
	case 1:
		state.mu.Lock()
		input = state.outputs[preds[0]]
		state.mu.Unlock()
	default:
		// Fan-in: predecessor outputs in declared edge order, not
		// completion order.
		list := make([]any, len(preds))
		state.mu.Lock()
		for i, p := range preds {
			list[i] = state.outputs[p]
		}
		state.mu.Unlock()
		input = list
	}

	return step.Execute(ctx, input, state.wctx)
}

// readySteps returns, in deterministic step-id order, steps not yet
// completed whose predecessors have all completed.
func (r *Runner) readySteps(state *runState) []string {
	state.mu.Lock()
	defer state.mu.Unlock()
	var ready []string
	for _, id := range r.wf.orderedStepIDs() {
		if state.completed[id] {
			continue
		}
		allDone := true
		for _, p := range r.wf.Predecessors(id) {
			if !state.completed[p] {
				allDone = false
				break
			}
		}
		if allDone {
			ready = append(ready, id)
		}
	}
	return ready
}

func (r *Runner) maybeCheckpoint(state *runState, events chan<- Event) {
	if r.checkpoint == nil || r.checkpoint.Store == nil || !r.checkpoint.AutoSave {
		return
	}
	interval := r.checkpoint.SaveIntervalSteps
	if interval <= 0 {
		interval = DefaultSaveIntervalSteps
	}
	state.mu.Lock()
	due := state.sinceSave%interval == 0
	state.mu.Unlock()
	if due {
		r.saveCheckpoint(state, events)
	}
}

func (r *Runner) saveCheckpoint(state *runState, events chan<- Event) {
	if r.checkpoint == nil || r.checkpoint.Store == nil {
		return
	}
	state.mu.Lock()
	completed := make([]string, 0, len(state.completed))
	for id := range state.completed {
		completed = append(completed, id)
	}
	var pending []string
	for _, id := range r.wf.orderedStepIDs() {
		if !state.completed[id] {
			pending = append(pending, id)
		}
	}
	outputs := make(map[string]any, len(state.outputs))
	for id, out := range state.outputs {
		outputs[id] = out
	}
	state.mu.Unlock()

	cp := Checkpoint{
		CheckpointID:     uuid.NewString(),
		WorkflowID:       r.wf.ID,
		StructureHash:    r.wf.StructureHash(),
		Timestamp:        time.Now(),
		CompletedStepIDs: completed,
		PendingStepIDs:   pending,
		StepOutputs:      outputs,
		SharedState:      state.wctx.Snapshot(),
	}
	if err := r.checkpoint.Store.Save(cp); err != nil {
		r.log.Warn("checkpoint save failed", "workflow_id", r.wf.ID, "error", err.Error())
		return
	}
	events <- Event{Type: EventCheckpointSaved, Checkpoint: &cp}

	if r.checkpoint.AutoCleanup {
		r.cleanup()
	}
}

func (r *Runner) cleanup() {
	keep := r.checkpoint.KeepLastN
	if keep <= 0 {
		return
	}
	metas, err := r.checkpoint.Store.ListMetadata(r.wf.ID)
	if err != nil || len(metas) <= keep {
		return
	}
	// ListMetadata implementations return newest-first; drop the tail.
	for _, m := range metas[keep:] {
		_ = r.checkpoint.Store.Delete(m.CheckpointID)
	}
}

package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/kestrelai/agentkit/internal/errkind"
)

// Metadata describes a Workflow.
type Metadata struct {
	Name        string
	Description string
	Version     string
}

// Workflow is a DAG of Steps with an adjacency list of downstream edges.
type Workflow struct {
	ID           string
	Metadata     Metadata
	Steps        map[string]Step
	Edges        map[string][]string // step_id -> downstream step_ids, in declared order
	InitialState map[string]any

	// inbound mirrors Edges from the downstream side, in the order edges
	// were declared. Fan-in steps receive predecessor outputs in exactly
	// this order, so it must not be derived from map iteration.
	inbound map[string][]string
}

// New returns an empty Workflow ready for AddStep/AddEdge/Chain calls.
func New(name string) *Workflow {
	return &Workflow{
		ID:       uuid.NewString(),
		Metadata: Metadata{Name: name},
		Steps:    make(map[string]Step),
		Edges:    make(map[string][]string),
		inbound:  make(map[string][]string),
	}
}

// AddStep registers a step, returning the Workflow for chaining.
func (w *Workflow) AddStep(s Step) *Workflow {
	w.Steps[s.ID()] = s
	return w
}

// AddEdge declares a downstream dependency from -> to. The order edges are
// added is load-bearing for fan-in input ordering.
func (w *Workflow) AddEdge(from, to string) *Workflow {
	w.Edges[from] = append(w.Edges[from], to)
	w.inbound[to] = append(w.inbound[to], from)
	return w
}

// Chain is a fluent builder composing steps A→B→C by adding each edge in
// sequence.
func (w *Workflow) Chain(steps ...Step) *Workflow {
	for i, s := range steps {
		w.AddStep(s)
		if i > 0 {
			w.AddEdge(steps[i-1].ID(), s.ID())
		}
	}
	return w
}

// Predecessors returns the step ids with an edge into stepID, in the order
// those edges were declared.
func (w *Workflow) Predecessors(stepID string) []string {
	return w.inbound[stepID]
}

func (w *Workflow) orderedStepIDs() []string {
	ids := make([]string, 0, len(w.Steps))
	for id := range w.Steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// roots returns step ids with no inbound edge.
func (w *Workflow) roots() []string {
	hasInbound := make(map[string]bool)
	for _, downstream := range w.Edges {
		for _, id := range downstream {
			hasInbound[id] = true
		}
	}
	var out []string
	for _, id := range w.orderedStepIDs() {
		if !hasInbound[id] {
			out = append(out, id)
		}
	}
	return out
}

// terminals returns step ids with no outbound edge.
func (w *Workflow) terminals() []string {
	var out []string
	for _, id := range w.orderedStepIDs() {
		if len(w.Edges[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// Validate checks the graph is acyclic, has at least one root and at least
// one terminal step, and that every edge connects a type-compatible
// output→input pair.
func (w *Workflow) Validate() error {
	roots := w.roots()
	if len(roots) == 0 {
		return errkind.Wrap(errkind.Configuration, errkind.ErrWorkflowNoRoot, "workflow "+w.Metadata.Name)
	}
	if len(w.terminals()) == 0 {
		return errkind.Wrap(errkind.Configuration, errkind.ErrWorkflowNoTerm, "workflow "+w.Metadata.Name)
	}
	if w.hasCycle() {
		return errkind.Wrap(errkind.Configuration, errkind.ErrWorkflowCyclic, "workflow "+w.Metadata.Name)
	}
	for _, from := range w.orderedStepIDs() {
		upstream := w.Steps[from]
		for _, to := range w.Edges[from] {
			downstream, ok := w.Steps[to]
			if !ok {
				return fmt.Errorf("workflow %s: edge %s->%s: unknown step %s", w.Metadata.Name, from, to, to)
			}
			if upstream.OutputType() != nil && downstream.InputType() != nil &&
				!upstream.OutputType().AssignableTo(downstream.InputType()) {
				return errkind.Wrap(errkind.Configuration, errkind.ErrTypeMismatch,
					fmt.Sprintf("%s (%s) -> %s (%s)", from, upstream.OutputType(), to, downstream.InputType()))
			}
		}
	}
	return nil
}

func (w *Workflow) hasCycle() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, next := range w.Edges[id] {
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}
	for _, id := range w.orderedStepIDs() {
		if color[id] == white {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// StructureHash returns a deterministic hash of the workflow's steps and
// edges, used to refuse resuming from a checkpoint against a workflow whose
// shape has since changed.
func (w *Workflow) StructureHash() string {
	h := sha256.New()
	for _, id := range w.orderedStepIDs() {
		fmt.Fprintf(h, "step:%s\n", id)
		for _, to := range w.Edges[id] {
			fmt.Fprintf(h, "edge:%s->%s\n", id, to)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

package config

import (
	"fmt"

	"github.com/kestrelai/agentkit/internal/termination"
	"github.com/kestrelai/agentkit/internal/workflow"
)

// BuildTermination turns a TerminationDefinition into a runtime condition.
// With both MaxMessages and TextMention set, Mode selects the combinator
// ("all" for conjunction, anything else for disjunction).
func BuildTermination(def TerminationDefinition) (termination.Condition, error) {
	var conds []termination.Condition
	if def.MaxMessages > 0 {
		conds = append(conds, termination.NewMaxMessages(def.MaxMessages))
	}
	if def.TextMention != "" {
		conds = append(conds, termination.NewTextMention(def.TextMention, def.CaseSensitive))
	}
	switch len(conds) {
	case 0:
		return nil, fmt.Errorf("termination definition: no condition configured")
	case 1:
		return conds[0], nil
	}
	mode := termination.ModeAny
	if def.Mode == "all" {
		mode = termination.ModeAll
	}
	return termination.NewComposite(mode, conds...), nil
}

// BuildWorkflow assembles a runtime Workflow from a definition plus the
// step implementations, keyed by step id. Every declared step must have an
// implementation; the assembled workflow is graph-validated before return.
func BuildWorkflow(def *WorkflowDefinition, steps map[string]workflow.Step) (*workflow.Workflow, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	wf := workflow.New(def.Name)
	wf.Metadata.Description = def.Description
	wf.Metadata.Version = def.Version
	wf.InitialState = def.InitialState

	for _, s := range def.Steps {
		impl, ok := steps[s.ID]
		if !ok {
			return nil, fmt.Errorf("workflow definition %s: no implementation for step %q", def.Name, s.ID)
		}
		if impl.ID() != s.ID {
			return nil, fmt.Errorf("workflow definition %s: implementation id %q does not match step %q", def.Name, impl.ID(), s.ID)
		}
		wf.AddStep(impl)
	}
	for _, e := range def.Edges {
		wf.AddEdge(e.From, e.To)
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}

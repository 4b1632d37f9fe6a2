package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelai/agentkit/internal/checkpointstore"
	"github.com/kestrelai/agentkit/internal/config"
	"github.com/kestrelai/agentkit/internal/workflow"
)

// runWorkflowValidate loads a definition and runs full graph validation
// against placeholder step implementations, so structural problems (cycles,
// missing roots) surface without the caller's step code.
func runWorkflowValidate(cmd *cobra.Command, file string) error {
	def, err := config.LoadWorkflow(file)
	if err != nil {
		return err
	}

	steps := make(map[string]workflow.Step, len(def.Steps))
	for _, s := range def.Steps {
		steps[s.ID] = placeholderStep(s)
	}
	if _, err := config.BuildWorkflow(def, steps); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "workflow %q: %d steps, %d edges, OK\n",
		def.Name, len(def.Steps), len(def.Edges))
	return nil
}

// placeholderStep is a no-op implementation carrying the declared metadata.
// Types are left nil so edge type checks are skipped; those depend on the
// caller's real step implementations.
func placeholderStep(s config.StepDefinition) workflow.Step {
	return &workflow.FuncStep{
		StepID: s.ID,
		Meta:   workflow.StepMetadata{Name: s.Name, Description: s.Description},
		Fn: func(ctx context.Context, input any, wctx *workflow.Context) (any, error) {
			return nil, nil
		},
	}
}

func runOrchestratorValidate(cmd *cobra.Command, file string) error {
	cfg, err := config.LoadOrchestrator(file)
	if err != nil {
		return err
	}
	if _, err := config.BuildTermination(cfg.Termination); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "orchestrator %q (%s): %d agents, OK\n",
		cfg.Name, cfg.Type, len(cfg.Agents))
	return nil
}

func runCheckpointsList(cmd *cobra.Command, dir, workflowID string) error {
	store, err := checkpointstore.NewFile(dir)
	if err != nil {
		return err
	}
	metas, err := store.ListMetadata(workflowID)
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no checkpoints found")
		return nil
	}
	for _, m := range metas {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n",
			m.Timestamp.Format("2006-01-02 15:04:05"), m.WorkflowID, m.CheckpointID)
	}
	return nil
}

func runCheckpointsPrune(cmd *cobra.Command, dir, workflowID string, keep int) error {
	if keep < 1 {
		return fmt.Errorf("--keep must be at least 1")
	}
	store, err := checkpointstore.NewFile(dir)
	if err != nil {
		return err
	}
	metas, err := store.ListMetadata(workflowID)
	if err != nil {
		return err
	}
	if len(metas) <= keep {
		fmt.Fprintf(cmd.OutOrStdout(), "nothing to prune: %d checkpoints, keeping %d\n", len(metas), keep)
		return nil
	}
	for _, m := range metas[keep:] {
		if err := store.Delete(m.CheckpointID); err != nil {
			return err
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pruned %d checkpoints, kept %d\n", len(metas)-keep, keep)
	return nil
}

package main

import (
	"github.com/spf13/cobra"
)

func buildWorkflowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Work with workflow definitions",
	}

	var file string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate a workflow definition file",
		Long: `Validate a YAML workflow definition: unique step ids, edges that
reference declared steps, an acyclic graph, and at least one root and one
terminal step.`,
		Example: `  agentctl workflow validate -f pipeline.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflowValidate(cmd, file)
		},
	}
	validate.Flags().StringVarP(&file, "file", "f", "", "Path to the workflow definition YAML")
	_ = validate.MarkFlagRequired("file")

	cmd.AddCommand(validate)
	return cmd
}

func buildOrchestratorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orchestrator",
		Short: "Work with orchestration definitions",
	}

	var file string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate an orchestration definition file",
		Example: `  agentctl orchestrator validate -f team.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrchestratorValidate(cmd, file)
		},
	}
	validate.Flags().StringVarP(&file, "file", "f", "", "Path to the orchestration definition YAML")
	_ = validate.MarkFlagRequired("file")

	cmd.AddCommand(validate)
	return cmd
}

func buildCheckpointsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Inspect and prune a file-backed checkpoint store",
	}

	var dir, workflowID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List checkpoints in a store directory",
		Example: `  agentctl checkpoints list --dir ./checkpoints
  agentctl checkpoints list --dir ./checkpoints --workflow 7f3a...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckpointsList(cmd, dir, workflowID)
		},
	}
	list.Flags().StringVar(&dir, "dir", "", "Checkpoint store base directory")
	list.Flags().StringVar(&workflowID, "workflow", "", "Restrict to one workflow id")
	_ = list.MarkFlagRequired("dir")

	var keep int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest N checkpoints of a workflow",
		Example: `  agentctl checkpoints prune --dir ./checkpoints --workflow 7f3a... --keep 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckpointsPrune(cmd, dir, workflowID, keep)
		},
	}
	prune.Flags().StringVar(&dir, "dir", "", "Checkpoint store base directory")
	prune.Flags().StringVar(&workflowID, "workflow", "", "Workflow id to prune")
	prune.Flags().IntVar(&keep, "keep", 3, "Number of newest checkpoints to keep")
	_ = prune.MarkFlagRequired("dir")
	_ = prune.MarkFlagRequired("workflow")

	cmd.AddCommand(list, prune)
	return cmd
}

// Package main provides the agentctl CLI: offline tooling for validating
// orchestration and workflow definitions and for inspecting checkpoint
// stores. Running agents requires a model provider and stays in host code;
// agentctl only covers what can be done from disk.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "agentctl",
		Short:         "Inspect and validate agent workflow and orchestration definitions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		buildWorkflowCmd(),
		buildOrchestratorCmd(),
		buildCheckpointsCmd(),
		buildVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agentctl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

package main

import (
	"github.com/OFFIS-RIT/policygraph/internal/config"
	"github.com/OFFIS-RIT/policygraph/internal/util"

	"github.com/spf13/cobra"
)

// newOracle is replaced in tests.
var newOracle = config.NewOracle

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "policygraph",
		Short: "Turn policy documents into knowledge graphs and query them",
		Long: `policygraph segments a policy document, extracts entities and
relationships section by section, merges them into one graph and answers
questions about it with a tool-calling agent.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.LoadEnv()
			// stdout carries command output and the MCP protocol
			config.InitLogger("", cmd.ErrOrStderr())
		},
	}

	rootCmd.AddCommand(
		newBuildCmd(),
		newAskCmd(),
		newValidateCmd(),
		newExportCmd(),
		newMCPCmd(),
	)
	return rootCmd
}

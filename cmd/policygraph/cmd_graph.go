package main

import (
	"fmt"

	"github.com/OFFIS-RIT/policygraph/internal/config"
	"github.com/OFFIS-RIT/policygraph/internal/util"
	"github.com/OFFIS-RIT/policygraph/pkg/graph"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"
	"github.com/OFFIS-RIT/policygraph/pkg/query"
	"github.com/OFFIS-RIT/policygraph/pkg/query/mcp"
	"github.com/OFFIS-RIT/policygraph/pkg/store"
	"github.com/OFFIS-RIT/policygraph/pkg/store/neo4j"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate [graph.json]",
		Short: "Print the structural report of a policy graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := store.LoadGraph(args[0])
			if err != nil {
				return err
			}
			report := graph.Validate(g)
			if err := report.Write(cmd.OutOrStdout()); err != nil {
				return err
			}
			if strict && len(report.Issues) > 0 {
				return fmt.Errorf("%d issues found", len(report.Issues))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when the report lists issues")
	return cmd
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-neo4j [graph.json]",
		Short: "Write a policy graph into Neo4j (NEO4J_URI, NEO4J_USER, NEO4J_PASSWORD)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := store.LoadGraph(args[0])
			if err != nil {
				return err
			}

			exporter, err := neo4j.NewExporter(
				util.GetEnvString("NEO4J_URI", "bolt://localhost:7687"),
				util.GetEnvString("NEO4J_USER", "neo4j"),
				util.GetEnv("NEO4J_PASSWORD"),
				util.GetEnv("NEO4J_DATABASE"),
			)
			if err != nil {
				return err
			}
			defer exporter.Close()
			if err := exporter.Verify(); err != nil {
				return fmt.Errorf("neo4j is not reachable: %w", err)
			}

			stats, err := exporter.ExportGraph(cmd.Context(), g)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s: %d sections, %d entities, %d relationships\n",
				g.ID, stats.Sections, stats.Entities, stats.Relationships)
			return nil
		},
	}
}

func newMCPCmd() *cobra.Command {
	var withAgent bool
	cmd := &cobra.Command{
		Use:   "mcp [graph.json]",
		Short: "Serve the graph tools of a policy graph over MCP on stdio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := store.LoadGraph(args[0])
			if err != nil {
				return err
			}

			var agent *query.Agent
			if withAgent {
				oracle, err := newOracle()
				if err != nil {
					return err
				}
				agent = config.NewAgent(oracle)
			}

			logger.Info("[CLI] Serving graph", "graph_id", g.ID, "entities", len(g.Entities))
			return mcp.ServeStdio(mcp.NewServer(store.New(g), agent))
		},
	}
	cmd.Flags().BoolVar(&withAgent, "agent", false, "also expose an ask tool backed by the reasoning agent")
	return cmd
}

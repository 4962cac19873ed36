package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/policygraph/internal/config"
	"github.com/OFFIS-RIT/policygraph/pkg/common"
	"github.com/OFFIS-RIT/policygraph/pkg/store"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask [graph.json] [question]",
		Short: "Answer a question about a policy graph",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := store.LoadGraph(args[0])
			if err != nil {
				return err
			}
			oracle, err := newOracle()
			if err != nil {
				return err
			}

			question := strings.Join(args[1:], " ")
			resp, err := config.NewAgent(oracle).Ask(cmd.Context(), question, store.New(g))
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			printAnswer(cmd, resp)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full agent response as JSON")
	return cmd
}

func printAnswer(cmd *cobra.Command, resp common.AgentResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, resp.Answer)
	if len(resp.ReferencedEntities) > 0 {
		fmt.Fprintf(out, "\nEntities: %s\n", strings.Join(resp.ReferencedEntities, ", "))
	}
	if resp.Forced {
		fmt.Fprintf(out, "(forced answer after %d turns)\n", resp.TurnCount)
	}
}

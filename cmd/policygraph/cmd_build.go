package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/OFFIS-RIT/policygraph/internal/cache"
	"github.com/OFFIS-RIT/policygraph/internal/config"
	"github.com/OFFIS-RIT/policygraph/pkg/loader"
	"github.com/OFFIS-RIT/policygraph/pkg/loader/auto"
	ioloader "github.com/OFFIS-RIT/policygraph/pkg/loader/io"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"
	"github.com/OFFIS-RIT/policygraph/pkg/store"

	"github.com/spf13/cobra"
)

func newBuildCmd() *cobra.Command {
	var (
		output  string
		noCache bool
	)
	cmd := &cobra.Command{
		Use:   "build [file or url]",
		Short: "Build the knowledge graph of a policy document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runBuild(ctx, cmd, args[0], output, noCache)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "graph.json", "where to write the graph")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "ignore CACHE_DIR and extract every section again")
	return cmd
}

func runBuild(ctx context.Context, cmd *cobra.Command, path, output string, noCache bool) error {
	text, err := readDocument(ctx, path)
	if err != nil {
		return err
	}

	oracle, err := newOracle()
	if err != nil {
		return err
	}

	var responses *cache.Cache
	if !noCache {
		responses, err = config.OpenCache()
		if err != nil {
			return err
		}
		if responses != nil {
			defer responses.Close()
		}
	}
	client, err := config.NewGraphClient(responses)
	if err != nil {
		return err
	}

	g, err := client.Build(ctx, oracle, filepath.Base(path), text)
	if err != nil {
		return err
	}
	if err := store.SaveGraph(output, g); err != nil {
		return err
	}

	m := g.Metadata
	logger.Info("[CLI] Graph written",
		"path", output,
		"sections", m.SectionCount,
		"degraded", len(m.DegradedSections),
		"entities", len(g.Entities),
		"relationships", len(g.Relationships),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entities, %d relationships from %d sections\n",
		output, len(g.Entities), len(g.Relationships), m.SectionCount)
	return nil
}

// readDocument loads a local file or web page as normalized text.
func readDocument(ctx context.Context, path string) (string, error) {
	doc, err := loader.NewDocument(filepath.Base(path), path, auto.New(ioloader.NewIOLoader()))
	if err != nil {
		return "", err
	}
	return doc.GetText(ctx)
}

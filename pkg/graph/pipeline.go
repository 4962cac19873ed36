package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/policygraph/internal/metrics"
	"github.com/OFFIS-RIT/policygraph/pkg/ai"
	"github.com/OFFIS-RIT/policygraph/pkg/common"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// BuildOracle is what Build needs from a provider.
type BuildOracle interface {
	ai.StructuredOracle
	ai.CompletionOracle
}

type metricsReporter interface {
	GetMetrics() ai.ModelMetrics
}

// Build turns a document into a merged, verified graph. Oracle failures
// degrade single sections and are recorded in the graph metadata; only
// cancellation and an empty document are returned as errors.
func (g *GraphClient) Build(
	ctx context.Context,
	oracle BuildOracle,
	name string,
	doc string,
) (common.OntologyGraph, error) {
	if len(doc) == 0 {
		return common.OntologyGraph{}, ErrEmptyDocument
	}
	id, err := gonanoid.New()
	if err != nil {
		return common.OntologyGraph{}, fmt.Errorf("failed to generate graph ID: %w", err)
	}

	var before ai.ModelMetrics
	reporter, hasMetrics := oracle.(metricsReporter)
	if hasMetrics {
		before = reporter.GetMetrics()
	}

	logger.Info("[Graph] Building", "graph_id", id, "document", name, "chars", len(doc))
	timings := make(map[string]int64, 3)

	start := time.Now()
	sections, fallback, err := g.segment(ctx, oracle, doc)
	if err != nil {
		return common.OntologyGraph{}, fmt.Errorf("failed to segment document: %w", err)
	}
	timings["segment"] = metrics.ObserveStage("segment", start).Milliseconds()
	logger.Info("[Graph] Segmented", "graph_id", id, "sections", len(sections), "fallback", fallback)

	start = time.Now()
	results, err := g.ExtractAll(ctx, oracle, sections, doc)
	if err != nil {
		return common.OntologyGraph{}, fmt.Errorf("extraction interrupted: %w", err)
	}
	timings["extract"] = metrics.ObserveStage("extract", start).Milliseconds()

	start = time.Now()
	graph := g.Merge(results, doc)
	timings["merge"] = metrics.ObserveStage("merge", start).Milliseconds()

	graph.ID = id
	graph.CreatedAt = time.Now().UTC()
	graph.Metadata.DocumentName = name
	graph.Metadata.SegmentationFallback = fallback
	graph.Metadata.StageTimings = timings
	if hasMetrics {
		after := reporter.GetMetrics()
		graph.Metadata.OracleUsage = &common.OracleUsage{
			PromptTokens:     int64(after.InputTokens - before.InputTokens),
			CompletionTokens: int64(after.OutputTokens - before.OutputTokens),
			Requests:         int64(after.Requests - before.Requests),
		}
	}

	recordMergeMetrics(graph.Metadata)
	logger.Info("[Graph] Built",
		"graph_id", id,
		"entities", len(graph.Entities),
		"relationships", len(graph.Relationships),
		"degraded_sections", len(graph.Metadata.DegradedSections),
	)
	return graph, nil
}

func recordMergeMetrics(meta common.RunMetadata) {
	metrics.MergedEntities.Add(float64(meta.MergedEntities))
	metrics.DroppedRelationships.Add(float64(meta.DroppedRelationships))
	v := meta.Verification
	metrics.AnchorTiers.WithLabelValues(string(common.TierExact)).Add(float64(v.Exact))
	metrics.AnchorTiers.WithLabelValues(string(common.TierNormalized)).Add(float64(v.Normalized))
	metrics.AnchorTiers.WithLabelValues(string(common.TierFuzzy)).Add(float64(v.Fuzzy))
	metrics.AnchorTiers.WithLabelValues(string(common.TierUnverified)).Add(float64(v.Unverified))
}

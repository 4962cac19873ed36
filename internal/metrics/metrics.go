// Package metrics holds the Prometheus collectors of the pipeline, the
// worker and the agent. All collectors register with the default registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "policygraph"

var (
	// SectionsExtracted counts finished section extractions.
	// Labels: status (ok, degraded, cached)
	SectionsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "extract",
		Name:      "sections_total",
		Help:      "Sections extracted by outcome",
	}, []string{"status"})

	// OracleRetries counts retried oracle calls.
	// Labels: stage (segment, extract, agent)
	OracleRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "oracle",
		Name:      "retries_total",
		Help:      "Oracle calls retried after a transient failure",
	}, []string{"stage"})

	RejectedEntities = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "extract",
		Name:      "rejected_entities_total",
		Help:      "Entities dropped for an out of vocabulary type",
	})

	MergedEntities = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "merge",
		Name:      "merged_entities_total",
		Help:      "Pre-merge entities folded into another entity",
	})

	DroppedRelationships = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "merge",
		Name:      "dropped_relationships_total",
		Help:      "Relationships dropped for an unresolvable endpoint",
	})

	// AnchorTiers counts verified anchors.
	// Labels: tier (exact, normalized, fuzzy, unverified)
	AnchorTiers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "merge",
		Name:      "anchors_total",
		Help:      "Source anchors by verification tier",
	}, []string{"tier"})

	AgentTurns = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "agent",
		Name:      "turns",
		Help:      "Oracle turns used per question",
		Buckets:   []float64{1, 2, 3, 4, 5, 7, 10, 15, 20},
	})

	// AgentAnswers counts finished questions.
	// Labels: state (done, forced_answer)
	AgentAnswers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "agent",
		Name:      "answers_total",
		Help:      "Answered questions by terminal state",
	}, []string{"state"})

	// StageDuration measures pipeline stages.
	// Labels: stage (segment, extract, merge)
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	// Jobs counts processed queue jobs.
	// Labels: status (ok, retry, dead)
	Jobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "worker",
		Name:      "jobs_total",
		Help:      "Build jobs by outcome",
	}, []string{"status"})
)

// ObserveStage records the duration of a pipeline stage started at start.
func ObserveStage(stage string, start time.Time) time.Duration {
	d := time.Since(start)
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	return d
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

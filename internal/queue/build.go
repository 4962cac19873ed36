package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/policygraph/internal/metrics"
	"github.com/OFFIS-RIT/policygraph/pkg/common"
	"github.com/OFFIS-RIT/policygraph/pkg/graph"
	"github.com/OFFIS-RIT/policygraph/pkg/leaselock"
	"github.com/OFFIS-RIT/policygraph/pkg/loader"
	"github.com/OFFIS-RIT/policygraph/pkg/logger"
	graphstorage "github.com/OFFIS-RIT/policygraph/pkg/store/pgx"
)

// JobStore is the relational side of a build: job bookkeeping and the
// stored graph.
type JobStore interface {
	UpdateJob(ctx context.Context, id string, status graphstorage.JobStatus, graphID, errMsg string) error
	SaveGraph(ctx context.Context, g common.OntologyGraph) error
	DeleteGraph(ctx context.Context, id string) error
	ListStaleJobs(ctx context.Context, olderThan time.Duration) ([]graphstorage.Job, error)
}

// GraphBlobs keeps the graph JSON in object storage.
type GraphBlobs interface {
	PutGraph(ctx context.Context, g common.OntologyGraph) (string, error)
	DeleteGraph(ctx context.Context, id string) error
}

// Builder runs the document to graph pipeline.
type Builder interface {
	Build(ctx context.Context, oracle graph.BuildOracle, name string, doc string) (common.OntologyGraph, error)
}

// Locker serializes work on one key across workers.
type Locker interface {
	Do(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// Worker processes build and delete messages.
type Worker struct {
	Jobs    JobStore
	Blobs   GraphBlobs
	Loader  loader.Loader
	Builder Builder
	Oracle  graph.BuildOracle
	Locker  Locker
	// Events receives job outcome events. Optional.
	Events Publisher
}

var jobLease = leaselock.Options{
	TTL:  5 * time.Minute,
	Wait: false,
}

// ProcessBuildMessage builds and stores the graph of one uploaded document.
// The job row tracks progress; a failed build leaves the job in the failed
// state with the error message and returns the error for redelivery.
func (w *Worker) ProcessBuildMessage(ctx context.Context, body []byte) error {
	var msg BuildJobMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: invalid build message: %v", ErrPermanent, err)
	}
	if msg.JobID == "" || msg.DocumentKey == "" {
		return fmt.Errorf("%w: build message without job_id or document_key", ErrPermanent)
	}
	if msg.FileName == "" {
		msg.FileName = msg.DocumentKey
	}

	err := w.Locker.Do(ctx, "job:"+msg.JobID, jobLease, func(ctx context.Context) error {
		return w.build(ctx, msg)
	})
	if errors.Is(err, leaselock.ErrBusy) {
		logger.Info("[Queue] Job is being processed by another worker", "job_id", msg.JobID)
		return nil
	}
	return err
}

func (w *Worker) build(ctx context.Context, msg BuildJobMsg) (err error) {
	start := time.Now()
	logger.Info("[Queue] Building graph", "job_id", msg.JobID, "document", msg.FileName)

	if err := w.Jobs.UpdateJob(ctx, msg.JobID, graphstorage.JobProcessing, "", ""); err != nil {
		if errors.Is(err, graphstorage.ErrJobNotFound) {
			return fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		return err
	}

	defer func() {
		if err == nil {
			return
		}
		metrics.Jobs.WithLabelValues(string(graphstorage.JobFailed)).Inc()
		updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if updateErr := w.Jobs.UpdateJob(updateCtx, msg.JobID, graphstorage.JobFailed, "", err.Error()); updateErr != nil {
			logger.Warn("[Queue] Failed to mark job as failed", "job_id", msg.JobID, "err", updateErr)
		}
		w.publish(TopicGraphFailed, GraphEvent{JobID: msg.JobID, Status: string(graphstorage.JobFailed), Error: err.Error()})
	}()

	doc, err := loader.NewDocument(msg.JobID, msg.DocumentKey, w.Loader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	text, err := doc.GetText(ctx)
	if err != nil {
		return fmt.Errorf("failed to load document %s: %w", msg.DocumentKey, err)
	}

	g, err := w.Builder.Build(ctx, w.Oracle, msg.FileName, text)
	if err != nil {
		if errors.Is(err, graph.ErrEmptyDocument) {
			return fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		return fmt.Errorf("failed to build graph: %w", err)
	}

	key, err := w.Blobs.PutGraph(ctx, g)
	if err != nil {
		return fmt.Errorf("failed to upload graph: %w", err)
	}
	if err := w.Jobs.SaveGraph(ctx, g); err != nil {
		return fmt.Errorf("failed to save graph: %w", err)
	}
	if err := w.Jobs.UpdateJob(ctx, msg.JobID, graphstorage.JobCompleted, g.ID, ""); err != nil {
		return err
	}

	metrics.Jobs.WithLabelValues(string(graphstorage.JobCompleted)).Inc()
	w.publish(TopicGraphBuilt, GraphEvent{JobID: msg.JobID, GraphID: g.ID, Status: string(graphstorage.JobCompleted)})
	logger.Info("[Queue] Graph stored",
		"job_id", msg.JobID,
		"graph_id", g.ID,
		"key", key,
		"entities", len(g.Entities),
		"relationships", len(g.Relationships),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func (w *Worker) publish(topic string, ev GraphEvent) {
	if w.Events == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := PublishTopic(w.Events, topic, data); err != nil {
		logger.Warn("[Queue] Failed to publish event", "topic", topic, "err", err)
	}
}

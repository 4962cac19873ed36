package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/policygraph/pkg/logger"
	graphstorage "github.com/OFFIS-RIT/policygraph/pkg/store/pgx"
)

// StaleAfter is how long a job may stay pending or processing before it
// is considered abandoned.
const StaleAfter = 30 * time.Minute

// RecoverStaleJobs republishes build jobs whose worker died. The job lease
// keeps a recovered job from running twice.
func RecoverStaleJobs(ctx context.Context, pub Publisher, jobs JobStore) error {
	stale, err := jobs.ListStaleJobs(ctx, StaleAfter)
	if err != nil {
		return fmt.Errorf("failed to get stale jobs: %w", err)
	}

	if len(stale) == 0 {
		logger.Debug("[Queue] No stale jobs found")
		return nil
	}

	logger.Info("[Queue] Found stale jobs", "count", len(stale))

	for _, job := range stale {
		if err := jobs.UpdateJob(ctx, job.ID, graphstorage.JobPending, "", ""); err != nil {
			logger.Error("[Queue] Failed to reset job status", "job_id", job.ID, "err", err)
			continue
		}

		msgBytes, err := json.Marshal(BuildJobMsg{
			JobID:       job.ID,
			DocumentKey: job.DocumentKey,
			FileName:    job.FileName,
		})
		if err != nil {
			logger.Error("[Queue] Failed to marshal queue message", "job_id", job.ID, "err", err)
			continue
		}

		if err := PublishFIFO(pub, BuildQueue, msgBytes); err != nil {
			logger.Error("[Queue] Failed to republish job", "job_id", job.ID, "err", err)
			continue
		}

		logger.Info("[Queue] Recovered stale job", "job_id", job.ID, "document", job.FileName)
	}

	return nil
}

package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxv5 "github.com/jackc/pgx/v5"
)

var ErrJobNotFound = errors.New("job not found")

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Job tracks one document build from upload to stored graph.
type Job struct {
	ID          string    `json:"id"`
	DocumentKey string    `json:"document_key"`
	FileName    string    `json:"file_name"`
	Status      JobStatus `json:"status"`
	GraphID     string    `json:"graph_id,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *GraphDBStorage) CreateJob(ctx context.Context, id, documentKey, fileName string) error {
	if _, err := s.conn.Exec(ctx, insertJobSQL, id, documentKey, fileName, JobPending); err != nil {
		return fmt.Errorf("failed to create job %s: %w", id, err)
	}
	return nil
}

// UpdateJob moves a job to status. graphID and errMsg may be empty.
func (s *GraphDBStorage) UpdateJob(ctx context.Context, id string, status JobStatus, graphID, errMsg string) error {
	tag, err := s.conn.Exec(ctx, updateJobSQL, id, status, graphID, errMsg)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *GraphDBStorage) GetJob(ctx context.Context, id string) (Job, error) {
	var j Job
	err := s.conn.QueryRow(ctx, selectJobSQL, id).Scan(
		&j.ID, &j.DocumentKey, &j.FileName, &j.Status, &j.GraphID, &j.Error, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return Job{}, ErrJobNotFound
		}
		return Job{}, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return j, nil
}

// ListStaleJobs returns pending or processing jobs not touched for
// olderThan.
func (s *GraphDBStorage) ListStaleJobs(ctx context.Context, olderThan time.Duration) ([]Job, error) {
	rows, err := s.conn.Query(ctx, selectStaleJobsSQL, JobPending, JobProcessing, olderThan.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.DocumentKey, &j.FileName, &j.Status, &j.GraphID, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

const insertJobSQL = `
INSERT INTO build_jobs (id, document_key, file_name, status)
VALUES ($1, $2, $3, $4);
`

const updateJobSQL = `
UPDATE build_jobs
SET status = $2, graph_id = $3, error = $4, updated_at = now()
WHERE id = $1;
`

const selectJobSQL = `
SELECT id, document_key, file_name, status, graph_id, error, created_at, updated_at
FROM build_jobs
WHERE id = $1;
`

const selectStaleJobsSQL = `
SELECT id, document_key, file_name, status, graph_id, error, created_at, updated_at
FROM build_jobs
WHERE status IN ($1, $2)
  AND updated_at < now() - make_interval(secs => $3)
ORDER BY created_at;
`

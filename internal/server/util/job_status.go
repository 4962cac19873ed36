package util

import graphstorage "github.com/OFFIS-RIT/policygraph/pkg/store/pgx"

// JobRetryAfter is the polling delay in seconds suggested to clients for a
// job in status. Finished jobs return false.
func JobRetryAfter(status graphstorage.JobStatus) (int, bool) {
	switch status {
	case graphstorage.JobCompleted, graphstorage.JobFailed:
		return 0, false
	case graphstorage.JobPending:
		return 10, true
	default:
		return 5, true
	}
}

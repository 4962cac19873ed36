package util

import (
	"testing"

	graphstorage "github.com/OFFIS-RIT/policygraph/pkg/store/pgx"
)

func TestJobRetryAfter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status graphstorage.JobStatus
		want   int
		wantOK bool
	}{
		{name: "pending_polls_slowly", status: graphstorage.JobPending, want: 10, wantOK: true},
		{name: "processing_polls", status: graphstorage.JobProcessing, want: 5, wantOK: true},
		{name: "completed_is_final", status: graphstorage.JobCompleted, want: 0, wantOK: false},
		{name: "failed_is_final", status: graphstorage.JobFailed, want: 0, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := JobRetryAfter(tt.status)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("JobRetryAfter(%q) = %d, %v, want %d, %v", tt.status, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

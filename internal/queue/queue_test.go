package queue

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OFFIS-RIT/policygraph/pkg/common"
	"github.com/OFFIS-RIT/policygraph/pkg/graph"
	"github.com/OFFIS-RIT/policygraph/pkg/leaselock"
	"github.com/OFFIS-RIT/policygraph/pkg/loader"
	graphstorage "github.com/OFFIS-RIT/policygraph/pkg/store/pgx"

	"github.com/rabbitmq/amqp091-go"
)

type statusUpdate struct {
	status  graphstorage.JobStatus
	graphID string
	errMsg  string
}

type fakeJobs struct {
	mu       sync.Mutex
	known    map[string]bool
	updates  []statusUpdate
	saved    []string
	deleted  []string
	stale    []graphstorage.Job
	saveErr  error
	deleteFn func(id string) error
}

func (f *fakeJobs) UpdateJob(ctx context.Context, id string, status graphstorage.JobStatus, graphID, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.known != nil && !f.known[id] {
		return graphstorage.ErrJobNotFound
	}
	f.updates = append(f.updates, statusUpdate{status, graphID, errMsg})
	return nil
}

func (f *fakeJobs) SaveGraph(ctx context.Context, g common.OntologyGraph) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, g.ID)
	return nil
}

func (f *fakeJobs) DeleteGraph(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		if err := f.deleteFn(id); err != nil {
			return err
		}
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeJobs) ListStaleJobs(ctx context.Context, olderThan time.Duration) ([]graphstorage.Job, error) {
	return f.stale, nil
}

type fakeBlobs struct {
	put     []string
	deleted []string
}

func (f *fakeBlobs) PutGraph(ctx context.Context, g common.OntologyGraph) (string, error) {
	f.put = append(f.put, g.ID)
	return "graphs/" + g.ID + ".json", nil
}

func (f *fakeBlobs) DeleteGraph(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeBuilder struct {
	name string
	doc  string
	err  error
}

func (f *fakeBuilder) Build(ctx context.Context, oracle graph.BuildOracle, name string, doc string) (common.OntologyGraph, error) {
	f.name, f.doc = name, doc
	if f.err != nil {
		return common.OntologyGraph{}, f.err
	}
	return common.OntologyGraph{
		Version:  common.GraphVersion,
		ID:       "g1",
		Entities: []common.Entity{{ID: "s1_policy", Type: "Policy", Name: "Travel Policy"}},
	}, nil
}

type textLoader string

func (t textLoader) GetText(ctx context.Context, doc loader.Document) ([]byte, error) {
	return []byte(t), nil
}

type directLocker struct {
	keys []string
	busy bool
}

func (l *directLocker) Do(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error {
	l.keys = append(l.keys, key)
	if l.busy {
		return leaselock.ErrBusy
	}
	return fn(ctx)
}

type published struct {
	exchange string
	key      string
	msg      amqp091.Publishing
}

type fakePublisher struct {
	out []published
	err error
}

func (p *fakePublisher) Publish(exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if p.err != nil {
		return p.err
	}
	p.out = append(p.out, published{exchange, key, msg})
	return nil
}

func newWorker() (*Worker, *fakeJobs, *fakeBlobs, *fakeBuilder, *fakePublisher) {
	jobs := &fakeJobs{}
	blobs := &fakeBlobs{}
	builder := &fakeBuilder{}
	events := &fakePublisher{}
	w := &Worker{
		Jobs:    jobs,
		Blobs:   blobs,
		Loader:  textLoader("# Travel Policy\r\n\r\nAll trips need approval.  \r\n"),
		Builder: builder,
		Locker:  &directLocker{},
		Events:  events,
	}
	return w, jobs, blobs, builder, events
}

func buildMsg(t *testing.T, m BuildJobMsg) []byte {
	t.Helper()
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestProcessBuildMessage(t *testing.T) {
	w, jobs, blobs, builder, events := newWorker()

	err := w.ProcessBuildMessage(context.Background(), buildMsg(t, BuildJobMsg{
		JobID:       "job1",
		DocumentKey: "documents/job1.md",
		FileName:    "travel.md",
	}))
	if err != nil {
		t.Fatalf("ProcessBuildMessage() error = %v", err)
	}

	if builder.name != "travel.md" {
		t.Errorf("Build() name = %q, want %q", builder.name, "travel.md")
	}
	if want := "# Travel Policy\n\nAll trips need approval.\n"; builder.doc != want {
		t.Errorf("Build() doc = %q, want %q", builder.doc, want)
	}

	wantUpdates := []statusUpdate{
		{graphstorage.JobProcessing, "", ""},
		{graphstorage.JobCompleted, "g1", ""},
	}
	if !reflect.DeepEqual(jobs.updates, wantUpdates) {
		t.Errorf("updates = %v, want %v", jobs.updates, wantUpdates)
	}
	if !reflect.DeepEqual(jobs.saved, []string{"g1"}) || !reflect.DeepEqual(blobs.put, []string{"g1"}) {
		t.Errorf("saved = %v, put = %v, want [g1] in both", jobs.saved, blobs.put)
	}
	if !reflect.DeepEqual(w.Locker.(*directLocker).keys, []string{"job:job1"}) {
		t.Errorf("lease keys = %v", w.Locker.(*directLocker).keys)
	}

	if len(events.out) != 1 || events.out[0].key != TopicGraphBuilt || events.out[0].exchange != EventExchange {
		t.Fatalf("events = %+v, want one %s event", events.out, TopicGraphBuilt)
	}
	var ev GraphEvent
	json.Unmarshal(events.out[0].msg.Body, &ev)
	if ev != (GraphEvent{JobID: "job1", GraphID: "g1", Status: "completed"}) {
		t.Errorf("event = %+v", ev)
	}
}

func TestProcessBuildMessageFailures(t *testing.T) {
	tests := []struct {
		name          string
		body          []byte
		buildErr      error
		saveErr       error
		wantPermanent bool
		wantFailed    bool
	}{
		{
			name:          "malformed json",
			body:          []byte("{"),
			wantPermanent: true,
		},
		{
			name:          "missing key",
			body:          []byte(`{"job_id":"job1"}`),
			wantPermanent: true,
		},
		{
			name:          "unsupported type",
			body:          []byte(`{"job_id":"job1","document_key":"documents/job1.xlsx"}`),
			wantPermanent: true,
			wantFailed:    true,
		},
		{
			name:          "empty document",
			body:          []byte(`{"job_id":"job1","document_key":"documents/job1.txt"}`),
			buildErr:      graph.ErrEmptyDocument,
			wantPermanent: true,
			wantFailed:    true,
		},
		{
			name:       "build interrupted",
			body:       []byte(`{"job_id":"job1","document_key":"documents/job1.txt"}`),
			buildErr:   context.DeadlineExceeded,
			wantFailed: true,
		},
		{
			name:       "save fails",
			body:       []byte(`{"job_id":"job1","document_key":"documents/job1.txt"}`),
			saveErr:    errors.New("connection reset"),
			wantFailed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, jobs, _, builder, events := newWorker()
			builder.err = tt.buildErr
			jobs.saveErr = tt.saveErr

			err := w.ProcessBuildMessage(context.Background(), tt.body)
			if err == nil {
				t.Fatal("ProcessBuildMessage() error = nil")
			}
			if got := errors.Is(err, ErrPermanent); got != tt.wantPermanent {
				t.Errorf("errors.Is(err, ErrPermanent) = %v, want %v (err = %v)", got, tt.wantPermanent, err)
			}

			failed := len(jobs.updates) > 0 && jobs.updates[len(jobs.updates)-1].status == graphstorage.JobFailed
			if failed != tt.wantFailed {
				t.Errorf("job failed = %v, want %v (updates = %v)", failed, tt.wantFailed, jobs.updates)
			}
			if tt.wantFailed {
				last := jobs.updates[len(jobs.updates)-1]
				if last.errMsg == "" {
					t.Error("failed job has no error message")
				}
				if len(events.out) != 1 || events.out[0].key != TopicGraphFailed {
					t.Errorf("events = %+v, want one %s event", events.out, TopicGraphFailed)
				}
			}
		})
	}
}

func TestProcessBuildMessageUnknownJob(t *testing.T) {
	w, jobs, _, _, _ := newWorker()
	jobs.known = map[string]bool{}
	err := w.ProcessBuildMessage(context.Background(), []byte(`{"job_id":"gone","document_key":"documents/gone.txt"}`))
	if !errors.Is(err, ErrPermanent) {
		t.Errorf("ProcessBuildMessage() error = %v, want ErrPermanent", err)
	}
}

func TestProcessBuildMessageBusy(t *testing.T) {
	w, jobs, _, _, _ := newWorker()
	w.Locker = &directLocker{busy: true}
	if err := w.ProcessBuildMessage(context.Background(), []byte(`{"job_id":"job1","document_key":"documents/job1.txt"}`)); err != nil {
		t.Errorf("ProcessBuildMessage() error = %v, want nil", err)
	}
	if len(jobs.updates) != 0 {
		t.Errorf("updates = %v, want none", jobs.updates)
	}
}

func TestProcessDeleteMessage(t *testing.T) {
	w, jobs, blobs, _, events := newWorker()
	jobs.deleteFn = func(id string) error { return graphstorage.ErrGraphNotFound }

	if err := w.ProcessDeleteMessage(context.Background(), []byte(`{"graph_id":"g1"}`)); err != nil {
		t.Fatalf("ProcessDeleteMessage() error = %v", err)
	}
	if !reflect.DeepEqual(blobs.deleted, []string{"g1"}) {
		t.Errorf("blob deletes = %v, want [g1]", blobs.deleted)
	}
	if len(events.out) != 1 || events.out[0].key != TopicGraphDeleted {
		t.Errorf("events = %+v", events.out)
	}

	if err := w.ProcessDeleteMessage(context.Background(), []byte(`{}`)); !errors.Is(err, ErrPermanent) {
		t.Errorf("ProcessDeleteMessage({}) error = %v, want ErrPermanent", err)
	}
}

func TestRecoverStaleJobs(t *testing.T) {
	jobs := &fakeJobs{stale: []graphstorage.Job{
		{ID: "a", DocumentKey: "documents/a.pdf", FileName: "a.pdf", Status: graphstorage.JobProcessing},
		{ID: "b", DocumentKey: "documents/b.md", FileName: "b.md", Status: graphstorage.JobPending},
	}}
	pub := &fakePublisher{}

	if err := RecoverStaleJobs(context.Background(), pub, jobs); err != nil {
		t.Fatalf("RecoverStaleJobs() error = %v", err)
	}
	if len(pub.out) != 2 {
		t.Fatalf("published %d messages, want 2", len(pub.out))
	}
	var msg BuildJobMsg
	json.Unmarshal(pub.out[0].msg.Body, &msg)
	want := BuildJobMsg{JobID: "a", DocumentKey: "documents/a.pdf", FileName: "a.pdf"}
	if msg != want || pub.out[0].key != BuildQueue {
		t.Errorf("message = %+v to %q, want %+v to %q", msg, pub.out[0].key, want, BuildQueue)
	}
	for _, u := range jobs.updates {
		if u.status != graphstorage.JobPending {
			t.Errorf("status = %v, want pending", u.status)
		}
	}
}

type fakeAck struct {
	acked, nacked, requeued bool
}

func (a *fakeAck) Ack(tag uint64, multiple bool) error {
	a.acked = true
	return nil
}

func (a *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}

func (a *fakeAck) Reject(tag uint64, requeue bool) error {
	return nil
}

func TestHandleProcessingError(t *testing.T) {
	tests := []struct {
		name        string
		headers     amqp091.Table
		cause       error
		pubErr      error
		wantQueue   string
		wantRetries any
		wantRequeue bool
	}{
		{"first failure", nil, errors.New("x"), nil, "build_queue_retry", int32(1), false},
		{"int64 header", amqp091.Table{"x-retries": int64(3)}, errors.New("x"), nil, "build_queue_retry", int32(4), false},
		{"exhausted", amqp091.Table{"x-retries": int32(MaxRetries)}, errors.New("x"), nil, "build_queue_dlq", int32(MaxRetries), false},
		{"permanent", nil, ErrPermanent, nil, "build_queue_dlq", nil, false},
		{"publish fails", nil, errors.New("x"), errors.New("closed"), "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAck{}
			pub := &fakePublisher{err: tt.pubErr}
			msg := amqp091.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte("{}"), Headers: tt.headers}

			HandleProcessingError(pub, msg, BuildQueue, tt.cause)

			if tt.wantRequeue {
				if !ack.nacked || !ack.requeued {
					t.Errorf("message not requeued: %+v", ack)
				}
				return
			}
			if !ack.acked {
				t.Error("message not acked")
			}
			if len(pub.out) != 1 || pub.out[0].key != tt.wantQueue {
				t.Fatalf("published = %+v, want one message to %s", pub.out, tt.wantQueue)
			}
			if got := pub.out[0].msg.Headers["x-retries"]; got != tt.wantRetries {
				t.Errorf("x-retries = %v (%T), want %v (%T)", got, got, tt.wantRetries, tt.wantRetries)
			}
			if strings.HasSuffix(tt.wantQueue, "_dlq") && pub.out[0].msg.Headers["x-error"] == nil {
				t.Error("dead letter has no x-error header")
			}
		})
	}
}

package leaselock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB keeps leases in memory and ignores expiry.
type fakeDB struct {
	mu     sync.Mutex
	leases map[string]string
}

type row struct {
	val string
	err error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.val
	return nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, holder := args[0].(string), args[1].(string)
	cur, held := f.leases[key]
	switch sql {
	case acquireSQL:
		if held && cur != holder {
			return row{err: pgx.ErrNoRows}
		}
		f.leases[key] = holder
		return row{val: key}
	case renewSQL:
		if cur != holder {
			return row{err: pgx.ErrNoRows}
		}
		return row{val: key}
	}
	return row{err: errors.New("unexpected query")}
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, holder := args[0].(string), args[1].(string)
	if f.leases[key] == holder {
		delete(f.leases, key)
	}
	return pgconn.CommandTag{}, nil
}

func TestAcquireBusyAndRelease(t *testing.T) {
	db := &fakeDB{leases: map[string]string{}}
	l := New(db)
	ctx := context.Background()

	first, err := l.Acquire(ctx, "doc:abc", Options{Holder: "w1-"})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := l.Acquire(ctx, "doc:abc", Options{Holder: "w2-"}); !errors.Is(err, ErrBusy) {
		t.Errorf("second Acquire() error = %v, want ErrBusy", err)
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if first.Context.Err() == nil {
		t.Errorf("lease context not cancelled after Release()")
	}
	second, err := l.Acquire(ctx, "doc:abc", Options{})
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	_ = second.Release(ctx)
}

func TestLeaseLostCancelsContext(t *testing.T) {
	db := &fakeDB{leases: map[string]string{}}
	l := New(db)

	lease, err := l.Acquire(context.Background(), "doc:abc", Options{TTL: 2 * time.Second, RenewEvery: time.Second})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	db.mu.Lock()
	db.leases["doc:abc"] = "someone else"
	db.mu.Unlock()

	select {
	case <-lease.Context.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("lease context not cancelled after takeover")
	}
	if cause := context.Cause(lease.Context); !errors.Is(cause, ErrLost) {
		t.Errorf("Cause() = %v, want ErrLost", cause)
	}
}

func TestDoRequiresKey(t *testing.T) {
	l := New(&fakeDB{leases: map[string]string{}})
	err := l.Do(context.Background(), "", Options{}, func(context.Context) error { return nil })
	if err == nil {
		t.Errorf("Do() with empty key error = nil")
	}
}

// Package leaselock provides expiring, renewable leases stored in
// PostgreSQL. Workers take a lease on a document before building its graph
// so a redelivered message does not start a second build of the same
// document.
package leaselock

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/OFFIS-RIT/policygraph/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrBusy = errors.New("lease is held by another worker")
	ErrLost = errors.New("lease lost")
)

const (
	defaultTTL          = 5 * time.Minute
	defaultWaitInterval = 250 * time.Millisecond
	renewAttempts       = 3
)

type dbConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Locker hands out leases.
type Locker struct {
	db dbConn
}

type Options struct {
	// TTL is how long a lease survives without renewal.
	TTL time.Duration
	// RenewEvery defaults to half the TTL.
	RenewEvery time.Duration

	// Wait blocks until the lease is free instead of returning ErrBusy.
	Wait         bool
	WaitInterval time.Duration
	WaitJitter   time.Duration

	// Holder prefixes the random holder token, e.g. the worker name.
	Holder string
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = defaultTTL
	}
	if o.RenewEvery <= 0 || o.RenewEvery >= o.TTL {
		o.RenewEvery = max(o.TTL/2, time.Second)
	}
	if o.WaitInterval <= 0 {
		o.WaitInterval = defaultWaitInterval
	}
	o.WaitJitter = max(o.WaitJitter, 0)
	return o
}

// Lease is held until Release or until renewal fails. Context is cancelled
// in both cases; its cause is ErrLost when the lease was taken over.
type Lease struct {
	Key     string
	Holder  string
	Context context.Context

	locker *Locker
	cancel context.CancelCauseFunc
	once   sync.Once
	stop   chan struct{}
}

func New(db dbConn) *Locker {
	return &Locker{db: db}
}

// Do runs fn while holding the lease on key.
func (l *Locker) Do(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	lease, err := l.Acquire(ctx, key, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.Background()); err != nil {
			logger.Warn("[Lease] Failed to release", "key", key, "err", err)
		}
	}()
	return fn(lease.Context)
}

func (l *Locker) Acquire(ctx context.Context, key string, opts Options) (*Lease, error) {
	if key == "" {
		return nil, errors.New("lease key is empty")
	}
	opts = opts.withDefaults()
	ttlMs := opts.TTL.Milliseconds()

	token, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	holder := opts.Holder + token

	for {
		ok, err := l.tryAcquire(ctx, key, holder, ttlMs)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if !opts.Wait {
			return nil, ErrBusy
		}
		if err := sleepWithJitter(ctx, opts.WaitInterval, opts.WaitJitter); err != nil {
			return nil, err
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	lease := &Lease{
		Key:     key,
		Holder:  holder,
		Context: leaseCtx,
		locker:  l,
		cancel:  cancel,
		stop:    make(chan struct{}),
	}
	go lease.keepAlive(opts.RenewEvery, ttlMs)
	logger.Debug("[Lease] Acquired", "key", key, "holder", holder)
	return lease, nil
}

func (l *Locker) tryAcquire(ctx context.Context, key, holder string, ttlMs int64) (bool, error) {
	var got string
	err := l.db.QueryRow(ctx, acquireSQL, key, holder, ttlMs).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return got != "", nil
}

func (l *Lease) Release(ctx context.Context) error {
	l.once.Do(func() {
		close(l.stop)
		l.cancel(context.Canceled)
	})
	_, err := l.locker.db.Exec(ctx, releaseSQL, l.Key, l.Holder)
	return err
}

func (l *Lease) keepAlive(every time.Duration, ttlMs int64) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-l.Context.Done():
			return
		case <-t.C:
			if err := l.renew(ttlMs); err != nil {
				logger.Warn("[Lease] Renewal failed", "key", l.Key, "err", err)
				l.cancel(err)
				return
			}
		}
	}
}

func (l *Lease) renew(ttlMs int64) error {
	var err error
	for attempt := range renewAttempts {
		ctx, cancel := context.WithTimeout(l.Context, 15*time.Second)
		var got string
		err = l.locker.db.QueryRow(ctx, renewSQL, l.Key, l.Holder, ttlMs).Scan(&got)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLost
		}
		if attempt < renewAttempts-1 {
			if err := sleepWithJitter(l.Context, 200*time.Millisecond, 0); err != nil {
				return err
			}
		}
	}
	return err
}

func sleepWithJitter(ctx context.Context, base, jitter time.Duration) error {
	d := base
	if jitter > 0 {
		d += time.Duration(rand.Int64N(int64(jitter) + 1))
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const acquireSQL = `
INSERT INTO build_leases (lease_key, holder, expires_at)
VALUES ($1, $2, now() + ($3::bigint * interval '1 millisecond'))
ON CONFLICT (lease_key) DO UPDATE
SET holder     = EXCLUDED.holder,
    expires_at = EXCLUDED.expires_at
WHERE build_leases.expires_at < now()
   OR build_leases.holder = EXCLUDED.holder
RETURNING lease_key;
`

const renewSQL = `
UPDATE build_leases
SET expires_at = now() + ($3::bigint * interval '1 millisecond')
WHERE lease_key = $1 AND holder = $2
RETURNING lease_key;
`

const releaseSQL = `
DELETE FROM build_leases
WHERE lease_key = $1 AND holder = $2;
`

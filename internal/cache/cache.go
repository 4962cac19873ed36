// Package cache persists raw oracle responses so re-running a document does
// not pay for sections that were already extracted.
package cache

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/OFFIS-RIT/policygraph/pkg/logger"

	"github.com/dgraph-io/badger/v4"
)

const keyPrefix = "extract:"

type Config struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir      string
	InMemory bool
	// TTL expires entries. Zero keeps them forever.
	TTL time.Duration
}

// Cache is a BadgerDB backed response cache. It is safe for concurrent use.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	logger.Error(fmt.Sprintf("[Cache] "+format, args...))
}

func (badgerLogger) Warningf(format string, args ...any) {
	logger.Warn(fmt.Sprintf("[Cache] "+format, args...))
}

func (badgerLogger) Infof(format string, args ...any) {}

func (badgerLogger) Debugf(format string, args ...any) {}

// Open opens or creates the cache database.
func Open(cfg Config) (*Cache, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, errors.New("cache directory is required")
		}
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create cache directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return &Cache{db: db, ttl: cfg.TTL}, nil
}

// Get returns the cached value for key. Lookup errors count as a miss.
func (c *Cache) Get(key string) (string, bool) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logger.Debug("[Cache] Lookup failed", "key", key, "err", err)
		}
		return "", false
	}
	return string(value), true
}

// Put stores value under key.
func (c *Cache) Put(key, value string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+key), []byte(value))
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Purge removes every cached response and returns how many were removed.
func (c *Cache) Purge() (int, error) {
	var keys [][]byte
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list cache keys: %w", err)
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("failed to delete cache key: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("failed to purge cache: %w", err)
	}
	return len(keys), nil
}

// Close flushes and closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/inquestlabs/inquest/domain/probe"
)

const probeCachePrefix = "probe:"

// CachedExecutor wraps a probe executor with a BadgerDB result cache keyed
// by the request's spec hash. Only logical outcomes (pass, fail) are cached;
// execution errors must always re-run.
type CachedExecutor struct {
	inner  probe.Executor
	db     *badgerdb.DB
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedExecutor wraps an executor with a result cache. A zero ttl means
// entries never expire; dev-anchor results are stable because the anchor is
// pinned, so that is the normal choice.
func NewCachedExecutor(inner probe.Executor, db *badgerdb.DB, ttl time.Duration) *CachedExecutor {
	return &CachedExecutor{inner: inner, db: db, ttl: ttl}
}

// RunProbe serves a cached result when one exists, otherwise executes and
// caches. Promotion-anchor probes bypass the cache entirely: promotion must
// observe the live system, never a memo of it.
func (c *CachedExecutor) RunProbe(ctx context.Context, req probe.Request) (probe.Result, error) {
	if req.Anchor == probe.AnchorPromotion {
		return c.inner.RunProbe(ctx, req)
	}

	key := []byte(probeCachePrefix + req.SpecHash())
	if res, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return res, nil
	}
	c.misses.Add(1)

	res, err := c.inner.RunProbe(ctx, req)
	if err != nil || res.Status == probe.StatusError {
		return res, err
	}
	c.store(key, res)
	return res, nil
}

func (c *CachedExecutor) lookup(key []byte) (probe.Result, bool) {
	var res probe.Result
	err := c.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &res)
		})
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) || err != nil {
		return probe.Result{}, false
	}
	return res, true
}

func (c *CachedExecutor) store(key []byte, res probe.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	// Cache writes are best effort: a miss next time just re-runs the probe.
	_ = c.db.Update(func(txn *badgerdb.Txn) error {
		e := badgerdb.NewEntry(key, data)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Stats returns hit/miss counters.
func (c *CachedExecutor) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

var _ probe.Executor = (*CachedExecutor)(nil)

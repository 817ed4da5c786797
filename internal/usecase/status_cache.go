package usecase

import (
	"context"
	"log"
	"sync"
	"time"

	"grid-pulse/internal/domain/health"
)

type SnapshotCollector interface {
	Collect(ctx context.Context) health.Snapshot
}

// statusCacheBucket keys the memoized snapshot: every request landing in the
// same 30-second bucket gets the identical result object. Computation is
// lazy; the first caller in a bucket pays for it while later callers wait on
// the mutex and reuse the stored pointer.
const statusCacheBucket = 30 * time.Second

type StatusCache struct {
	collector SnapshotCollector
	logger    *log.Logger
	now       func() time.Time

	mu     sync.Mutex
	bucket int64
	cached *health.Snapshot
}

func NewStatusCache(collector SnapshotCollector, logger *log.Logger) *StatusCache {
	if logger == nil {
		logger = log.Default()
	}
	return &StatusCache{collector: collector, logger: logger, now: time.Now}
}

func (c *StatusCache) Current(ctx context.Context) *health.Snapshot {
	bucket := c.now().Unix() / int64(statusCacheBucket.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && c.bucket == bucket {
		return c.cached
	}

	snap := c.collector.Collect(ctx)
	c.cached = &snap
	c.bucket = bucket
	c.logger.Printf("status_cache status=recomputed bucket=%d overall=%s", bucket, snap.OverallStatus)
	return c.cached
}

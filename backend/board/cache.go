package board

import (
	"sync"
	"time"

	"taskbridge/backend"
)

// snapshotCache holds the last full board fetch. A snapshot is valid
// while now - fetchedAt < ttl; every successful write invalidates it
// outright rather than waiting for expiry.
type snapshotCache struct {
	mu        sync.Mutex
	tasks     []backend.Task
	fetchedAt time.Time
	ttl       time.Duration
}

func newSnapshotCache(ttl time.Duration) *snapshotCache {
	return &snapshotCache{ttl: ttl}
}

// get returns cloned tasks and true while the snapshot is fresh.
func (c *snapshotCache) get() ([]backend.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchedAt.IsZero() || time.Since(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	out := make([]backend.Task, len(c.tasks))
	for i := range c.tasks {
		out[i] = c.tasks[i].Clone()
	}
	return out, true
}

// set replaces the snapshot.
func (c *snapshotCache) set(tasks []backend.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = make([]backend.Task, len(tasks))
	for i := range tasks {
		c.tasks[i] = tasks[i].Clone()
	}
	c.fetchedAt = time.Now()
}

// invalidate discards the snapshot.
func (c *snapshotCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = nil
	c.fetchedAt = time.Time{}
}

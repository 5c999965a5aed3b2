// Package sync implements the reconciliation machinery between the local
// and remote stores: the offline queue, the connectivity monitor, the
// conflict set and the engine that drives full and per-task passes.
package sync

import (
	"encoding/json"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"time"

	gosync "sync"

	"github.com/google/uuid"

	"taskbridge/backend"
	"taskbridge/internal/utils"
)

// QueueOperation is the kind of change a queue entry replays.
type QueueOperation string

const (
	OpCreate QueueOperation = "create"
	OpUpdate QueueOperation = "update"
	OpDelete QueueOperation = "delete"
)

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 2 * time.Second
)

// QueueEntry is one pending change. Entries are ordered by EnqueuedAt and
// replayed per task in FIFO order; an entry whose retry budget is spent
// moves to the dead-letter sublist but stays on disk for inspection.
type QueueEntry struct {
	ID            string         `json:"id"`
	TaskID        int            `json:"taskId"`
	Operation     QueueOperation `json:"operation"`
	Payload       *backend.Task  `json:"payload,omitempty"`
	EnqueuedAt    time.Time      `json:"enqueuedAt"`
	RetryCount    int            `json:"retryCount"`
	NextAttemptAt time.Time      `json:"nextAttemptAt"`
	LastError     string         `json:"lastError,omitempty"`
	DeadLetter    bool           `json:"deadLetter,omitempty"`
}

// Queue is the durable offline queue. Every mutation flushes the whole
// list to disk atomically.
type Queue struct {
	path       string
	maxRetries int
	baseDelay  time.Duration

	mu      gosync.Mutex
	entries []QueueEntry
}

// NewQueue creates a queue persisted at path. Load must be called before
// use.
func NewQueue(path string) *Queue {
	return &Queue{
		path:       path,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
	}
}

// SetRetryPolicy overrides the retry budget and base delay. Used by tests
// and by configuration.
func (q *Queue) SetRetryPolicy(maxRetries int, baseDelay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if maxRetries >= 0 {
		q.maxRetries = maxRetries
	}
	if baseDelay > 0 {
		q.baseDelay = baseDelay
	}
}

// Load reads the persisted queue. An absent file is an empty queue; a
// parse failure is corruption and refuses startup.
func (q *Queue) Load() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := os.ReadFile(q.path)
	if os.IsNotExist(err) {
		q.entries = nil
		return nil
	}
	if err != nil {
		return backend.NewStoreError("LoadQueue", backend.KindIO,
			"failed to read queue file").WithError(err)
	}
	var entries []QueueEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return backend.NewStoreError("LoadQueue", backend.KindCorrupt,
			"unparseable queue file").WithError(err)
	}
	q.entries = entries
	return nil
}

// flushLocked writes the queue atomically. Caller holds the lock.
func (q *Queue) flushLocked() error {
	data, err := json.MarshalIndent(q.entries, "", "  ")
	if err != nil {
		return backend.NewStoreError("FlushQueue", backend.KindIO,
			"failed to serialize queue").WithError(err)
	}
	if err := os.MkdirAll(filepath.Dir(q.path), 0755); err != nil {
		return backend.NewStoreError("FlushQueue", backend.KindIO,
			"failed to create queue directory").WithError(err)
	}
	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return backend.NewStoreError("FlushQueue", backend.KindIO,
			"failed to write queue file").WithError(err)
	}
	if err := os.Rename(tmp, q.path); err != nil {
		os.Remove(tmp)
		return backend.NewStoreError("FlushQueue", backend.KindIO,
			"failed to replace queue file").WithError(err)
	}
	return nil
}

// Enqueue appends a change and flushes.
func (q *Queue) Enqueue(taskID int, op QueueOperation, payload *backend.Task) (*QueueEntry, error) {
	now := time.Now().UTC()
	entry := QueueEntry{
		ID:            uuid.NewString(),
		TaskID:        taskID,
		Operation:     op,
		EnqueuedAt:    now,
		NextAttemptAt: now,
	}
	if payload != nil {
		clone := payload.Clone()
		entry.Payload = &clone
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, entry)
	if err := q.flushLocked(); err != nil {
		q.entries = q.entries[:len(q.entries)-1]
		return nil, err
	}
	utils.Debugf("enqueued %s for task %d (queue depth %d)", op, taskID, len(q.entries))
	return &entry, nil
}

// Ready returns the entries due at now, oldest first. Per-task FIFO is
// enforced here: only the oldest live entry of each task is eligible, and
// only when it is due. A task whose oldest entry is still backing off
// contributes nothing.
func (q *Queue) Ready(now time.Time) []QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	seen := make(map[int]bool)
	var ready []QueueEntry
	for _, e := range q.sortedLocked() {
		if e.DeadLetter {
			continue
		}
		if seen[e.TaskID] {
			continue
		}
		seen[e.TaskID] = true
		if !e.NextAttemptAt.After(now) {
			ready = append(ready, e)
		}
	}
	return ready
}

// sortedLocked returns the live entries ordered by EnqueuedAt. Caller
// holds the lock.
func (q *Queue) sortedLocked() []QueueEntry {
	out := make([]QueueEntry, len(q.entries))
	copy(out, q.entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	return out
}

// All returns every entry, dead-lettered included, oldest first.
func (q *Queue) All() []QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sortedLocked()
}

// MarkSucceeded removes the entry and flushes.
func (q *Queue) MarkSucceeded(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.entries {
		if q.entries[i].ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return q.flushLocked()
		}
	}
	return backend.NewStoreError("MarkSucceeded", backend.KindNotFound,
		"queue entry not found")
}

// MarkFailed bumps the retry count and schedules the next attempt with
// exponential backoff and jitter. Exhausting the budget moves the entry
// to the dead-letter sublist; the returned flag reports that transition.
func (q *Queue) MarkFailed(id string, cause error) (deadLettered bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.entries {
		e := &q.entries[i]
		if e.ID != id {
			continue
		}
		e.RetryCount++
		if cause != nil {
			e.LastError = cause.Error()
		}
		if e.RetryCount > q.maxRetries {
			e.DeadLetter = true
			utils.Warnf("queue entry for task %d dead-lettered after %d attempts: %s",
				e.TaskID, e.RetryCount, e.LastError)
			return true, q.flushLocked()
		}
		delay := q.baseDelay << (e.RetryCount - 1)
		// Jitter: up to half the delay again, so synchronized retries
		// spread out.
		delay += time.Duration(rand.Int64N(int64(delay)/2 + 1))
		e.NextAttemptAt = time.Now().UTC().Add(delay)
		return false, q.flushLocked()
	}
	return false, backend.NewStoreError("MarkFailed", backend.KindNotFound,
		"queue entry not found")
}

// DeadLetters returns the dead-letter sublist, oldest first.
func (q *Queue) DeadLetters() []QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []QueueEntry
	for _, e := range q.sortedLocked() {
		if e.DeadLetter {
			out = append(out, e)
		}
	}
	return out
}

// Requeue returns a dead-letter entry to live rotation with a reset
// retry budget.
func (q *Queue) Requeue(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.entries {
		e := &q.entries[i]
		if e.ID == id {
			if !e.DeadLetter {
				return backend.NewStoreError("Requeue", backend.KindValidation,
					"entry is not dead-lettered")
			}
			e.DeadLetter = false
			e.RetryCount = 0
			e.LastError = ""
			e.NextAttemptAt = time.Now().UTC()
			return q.flushLocked()
		}
	}
	return backend.NewStoreError("Requeue", backend.KindNotFound,
		"queue entry not found")
}

// Drop permanently removes a dead-letter entry.
func (q *Queue) Drop(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.entries {
		if q.entries[i].ID == id {
			if !q.entries[i].DeadLetter {
				return backend.NewStoreError("Drop", backend.KindValidation,
					"entry is not dead-lettered")
			}
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return q.flushLocked()
		}
	}
	return backend.NewStoreError("Drop", backend.KindNotFound,
		"queue entry not found")
}

// Len returns the number of live (non-dead-letter) entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.entries {
		if !e.DeadLetter {
			n++
		}
	}
	return n
}

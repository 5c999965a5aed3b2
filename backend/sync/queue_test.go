package sync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"taskbridge/backend"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q := NewQueue(filepath.Join(t.TempDir(), "queue.json"))
	if err := q.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return q
}

func TestLoadAbsentFileIsEmptyQueue(t *testing.T) {
	q := NewQueue(filepath.Join(t.TempDir(), "missing.json"))
	if err := q.Load(); err != nil {
		t.Fatalf("absent file should load as empty: %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	if err := os.WriteFile(path, []byte("[{broken"), 0644); err != nil {
		t.Fatal(err)
	}
	err := NewQueue(path).Load()
	if !backend.IsCorrupt(err) {
		t.Errorf("expected corrupt kind, got %v", err)
	}
}

func TestEnqueuePersistsAcrossLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	q := NewQueue(path)
	if err := q.Load(); err != nil {
		t.Fatal(err)
	}

	task := backend.Task{ID: 3, Title: "queued"}
	entry, err := q.Enqueue(3, OpUpdate, &task)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if entry.ID == "" {
		t.Error("entry should get a generated id")
	}
	if entry.RetryCount != 0 || !entry.NextAttemptAt.Equal(entry.EnqueuedAt) {
		t.Errorf("fresh entry scheduling wrong: %+v", entry)
	}

	reloaded := NewQueue(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Len() != 1 {
		t.Fatalf("expected 1 persisted entry, got %d", reloaded.Len())
	}
	got := reloaded.Ready(time.Now().UTC())
	if len(got) != 1 || got[0].TaskID != 3 || got[0].Payload.Title != "queued" {
		t.Errorf("persisted entry wrong: %+v", got)
	}
}

func TestReadyEnforcesPerTaskFIFO(t *testing.T) {
	q := newTestQueue(t)

	first, _ := q.Enqueue(1, OpCreate, &backend.Task{ID: 1, Title: "create"})
	q.Enqueue(1, OpUpdate, &backend.Task{ID: 1, Title: "update"})
	q.Enqueue(2, OpUpdate, &backend.Task{ID: 2, Title: "other"})

	ready := q.Ready(time.Now().UTC())
	if len(ready) != 2 {
		t.Fatalf("expected one entry per task, got %d", len(ready))
	}
	if ready[0].ID != first.ID {
		t.Errorf("task 1 must yield its oldest entry first, got %s", ready[0].Operation)
	}

	// While task 1's oldest entry is backing off, the younger entry for
	// the same task must not run ahead of it.
	if _, err := q.MarkFailed(first.ID, os.ErrDeadlineExceeded); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	ready = q.Ready(time.Now().UTC())
	for _, e := range ready {
		if e.TaskID == 1 {
			t.Errorf("task 1 should yield nothing while its head entry backs off, got %s", e.Operation)
		}
	}
}

func TestMarkFailedBacksOffExponentially(t *testing.T) {
	q := newTestQueue(t)
	q.SetRetryPolicy(5, time.Second)

	entry, _ := q.Enqueue(1, OpUpdate, &backend.Task{ID: 1, Title: "x"})

	var prev time.Duration
	for i := 1; i <= 3; i++ {
		before := time.Now().UTC()
		if _, err := q.MarkFailed(entry.ID, os.ErrDeadlineExceeded); err != nil {
			t.Fatalf("MarkFailed failed: %v", err)
		}
		all := q.Ready(time.Now().UTC().Add(24 * time.Hour))
		delay := all[0].NextAttemptAt.Sub(before)
		// Base 1s doubling per retry, plus up to 50% jitter.
		min := time.Second << (i - 1)
		max := min + min/2 + 50*time.Millisecond
		if delay < min-50*time.Millisecond || delay > max {
			t.Errorf("retry %d: delay %v outside [%v, %v]", i, delay, min, max)
		}
		if delay <= prev {
			t.Errorf("retry %d: delay %v did not grow past %v", i, delay, prev)
		}
		prev = delay
	}
}

func TestDeadLetterAfterBudget(t *testing.T) {
	q := newTestQueue(t)
	q.SetRetryPolicy(2, time.Millisecond)

	entry, _ := q.Enqueue(9, OpDelete, nil)

	for i := 0; i < 2; i++ {
		dead, err := q.MarkFailed(entry.ID, os.ErrClosed)
		if err != nil {
			t.Fatalf("MarkFailed failed: %v", err)
		}
		if dead {
			t.Fatalf("entry dead-lettered too early at retry %d", i+1)
		}
	}
	dead, err := q.MarkFailed(entry.ID, os.ErrClosed)
	if err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	if !dead {
		t.Fatal("entry should be dead-lettered past the budget")
	}

	if q.Len() != 0 {
		t.Errorf("dead-letter entries must not count as live, len=%d", q.Len())
	}
	dl := q.DeadLetters()
	if len(dl) != 1 || dl[0].ID != entry.ID {
		t.Fatalf("dead-letter sublist wrong: %+v", dl)
	}
	if dl[0].LastError == "" {
		t.Error("dead-letter entry should retain its last error")
	}

	// Requeue returns it to rotation with a fresh budget.
	if err := q.Requeue(entry.ID); err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}
	if q.Len() != 1 || len(q.DeadLetters()) != 0 {
		t.Error("requeued entry should be live again")
	}
	ready := q.Ready(time.Now().UTC())
	if len(ready) != 1 || ready[0].RetryCount != 0 {
		t.Errorf("requeued entry not reset: %+v", ready)
	}
}

func TestDropRemovesDeadLetterOnly(t *testing.T) {
	q := newTestQueue(t)
	q.SetRetryPolicy(0, time.Millisecond)

	entry, _ := q.Enqueue(1, OpUpdate, &backend.Task{ID: 1, Title: "x"})
	live, _ := q.Enqueue(2, OpUpdate, &backend.Task{ID: 2, Title: "y"})

	if err := q.Drop(live.ID); backend.KindOf(err) != backend.KindValidation {
		t.Errorf("dropping a live entry should fail with validation, got %v", err)
	}

	if dead, _ := q.MarkFailed(entry.ID, os.ErrClosed); !dead {
		t.Fatal("zero budget should dead-letter on first failure")
	}
	if err := q.Drop(entry.ID); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if len(q.DeadLetters()) != 0 {
		t.Error("dropped entry should be gone")
	}
}

func TestMarkSucceededRemoves(t *testing.T) {
	q := newTestQueue(t)
	entry, _ := q.Enqueue(1, OpCreate, &backend.Task{ID: 1, Title: "x"})
	if err := q.MarkSucceeded(entry.ID); err != nil {
		t.Fatalf("MarkSucceeded failed: %v", err)
	}
	if q.Len() != 0 {
		t.Error("entry should be removed")
	}
	if err := q.MarkSucceeded(entry.ID); !backend.IsNotFound(err) {
		t.Errorf("second removal should be not-found, got %v", err)
	}
}

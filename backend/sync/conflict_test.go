package sync

import (
	"testing"
	"time"

	"taskbridge/backend"
)

var (
	t0 = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Minute)
	t2 = t0.Add(2 * time.Minute)
)

func TestConflictDetection(t *testing.T) {
	cases := []struct {
		name   string
		local  backend.Task
		remote backend.Task
		want   bool
	}{
		{
			"both modified after last sync",
			backend.Task{LastSyncedAt: t0, LastModifiedLocal: t1},
			backend.Task{LastModifiedRemote: t2},
			true,
		},
		{
			"only local modified",
			backend.Task{LastSyncedAt: t1, LastModifiedLocal: t2},
			backend.Task{LastModifiedRemote: t0},
			false,
		},
		{
			"only remote modified",
			backend.Task{LastSyncedAt: t1, LastModifiedLocal: t0},
			backend.Task{LastModifiedRemote: t2},
			false,
		},
		{
			"updatedAt fallback on both sides",
			backend.Task{LastSyncedAt: t0, UpdatedAt: t1},
			backend.Task{UpdatedAt: t2},
			true,
		},
		{
			"never synced, both stamped",
			backend.Task{LastModifiedLocal: t1},
			backend.Task{LastModifiedRemote: t2},
			true,
		},
		{
			"never synced, no stamps anywhere",
			backend.Task{},
			backend.Task{},
			false,
		},
		{
			"modified exactly at last sync is not a conflict",
			backend.Task{LastSyncedAt: t1, LastModifiedLocal: t1},
			backend.Task{LastModifiedRemote: t2},
			false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isConflict(tc.local, tc.remote); got != tc.want {
				t.Errorf("isConflict = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLocalWinsTimestamps(t *testing.T) {
	local := backend.Task{LastModifiedLocal: t2}
	remote := backend.Task{LastModifiedRemote: t1}
	if !localWinsTimestamps(local, remote) {
		t.Error("strictly newer local should win")
	}
	if localWinsTimestamps(backend.Task{LastModifiedLocal: t1}, backend.Task{LastModifiedRemote: t2}) {
		t.Error("strictly newer remote should win")
	}
	// Ties resolve to local.
	if !localWinsTimestamps(backend.Task{LastModifiedLocal: t1}, backend.Task{LastModifiedRemote: t1}) {
		t.Error("exact ties must resolve to local")
	}
}

func TestConflictSetOnePerTask(t *testing.T) {
	s := newConflictSet()

	local := backend.Task{ID: 5, Title: "mine"}
	remote := backend.Task{ID: 5, Title: "theirs"}
	_, fresh := s.add(local, remote)
	if !fresh {
		t.Fatal("first add should report fresh")
	}

	// Re-detection refreshes the snapshots without duplicating.
	local.Title = "mine v2"
	c, fresh := s.add(local, remote)
	if fresh {
		t.Error("second add for the same task must not be fresh")
	}
	if c.Local.Title != "mine v2" {
		t.Error("re-detection should refresh the snapshot")
	}
	if s.size() != 1 {
		t.Errorf("at most one conflict per task, got %d", s.size())
	}

	taken, ok := s.take(5)
	if !ok || taken.TaskID != 5 {
		t.Fatal("take should return the conflict")
	}
	if _, ok := s.take(5); ok {
		t.Error("second take should miss")
	}
}

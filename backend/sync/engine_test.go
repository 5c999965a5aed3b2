package sync

import (
	"testing"
	"time"

	"taskbridge/backend"
)

func newTestEngine(t *testing.T, strategy Strategy) (*Engine, *backend.MockAdapter, *backend.MockAdapter) {
	t.Helper()
	local := backend.NewMockAdapterWithName("local")
	remote := backend.NewMockAdapterWithName("remote")
	monitor := NewMonitor(func() error { return nil }, time.Hour)
	monitor.SetOnline(true)
	engine := NewEngine(local, remote, newTestQueue(t), monitor, Options{Strategy: strategy})
	return engine, local, remote
}

func TestSyncAllFreshMirror(t *testing.T) {
	engine, local, remote := newTestEngine(t, StrategyManual)
	local.Seed(backend.Task{ID: 1, Title: "A", Status: backend.StatusPending})

	result, err := engine.SyncAll()
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if result.LocalToRemote.Created != 1 {
		t.Errorf("expected 1 create to remote, got %+v", result.LocalToRemote)
	}

	mirrored, err := remote.GetTask("1")
	if err != nil {
		t.Fatalf("task did not reach the remote store: %v", err)
	}
	if mirrored.Title != "A" {
		t.Errorf("mirrored title wrong: %q", mirrored.Title)
	}

	localTask, _ := local.GetTask("1")
	if localTask.RemoteItemID == "" {
		t.Error("local record should carry the assigned remote item id")
	}
	if localTask.SyncStatus != backend.SyncStatusSynced {
		t.Errorf("local record should be synced, got %q", localTask.SyncStatus)
	}
	if localTask.LastSyncedAt.IsZero() {
		t.Error("lastSyncedAt should be stamped")
	}

	// A second pass over converged stores changes nothing.
	result, err = engine.SyncAll()
	if err != nil {
		t.Fatalf("second SyncAll failed: %v", err)
	}
	if result.LocalToRemote.Created+result.LocalToRemote.Updated+
		result.RemoteToLocal.Created+result.RemoteToLocal.Updated != 0 {
		t.Errorf("converged stores should produce no writes: %+v", result)
	}
}

func TestSyncAllRemoteOnlyIngest(t *testing.T) {
	engine, local, remote := newTestEngine(t, StrategyManual)
	remote.Seed(backend.Task{ID: 2, Title: "B", Status: backend.StatusPending, RemoteItemID: "item-2"})

	result, err := engine.SyncAll()
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if result.RemoteToLocal.Created != 1 {
		t.Errorf("expected 1 create to local, got %+v", result.RemoteToLocal)
	}

	ingested, err := local.GetTask("2")
	if err != nil {
		t.Fatalf("task did not reach the local store: %v", err)
	}
	if ingested.ID != 2 || ingested.Title != "B" {
		t.Errorf("ingested record wrong: %+v", ingested)
	}
	if ingested.RemoteItemID != "item-2" {
		t.Errorf("remote item id not preserved: %q", ingested.RemoteItemID)
	}
	if ingested.SyncStatus != backend.SyncStatusSynced {
		t.Errorf("ingested record should be synced, got %q", ingested.SyncStatus)
	}
}

func TestSyncAllManualConflict(t *testing.T) {
	engine, local, remote := newTestEngine(t, StrategyManual)
	local.Seed(backend.Task{
		ID: 5, Title: "local edit", Status: backend.StatusInProgress,
		LastSyncedAt: t0, LastModifiedLocal: t1, RemoteItemID: "item-5",
	})
	remote.Seed(backend.Task{
		ID: 5, Title: "remote edit", Status: backend.StatusDone,
		RemoteItemID: "item-5", LastModifiedRemote: t2,
	})

	var detected []int
	engine.Subscribe(func(ev Event) {
		if ev.Kind == EventConflictDetected {
			detected = append(detected, ev.TaskID)
		}
	})

	result, err := engine.SyncAll()
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if result.Conflicts.Detected != 1 || result.Conflicts.Remaining != 1 {
		t.Errorf("conflict stats wrong: %+v", result.Conflicts)
	}
	if len(detected) != 1 || detected[0] != 5 {
		t.Errorf("conflictDetected event wrong: %v", detected)
	}

	// Under manual strategy neither side's payload moves.
	localTask, _ := local.GetTask("5")
	remoteTask, _ := remote.GetTask("5")
	if localTask.Title != "local edit" || remoteTask.Title != "remote edit" {
		t.Error("manual strategy must not move payloads")
	}
	if localTask.SyncStatus != backend.SyncStatusConflict {
		t.Errorf("local record should be flagged, got %q", localTask.SyncStatus)
	}

	// Explicit resolution writes the winner to both sides.
	resolved, err := engine.ResolveConflict(5, StrategyLocalWins)
	if err != nil {
		t.Fatalf("ResolveConflict failed: %v", err)
	}
	if resolved.Resolution != StrategyLocalWins || resolved.ResolvedAt.IsZero() {
		t.Errorf("resolution record wrong: %+v", resolved)
	}

	remoteTask, _ = remote.GetTask("5")
	if remoteTask.Title != "local edit" || remoteTask.Status != backend.StatusInProgress {
		t.Errorf("remote should match the local winner: %+v", remoteTask)
	}
	localTask, _ = local.GetTask("5")
	if localTask.SyncStatus != backend.SyncStatusSynced {
		t.Errorf("resolved task should be synced, got %q", localTask.SyncStatus)
	}
	if len(engine.GetConflicts()) != 0 {
		t.Error("live conflict set should be empty after resolution")
	}

	// Resolution is not repeatable: the conflict is gone.
	if _, err := engine.ResolveConflict(5, StrategyLocalWins); !backend.IsNotFound(err) {
		t.Errorf("second resolution should be not-found, got %v", err)
	}
}

func TestNewestWinsTieResolvesToLocal(t *testing.T) {
	engine, local, remote := newTestEngine(t, StrategyNewestWins)
	local.Seed(backend.Task{
		ID: 9, Title: "local version", LastSyncedAt: t0,
		LastModifiedLocal: t1, RemoteItemID: "item-9",
	})
	remote.Seed(backend.Task{
		ID: 9, Title: "remote version", RemoteItemID: "item-9",
		LastModifiedRemote: t1,
	})

	result, err := engine.SyncAll()
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if result.Conflicts.Detected != 1 || result.Conflicts.Resolved != 1 || result.Conflicts.Remaining != 0 {
		t.Errorf("conflict stats wrong: %+v", result.Conflicts)
	}

	remoteTask, _ := remote.GetTask("9")
	if remoteTask.Title != "local version" {
		t.Errorf("tie should resolve to local, remote has %q", remoteTask.Title)
	}
}

func TestSyncAllPushesNewerLocal(t *testing.T) {
	engine, local, remote := newTestEngine(t, StrategyManual)
	local.Seed(backend.Task{
		ID: 3, Title: "renamed locally", LastSyncedAt: t1,
		LastModifiedLocal: t2, RemoteItemID: "item-3",
	})
	remote.Seed(backend.Task{
		ID: 3, Title: "stale", RemoteItemID: "item-3", LastModifiedRemote: t0,
	})

	result, err := engine.SyncAll()
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if result.LocalToRemote.Updated != 1 || result.Conflicts.Detected != 0 {
		t.Errorf("expected a clean push, got %+v", result)
	}
	remoteTask, _ := remote.GetTask("3")
	if remoteTask.Title != "renamed locally" {
		t.Errorf("remote not updated: %q", remoteTask.Title)
	}
}

func TestSyncAllPullsNewerRemote(t *testing.T) {
	engine, local, remote := newTestEngine(t, StrategyManual)
	local.Seed(backend.Task{
		ID: 4, Title: "stale", LastSyncedAt: t1,
		LastModifiedLocal: t0, RemoteItemID: "item-4",
	})
	remote.Seed(backend.Task{
		ID: 4, Title: "renamed remotely", RemoteItemID: "item-4", LastModifiedRemote: t2,
	})

	result, err := engine.SyncAll()
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if result.RemoteToLocal.Updated != 1 || result.Conflicts.Detected != 0 {
		t.Errorf("expected a clean pull, got %+v", result)
	}
	localTask, _ := local.GetTask("4")
	if localTask.Title != "renamed remotely" {
		t.Errorf("local not updated: %q", localTask.Title)
	}
	if localTask.SyncStatus != backend.SyncStatusSynced {
		t.Errorf("pulled task should be synced, got %q", localTask.SyncStatus)
	}
}

func TestSyncAllCountsFailuresAndContinues(t *testing.T) {
	engine, local, remote := newTestEngine(t, StrategyManual)
	local.Seed(backend.Task{ID: 1, Title: "first"})
	local.Seed(backend.Task{ID: 2, Title: "second"})
	remote.CreateErr = backend.NewStoreError("CreateTask", backend.KindTransport, "down")

	result, err := engine.SyncAll()
	if err != nil {
		t.Fatalf("one failing task must not abort the pass: %v", err)
	}
	if result.LocalToRemote.Failed != 2 {
		t.Errorf("expected 2 failures, got %+v", result.LocalToRemote)
	}

	localTask, _ := local.GetTask("1")
	if localTask.SyncStatus != backend.SyncStatusError || localTask.LastSyncError == "" {
		t.Errorf("failed task should carry the error: %+v", localTask)
	}
}

func TestSyncTaskActions(t *testing.T) {
	engine, local, remote := newTestEngine(t, StrategyManual)

	local.Seed(backend.Task{ID: 1, Title: "local only"})
	res, err := engine.SyncTask(1)
	if err != nil || res.Action != ActionCreatedInRemote || !res.Success {
		t.Errorf("local-only task: %+v err=%v", res, err)
	}

	remote.Seed(backend.Task{ID: 2, Title: "remote only", RemoteItemID: "item-2"})
	res, err = engine.SyncTask(2)
	if err != nil || res.Action != ActionCreatedInLocal || !res.Success {
		t.Errorf("remote-only task: %+v err=%v", res, err)
	}

	res, err = engine.SyncTask(1)
	if err != nil || res.Action != ActionInSync {
		t.Errorf("converged task: %+v err=%v", res, err)
	}

	local.Seed(backend.Task{
		ID: 5, Title: "mine", LastSyncedAt: t0, LastModifiedLocal: t1, RemoteItemID: "item-5",
	})
	remote.Seed(backend.Task{ID: 5, Title: "theirs", RemoteItemID: "item-5", LastModifiedRemote: t2})
	res, err = engine.SyncTask(5)
	if err != nil || res.Action != ActionConflictDetected {
		t.Errorf("conflicted task: %+v err=%v", res, err)
	}
	if res.Conflict == nil || res.Conflict.TaskID != 5 {
		t.Errorf("conflict record missing: %+v", res)
	}

	if _, err := engine.SyncTask(99); !backend.IsNotFound(err) {
		t.Errorf("task in neither store should be not-found, got %v", err)
	}
}

func TestDrainQueueReplaysAndStamps(t *testing.T) {
	engine, local, remote := newTestEngine(t, StrategyManual)
	local.Seed(backend.Task{ID: 7, Title: "G", Status: backend.StatusDone, RemoteItemID: "item-7"})
	remote.Seed(backend.Task{ID: 7, Title: "G", Status: backend.StatusInProgress, RemoteItemID: "item-7"})

	payload := backend.Task{ID: 7, Title: "G", Status: backend.StatusDone}
	if err := engine.EnqueueChange(7, OpUpdate, &payload); err != nil {
		t.Fatalf("EnqueueChange failed: %v", err)
	}

	processed, failed, err := engine.DrainQueue()
	if err != nil || processed != 1 || failed != 0 {
		t.Fatalf("drain: processed=%d failed=%d err=%v", processed, failed, err)
	}

	remoteTask, _ := remote.GetTask("7")
	if remoteTask.Status != backend.StatusDone {
		t.Errorf("replayed status wrong: %q", remoteTask.Status)
	}
	if engine.Queue().Len() != 0 {
		t.Error("queue should be empty after a successful drain")
	}
	localTask, _ := local.GetTask("7")
	if localTask.SyncStatus != backend.SyncStatusSynced {
		t.Errorf("local record should be synced after replay, got %q", localTask.SyncStatus)
	}
}

func TestDrainQueueCreateIsIdempotent(t *testing.T) {
	engine, _, remote := newTestEngine(t, StrategyManual)
	remote.Seed(backend.Task{ID: 3, Title: "already there", RemoteItemID: "item-3"})

	payload := backend.Task{ID: 3, Title: "already there", Status: backend.StatusDone}
	engine.EnqueueChange(3, OpCreate, &payload)

	if _, _, err := engine.DrainQueue(); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if remote.TaskCount() != 1 {
		t.Errorf("replaying a create for an existing task must not duplicate it, count=%d", remote.TaskCount())
	}
	remoteTask, _ := remote.GetTask("3")
	if remoteTask.Status != backend.StatusDone {
		t.Error("the create should degrade to an update")
	}
}

func TestDrainQueueDeadLettersOverBudget(t *testing.T) {
	engine, local, remote := newTestEngine(t, StrategyManual)
	engine.Queue().SetRetryPolicy(0, time.Millisecond)
	local.Seed(backend.Task{ID: 8, Title: "stuck"})
	remote.GetErr = backend.NewStoreError("GetTask", backend.KindTransport, "still down")

	var terminal []int
	engine.Subscribe(func(ev Event) {
		if ev.Kind == EventSyncError {
			terminal = append(terminal, ev.TaskID)
		}
	})

	payload := backend.Task{ID: 8, Title: "stuck"}
	engine.EnqueueChange(8, OpUpdate, &payload)

	_, failed, err := engine.DrainQueue()
	if err != nil || failed != 1 {
		t.Fatalf("drain: failed=%d err=%v", failed, err)
	}
	if len(engine.Queue().DeadLetters()) != 1 {
		t.Error("entry should be dead-lettered with a zero budget")
	}
	if len(terminal) != 1 || terminal[0] != 8 {
		t.Errorf("terminal syncError missing: %v", terminal)
	}
	localTask, _ := local.GetTask("8")
	if localTask.SyncStatus != backend.SyncStatusError {
		t.Errorf("task should carry the terminal error, got %q", localTask.SyncStatus)
	}
}

func TestDrainQueueDeleteOfAbsentItemSucceeds(t *testing.T) {
	engine, _, _ := newTestEngine(t, StrategyManual)
	engine.EnqueueChange(12, OpDelete, nil)

	processed, failed, err := engine.DrainQueue()
	if err != nil || processed != 1 || failed != 0 {
		t.Errorf("deleting an absent item should count as success: processed=%d failed=%d err=%v",
			processed, failed, err)
	}
}

func TestReconnectDrainsThenSyncs(t *testing.T) {
	local := backend.NewMockAdapterWithName("local")
	remote := backend.NewMockAdapterWithName("remote")
	monitor := NewMonitor(func() error { return nil }, time.Hour)
	engine := NewEngine(local, remote, newTestQueue(t), monitor, Options{Strategy: StrategyManual})
	engine.Start()
	defer engine.Stop()

	local.Seed(backend.Task{ID: 1, Title: "pending mirror"})
	payload := backend.Task{ID: 1, Title: "pending mirror"}
	engine.EnqueueChange(1, OpCreate, &payload)

	monitor.SetOnline(true)

	deadline := time.After(2 * time.Second)
	for engine.Queue().Len() > 0 || remote.TaskCount() == 0 {
		select {
		case <-deadline:
			t.Fatalf("reconnect did not drain and sync: queue=%d remote=%d",
				engine.Queue().Len(), remote.TaskCount())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestEngineEventsOnPass(t *testing.T) {
	engine, local, _ := newTestEngine(t, StrategyManual)
	local.Seed(backend.Task{ID: 1, Title: "A"})

	var kinds []EventKind
	engine.Subscribe(func(ev Event) { kinds = append(kinds, ev.Kind) })

	if _, err := engine.SyncAll(); err != nil {
		t.Fatal(err)
	}
	if len(kinds) < 2 || kinds[0] != EventSyncStarted || kinds[len(kinds)-1] != EventSyncCompleted {
		t.Errorf("expected syncStarted ... syncCompleted, got %v", kinds)
	}
}

func TestEngineStatus(t *testing.T) {
	engine, local, _ := newTestEngine(t, StrategyManual)
	local.Seed(backend.Task{ID: 1, Title: "A"})

	s := engine.Status()
	if s.State != StateIdle || s.LastResult != nil {
		t.Errorf("fresh engine status wrong: %+v", s)
	}

	if _, err := engine.SyncAll(); err != nil {
		t.Fatal(err)
	}
	s = engine.Status()
	if s.LastResult == nil || s.LastResult.LocalToRemote.Created != 1 {
		t.Errorf("status should carry the last pass result: %+v", s.LastResult)
	}
	if !s.Online {
		t.Error("status should reflect monitor polarity")
	}
}

func TestSnapshotFailureForcesOffline(t *testing.T) {
	engine, _, remote := newTestEngine(t, StrategyManual)
	remote.GetErr = backend.NewStoreError("GetTasks", backend.KindTransport, "unreachable")

	if _, err := engine.SyncAll(); err == nil {
		t.Fatal("snapshot failure should surface")
	}
	if engine.Monitor().IsOnline() {
		t.Error("a retriable snapshot failure should force the engine offline")
	}
}

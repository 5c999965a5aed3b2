package sync

import (
	"sort"
	"strconv"
	gosync "sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"taskbridge/backend"
	"taskbridge/internal/utils"
)

// EventKind identifies an engine notification.
type EventKind string

const (
	EventSyncStarted      EventKind = "syncStarted"
	EventSyncCompleted    EventKind = "syncCompleted"
	EventConflictDetected EventKind = "conflictDetected"
	EventConflictResolved EventKind = "conflictResolved"
	EventSyncError        EventKind = "syncError"
)

// Event is an engine notification. Result is set on syncCompleted,
// Conflict on the conflict events, Err on syncError.
type Event struct {
	Kind     EventKind
	Result   *SyncResult
	Conflict *Conflict
	TaskID   int
	Err      error
	Time     time.Time
}

// DirectionResult counts per-direction outcomes of a pass.
type DirectionResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// ConflictStats counts conflict activity of a pass.
type ConflictStats struct {
	Detected  int `json:"detected"`
	Resolved  int `json:"resolved"`
	Remaining int `json:"remaining"`
}

// SyncResult is the outcome of one full pass.
type SyncResult struct {
	LocalToRemote DirectionResult `json:"localToRemote"`
	RemoteToLocal DirectionResult `json:"remoteToLocal"`
	Conflicts     ConflictStats   `json:"conflicts"`
	Duration      time.Duration   `json:"durationMs"`
	FinishedAt    time.Time       `json:"finishedAt"`
	Partial       bool            `json:"partial,omitempty"`
}

// Action names the outcome of a per-task sync.
type Action string

const (
	ActionCreatedInRemote  Action = "created-in-remote"
	ActionCreatedInLocal   Action = "created-in-local"
	ActionUpdatedRemote    Action = "updated-remote-from-local"
	ActionUpdatedLocal     Action = "updated-local-from-remote"
	ActionConflictDetected Action = "conflict-detected"
	ActionInSync           Action = "in-sync"
)

// TaskSyncResult is the outcome of SyncTask.
type TaskSyncResult struct {
	TaskID   int       `json:"taskId"`
	Action   Action    `json:"action"`
	Success  bool      `json:"success"`
	Conflict *Conflict `json:"conflict,omitempty"`
}

// EngineState is the pass state half of the engine state machine; it
// composes with the monitor's online/offline polarity.
type EngineState string

const (
	StateIdle    EngineState = "idle"
	StateRunning EngineState = "running"
)

// EngineStatus is a point-in-time engine snapshot.
type EngineStatus struct {
	State         EngineState
	Online        bool
	AutoSync      bool
	LastResult    *SyncResult
	QueueDepth    int
	DeadLetters   int
	LiveConflicts int
}

// Options configures the engine.
type Options struct {
	Strategy     Strategy
	SyncInterval time.Duration
	AutoSync     bool
}

// Engine reconciles the local and remote adapters. All sync activity
// (full passes, per-task syncs, queue drains, conflict resolution) is
// serialized behind one lock; the auto-sync driver and the connectivity
// monitor trigger passes but never overlap them.
type Engine struct {
	local   backend.StorageAdapter
	remote  backend.StorageAdapter
	queue   *Queue
	monitor *Monitor
	opts    Options

	conflicts *conflictSet

	// mu serializes sync activity; running mirrors it for overlap checks
	// without blocking.
	mu      gosync.Mutex
	running atomic.Bool

	stateMu    gosync.Mutex
	lastResult *SyncResult

	handlersMu gosync.Mutex
	handlers   []func(Event)

	stop    chan struct{}
	wg      gosync.WaitGroup
	started bool
	startMu gosync.Mutex
}

// NewEngine builds an engine over the two adapters. The queue must be
// loaded and the monitor constructed; Start wires the monitor's
// transitions to drains and passes.
func NewEngine(local, remote backend.StorageAdapter, queue *Queue, monitor *Monitor, opts Options) *Engine {
	if opts.Strategy == "" {
		opts.Strategy = StrategyManual
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = 5 * time.Minute
	}
	return &Engine{
		local:     local,
		remote:    remote,
		queue:     queue,
		monitor:   monitor,
		opts:      opts,
		conflicts: newConflictSet(),
	}
}

// Subscribe registers an event handler. Handlers run synchronously and
// must not block.
func (e *Engine) Subscribe(h func(Event)) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.handlers = append(e.handlers, h)
}

func (e *Engine) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	e.handlersMu.Lock()
	handlers := make([]func(Event), len(e.handlers))
	copy(handlers, e.handlers)
	e.handlersMu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// Start wires the connectivity monitor and, when auto-sync is enabled,
// launches the periodic driver.
func (e *Engine) Start() {
	e.startMu.Lock()
	defer e.startMu.Unlock()
	if e.started {
		return
	}
	e.started = true
	e.stop = make(chan struct{})

	e.monitor.OnChange(func(online bool) {
		if !online {
			return
		}
		e.startMu.Lock()
		if !e.started {
			e.startMu.Unlock()
			return
		}
		// Reconnect: drain first, then schedule a full pass.
		e.wg.Add(1)
		e.startMu.Unlock()
		go func() {
			defer e.wg.Done()
			if _, _, err := e.DrainQueue(); err != nil {
				utils.Errorf("queue drain after reconnect failed: %v", err)
			}
			if _, err := e.SyncAll(); err != nil {
				utils.Errorf("sync pass after reconnect failed: %v", err)
			}
		}()
	})

	if e.opts.AutoSync {
		e.wg.Add(1)
		go e.autoSyncLoop()
	}
}

// Stop halts the auto-sync driver and waits for in-flight work. The pass
// in progress finishes its current per-task operation, then returns a
// partial result.
func (e *Engine) Stop() {
	e.startMu.Lock()
	if !e.started {
		e.startMu.Unlock()
		return
	}
	e.started = false
	close(e.stop)
	e.startMu.Unlock()
	e.wg.Wait()
}

func (e *Engine) autoSyncLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.opts.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !e.monitor.IsOnline() {
				utils.Debugf("auto-sync tick skipped: offline")
				continue
			}
			if e.running.Load() {
				utils.Warnf("auto-sync tick skipped: previous pass still running")
				continue
			}
			if _, _, err := e.DrainQueue(); err != nil {
				utils.Errorf("queue drain failed: %v", err)
			}
			if _, err := e.SyncAll(); err != nil {
				utils.Errorf("auto-sync pass failed: %v", err)
			}
		case <-e.stop:
			return
		}
	}
}

// stopRequested reports whether Stop was called, without blocking.
func (e *Engine) stopRequested() bool {
	e.startMu.Lock()
	stop := e.stop
	e.startMu.Unlock()
	if stop == nil {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// syncStamp marks a local task as synced: status synced, lastSyncedAt
// now, modification stamps frozen so the bookkeeping write itself does
// not count as a new local edit.
func (e *Engine) syncStamp(taskID int, modifiedLocal, modifiedRemote time.Time, remoteItemID string) error {
	now := time.Now().UTC()
	synced := backend.SyncStatusSynced
	empty := ""
	patch := backend.TaskPatch{
		SyncStatus:    &synced,
		LastSyncedAt:  &now,
		LastSyncError: &empty,
	}
	// Freeze the modification stamps at or below lastSyncedAt so the
	// bookkeeping write itself never reads as a fresh edit.
	if modifiedLocal.IsZero() || modifiedLocal.After(now) {
		modifiedLocal = now
	}
	patch.LastModifiedLocal = &modifiedLocal
	if !modifiedRemote.IsZero() {
		patch.LastModifiedRemote = &modifiedRemote
	}
	if remoteItemID != "" {
		patch.RemoteItemID = &remoteItemID
	}
	_, err := e.local.UpdateTask(taskID, patch)
	return err
}

// markSyncError records a failed mirror on the local task.
func (e *Engine) markSyncError(taskID int, cause error) {
	status := backend.SyncStatusError
	msg := cause.Error()
	patch := backend.TaskPatch{SyncStatus: &status, LastSyncError: &msg}
	if _, err := e.local.UpdateTask(taskID, patch); err != nil && !backend.IsNotFound(err) {
		utils.Warnf("failed to record sync error on task %d: %v", taskID, err)
	}
}

// snapshot reads both sides in parallel.
func (e *Engine) snapshot() (local, remote []backend.Task, err error) {
	var g errgroup.Group
	g.Go(func() error {
		var err error
		local, err = e.local.GetTasks(nil)
		return err
	})
	g.Go(func() error {
		var err error
		remote, err = e.remote.GetTasks(nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return local, remote, nil
}

// SyncAll runs one full pass: snapshot both sides, reconcile local
// against remote, then remote against local, then auto-resolve fresh
// conflicts unless the strategy is manual. Individual task failures are
// counted, never abort the pass.
func (e *Engine) SyncAll() (*SyncResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running.Store(true)
	defer e.running.Store(false)

	started := time.Now()
	e.emit(Event{Kind: EventSyncStarted})

	localTasks, remoteTasks, err := e.snapshot()
	if err != nil {
		e.emit(Event{Kind: EventSyncError, Err: err})
		if backend.IsRetriable(err) {
			e.monitor.SetOnline(false)
		}
		return nil, err
	}

	localByID := make(map[int]backend.Task, len(localTasks))
	for _, t := range localTasks {
		localByID[t.ID] = t
	}
	remoteByID := make(map[int]backend.Task, len(remoteTasks))
	for _, t := range remoteTasks {
		if t.ID > 0 {
			remoteByID[t.ID] = t
		}
	}

	result := &SyncResult{}
	flagged := make(map[int]bool)
	freshConflicts := []int{}

	// Local pass: conflicts are detected here and only here; this
	// detection is authoritative for the rest of the pass.
	for _, id := range sortedIDs(localByID) {
		if e.stopRequested() {
			result.Partial = true
			break
		}
		localTask := localByID[id]
		remoteTask, paired := remoteByID[id]

		if !paired {
			if err := e.pushCreate(localTask); err != nil {
				result.LocalToRemote.Failed++
				e.markSyncError(id, err)
				e.emit(Event{Kind: EventSyncError, TaskID: id, Err: err})
			} else {
				result.LocalToRemote.Created++
			}
			continue
		}

		switch {
		case isConflict(localTask, remoteTask):
			conflict, fresh := e.conflicts.add(localTask, remoteTask)
			flagged[id] = true
			if fresh {
				result.Conflicts.Detected++
				freshConflicts = append(freshConflicts, id)
				e.emit(Event{Kind: EventConflictDetected, TaskID: id, Conflict: conflict})
			}
			e.markConflict(id)
		case localTask.ModifiedLocal().After(localTask.LastSyncedAt) &&
			localWinsTimestamps(localTask, remoteTask):
			if err := e.pushUpdate(localTask, remoteTask); err != nil {
				result.LocalToRemote.Failed++
				e.markSyncError(id, err)
				e.emit(Event{Kind: EventSyncError, TaskID: id, Err: err})
			} else {
				result.LocalToRemote.Updated++
			}
		default:
			result.LocalToRemote.Skipped++
		}
	}

	// Remote pass: remote-only creates, plus pulls for pairs the local
	// pass neither flagged nor pushed.
	for _, id := range sortedIDs(remoteByID) {
		if e.stopRequested() {
			result.Partial = true
			break
		}
		remoteTask := remoteByID[id]
		localTask, paired := localByID[id]

		if !paired {
			if err := e.pullCreate(remoteTask); err != nil {
				result.RemoteToLocal.Failed++
				e.emit(Event{Kind: EventSyncError, TaskID: id, Err: err})
			} else {
				result.RemoteToLocal.Created++
			}
			continue
		}
		if flagged[id] {
			continue
		}
		if remoteTask.ModifiedRemote().After(localTask.LastSyncedAt) &&
			!localWinsTimestamps(localTask, remoteTask) {
			if err := e.pullUpdate(localTask, remoteTask); err != nil {
				result.RemoteToLocal.Failed++
				e.markSyncError(id, err)
				e.emit(Event{Kind: EventSyncError, TaskID: id, Err: err})
			} else {
				result.RemoteToLocal.Updated++
			}
		} else {
			result.RemoteToLocal.Skipped++
		}
	}

	// Auto-resolution walks only the conflicts this pass detected.
	if e.opts.Strategy != StrategyManual {
		for _, id := range freshConflicts {
			if _, err := e.resolveLocked(id, e.opts.Strategy); err != nil {
				utils.Errorf("auto-resolution of task %d failed: %v", id, err)
				e.emit(Event{Kind: EventSyncError, TaskID: id, Err: err})
			} else {
				result.Conflicts.Resolved++
			}
		}
	}
	result.Conflicts.Remaining = e.conflicts.size()

	result.Duration = time.Since(started)
	result.FinishedAt = time.Now().UTC()

	e.stateMu.Lock()
	e.lastResult = result
	e.stateMu.Unlock()

	e.emit(Event{Kind: EventSyncCompleted, Result: result})
	utils.Infof("sync pass finished in %s: %d->remote, %d->local, %d conflicts",
		result.Duration.Round(time.Millisecond),
		result.LocalToRemote.Created+result.LocalToRemote.Updated,
		result.RemoteToLocal.Created+result.RemoteToLocal.Updated,
		result.Conflicts.Detected)
	return result, nil
}

// markConflict flags the local record without touching its payload.
func (e *Engine) markConflict(taskID int) {
	status := backend.SyncStatusConflict
	patch := backend.TaskPatch{SyncStatus: &status}
	if _, err := e.local.UpdateTask(taskID, patch); err != nil {
		utils.Warnf("failed to flag conflict on task %d: %v", taskID, err)
	}
}

// pushCreate mirrors a local-only task to the remote store and stamps the
// assigned item id back onto the local record.
func (e *Engine) pushCreate(localTask backend.Task) error {
	created, err := e.remote.CreateTask(localTask)
	if err != nil {
		return err
	}
	return e.syncStamp(localTask.ID, localTask.ModifiedLocal(), created.ModifiedRemote(), created.RemoteItemID)
}

// pushUpdate mirrors a newer local record onto its remote counterpart.
func (e *Engine) pushUpdate(localTask, remoteTask backend.Task) error {
	if _, err := e.remote.UpdateTask(localTask.ID, backend.PatchFromTask(localTask)); err != nil {
		return err
	}
	return e.syncStamp(localTask.ID, localTask.ModifiedLocal(), time.Time{}, remoteTask.RemoteItemID)
}

// pullCreate ingests a remote-only task into the local store, preserving
// its id when derivable.
func (e *Engine) pullCreate(remoteTask backend.Task) error {
	data := remoteTask.Clone()
	data.SyncStatus = backend.SyncStatusSynced

	created, err := e.local.CreateTask(data)
	if backend.KindOf(err) == backend.KindInvalidDependency {
		// Forward references: the dependency may not be ingested yet.
		// Create without dependencies; a later pass reconciles them.
		utils.Warnf("task %d ingested without dependencies: %v", remoteTask.ID, err)
		data.Dependencies = nil
		created, err = e.local.CreateTask(data)
	}
	if err != nil {
		return err
	}
	return e.syncStamp(created.ID, time.Time{}, remoteTask.ModifiedRemote(), remoteTask.RemoteItemID)
}

// pullUpdate mirrors a newer remote record onto its local counterpart.
func (e *Engine) pullUpdate(localTask, remoteTask backend.Task) error {
	patch := backend.PatchFromTask(remoteTask)
	if _, err := e.local.UpdateTask(localTask.ID, patch); err != nil {
		return err
	}
	return e.syncStamp(localTask.ID, time.Time{}, remoteTask.ModifiedRemote(), remoteTask.RemoteItemID)
}

// SyncTask force-syncs one task: creates the missing side, or applies the
// same conflict/newer rules as a full pass to the pair.
func (e *Engine) SyncTask(id int) (*TaskSyncResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := &TaskSyncResult{TaskID: id}
	ref := strconv.Itoa(id)

	localTask, localErr := e.local.GetTask(ref)
	if localErr != nil && !backend.IsNotFound(localErr) {
		return nil, localErr
	}
	remoteTask, remoteErr := e.remote.GetTask(ref)
	if remoteErr != nil && !backend.IsNotFound(remoteErr) {
		return nil, remoteErr
	}

	switch {
	case localTask == nil && remoteTask == nil:
		return nil, backend.NewStoreError("SyncTask", backend.KindNotFound,
			"task exists in neither store").WithTaskRef(ref)

	case remoteTask == nil:
		result.Action = ActionCreatedInRemote
		if err := e.pushCreate(*localTask); err != nil {
			e.markSyncError(id, err)
			e.emit(Event{Kind: EventSyncError, TaskID: id, Err: err})
			return result, err
		}

	case localTask == nil:
		result.Action = ActionCreatedInLocal
		if err := e.pullCreate(*remoteTask); err != nil {
			e.emit(Event{Kind: EventSyncError, TaskID: id, Err: err})
			return result, err
		}

	case isConflict(*localTask, *remoteTask):
		conflict, fresh := e.conflicts.add(*localTask, *remoteTask)
		result.Action = ActionConflictDetected
		result.Conflict = conflict
		e.markConflict(id)
		if fresh {
			e.emit(Event{Kind: EventConflictDetected, TaskID: id, Conflict: conflict})
		}
		if e.opts.Strategy != StrategyManual {
			resolved, err := e.resolveLocked(id, e.opts.Strategy)
			if err != nil {
				return result, err
			}
			result.Conflict = resolved
		}

	case localTask.ModifiedLocal().After(localTask.LastSyncedAt) &&
		localWinsTimestamps(*localTask, *remoteTask):
		result.Action = ActionUpdatedRemote
		if err := e.pushUpdate(*localTask, *remoteTask); err != nil {
			e.markSyncError(id, err)
			e.emit(Event{Kind: EventSyncError, TaskID: id, Err: err})
			return result, err
		}

	case remoteTask.ModifiedRemote().After(localTask.LastSyncedAt) &&
		!localWinsTimestamps(*localTask, *remoteTask):
		result.Action = ActionUpdatedLocal
		if err := e.pullUpdate(*localTask, *remoteTask); err != nil {
			e.markSyncError(id, err)
			e.emit(Event{Kind: EventSyncError, TaskID: id, Err: err})
			return result, err
		}

	default:
		result.Action = ActionInSync
	}

	result.Success = true
	return result, nil
}

// GetConflicts returns the live conflict set.
func (e *Engine) GetConflicts() []Conflict {
	return e.conflicts.list()
}

// ResolveConflict applies a strategy to one flagged task. Resolving a
// task with no live conflict fails with not-found, which makes repeated
// resolution calls detectable.
func (e *Engine) ResolveConflict(taskID int, strategy Strategy) (*Conflict, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolveLocked(taskID, strategy)
}

func (e *Engine) resolveLocked(taskID int, strategy Strategy) (*Conflict, error) {
	if strategy == StrategyManual || !ValidStrategy(strategy) {
		return nil, backend.NewStoreError("ResolveConflict", backend.KindValidation,
			"resolution requires local-wins, remote-wins or newest-wins")
	}

	conflict, ok := e.conflicts.take(taskID)
	if !ok {
		return nil, backend.NewStoreError("ResolveConflict", backend.KindNotFound,
			"no such conflict").WithTaskRef(strconv.Itoa(taskID))
	}

	winner := conflict.Local
	switch strategy {
	case StrategyRemoteWins:
		winner = conflict.Remote
	case StrategyNewestWins:
		if !localWinsTimestamps(conflict.Local, conflict.Remote) {
			winner = conflict.Remote
		}
	}

	// The winning record is written to both sides.
	if _, err := e.remote.UpdateTask(taskID, backend.PatchFromTask(winner)); err != nil {
		e.conflicts.restore(conflict)
		return nil, err
	}
	if _, err := e.local.UpdateTask(taskID, backend.PatchFromTask(winner)); err != nil {
		e.conflicts.restore(conflict)
		return nil, err
	}
	if err := e.syncStamp(taskID, time.Time{}, time.Time{}, conflict.Remote.RemoteItemID); err != nil {
		return nil, err
	}

	conflict.Resolution = strategy
	conflict.ResolvedAt = time.Now().UTC()
	e.emit(Event{Kind: EventConflictResolved, TaskID: taskID, Conflict: conflict})
	utils.Infof("conflict on task %d resolved with %s", taskID, strategy)
	return conflict, nil
}

// EnqueueChange records a change for later replay. The façade calls it
// when a mirror step fails while offline.
func (e *Engine) EnqueueChange(taskID int, op QueueOperation, payload *backend.Task) error {
	_, err := e.queue.Enqueue(taskID, op, payload)
	return err
}

// Queue exposes the offline queue for status and operator commands.
func (e *Engine) Queue() *Queue { return e.queue }

// Monitor exposes the connectivity monitor.
func (e *Engine) Monitor() *Monitor { return e.monitor }

// DrainQueue replays every due entry against the remote store. Failures
// reschedule with backoff; entries over budget move to dead-letter and
// emit a terminal syncError for their task.
func (e *Engine) DrainQueue() (processed, failed int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ready := e.queue.Ready(time.Now().UTC())
	for _, entry := range ready {
		if e.stopRequested() {
			break
		}
		if applyErr := e.applyEntry(entry); applyErr != nil {
			failed++
			dead, markErr := e.queue.MarkFailed(entry.ID, applyErr)
			if markErr != nil {
				return processed, failed, markErr
			}
			if dead {
				e.markSyncError(entry.TaskID, applyErr)
				e.emit(Event{Kind: EventSyncError, TaskID: entry.TaskID, Err: applyErr})
			}
			continue
		}
		if markErr := e.queue.MarkSucceeded(entry.ID); markErr != nil {
			return processed, failed, markErr
		}
		processed++
	}
	if processed > 0 || failed > 0 {
		utils.Infof("queue drain: %d replayed, %d failed, %d pending", processed, failed, e.queue.Len())
	}
	return processed, failed, nil
}

// applyEntry replays one queued change against the remote store and, on
// success, stamps the local record synced. Replay is idempotent: a
// create whose task already reached the board degrades to an update, a
// delete of an absent item succeeds.
func (e *Engine) applyEntry(entry QueueEntry) error {
	ref := strconv.Itoa(entry.TaskID)

	switch entry.Operation {
	case OpCreate, OpUpdate:
		if entry.Payload == nil {
			return backend.NewStoreError("DrainQueue", backend.KindValidation,
				"queue entry has no payload").WithTaskRef(ref)
		}
		existing, err := e.remote.GetTask(ref)
		switch {
		case backend.IsNotFound(err):
			created, err := e.remote.CreateTask(*entry.Payload)
			if err != nil {
				return err
			}
			return e.ignoreGone(e.syncStamp(entry.TaskID,
				entry.Payload.ModifiedLocal(), created.ModifiedRemote(), created.RemoteItemID))
		case err != nil:
			return err
		default:
			if _, err := e.remote.UpdateTask(entry.TaskID, backend.PatchFromTask(*entry.Payload)); err != nil {
				return err
			}
			return e.ignoreGone(e.syncStamp(entry.TaskID,
				entry.Payload.ModifiedLocal(), time.Time{}, existing.RemoteItemID))
		}

	case OpDelete:
		_, err := e.remote.DeleteTask(entry.TaskID)
		if err != nil && !backend.IsNotFound(err) {
			return err
		}
		return nil

	default:
		return backend.NewStoreError("DrainQueue", backend.KindValidation,
			"unknown queue operation").WithTaskRef(ref)
	}
}

// ignoreGone drops not-found errors from bookkeeping writes; the local
// task may have been deleted while its change sat in the queue.
func (e *Engine) ignoreGone(err error) error {
	if backend.IsNotFound(err) {
		return nil
	}
	return err
}

// Status returns the engine snapshot rendered by the status command.
func (e *Engine) Status() EngineStatus {
	state := StateIdle
	if e.running.Load() {
		state = StateRunning
	}
	e.stateMu.Lock()
	last := e.lastResult
	e.stateMu.Unlock()
	return EngineStatus{
		State:         state,
		Online:        e.monitor.IsOnline(),
		AutoSync:      e.opts.AutoSync,
		LastResult:    last,
		QueueDepth:    e.queue.Len(),
		DeadLetters:   len(e.queue.DeadLetters()),
		LiveConflicts: e.conflicts.size(),
	}
}

func sortedIDs(m map[int]backend.Task) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Package hybrid fronts the local and remote adapters with one task API.
// Reads go to the configured primary store; writes land on the primary
// and are mirrored to the other side opportunistically, through the sync
// engine while online and through the offline queue otherwise. Mirror
// failures never surface to the caller: the primary result stands and
// the failure is logged, recorded on the task and replayed later.
package hybrid

import (
	"strconv"
	"time"

	"taskbridge/backend"
	enginesync "taskbridge/backend/sync"
	"taskbridge/internal/utils"
)

// Options selects the primary store and the write-mirroring behavior.
type Options struct {
	PrimaryProvider string // "local" or "remote"
	SyncOnWrite     bool
}

// Facade is the hybrid StorageAdapter.
type Facade struct {
	local   backend.StorageAdapter
	remote  backend.StorageAdapter
	primary backend.StorageAdapter
	engine  *enginesync.Engine
	opts    Options

	emitter *backend.Emitter
}

// New builds the façade over the two adapters and the engine. The
// primary defaults to local.
func New(local, remote backend.StorageAdapter, engine *enginesync.Engine, opts Options) *Facade {
	f := &Facade{
		local:   local,
		remote:  remote,
		primary: local,
		engine:  engine,
		opts:    opts,
		emitter: backend.NewEmitter(),
	}
	if opts.PrimaryProvider == "remote" {
		f.primary = remote
	}
	// Adapter lifecycle events pass through to façade subscribers.
	f.primary.Events().Subscribe(func(ev backend.Event) {
		f.emitter.Emit(ev)
	})
	return f
}

// Initialize brings up both adapters. A corrupt local store or queue
// fails here and refuses startup.
func (f *Facade) Initialize() error {
	if err := f.local.Initialize(); err != nil {
		return err
	}
	return f.remote.Initialize()
}

// GetTasks reads from the primary store.
func (f *Facade) GetTasks(filter *backend.TaskFilter) ([]backend.Task, error) {
	return f.primary.GetTasks(filter)
}

// GetTask reads from the primary store.
func (f *Facade) GetTask(ref string) (*backend.Task, error) {
	return f.primary.GetTask(ref)
}

// GetSubtasks reads from the primary store.
func (f *Facade) GetSubtasks(parentID int) ([]backend.Subtask, error) {
	return f.primary.GetSubtasks(parentID)
}

// mirror reconciles one task after a primary write. While online it runs
// a per-task sync; while offline it queues the change and marks the task
// so a later drain picks it up. Never returns an error to the write
// path.
func (f *Facade) mirror(taskID int, op enginesync.QueueOperation, payload *backend.Task) {
	if !f.opts.SyncOnWrite {
		return
	}

	if !f.engine.Monitor().IsOnline() {
		f.queueChange(taskID, op, payload)
		return
	}

	if _, err := f.engine.SyncTask(taskID); err != nil {
		utils.Warnf("mirror of task %d failed: %v", taskID, err)
		if backend.IsRetriable(err) {
			f.queueChange(taskID, op, payload)
		}
	}
}

// queueChange enqueues the change and records the pending state on the
// local task.
func (f *Facade) queueChange(taskID int, op enginesync.QueueOperation, payload *backend.Task) {
	if err := f.engine.EnqueueChange(taskID, op, payload); err != nil {
		utils.Errorf("failed to enqueue %s for task %d: %v", op, taskID, err)
		return
	}
	if op == enginesync.OpDelete {
		return
	}
	status := backend.SyncStatusError
	msg := "offline: change queued for replay"
	patch := backend.TaskPatch{SyncStatus: &status, LastSyncError: &msg}
	if _, err := f.local.UpdateTask(taskID, patch); err != nil && !backend.IsNotFound(err) {
		utils.Warnf("failed to mark task %d as queued: %v", taskID, err)
	}
}

// CreateTask writes to the primary, then mirrors.
func (f *Facade) CreateTask(data backend.Task) (*backend.Task, error) {
	created, err := f.primary.CreateTask(data)
	if err != nil {
		return nil, err
	}
	f.mirror(created.ID, enginesync.OpCreate, created)
	// Return the current primary record: the mirror may have stamped
	// remoteItemId and sync state onto it.
	if fresh, err := f.primary.GetTask(strconv.Itoa(created.ID)); err == nil {
		return fresh, nil
	}
	return created, nil
}

// UpdateTask stamps the local-modification instant, writes to the
// primary, then mirrors.
func (f *Facade) UpdateTask(id int, patch backend.TaskPatch) (*backend.Task, error) {
	if patch.LastModifiedLocal == nil {
		now := time.Now().UTC()
		patch.LastModifiedLocal = &now
	}
	updated, err := f.primary.UpdateTask(id, patch)
	if err != nil {
		return nil, err
	}
	f.mirror(id, enginesync.OpUpdate, updated)
	if fresh, err := f.primary.GetTask(strconv.Itoa(id)); err == nil {
		return fresh, nil
	}
	return updated, nil
}

// DeleteTask broadcasts to both adapters: a tombstone on one side alone
// is inconsistent. The secondary delete is best effort; its failure is
// logged (and queued while offline) but the primary result stands.
func (f *Facade) DeleteTask(id int) (bool, error) {
	ok, err := f.primary.DeleteTask(id)
	if err != nil {
		return false, err
	}

	secondary := f.remote
	if f.primary == f.remote {
		secondary = f.local
	}
	if !f.engine.Monitor().IsOnline() {
		f.queueChange(id, enginesync.OpDelete, nil)
		return ok, nil
	}
	if _, err := secondary.DeleteTask(id); err != nil && !backend.IsNotFound(err) {
		utils.Warnf("secondary delete of task %d failed: %v", id, err)
		if backend.IsRetriable(err) {
			f.queueChange(id, enginesync.OpDelete, nil)
		}
	}
	return ok, nil
}

// CreateSubtask writes to the primary, then mirrors the parent.
func (f *Facade) CreateSubtask(parentID int, data backend.Subtask) (*backend.Subtask, error) {
	created, err := f.primary.CreateSubtask(parentID, data)
	if err != nil {
		return nil, err
	}
	f.mirrorParent(parentID)
	return created, nil
}

// UpdateSubtask writes to the primary, then mirrors the parent.
func (f *Facade) UpdateSubtask(parentID, subID int, patch backend.TaskPatch) (*backend.Subtask, error) {
	updated, err := f.primary.UpdateSubtask(parentID, subID, patch)
	if err != nil {
		return nil, err
	}
	f.mirrorParent(parentID)
	return updated, nil
}

// DeleteSubtask writes to the primary, then mirrors the parent.
func (f *Facade) DeleteSubtask(parentID, subID int) (bool, error) {
	ok, err := f.primary.DeleteSubtask(parentID, subID)
	if err != nil {
		return false, err
	}
	f.mirrorParent(parentID)
	return ok, nil
}

// mirrorParent replays the parent task after a subtask write.
func (f *Facade) mirrorParent(parentID int) {
	if parent, err := f.primary.GetTask(strconv.Itoa(parentID)); err == nil {
		f.mirror(parentID, enginesync.OpUpdate, parent)
	}
}

// SaveTasks batch-replaces the primary, then runs one full pass rather
// than fanning out per task. Potentially expensive on large collections.
func (f *Facade) SaveTasks(tasks []backend.Task) error {
	if err := f.primary.SaveTasks(tasks); err != nil {
		return err
	}
	if f.opts.SyncOnWrite && f.engine.Monitor().IsOnline() {
		if _, err := f.engine.SyncAll(); err != nil {
			utils.Warnf("full pass after batch save failed: %v", err)
		}
	}
	return nil
}

// Validate checks the primary store.
func (f *Facade) Validate() error {
	return f.primary.Validate()
}

// ProviderInfo implements StorageAdapter.
func (f *Facade) ProviderInfo() backend.ProviderInfo {
	return backend.ProviderInfo{
		Name:    "hybrid",
		Version: "1",
		Capabilities: []string{
			backend.CapBatchSave, backend.CapSubtasks, backend.CapRemoteIDs,
		},
	}
}

// Events re-emits the primary adapter's lifecycle events.
func (f *Facade) Events() *backend.Emitter { return f.emitter }

// OnSyncEvent registers a handler for engine events (conflicts,
// completions, errors).
func (f *Facade) OnSyncEvent(h func(enginesync.Event)) {
	f.engine.Subscribe(h)
}

// Engine exposes the sync engine for status and conflict commands.
func (f *Facade) Engine() *enginesync.Engine { return f.engine }

// Close stops the engine; adapter shutdown belongs to the composition
// root that owns them.
func (f *Facade) Close() error {
	f.engine.Stop()
	return nil
}

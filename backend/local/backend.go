// Package local implements the file-backed task store. The whole
// collection lives in one JSON document ({"tasks": [...]}) that is
// reloaded when its on-disk timestamp advances and flushed atomically
// (write-to-temp-then-rename) on every mutation.
package local

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"taskbridge/backend"
	"taskbridge/internal/utils"
)

const (
	dirPerm  = 0755
	filePerm = 0644
)

// document is the on-disk shape of the task collection.
type document struct {
	Tasks []backend.Task `json:"tasks"`
}

// Adapter is the file-backed StorageAdapter. All access to the in-memory
// snapshot and the backing file goes through one mutex; disk writes are
// therefore serialized and readers always observe a fully written
// document.
type Adapter struct {
	path string

	mu          sync.Mutex
	tasks       []backend.Task
	fileModTime time.Time
	initialized bool

	emitter *backend.Emitter
}

// New creates an adapter for the document at path. Initialize must be
// called before use.
func New(path string) *Adapter {
	return &Adapter{
		path:    path,
		emitter: backend.NewEmitter(),
	}
}

// Initialize ensures the parent directory exists, materializes an empty
// document if the file is absent, and loads it. Idempotent.
func (a *Adapter) Initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(a.path), dirPerm); err != nil {
		return backend.NewStoreError("Initialize", backend.KindIO,
			"failed to create task directory").WithError(err)
	}

	if _, err := os.Stat(a.path); os.IsNotExist(err) {
		a.tasks = []backend.Task{}
		if err := a.flushLocked(); err != nil {
			return err
		}
	}

	if err := a.loadLocked(); err != nil {
		return err
	}
	a.initialized = true
	utils.Debugf("local adapter initialized with %d tasks (%s)", len(a.tasks), a.path)
	return nil
}

// loadLocked reads the document from disk and remembers its modification
// timestamp. Caller holds the lock.
func (a *Adapter) loadLocked() error {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return backend.NewStoreError("Load", backend.KindIO,
			"failed to read task file").WithError(err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return backend.NewStoreError("Load", backend.KindCorrupt,
			fmt.Sprintf("unparseable task file %s", a.path)).WithError(err)
	}

	a.tasks = doc.Tasks
	if a.tasks == nil {
		a.tasks = []backend.Task{}
	}
	if info, err := os.Stat(a.path); err == nil {
		a.fileModTime = info.ModTime()
	}
	return nil
}

// reloadIfChangedLocked re-reads the file only when the on-disk timestamp
// advanced since the last load. Caller holds the lock.
func (a *Adapter) reloadIfChangedLocked() error {
	info, err := os.Stat(a.path)
	if err != nil {
		return backend.NewStoreError("Reload", backend.KindIO,
			"failed to stat task file").WithError(err)
	}
	if info.ModTime().After(a.fileModTime) {
		utils.Debugf("local task file changed on disk, reloading")
		return a.loadLocked()
	}
	return nil
}

// flushLocked writes the document atomically: marshal to a temp file in
// the same directory, then rename over the target. Caller holds the lock.
func (a *Adapter) flushLocked() error {
	doc := document{Tasks: a.tasks}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return backend.NewStoreError("Flush", backend.KindIO,
			"failed to serialize tasks").WithError(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(a.path), ".tasks-*.tmp")
	if err != nil {
		return backend.NewStoreError("Flush", backend.KindIO,
			"failed to create temp file").WithError(err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return backend.NewStoreError("Flush", backend.KindIO,
			"failed to write temp file").WithError(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return backend.NewStoreError("Flush", backend.KindIO,
			"failed to close temp file").WithError(err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName)
		return backend.NewStoreError("Flush", backend.KindIO,
			"failed to set file mode").WithError(err)
	}
	if err := os.Rename(tmpName, a.path); err != nil {
		os.Remove(tmpName)
		return backend.NewStoreError("Flush", backend.KindIO,
			"failed to replace task file").WithError(err)
	}

	if info, err := os.Stat(a.path); err == nil {
		a.fileModTime = info.ModTime()
	}
	return nil
}

// indexLocked returns the slice index of the task with the given id, or
// -1. Caller holds the lock.
func (a *Adapter) indexLocked(id int) int {
	for i := range a.tasks {
		if a.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// validateDependenciesLocked checks that every dependency id refers to an
// existing task and that a task does not depend on itself. Caller holds
// the lock.
func (a *Adapter) validateDependenciesLocked(op string, selfID int, deps []int) error {
	for _, dep := range deps {
		if dep == selfID {
			return backend.NewStoreError(op, backend.KindInvalidDependency,
				fmt.Sprintf("task %d cannot depend on itself", selfID)).
				WithTaskRef(strconv.Itoa(selfID))
		}
		if a.indexLocked(dep) < 0 {
			return backend.NewStoreError(op, backend.KindInvalidDependency,
				fmt.Sprintf("dependency %d does not exist", dep)).
				WithTaskRef(strconv.Itoa(selfID))
		}
	}
	return nil
}

// GetTasks returns clones of the stored tasks, optionally filtered. The
// file is reloaded first if another process wrote it.
func (a *Adapter) GetTasks(filter *backend.TaskFilter) ([]backend.Task, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.reloadIfChangedLocked(); err != nil {
		return nil, err
	}
	return backend.FilterTasks(a.tasks, filter), nil
}

// GetTask accepts a numeric id or a dotted subtask reference. For
// subtasks the embedded record is returned projected into a Task shape.
func (a *Adapter) GetTask(ref string) (*backend.Task, error) {
	parsed, err := backend.ParseTaskRef(ref)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.reloadIfChangedLocked(); err != nil {
		return nil, err
	}

	idx := a.indexLocked(parsed.ID)
	if idx < 0 {
		return nil, backend.NewStoreError("GetTask", backend.KindNotFound,
			"task not found").WithTaskRef(ref)
	}
	t := a.tasks[idx]

	if parsed.IsSubtask() {
		st := t.Subtask(parsed.SubID)
		if st == nil {
			return nil, backend.NewStoreError("GetTask", backend.KindNotFound,
				"subtask not found").WithTaskRef(ref)
		}
		sub := backend.Task{
			ID:           st.ID,
			Title:        st.Title,
			Description:  st.Description,
			Details:      st.Details,
			TestStrategy: st.TestStrategy,
			Status:       st.Status,
			Priority:     st.Priority,
			RemoteItemID: st.RemoteItemID,
			CreatedAt:    st.CreatedAt,
			UpdatedAt:    st.UpdatedAt,
		}
		return &sub, nil
	}

	clone := t.Clone()
	return &clone, nil
}

// CreateTask assigns the next id (max existing + 1, or 1 on an empty
// store) when the input carries none, validates dependencies and
// flushes. A positive input id is preserved.
func (a *Adapter) CreateTask(data backend.Task) (*backend.Task, error) {
	if data.Title == "" {
		return nil, backend.NewStoreError("CreateTask", backend.KindValidation,
			"task title must not be empty")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.reloadIfChangedLocked(); err != nil {
		return nil, err
	}

	if data.ID > 0 {
		// The sync engine ingests remote-only tasks under their board
		// id; collisions are the caller's bug.
		if a.indexLocked(data.ID) >= 0 {
			return nil, backend.NewStoreError("CreateTask", backend.KindValidation,
				fmt.Sprintf("task id %d already exists", data.ID)).
				WithTaskRef(strconv.Itoa(data.ID))
		}
	} else {
		nextID := 1
		for i := range a.tasks {
			if a.tasks[i].ID >= nextID {
				nextID = a.tasks[i].ID + 1
			}
		}
		data.ID = nextID
	}

	if err := a.validateDependenciesLocked("CreateTask", data.ID, data.Dependencies); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	data.CreatedAt = now
	data.UpdatedAt = now
	if data.Status == "" {
		data.Status = backend.StatusPending
	}
	if data.Priority == "" {
		data.Priority = backend.PriorityMedium
	}

	a.tasks = append(a.tasks, data)
	if err := a.flushLocked(); err != nil {
		return nil, err
	}

	clone := data.Clone()
	a.emitter.Emit(backend.Event{Kind: backend.EventTaskCreated, Task: &clone, TaskID: clone.ID})
	return &clone, nil
}

// UpdateTask merges the patch over the existing record. Dependencies are
// re-validated when the patch includes them.
func (a *Adapter) UpdateTask(id int, patch backend.TaskPatch) (*backend.Task, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.reloadIfChangedLocked(); err != nil {
		return nil, err
	}

	idx := a.indexLocked(id)
	if idx < 0 {
		return nil, backend.NewStoreError("UpdateTask", backend.KindNotFound,
			"task not found").WithTaskRef(strconv.Itoa(id))
	}

	if patch.Dependencies != nil {
		if err := a.validateDependenciesLocked("UpdateTask", id, *patch.Dependencies); err != nil {
			return nil, err
		}
	}

	patch.Apply(&a.tasks[idx])
	if err := a.flushLocked(); err != nil {
		return nil, err
	}

	clone := a.tasks[idx].Clone()
	a.emitter.Emit(backend.Event{Kind: backend.EventTaskUpdated, Task: &clone, TaskID: id})
	return &clone, nil
}

// DeleteTask removes the task and strips its id from every other task's
// dependency list.
func (a *Adapter) DeleteTask(id int) (bool, error) {
	return a.DeleteTaskWith(id, false)
}

// DeleteTaskWith removes the task; when skipDependencyCleanup is set the
// dangling dependency references in sibling tasks are left in place.
func (a *Adapter) DeleteTaskWith(id int, skipDependencyCleanup bool) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.reloadIfChangedLocked(); err != nil {
		return false, err
	}

	idx := a.indexLocked(id)
	if idx < 0 {
		return false, backend.NewStoreError("DeleteTask", backend.KindNotFound,
			"task not found").WithTaskRef(strconv.Itoa(id))
	}

	a.tasks = append(a.tasks[:idx], a.tasks[idx+1:]...)

	if !skipDependencyCleanup {
		for i := range a.tasks {
			deps := a.tasks[i].Dependencies
			if slices.Contains(deps, id) {
				a.tasks[i].Dependencies = slices.DeleteFunc(slices.Clone(deps),
					func(d int) bool { return d == id })
			}
		}
	}

	if err := a.flushLocked(); err != nil {
		return false, err
	}

	a.emitter.Emit(backend.Event{Kind: backend.EventTaskDeleted, TaskID: id})
	return true, nil
}

// GetSubtasks returns the ordered subtasks of the parent.
func (a *Adapter) GetSubtasks(parentID int) ([]backend.Subtask, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.reloadIfChangedLocked(); err != nil {
		return nil, err
	}

	idx := a.indexLocked(parentID)
	if idx < 0 {
		return nil, backend.NewStoreError("GetSubtasks", backend.KindNotFound,
			"task not found").WithTaskRef(strconv.Itoa(parentID))
	}
	out := make([]backend.Subtask, len(a.tasks[idx].Subtasks))
	copy(out, a.tasks[idx].Subtasks)
	return out, nil
}

// CreateSubtask appends a subtask under the parent, assigning the next
// subtask id within that parent.
func (a *Adapter) CreateSubtask(parentID int, data backend.Subtask) (*backend.Subtask, error) {
	if data.Title == "" {
		return nil, backend.NewStoreError("CreateSubtask", backend.KindValidation,
			"subtask title must not be empty")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.reloadIfChangedLocked(); err != nil {
		return nil, err
	}

	idx := a.indexLocked(parentID)
	if idx < 0 {
		return nil, backend.NewStoreError("CreateSubtask", backend.KindNotFound,
			"task not found").WithTaskRef(strconv.Itoa(parentID))
	}

	data.ID = a.tasks[idx].NextSubtaskID()
	now := time.Now().UTC()
	data.CreatedAt = now
	data.UpdatedAt = now
	if data.Status == "" {
		data.Status = backend.StatusPending
	}

	a.tasks[idx].Subtasks = append(a.tasks[idx].Subtasks, data)
	a.tasks[idx].UpdatedAt = now
	if err := a.flushLocked(); err != nil {
		return nil, err
	}

	out := data
	a.emitter.Emit(backend.Event{
		Kind: backend.EventSubtaskCreated, Subtask: &out,
		ParentID: parentID, SubID: out.ID,
	})
	return &out, nil
}

// UpdateSubtask merges the patch over the embedded subtask record.
func (a *Adapter) UpdateSubtask(parentID, subID int, patch backend.TaskPatch) (*backend.Subtask, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.reloadIfChangedLocked(); err != nil {
		return nil, err
	}

	idx := a.indexLocked(parentID)
	if idx < 0 {
		return nil, backend.NewStoreError("UpdateSubtask", backend.KindNotFound,
			"task not found").WithTaskRef(strconv.Itoa(parentID))
	}
	st := a.tasks[idx].Subtask(subID)
	if st == nil {
		return nil, backend.NewStoreError("UpdateSubtask", backend.KindNotFound,
			"subtask not found").WithTaskRef(fmt.Sprintf("%d.%d", parentID, subID))
	}

	patch.ApplySubtask(st)
	a.tasks[idx].UpdatedAt = time.Now().UTC()
	if err := a.flushLocked(); err != nil {
		return nil, err
	}

	out := *st
	a.emitter.Emit(backend.Event{
		Kind: backend.EventSubtaskUpdated, Subtask: &out,
		ParentID: parentID, SubID: subID,
	})
	return &out, nil
}

// DeleteSubtask removes the embedded subtask record.
func (a *Adapter) DeleteSubtask(parentID, subID int) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.reloadIfChangedLocked(); err != nil {
		return false, err
	}

	idx := a.indexLocked(parentID)
	if idx < 0 {
		return false, backend.NewStoreError("DeleteSubtask", backend.KindNotFound,
			"task not found").WithTaskRef(strconv.Itoa(parentID))
	}

	subs := a.tasks[idx].Subtasks
	for i := range subs {
		if subs[i].ID == subID {
			a.tasks[idx].Subtasks = append(subs[:i], subs[i+1:]...)
			a.tasks[idx].UpdatedAt = time.Now().UTC()
			if err := a.flushLocked(); err != nil {
				return false, err
			}
			a.emitter.Emit(backend.Event{
				Kind: backend.EventSubtaskDeleted,
				ParentID: parentID, SubID: subID,
			})
			return true, nil
		}
	}
	return false, backend.NewStoreError("DeleteSubtask", backend.KindNotFound,
		"subtask not found").WithTaskRef(fmt.Sprintf("%d.%d", parentID, subID))
}

// SaveTasks replaces the whole collection. Every entry must carry an id
// and a title.
func (a *Adapter) SaveTasks(tasks []backend.Task) error {
	for i := range tasks {
		if tasks[i].ID == 0 {
			return backend.NewStoreError("SaveTasks", backend.KindValidation,
				fmt.Sprintf("entry %d is missing an id", i))
		}
		if tasks[i].Title == "" {
			return backend.NewStoreError("SaveTasks", backend.KindValidation,
				fmt.Sprintf("task %d is missing a title", tasks[i].ID)).
				WithTaskRef(strconv.Itoa(tasks[i].ID))
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.tasks = make([]backend.Task, len(tasks))
	for i := range tasks {
		a.tasks[i] = tasks[i].Clone()
	}
	if err := a.flushLocked(); err != nil {
		return err
	}

	a.emitter.Emit(backend.Event{Kind: backend.EventTasksSaved})
	return nil
}

// Validate checks that the backing file is readable and parseable.
func (a *Adapter) Validate() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reloadIfChangedLocked()
}

// ProviderInfo implements StorageAdapter.
func (a *Adapter) ProviderInfo() backend.ProviderInfo {
	return backend.ProviderInfo{
		Name:    "local",
		Version: "1",
		Capabilities: []string{
			backend.CapBatchSave, backend.CapSubtasks,
		},
	}
}

// Events implements StorageAdapter.
func (a *Adapter) Events() *backend.Emitter { return a.emitter }

// Path returns the backing file path. The sync engine's file watcher
// observes it.
func (a *Adapter) Path() string { return a.path }

// Close flushes nothing (every mutation already flushed) and releases no
// resources; it exists to satisfy StorageAdapter.
func (a *Adapter) Close() error { return nil }

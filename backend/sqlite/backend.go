// Package sqlite implements a StorageAdapter persisting the task
// collection in a local SQLite database. It is an alternative primary
// store to the JSON file adapter, selectable through configuration.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"taskbridge/backend"
	"taskbridge/internal/utils"
)

const driverName = "sqlite"

// Adapter is the SQLite-backed StorageAdapter.
type Adapter struct {
	path string

	mu          sync.Mutex
	db          *sql.DB
	initialized bool

	emitter *backend.Emitter
}

// New creates an adapter for the database at path. Initialize must be
// called before use.
func New(path string) *Adapter {
	return &Adapter{path: path, emitter: backend.NewEmitter()}
}

// Initialize opens the database, applies pragmas and creates the schema.
// Idempotent.
func (a *Adapter) Initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}

	db, err := sql.Open(driverName, a.path)
	if err != nil {
		return backend.NewStoreError("Initialize", backend.KindIO,
			"failed to open database").WithError(err)
	}
	for _, pragma := range PragmaStatements() {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return backend.NewStoreError("Initialize", backend.KindIO,
				fmt.Sprintf("pragma failed: %s", pragma)).WithError(err)
		}
	}
	for _, stmt := range AllTableSchemas() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return backend.NewStoreError("Initialize", backend.KindCorrupt,
				"schema creation failed").WithError(err)
		}
	}
	for _, stmt := range AllIndexes() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return backend.NewStoreError("Initialize", backend.KindCorrupt,
				"index creation failed").WithError(err)
		}
	}
	if _, err := db.Exec(
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, ?)`,
		SchemaVersion, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		db.Close()
		return backend.NewStoreError("Initialize", backend.KindIO,
			"failed to record schema version").WithError(err)
	}

	a.db = db
	a.initialized = true
	utils.Debugf("sqlite adapter initialized (%s)", a.path)
	return nil
}

// timeOrNull formats a timestamp for storage; the zero time stores NULL.
func timeOrNull(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime reads a nullable stored timestamp.
func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

const taskColumns = `id, title, description, details, test_strategy, status, priority,
	remote_item_id, created_at, updated_at,
	last_synced_at, last_modified_local, last_modified_remote, sync_status, last_sync_error`

func scanTask(row interface{ Scan(...any) error }) (backend.Task, error) {
	var t backend.Task
	var description, details, testStrategy, remoteItemID sql.NullString
	var createdAt, updatedAt, lastSyncedAt, lastModLocal, lastModRemote sql.NullString
	var syncStatus, lastSyncError sql.NullString

	err := row.Scan(&t.ID, &t.Title, &description, &details, &testStrategy,
		&t.Status, &t.Priority, &remoteItemID, &createdAt, &updatedAt,
		&lastSyncedAt, &lastModLocal, &lastModRemote, &syncStatus, &lastSyncError)
	if err != nil {
		return t, err
	}
	t.Description = description.String
	t.Details = details.String
	t.TestStrategy = testStrategy.String
	t.RemoteItemID = remoteItemID.String
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	t.LastSyncedAt = parseTime(lastSyncedAt)
	t.LastModifiedLocal = parseTime(lastModLocal)
	t.LastModifiedRemote = parseTime(lastModRemote)
	t.SyncStatus = backend.SyncStatus(syncStatus.String)
	t.LastSyncError = lastSyncError.String
	return t, nil
}

// loadAll reads every task with dependencies and subtasks attached.
func (a *Adapter) loadAll() ([]backend.Task, error) {
	rows, err := a.db.Query(`SELECT ` + taskColumns + ` FROM tasks ORDER BY id`)
	if err != nil {
		return nil, backend.NewStoreError("GetTasks", backend.KindIO,
			"failed to query tasks").WithError(err)
	}
	defer rows.Close()

	byID := make(map[int]*backend.Task)
	var order []int
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, backend.NewStoreError("GetTasks", backend.KindIO,
				"failed to scan task").WithError(err)
		}
		byID[t.ID] = &t
		order = append(order, t.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, backend.NewStoreError("GetTasks", backend.KindIO,
			"task iteration failed").WithError(err)
	}

	if err := a.attachDependencies(byID); err != nil {
		return nil, err
	}
	if err := a.attachSubtasks(byID); err != nil {
		return nil, err
	}

	out := make([]backend.Task, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func (a *Adapter) attachDependencies(byID map[int]*backend.Task) error {
	rows, err := a.db.Query(`SELECT task_id, depends_on FROM task_dependencies ORDER BY task_id, depends_on`)
	if err != nil {
		return backend.NewStoreError("GetTasks", backend.KindIO,
			"failed to query dependencies").WithError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var taskID, dependsOn int
		if err := rows.Scan(&taskID, &dependsOn); err != nil {
			return backend.NewStoreError("GetTasks", backend.KindIO,
				"failed to scan dependency").WithError(err)
		}
		if t, ok := byID[taskID]; ok {
			t.Dependencies = append(t.Dependencies, dependsOn)
		}
	}
	return rows.Err()
}

func (a *Adapter) attachSubtasks(byID map[int]*backend.Task) error {
	rows, err := a.db.Query(`SELECT parent_id, sub_id, title, description, details,
		test_strategy, status, priority, remote_item_id, created_at, updated_at, sync_status
		FROM subtasks ORDER BY parent_id, sub_id`)
	if err != nil {
		return backend.NewStoreError("GetTasks", backend.KindIO,
			"failed to query subtasks").WithError(err)
	}
	defer rows.Close()
	for rows.Next() {
		var parentID int
		var st backend.Subtask
		var description, details, testStrategy, priority, remoteItemID sql.NullString
		var createdAt, updatedAt, syncStatus sql.NullString
		if err := rows.Scan(&parentID, &st.ID, &st.Title, &description, &details,
			&testStrategy, &st.Status, &priority, &remoteItemID,
			&createdAt, &updatedAt, &syncStatus); err != nil {
			return backend.NewStoreError("GetTasks", backend.KindIO,
				"failed to scan subtask").WithError(err)
		}
		st.Description = description.String
		st.Details = details.String
		st.TestStrategy = testStrategy.String
		st.Priority = backend.Priority(priority.String)
		st.RemoteItemID = remoteItemID.String
		st.CreatedAt = parseTime(createdAt)
		st.UpdatedAt = parseTime(updatedAt)
		st.SyncStatus = backend.SyncStatus(syncStatus.String)
		if t, ok := byID[parentID]; ok {
			t.Subtasks = append(t.Subtasks, st)
		}
	}
	return rows.Err()
}

// GetTasks implements StorageAdapter.
func (a *Adapter) GetTasks(filter *backend.TaskFilter) ([]backend.Task, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tasks, err := a.loadAll()
	if err != nil {
		return nil, err
	}
	return backend.FilterTasks(tasks, filter), nil
}

// getTaskLocked loads one task by id. Caller holds the lock.
func (a *Adapter) getTaskLocked(op string, id int) (*backend.Task, error) {
	row := a.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, backend.NewStoreError(op, backend.KindNotFound,
			"task not found").WithTaskRef(strconv.Itoa(id))
	}
	if err != nil {
		return nil, backend.NewStoreError(op, backend.KindIO,
			"failed to load task").WithError(err)
	}
	byID := map[int]*backend.Task{t.ID: &t}
	if err := a.attachDependencies(byID); err != nil {
		return nil, err
	}
	if err := a.attachSubtasks(byID); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTask implements StorageAdapter; dotted references address subtasks.
func (a *Adapter) GetTask(ref string) (*backend.Task, error) {
	parsed, err := backend.ParseTaskRef(ref)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	t, err := a.getTaskLocked("GetTask", parsed.ID)
	if err != nil {
		return nil, err
	}
	if !parsed.IsSubtask() {
		return t, nil
	}
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

// validateDependenciesTx checks existence and self-reference inside the
// transaction.
func validateDependenciesTx(tx *sql.Tx, op string, selfID int, deps []int) error {
	for _, dep := range deps {
		if dep == selfID {
			return backend.NewStoreError(op, backend.KindInvalidDependency,
				fmt.Sprintf("task %d cannot depend on itself", selfID)).
				WithTaskRef(strconv.Itoa(selfID))
		}
		var n int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM tasks WHERE id = ?`, dep).Scan(&n); err != nil {
			return backend.NewStoreError(op, backend.KindIO,
				"dependency check failed").WithError(err)
		}
		if n == 0 {
			return backend.NewStoreError(op, backend.KindInvalidDependency,
				fmt.Sprintf("dependency %d does not exist", dep)).
				WithTaskRef(strconv.Itoa(selfID))
		}
	}
	return nil
}

func insertTaskTx(tx *sql.Tx, t backend.Task) error {
	_, err := tx.Exec(`INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.Details, t.TestStrategy,
		string(t.Status), string(t.Priority), t.RemoteItemID,
		timeOrNull(t.CreatedAt), timeOrNull(t.UpdatedAt),
		timeOrNull(t.LastSyncedAt), timeOrNull(t.LastModifiedLocal),
		timeOrNull(t.LastModifiedRemote), string(t.SyncStatus), t.LastSyncError)
	if err != nil {
		return err
	}
	for _, dep := range t.Dependencies {
		if _, err := tx.Exec(`INSERT INTO task_dependencies (task_id, depends_on) VALUES (?, ?)`,
			t.ID, dep); err != nil {
			return err
		}
	}
	for _, st := range t.Subtasks {
		if err := insertSubtaskTx(tx, t.ID, st); err != nil {
			return err
		}
	}
	return nil
}

func insertSubtaskTx(tx *sql.Tx, parentID int, st backend.Subtask) error {
	_, err := tx.Exec(`INSERT INTO subtasks (parent_id, sub_id, title, description, details,
		test_strategy, status, priority, remote_item_id, created_at, updated_at, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		parentID, st.ID, st.Title, st.Description, st.Details, st.TestStrategy,
		string(st.Status), string(st.Priority), st.RemoteItemID,
		timeOrNull(st.CreatedAt), timeOrNull(st.UpdatedAt), string(st.SyncStatus))
	return err
}

func ioErr(op string, err error) error {
	return backend.NewStoreError(op, backend.KindIO, "database write failed").WithError(err)
}

// CreateTask implements StorageAdapter. As in the file adapter, a
// positive input id is preserved and ids otherwise grow monotonically.
func (a *Adapter) CreateTask(data backend.Task) (*backend.Task, error) {
	if data.Title == "" {
		return nil, backend.NewStoreError("CreateTask", backend.KindValidation,
			"task title must not be empty")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.Begin()
	if err != nil {
		return nil, ioErr("CreateTask", err)
	}
	defer tx.Rollback()

	if data.ID > 0 {
		var n int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM tasks WHERE id = ?`, data.ID).Scan(&n); err != nil {
			return nil, ioErr("CreateTask", err)
		}
		if n > 0 {
			return nil, backend.NewStoreError("CreateTask", backend.KindValidation,
				fmt.Sprintf("task id %d already exists", data.ID)).
				WithTaskRef(strconv.Itoa(data.ID))
		}
	} else {
		if err := tx.QueryRow(`SELECT COALESCE(MAX(id), 0) + 1 FROM tasks`).Scan(&data.ID); err != nil {
			return nil, ioErr("CreateTask", err)
		}
	}

	if err := validateDependenciesTx(tx, "CreateTask", data.ID, data.Dependencies); err != nil {
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

	if err := insertTaskTx(tx, data); err != nil {
		return nil, ioErr("CreateTask", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, ioErr("CreateTask", err)
	}

	clone := data.Clone()
	a.emitter.Emit(backend.Event{Kind: backend.EventTaskCreated, Task: &clone, TaskID: clone.ID})
	return &clone, nil
}

// UpdateTask implements StorageAdapter.
func (a *Adapter) UpdateTask(id int, patch backend.TaskPatch) (*backend.Task, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	current, err := a.getTaskLocked("UpdateTask", id)
	if err != nil {
		return nil, err
	}

	tx, err := a.db.Begin()
	if err != nil {
		return nil, ioErr("UpdateTask", err)
	}
	defer tx.Rollback()

	if patch.Dependencies != nil {
		if err := validateDependenciesTx(tx, "UpdateTask", id, *patch.Dependencies); err != nil {
			return nil, err
		}
	}

	patch.Apply(current)
	_, err = tx.Exec(`UPDATE tasks SET title = ?, description = ?, details = ?,
		test_strategy = ?, status = ?, priority = ?, remote_item_id = ?, updated_at = ?,
		last_synced_at = ?, last_modified_local = ?, last_modified_remote = ?,
		sync_status = ?, last_sync_error = ? WHERE id = ?`,
		current.Title, current.Description, current.Details, current.TestStrategy,
		string(current.Status), string(current.Priority), current.RemoteItemID,
		timeOrNull(current.UpdatedAt), timeOrNull(current.LastSyncedAt),
		timeOrNull(current.LastModifiedLocal), timeOrNull(current.LastModifiedRemote),
		string(current.SyncStatus), current.LastSyncError, id)
	if err != nil {
		return nil, ioErr("UpdateTask", err)
	}

	if patch.Dependencies != nil {
		if _, err := tx.Exec(`DELETE FROM task_dependencies WHERE task_id = ?`, id); err != nil {
			return nil, ioErr("UpdateTask", err)
		}
		for _, dep := range *patch.Dependencies {
			if _, err := tx.Exec(`INSERT INTO task_dependencies (task_id, depends_on) VALUES (?, ?)`,
				id, dep); err != nil {
				return nil, ioErr("UpdateTask", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, ioErr("UpdateTask", err)
	}

	clone := current.Clone()
	a.emitter.Emit(backend.Event{Kind: backend.EventTaskUpdated, Task: &clone, TaskID: id})
	return &clone, nil
}

// DeleteTask implements StorageAdapter. Dangling dependency edges fall
// away through the foreign-key cascade.
func (a *Adapter) DeleteTask(id int) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, ioErr("DeleteTask", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, backend.NewStoreError("DeleteTask", backend.KindNotFound,
			"task not found").WithTaskRef(strconv.Itoa(id))
	}
	a.emitter.Emit(backend.Event{Kind: backend.EventTaskDeleted, TaskID: id})
	return true, nil
}

// GetSubtasks implements StorageAdapter.
func (a *Adapter) GetSubtasks(parentID int) ([]backend.Subtask, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, err := a.getTaskLocked("GetSubtasks", parentID)
	if err != nil {
		return nil, err
	}
	return t.Subtasks, nil
}

// CreateSubtask implements StorageAdapter.
func (a *Adapter) CreateSubtask(parentID int, data backend.Subtask) (*backend.Subtask, error) {
	if data.Title == "" {
		return nil, backend.NewStoreError("CreateSubtask", backend.KindValidation,
			"subtask title must not be empty")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	parent, err := a.getTaskLocked("CreateSubtask", parentID)
	if err != nil {
		return nil, err
	}
	data.ID = parent.NextSubtaskID()
	now := time.Now().UTC()
	data.CreatedAt = now
	data.UpdatedAt = now
	if data.Status == "" {
		data.Status = backend.StatusPending
	}

	tx, err := a.db.Begin()
	if err != nil {
		return nil, ioErr("CreateSubtask", err)
	}
	defer tx.Rollback()
	if err := insertSubtaskTx(tx, parentID, data); err != nil {
		return nil, ioErr("CreateSubtask", err)
	}
	if _, err := tx.Exec(`UPDATE tasks SET updated_at = ? WHERE id = ?`,
		timeOrNull(now), parentID); err != nil {
		return nil, ioErr("CreateSubtask", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, ioErr("CreateSubtask", err)
	}

	out := data
	a.emitter.Emit(backend.Event{
		Kind: backend.EventSubtaskCreated, Subtask: &out,
		ParentID: parentID, SubID: out.ID,
	})
	return &out, nil
}

// UpdateSubtask implements StorageAdapter.
func (a *Adapter) UpdateSubtask(parentID, subID int, patch backend.TaskPatch) (*backend.Subtask, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	parent, err := a.getTaskLocked("UpdateSubtask", parentID)
	if err != nil {
		return nil, err
	}
	st := parent.Subtask(subID)
	if st == nil {
		return nil, backend.NewStoreError("UpdateSubtask", backend.KindNotFound,
			"subtask not found").WithTaskRef(fmt.Sprintf("%d.%d", parentID, subID))
	}

	patch.ApplySubtask(st)
	_, err = a.db.Exec(`UPDATE subtasks SET title = ?, description = ?, details = ?,
		test_strategy = ?, status = ?, priority = ?, remote_item_id = ?, updated_at = ?,
		sync_status = ? WHERE parent_id = ? AND sub_id = ?`,
		st.Title, st.Description, st.Details, st.TestStrategy,
		string(st.Status), string(st.Priority), st.RemoteItemID,
		timeOrNull(st.UpdatedAt), string(st.SyncStatus), parentID, subID)
	if err != nil {
		return nil, ioErr("UpdateSubtask", err)
	}

	out := *st
	a.emitter.Emit(backend.Event{
		Kind: backend.EventSubtaskUpdated, Subtask: &out,
		ParentID: parentID, SubID: subID,
	})
	return &out, nil
}

// DeleteSubtask implements StorageAdapter.
func (a *Adapter) DeleteSubtask(parentID, subID int) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.db.Exec(`DELETE FROM subtasks WHERE parent_id = ? AND sub_id = ?`,
		parentID, subID)
	if err != nil {
		return false, ioErr("DeleteSubtask", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, backend.NewStoreError("DeleteSubtask", backend.KindNotFound,
			"subtask not found").WithTaskRef(fmt.Sprintf("%d.%d", parentID, subID))
	}
	a.emitter.Emit(backend.Event{
		Kind: backend.EventSubtaskDeleted,
		ParentID: parentID, SubID: subID,
	})
	return true, nil
}

// SaveTasks replaces the whole collection in one transaction.
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

	tx, err := a.db.Begin()
	if err != nil {
		return ioErr("SaveTasks", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM tasks`); err != nil {
		return ioErr("SaveTasks", err)
	}
	for _, t := range tasks {
		if err := insertTaskTx(tx, t); err != nil {
			return ioErr("SaveTasks", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return ioErr("SaveTasks", err)
	}

	a.emitter.Emit(backend.Event{Kind: backend.EventTasksSaved})
	return nil
}

// Validate checks that the database answers queries.
func (a *Adapter) Validate() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return backend.NewStoreError("Validate", backend.KindConfig,
			"adapter not initialized")
	}
	var n int
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return backend.NewStoreError("Validate", backend.KindIO,
			"database check failed").WithError(err)
	}
	return nil
}

// ProviderInfo implements StorageAdapter.
func (a *Adapter) ProviderInfo() backend.ProviderInfo {
	return backend.ProviderInfo{
		Name:    "sqlite",
		Version: strconv.Itoa(SchemaVersion),
		Capabilities: []string{
			backend.CapBatchSave, backend.CapSubtasks,
		},
	}
}

// Events implements StorageAdapter.
func (a *Adapter) Events() *backend.Emitter { return a.emitter }

// Close implements StorageAdapter.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	a.initialized = false
	return err
}

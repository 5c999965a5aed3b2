package board

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"taskbridge/backend"
	"taskbridge/internal/utils"
)

const (
	defaultCacheTTL = 30 * time.Second

	queryBoard = `query ($boardId: ID!) {
  boards(ids: [$boardId]) {
    id
    name
    columns { id title type }
  }
}`

	queryItems = `query ($boardId: ID!) {
  boards(ids: [$boardId]) {
    items_page(limit: 500) {
      items {
        id
        name
        updated_at
        column_values { id text }
        subitems {
          id
          name
          updated_at
          column_values { id text }
        }
      }
    }
  }
}`

	mutationCreateItem = `mutation ($boardId: ID!, $name: String!) {
  create_item(board_id: $boardId, item_name: $name) { id }
}`

	mutationCreateSubitem = `mutation ($parentId: ID!, $name: String!) {
  create_subitem(parent_item_id: $parentId, item_name: $name) { id }
}`

	mutationSetColumn = `mutation ($boardId: ID!, $itemId: ID!, $columnId: String!, $value: String!) {
  change_simple_column_value(board_id: $boardId, item_id: $itemId, column_id: $columnId, value: $value) { id }
}`

	mutationRenameItem = `mutation ($itemId: ID!, $name: String!) {
  rename_item(item_id: $itemId, name: $name) { id }
}`

	mutationDeleteItem = `mutation ($itemId: ID!) {
  delete_item(item_id: $itemId) { id }
}`
)

// Config carries everything the adapter needs at construction.
type Config struct {
	Endpoint string
	Token    string
	BoardID  string
	Mapping  ColumnMapping
	CacheTTL time.Duration
	Timeout  time.Duration
}

// boardColumn is the column metadata cached at initialization.
type boardColumn struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// Adapter is the board-backed StorageAdapter. Reads go through a TTL
// snapshot cache; every successful write invalidates it.
type Adapter struct {
	api     *APIClient
	boardID string
	mapping ColumnMapping
	cache   *snapshotCache
	emitter *backend.Emitter

	mu          sync.Mutex
	columns     []boardColumn
	initialized bool
}

// New creates a board adapter. Initialize must be called before use.
func New(cfg Config) *Adapter {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Adapter{
		api:     NewAPIClient(cfg.Endpoint, cfg.Token, cfg.Timeout),
		boardID: cfg.BoardID,
		mapping: cfg.Mapping,
		cache:   newSnapshotCache(ttl),
		emitter: backend.NewEmitter(),
	}
}

// API exposes the transport so the connectivity monitor can reuse its
// Ping probe.
func (a *Adapter) API() *APIClient { return a.api }

// Initialize probes board access and caches the column metadata.
// Idempotent.
func (a *Adapter) Initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return nil
	}
	if a.boardID == "" {
		return backend.NewStoreError("Initialize", backend.KindConfig,
			"boardId is required for the board adapter")
	}

	data, err := a.api.Execute(queryBoard, map[string]any{"boardId": a.boardID})
	if err != nil {
		return err
	}

	var resp struct {
		Boards []struct {
			ID      string        `json:"id"`
			Name    string        `json:"name"`
			Columns []boardColumn `json:"columns"`
		} `json:"boards"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return backend.NewStoreError("Initialize", backend.KindTransport,
			"unparseable board response").WithError(err)
	}
	if len(resp.Boards) == 0 {
		return backend.NewStoreError("Initialize", backend.KindConfig,
			fmt.Sprintf("board %s not found or not accessible", a.boardID))
	}

	a.columns = resp.Boards[0].Columns
	a.initialized = true
	utils.Debugf("board adapter initialized: board %q with %d columns",
		resp.Boards[0].Name, len(a.columns))
	return nil
}

// fetchAll pulls every item with subitems and column values in one
// request and maps them to tasks.
func (a *Adapter) fetchAll() ([]backend.Task, error) {
	data, err := a.api.Execute(queryItems, map[string]any{"boardId": a.boardID})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Boards []struct {
			ItemsPage struct {
				Items []item `json:"items"`
			} `json:"items_page"`
		} `json:"boards"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, backend.NewStoreError("GetTasks", backend.KindTransport,
			"unparseable items response").WithError(err)
	}
	if len(resp.Boards) == 0 {
		return nil, backend.NewStoreError("GetTasks", backend.KindNotFound,
			fmt.Sprintf("board %s not found", a.boardID))
	}

	items := resp.Boards[0].ItemsPage.Items
	tasks := make([]backend.Task, 0, len(items))
	for _, it := range items {
		tasks = append(tasks, a.mapping.toTask(it))
	}
	return tasks, nil
}

// getAll returns the cached snapshot when fresh, else fetches and
// refreshes the cache.
func (a *Adapter) getAll() ([]backend.Task, error) {
	if tasks, ok := a.cache.get(); ok {
		return tasks, nil
	}
	tasks, err := a.fetchAll()
	if err != nil {
		return nil, err
	}
	a.cache.set(tasks)
	return tasks, nil
}

// GetTasks implements StorageAdapter; filters are applied in memory over
// the snapshot.
func (a *Adapter) GetTasks(filter *backend.TaskFilter) ([]backend.Task, error) {
	tasks, err := a.getAll()
	if err != nil {
		return nil, err
	}
	return backend.FilterTasks(tasks, filter), nil
}

// findTask locates a task by local id in the current snapshot.
func (a *Adapter) findTask(op string, id int) (*backend.Task, error) {
	tasks, err := a.getAll()
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if tasks[i].ID == id {
			t := tasks[i].Clone()
			return &t, nil
		}
	}
	return nil, backend.NewStoreError(op, backend.KindNotFound,
		"task not found on board").WithTaskRef(strconv.Itoa(id))
}

// GetTask implements StorageAdapter; dotted references address subitems.
func (a *Adapter) GetTask(ref string) (*backend.Task, error) {
	parsed, err := backend.ParseTaskRef(ref)
	if err != nil {
		return nil, err
	}
	t, err := a.findTask("GetTask", parsed.ID)
	if err != nil {
		return nil, err
	}
	if !parsed.IsSubtask() {
		return t, nil
	}
	st := t.Subtask(parsed.SubID)
	if st == nil {
		return nil, backend.NewStoreError("GetTask", backend.KindNotFound,
			"subtask not found on board").WithTaskRef(ref)
	}
	sub := backend.Task{
		ID:           st.ID,
		Title:        st.Title,
		Description:  st.Description,
		Details:      st.Details,
		Status:       st.Status,
		Priority:     st.Priority,
		RemoteItemID: st.RemoteItemID,
		UpdatedAt:    st.UpdatedAt,
	}
	return &sub, nil
}

// createItem issues the create mutation and returns the new item id.
func (a *Adapter) createItem(query string, vars map[string]any, field string) (string, error) {
	data, err := a.api.Execute(query, vars)
	if err != nil {
		return "", err
	}
	var resp map[string]struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", backend.NewStoreError("CreateTask", backend.KindTransport,
			"unparseable create response").WithError(err)
	}
	created, ok := resp[field]
	if !ok || created.ID == "" {
		return "", backend.NewStoreError("CreateTask", backend.KindTransport,
			"create mutation returned no item id")
	}
	return created.ID, nil
}

// setColumns applies the column writes in parallel. The first failure is
// returned but the remaining writes still run.
func (a *Adapter) setColumns(itemID string, writes []columnWrite) error {
	var g errgroup.Group
	for _, w := range writes {
		g.Go(func() error {
			_, err := a.api.Execute(mutationSetColumn, map[string]any{
				"boardId":  a.boardID,
				"itemId":   itemID,
				"columnId": w.columnID,
				"value":    w.value,
			})
			return err
		})
	}
	return g.Wait()
}

// CreateTask creates the item by name, then writes each configured column
// in parallel. The returned record carries the board-assigned item id.
func (a *Adapter) CreateTask(data backend.Task) (*backend.Task, error) {
	if data.Title == "" {
		return nil, backend.NewStoreError("CreateTask", backend.KindValidation,
			"task title must not be empty")
	}

	itemID, err := a.createItem(mutationCreateItem,
		map[string]any{"boardId": a.boardID, "name": data.Title}, "create_item")
	if err != nil {
		return nil, err
	}

	if err := a.setColumns(itemID, a.mapping.columnWrites(data)); err != nil {
		a.cache.invalidate()
		return nil, err
	}

	a.cache.invalidate()
	data.RemoteItemID = itemID
	clone := data.Clone()
	a.emitter.Emit(backend.Event{Kind: backend.EventTaskCreated, Task: &clone, TaskID: clone.ID})
	return &clone, nil
}

// UpdateTask applies the patch as per-column mutations. A title change
// goes through the dedicated rename mutation.
func (a *Adapter) UpdateTask(id int, patch backend.TaskPatch) (*backend.Task, error) {
	current, err := a.findTask("UpdateTask", id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil && *patch.Title != current.Title {
		_, err := a.api.Execute(mutationRenameItem, map[string]any{
			"itemId": current.RemoteItemID, "name": *patch.Title,
		})
		if err != nil {
			return nil, err
		}
	}

	patch.Apply(current)
	if err := a.setColumns(current.RemoteItemID, a.mapping.columnWrites(*current)); err != nil {
		a.cache.invalidate()
		return nil, err
	}

	a.cache.invalidate()
	clone := current.Clone()
	a.emitter.Emit(backend.Event{Kind: backend.EventTaskUpdated, Task: &clone, TaskID: id})
	return &clone, nil
}

// DeleteTask issues the delete mutation for the paired item.
func (a *Adapter) DeleteTask(id int) (bool, error) {
	current, err := a.findTask("DeleteTask", id)
	if err != nil {
		return false, err
	}
	_, err = a.api.Execute(mutationDeleteItem, map[string]any{"itemId": current.RemoteItemID})
	if err != nil {
		return false, err
	}
	a.cache.invalidate()
	a.emitter.Emit(backend.Event{Kind: backend.EventTaskDeleted, TaskID: id})
	return true, nil
}

// GetSubtasks implements StorageAdapter.
func (a *Adapter) GetSubtasks(parentID int) ([]backend.Subtask, error) {
	t, err := a.findTask("GetSubtasks", parentID)
	if err != nil {
		return nil, err
	}
	return t.Subtasks, nil
}

// CreateSubtask creates a subitem under the parent's item.
func (a *Adapter) CreateSubtask(parentID int, data backend.Subtask) (*backend.Subtask, error) {
	if data.Title == "" {
		return nil, backend.NewStoreError("CreateSubtask", backend.KindValidation,
			"subtask title must not be empty")
	}
	parent, err := a.findTask("CreateSubtask", parentID)
	if err != nil {
		return nil, err
	}
	if data.ID == 0 {
		data.ID = parent.NextSubtaskID()
	}

	subID, err := a.createItem(mutationCreateSubitem,
		map[string]any{"parentId": parent.RemoteItemID, "name": data.Title}, "create_subitem")
	if err != nil {
		return nil, err
	}

	if err := a.setColumns(subID, a.mapping.subtaskColumnWrites(data)); err != nil {
		a.cache.invalidate()
		return nil, err
	}

	a.cache.invalidate()
	data.RemoteItemID = subID
	out := data
	a.emitter.Emit(backend.Event{
		Kind: backend.EventSubtaskCreated, Subtask: &out,
		ParentID: parentID, SubID: out.ID,
	})
	return &out, nil
}

// UpdateSubtask applies the patch to the paired subitem.
func (a *Adapter) UpdateSubtask(parentID, subID int, patch backend.TaskPatch) (*backend.Subtask, error) {
	parent, err := a.findTask("UpdateSubtask", parentID)
	if err != nil {
		return nil, err
	}
	st := parent.Subtask(subID)
	if st == nil {
		return nil, backend.NewStoreError("UpdateSubtask", backend.KindNotFound,
			"subtask not found on board").WithTaskRef(fmt.Sprintf("%d.%d", parentID, subID))
	}

	if patch.Title != nil && *patch.Title != st.Title {
		_, err := a.api.Execute(mutationRenameItem, map[string]any{
			"itemId": st.RemoteItemID, "name": *patch.Title,
		})
		if err != nil {
			return nil, err
		}
	}

	patch.ApplySubtask(st)
	if err := a.setColumns(st.RemoteItemID, a.mapping.subtaskColumnWrites(*st)); err != nil {
		a.cache.invalidate()
		return nil, err
	}

	a.cache.invalidate()
	out := *st
	a.emitter.Emit(backend.Event{
		Kind: backend.EventSubtaskUpdated, Subtask: &out,
		ParentID: parentID, SubID: subID,
	})
	return &out, nil
}

// DeleteSubtask deletes the paired subitem.
func (a *Adapter) DeleteSubtask(parentID, subID int) (bool, error) {
	parent, err := a.findTask("DeleteSubtask", parentID)
	if err != nil {
		return false, err
	}
	st := parent.Subtask(subID)
	if st == nil {
		return false, backend.NewStoreError("DeleteSubtask", backend.KindNotFound,
			"subtask not found on board").WithTaskRef(fmt.Sprintf("%d.%d", parentID, subID))
	}
	_, err = a.api.Execute(mutationDeleteItem, map[string]any{"itemId": st.RemoteItemID})
	if err != nil {
		return false, err
	}
	a.cache.invalidate()
	a.emitter.Emit(backend.Event{
		Kind: backend.EventSubtaskDeleted,
		ParentID: parentID, SubID: subID,
	})
	return true, nil
}

// SaveTasks is not supported: the board has no batch-replace mutation.
func (a *Adapter) SaveTasks([]backend.Task) error {
	return backend.NewStoreError("SaveTasks", backend.KindUnsupported,
		"the board adapter does not support batch replace")
}

// Validate checks that the board is reachable.
func (a *Adapter) Validate() error {
	return a.api.Ping()
}

// ProviderInfo implements StorageAdapter.
func (a *Adapter) ProviderInfo() backend.ProviderInfo {
	return backend.ProviderInfo{
		Name:    "board",
		Version: "1",
		Capabilities: []string{
			backend.CapSubtasks, backend.CapRemoteIDs,
		},
	}
}

// Events implements StorageAdapter.
func (a *Adapter) Events() *backend.Emitter { return a.emitter }

// Close implements StorageAdapter.
func (a *Adapter) Close() error { return nil }

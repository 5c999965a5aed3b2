package backend

// This file contains shared test helpers and mocks used across packages.
// MockAdapter stands in for either side of a sync pair in engine, queue
// and façade tests.

import (
	"fmt"
	"strconv"
	"sync"
)

// MockAdapter implements StorageAdapter in memory. Error fields, when
// set, are returned by the corresponding operation; OpLog records every
// mutating call in issue order so tests can assert per-task FIFO.
type MockAdapter struct {
	mu     sync.Mutex
	Tasks  map[int]Task
	nextID int

	CreateErr error
	UpdateErr error
	DeleteErr error
	GetErr    error

	// OpLog entries look like "create:3", "update:3", "delete:3".
	OpLog []string

	name    string
	emitter *Emitter
}

// NewMockAdapter creates an empty in-memory adapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		Tasks:   make(map[int]Task),
		nextID:  1,
		name:    "mock",
		emitter: NewEmitter(),
	}
}

// NewMockAdapterWithName creates a named mock for tests that need to tell
// two mocks apart.
func NewMockAdapterWithName(name string) *MockAdapter {
	m := NewMockAdapter()
	m.name = name
	return m
}

// Seed inserts a task directly, bypassing the op log.
func (m *MockAdapter) Seed(t Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tasks[t.ID] = t
	if t.ID >= m.nextID {
		m.nextID = t.ID + 1
	}
}

func (m *MockAdapter) Initialize() error { return nil }

func (m *MockAdapter) GetTasks(filter *TaskFilter) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	out := make([]Task, 0, len(m.Tasks))
	for _, t := range m.Tasks {
		if filter.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (m *MockAdapter) GetTask(ref string) (*Task, error) {
	parsed, err := ParseTaskRef(ref)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	t, ok := m.Tasks[parsed.ID]
	if !ok {
		return nil, NewStoreError("GetTask", KindNotFound, "task not found").WithTaskRef(ref)
	}
	if parsed.IsSubtask() {
		st := t.Subtask(parsed.SubID)
		if st == nil {
			return nil, NewStoreError("GetTask", KindNotFound, "subtask not found").WithTaskRef(ref)
		}
		sub := Task{
			ID:          st.ID,
			Title:       st.Title,
			Description: st.Description,
			Status:      st.Status,
			Priority:    st.Priority,
		}
		return &sub, nil
	}
	clone := t.Clone()
	return &clone, nil
}

func (m *MockAdapter) CreateTask(data Task) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	if data.ID == 0 {
		data.ID = m.nextID
	}
	if data.ID >= m.nextID {
		m.nextID = data.ID + 1
	}
	if data.RemoteItemID == "" && m.name == "remote" {
		data.RemoteItemID = "item-" + strconv.Itoa(data.ID)
	}
	m.Tasks[data.ID] = data
	m.OpLog = append(m.OpLog, fmt.Sprintf("create:%d", data.ID))
	clone := data.Clone()
	return &clone, nil
}

func (m *MockAdapter) UpdateTask(id int, patch TaskPatch) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}
	t, ok := m.Tasks[id]
	if !ok {
		return nil, NewStoreError("UpdateTask", KindNotFound, "task not found").
			WithTaskRef(strconv.Itoa(id))
	}
	patch.Apply(&t)
	m.Tasks[id] = t
	m.OpLog = append(m.OpLog, fmt.Sprintf("update:%d", id))
	clone := t.Clone()
	return &clone, nil
}

func (m *MockAdapter) DeleteTask(id int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return false, m.DeleteErr
	}
	if _, ok := m.Tasks[id]; !ok {
		return false, NewStoreError("DeleteTask", KindNotFound, "task not found").
			WithTaskRef(strconv.Itoa(id))
	}
	delete(m.Tasks, id)
	m.OpLog = append(m.OpLog, fmt.Sprintf("delete:%d", id))
	return true, nil
}

func (m *MockAdapter) GetSubtasks(parentID int) ([]Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tasks[parentID]
	if !ok {
		return nil, NewStoreError("GetSubtasks", KindNotFound, "task not found").
			WithTaskRef(strconv.Itoa(parentID))
	}
	out := make([]Subtask, len(t.Subtasks))
	copy(out, t.Subtasks)
	return out, nil
}

func (m *MockAdapter) CreateSubtask(parentID int, data Subtask) (*Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tasks[parentID]
	if !ok {
		return nil, NewStoreError("CreateSubtask", KindNotFound, "task not found").
			WithTaskRef(strconv.Itoa(parentID))
	}
	if data.ID == 0 {
		data.ID = t.NextSubtaskID()
	}
	t.Subtasks = append(t.Subtasks, data)
	m.Tasks[parentID] = t
	m.OpLog = append(m.OpLog, fmt.Sprintf("createSub:%d.%d", parentID, data.ID))
	return &data, nil
}

func (m *MockAdapter) UpdateSubtask(parentID, subID int, patch TaskPatch) (*Subtask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tasks[parentID]
	if !ok {
		return nil, NewStoreError("UpdateSubtask", KindNotFound, "task not found").
			WithTaskRef(strconv.Itoa(parentID))
	}
	st := t.Subtask(subID)
	if st == nil {
		return nil, NewStoreError("UpdateSubtask", KindNotFound, "subtask not found").
			WithTaskRef(fmt.Sprintf("%d.%d", parentID, subID))
	}
	patch.ApplySubtask(st)
	m.Tasks[parentID] = t
	out := *st
	return &out, nil
}

func (m *MockAdapter) DeleteSubtask(parentID, subID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tasks[parentID]
	if !ok {
		return false, NewStoreError("DeleteSubtask", KindNotFound, "task not found").
			WithTaskRef(strconv.Itoa(parentID))
	}
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == subID {
			t.Subtasks = append(t.Subtasks[:i], t.Subtasks[i+1:]...)
			m.Tasks[parentID] = t
			return true, nil
		}
	}
	return false, NewStoreError("DeleteSubtask", KindNotFound, "subtask not found").
		WithTaskRef(fmt.Sprintf("%d.%d", parentID, subID))
}

func (m *MockAdapter) SaveTasks(tasks []Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tasks = make(map[int]Task, len(tasks))
	for _, t := range tasks {
		m.Tasks[t.ID] = t
		if t.ID >= m.nextID {
			m.nextID = t.ID + 1
		}
	}
	m.OpLog = append(m.OpLog, "saveTasks")
	return nil
}

func (m *MockAdapter) Validate() error {
	if m.GetErr != nil {
		return m.GetErr
	}
	return nil
}

func (m *MockAdapter) ProviderInfo() ProviderInfo {
	return ProviderInfo{
		Name:         m.name,
		Version:      "test",
		Capabilities: []string{CapBatchSave, CapSubtasks},
	}
}

func (m *MockAdapter) Events() *Emitter { return m.emitter }

func (m *MockAdapter) Close() error { return nil }

// TaskCount returns the number of stored tasks.
func (m *MockAdapter) TaskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Tasks)
}

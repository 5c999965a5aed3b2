package backend

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Status is the lifecycle state of a task or subtask.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
	StatusBlocked    Status = "blocked"
	StatusCancelled  Status = "cancelled"
	StatusDeferred   Status = "deferred"
)

// AllStatuses returns every recognized status value.
func AllStatuses() []Status {
	return []Status{
		StatusPending, StatusInProgress, StatusReview, StatusDone,
		StatusBlocked, StatusCancelled, StatusDeferred,
	}
}

// Valid reports whether s is one of the recognized status values.
func (s Status) Valid() bool {
	return slices.Contains(AllStatuses(), s)
}

// Priority is the urgency level of a task or subtask.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// AllPriorities returns every recognized priority value.
func AllPriorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
}

// Valid reports whether p is one of the recognized priority values.
func (p Priority) Valid() bool {
	return slices.Contains(AllPriorities(), p)
}

// SyncStatus tracks where a task stands relative to the remote store.
type SyncStatus string

const (
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusConflict SyncStatus = "conflict"
	SyncStatusError    SyncStatus = "error"
)

// Subtask is a child record embedded in a Task. It carries the same core
// fields as a Task but no nested subtasks and no dependency validation.
type Subtask struct {
	ID           int        `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Details      string     `json:"details,omitempty"`
	TestStrategy string     `json:"testStrategy,omitempty"`
	Status       Status     `json:"status"`
	Priority     Priority   `json:"priority,omitempty"`
	RemoteItemID string     `json:"remoteItemId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt,omitzero"`
	UpdatedAt    time.Time  `json:"updatedAt,omitzero"`
	SyncStatus   SyncStatus `json:"syncStatus,omitempty"`
}

// Ref returns the canonical dotted identifier "<parent>.<sub>".
func (s Subtask) Ref(parentID int) string {
	return fmt.Sprintf("%d.%d", parentID, s.ID)
}

// Task is the unit of synchronization. IDs are assigned by the local
// adapter and are unique within the local store; RemoteItemID is assigned
// by the remote store on creation and is never mutated locally afterwards.
type Task struct {
	ID           int      `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Details      string   `json:"details,omitempty"`
	TestStrategy string   `json:"testStrategy,omitempty"`
	Status       Status   `json:"status"`
	Priority     Priority `json:"priority,omitempty"`
	Dependencies []int    `json:"dependencies,omitempty"`
	Subtasks     []Subtask `json:"subtasks,omitempty"`

	RemoteItemID string `json:"remoteItemId,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`

	// Sync tracking. Zero times mean "never", which comparisons treat as
	// the epoch.
	LastSyncedAt       time.Time  `json:"lastSyncedAt,omitzero"`
	LastModifiedLocal  time.Time  `json:"lastModifiedLocal,omitzero"`
	LastModifiedRemote time.Time  `json:"lastModifiedRemote,omitzero"`
	SyncStatus         SyncStatus `json:"syncStatus,omitempty"`
	LastSyncError      string     `json:"lastSyncError,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate cached state.
func (t Task) Clone() Task {
	out := t
	out.Dependencies = slices.Clone(t.Dependencies)
	out.Subtasks = slices.Clone(t.Subtasks)
	return out
}

// HasDependency reports whether id appears in the task's dependency set.
func (t Task) HasDependency(id int) bool {
	return slices.Contains(t.Dependencies, id)
}

// ModifiedLocal resolves the local-modification instant using the
// fallback chain lastModifiedLocal -> updatedAt -> epoch.
func (t Task) ModifiedLocal() time.Time {
	if !t.LastModifiedLocal.IsZero() {
		return t.LastModifiedLocal
	}
	return t.UpdatedAt
}

// ModifiedRemote resolves the remote-modification instant using the
// fallback chain lastModifiedRemote -> updatedAt -> epoch.
func (t Task) ModifiedRemote() time.Time {
	if !t.LastModifiedRemote.IsZero() {
		return t.LastModifiedRemote
	}
	return t.UpdatedAt
}

// Subtask returns the embedded subtask with the given id, or nil.
func (t *Task) Subtask(subID int) *Subtask {
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == subID {
			return &t.Subtasks[i]
		}
	}
	return nil
}

// NextSubtaskID returns max(existing subtask ids) + 1, or 1 when the
// task has no subtasks yet.
func (t Task) NextSubtaskID() int {
	next := 1
	for _, st := range t.Subtasks {
		if st.ID >= next {
			next = st.ID + 1
		}
	}
	return next
}

// TaskFilter narrows GetTasks results. All fields are optional and
// combine with AND semantics.
type TaskFilter struct {
	Status *Status // exact status match
	IDs    []int   // id membership
	Search string  // case-insensitive substring over title and description
}

// Matches reports whether the task passes the filter.
func (f *TaskFilter) Matches(t Task) bool {
	if f == nil {
		return true
	}
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, t.ID) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Title), needle) &&
			!strings.Contains(strings.ToLower(t.Description), needle) {
			return false
		}
	}
	return true
}

// FilterTasks applies the filter to a slice, returning matching clones.
func FilterTasks(tasks []Task, filter *TaskFilter) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if filter.Matches(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// TaskPatch is a partial update merged over an existing task. Nil fields
// are left untouched.
type TaskPatch struct {
	Title        *string
	Description  *string
	Details      *string
	TestStrategy *string
	Status       *Status
	Priority     *Priority
	Dependencies *[]int

	RemoteItemID       *string
	LastSyncedAt       *time.Time
	LastModifiedLocal  *time.Time
	LastModifiedRemote *time.Time
	SyncStatus         *SyncStatus
	LastSyncError      *string
}

// Apply merges the patch into t and stamps UpdatedAt.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Details != nil {
		t.Details = *p.Details
	}
	if p.TestStrategy != nil {
		t.TestStrategy = *p.TestStrategy
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Dependencies != nil {
		t.Dependencies = slices.Clone(*p.Dependencies)
	}
	if p.RemoteItemID != nil {
		t.RemoteItemID = *p.RemoteItemID
	}
	if p.LastSyncedAt != nil {
		t.LastSyncedAt = *p.LastSyncedAt
	}
	if p.LastModifiedLocal != nil {
		t.LastModifiedLocal = *p.LastModifiedLocal
	}
	if p.LastModifiedRemote != nil {
		t.LastModifiedRemote = *p.LastModifiedRemote
	}
	if p.SyncStatus != nil {
		t.SyncStatus = *p.SyncStatus
	}
	if p.LastSyncError != nil {
		t.LastSyncError = *p.LastSyncError
	}
	t.UpdatedAt = time.Now().UTC()
}

// ApplySubtask merges the patch into a subtask. Only the fields a subtask
// carries are considered.
func (p TaskPatch) ApplySubtask(s *Subtask) {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.Details != nil {
		s.Details = *p.Details
	}
	if p.TestStrategy != nil {
		s.TestStrategy = *p.TestStrategy
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.Priority != nil {
		s.Priority = *p.Priority
	}
	if p.RemoteItemID != nil {
		s.RemoteItemID = *p.RemoteItemID
	}
	if p.SyncStatus != nil {
		s.SyncStatus = *p.SyncStatus
	}
	s.UpdatedAt = time.Now().UTC()
}

// PatchFromTask builds a full-field patch that makes the target equal to
// src on the synchronized fields. Used when one side wins a conflict.
func PatchFromTask(src Task) TaskPatch {
	deps := slices.Clone(src.Dependencies)
	return TaskPatch{
		Title:        &src.Title,
		Description:  &src.Description,
		Details:      &src.Details,
		TestStrategy: &src.TestStrategy,
		Status:       &src.Status,
		Priority:     &src.Priority,
		Dependencies: &deps,
	}
}

// String renders a one-line summary used by CLI output and logs.
func (t Task) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s (%s", t.ID, t.Title, t.Status)
	if t.Priority != "" {
		fmt.Fprintf(&b, "/%s", t.Priority)
	}
	b.WriteString(")")
	if t.RemoteItemID != "" {
		fmt.Fprintf(&b, " remote=%s", t.RemoteItemID)
	}
	if len(t.Subtasks) > 0 {
		fmt.Fprintf(&b, " subtasks=%d", len(t.Subtasks))
	}
	return b.String()
}

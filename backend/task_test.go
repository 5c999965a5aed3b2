package backend

import (
	"testing"
	"time"
)

func TestStatusValid(t *testing.T) {
	for _, s := range AllStatuses() {
		if !s.Valid() {
			t.Errorf("status %q should be valid", s)
		}
	}
	if Status("urgent").Valid() {
		t.Error("unrecognized status should not be valid")
	}
	if Status("").Valid() {
		t.Error("empty status should not be valid")
	}
}

func TestPriorityValid(t *testing.T) {
	for _, p := range AllPriorities() {
		if !p.Valid() {
			t.Errorf("priority %q should be valid", p)
		}
	}
	if Priority("urgent").Valid() {
		t.Error("unrecognized priority should not be valid")
	}
}

func TestTaskCloneIsDeep(t *testing.T) {
	orig := Task{
		ID:           1,
		Title:        "original",
		Dependencies: []int{2, 3},
		Subtasks:     []Subtask{{ID: 1, Title: "sub"}},
	}

	clone := orig.Clone()
	clone.Dependencies[0] = 99
	clone.Subtasks[0].Title = "changed"

	if orig.Dependencies[0] != 2 {
		t.Error("clone shares the dependency slice with the original")
	}
	if orig.Subtasks[0].Title != "sub" {
		t.Error("clone shares the subtask slice with the original")
	}
}

func TestModifiedLocalFallback(t *testing.T) {
	explicit := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	updated := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	task := Task{LastModifiedLocal: explicit, UpdatedAt: updated}
	if got := task.ModifiedLocal(); !got.Equal(explicit) {
		t.Errorf("expected explicit timestamp, got %v", got)
	}

	task = Task{UpdatedAt: updated}
	if got := task.ModifiedLocal(); !got.Equal(updated) {
		t.Errorf("expected updatedAt fallback, got %v", got)
	}

	task = Task{}
	if got := task.ModifiedLocal(); !got.IsZero() {
		t.Errorf("expected zero time for unstamped task, got %v", got)
	}
}

func TestModifiedRemoteFallback(t *testing.T) {
	explicit := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	task := Task{LastModifiedRemote: explicit}
	if got := task.ModifiedRemote(); !got.Equal(explicit) {
		t.Errorf("expected explicit timestamp, got %v", got)
	}

	updated := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	task = Task{UpdatedAt: updated}
	if got := task.ModifiedRemote(); !got.Equal(updated) {
		t.Errorf("expected updatedAt fallback, got %v", got)
	}
}

func TestNextSubtaskID(t *testing.T) {
	task := Task{}
	if got := task.NextSubtaskID(); got != 1 {
		t.Errorf("empty task: expected 1, got %d", got)
	}

	task.Subtasks = []Subtask{{ID: 1}, {ID: 5}, {ID: 3}}
	if got := task.NextSubtaskID(); got != 6 {
		t.Errorf("expected max+1 = 6, got %d", got)
	}
}

func TestTaskFilterMatches(t *testing.T) {
	done := StatusDone
	task := Task{ID: 7, Title: "Deploy API gateway", Description: "staging rollout", Status: StatusDone}

	cases := []struct {
		name   string
		filter *TaskFilter
		want   bool
	}{
		{"nil filter matches", nil, true},
		{"status match", &TaskFilter{Status: &done}, true},
		{"status mismatch", &TaskFilter{Status: statusPtr(StatusPending)}, false},
		{"id membership", &TaskFilter{IDs: []int{3, 7}}, true},
		{"id miss", &TaskFilter{IDs: []int{3, 4}}, false},
		{"search in title", &TaskFilter{Search: "gateway"}, true},
		{"search case-insensitive", &TaskFilter{Search: "DEPLOY"}, true},
		{"search in description", &TaskFilter{Search: "rollout"}, true},
		{"search miss", &TaskFilter{Search: "database"}, false},
		{"combined AND", &TaskFilter{Status: &done, Search: "gateway"}, true},
		{"combined AND miss", &TaskFilter{Status: &done, Search: "database"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Matches(task); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestPatchApply(t *testing.T) {
	task := Task{ID: 1, Title: "before", Status: StatusPending, Dependencies: []int{2}}

	title := "after"
	status := StatusInProgress
	deps := []int{3, 4}
	patch := TaskPatch{Title: &title, Status: &status, Dependencies: &deps}
	patch.Apply(&task)

	if task.Title != "after" {
		t.Errorf("title not applied: %q", task.Title)
	}
	if task.Status != StatusInProgress {
		t.Errorf("status not applied: %q", task.Status)
	}
	if len(task.Dependencies) != 2 || task.Dependencies[0] != 3 {
		t.Errorf("dependencies not applied: %v", task.Dependencies)
	}
	if task.UpdatedAt.IsZero() {
		t.Error("Apply should stamp UpdatedAt")
	}

	// Nil fields leave the record alone.
	var empty TaskPatch
	empty.Apply(&task)
	if task.Title != "after" || task.Status != StatusInProgress {
		t.Error("empty patch must not clear fields")
	}
}

func TestPatchFromTask(t *testing.T) {
	src := Task{
		Title:        "winner",
		Description:  "desc",
		Status:       StatusDone,
		Priority:     PriorityHigh,
		Dependencies: []int{1, 2},
	}

	var dst Task
	PatchFromTask(src).Apply(&dst)

	if dst.Title != src.Title || dst.Status != src.Status || dst.Priority != src.Priority {
		t.Errorf("patch did not carry core fields: %+v", dst)
	}
	if len(dst.Dependencies) != 2 {
		t.Errorf("patch did not carry dependencies: %v", dst.Dependencies)
	}

	// The patch must not alias the source slice.
	dst.Dependencies[0] = 99
	if src.Dependencies[0] != 1 {
		t.Error("patch aliases the source dependency slice")
	}
}

func statusPtr(s Status) *Status { return &s }

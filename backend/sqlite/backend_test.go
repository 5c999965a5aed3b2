package sqlite

import (
	"path/filepath"
	"slices"
	"testing"

	"taskbridge/backend"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a := New(filepath.Join(t.TempDir(), "tasks.db"))
	if err := a.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestInitializeIsIdempotent(t *testing.T) {
	a := newTestAdapter(t)
	if err := a.Initialize(); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	a := newTestAdapter(t)

	first, err := a.CreateTask(backend.Task{Title: "first"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.CreateTask(backend.Task{Title: "second"})
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != 1 || second.ID != 2 {
		t.Errorf("expected ids 1 and 2, got %d and %d", first.ID, second.ID)
	}

	// Deleting the newest task must not recycle its id.
	if _, err := a.DeleteTask(second.ID); err != nil {
		t.Fatal(err)
	}
	third, err := a.CreateTask(backend.Task{Title: "third"})
	if err != nil {
		t.Fatal(err)
	}
	if third.ID != 2 {
		t.Errorf("max+1 assignment expected id 2, got %d", third.ID)
	}
}

func TestCreatePreservesExplicitID(t *testing.T) {
	a := newTestAdapter(t)

	created, err := a.CreateTask(backend.Task{ID: 42, Title: "pinned"})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID != 42 {
		t.Errorf("explicit id not preserved: got %d", created.ID)
	}

	_, err = a.CreateTask(backend.Task{ID: 42, Title: "dup"})
	if !backend.IsValidation(err) {
		t.Errorf("duplicate explicit id should be a validation error, got %v", err)
	}
}

func TestCreateValidatesDependencies(t *testing.T) {
	a := newTestAdapter(t)
	if _, err := a.CreateTask(backend.Task{Title: "base"}); err != nil {
		t.Fatal(err)
	}

	_, err := a.CreateTask(backend.Task{Title: "bad", Dependencies: []int{99}})
	if !backend.IsInvalidDependency(err) {
		t.Errorf("missing dependency should be rejected, got %v", err)
	}

	_, err = a.CreateTask(backend.Task{ID: 5, Title: "self", Dependencies: []int{5}})
	if !backend.IsInvalidDependency(err) {
		t.Errorf("self dependency should be rejected, got %v", err)
	}

	ok, err := a.CreateTask(backend.Task{Title: "good", Dependencies: []int{1}})
	if err != nil {
		t.Fatalf("valid dependency rejected: %v", err)
	}
	if !slices.Equal(ok.Dependencies, []int{1}) {
		t.Errorf("dependencies not persisted: %v", ok.Dependencies)
	}
}

func TestUpdateTask(t *testing.T) {
	a := newTestAdapter(t)
	created, err := a.CreateTask(backend.Task{Title: "original"})
	if err != nil {
		t.Fatal(err)
	}

	title := "renamed"
	status := backend.StatusDone
	updated, err := a.UpdateTask(created.ID, backend.TaskPatch{Title: &title, Status: &status})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if updated.Title != "renamed" || updated.Status != backend.StatusDone {
		t.Errorf("patch not applied: %+v", updated)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Error("updatedAt should advance")
	}

	// Reload from disk rather than trusting the returned clone.
	got, err := a.GetTask("1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "renamed" {
		t.Errorf("persisted title wrong: %q", got.Title)
	}

	_, err = a.UpdateTask(999, backend.TaskPatch{Title: &title})
	if !backend.IsNotFound(err) {
		t.Errorf("updating a missing task should be not-found, got %v", err)
	}
}

func TestDeleteCascadesDependencyEdges(t *testing.T) {
	a := newTestAdapter(t)
	if _, err := a.CreateTask(backend.Task{Title: "base"}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.CreateTask(backend.Task{Title: "dependent", Dependencies: []int{1}}); err != nil {
		t.Fatal(err)
	}

	if _, err := a.DeleteTask(1); err != nil {
		t.Fatal(err)
	}
	got, err := a.GetTask("2")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Dependencies) != 0 {
		t.Errorf("dangling dependency edge survived: %v", got.Dependencies)
	}

	_, err = a.DeleteTask(1)
	if !backend.IsNotFound(err) {
		t.Errorf("double delete should be not-found, got %v", err)
	}
}

func TestSubtaskLifecycle(t *testing.T) {
	a := newTestAdapter(t)
	parent, err := a.CreateTask(backend.Task{Title: "parent"})
	if err != nil {
		t.Fatal(err)
	}

	st, err := a.CreateSubtask(parent.ID, backend.Subtask{Title: "child"})
	if err != nil {
		t.Fatalf("CreateSubtask failed: %v", err)
	}
	if st.ID != 1 {
		t.Errorf("first subtask id should be 1, got %d", st.ID)
	}
	second, err := a.CreateSubtask(parent.ID, backend.Subtask{Title: "child 2"})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != 2 {
		t.Errorf("subtask ids should be sequential within the parent, got %d", second.ID)
	}

	// Dotted ref addresses the subtask.
	got, err := a.GetTask("1.2")
	if err != nil {
		t.Fatalf("dotted GetTask failed: %v", err)
	}
	if got.Title != "child 2" {
		t.Errorf("wrong subtask projected: %q", got.Title)
	}

	title := "child renamed"
	if _, err := a.UpdateSubtask(parent.ID, 1, backend.TaskPatch{Title: &title}); err != nil {
		t.Fatalf("UpdateSubtask failed: %v", err)
	}
	subs, err := a.GetSubtasks(parent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 || subs[0].Title != "child renamed" {
		t.Errorf("subtask state wrong: %+v", subs)
	}

	if _, err := a.DeleteSubtask(parent.ID, 1); err != nil {
		t.Fatal(err)
	}
	subs, _ = a.GetSubtasks(parent.ID)
	if len(subs) != 1 || subs[0].ID != 2 {
		t.Errorf("surviving subtask wrong: %+v", subs)
	}

	// Deleting the parent removes its subtasks through the cascade.
	if _, err := a.DeleteTask(parent.ID); err != nil {
		t.Fatal(err)
	}
	_, err = a.GetSubtasks(parent.ID)
	if !backend.IsNotFound(err) {
		t.Errorf("expected not-found after parent delete, got %v", err)
	}
}

func TestSaveTasksReplacesCollection(t *testing.T) {
	a := newTestAdapter(t)
	if _, err := a.CreateTask(backend.Task{Title: "old"}); err != nil {
		t.Fatal(err)
	}

	batch := []backend.Task{
		{ID: 10, Title: "ten", Status: backend.StatusPending, Priority: backend.PriorityHigh},
		{ID: 11, Title: "eleven", Status: backend.StatusDone, Priority: backend.PriorityLow,
			Dependencies: []int{10},
			Subtasks:     []backend.Subtask{{ID: 1, Title: "sub", Status: backend.StatusPending}}},
	}
	if err := a.SaveTasks(batch); err != nil {
		t.Fatalf("SaveTasks failed: %v", err)
	}

	tasks, err := a.GetTasks(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 || tasks[0].ID != 10 || tasks[1].ID != 11 {
		t.Fatalf("collection not replaced: %+v", tasks)
	}
	if !slices.Equal(tasks[1].Dependencies, []int{10}) {
		t.Errorf("dependencies lost in batch save: %v", tasks[1].Dependencies)
	}
	if len(tasks[1].Subtasks) != 1 || tasks[1].Subtasks[0].Title != "sub" {
		t.Errorf("subtasks lost in batch save: %+v", tasks[1].Subtasks)
	}

	err = a.SaveTasks([]backend.Task{{Title: "no id"}})
	if !backend.IsValidation(err) {
		t.Errorf("batch entries without ids should be rejected, got %v", err)
	}
}

func TestGetTasksFilter(t *testing.T) {
	a := newTestAdapter(t)
	seed := []backend.Task{
		{ID: 1, Title: "a", Status: backend.StatusPending, Priority: backend.PriorityLow},
		{ID: 2, Title: "b", Status: backend.StatusDone, Priority: backend.PriorityHigh},
		{ID: 3, Title: "c", Status: backend.StatusPending, Priority: backend.PriorityHigh},
	}
	if err := a.SaveTasks(seed); err != nil {
		t.Fatal(err)
	}

	status := backend.StatusPending
	tasks, err := a.GetTasks(&backend.TaskFilter{Status: &status})
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 2 {
		t.Errorf("status filter returned %d tasks", len(tasks))
	}

	priority := backend.PriorityHigh
	tasks, err = a.GetTasks(&backend.TaskFilter{Status: &status, Priority: &priority})
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].ID != 3 {
		t.Errorf("combined filter wrong: %+v", tasks)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.db")

	a := New(path)
	if err := a.Initialize(); err != nil {
		t.Fatal(err)
	}
	if _, err := a.CreateTask(backend.Task{Title: "durable", Dependencies: nil}); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	b := New(path)
	if err := b.Initialize(); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer b.Close()
	got, err := b.GetTask("1")
	if err != nil {
		t.Fatalf("task lost across reopen: %v", err)
	}
	if got.Title != "durable" {
		t.Errorf("wrong task after reopen: %q", got.Title)
	}
}

func TestEventsEmittedOnMutation(t *testing.T) {
	a := newTestAdapter(t)
	var kinds []backend.EventKind
	a.Events().Subscribe(func(ev backend.Event) {
		kinds = append(kinds, ev.Kind)
	})

	created, err := a.CreateTask(backend.Task{Title: "watched"})
	if err != nil {
		t.Fatal(err)
	}
	title := "watched v2"
	if _, err := a.UpdateTask(created.ID, backend.TaskPatch{Title: &title}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.DeleteTask(created.ID); err != nil {
		t.Fatal(err)
	}

	want := []backend.EventKind{
		backend.EventTaskCreated, backend.EventTaskUpdated, backend.EventTaskDeleted,
	}
	if !slices.Equal(kinds, want) {
		t.Errorf("event order wrong: got %v, want %v", kinds, want)
	}
}

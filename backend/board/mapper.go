package board

import (
	"strconv"
	"strings"
	"time"

	"taskbridge/backend"
)

// ColumnMapping maps logical task fields to board column ids. The mapping
// is read from config at initialization and never mutated afterwards.
// TaskID is optional; when configured and populated on an item it is
// authoritative over the item id for pairing with local tasks.
type ColumnMapping struct {
	Status       string `yaml:"status" json:"status"`
	Description  string `yaml:"description" json:"description"`
	Details      string `yaml:"details" json:"details"`
	Priority     string `yaml:"priority" json:"priority"`
	TestStrategy string `yaml:"testStrategy" json:"testStrategy"`
	Dependencies string `yaml:"dependencies" json:"dependencies"`
	TaskID       string `yaml:"taskId" json:"taskId"`
}

// DefaultColumnMapping returns the column ids of an unmodified board.
func DefaultColumnMapping() ColumnMapping {
	return ColumnMapping{
		Status:       "status",
		Description:  "description",
		Details:      "details",
		Priority:     "priority",
		TestStrategy: "test_strategy",
		Dependencies: "dependencies",
		TaskID:       "task_id",
	}
}

// Status and priority columns carry enumerated labels on the board; the
// tables below translate both ways. Unknown remote labels map to pending
// and medium rather than failing the fetch.
var statusToLabel = map[backend.Status]string{
	backend.StatusPending:    "Not Started",
	backend.StatusInProgress: "Working on it",
	backend.StatusReview:     "Under Review",
	backend.StatusDone:       "Done",
	backend.StatusBlocked:    "Stuck",
	backend.StatusCancelled:  "Cancelled",
	backend.StatusDeferred:   "Deferred",
}

var labelToStatus = func() map[string]backend.Status {
	m := make(map[string]backend.Status, len(statusToLabel))
	for s, l := range statusToLabel {
		m[l] = s
	}
	return m
}()

var priorityToLabel = map[backend.Priority]string{
	backend.PriorityLow:      "Low",
	backend.PriorityMedium:   "Medium",
	backend.PriorityHigh:     "High",
	backend.PriorityCritical: "Critical",
}

var labelToPriority = func() map[string]backend.Priority {
	m := make(map[string]backend.Priority, len(priorityToLabel))
	for p, l := range priorityToLabel {
		m[l] = p
	}
	return m
}()

// StatusLabel translates an internal status to its board label.
func StatusLabel(s backend.Status) string {
	if l, ok := statusToLabel[s]; ok {
		return l
	}
	return statusToLabel[backend.StatusPending]
}

// StatusFromLabel translates a board label to an internal status.
func StatusFromLabel(label string) backend.Status {
	if s, ok := labelToStatus[label]; ok {
		return s
	}
	return backend.StatusPending
}

// PriorityLabel translates an internal priority to its board label.
func PriorityLabel(p backend.Priority) string {
	if l, ok := priorityToLabel[p]; ok {
		return l
	}
	return priorityToLabel[backend.PriorityMedium]
}

// PriorityFromLabel translates a board label to an internal priority.
func PriorityFromLabel(label string) backend.Priority {
	if p, ok := labelToPriority[label]; ok {
		return p
	}
	return backend.PriorityMedium
}

// item is the wire shape of a board record.
type item struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	UpdatedAt    time.Time     `json:"updated_at"`
	ColumnValues []columnValue `json:"column_values"`
	Subitems     []item        `json:"subitems,omitempty"`
}

type columnValue struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// columnText returns the text value of the given column, or "".
func (it item) columnText(columnID string) string {
	if columnID == "" {
		return ""
	}
	for _, cv := range it.ColumnValues {
		if cv.ID == columnID {
			return cv.Text
		}
	}
	return ""
}

// joinDependencies serializes a dependency set as a comma-joined id list.
func joinDependencies(deps []int) string {
	if len(deps) == 0 {
		return ""
	}
	parts := make([]string, len(deps))
	for i, d := range deps {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// splitDependencies parses a comma-joined id list, dropping malformed
// entries.
func splitDependencies(s string) []int {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var deps []int
	for _, part := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && n > 0 {
			deps = append(deps, n)
		}
	}
	return deps
}

// itemTaskID resolves the local task id an item pairs with. A configured
// and populated custom task-id column wins; otherwise the numeric item id
// is used. 0 means the item has no derivable id and pairs by nothing.
func (m ColumnMapping) itemTaskID(it item) int {
	if txt := it.columnText(m.TaskID); txt != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(txt)); err == nil && n > 0 {
			return n
		}
	}
	if n, err := strconv.Atoi(it.ID); err == nil && n > 0 {
		return n
	}
	return 0
}

// toTask maps a board item into the internal task model.
func (m ColumnMapping) toTask(it item) backend.Task {
	t := backend.Task{
		ID:           m.itemTaskID(it),
		Title:        it.Name,
		Description:  it.columnText(m.Description),
		Details:      it.columnText(m.Details),
		TestStrategy: it.columnText(m.TestStrategy),
		Status:       StatusFromLabel(it.columnText(m.Status)),
		Priority:     PriorityFromLabel(it.columnText(m.Priority)),
		Dependencies: splitDependencies(it.columnText(m.Dependencies)),
		RemoteItemID: it.ID,
		UpdatedAt:    it.UpdatedAt,
	}
	t.LastModifiedRemote = it.UpdatedAt

	for _, sub := range it.Subitems {
		st := backend.Subtask{
			Title:        sub.Name,
			Description:  sub.columnText(m.Description),
			Details:      sub.columnText(m.Details),
			Status:       StatusFromLabel(sub.columnText(m.Status)),
			Priority:     PriorityFromLabel(sub.columnText(m.Priority)),
			RemoteItemID: sub.ID,
			UpdatedAt:    sub.UpdatedAt,
		}
		if id := m.itemTaskID(sub); id > 0 {
			st.ID = id
		} else {
			st.ID = len(t.Subtasks) + 1
		}
		t.Subtasks = append(t.Subtasks, st)
	}
	return t
}

// columnWrite is one pending column update derived from task fields.
type columnWrite struct {
	columnID string
	value    string
}

// columnWrites lists the column updates needed to make an item reflect
// the task. Columns without a configured id are skipped.
func (m ColumnMapping) columnWrites(t backend.Task) []columnWrite {
	var writes []columnWrite
	add := func(columnID, value string) {
		if columnID != "" {
			writes = append(writes, columnWrite{columnID: columnID, value: value})
		}
	}
	add(m.Status, StatusLabel(t.Status))
	add(m.Priority, PriorityLabel(t.Priority))
	add(m.Description, t.Description)
	add(m.Details, t.Details)
	add(m.TestStrategy, t.TestStrategy)
	add(m.Dependencies, joinDependencies(t.Dependencies))
	add(m.TaskID, strconv.Itoa(t.ID))
	return writes
}

// subtaskColumnWrites is columnWrites for a subitem. Subitems carry no
// dependency column; the task-id column stores the sub id.
func (m ColumnMapping) subtaskColumnWrites(s backend.Subtask) []columnWrite {
	var writes []columnWrite
	add := func(columnID, value string) {
		if columnID != "" {
			writes = append(writes, columnWrite{columnID: columnID, value: value})
		}
	}
	add(m.Status, StatusLabel(s.Status))
	add(m.Priority, PriorityLabel(s.Priority))
	add(m.Description, s.Description)
	add(m.Details, s.Details)
	add(m.TestStrategy, s.TestStrategy)
	add(m.TaskID, strconv.Itoa(s.ID))
	return writes
}

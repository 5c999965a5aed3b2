package backend

import (
	"fmt"
	"strconv"
	"strings"
)

// TaskRef addresses either a top-level task or an embedded subtask. The
// canonical string form of a subtask is "<parentId>.<subId>".
type TaskRef struct {
	ID    int
	SubID int // 0 for top-level tasks
}

// IsSubtask reports whether the reference addresses an embedded subtask.
func (r TaskRef) IsSubtask() bool {
	return r.SubID > 0
}

// String returns the canonical external identifier.
func (r TaskRef) String() string {
	if r.IsSubtask() {
		return fmt.Sprintf("%d.%d", r.ID, r.SubID)
	}
	return strconv.Itoa(r.ID)
}

// ParseTaskRef parses "7" or "7.2" into a TaskRef. A string without a dot
// is a top-level task id. Each half must be a positive integer.
func ParseTaskRef(s string) (TaskRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TaskRef{}, NewStoreError("ParseTaskRef", KindNotFound, "empty task reference")
	}

	head, tail, dotted := strings.Cut(s, ".")
	id, err := parsePositiveInt(head)
	if err != nil {
		return TaskRef{}, NewStoreError("ParseTaskRef", KindNotFound,
			fmt.Sprintf("invalid task id %q", s)).WithError(err)
	}
	if !dotted {
		return TaskRef{ID: id}, nil
	}

	subID, err := parsePositiveInt(tail)
	if err != nil {
		return TaskRef{}, NewStoreError("ParseTaskRef", KindNotFound,
			fmt.Sprintf("invalid subtask id %q", s)).WithError(err)
	}
	return TaskRef{ID: id, SubID: subID}, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("id must be positive, got %d", n)
	}
	return n, nil
}

package sync

import (
	gosync "sync"
	"sort"
	"time"

	"taskbridge/backend"
)

// Strategy selects how detected conflicts are resolved.
type Strategy string

const (
	StrategyManual     Strategy = "manual"
	StrategyLocalWins  Strategy = "local-wins"
	StrategyRemoteWins Strategy = "remote-wins"
	StrategyNewestWins Strategy = "newest-wins"
)

// ValidStrategy reports whether s names a known strategy.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategyManual, StrategyLocalWins, StrategyRemoteWins, StrategyNewestWins:
		return true
	}
	return false
}

// Conflict records a task that both sides mutated since the last
// successful sync. It lives in the engine's live set from detection until
// resolution.
type Conflict struct {
	TaskID     int          `json:"taskId"`
	DetectedAt time.Time    `json:"detectedAt"`
	Local      backend.Task `json:"localSnapshot"`
	Remote     backend.Task `json:"remoteSnapshot"`
	Resolution Strategy     `json:"resolution,omitempty"`
	ResolvedAt time.Time    `json:"resolvedAt,omitzero"`
}

// isConflict applies the detection rule: both sides modified strictly
// after the last sync point. Missing timestamps fall back through
// updatedAt to the epoch, so never-synced pairs conflict only when both
// carry real modification stamps.
func isConflict(local, remote backend.Task) bool {
	lastSync := local.LastSyncedAt
	return local.ModifiedLocal().After(lastSync) && remote.ModifiedRemote().After(lastSync)
}

// localWinsTimestamps reports whether local wins a newest-wins
// comparison. Exactly equal timestamps resolve to local.
func localWinsTimestamps(local, remote backend.Task) bool {
	return !local.ModifiedLocal().Before(remote.ModifiedRemote())
}

// conflictSet is the live set. At most one conflict exists per task id;
// re-detection refreshes the snapshots instead of duplicating.
type conflictSet struct {
	mu     gosync.Mutex
	byTask map[int]*Conflict
}

func newConflictSet() *conflictSet {
	return &conflictSet{byTask: make(map[int]*Conflict)}
}

// add records a conflict, returning false when the task was already
// flagged (snapshots are refreshed either way).
func (s *conflictSet) add(local, remote backend.Task) (*Conflict, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byTask[local.ID]; ok {
		existing.Local = local.Clone()
		existing.Remote = remote.Clone()
		return existing, false
	}
	c := &Conflict{
		TaskID:     local.ID,
		DetectedAt: time.Now().UTC(),
		Local:      local.Clone(),
		Remote:     remote.Clone(),
	}
	s.byTask[local.ID] = c
	return c, true
}

// take removes and returns the conflict for a task, if flagged.
func (s *conflictSet) take(taskID int) (*Conflict, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byTask[taskID]
	if ok {
		delete(s.byTask, taskID)
	}
	return c, ok
}

// restore puts a conflict taken by take back into the live set, used
// when writing the resolution winner fails.
func (s *conflictSet) restore(c *Conflict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byTask[c.TaskID] = c
}

// has reports whether the task is flagged.
func (s *conflictSet) has(taskID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byTask[taskID]
	return ok
}

// list returns the live conflicts ordered by task id.
func (s *conflictSet) list() []Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conflict, 0, len(s.byTask))
	for _, c := range s.byTask {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// size returns the number of live conflicts.
func (s *conflictSet) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byTask)
}

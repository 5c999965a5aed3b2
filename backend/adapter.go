package backend

// ProviderInfo describes an adapter implementation for diagnostics and
// capability checks.
type ProviderInfo struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}

// HasCapability reports whether the provider advertises the capability.
func (p ProviderInfo) HasCapability(c string) bool {
	for _, have := range p.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Capability names advertised through ProviderInfo.
const (
	CapBatchSave = "batch-save"
	CapSubtasks  = "subtasks"
	CapRemoteIDs = "remote-ids"
)

// StorageAdapter is the uniform task CRUD surface implemented by the
// local file store, the SQLite store, the remote board adapter and the
// hybrid façade. Task ids in GetTask are string references so that dotted
// subtask ids ("7.2") route through the same call.
type StorageAdapter interface {
	// Initialize is idempotent; it establishes the connection and loads
	// persistent state.
	Initialize() error

	GetTasks(filter *TaskFilter) ([]Task, error)
	GetTask(ref string) (*Task, error)
	CreateTask(data Task) (*Task, error)
	UpdateTask(id int, patch TaskPatch) (*Task, error)
	DeleteTask(id int) (bool, error)

	GetSubtasks(parentID int) ([]Subtask, error)
	CreateSubtask(parentID int, data Subtask) (*Subtask, error)
	UpdateSubtask(parentID, subID int, patch TaskPatch) (*Subtask, error)
	DeleteSubtask(parentID, subID int) (bool, error)

	// SaveTasks replaces the whole collection. Adapters without the
	// batch-save capability reject it with KindUnsupported.
	SaveTasks(tasks []Task) error

	// Validate probes the underlying store for reachability.
	Validate() error

	ProviderInfo() ProviderInfo

	// Events exposes the adapter's observer registry.
	Events() *Emitter

	Close() error
}

package sqlite

// Schema version for migration management
const SchemaVersion = 1

// TasksTableSQL creates the main tasks table. Timestamps are stored as
// RFC 3339 strings; NULL means "never".
const TasksTableSQL = `
CREATE TABLE IF NOT EXISTS tasks (
    id INTEGER PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    details TEXT,
    test_strategy TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    priority TEXT NOT NULL DEFAULT 'medium',
    remote_item_id TEXT,
    created_at TEXT,
    updated_at TEXT,

    -- Sync tracking
    last_synced_at TEXT,
    last_modified_local TEXT,
    last_modified_remote TEXT,
    sync_status TEXT,
    last_sync_error TEXT
);
`

// DependenciesTableSQL creates the task dependency edge table.
const DependenciesTableSQL = `
CREATE TABLE IF NOT EXISTS task_dependencies (
    task_id INTEGER NOT NULL,
    depends_on INTEGER NOT NULL,

    PRIMARY KEY(task_id, depends_on),
    FOREIGN KEY(task_id) REFERENCES tasks(id) ON DELETE CASCADE,
    FOREIGN KEY(depends_on) REFERENCES tasks(id) ON DELETE CASCADE
);
`

// SubtasksTableSQL creates the subtasks table. Sub ids are unique within
// their parent, not globally.
const SubtasksTableSQL = `
CREATE TABLE IF NOT EXISTS subtasks (
    parent_id INTEGER NOT NULL,
    sub_id INTEGER NOT NULL,
    title TEXT NOT NULL,
    description TEXT,
    details TEXT,
    test_strategy TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    priority TEXT,
    remote_item_id TEXT,
    created_at TEXT,
    updated_at TEXT,
    sync_status TEXT,

    PRIMARY KEY(parent_id, sub_id),
    FOREIGN KEY(parent_id) REFERENCES tasks(id) ON DELETE CASCADE
);
`

// SchemaVersionTableSQL creates the schema version table for migration
// tracking.
const SchemaVersionTableSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// TasksIndexesSQL creates indexes for common queries.
const TasksIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_sync_status ON tasks(sync_status);
CREATE INDEX IF NOT EXISTS idx_subtasks_parent ON subtasks(parent_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_depends_on ON task_dependencies(depends_on);
`

// AllTableSchemas returns all table creation statements in order.
func AllTableSchemas() []string {
	return []string{
		SchemaVersionTableSQL,
		TasksTableSQL,
		DependenciesTableSQL,
		SubtasksTableSQL,
	}
}

// AllIndexes returns all index creation statements.
func AllIndexes() []string {
	return []string{
		TasksIndexesSQL,
	}
}

// PragmaStatements returns pragma statements to execute on connection.
func PragmaStatements() []string {
	return []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
}

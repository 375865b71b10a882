package store

// schemaVersion is bumped whenever the table layout changes. The database is
// transient orchestration state, not an archive; users clear it to adopt a
// new schema.
const schemaVersion = 2

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_info (
    version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS content_requests (
    id            TEXT PRIMARY KEY,
    request_type  TEXT NOT NULL,
    status        TEXT NOT NULL,
    title         TEXT,
    metadata_json TEXT,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS request_tasks (
    id              TEXT PRIMARY KEY,
    request_id      TEXT NOT NULL REFERENCES content_requests(id) ON DELETE CASCADE,
    task_key        TEXT NOT NULL,
    task_name       TEXT NOT NULL,
    agent_role      TEXT NOT NULL,
    status          TEXT NOT NULL,
    sequence        INTEGER NOT NULL,
    depends_on_json TEXT,
    input_json      TEXT,
    output_json     TEXT,
    output_url      TEXT,
    error_message   TEXT,
    correlation_id  TEXT,
    retry_count     INTEGER NOT NULL DEFAULT 0,
    next_retry_at   TEXT,
    started_at      TEXT,
    completed_at    TEXT,
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL,
    UNIQUE (request_id, task_key)
);

CREATE INDEX IF NOT EXISTS idx_request_tasks_request ON request_tasks (request_id, sequence);
CREATE INDEX IF NOT EXISTS idx_request_tasks_status ON request_tasks (status);
CREATE INDEX IF NOT EXISTS idx_request_tasks_correlation ON request_tasks (correlation_id);

CREATE TABLE IF NOT EXISTS timeline_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL,
    task_id    TEXT,
    task_name  TEXT,
    agent_role TEXT,
    event_type TEXT NOT NULL,
    message    TEXT,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_timeline_events_request ON timeline_events (request_id, id);
`

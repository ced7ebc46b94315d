package store

// Schema contains the complete DDL for the postwatch tables.
const Schema = `
-- Sessions: one row per collection session; 'default' for single-page use.
CREATE TABLE IF NOT EXISTS sessions (
    session_id       TEXT PRIMARY KEY,
    active           INTEGER NOT NULL DEFAULT 0,
    page_url         TEXT NOT NULL DEFAULT '',
    selector         TEXT NOT NULL DEFAULT '',
    content_selector TEXT NOT NULL DEFAULT '',
    last_count       INTEGER NOT NULL DEFAULT 0,
    updated_at       INTEGER NOT NULL
);

-- Logical ids already collected per session; seeds dedup on resume.
CREATE TABLE IF NOT EXISTS seen_ids (
    session_id TEXT NOT NULL,
    logical_id TEXT NOT NULL,
    seen_at    INTEGER NOT NULL,
    PRIMARY KEY (session_id, logical_id),
    FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);

-- Export history: one row per file written.
CREATE TABLE IF NOT EXISTS exports (
    id           TEXT PRIMARY KEY,
    session_id   TEXT NOT NULL,
    filename     TEXT NOT NULL,
    record_count INTEGER NOT NULL,
    created_at   INTEGER NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_exports_session ON exports(session_id, created_at DESC);
`

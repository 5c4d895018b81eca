package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "camps, posts and category templates",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS camps (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    board_feed_url TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS posts (
    id TEXT PRIMARY KEY,
    camp_id TEXT NOT NULL REFERENCES camps(id),
    author_id TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'student',
    body TEXT NOT NULL DEFAULT '',
    link TEXT,
    content_fetched INTEGER DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS category_templates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    camp_id TEXT NOT NULL REFERENCES camps(id),
    label TEXT NOT NULL,
    description TEXT,
    position INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER DEFAULT 1,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now')),
    UNIQUE (camp_id, label)
);

CREATE INDEX IF NOT EXISTS idx_posts_window ON posts(camp_id, role, created_at);
CREATE INDEX IF NOT EXISTS idx_category_templates_camp ON category_templates(camp_id, position);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "weekly reports and run audit",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS weekly_reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    camp_id TEXT NOT NULL REFERENCES camps(id),
    week TEXT NOT NULL,
    analyzer_version TEXT NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    total_posts INTEGER DEFAULT 0,
    source_post_ids TEXT,
    source_min_at TEXT,
    source_max_at TEXT,
    payload TEXT NOT NULL,
    generated_at TEXT DEFAULT (datetime('now')),
    UNIQUE (camp_id, week, analyzer_version)
);

CREATE TABLE IF NOT EXISTS run_reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    camp_id TEXT NOT NULL,
    week TEXT NOT NULL,
    analyzer_version TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('ok', 'failed')),
    warnings TEXT,
    errors TEXT,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_weekly_reports_camp ON weekly_reports(camp_id, week);
CREATE INDEX IF NOT EXISTS idx_run_reports_camp ON run_reports(camp_id, started_at);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}

package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// timeLayout is the fixed-width UTC layout post timestamps are stored in,
// so that string comparison in SQL orders them chronologically.
const timeLayout = "2006-01-02T15:04:05Z"

// FormatTime renders t in the stored timestamp layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// DB wraps a SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(dbPath string, log logrus.FieldLogger) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode=WAL", "setting journal mode"},
		{"PRAGMA foreign_keys=ON", "enabling foreign keys"},
		{"PRAGMA busy_timeout=5000", "setting busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p.stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", p.what, err)
		}
	}

	if err := migrate(conn, log); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return newDB(conn, dbPath), nil
}

// newDB wraps an already-open connection without touching the schema.
func newDB(conn *sql.DB, path string) *DB {
	return &DB{conn: conn, path: path}
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM camps", &s.Camps},
		{"SELECT COUNT(*) FROM posts", &s.TotalPosts},
		{"SELECT COUNT(*) FROM posts WHERE body = '' AND link IS NOT NULL AND content_fetched = 0", &s.PendingFetch},
		{"SELECT COUNT(*) FROM category_templates", &s.Categories},
		{"SELECT COUNT(*) FROM weekly_reports", &s.WeeklyReports},
		{"SELECT COUNT(*) FROM run_reports", &s.Runs},
		{"SELECT COUNT(*) FROM run_reports WHERE status = 'failed'", &s.FailedRuns},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}

package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

const reportColumns = `id, camp_id, week, analyzer_version, summary, total_posts,
	source_post_ids, source_min_at, source_max_at, payload, generated_at`

// UpsertWeeklyReport stores a weekly report, overwriting any earlier report
// with the same (camp, week, analyzer version).
func (db *DB) UpsertWeeklyReport(r WeeklyReportRow) error {
	ids, err := json.Marshal(r.SourcePostIDs)
	if err != nil {
		return fmt.Errorf("encoding source post ids: %w", err)
	}
	_, err = db.conn.Exec(
		`INSERT INTO weekly_reports
		(camp_id, week, analyzer_version, summary, total_posts, source_post_ids, source_min_at, source_max_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(camp_id, week, analyzer_version) DO UPDATE SET
			summary = excluded.summary,
			total_posts = excluded.total_posts,
			source_post_ids = excluded.source_post_ids,
			source_min_at = excluded.source_min_at,
			source_max_at = excluded.source_max_at,
			payload = excluded.payload,
			generated_at = datetime('now')`,
		r.CampID, r.Week, r.AnalyzerVersion, r.Summary, r.TotalPosts, string(ids),
		r.SourceMinAt, r.SourceMaxAt, r.Payload,
	)
	if err != nil {
		return fmt.Errorf("upserting weekly report %s/%s: %w", r.CampID, r.Week, err)
	}
	return nil
}

// GetWeeklyReport returns the report for (camp, week, analyzer version).
func (db *DB) GetWeeklyReport(campID, week, analyzerVersion string) (*WeeklyReportRow, error) {
	rows, err := db.conn.Query(
		`SELECT `+reportColumns+` FROM weekly_reports
		WHERE camp_id = ? AND week = ? AND analyzer_version = ?`,
		campID, week, analyzerVersion,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	reports, err := scanReports(rows)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, nil
	}
	return &reports[0], nil
}

// ListWeeklyReports returns reports newest week first. An empty campID lists every camp.
func (db *DB) ListWeeklyReports(campID string) ([]WeeklyReportRow, error) {
	query := `SELECT ` + reportColumns + ` FROM weekly_reports`
	var args []any
	if campID != "" {
		query += " WHERE camp_id = ?"
		args = append(args, campID)
	}
	query += " ORDER BY week DESC, camp_id, analyzer_version"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReports(rows)
}

func scanReports(rows *sql.Rows) ([]WeeklyReportRow, error) {
	var reports []WeeklyReportRow
	for rows.Next() {
		var r WeeklyReportRow
		var ids *string
		if err := rows.Scan(&r.ID, &r.CampID, &r.Week, &r.AnalyzerVersion, &r.Summary,
			&r.TotalPosts, &ids, &r.SourceMinAt, &r.SourceMaxAt, &r.Payload, &r.GeneratedAt); err != nil {
			return nil, err
		}
		if ids != nil {
			if err := json.Unmarshal([]byte(*ids), &r.SourcePostIDs); err != nil {
				r.SourcePostIDs = nil
			}
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// InsertRunReport records one pipeline run.
func (db *DB) InsertRunReport(r RunReport) (int64, error) {
	warnings, err := json.Marshal(r.Warnings)
	if err != nil {
		return 0, err
	}
	errs, err := json.Marshal(r.Errors)
	if err != nil {
		return 0, err
	}
	result, err := db.conn.Exec(
		`INSERT INTO run_reports
		(camp_id, week, analyzer_version, status, warnings, errors, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.CampID, r.Week, r.AnalyzerVersion, r.Status, string(warnings), string(errs),
		r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetRecentRuns returns the most recent runs, newest first.
func (db *DB) GetRecentRuns(limit int) ([]RunReport, error) {
	rows, err := db.conn.Query(
		`SELECT id, camp_id, week, analyzer_version, status, warnings, errors, started_at, finished_at
		FROM run_reports ORDER BY started_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunReport
	for rows.Next() {
		var r RunReport
		var warnings, errs *string
		if err := rows.Scan(&r.ID, &r.CampID, &r.Week, &r.AnalyzerVersion, &r.Status,
			&warnings, &errs, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		if warnings != nil {
			if err := json.Unmarshal([]byte(*warnings), &r.Warnings); err != nil {
				return nil, fmt.Errorf("decoding warnings of run %d: %w", r.ID, err)
			}
		}
		if errs != nil {
			if err := json.Unmarshal([]byte(*errs), &r.Errors); err != nil {
				return nil, fmt.Errorf("decoding errors of run %d: %w", r.ID, err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/TobiSchelling/camppulse/internal/analysis"
	"github.com/TobiSchelling/camppulse/internal/database"
)

// ReportStore persists weekly reports.
type ReportStore interface {
	UpsertWeeklyReport(r database.WeeklyReportRow) error
}

// Finalizer is the last pipeline stage: it builds the payload from the
// visible rows and upserts the weekly report. It writes at most once per run.
type Finalizer struct {
	store   ReportStore
	persist bool
}

// NewFinalizer creates a finalizer. A nil store builds the payload without
// persisting it.
func NewFinalizer(store ReportStore) *Finalizer {
	return &Finalizer{store: store, persist: store != nil}
}

func (f *Finalizer) Name() string { return "finalize" }

func (f *Finalizer) Run(ctx context.Context, s *analysis.State) (string, error) {
	if s.Report == nil {
		return "", analysis.ErrMissingReport
	}
	if s.Failed() {
		return "", fmt.Errorf("refusing to finalize a failed run: %d errors", len(s.Errors))
	}

	wc := analysis.WeeklyContext{}
	if s.Context != nil {
		wc = *s.Context
	}
	visible := s.VisibleRecords()
	rows := make([]analysis.Record, 0, len(visible))
	for _, r := range visible {
		rows = append(rows, *r)
	}
	wordCloud := s.WordCloud
	if wordCloud == nil {
		wordCloud = []analysis.Keyword{}
	}

	s.Payload = &analysis.Payload{
		CampID:          s.CampID,
		Week:            s.Week,
		AnalyzerVersion: s.AnalyzerVersion,
		Rows:            rows,
		Report:          *s.Report,
		Stats:           wc,
		WordCloud:       wordCloud,
		Warnings:        append([]string(nil), s.Warnings...),
	}

	if !f.persist {
		return fmt.Sprintf("%d visible rows, not persisted", len(rows)), nil
	}

	report := BuildReport(s.Payload, s.Posts, s.Now)
	row, err := reportRow(report)
	if err == nil {
		err = f.store.UpsertWeeklyReport(row)
	}
	if err != nil {
		reportPersistFailures.Inc()
		s.Warn(f.Name(), "persisting report: %v", err)
		s.Payload.Warnings = append(s.Payload.Warnings, s.Warnings[len(s.Warnings)-1])
		return fmt.Sprintf("%d visible rows, persist failed", len(rows)), nil
	}
	s.Persisted = true
	return fmt.Sprintf("%d visible rows, report stored", len(rows)), nil
}

// BuildReport attaches provenance to a payload: the sorted ids of every
// source post and the earliest and latest creation time among them.
func BuildReport(p *analysis.Payload, posts []analysis.Post, generated time.Time) *analysis.WeeklyReport {
	r := &analysis.WeeklyReport{
		Payload:       *p,
		SourcePostIDs: make([]string, 0, len(posts)),
		GeneratedAt:   generated,
	}
	for i := range posts {
		created := posts[i].CreatedAt
		r.SourcePostIDs = append(r.SourcePostIDs, posts[i].ID)
		if r.SourceMinAt == nil || created.Before(*r.SourceMinAt) {
			r.SourceMinAt = &created
		}
		if r.SourceMaxAt == nil || created.After(*r.SourceMaxAt) {
			r.SourceMaxAt = &created
		}
	}
	sort.Strings(r.SourcePostIDs)
	return r
}

func reportRow(r *analysis.WeeklyReport) (database.WeeklyReportRow, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return database.WeeklyReportRow{}, fmt.Errorf("encoding report: %w", err)
	}
	row := database.WeeklyReportRow{
		CampID:          r.CampID,
		Week:            r.Week,
		AnalyzerVersion: r.AnalyzerVersion,
		Summary:         r.Report.Summary,
		TotalPosts:      r.Stats.Risk.Total,
		SourcePostIDs:   r.SourcePostIDs,
		Payload:         string(payload),
	}
	if r.SourceMinAt != nil {
		v := database.FormatTime(*r.SourceMinAt)
		row.SourceMinAt = &v
	}
	if r.SourceMaxAt != nil {
		v := database.FormatTime(*r.SourceMaxAt)
		row.SourceMaxAt = &v
	}
	return row, nil
}

// DecodeReport parses a stored report row back into a weekly report.
func DecodeReport(row *database.WeeklyReportRow) (*analysis.WeeklyReport, error) {
	var r analysis.WeeklyReport
	if err := json.Unmarshal([]byte(row.Payload), &r); err != nil {
		return nil, fmt.Errorf("decoding report %s/%s: %w", row.CampID, row.Week, err)
	}
	return &r, nil
}

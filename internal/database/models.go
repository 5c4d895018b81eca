package database

import "time"

// RoleStudent is the author role of posts written by camp participants.
const RoleStudent = "student"

// Camp is one bootcamp cohort whose board is analyzed.
type Camp struct {
	ID           string
	Name         string
	BoardFeedURL *string
	CreatedAt    *string
}

// Post is one raw anonymous submission. Immutable once stored, except for
// the body of link-only posts, which the fetcher fills in.
type Post struct {
	ID             string
	CampID         string
	AuthorID       string
	Role           string
	Body           string
	Link           *string
	ContentFetched bool
	CreatedAt      time.Time
}

// CategoryTemplate is one operator-defined top-level category label.
type CategoryTemplate struct {
	ID          int64
	CampID      string
	Label       string
	Description *string
	Position    int
	IsActive    bool
	CreatedAt   *string
	UpdatedAt   *string
}

// WeeklyReportRow is the stored form of a weekly report. Payload holds the
// full report document as JSON.
type WeeklyReportRow struct {
	ID              int64
	CampID          string
	Week            string
	AnalyzerVersion string
	Summary         string
	TotalPosts      int
	SourcePostIDs   []string
	SourceMinAt     *string
	SourceMaxAt     *string
	Payload         string
	GeneratedAt     *string
}

// RunReport holds metadata about a pipeline run, including failed ones.
type RunReport struct {
	ID              int64
	CampID          string
	Week            string
	AnalyzerVersion string
	Status          string
	Warnings        []string
	Errors          []string
	StartedAt       string
	FinishedAt      string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Camps         int
	TotalPosts    int
	PendingFetch  int
	Categories    int
	WeeklyReports int
	Runs          int
	FailedRuns    int
}

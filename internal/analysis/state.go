package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrShapeMismatch means a collaborator returned output whose shape
	// does not match the input, e.g. fewer embeddings than texts.
	ErrShapeMismatch = errors.New("collaborator output shape mismatch")
	// ErrMissingReport means the finalizer ran without a composed report.
	ErrMissingReport = errors.New("no composed report")
)

// Stage is one step of the linear pipeline. Run mutates the state and
// returns a one-line summary. A non-nil error is fatal for the run;
// recoverable conditions go through State.Warn.
type Stage interface {
	Name() string
	Run(ctx context.Context, s *State) (string, error)
}

// State is the working state of one run. It has a single owner: the
// runner hands it to one stage at a time.
type State struct {
	CampID          string
	Week            string
	AnalyzerVersion string
	WindowStart     time.Time
	WindowEnd       time.Time
	Now             time.Time

	Posts    []Post
	Template []string

	Records   []*Record
	Clusters  []*Cluster
	WordCloud []Keyword
	Context   *WeeklyContext
	Report    *ComposedReport
	Payload   *Payload
	Persisted bool

	Warnings []string
	Errors   []string
}

// Warn records a non-fatal condition for stage.
func (s *State) Warn(stage, format string, args ...any) {
	s.Warnings = append(s.Warnings, stage+": "+fmt.Sprintf(format, args...))
}

// Fail records a fatal error for stage.
func (s *State) Fail(stage string, err error) {
	s.Errors = append(s.Errors, stage+": "+err.Error())
}

// Failed reports whether any fatal error was recorded.
func (s *State) Failed() bool {
	return len(s.Errors) > 0
}

// ActiveRecords returns the active records in working-set order.
func (s *State) ActiveRecords() []*Record {
	var out []*Record
	for _, r := range s.Records {
		if r.Active {
			out = append(out, r)
		}
	}
	return out
}

// VisibleRecords returns the records that belong in published rows.
func (s *State) VisibleRecords() []*Record {
	var out []*Record
	for _, r := range s.Records {
		if r.Visible() {
			out = append(out, r)
		}
	}
	return out
}

// RecordByID returns the record with the given ID, or nil.
func (s *State) RecordByID(id string) *Record {
	for _, r := range s.Records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// CheckShape returns ErrShapeMismatch unless got has want vectors, all non-empty
// and of one dimension.
func CheckShape(got [][]float64, want int) error {
	if len(got) != want {
		return fmt.Errorf("%w: %d embeddings for %d texts", ErrShapeMismatch, len(got), want)
	}
	dim := -1
	for i, v := range got {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty embedding at %d", ErrShapeMismatch, i)
		}
		if dim >= 0 && len(v) != dim {
			return fmt.Errorf("%w: embedding %d has dimension %d, want %d", ErrShapeMismatch, i, len(v), dim)
		}
		dim = len(v)
	}
	return nil
}

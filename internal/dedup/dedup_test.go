package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/TobiSchelling/camppulse/internal/analysis"
)

// mockEmbedder returns a fixed vector per text.
type mockEmbedder struct {
	vectors map[string][]float64
	calls   int
	short   bool
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	m.calls++
	out := make([][]float64, 0, len(texts))
	for _, t := range texts {
		v, ok := m.vectors[t]
		if !ok {
			v = []float64{0, 0, 1}
		}
		out = append(out, v)
	}
	if m.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

var monday = time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC)

func rec(id, author, text string, created time.Time) *analysis.Record {
	return &analysis.Record{ID: id, PostID: id, AuthorID: author, Text: text, RawText: text, Created: created, Active: true}
}

const (
	noticeShort = "공지 채널이 여러 곳이라 보기 어려워요"
	noticeLong  = "공지사항이 디스코드랑 노션에 흩어져 있어 확인하기 불편합니다"
)

func noticeEmbedder() *mockEmbedder {
	return &mockEmbedder{vectors: map[string][]float64{
		noticeShort:  {1, 0.1, 0},
		noticeLong:   {1, 0.15, 0},
		"과제가 너무 많아요": {0, 1, 0},
	}}
}

func TestNoticeDuplicatesCollapseToLongest(t *testing.T) {
	d := New(noticeEmbedder(), 0.88, time.UTC)
	s := &analysis.State{Records: []*analysis.Record{
		rec("p1", "a1", noticeShort, monday),
		rec("p2", "a1", noticeLong, monday.Add(48*time.Hour)),
	}}

	if _, err := d.Run(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	short, long := s.Records[0], s.Records[1]
	if !long.IsGroupRepresentative || !long.Active {
		t.Errorf("expected longer text to be the active representative, got %+v", long)
	}
	if short.Active || short.IsGroupRepresentative {
		t.Errorf("expected shorter text to be inactive, got %+v", short)
	}
	if len(short.InactiveReasons) != 1 || short.InactiveReasons[0] != analysis.ReasonNearDuplicate {
		t.Errorf("expected near_duplicate reason, got %v", short.InactiveReasons)
	}
	if short.DupGroupID == "" || short.DupGroupID != long.DupGroupID {
		t.Error("expected both members to share one group id")
	}
}

func TestScopeIsAuthorAndWeek(t *testing.T) {
	emb := noticeEmbedder()
	d := New(emb, 0.88, time.UTC)
	s := &analysis.State{Records: []*analysis.Record{
		rec("p1", "a1", noticeShort, monday),
		rec("p2", "a2", noticeLong, monday),                   // other author
		rec("p3", "a1", noticeLong, monday.AddDate(0, 0, 7)), // next week
	}}

	if _, err := d.Run(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range s.Records {
		if !r.Active || r.DupGroupID != "" {
			t.Errorf("%s: expected untouched record, got %+v", r.ID, r)
		}
	}
	if emb.calls != 0 {
		t.Errorf("expected no embedding call when every scope is a singleton, got %d", emb.calls)
	}
}

func TestDissimilarTextsStayApart(t *testing.T) {
	d := New(noticeEmbedder(), 0.88, time.UTC)
	s := &analysis.State{Records: []*analysis.Record{
		rec("p1", "a1", noticeShort, monday),
		rec("p2", "a1", "과제가 너무 많아요", monday),
	}}
	d.Run(context.Background(), s)
	for _, r := range s.Records {
		if !r.Active || r.DupGroupID != "" {
			t.Errorf("%s: expected untouched record", r.ID)
		}
	}
}

func TestLaterRecordMustMatchSeed(t *testing.T) {
	// a~b and b~c clear the threshold, a~c does not.
	emb := &mockEmbedder{vectors: map[string][]float64{
		"aaaa":  {1, 0},
		"bbbbb": {0.95, 0.31},
		"cc":    {0.81, 0.59},
	}}
	d := New(emb, 0.95, time.UTC)
	s := &analysis.State{Records: []*analysis.Record{
		rec("a", "x", "aaaa", monday),
		rec("b", "x", "bbbbb", monday),
		rec("c", "x", "cc", monday),
	}}
	if _, err := d.Run(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, b, c := s.Records[0], s.Records[1], s.Records[2]
	if a.DupGroupID == "" || a.DupGroupID != b.DupGroupID {
		t.Fatalf("expected a and b grouped, got %q and %q", a.DupGroupID, b.DupGroupID)
	}
	if !b.IsGroupRepresentative || a.Active || !b.Active {
		t.Errorf("expected longest text b to represent the group: a=%+v b=%+v", *a, *b)
	}
	if !c.Active || c.DupGroupID != "" || len(c.InactiveReasons) != 0 {
		t.Errorf("expected c untouched, got %+v", *c)
	}
}

func TestDedupIsIdempotent(t *testing.T) {
	d := New(noticeEmbedder(), 0.88, time.UTC)
	s := &analysis.State{Records: []*analysis.Record{
		rec("p1", "a1", noticeShort, monday),
		rec("p2", "a1", noticeLong, monday),
		rec("p3", "a1", "과제가 너무 많아요", monday),
	}}
	d.Run(context.Background(), s)

	before := make([]analysis.Record, len(s.Records))
	for i, r := range s.Records {
		before[i] = *r
	}
	if _, err := d.Run(context.Background(), s); err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}
	for i, r := range s.Records {
		if r.Active != before[i].Active || r.DupGroupID != before[i].DupGroupID ||
			len(r.InactiveReasons) != len(before[i].InactiveReasons) {
			t.Errorf("%s changed on second run: %+v -> %+v", r.ID, before[i], *r)
		}
	}
}

func TestGroupIDIsStable(t *testing.T) {
	run := func() string {
		s := &analysis.State{Records: []*analysis.Record{
			rec("p1", "a1", noticeShort, monday),
			rec("p2", "a1", noticeLong, monday),
		}}
		New(noticeEmbedder(), 0.88, time.UTC).Run(context.Background(), s)
		return s.Records[0].DupGroupID
	}
	if run() != run() {
		t.Error("expected the same group id for the same members")
	}
}

func TestShapeMismatchIsFatal(t *testing.T) {
	emb := noticeEmbedder()
	emb.short = true
	d := New(emb, 0.88, time.UTC)
	s := &analysis.State{Records: []*analysis.Record{
		rec("p1", "a1", noticeShort, monday),
		rec("p2", "a1", noticeLong, monday),
	}}
	_, err := d.Run(context.Background(), s)
	if !errors.Is(err, analysis.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestNoEligibleRecordsWarns(t *testing.T) {
	d := New(noticeEmbedder(), 0.88, time.UTC)
	s := &analysis.State{}
	if _, err := d.Run(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Warnings) != 1 {
		t.Errorf("expected a warning, got %v", s.Warnings)
	}
}

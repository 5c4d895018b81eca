package split

import (
	"context"
	"testing"
	"time"

	"github.com/TobiSchelling/camppulse/internal/analysis"
	"github.com/TobiSchelling/camppulse/internal/config"
	"github.com/TobiSchelling/camppulse/internal/normalize"
)

func newTestSplitter(t *testing.T, maxParts int) *Splitter {
	t.Helper()
	n, err := normalize.New(config.Lexicon{
		Profanity:        []string{"존나"},
		Interjections:    []string{"아"},
		SeverityPatterns: []string{`하차`},
	})
	if err != nil {
		t.Fatalf("normalize.New: %v", err)
	}
	return New(n, []string{"그리고", "근데", "하지만"}, maxParts)
}

func parent(id, raw string) *analysis.Record {
	return &analysis.Record{
		ID: id, PostID: id, CampID: "c1", AuthorID: "a1", RawText: raw, Text: raw,
		Created: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC), Active: true,
		AnalyzerVersion: "v1",
	}
}

func TestSegmentsPunctuationAndMarkers(t *testing.T) {
	sp := newTestSplitter(t, 5)
	segs := sp.Segments("강의는 좋았어요. 근데 과제가 너무 많아요\n멘토링 시간이 짧아요")
	want := []string{"강의는 좋았어요.", "과제가 너무 많아요", "멘토링 시간이 짧아요"}
	if len(segs) != len(want) {
		t.Fatalf("expected %d segments, got %d: %q", len(want), len(segs), segs)
	}
	for i := range want {
		if segs[i] != want[i] {
			t.Errorf("segment %d: expected %q, got %q", i, want[i], segs[i])
		}
	}
}

func TestSegmentsKeepsDecimals(t *testing.T) {
	sp := newTestSplitter(t, 5)
	segs := sp.Segments("과제가 3.5배로 늘었어요")
	if len(segs) != 1 {
		t.Errorf("expected decimal to stay intact, got %q", segs)
	}
}

func TestSegmentsCapMergesOverflow(t *testing.T) {
	sp := newTestSplitter(t, 2)
	segs := sp.Segments("하나입니다. 둘입니다. 셋입니다.")
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %q", segs)
	}
	if segs[1] != "둘입니다. 셋입니다." {
		t.Errorf("expected overflow merged into last, got %q", segs[1])
	}
}

func TestRunReplacesParentWithChildren(t *testing.T) {
	sp := newTestSplitter(t, 5)
	s := &analysis.State{Records: []*analysis.Record{
		parent("p1", "공지가 늦게 와요 그리고 팀원이 존나 협조를 안 해요"),
		parent("p2", "멘토링이 좋았습니다"),
	}}

	if _, err := sp.Run(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Records) != 3 {
		t.Fatalf("expected 2 children + 1 passthrough, got %d", len(s.Records))
	}
	for _, r := range s.Records {
		if r.ID == "p1" {
			t.Error("parent must not survive once split")
		}
	}

	c0, c1 := s.Records[0], s.Records[1]
	if c0.ID != "p1-s0" || c1.ID != "p1-s1" {
		t.Errorf("unexpected child ids %s, %s", c0.ID, c1.ID)
	}
	if !c0.IsSplitChild || c0.ParentID != "p1" || c1.SplitIndex != 1 || c0.PostID != "p1" {
		t.Errorf("missing lineage on children: %+v", c0)
	}
	if !c0.Active || !c1.Active {
		t.Error("children are always active")
	}
	if c0.AuthorID != "a1" || !c0.Created.Equal(s.Records[2].Created) {
		t.Error("children inherit author and timestamp")
	}
	// Children are rescored on their own text.
	if c0.IsToxic || !c1.IsToxic || c1.Text != "팀원이 ** 협조를 안 해요" {
		t.Errorf("unexpected child scores: %+v / %+v", c0, c1)
	}
	if s.Records[2].ID != "p2" {
		t.Errorf("single-concern post should pass through, got %s", s.Records[2].ID)
	}
}

func TestRunDropsFillerSegments(t *testing.T) {
	sp := newTestSplitter(t, 5)
	s := &analysis.State{Records: []*analysis.Record{parent("p1", "ㅋㅋㅋ. 과제가 너무 많아요")}}
	sp.Run(context.Background(), s)
	if len(s.Records) != 1 || s.Records[0].ID != "p1" {
		t.Errorf("expected passthrough when only one real segment remains, got %d records", len(s.Records))
	}
}

func TestRunSkipsInactive(t *testing.T) {
	sp := newTestSplitter(t, 5)
	r := parent("p1", "하나입니다. 둘입니다.")
	r.Deactivate(analysis.ReasonMeaningless)
	s := &analysis.State{Records: []*analysis.Record{r}}
	sp.Run(context.Background(), s)
	if len(s.Records) != 1 || s.Records[0] != r {
		t.Error("inactive records must pass through untouched")
	}
}

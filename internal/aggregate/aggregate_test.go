package aggregate

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/TobiSchelling/camppulse/internal/analysis"
)

var base = time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)

type builder struct {
	s *analysis.State
	n int
}

// add appends a cluster of size records with the given labels and urgency.
func (b *builder) add(category, label string, size int, u analysis.Urgency) []*analysis.Record {
	cl := &analysis.Cluster{Category: category, Label: label, Keywords: []string{label}}
	var recs []*analysis.Record
	for i := 0; i < size; i++ {
		b.n++
		r := &analysis.Record{
			ID:       fmt.Sprintf("r%02d", b.n),
			PostID:   fmt.Sprintf("p%02d", b.n),
			Text:     fmt.Sprintf("%s 관련 의견 %d", label, b.n),
			Created:  base.Add(time.Duration(b.n) * time.Hour),
			Active:   true,
			Severity: analysis.SeverityLow,
			Urgency:  u,
		}
		b.s.Records = append(b.s.Records, r)
		cl.MemberIDs = append(cl.MemberIDs, r.ID)
		recs = append(recs, r)
	}
	b.s.Clusters = append(b.s.Clusters, cl)
	return recs
}

func newBuilder() *builder {
	return &builder{s: &analysis.State{CampID: "camp", Week: "2026-W42"}}
}

func run(t *testing.T, s *analysis.State) *analysis.WeeklyContext {
	t.Helper()
	if _, err := New(0).Run(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s.Context
}

func TestEmptyWeek(t *testing.T) {
	wc := run(t, &analysis.State{})
	if wc.Risk.Total != 0 {
		t.Errorf("expected total 0, got %d", wc.Risk.Total)
	}
	if wc.KeyTopicCandidates == nil || len(wc.KeyTopicCandidates) != 0 {
		t.Errorf("expected empty non-nil key topics, got %#v", wc.KeyTopicCandidates)
	}
	if wc.OpsActionCandidates == nil || len(wc.OpsActionCandidates) != 0 {
		t.Errorf("expected empty non-nil ops actions, got %#v", wc.OpsActionCandidates)
	}
	if wc.UrgencyCounts[analysis.Immediate] != 0 || len(wc.UrgencyCounts) != 3 {
		t.Errorf("expected zeroed urgency counts, got %v", wc.UrgencyCounts)
	}
}

func TestRiskBlock(t *testing.T) {
	b := newBuilder()
	recs := b.add("운영/행정", "공지", 4, analysis.Short)
	recs[0].IsToxic = true
	recs[1].Severity = analysis.SeverityHigh
	recs[2].Severity = analysis.SeverityMedium
	recs[3].Deactivate(analysis.ReasonNearDuplicate)

	wc := run(t, b.s)
	rs := wc.Risk
	if rs.Total != 3 || rs.Toxic != 1 || rs.Danger != 2 || rs.Warning != 1 || rs.Normal != 0 {
		t.Errorf("unexpected risk block: %+v", rs)
	}
	if rs.SeverityCounts[analysis.SeverityHigh] != 1 || rs.SeverityCounts[analysis.SeverityLow] != 1 {
		t.Errorf("unexpected severity histogram: %v", rs.SeverityCounts)
	}
}

func TestKeyTopicsSortedAndCapped(t *testing.T) {
	b := newBuilder()
	b.add("과제 난이도", "마감", 3, analysis.Short)
	b.add("운영/행정", "공지", 2, analysis.Immediate)
	b.add("팀 갈등", "협업", 4, analysis.Long)
	b.add("번아웃", "체력", 1, analysis.Long)
	b.add(analysis.OtherLabel, analysis.OtherLabel, 1, analysis.Short)

	wc := run(t, b.s)
	kt := wc.KeyTopicCandidates
	if len(kt) != MaxKeyTopics {
		t.Fatalf("expected %d key topics, got %d", MaxKeyTopics, len(kt))
	}
	for i := 1; i < len(kt); i++ {
		if kt[i].Score > kt[i-1].Score {
			t.Errorf("key topics not sorted by score: %v then %v", kt[i-1].Score, kt[i].Score)
		}
	}
	if kt[0].SubCategory != "공지" {
		t.Errorf("expected 공지 first, got %s", kt[0].SubCategory)
	}
	// Equal scores break on member count.
	if kt[1].SubCategory != "협업" || kt[2].SubCategory != "마감" {
		t.Errorf("unexpected tie-break order: %s, %s", kt[1].SubCategory, kt[2].SubCategory)
	}
}

func TestOpsCandidatesOnePerUrgencyFromFullList(t *testing.T) {
	b := newBuilder()
	b.add("운영/행정", "공지", 5, analysis.Immediate)
	b.add("운영/행정", "시설", 4, analysis.Immediate)
	b.add("과제 난이도", "마감", 4, analysis.Short)
	b.add("번아웃", "체력", 1, analysis.Long)

	wc := run(t, b.s)
	for _, c := range wc.KeyTopicCandidates {
		if c.Urgency == analysis.Long {
			t.Fatal("long candidate should not make the top three here")
		}
	}

	ops := wc.OpsActionCandidates
	if len(ops) != 3 {
		t.Fatalf("expected one ops candidate per urgency, got %d", len(ops))
	}
	seen := make(map[analysis.Urgency]bool)
	for _, c := range ops {
		if seen[c.Urgency] {
			t.Errorf("duplicate urgency %s in ops candidates", c.Urgency)
		}
		seen[c.Urgency] = true
	}
	if ops[0].SubCategory != "공지" || ops[2].SubCategory != "체력" {
		t.Errorf("unexpected ops order: %+v", ops)
	}
}

func TestHighlightBonusAndOrder(t *testing.T) {
	b := newBuilder()
	quiet := b.add("과제 난이도", "마감", 2, analysis.Short)
	loud := b.add("팀 갈등", "협업", 2, analysis.Short)
	loud[0].Severity = analysis.SeverityHigh
	quiet[1].IsToxic = true
	quiet[1].Severity = analysis.SeverityHigh

	wc := run(t, b.s)
	if len(wc.Highlights) != 2 {
		t.Fatalf("expected 2 highlights, got %d", len(wc.Highlights))
	}
	if wc.Highlights[0].PostID != quiet[1].PostID {
		t.Errorf("expected toxic record first, got %s", wc.Highlights[0].PostID)
	}
	for _, c := range wc.KeyTopicCandidates {
		if c.Score != 2+1.5+2 {
			t.Errorf("expected highlight bonus on %s, got score %v", c.SubCategory, c.Score)
		}
	}
}

func TestHighlightLimit(t *testing.T) {
	b := newBuilder()
	for _, r := range b.add("팀 갈등", "협업", 5, analysis.Immediate) {
		r.Severity = analysis.SeverityHigh
	}
	b.s.Records[0].Created = base.Add(100 * time.Hour)
	if _, err := New(2).Run(context.Background(), b.s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hl := b.s.Context.Highlights
	if len(hl) != 2 {
		t.Fatalf("expected 2 highlights, got %d", len(hl))
	}
	if hl[0].PostID != "p01" {
		t.Errorf("expected newest record first, got %s", hl[0].PostID)
	}
}

func TestCategoryTreeSkipsInactiveAndMergesLabels(t *testing.T) {
	b := newBuilder()
	b.add("운영/행정", "공지", 2, analysis.Short)
	b.add("운영/행정", "공지", 1, analysis.Short)
	dropped := b.add("팀 갈등", "협업", 1, analysis.Long)
	dropped[0].Deactivate(analysis.ReasonMeaningless)

	wc := run(t, b.s)
	if len(wc.Categories) != 1 {
		t.Fatalf("expected only the category with active members, got %+v", wc.Categories)
	}
	cat := wc.Categories[0]
	if cat.Count != 3 || len(cat.SubCategories) != 1 || len(cat.SubCategories[0].PostIDs) != 3 {
		t.Errorf("expected merged 공지 sub-category with 3 posts, got %+v", cat)
	}
}

func TestDeterministic(t *testing.T) {
	build := func() *analysis.State {
		b := newBuilder()
		b.add("과제 난이도", "마감", 3, analysis.Short)
		b.add("운영/행정", "공지", 3, analysis.Short)
		b.add("팀 갈등", "협업", 2, analysis.Long)
		return b.s
	}
	first, second := run(t, build()), run(t, build())
	if !reflect.DeepEqual(first, second) {
		t.Error("aggregation of identical input differs between runs")
	}
	if first.KeyTopicCandidates[0].Category != "과제 난이도" {
		t.Errorf("expected category name to break the tie, got %s", first.KeyTopicCandidates[0].Category)
	}
}

func TestExcerpt(t *testing.T) {
	if got := Excerpt("가나다라", 2); got != "가나…" {
		t.Errorf("unexpected excerpt %q", got)
	}
	if got := Excerpt("짧다", 5); got != "짧다" {
		t.Errorf("unexpected excerpt %q", got)
	}
}

func TestGroupTakesClusterUrgency(t *testing.T) {
	b := newBuilder()
	b.add("과제 난이도", "마감", 2, analysis.Short)
	b.s.Clusters[0].Urgency = analysis.Immediate

	wc := run(t, b.s)
	if got := wc.KeyTopicCandidates[0].Urgency; got != analysis.Immediate {
		t.Errorf("expected the classified cluster urgency, got %s", got)
	}
	if got := wc.Categories[0].SubCategories[0].Urgency; got != analysis.Immediate {
		t.Errorf("expected the category tree to agree, got %s", got)
	}
}

func TestMergedClustersUseDominantUrgency(t *testing.T) {
	b := newBuilder()
	b.add("번아웃", "체력", 1, analysis.Long)
	b.add("번아웃", "체력", 2, analysis.Short)
	b.s.Clusters[0].Urgency = analysis.Long
	b.s.Clusters[1].Urgency = analysis.Short

	wc := run(t, b.s)
	if len(wc.KeyTopicCandidates) != 1 {
		t.Fatalf("expected one merged topic, got %d", len(wc.KeyTopicCandidates))
	}
	if got := wc.KeyTopicCandidates[0].Urgency; got != analysis.Short {
		t.Errorf("expected dominant member urgency short, got %s", got)
	}
}

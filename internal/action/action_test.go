package action

import (
	"context"
	"testing"

	"github.com/TobiSchelling/camppulse/internal/analysis"
	"github.com/TobiSchelling/camppulse/internal/config"
	"github.com/TobiSchelling/camppulse/internal/normalize"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("loading default config: %v", err)
	}
	return cfg
}

func newClassifier(t *testing.T) *Classifier {
	t.Helper()
	cfg := defaultConfig(t)
	c, err := New(cfg.Lexicon.ActionPatterns, cfg.ActionRules)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func rec(text, category string) *analysis.Record {
	return &analysis.Record{ID: text, RawText: text, Text: text, Category: category, Active: true, Severity: analysis.SeverityLow}
}

func TestToxicIsAlwaysImmediate(t *testing.T) {
	c := newClassifier(t)
	r := rec("팀원이 ***", "팀 갈등")
	r.IsToxic = true
	if got := c.Classify(r); got != analysis.Immediate {
		t.Errorf("expected immediate for toxic record, got %s", got)
	}
}

func TestSelfHarmPostIsImmediateAndHigh(t *testing.T) {
	cfg := defaultConfig(t)
	norm, err := normalize.New(cfg.Lexicon)
	if err != nil {
		t.Fatalf("normalize.New: %v", err)
	}
	c := newClassifier(t)

	s := &analysis.State{Posts: []analysis.Post{{ID: "p1", AuthorID: "a", Text: "요즘 너무 힘들어서 죽고 싶다는 생각이 들어요"}}}
	if _, err := norm.Run(context.Background(), s); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	s.Records[0].Category = "과제 난이도"
	if _, err := c.Run(context.Background(), s); err != nil {
		t.Fatalf("action: %v", err)
	}

	r := s.Records[0]
	if r.Severity != analysis.SeverityHigh {
		t.Errorf("expected high severity, got %s", r.Severity)
	}
	if r.Urgency != analysis.Immediate {
		t.Errorf("expected immediate, got %s", r.Urgency)
	}
}

func TestEscalationPhraseIsImmediate(t *testing.T) {
	c := newClassifier(t)
	if got := c.Classify(rec("환불 받을 수 있나요", "과제 난이도")); got != analysis.Immediate {
		t.Errorf("expected refund intent to be immediate, got %s", got)
	}
}

func TestCategoryRules(t *testing.T) {
	c := newClassifier(t)
	cases := map[string]analysis.Urgency{
		"운영/행정":             analysis.Immediate,
		"일정 압박":             analysis.Short,
		"과제 난이도":            analysis.Short,
		"번아웃/피로":            analysis.Long,
		"팀 갈등":              analysis.Long,
		"강의 만족도":            analysis.Short,
		analysis.OtherLabel: analysis.Short,
	}
	for category, want := range cases {
		if got := c.Classify(rec("평범한 의견입니다", category)); got != want {
			t.Errorf("category %q: expected %s, got %s", category, want, got)
		}
	}
}

func TestInactiveRecordsAreSkipped(t *testing.T) {
	c := newClassifier(t)
	r := rec("공지 확인이 어려워요", "운영/행정")
	r.Deactivate(analysis.ReasonNearDuplicate)
	s := &analysis.State{Records: []*analysis.Record{r}}
	c.Run(context.Background(), s)
	if r.Urgency != "" {
		t.Errorf("expected inactive record unclassified, got %s", r.Urgency)
	}
}

func TestClusterDominantUrgency(t *testing.T) {
	c := newClassifier(t)
	a := rec("공지가 늦어요", "운영/행정")
	b := rec("과제가 어려워요", "과제 난이도")
	d := rec("과제 마감이 빨라요", "과제 난이도")
	tie1 := rec("번아웃이 와요", "번아웃")
	tie2 := rec("과제 양이 많아요", "과제 난이도")
	gone := rec("중복된 글", "운영/행정")
	gone.Active = false

	s := &analysis.State{
		Records: []*analysis.Record{a, b, d, tie1, tie2, gone},
		Clusters: []*analysis.Cluster{
			{MemberIDs: []string{a.ID, b.ID, d.ID}},
			{MemberIDs: []string{tie1.ID, tie2.ID}},
			{MemberIDs: []string{gone.ID}},
		},
	}
	if _, err := c.Run(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Clusters[0].Urgency != analysis.Short {
		t.Errorf("expected majority urgency short, got %s", s.Clusters[0].Urgency)
	}
	if s.Clusters[1].Urgency != analysis.Short {
		t.Errorf("expected tie to go to the more urgent value, got %s", s.Clusters[1].Urgency)
	}
	if s.Clusters[2].Urgency != analysis.Short {
		t.Errorf("expected cluster without classified members to default to short, got %q", s.Clusters[2].Urgency)
	}
}

func TestNewRejectsBadPattern(t *testing.T) {
	if _, err := New([]string{"("}, config.ActionRules{}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

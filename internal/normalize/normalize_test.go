package normalize

import (
	"context"
	"testing"
	"time"

	"github.com/TobiSchelling/camppulse/internal/analysis"
	"github.com/TobiSchelling/camppulse/internal/config"
)

func testLexicon() config.Lexicon {
	return config.Lexicon{
		Profanity:           []string{"씨발", "존나", "fuck"},
		MeaninglessPatterns: []string{`^(test|테스트)+[.!?]*$`},
		Interjections:       []string{"아", "헐", "lol"},
		SeverityPatterns:    []string{`죽고\s*싶`, `하차`},
	}
}

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := New(testLexicon())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return n
}

func TestScoreCollapsesWhitespace(t *testing.T) {
	n := newTestNormalizer(t)
	sc := n.Score("  강의   자료가\n\n너무 늦게   올라와요  ")
	if sc.Cleaned != "강의 자료가 너무 늦게 올라와요" {
		t.Errorf("unexpected cleaned text %q", sc.Cleaned)
	}
	if sc.Toxic || sc.Severity != analysis.SeverityLow || sc.Meaningless {
		t.Errorf("expected clean low-severity post, got %+v", sc)
	}
}

func TestScoreMasksProfanityButScoresRaw(t *testing.T) {
	n := newTestNormalizer(t)
	sc := n.Score("과제 존나 많아요 FUCK")
	if sc.Cleaned != "과제 ** 많아요 ****" {
		t.Errorf("expected masked text, got %q", sc.Cleaned)
	}
	if !sc.Toxic {
		t.Error("expected toxic")
	}
	if sc.Toxicity < 0.66 || sc.Toxicity > 0.67 {
		t.Errorf("expected toxicity 2/3, got %v", sc.Toxicity)
	}
	if sc.Severity != analysis.SeverityHigh {
		t.Errorf("expected toxic post to be high severity, got %s", sc.Severity)
	}
}

func TestToxicitySaturates(t *testing.T) {
	n := newTestNormalizer(t)
	sc := n.Score("씨발 씨발 씨발 씨발 존나")
	if sc.Toxicity != 1 {
		t.Errorf("expected toxicity capped at 1, got %v", sc.Toxicity)
	}
}

func TestSelfHarmIsHighSeverity(t *testing.T) {
	n := newTestNormalizer(t)
	sc := n.Score("요즘 너무 힘들어서 죽고 싶어요")
	if sc.Severity != analysis.SeverityHigh {
		t.Errorf("expected high severity, got %s", sc.Severity)
	}
	if sc.Toxic {
		t.Error("self-harm phrase is not profanity")
	}
}

func TestMeaninglessDetection(t *testing.T) {
	n := newTestNormalizer(t)
	cases := map[string]bool{
		"":              true,
		"   ":           true,
		"ㅋ":             true,
		"ㅋㅋㅋㅋ":          true,
		"ㅠㅠ!!":          true,
		"헐":             true,
		"아 헐":           true,
		"LOL!":          true,
		"테스트":           true,
		"test.":         true,
		"프로젝트 일정이 빡빡해요": false,
		"ㅠㅠ 과제가 어려워요":   false,
	}
	for text, want := range cases {
		if got := n.Score(text).Meaningless; got != want {
			t.Errorf("%q: expected meaningless=%v, got %v", text, want, got)
		}
	}
}

func TestRunBuildsRecordsAndDeactivatesMeaningless(t *testing.T) {
	n := newTestNormalizer(t)
	now := time.Date(2026, 10, 19, 6, 0, 0, 0, time.UTC)
	s := &analysis.State{
		AnalyzerVersion: "v1",
		Now:             now,
		Posts: []analysis.Post{
			{ID: "p1", CampID: "c1", AuthorID: "a1", Text: "공지 채널이 너무 많아요"},
			{ID: "p2", CampID: "c1", AuthorID: "a2", Text: "ㅋㅋㅋ 씨발"},
		},
	}

	if _, err := n.Run(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(s.Records))
	}
	if !s.Records[0].Active || s.Records[0].AnalyzerVersion != "v1" || !s.Records[0].AnalyzedAt.Equal(now) {
		t.Errorf("unexpected first record %+v", s.Records[0])
	}

	// Meaningless posts are still scored for audit.
	r := s.Records[1]
	if r.Active || len(r.InactiveReasons) != 1 || r.InactiveReasons[0] != analysis.ReasonMeaningless {
		t.Errorf("expected meaningless deactivation, got %+v", r)
	}
	if !r.IsToxic || r.Severity != analysis.SeverityHigh {
		t.Errorf("expected inactive record to keep its toxicity, got %+v", r)
	}
}

func TestRunWarnsOnEmptyWindow(t *testing.T) {
	n := newTestNormalizer(t)
	s := &analysis.State{}
	if _, err := n.Run(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Warnings) != 1 {
		t.Errorf("expected one warning, got %v", s.Warnings)
	}
}

func TestNewRejectsBadPattern(t *testing.T) {
	lex := testLexicon()
	lex.SeverityPatterns = []string{"("}
	if _, err := New(lex); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

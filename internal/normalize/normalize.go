// Package normalize cleans raw post text, masks profanity, flags
// meaningless posts and scores toxicity and severity.
package normalize

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/TobiSchelling/camppulse/internal/analysis"
	"github.com/TobiSchelling/camppulse/internal/config"
)

// toxicSaturation is the profanity count at which toxicity reaches 1.
const toxicSaturation = 3.0

// Score is the normalizer's verdict on one piece of text.
type Score struct {
	Cleaned     string
	Toxicity    float64
	Toxic       bool
	Severity    analysis.Severity
	Meaningless bool
}

// Normalizer is the first pipeline stage.
type Normalizer struct {
	profanity     []*regexp.Regexp
	meaningless   []*regexp.Regexp
	severity      []*regexp.Regexp
	interjections map[string]bool
}

// New compiles the lexicon. Invalid patterns are an error.
func New(lex config.Lexicon) (*Normalizer, error) {
	n := &Normalizer{interjections: make(map[string]bool)}
	for _, term := range lex.Profanity {
		if strings.TrimSpace(term) == "" {
			continue
		}
		n.profanity = append(n.profanity, regexp.MustCompile("(?i)"+regexp.QuoteMeta(term)))
	}
	var err error
	if n.meaningless, err = CompilePatterns(lex.MeaninglessPatterns); err != nil {
		return nil, fmt.Errorf("meaningless_patterns: %w", err)
	}
	if n.severity, err = CompilePatterns(lex.SeverityPatterns); err != nil {
		return nil, fmt.Errorf("severity_patterns: %w", err)
	}
	for _, w := range lex.Interjections {
		n.interjections[strings.ToLower(w)] = true
	}
	return n, nil
}

// CompilePatterns compiles a list of regular expressions.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func (n *Normalizer) Name() string { return "normalize" }

// Run creates one record per post and scores it.
func (n *Normalizer) Run(ctx context.Context, s *analysis.State) (string, error) {
	if len(s.Posts) == 0 {
		s.Warn(n.Name(), "no posts in window")
	}

	s.Records = make([]*analysis.Record, 0, len(s.Posts))
	var meaningless, toxic int
	for _, p := range s.Posts {
		sc := n.Score(p.Text)
		r := &analysis.Record{
			ID:              p.ID,
			PostID:          p.ID,
			CampID:          p.CampID,
			AuthorID:        p.AuthorID,
			RawText:         p.Text,
			Created:         p.CreatedAt,
			Active:          true,
			AnalyzerVersion: s.AnalyzerVersion,
			AnalyzedAt:      s.Now,
		}
		Apply(r, sc)
		if sc.Meaningless {
			r.Deactivate(analysis.ReasonMeaningless)
			meaningless++
		}
		if sc.Toxic {
			toxic++
		}
		s.Records = append(s.Records, r)
	}

	return fmt.Sprintf("%d records, %d meaningless, %d toxic", len(s.Records), meaningless, toxic), nil
}

// Apply copies a score onto a record without touching its active flag.
func Apply(r *analysis.Record, sc Score) {
	r.Text = sc.Cleaned
	r.ToxicityScore = sc.Toxicity
	r.IsToxic = sc.Toxic
	r.Severity = sc.Severity
}

// Score cleans raw and computes its signals. Toxicity and severity are
// computed on raw so masking cannot hide them.
func (n *Normalizer) Score(raw string) Score {
	cleaned := CollapseSpace(raw)

	hits := 0
	for _, re := range n.profanity {
		hits += len(re.FindAllStringIndex(raw, -1))
		cleaned = re.ReplaceAllStringFunc(cleaned, func(m string) string {
			return strings.Repeat("*", utf8.RuneCountInString(m))
		})
	}

	sc := Score{Cleaned: cleaned}
	sc.Toxicity = math.Min(1, float64(hits)/toxicSaturation)
	sc.Toxic = sc.Toxicity > 0

	sc.Severity = analysis.SeverityLow
	if sc.Toxic || n.matchesSeverity(raw) {
		sc.Severity = analysis.SeverityHigh
	}

	sc.Meaningless = n.isMeaningless(cleaned)
	return sc
}

func (n *Normalizer) matchesSeverity(raw string) bool {
	for _, re := range n.severity {
		if re.MatchString(raw) {
			return true
		}
	}
	return false
}

func (n *Normalizer) isMeaningless(cleaned string) bool {
	if utf8.RuneCountInString(strings.TrimSpace(cleaned)) <= 1 {
		return true
	}
	if onlyFiller(cleaned) {
		return true
	}

	lower := strings.ToLower(cleaned)
	allInterjections := true
	for _, w := range strings.Fields(lower) {
		if !n.interjections[strings.TrimFunc(w, isFiller)] {
			allInterjections = false
			break
		}
	}
	if allInterjections {
		return true
	}

	for _, re := range n.meaningless {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// onlyFiller reports whether s holds nothing but bare jamo, punctuation,
// symbols and spaces, e.g. "ㅋㅋㅋ" or "ㅠㅠ!!".
func onlyFiller(s string) bool {
	for _, r := range s {
		if !isFiller(r) {
			return false
		}
	}
	return true
}

func isFiller(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) || isJamo(r)
}

// isJamo matches Hangul compatibility jamo, which appear alone only in
// laughter, crying and similar filler.
func isJamo(r rune) bool {
	return (r >= 0x3131 && r <= 0x318E) || (r >= 0x1100 && r <= 0x11FF)
}

// CollapseSpace trims s and replaces every whitespace run with one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

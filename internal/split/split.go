// Package split breaks posts that raise several independent concerns into
// one child record per concern.
package split

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/TobiSchelling/camppulse/internal/analysis"
	"github.com/TobiSchelling/camppulse/internal/normalize"
)

const minSegmentRunes = 2

var sentenceEnd = regexp.MustCompile(`[.!?。;…]+(\s+|$)`)

// Scorer scores a piece of raw text. *normalize.Normalizer implements it.
type Scorer interface {
	Score(raw string) normalize.Score
}

// Splitter is the second pipeline stage.
type Splitter struct {
	scorer   Scorer
	maxParts int
	markers  *regexp.Regexp
}

// New creates a splitter. Children are rescored with scorer.
func New(scorer Scorer, markers []string, maxParts int) *Splitter {
	if maxParts < 1 {
		maxParts = 1
	}
	return &Splitter{scorer: scorer, maxParts: maxParts, markers: markerPattern(markers)}
}

// markerPattern matches a conjunction standing as its own word.
// Longer markers are tried first so "그리고요" wins over "그리고".
func markerPattern(markers []string) *regexp.Regexp {
	var quoted []string
	for _, m := range markers {
		if m = strings.TrimSpace(m); m != "" {
			quoted = append(quoted, regexp.QuoteMeta(m))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	sort.SliceStable(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })
	return regexp.MustCompile(`(?i)(?:^|\s)(?:` + strings.Join(quoted, "|") + `)[,]?(?:\s|$)`)
}

func (sp *Splitter) Name() string { return "split" }

// Run replaces each splittable active record by its children.
func (sp *Splitter) Run(ctx context.Context, s *analysis.State) (string, error) {
	out := make([]*analysis.Record, 0, len(s.Records))
	var parents, children int
	for _, r := range s.Records {
		if !r.Active || r.IsSplitChild {
			out = append(out, r)
			continue
		}
		kids := sp.splitRecord(r)
		if len(kids) == 0 {
			out = append(out, r)
			continue
		}
		parents++
		children += len(kids)
		out = append(out, kids...)
	}
	s.Records = out
	return fmt.Sprintf("%d posts split into %d segments", parents, children), nil
}

// splitRecord returns the children of r, or nil when r holds a single concern.
func (sp *Splitter) splitRecord(r *analysis.Record) []*analysis.Record {
	var kept []normalize.Score
	var raws []string
	for _, seg := range sp.Segments(r.RawText) {
		sc := sp.scorer.Score(seg)
		if sc.Meaningless || utf8.RuneCountInString(sc.Cleaned) < minSegmentRunes {
			continue
		}
		kept = append(kept, sc)
		raws = append(raws, seg)
	}
	if len(kept) <= 1 {
		return nil
	}

	kids := make([]*analysis.Record, 0, len(kept))
	for i, sc := range kept {
		child := &analysis.Record{
			ID:              fmt.Sprintf("%s-s%d", r.ID, i),
			PostID:          r.PostID,
			CampID:          r.CampID,
			AuthorID:        r.AuthorID,
			RawText:         raws[i],
			Created:         r.Created,
			Active:          true,
			ParentID:        r.ID,
			SplitIndex:      i,
			IsSplitChild:    true,
			AnalyzerVersion: r.AnalyzerVersion,
			AnalyzedAt:      r.AnalyzedAt,
		}
		normalize.Apply(child, sc)
		kids = append(kids, child)
	}
	return kids
}

// Segments cuts raw text at line breaks, sentence punctuation and
// conjunctions. At most maxParts segments are returned; overflow is merged
// into the last one.
func (sp *Splitter) Segments(raw string) []string {
	var segs []string
	for _, line := range strings.Split(raw, "\n") {
		for _, sentence := range splitSentences(line) {
			segs = append(segs, sp.splitMarkers(sentence)...)
		}
	}

	var out []string
	for _, seg := range segs {
		if seg = normalize.CollapseSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	if len(out) > sp.maxParts {
		tail := strings.Join(out[sp.maxParts-1:], " ")
		out = append(out[:sp.maxParts-1], tail)
	}
	return out
}

func splitSentences(line string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(line, -1) {
		out = append(out, line[last:loc[1]])
		last = loc[1]
	}
	if last < len(line) {
		out = append(out, line[last:])
	}
	return out
}

func (sp *Splitter) splitMarkers(sentence string) []string {
	if sp.markers == nil {
		return []string{sentence}
	}
	var out []string
	last := 0
	for _, loc := range sp.markers.FindAllStringIndex(sentence, -1) {
		out = append(out, sentence[last:loc[0]])
		last = loc[1]
	}
	return append(out, sentence[last:])
}

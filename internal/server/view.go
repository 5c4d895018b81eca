package server

import (
	"sort"

	"github.com/TobiSchelling/camppulse/internal/analysis"
)

// reportView adds template helpers to a stored report.
type reportView struct {
	*analysis.WeeklyReport
}

type countEntry struct {
	Label string
	Count int
}

// SeverityCounts lists the severity histogram from most to least severe.
func (v *reportView) SeverityCounts() []countEntry {
	out := make([]countEntry, 0, 3)
	for _, sev := range []analysis.Severity{analysis.SeverityHigh, analysis.SeverityMedium, analysis.SeverityLow} {
		out = append(out, countEntry{Label: string(sev), Count: v.Stats.Risk.SeverityCounts[sev]})
	}
	return out
}

// UrgencyCounts lists the urgency distribution from most to least urgent.
func (v *reportView) UrgencyCounts() []countEntry {
	out := make([]countEntry, 0, len(analysis.Urgencies))
	for _, u := range analysis.Urgencies {
		out = append(out, countEntry{Label: string(u), Count: v.Stats.UrgencyCounts[u]})
	}
	return out
}

// TopWords is the word cloud capped at n entries, largest first.
func (v *reportView) TopWords(n int) []analysis.Keyword {
	words := append([]analysis.Keyword(nil), v.WordCloud...)
	sort.SliceStable(words, func(i, j int) bool { return words[i].Count > words[j].Count })
	if len(words) > n {
		words = words[:n]
	}
	return words
}

// WordSize is the font size, in percent, of a word-cloud term with count.
func (v *reportView) WordSize(count int) int {
	top := 1
	for _, k := range v.WordCloud {
		if k.Count > top {
			top = k.Count
		}
	}
	return 80 + count*120/top
}

// Package keywords tokenizes cleaned feedback text and ranks terms for the
// word cloud, record tags and cluster labels.
package keywords

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/TobiSchelling/camppulse/internal/analysis"
)

const minTokenRunes = 2

var defaultStopWords = []string{
	// English
	"the", "a", "an", "is", "are", "was", "were", "be", "been", "have", "has", "had",
	"do", "does", "did", "will", "would", "could", "should", "can", "to", "of", "in",
	"for", "on", "with", "at", "by", "from", "as", "and", "but", "or", "not", "so",
	"very", "just", "this", "that", "it", "its", "also", "too", "really", "there",
	// Korean function words and fillers
	"그리고", "그런데", "근데", "하지만", "그래서", "또한", "너무", "정말", "진짜", "조금",
	"좀", "그냥", "많이", "약간", "아주", "제가", "저는", "우리", "저희", "이번", "이거",
	"그거", "저거", "있어요", "있습니다", "없어요", "없습니다", "합니다", "해요", "했어요",
	"같아요", "같습니다", "것", "수", "때", "등", "더", "및", "혹은",
}

// particles are Korean postpositions stripped from the end of a token,
// longest first.
var particles = []string{
	"으로", "에서", "에게", "까지", "부터", "보다", "이랑",
	"은", "는", "이", "가", "을", "를", "에", "의", "도", "로", "와", "과", "랑", "만",
}

// Tokenizer splits text into normalized terms.
type Tokenizer struct {
	stop map[string]bool
}

// NewTokenizer creates a tokenizer with the built-in stop words plus extra.
func NewTokenizer(extra []string) *Tokenizer {
	t := &Tokenizer{stop: make(map[string]bool, len(defaultStopWords)+len(extra))}
	for _, w := range defaultStopWords {
		t.stop[w] = true
	}
	for _, w := range extra {
		t.stop[strings.ToLower(strings.TrimSpace(w))] = true
	}
	return t
}

// Tokens returns the terms of text in order. Masked profanity, bare jamo,
// stop words and tokens shorter than two characters are dropped.
func (t *Tokenizer) Tokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	for _, f := range fields {
		f = stripParticle(f)
		if utf8.RuneCountInString(f) < minTokenRunes || t.stop[f] || allJamo(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Top ranks the terms of texts by count, ties alphabetically, and keeps k.
// k <= 0 keeps every term.
func (t *Tokenizer) Top(texts []string, k int) []analysis.Keyword {
	counts := make(map[string]int)
	for _, text := range texts {
		for _, tok := range t.Tokens(text) {
			counts[tok]++
		}
	}
	ranked := make([]analysis.Keyword, 0, len(counts))
	for term, n := range counts {
		ranked = append(ranked, analysis.Keyword{Term: term, Count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Term < ranked[j].Term
	})
	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

// TopTerms is Top without the counts.
func (t *Tokenizer) TopTerms(texts []string, k int) []string {
	top := t.Top(texts, k)
	terms := make([]string, len(top))
	for i, kw := range top {
		terms[i] = kw.Term
	}
	return terms
}

func stripParticle(tok string) string {
	if !isHangul(tok) {
		return tok
	}
	for _, p := range particles {
		if strings.HasSuffix(tok, p) {
			stem := strings.TrimSuffix(tok, p)
			if utf8.RuneCountInString(stem) >= minTokenRunes {
				return stem
			}
			return tok
		}
	}
	return tok
}

func isHangul(s string) bool {
	for _, r := range s {
		if !unicode.Is(unicode.Hangul, r) {
			return false
		}
	}
	return true
}

func allJamo(s string) bool {
	for _, r := range s {
		if !((r >= 0x3131 && r <= 0x318E) || (r >= 0x1100 && r <= 0x11FF)) {
			return false
		}
	}
	return true
}

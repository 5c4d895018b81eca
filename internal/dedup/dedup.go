// Package dedup collapses near-duplicate segments written by the same
// author in the same ISO week.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/TobiSchelling/camppulse/internal/analysis"
	"github.com/TobiSchelling/camppulse/internal/llm"
)

// DefaultThreshold is the cosine similarity at which two segments are duplicates.
const DefaultThreshold = 0.88

// Deduplicator is the third pipeline stage.
type Deduplicator struct {
	embedder  llm.Embedder
	threshold float64
	loc       *time.Location
}

// New creates a deduplicator. Weeks are computed in loc.
func New(embedder llm.Embedder, threshold float64, loc *time.Location) *Deduplicator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Deduplicator{embedder: embedder, threshold: threshold, loc: loc}
}

func (d *Deduplicator) Name() string { return "dedup" }

type scopeKey struct {
	author string
	year   int
	week   int
}

// Run groups eligible records by (author, ISO week), embeds every record
// whose scope has company, and links pairs whose similarity clears the
// threshold against its group's seed. Each group of two or more records
// keeps its longest member.
func (d *Deduplicator) Run(ctx context.Context, s *analysis.State) (string, error) {
	var order []scopeKey
	scopes := make(map[scopeKey][]*analysis.Record)
	for _, r := range s.Records {
		if !r.Active || strings.TrimSpace(r.Text) == "" {
			continue
		}
		year, week := r.Created.In(d.loc).ISOWeek()
		k := scopeKey{author: r.AuthorID, year: year, week: week}
		if _, ok := scopes[k]; !ok {
			order = append(order, k)
		}
		scopes[k] = append(scopes[k], r)
	}
	if len(order) == 0 {
		s.Warn(d.Name(), "no eligible records")
		return "no eligible records", nil
	}

	// One embedding call covers every scope with at least two members.
	var texts []string
	for _, k := range order {
		if len(scopes[k]) < 2 {
			continue
		}
		for _, r := range scopes[k] {
			texts = append(texts, r.Text)
		}
	}
	if len(texts) == 0 {
		return "no scope with more than one record", nil
	}
	if d.embedder == nil {
		return "", fmt.Errorf("%w: no embedder configured", analysis.ErrShapeMismatch)
	}

	vecs, err := d.embedder.Embed(ctx, texts)
	if err != nil {
		return "", fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	if err := analysis.CheckShape(vecs, len(texts)); err != nil {
		return "", err
	}

	var groups, removed, offset int
	for _, k := range order {
		members := scopes[k]
		if len(members) < 2 {
			continue
		}
		scopeVecs := vecs[offset : offset+len(members)]
		offset += len(members)

		for _, comp := range components(scopeVecs, d.threshold) {
			if len(comp) < 2 {
				continue
			}
			groups++
			removed += len(comp) - 1
			markGroup(members, comp)
		}
	}

	return fmt.Sprintf("%d duplicate groups, %d segments deactivated", groups, removed), nil
}

// components groups records in input order: each unvisited record seeds a
// group and takes every later unvisited record whose similarity to the seed
// is at least threshold. Members are in input order.
func components(vecs [][]float64, threshold float64) [][]int {
	visited := make([]bool, len(vecs))
	var out [][]int
	for i := range vecs {
		if visited[i] {
			continue
		}
		visited[i] = true
		comp := []int{i}
		for j := i + 1; j < len(vecs); j++ {
			if !visited[j] && analysis.Cosine(vecs[i], vecs[j]) >= threshold {
				visited[j] = true
				comp = append(comp, j)
			}
		}
		out = append(out, comp)
	}
	return out
}

// markGroup assigns a group id to the component and keeps its longest member.
func markGroup(members []*analysis.Record, comp []int) {
	ids := make([]string, len(comp))
	rep := comp[0]
	for i, idx := range comp {
		ids[i] = members[idx].ID
		if utf8.RuneCountInString(members[idx].Text) > utf8.RuneCountInString(members[rep].Text) {
			rep = idx
		}
	}
	groupID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.Join(ids, "\x00"))).String()

	for _, idx := range comp {
		r := members[idx]
		r.DupGroupID = groupID
		r.IsGroupRepresentative = idx == rep
		if idx != rep {
			r.Deactivate(analysis.ReasonNearDuplicate)
		}
	}
}

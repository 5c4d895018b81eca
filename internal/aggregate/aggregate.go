// Package aggregate builds the weekly context: risk counts, the category
// tree, highlights and the ranked candidate lists the report is composed
// from. Every ordering has a total tie-break so identical input always
// yields an identical context.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/TobiSchelling/camppulse/internal/analysis"
)

const (
	DefaultHighlightLimit = 6
	MaxKeyTopics          = 3
	MaxOpsActions         = 3

	highlightBonus   = 2.0
	excerptRunes     = 120
	summaryRunes     = 80
	excerptsPerTopic = 3
)

// Aggregator is the seventh pipeline stage.
type Aggregator struct {
	highlightLimit int
}

func New(highlightLimit int) *Aggregator {
	if highlightLimit <= 0 {
		highlightLimit = DefaultHighlightLimit
	}
	return &Aggregator{highlightLimit: highlightLimit}
}

func (a *Aggregator) Name() string { return "aggregate" }

func (a *Aggregator) Run(ctx context.Context, s *analysis.State) (string, error) {
	active := s.ActiveRecords()
	wc := &analysis.WeeklyContext{
		Risk:                riskStats(active),
		UrgencyCounts:       urgencyCounts(active),
		Categories:          []analysis.CategoryStat{},
		Highlights:          highlights(active, a.highlightLimit),
		KeyTopicCandidates:  []analysis.Candidate{},
		OpsActionCandidates: []analysis.Candidate{},
	}

	groups := groupClusters(s)
	wc.Categories = categoryTree(groups)

	all := candidates(groups, wc.Highlights)
	if len(all) > MaxKeyTopics {
		wc.KeyTopicCandidates = all[:MaxKeyTopics]
	} else {
		wc.KeyTopicCandidates = append(wc.KeyTopicCandidates, all...)
	}
	wc.OpsActionCandidates = opsCandidates(all)

	s.Context = wc
	return fmt.Sprintf("%d active, %d categories, %d key topics, %d ops actions",
		wc.Risk.Total, len(wc.Categories), len(wc.KeyTopicCandidates), len(wc.OpsActionCandidates)), nil
}

func riskStats(active []*analysis.Record) analysis.RiskStats {
	rs := analysis.RiskStats{
		Total: len(active),
		SeverityCounts: map[analysis.Severity]int{
			analysis.SeverityLow:    0,
			analysis.SeverityMedium: 0,
			analysis.SeverityHigh:   0,
		},
	}
	for _, r := range active {
		rs.SeverityCounts[r.Severity]++
		if r.IsToxic {
			rs.Toxic++
		}
		switch {
		case r.Danger():
			rs.Danger++
		case r.Severity == analysis.SeverityMedium:
			rs.Warning++
		default:
			rs.Normal++
		}
	}
	return rs
}

func urgencyCounts(active []*analysis.Record) map[analysis.Urgency]int {
	counts := make(map[analysis.Urgency]int, len(analysis.Urgencies))
	for _, u := range analysis.Urgencies {
		counts[u] = 0
	}
	for _, r := range active {
		if r.Urgency != "" {
			counts[r.Urgency]++
		}
	}
	return counts
}

// highlights returns the danger and warning records, most severe first,
// then toxic first, then newest first.
func highlights(active []*analysis.Record, limit int) []analysis.Highlight {
	var risky []*analysis.Record
	for _, r := range active {
		if r.Danger() || r.Severity == analysis.SeverityMedium {
			risky = append(risky, r)
		}
	}
	sort.SliceStable(risky, func(i, j int) bool {
		a, b := risky[i], risky[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.IsToxic != b.IsToxic {
			return a.IsToxic
		}
		if !a.Created.Equal(b.Created) {
			return a.Created.After(b.Created)
		}
		return a.ID < b.ID
	})
	if len(risky) > limit {
		risky = risky[:limit]
	}

	out := make([]analysis.Highlight, 0, len(risky))
	for _, r := range risky {
		out = append(out, analysis.Highlight{
			PostID:      r.PostID,
			Excerpt:     Excerpt(r.Text, excerptRunes),
			Severity:    r.Severity,
			IsToxic:     r.IsToxic,
			Category:    r.Category,
			SubCategory: r.SubCategory,
			CreatedAt:   r.Created,
		})
	}
	return out
}

// group is one (category, sub-category) pair with its active members.
type group struct {
	category string
	label    string
	keywords []string
	urgency  analysis.Urgency
	merged   bool
	members  []*analysis.Record
}

// groupClusters collects the active members of every cluster, merging
// clusters that ended up with the same category and label. A group keeps
// its cluster's urgency; merged or unclassified groups take the dominant
// urgency of their members.
func groupClusters(s *analysis.State) []*group {
	index := make(map[[2]string]*group)
	var out []*group
	for _, cl := range s.Clusters {
		key := [2]string{cl.Category, cl.Label}
		g, ok := index[key]
		if !ok {
			g = &group{category: cl.Category, label: cl.Label, keywords: cl.Keywords, urgency: cl.Urgency}
			index[key] = g
			out = append(out, g)
		} else {
			g.merged = true
		}
		for _, id := range cl.MemberIDs {
			if r := s.RecordByID(id); r != nil && r.Active {
				g.members = append(g.members, r)
			}
		}
	}

	kept := out[:0]
	for _, g := range out {
		if len(g.members) == 0 {
			continue
		}
		if g.merged || g.urgency == "" {
			g.urgency = analysis.DominantUrgency(g.members)
		}
		kept = append(kept, g)
	}
	return kept
}

func (g *group) postIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, r := range g.members {
		if !seen[r.PostID] {
			seen[r.PostID] = true
			ids = append(ids, r.PostID)
		}
	}
	return ids
}

func (g *group) summary() string {
	longest := g.members[0]
	for _, r := range g.members[1:] {
		if utf8.RuneCountInString(r.Text) > utf8.RuneCountInString(longest.Text) {
			longest = r
		}
	}
	return Excerpt(longest.Text, summaryRunes)
}

func categoryTree(groups []*group) []analysis.CategoryStat {
	index := make(map[string]int)
	tree := []analysis.CategoryStat{}
	for _, g := range groups {
		i, ok := index[g.category]
		if !ok {
			i = len(tree)
			index[g.category] = i
			tree = append(tree, analysis.CategoryStat{Category: g.category})
		}
		keywords := g.keywords
		if keywords == nil {
			keywords = []string{}
		}
		tree[i].Count += len(g.members)
		tree[i].SubCategories = append(tree[i].SubCategories, analysis.SubCategoryStat{
			Label:    g.label,
			Count:    len(g.members),
			Keywords: keywords,
			Summary:  g.summary(),
			Urgency:  g.urgency,
			PostIDs:  g.postIDs(),
		})
	}

	for i := range tree {
		subs := tree[i].SubCategories
		sort.SliceStable(subs, func(a, b int) bool {
			if subs[a].Count != subs[b].Count {
				return subs[a].Count > subs[b].Count
			}
			return subs[a].Label < subs[b].Label
		})
	}
	sort.SliceStable(tree, func(a, b int) bool {
		if tree[a].Count != tree[b].Count {
			return tree[a].Count > tree[b].Count
		}
		return tree[a].Category < tree[b].Category
	})
	return tree
}

// candidates scores every group and returns them in descending score order.
func candidates(groups []*group, hl []analysis.Highlight) []analysis.Candidate {
	highlighted := make(map[string]bool, len(hl))
	for _, h := range hl {
		highlighted[h.PostID] = true
	}

	out := make([]analysis.Candidate, 0, len(groups))
	for _, g := range groups {
		u := g.urgency
		ids := g.postIDs()
		score := float64(len(g.members)) + u.Bonus()
		for _, id := range ids {
			if highlighted[id] {
				score += highlightBonus
				break
			}
		}

		var excerpts []string
		for _, r := range g.members {
			if len(excerpts) == excerptsPerTopic {
				break
			}
			excerpts = append(excerpts, Excerpt(r.Text, excerptRunes))
		}

		out = append(out, analysis.Candidate{
			Category:    g.category,
			SubCategory: g.label,
			Count:       len(g.members),
			Urgency:     u,
			Score:       score,
			Keywords:    g.keywords,
			PostIDs:     ids,
			Excerpts:    excerpts,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.SubCategory < b.SubCategory
	})
	return out
}

// opsCandidates picks, from the full ranked list, the best candidate for
// each urgency, most urgent first.
func opsCandidates(ranked []analysis.Candidate) []analysis.Candidate {
	out := []analysis.Candidate{}
	for _, u := range analysis.Urgencies {
		for _, c := range ranked {
			if c.Urgency == u {
				out = append(out, c)
				break
			}
		}
		if len(out) == MaxOpsActions {
			break
		}
	}
	return out
}

// Excerpt truncates s to n runes, marking the cut with an ellipsis.
func Excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

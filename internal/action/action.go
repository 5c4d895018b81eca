// Package action assigns a response urgency to every active record and a
// dominant urgency to every cluster.
package action

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/TobiSchelling/camppulse/internal/analysis"
	"github.com/TobiSchelling/camppulse/internal/config"
	"github.com/TobiSchelling/camppulse/internal/normalize"
)

// Classifier is the sixth pipeline stage.
type Classifier struct {
	escalation []*regexp.Regexp
	rules      config.ActionRules
}

// New compiles the escalation patterns.
func New(patterns []string, rules config.ActionRules) (*Classifier, error) {
	re, err := normalize.CompilePatterns(patterns)
	if err != nil {
		return nil, fmt.Errorf("action_patterns: %w", err)
	}
	return &Classifier{escalation: re, rules: rules}, nil
}

func (c *Classifier) Name() string { return "action" }

func (c *Classifier) Run(ctx context.Context, s *analysis.State) (string, error) {
	counts := make(map[analysis.Urgency]int)
	for _, r := range s.Records {
		if !r.Active {
			continue
		}
		r.Urgency = c.Classify(r)
		counts[r.Urgency]++
	}

	for _, cl := range s.Clusters {
		members := make([]*analysis.Record, 0, len(cl.MemberIDs))
		for _, id := range cl.MemberIDs {
			if r := s.RecordByID(id); r != nil {
				members = append(members, r)
			}
		}
		cl.Urgency = analysis.DominantUrgency(members)
	}

	return fmt.Sprintf("%d immediate, %d short, %d long",
		counts[analysis.Immediate], counts[analysis.Short], counts[analysis.Long]), nil
}

// Classify returns the urgency of one record. The first matching rule wins.
func (c *Classifier) Classify(r *analysis.Record) analysis.Urgency {
	if r.IsToxic || r.Severity == analysis.SeverityHigh {
		return analysis.Immediate
	}
	raw := r.RawText
	if raw == "" {
		raw = r.Text
	}
	for _, re := range c.escalation {
		if re.MatchString(raw) {
			return analysis.Immediate
		}
	}

	category := strings.ToLower(r.Category)
	switch {
	case containsAny(category, c.rules.Operational):
		return analysis.Immediate
	case containsAny(category, c.rules.Schedule), containsAny(category, c.rules.Assignment):
		return analysis.Short
	case containsAny(category, c.rules.Burnout), containsAny(category, c.rules.Team):
		return analysis.Long
	default:
		return analysis.Short
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

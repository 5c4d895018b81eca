// Package cluster groups active records into topics and maps each topic
// onto the camp's category template.
package cluster

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/TobiSchelling/camppulse/internal/analysis"
	"github.com/TobiSchelling/camppulse/internal/keywords"
	"github.com/TobiSchelling/camppulse/internal/llm"
)

const (
	DefaultMinClusterSize = 2
	DefaultLabelKeywords  = 4
	fallbackLabelRunes    = 30
)

// Clusterer is the fourth pipeline stage.
type Clusterer struct {
	embedder      llm.Embedder
	tok           *keywords.Tokenizer
	minSize       int
	labelKeywords int
	density       DensityFunc
}

// New creates a clusterer backed by HDBSCAN.
func New(embedder llm.Embedder, tok *keywords.Tokenizer, minSize, labelKeywords int) *Clusterer {
	if minSize < 2 {
		minSize = DefaultMinClusterSize
	}
	if labelKeywords <= 0 {
		labelKeywords = DefaultLabelKeywords
	}
	return &Clusterer{
		embedder:      embedder,
		tok:           tok,
		minSize:       minSize,
		labelKeywords: labelKeywords,
		density:       HDBSCAN,
	}
}

// WithDensity replaces the density clustering function.
func (c *Clusterer) WithDensity(fn DensityFunc) *Clusterer {
	c.density = fn
	return c
}

func (c *Clusterer) Name() string { return "cluster" }

// Run embeds the active records, clusters them, labels every cluster and
// writes category and sub-category onto its members.
func (c *Clusterer) Run(ctx context.Context, s *analysis.State) (string, error) {
	var recs []*analysis.Record
	for _, r := range s.ActiveRecords() {
		if r.Text != "" {
			recs = append(recs, r)
		}
	}
	s.Clusters = nil
	if len(recs) == 0 {
		s.Warn(c.Name(), "no eligible records, category stats will be empty")
		return "no eligible records", nil
	}
	if c.embedder == nil {
		return "", fmt.Errorf("%w: no embedder configured", analysis.ErrShapeMismatch)
	}

	texts := make([]string, len(recs))
	for i, r := range recs {
		texts[i] = r.Text
	}
	vecs, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return "", fmt.Errorf("embedding %d texts: %w", len(texts), err)
	}
	if err := analysis.CheckShape(vecs, len(texts)); err != nil {
		return "", err
	}

	var groups [][]int
	if len(recs) >= c.minSize {
		if groups, err = c.density(vecs, c.minSize); err != nil {
			return "", fmt.Errorf("density clustering: %w", err)
		}
	}

	templateVecs, err := c.embedTemplate(ctx, s.Template)
	if err != nil {
		return "", err
	}

	inGroup := make([]bool, len(recs))
	for _, g := range groups {
		cl := c.build(recs, vecs, g, false)
		cl.Category = nearestCategory(cl.Centroid, s.Template, templateVecs)
		s.Clusters = append(s.Clusters, cl)
		for _, idx := range g {
			inGroup[idx] = true
		}
	}

	var noise []int
	for i, ok := range inGroup {
		if !ok {
			noise = append(noise, i)
		}
	}
	if len(noise) > 0 {
		cl := c.build(recs, vecs, noise, true)
		cl.Category = nearestCategory(cl.Centroid, s.Template, templateVecs)
		s.Clusters = append(s.Clusters, cl)
	}

	for _, cl := range s.Clusters {
		for _, id := range cl.MemberIDs {
			if r := s.RecordByID(id); r != nil {
				r.Category = cl.Category
				r.SubCategory = cl.Label
			}
		}
	}

	return fmt.Sprintf("%d clusters, %d noise records", len(groups), len(noise)), nil
}

func (c *Clusterer) build(recs []*analysis.Record, vecs [][]float64, idx []int, noise bool) *analysis.Cluster {
	cl := &analysis.Cluster{Noise: noise}
	memberTexts := make([]string, 0, len(idx))
	memberVecs := make([][]float64, 0, len(idx))
	for _, i := range idx {
		cl.MemberIDs = append(cl.MemberIDs, recs[i].ID)
		memberTexts = append(memberTexts, recs[i].Text)
		memberVecs = append(memberVecs, vecs[i])
	}
	cl.Centroid = analysis.Mean(memberVecs)
	cl.Keywords = c.tok.TopTerms(memberTexts, c.labelKeywords)

	switch {
	case noise:
		cl.Label = analysis.OtherLabel
	case len(cl.Keywords) > 0:
		cl.Label = strings.Join(cl.Keywords, ", ")
	default:
		cl.Label = truncate(memberTexts[0], fallbackLabelRunes)
	}
	return cl
}

func (c *Clusterer) embedTemplate(ctx context.Context, template []string) ([][]float64, error) {
	if len(template) == 0 {
		return nil, nil
	}
	vecs, err := c.embedder.Embed(ctx, template)
	if err != nil {
		return nil, fmt.Errorf("embedding category template: %w", err)
	}
	if err := analysis.CheckShape(vecs, len(template)); err != nil {
		return nil, err
	}
	return vecs, nil
}

// nearestCategory returns the template label most similar to centroid;
// ties go to the earlier label. An empty template yields OtherLabel.
func nearestCategory(centroid []float64, template []string, templateVecs [][]float64) string {
	if len(template) == 0 {
		return analysis.OtherLabel
	}
	best, bestSim := 0, analysis.Cosine(centroid, templateVecs[0])
	for i := 1; i < len(template); i++ {
		if sim := analysis.Cosine(centroid, templateVecs[i]); sim > bestSim {
			best, bestSim = i, sim
		}
	}
	return template[best]
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// Package compose turns the weekly context into prose. The model only
// phrases the candidates it is given; every count, category and post id in
// the report comes from the context.
package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/TobiSchelling/camppulse/internal/analysis"
	"github.com/TobiSchelling/camppulse/internal/llm"
)

const (
	DefaultMaxTokens = 1024
	emptyWeekSummary = "No feedback was posted this week."
)

const composePrompt = `You are writing the weekly feedback report for the operators of a coding bootcamp.

Below is this week's aggregated feedback as JSON. It contains risk counts, ranked key topics and
ranked operational actions, each with real excerpts from anonymous student posts.

%s

Rules:
- Use only facts present in the JSON. Do not invent counts, categories, people or events.
- Write in the language of the excerpts.
- "summary": 2-4 sentences on the overall mood and the most pressing issues.
- "key_topic_summaries": exactly %d strings, one sentence per key topic, in the given order.
- "ops_action_todos": exactly %d strings, one concrete to-do per operational action, in the given order.

Respond with ONLY this JSON:
{
    "summary": "...",
    "key_topic_summaries": ["..."],
    "ops_action_todos": ["..."]
}`

// narrative is the schema the model must answer with.
type narrative struct {
	Summary           string   `json:"summary"`
	KeyTopicSummaries []string `json:"key_topic_summaries"`
	OpsActionTodos    []string `json:"ops_action_todos"`
}

// Composer is the eighth pipeline stage.
type Composer struct {
	provider  llm.Provider
	maxTokens int
}

// New creates a composer. A nil or unconfigured provider yields a
// deterministic report built from the context alone.
func New(provider llm.Provider, maxTokens int) *Composer {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Composer{provider: provider, maxTokens: maxTokens}
}

func (c *Composer) Name() string { return "compose" }

func (c *Composer) Run(ctx context.Context, s *analysis.State) (string, error) {
	wc := s.Context
	if wc == nil {
		return "", fmt.Errorf("no weekly context to compose from")
	}

	if wc.Risk.Total == 0 {
		s.Report = bind(wc, narrative{Summary: emptyWeekSummary})
		return "empty week", nil
	}

	if c.provider == nil || !c.provider.IsConfigured() {
		s.Warn(c.Name(), "no narrative provider configured, using deterministic report")
		s.Report = bind(wc, fallback(wc))
		return "fallback report", nil
	}

	n, err := c.generate(ctx, wc)
	if err != nil {
		return "", err
	}

	if len(n.KeyTopicSummaries) != len(wc.KeyTopicCandidates) {
		s.Warn(c.Name(), "model returned %d key topic summaries for %d candidates",
			len(n.KeyTopicSummaries), len(wc.KeyTopicCandidates))
	}
	if len(n.OpsActionTodos) != len(wc.OpsActionCandidates) {
		s.Warn(c.Name(), "model returned %d ops todos for %d candidates",
			len(n.OpsActionTodos), len(wc.OpsActionCandidates))
	}
	if strings.TrimSpace(n.Summary) == "" {
		s.Warn(c.Name(), "model returned an empty summary, using deterministic summary")
		n.Summary = fallback(wc).Summary
	}

	s.Report = bind(wc, n)
	return fmt.Sprintf("%d key topics, %d ops actions", len(s.Report.KeyTopics), len(s.Report.OpsActions)), nil
}

func (c *Composer) generate(ctx context.Context, wc *analysis.WeeklyContext) (narrative, error) {
	var n narrative
	body, err := json.MarshalIndent(promptFacts(wc), "", "  ")
	if err != nil {
		return n, fmt.Errorf("encoding prompt facts: %w", err)
	}
	prompt := fmt.Sprintf(composePrompt, body, len(wc.KeyTopicCandidates), len(wc.OpsActionCandidates))

	text, err := c.provider.Generate(ctx, prompt, c.maxTokens)
	if err != nil {
		return n, fmt.Errorf("generating narrative: %w", err)
	}
	if err := llm.DecodeJSON(text, &n); err != nil {
		return n, fmt.Errorf("decoding narrative: %w", err)
	}
	return n, nil
}

type factTopic struct {
	Category    string           `json:"category"`
	SubCategory string           `json:"sub_category"`
	Count       int              `json:"count"`
	Urgency     analysis.Urgency `json:"urgency"`
	Keywords    []string         `json:"keywords,omitempty"`
	Excerpts    []string         `json:"excerpts"`
}

type facts struct {
	Risk       analysis.RiskStats `json:"risk"`
	Highlights []string           `json:"highlight_excerpts,omitempty"`
	KeyTopics  []factTopic        `json:"key_topics"`
	OpsActions []factTopic        `json:"ops_actions"`
}

// promptFacts is the subset of the context the model sees. Post ids and
// scores stay out of the prompt.
func promptFacts(wc *analysis.WeeklyContext) facts {
	f := facts{Risk: wc.Risk, KeyTopics: []factTopic{}, OpsActions: []factTopic{}}
	for _, h := range wc.Highlights {
		f.Highlights = append(f.Highlights, h.Excerpt)
	}
	for _, c := range wc.KeyTopicCandidates {
		f.KeyTopics = append(f.KeyTopics, toFact(c))
	}
	for _, c := range wc.OpsActionCandidates {
		f.OpsActions = append(f.OpsActions, toFact(c))
	}
	return f
}

func toFact(c analysis.Candidate) factTopic {
	return factTopic{
		Category:    c.Category,
		SubCategory: c.SubCategory,
		Count:       c.Count,
		Urgency:     c.Urgency,
		Keywords:    c.Keywords,
		Excerpts:    c.Excerpts,
	}
}

// bind pairs the narrative with the candidate lists index by index. Missing
// entries become empty strings and surplus entries are dropped.
func bind(wc *analysis.WeeklyContext, n narrative) *analysis.ComposedReport {
	r := &analysis.ComposedReport{
		Summary:    strings.TrimSpace(n.Summary),
		KeyTopics:  make([]analysis.KeyTopic, len(wc.KeyTopicCandidates)),
		OpsActions: make([]analysis.OpsAction, len(wc.OpsActionCandidates)),
	}
	for i, c := range wc.KeyTopicCandidates {
		r.KeyTopics[i] = analysis.KeyTopic{
			Category:    c.Category,
			SubCategory: c.SubCategory,
			Summary:     at(n.KeyTopicSummaries, i),
			Score:       c.Score,
			PostIDs:     c.PostIDs,
			Excerpts:    c.Excerpts,
		}
	}
	for i, c := range wc.OpsActionCandidates {
		r.OpsActions[i] = analysis.OpsAction{
			Target:  Target(c),
			Reason:  Reason(c),
			Todo:    at(n.OpsActionTodos, i),
			Urgency: c.Urgency,
			Score:   c.Score,
		}
	}
	return r
}

func at(items []string, i int) string {
	if i < len(items) {
		return strings.TrimSpace(items[i])
	}
	return ""
}

// Target names the area an ops action addresses.
func Target(c analysis.Candidate) string {
	if c.SubCategory == "" || c.SubCategory == c.Category {
		return c.Category
	}
	return c.Category + " / " + c.SubCategory
}

// Reason states the facts behind an ops action.
func Reason(c analysis.Candidate) string {
	noun := "posts"
	if c.Count == 1 {
		noun = "post"
	}
	return fmt.Sprintf("%d %s, %s urgency", c.Count, noun, c.Urgency)
}

func fallback(wc *analysis.WeeklyContext) narrative {
	var b strings.Builder
	fmt.Fprintf(&b, "%d posts analyzed this week", wc.Risk.Total)
	if wc.Risk.Danger > 0 {
		fmt.Fprintf(&b, ", %d need immediate attention", wc.Risk.Danger)
	}
	b.WriteString(".")
	if len(wc.KeyTopicCandidates) > 0 {
		var topics []string
		for _, c := range wc.KeyTopicCandidates {
			topics = append(topics, Target(c))
		}
		fmt.Fprintf(&b, " Top topics: %s.", strings.Join(topics, "; "))
	}

	n := narrative{Summary: b.String()}
	for _, c := range wc.KeyTopicCandidates {
		n.KeyTopicSummaries = append(n.KeyTopicSummaries, fmt.Sprintf("%s: %s.", Target(c), Reason(c)))
	}
	for _, c := range wc.OpsActionCandidates {
		n.OpsActionTodos = append(n.OpsActionTodos, fmt.Sprintf("Review the %s feedback.", Target(c)))
	}
	return n
}

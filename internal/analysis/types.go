// Package analysis holds the working state of one weekly feedback run and
// the types every stage reads and writes.
package analysis

import (
	"time"
)

// Severity of a record.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities, higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

// Urgency is the required-response timeframe of a record or cluster.
type Urgency string

const (
	Immediate Urgency = "immediate"
	Short     Urgency = "short"
	Long      Urgency = "long"
)

// Urgencies lists urgency values from most to least urgent.
var Urgencies = []Urgency{Immediate, Short, Long}

// DominantUrgency returns the most frequent urgency among the active,
// classified records. Ties go to the more urgent value; with no classified
// record the result is Short.
func DominantUrgency(recs []*Record) Urgency {
	counts := make(map[Urgency]int)
	for _, r := range recs {
		if r.Active && r.Urgency != "" {
			counts[r.Urgency]++
		}
	}
	best, bestN := Short, 0
	for _, u := range Urgencies {
		if counts[u] > bestN {
			best, bestN = u, counts[u]
		}
	}
	return best
}

// Rank orders urgencies, higher is more urgent. Unknown values rank lowest.
func (u Urgency) Rank() int {
	switch u {
	case Immediate:
		return 3
	case Short:
		return 2
	case Long:
		return 1
	default:
		return 0
	}
}

// Bonus is the score added to a key-topic candidate with this urgency.
func (u Urgency) Bonus() float64 {
	switch u {
	case Immediate:
		return 3
	case Short:
		return 1.5
	case Long:
		return 0.5
	default:
		return 0
	}
}

// Inactivation reasons.
const (
	ReasonMeaningless   = "meaningless"
	ReasonNearDuplicate = "near_duplicate"
)

// OtherLabel is the category and sub-category used for noise and for
// camps without a category template.
const OtherLabel = "other"

// Post is one raw submission as the pipeline receives it.
type Post struct {
	ID        string
	CampID    string
	AuthorID  string
	Text      string
	CreatedAt time.Time
}

// Record is the pipeline's annotation of a post or of one split segment.
type Record struct {
	ID       string    `json:"id"`
	PostID   string    `json:"post_id"`
	CampID   string    `json:"camp_id"`
	AuthorID string    `json:"author_id"`
	RawText  string    `json:"-"`
	Text     string    `json:"text"`
	Created  time.Time `json:"created_at"`

	Active          bool     `json:"active"`
	InactiveReasons []string `json:"inactive_reasons,omitempty"`

	ToxicityScore float64  `json:"toxicity_score"`
	IsToxic       bool     `json:"is_toxic"`
	Severity      Severity `json:"severity"`

	Category    string   `json:"category,omitempty"`
	SubCategory string   `json:"sub_category,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Urgency     Urgency  `json:"action_type,omitempty"`

	DupGroupID            string `json:"dup_group_id,omitempty"`
	IsGroupRepresentative bool   `json:"is_group_representative"`

	ParentID     string `json:"parent_id,omitempty"`
	SplitIndex   int    `json:"split_index"`
	IsSplitChild bool   `json:"is_split_child"`

	AnalyzerVersion string    `json:"analyzer_version"`
	AnalyzedAt      time.Time `json:"analyzed_at"`
}

// Deactivate marks the record inactive for reason. A reason is recorded once.
func (r *Record) Deactivate(reason string) {
	r.Active = false
	for _, existing := range r.InactiveReasons {
		if existing == reason {
			return
		}
	}
	r.InactiveReasons = append(r.InactiveReasons, reason)
}

// Visible reports whether the record belongs in the published rows: active
// and either ungrouped or its group's representative.
func (r *Record) Visible() bool {
	return r.Active && (r.DupGroupID == "" || r.IsGroupRepresentative)
}

// Danger reports whether the record counts toward the danger bucket.
func (r *Record) Danger() bool {
	return r.IsToxic || r.Severity == SeverityHigh
}

// Cluster is an ephemeral grouping of records by embedding similarity.
type Cluster struct {
	Noise     bool      `json:"noise"`
	Category  string    `json:"category"`
	Label     string    `json:"sub_category"`
	Keywords  []string  `json:"keywords"`
	MemberIDs []string  `json:"member_ids"`
	Urgency   Urgency   `json:"urgency,omitempty"`
	Centroid  []float64 `json:"-"`
}

// Keyword is one entry of a ranked term list.
type Keyword struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// RiskStats is the risk block of a weekly context.
type RiskStats struct {
	Total          int              `json:"total_posts"`
	Toxic          int              `json:"toxic_count"`
	SeverityCounts map[Severity]int `json:"severity_counts"`
	Danger         int              `json:"danger"`
	Warning        int              `json:"warning"`
	Normal         int              `json:"normal"`
}

// SubCategoryStat is one cluster within a category of the category tree.
type SubCategoryStat struct {
	Label    string   `json:"label"`
	Count    int      `json:"count"`
	Keywords []string `json:"keywords"`
	Summary  string   `json:"summary"`
	Urgency  Urgency  `json:"urgency"`
	PostIDs  []string `json:"post_ids"`
}

// CategoryStat is one top-level category of the category tree.
type CategoryStat struct {
	Category      string            `json:"category"`
	Count         int               `json:"count"`
	SubCategories []SubCategoryStat `json:"sub_categories"`
}

// Highlight is a short excerpt of a high-risk record.
type Highlight struct {
	PostID      string    `json:"post_id"`
	Excerpt     string    `json:"excerpt"`
	Severity    Severity  `json:"severity"`
	IsToxic     bool      `json:"is_toxic"`
	Category    string    `json:"category"`
	SubCategory string    `json:"sub_category"`
	CreatedAt   time.Time `json:"created_at"`
}

// Candidate is a scored (category, sub-category) pair eligible for the report.
type Candidate struct {
	Category    string   `json:"category"`
	SubCategory string   `json:"sub_category"`
	Count       int      `json:"count"`
	Urgency     Urgency  `json:"urgency"`
	Score       float64  `json:"score"`
	Keywords    []string `json:"keywords"`
	PostIDs     []string `json:"post_ids"`
	Excerpts    []string `json:"excerpts"`
}

// WeeklyContext is the in-memory aggregate of one camp-week.
type WeeklyContext struct {
	Risk                RiskStats       `json:"risk"`
	Categories          []CategoryStat  `json:"categories"`
	Highlights          []Highlight     `json:"highlights"`
	UrgencyCounts       map[Urgency]int `json:"urgency_counts"`
	KeyTopicCandidates  []Candidate     `json:"key_topic_candidates"`
	OpsActionCandidates []Candidate     `json:"ops_action_candidates"`
}

// KeyTopic is one published key topic.
type KeyTopic struct {
	Category    string   `json:"category"`
	SubCategory string   `json:"sub_category"`
	Summary     string   `json:"summary"`
	Score       float64  `json:"score"`
	PostIDs     []string `json:"post_ids"`
	Excerpts    []string `json:"excerpts"`
}

// OpsAction is one published operational action.
type OpsAction struct {
	Target  string  `json:"target"`
	Reason  string  `json:"reason"`
	Todo    string  `json:"todo"`
	Urgency Urgency `json:"urgency"`
	Score   float64 `json:"score"`
}

// ComposedReport is the narrative bound 1:1 to the candidate lists.
type ComposedReport struct {
	Summary    string      `json:"summary"`
	KeyTopics  []KeyTopic  `json:"key_topics"`
	OpsActions []OpsAction `json:"ops_actions"`
}

// Payload is the externally visible result of a run.
type Payload struct {
	CampID          string         `json:"camp_id"`
	Week            string         `json:"week"`
	AnalyzerVersion string         `json:"analyzer_version"`
	Rows            []Record       `json:"rows"`
	Report          ComposedReport `json:"report"`
	Stats           WeeklyContext  `json:"stats"`
	WordCloud       []Keyword      `json:"wordcloud"`
	Warnings        []string       `json:"warnings,omitempty"`
}

// WeeklyReport is the persisted artifact: the payload plus provenance.
type WeeklyReport struct {
	Payload
	SourcePostIDs []string   `json:"source_post_ids"`
	SourceMinAt   *time.Time `json:"source_min_at,omitempty"`
	SourceMaxAt   *time.Time `json:"source_max_at,omitempty"`
	GeneratedAt   time.Time  `json:"generated_at"`
}

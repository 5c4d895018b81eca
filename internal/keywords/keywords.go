package keywords

import (
	"context"
	"fmt"

	"github.com/TobiSchelling/camppulse/internal/analysis"
)

const (
	DefaultTopK           = 40
	DefaultRecordKeywords = 8
)

// Extractor is the fifth pipeline stage.
type Extractor struct {
	tok       *Tokenizer
	topK      int
	perRecord int
}

// New creates an extractor keeping topK corpus terms and perRecord tags.
func New(tok *Tokenizer, topK, perRecord int) *Extractor {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if perRecord <= 0 {
		perRecord = DefaultRecordKeywords
	}
	return &Extractor{tok: tok, topK: topK, perRecord: perRecord}
}

func (e *Extractor) Name() string { return "keywords" }

// Run builds the word cloud from active text and tags each active record.
func (e *Extractor) Run(ctx context.Context, s *analysis.State) (string, error) {
	active := s.ActiveRecords()
	texts := make([]string, 0, len(active))
	for _, r := range active {
		if r.Text != "" {
			texts = append(texts, r.Text)
		}
	}
	if len(texts) == 0 {
		s.WordCloud = []analysis.Keyword{}
		s.Warn(e.Name(), "no active text, word cloud is empty")
		return "no active text", nil
	}

	s.WordCloud = e.tok.Top(texts, e.topK)
	for _, r := range active {
		r.Keywords = e.tok.TopTerms([]string{r.Text}, e.perRecord)
	}
	return fmt.Sprintf("%d word-cloud terms from %d records", len(s.WordCloud), len(active)), nil
}

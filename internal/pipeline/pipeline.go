// Package pipeline runs the weekly feedback analysis for one camp-week:
// it loads the posts, threads one working state through the nine stages in
// order and records every run, including failed ones.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/TobiSchelling/camppulse/internal/action"
	"github.com/TobiSchelling/camppulse/internal/aggregate"
	"github.com/TobiSchelling/camppulse/internal/analysis"
	"github.com/TobiSchelling/camppulse/internal/cluster"
	"github.com/TobiSchelling/camppulse/internal/compose"
	"github.com/TobiSchelling/camppulse/internal/config"
	"github.com/TobiSchelling/camppulse/internal/database"
	"github.com/TobiSchelling/camppulse/internal/dedup"
	"github.com/TobiSchelling/camppulse/internal/keywords"
	"github.com/TobiSchelling/camppulse/internal/llm"
	"github.com/TobiSchelling/camppulse/internal/normalize"
	"github.com/TobiSchelling/camppulse/internal/split"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Repository is the storage the pipeline reads posts from and writes
// reports to.
type Repository interface {
	ReportStore
	GetPostsForWindow(campID, role string, start, end time.Time) ([]database.Post, error)
	GetCategoryTemplate(campID string) ([]string, error)
	GetPostsNeedingFetch(campID string) ([]database.Post, error)
	GetWeeklyReport(campID, week, analyzerVersion string) (*database.WeeklyReportRow, error)
	InsertRunReport(r database.RunReport) (int64, error)
}

var _ Repository = (*database.DB)(nil)

// Request names the camp-week to analyze. Week is an ISO week id or a
// date range accepted by database.ResolveWindow.
type Request struct {
	CampID string
	Week   string
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name     string
	Summary  string
	Duration time.Duration
	Err      error
}

// Result holds the results of a full pipeline run. Payload and Report are
// nil when the run failed.
type Result struct {
	CampID    string
	Week      string
	Payload   *analysis.Payload
	Report    *analysis.WeeklyReport
	Persisted bool
	Steps     []StepResult
	Warnings  []string
	Errors    []string
}

// OK reports whether the run finished without fatal errors.
func (r *Result) OK() bool { return len(r.Errors) == 0 }

// Options tune a pipeline. Zero values select defaults.
type Options struct {
	AnalyzerVersion string
	Location        *time.Location
	Logger          logrus.FieldLogger
	Now             func() time.Time
}

// Pipeline orchestrates the weekly analysis stages.
type Pipeline struct {
	repo    Repository
	stages  []analysis.Stage
	version string
	loc     *time.Location
	log     logrus.FieldLogger
	now     func() time.Time
}

// New builds the standard nine-stage pipeline from configuration. The
// provider may be nil; the embedder is required by dedup and clustering.
func New(cfg *config.Config, repo Repository, provider llm.Provider, embedder llm.Embedder, log logrus.FieldLogger) (*Pipeline, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	stages, err := Stages(cfg, repo, provider, embedder)
	if err != nil {
		return nil, err
	}
	return NewWithStages(repo, stages, Options{
		AnalyzerVersion: cfg.Analysis.Version,
		Location:        loc,
		Logger:          log,
	}), nil
}

// Stages builds the nine stages in execution order. A nil store skips
// persistence in the finalizer.
func Stages(cfg *config.Config, store ReportStore, provider llm.Provider, embedder llm.Embedder) ([]analysis.Stage, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := cfg.Analysis
	timeout := cfg.LLM.RequestTimeout.Std()
	provider = llm.GuardProvider(provider, timeout)
	embedder = llm.GuardEmbedder(embedder, timeout)

	norm, err := normalize.New(cfg.Lexicon)
	if err != nil {
		return nil, err
	}
	classifier, err := action.New(cfg.Lexicon.ActionPatterns, cfg.ActionRules)
	if err != nil {
		return nil, err
	}
	tok := keywords.NewTokenizer(cfg.Lexicon.Stopwords)

	return []analysis.Stage{
		norm,
		split.New(norm, cfg.Lexicon.SplitMarkers, a.MaxSplitParts),
		dedup.New(embedder, a.DedupThreshold, loc),
		cluster.New(embedder, tok, a.MinClusterSize, a.ClusterKeywords),
		keywords.New(tok, a.WordCloudTopK, a.RecordKeywords),
		classifier,
		aggregate.New(a.HighlightLimit),
		compose.New(provider, cfg.LLM.MaxTokens),
		NewFinalizer(store),
	}, nil
}

// NewWithStages creates a pipeline over an explicit stage list.
func NewWithStages(repo Repository, stages []analysis.Stage, opts Options) *Pipeline {
	p := &Pipeline{
		repo:    repo,
		stages:  stages,
		version: opts.AnalyzerVersion,
		loc:     opts.Location,
		log:     opts.Logger,
		now:     opts.Now,
	}
	if p.version == "" {
		p.version = "v1"
	}
	if p.loc == nil {
		p.loc = time.Local
	}
	if p.log == nil {
		p.log = logrus.StandardLogger()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Run executes every stage for the request. It never returns a partial
// report: on the first fatal error the remaining stages are skipped and
// nothing is persisted.
func (p *Pipeline) Run(ctx context.Context, req Request) *Result {
	started := p.now()
	log := p.log.WithFields(logrus.Fields{"camp": req.CampID, "week": req.Week})
	s := &analysis.State{
		CampID:          req.CampID,
		Week:            req.Week,
		AnalyzerVersion: p.version,
		Now:             started.UTC(),
	}
	r := &Result{CampID: req.CampID, Week: req.Week}

	step := p.load(s)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		s.Fail(step.Name, step.Err)
		log.WithError(step.Err).Error("Loading posts failed")
	} else {
		log.Infof("Loaded %d posts, %d template categories", len(s.Posts), len(s.Template))
	}

	for i, stage := range p.stages {
		if s.Failed() {
			break
		}
		stageLog := log.WithField("stage", stage.Name())
		stageLog.Debugf("Step %d/%d: %s", i+1, len(p.stages), stage.Name())

		warned := len(s.Warnings)
		t0 := time.Now()
		summary, err := stage.Run(ctx, s)
		step := StepResult{Name: stage.Name(), Summary: summary, Duration: time.Since(t0), Err: err}
		stageDuration.WithLabelValues(stage.Name()).Observe(step.Duration.Seconds())
		r.Steps = append(r.Steps, step)

		for _, w := range s.Warnings[warned:] {
			runWarningsTotal.WithLabelValues(stage.Name()).Inc()
			stageLog.Warn(w)
		}
		if err != nil {
			s.Fail(stage.Name(), err)
			stageLog.WithError(err).Error("Stage failed")
			break
		}
		stageLog.Info(summary)
	}

	r.Warnings = s.Warnings
	r.Errors = s.Errors
	if s.Failed() {
		runsTotal.WithLabelValues(StatusFailed).Inc()
	} else {
		runsTotal.WithLabelValues(StatusOK).Inc()
		r.Payload = s.Payload
		r.Persisted = s.Persisted
		if s.Payload != nil {
			r.Report = BuildReport(s.Payload, s.Posts, s.Now)
		}
	}

	p.recordRun(log, r, started)
	return r
}

func (p *Pipeline) load(s *analysis.State) (step StepResult) {
	step.Name = "load"
	t0 := time.Now()
	defer func() { step.Duration = time.Since(t0) }()

	start, end, err := database.ResolveWindow(s.Week, p.loc)
	if err != nil {
		step.Err = err
		return step
	}
	s.WindowStart, s.WindowEnd = start, end

	posts, err := p.repo.GetPostsForWindow(s.CampID, database.RoleStudent, start, end)
	if err != nil {
		step.Err = fmt.Errorf("loading posts: %w", err)
		return step
	}
	for _, dp := range posts {
		s.Posts = append(s.Posts, analysis.Post{
			ID:        dp.ID,
			CampID:    dp.CampID,
			AuthorID:  dp.AuthorID,
			Text:      dp.Body,
			CreatedAt: dp.CreatedAt,
		})
	}
	postsAnalyzedTotal.Add(float64(len(posts)))

	template, err := p.repo.GetCategoryTemplate(s.CampID)
	if err != nil {
		step.Err = fmt.Errorf("loading category template: %w", err)
		return step
	}
	s.Template = template

	step.Summary = fmt.Sprintf("%d posts in %s", len(posts), database.FormatWindowDisplay(s.Week))
	return step
}

func (p *Pipeline) recordRun(log logrus.FieldLogger, r *Result, started time.Time) {
	status := StatusOK
	if !r.OK() {
		status = StatusFailed
	}
	_, err := p.repo.InsertRunReport(database.RunReport{
		CampID:          r.CampID,
		Week:            r.Week,
		AnalyzerVersion: p.version,
		Status:          status,
		Warnings:        r.Warnings,
		Errors:          r.Errors,
		StartedAt:       database.FormatTime(started),
		FinishedAt:      database.FormatTime(p.now()),
	})
	if err != nil {
		log.WithError(err).Warn("Recording run report failed")
	}
}

// DryRun shows what each stage would see without running the analysis.
func (p *Pipeline) DryRun(req Request) *Result {
	r := &Result{CampID: req.CampID, Week: req.Week}

	start, end, err := database.ResolveWindow(req.Week, p.loc)
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
		return r
	}

	posts, _ := p.repo.GetPostsForWindow(req.CampID, database.RoleStudent, start, end)
	r.Steps = append(r.Steps, StepResult{
		Name:    "load",
		Summary: fmt.Sprintf("[dry-run] %d posts in %s", len(posts), database.FormatWindowDisplay(req.Week)),
	})

	needing, _ := p.repo.GetPostsNeedingFetch(req.CampID)
	r.Steps = append(r.Steps, StepResult{
		Name:    "fetch",
		Summary: fmt.Sprintf("[dry-run] %d posts still need their body fetched", len(needing)),
	})

	template, _ := p.repo.GetCategoryTemplate(req.CampID)
	summary := fmt.Sprintf("[dry-run] %d template categories", len(template))
	if len(template) == 0 {
		summary = "[dry-run] no category template, clusters map to " + analysis.OtherLabel
	}
	r.Steps = append(r.Steps, StepResult{Name: "cluster", Summary: summary})

	existing, _ := p.repo.GetWeeklyReport(req.CampID, req.Week, p.version)
	if existing != nil {
		r.Steps = append(r.Steps, StepResult{
			Name:    "finalize",
			Summary: fmt.Sprintf("[dry-run] Would overwrite report %s/%s (%s)", req.CampID, req.Week, p.version),
		})
	} else {
		r.Steps = append(r.Steps, StepResult{
			Name:    "finalize",
			Summary: fmt.Sprintf("[dry-run] Would create report %s/%s (%s)", req.CampID, req.Week, p.version),
		})
	}
	return r
}

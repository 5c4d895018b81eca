// Package schedule runs the weekly analysis for every camp, once on demand
// or on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/camppulse/internal/database"
	"github.com/TobiSchelling/camppulse/internal/pipeline"
)

// DefaultConcurrency bounds how many camps are analyzed at once.
const DefaultConcurrency = 4

// Runner runs the pipeline for one camp-week. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) *pipeline.Result
}

var _ Runner = (*pipeline.Pipeline)(nil)

// RunAll runs week for every camp, at most limit at a time. Results are
// returned in camp order. Runs share nothing but the collaborators.
func RunAll(ctx context.Context, runner Runner, campIDs []string, week string, limit int) []*pipeline.Result {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	results := make([]*pipeline.Result, len(campIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, id := range campIDs {
		g.Go(func() error {
			results[i] = runner.Run(gctx, pipeline.Request{CampID: id, Week: week})
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// CampLister lists the camps a weekly run covers.
type CampLister interface {
	GetAllCamps() ([]database.Camp, error)
}

// WeeklyJob analyzes the week before now for every camp. Before, if set,
// runs first (collection and fetching); its error is logged, not fatal.
func WeeklyJob(camps CampLister, runner Runner, loc *time.Location, log logrus.FieldLogger, before Job) Job {
	return func(ctx context.Context) error {
		if before != nil {
			if err := before(ctx); err != nil {
				log.WithError(err).Warn("Pre-run ingestion failed")
			}
		}

		all, err := camps.GetAllCamps()
		if err != nil {
			return fmt.Errorf("listing camps: %w", err)
		}
		ids := make([]string, len(all))
		for i, c := range all {
			ids[i] = c.ID
		}

		week := database.PreviousWeekID(time.Now(), loc)
		results := RunAll(ctx, runner, ids, week, DefaultConcurrency)

		var failed int
		for _, r := range results {
			if !r.OK() {
				failed++
				log.WithFields(logrus.Fields{"camp": r.CampID, "week": r.Week}).
					Errorf("Run failed: %v", r.Errors)
			}
		}
		log.Infof("Weekly run for %s: %d camps, %d failed", week, len(results), failed)
		if failed > 0 {
			return fmt.Errorf("%d of %d camp runs failed", failed, len(results))
		}
		return nil
	}
}

// Scheduler runs a job on a cron expression with a seconds field.
// Overlapping runs are skipped.
type Scheduler struct {
	spec  string
	sched cron.Schedule
	job   Job
	cron  *cron.Cron
	log   logrus.FieldLogger
}

var specParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a scheduler. The expression is validated here.
func New(spec string, job Job, log logrus.FieldLogger) (*Scheduler, error) {
	sched, err := specParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	logger := cron.PrintfLogger(log)
	return &Scheduler{
		spec:  spec,
		sched: sched,
		job:   job,
		log:   log,
		cron:  cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(logger))),
	}, nil
}

// Start registers the job and blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if err := s.job(ctx); err != nil {
			s.log.WithError(err).Error("Scheduled run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.log.Infof("Scheduler started with schedule: %s", s.spec)
	s.cron.Start()

	<-ctx.Done()
	s.log.Info("Scheduler stopping")
	<-s.cron.Stop().Done()
	return ctx.Err()
}

// Next returns the next activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.sched.Next(t)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/camppulse/internal/database"
	"github.com/TobiSchelling/camppulse/internal/pipeline"
	"github.com/TobiSchelling/camppulse/internal/schedule"
	"github.com/TobiSchelling/camppulse/internal/server"
)

// --- run command ---

var (
	runCamp string
	runWeek string
	runFrom string
	runTo   string
	runAll  bool
	dryRun  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Analyze one camp-week: normalize -> split -> dedup -> cluster -> keywords -> action -> aggregate -> compose -> finalize",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runCamp == "" && !runAll {
			return fmt.Errorf("either --camp or --all is required")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		week, err := resolveWeek()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		pipe, err := newPipeline(ctx, db)
		if err != nil {
			return err
		}

		campIDs := []string{runCamp}
		if runAll {
			camps, err := db.GetAllCamps()
			if err != nil {
				return fmt.Errorf("listing camps: %w", err)
			}
			campIDs = campIDs[:0]
			for _, c := range camps {
				campIDs = append(campIDs, c.ID)
			}
		}

		var results []*pipeline.Result
		if dryRun {
			for _, id := range campIDs {
				results = append(results, pipe.DryRun(pipeline.Request{CampID: id, Week: week}))
			}
		} else {
			results = schedule.RunAll(ctx, pipe, campIDs, week, schedule.DefaultConcurrency)
		}

		var failed int
		for _, r := range results {
			printResult(r)
			if !r.OK() {
				failed++
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d runs failed", failed, len(results))
		}
		if !dryRun {
			fmt.Println("\nPipeline complete! Run 'camppulse serve' to view the reports.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runCamp, "camp", "", "Camp ID")
	runCmd.Flags().StringVar(&runWeek, "week", "", "ISO week, e.g. 2026-W42 (default: last full week)")
	runCmd.Flags().StringVar(&runFrom, "from", "", "Start date of a custom window (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&runTo, "to", "", "End date of a custom window, inclusive (YYYY-MM-DD)")
	runCmd.Flags().BoolVar(&runAll, "all", false, "Run every camp concurrently")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
	runCmd.MarkFlagsMutuallyExclusive("camp", "all")
	runCmd.MarkFlagsMutuallyExclusive("week", "from")
	runCmd.MarkFlagsRequiredTogether("from", "to")
}

// resolveWeek picks the analysis window from the flags: an explicit week,
// an explicit date range, or the last full week in the configured timezone.
func resolveWeek() (string, error) {
	loc, err := cfg.Location()
	if err != nil {
		return "", err
	}

	week := runWeek
	switch {
	case runFrom != "":
		week = database.MakeRangeID(runFrom, runTo)
	case week == "":
		week = database.PreviousWeekID(time.Now(), loc)
		fmt.Printf("No window given, analyzing last full week %s.\n", week)
	}
	if _, _, err := database.ResolveWindow(week, loc); err != nil {
		return "", err
	}
	return week, nil
}

func printResult(r *pipeline.Result) {
	fmt.Printf("\n== %s %s ==\n", r.CampID, database.FormatWindowDisplay(r.Week))
	for i, step := range r.Steps {
		fmt.Printf("Step %d/%d: %s (%s)\n", i+1, len(r.Steps), step.Name, step.Duration.Round(time.Millisecond))
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
	for _, w := range r.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	for _, e := range r.Errors {
		fmt.Printf("  error: %s\n", e)
	}
	if r.OK() && r.Payload != nil {
		fmt.Printf("Report: %d rows, %d key topics, persisted=%t\n",
			len(r.Payload.Rows), len(r.Payload.Report.KeyTopics), r.Persisted)
	}
}

// --- schedule command ---

var skipIngest bool

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the weekly analysis for every camp on the configured cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		pipe, err := newPipeline(ctx, db)
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}

		var before schedule.Job
		if !skipIngest {
			before = ingest(db)
		}
		sched, err := schedule.New(cfg.Schedule, schedule.WeeklyJob(db, pipe, loc, logger, before), logger)
		if err != nil {
			return err
		}

		fmt.Printf("Next run: %s\n", sched.Next(time.Now().In(loc)).Format(time.RFC1123))
		fmt.Println("Press Ctrl+C to stop")
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	scheduleCmd.Flags().BoolVar(&skipIngest, "skip-ingest", false, "Do not collect and fetch before each run")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		loc, err := cfg.Location()
		if err != nil {
			return err
		}

		var runner server.Runner
		if pipe, err := newPipeline(cmd.Context(), db); err != nil {
			logger.WithError(err).Warn("Pipeline unavailable, POST /api/runs is disabled")
		} else {
			runner = pipe
		}

		srv, err := server.New(db, runner, server.Options{
			AnalyzerVersion: cfg.Analysis.Version,
			Location:        loc,
			Logger:          logger,
		})
		if err != nil {
			return err
		}

		port := servePort
		if !cmd.Flags().Changed("port") && cfg.Server.Port > 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(srv, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

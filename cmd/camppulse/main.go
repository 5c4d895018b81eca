package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/camppulse/internal/config"
	"github.com/TobiSchelling/camppulse/internal/database"
	"github.com/TobiSchelling/camppulse/internal/llm"
	"github.com/TobiSchelling/camppulse/internal/logging"
	"github.com/TobiSchelling/camppulse/internal/pipeline"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *logrus.Logger
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "camppulse",
	Short:   "Weekly feedback reports for bootcamp operators",
	Long:    "camppulse collects anonymous student posts, analyzes each camp-week and composes a report for operators.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logging.New("info", "text")
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		if err := config.LoadEnv(); err != nil {
			return err
		}
		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		}
		logger.Debugf("Using config %s", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(postsCmd)
	rootCmd.AddCommand(campsCmd)
	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("camppulse", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/camppulse/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the LLM provider, lexicon and category rules.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		loc, _ := cfg.Location()

		fmt.Printf("Database: %s\n", db.Path())
		fmt.Printf("Analyzer: %s\n", cfg.Analysis.Version)
		fmt.Printf("Last full week: %s\n\n", database.PreviousWeekID(time.Now(), loc))
		fmt.Println("Posts:")
		fmt.Printf("  Camps: %d\n", stats.Camps)
		fmt.Printf("  Total collected: %d\n", stats.TotalPosts)
		fmt.Printf("  Waiting for body fetch: %d\n", stats.PendingFetch)
		fmt.Printf("  Template categories: %d\n", stats.Categories)
		fmt.Println("\nOutput:")
		fmt.Printf("  Weekly reports: %d\n", stats.WeeklyReports)
		fmt.Printf("  Runs: %d (%d failed)\n", stats.Runs, stats.FailedRuns)
		return nil
	},
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "camppulse.db")
	return database.Open(dbPath, logger)
}

// newPipeline wires the configured model collaborators into the standard
// stage list. A missing narrative provider is allowed; a missing embedder is not.
func newPipeline(ctx context.Context, db *database.DB) (*pipeline.Pipeline, error) {
	embedder, err := llm.CreateEmbedder(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	provider := llm.CreateProvider(ctx, cfg.LLM, logger)
	return pipeline.New(cfg, db, provider, embedder, logger)
}

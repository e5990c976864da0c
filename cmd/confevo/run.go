package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/ahn-nath/confevo/internal/cache"
	"github.com/ahn-nath/confevo/internal/config"
	"github.com/ahn-nath/confevo/internal/errors"
	"github.com/ahn-nath/confevo/internal/github"
	"github.com/ahn-nath/confevo/internal/metrics"
	"github.com/ahn-nath/confevo/internal/pipeline"
	"github.com/ahn-nath/confevo/internal/storage"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
)

var (
	openDataset bool
	sinceFlag   string
	noCache     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Mine new commits into the dataset",
	Long: `Fetch every commit touching the configured path since the stored cursor,
parse the patches of the tracked files, and append the relationship changes to
the dataset. The cursor only advances after the dataset is written.

Examples:
  # Incremental run with the configured repository
  confevo run

  # Track a different repository, rebuilding from a given date
  CONFEVO_OWNER=me CONFEVO_REPO=configs confevo run --since 2022-01-01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd.Context(), cfg.Source.Mode)
	},
}

var legacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "Mine a single-value-per-line file (city,temperature)",
	Long: `Legacy mode fetches the whole content of the first tracked file at each
commit and appends its "name,value" lines stamped with the commit date.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd.Context(), config.ModeLegacy)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, legacyCmd} {
		cmd.Flags().BoolVar(&openDataset, "open", false, "open the dataset when the run completes")
		cmd.Flags().StringVar(&sinceFlag, "since", "", "override the epoch used when no cursor exists (YYYY-MM-DD)")
		cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the commit detail cache")
	}
}

func runPipeline(ctx context.Context, mode string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	cfg.Source.Mode = mode
	if sinceFlag != "" {
		cfg.Source.Epoch = sinceFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, warning := range cfg.Check().Warnings {
		logger.Warn(warning)
	}
	epoch, err := cfg.EpochTime()
	if err != nil {
		return err
	}

	client, err := github.NewClient(github.Options{
		Token:      cfg.GitHub.Token,
		RateLimit:  cfg.GitHub.RateLimit,
		MaxWorkers: cfg.GitHub.MaxWorkers,
		BaseURL:    cfg.GitHub.BaseURL,
	}, logger)
	if err != nil {
		return err
	}

	if cfg.Cache.Enabled && !noCache {
		commitCache, err := cache.Open(cfg.Cache.Path, logger)
		if err != nil {
			// A locked or unreadable cache only costs extra requests
			logger.WithError(err).Warn("Commit cache unavailable, fetching everything")
		} else {
			defer commitCache.Close()
			client.WithCache(commitCache)
		}
	}

	orchestrator := pipeline.NewOrchestrator(pipeline.Config{
		Owner:       cfg.Source.Owner,
		Repo:        cfg.Source.Repo,
		Path:        cfg.Source.Path,
		Files:       github.NewAllowList(cfg.Source.Files),
		Epoch:       epoch,
		CursorPath:  cfg.Output.CursorPath,
		DatasetPath: cfg.Output.DatasetPath,
		Mode:        mode,
		MetricsFile: cfg.Output.MetricsFile,
	}, client, logger).WithMetrics(metrics.NewRegistry())

	if cfg.History.DSN != "" && mode == config.ModeRelationships {
		history, err := storage.Open(cfg.History.DSN, logger)
		if err != nil {
			logger.WithError(err).Warn("History index unavailable, continuing without it")
		} else {
			defer history.Close()
			orchestrator.WithHistory(history)
		}
	}

	var result *pipeline.RunResult
	if mode == config.ModeLegacy {
		result, err = orchestrator.RunLegacy(ctx)
	} else {
		result, err = orchestrator.Run(ctx)
	}
	if err != nil {
		return runError(err)
	}

	printRunSummary(result)

	if openDataset && !result.NoNewData {
		path, _ := filepath.Abs(cfg.Output.DatasetPath)
		if err := browser.OpenFile(path); err != nil {
			logger.WithError(err).Warn("Could not open dataset")
		}
	}
	return nil
}

// runError logs the full detail of a fatal failure at debug level and names
// the HTTP status when GitHub rejected a request
func runError(err error) error {
	if errors.IsFatal(err) {
		var detailed *errors.Error
		if stderrors.As(err, &detailed) {
			logger.Debug(detailed.DetailedString())
		}
	}
	if status := errors.Status(err); status != 0 {
		return fmt.Errorf("GitHub returned status %d, nothing was written: %w", status, err)
	}
	return err
}

func printRunSummary(result *pipeline.RunResult) {
	fmt.Println()
	if result.NoNewData {
		color.New(color.FgYellow).Println("No new data")
		fmt.Printf("  Checked since: %s (%s)\n", result.Since.Format("2006-01-02 15:04:05"), humanize.Time(result.Since))
		return
	}

	color.New(color.FgGreen, color.Bold).Printf("✓ Appended %s rows\n", humanize.Comma(int64(result.NewRows)))
	fmt.Printf("  Commits:   %s\n", humanize.Comma(int64(result.Commits)))
	if result.Anomalies > 0 {
		color.New(color.FgYellow).Printf("  Skipped:   %d unexpected diff lines (run with -v for details)\n", result.Anomalies)
	}
	fmt.Printf("  Dataset:   %s\n", cfg.Output.DatasetPath)
	if !result.Cursor.IsAbsent() {
		fmt.Printf("  Next run:  since %s\n", result.Cursor.LastDate.Format("2006-01-02 15:04:05"))
	}
	fmt.Printf("  Duration:  %s\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("  Run ID:    %s\n", result.RunID)
}

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ahn-nath/confevo/internal/cache"
	"github.com/ahn-nath/confevo/internal/config"
	"github.com/ahn-nath/confevo/internal/cursor"
	"github.com/ahn-nath/confevo/internal/dataset"
	"github.com/ahn-nath/confevo/internal/storage"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusEngine string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cursor, dataset, cache and history status",
	Long:  `Display the current configuration, where the next run will resume, and what has been mined so far.`,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusEngine, "engine", "", "list the current relationships of one engine from the history index")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	bold := color.New(color.Bold)
	ok := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)

	bold.Println("confevo status")
	fmt.Println(strings.Repeat("═", 50))

	// Configuration info
	bold.Println("\nSource:")
	fmt.Printf("  Repository: %s/%s\n", cfg.Source.Owner, cfg.Source.Repo)
	fmt.Printf("  Path:       %s\n", cfg.Source.Path)
	fmt.Printf("  Files:      %s\n", strings.Join(cfg.Source.Files, ", "))
	fmt.Printf("  Mode:       %s\n", cfg.Source.Mode)
	fmt.Printf("  Token:      %s\n", config.MaskToken(cfg.GitHub.Token))

	// Cursor
	bold.Println("\nCursor:")
	cur := cursor.NewStore(cfg.Output.CursorPath, logger).Load()
	if cur.IsAbsent() {
		warn.Printf("  Not set, next run re-scans from %s\n", cfg.Source.Epoch)
	} else {
		ok.Printf("  Next run since %s (%s)\n", cur.LastDate.Format("2006-01-02 15:04:05"), humanize.Time(*cur.LastDate))
	}

	// Dataset
	bold.Println("\nDataset:")
	header := dataset.HeaderRelationships
	if cfg.Source.Mode == config.ModeLegacy {
		header = dataset.HeaderLegacy
	}
	store := dataset.NewStore(cfg.Output.DatasetPath, header, logger)
	if !store.Exists() {
		warn.Printf("  %s does not exist yet\n", store.Path())
	} else {
		content, err := store.Load()
		if err != nil {
			return err
		}
		info, _ := os.Stat(store.Path())
		fmt.Printf("  Path:    %s\n", store.Path())
		fmt.Printf("  Rows:    %s\n", humanize.Comma(int64(dataset.CountRows(content))))
		if info != nil {
			fmt.Printf("  Size:    %s\n", humanize.Bytes(uint64(info.Size())))
			fmt.Printf("  Updated: %s\n", humanize.Time(info.ModTime()))
		}
	}

	// Cache status
	bold.Println("\nCommit cache:")
	if !cfg.Cache.Enabled {
		fmt.Println("  Disabled")
	} else if _, err := os.Stat(cfg.Cache.Path); err != nil {
		fmt.Printf("  Empty (%s)\n", cfg.Cache.Path)
	} else {
		commitCache, err := cache.Open(cfg.Cache.Path, logger)
		if err != nil {
			warn.Printf("  Unavailable: %v\n", err)
		} else {
			defer commitCache.Close()
			n, _ := commitCache.Len()
			fmt.Printf("  Commits: %s (%s)\n", humanize.Comma(int64(n)), cfg.Cache.Path)
		}
	}

	// History index
	if cfg.History.DSN == "" {
		return nil
	}
	bold.Println("\nHistory:")
	history, err := storage.Open(cfg.History.DSN, logger)
	if err != nil {
		warn.Printf("  Unavailable: %v\n", err)
		return nil
	}
	defer history.Close()

	counts, err := history.CountByEngine(ctx)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		fmt.Println("  No changes recorded")
	}
	for _, count := range counts {
		fmt.Printf("  %-12s %6s changes (%s added, %s removed)\n", count.Engine,
			humanize.Comma(count.Changes), humanize.Comma(count.Added), humanize.Comma(count.Removed))
	}

	if statusEngine != "" {
		relationships, err := history.LatestBySource(ctx, statusEngine)
		if err != nil {
			return err
		}
		bold.Printf("\n%s relationships:\n", statusEngine)
		for _, r := range relationships {
			if r.Active() {
				ok.Printf("  + %s → %s", r.Source, r.Target)
			} else {
				warn.Printf("  - %s → %s", r.Source, r.Target)
			}
			fmt.Printf("  (%s)\n", r.ChangedAt.Format("2006-01-02"))
		}
	}

	return nil
}

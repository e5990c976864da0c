// Package pipeline runs one mining pass: load the cursor and dataset, fetch
// new commits, parse their patches, merge the rows and persist both stores.
package pipeline

import (
	"context"
	"time"

	"github.com/ahn-nath/confevo/internal/config"
	"github.com/ahn-nath/confevo/internal/cursor"
	"github.com/ahn-nath/confevo/internal/dataset"
	"github.com/ahn-nath/confevo/internal/errors"
	"github.com/ahn-nath/confevo/internal/github"
	"github.com/ahn-nath/confevo/internal/merge"
	"github.com/ahn-nath/confevo/internal/metrics"
	"github.com/ahn-nath/confevo/internal/models"
	"github.com/ahn-nath/confevo/internal/patch"
	"github.com/ahn-nath/confevo/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config holds the parameters of a run
type Config struct {
	Owner       string
	Repo        string
	Path        string
	Files       *github.AllowList
	Epoch       time.Time
	CursorPath  string
	DatasetPath string
	Mode        string // config.ModeRelationships or config.ModeLegacy
	MetricsFile string // optional Prometheus textfile
}

// Fetcher retrieves commits and file contents from the hosting service
type Fetcher interface {
	FetchCommits(ctx context.Context, owner, repo, path string, since time.Time, allow *github.AllowList) ([]models.Commit, error)
	GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error)
}

// RunResult contains the results of a run
type RunResult struct {
	RunID     string
	Mode      string
	StartedAt time.Time
	Since     time.Time
	Commits   int
	NewRows   int
	Anomalies int
	NoNewData bool
	Cursor    models.Cursor
	Duration  time.Duration
}

// Orchestrator coordinates a mining run
type Orchestrator struct {
	cfg     Config
	fetcher Fetcher
	parser  *patch.Parser
	cursors *cursor.Store
	dataset *dataset.Store
	history storage.HistoryStore
	metrics *metrics.Registry
	logger  *logrus.Logger
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(cfg Config, fetcher Fetcher, logger *logrus.Logger) *Orchestrator {
	if cfg.Mode == "" {
		cfg.Mode = config.ModeRelationships
	}
	if cfg.Files == nil {
		cfg.Files = github.NewAllowList(nil)
	}

	header := dataset.HeaderRelationships
	if cfg.Mode == config.ModeLegacy {
		header = dataset.HeaderLegacy
	}

	return &Orchestrator{
		cfg:     cfg,
		fetcher: fetcher,
		parser:  patch.NewParser(logger),
		cursors: cursor.NewStore(cfg.CursorPath, logger),
		dataset: dataset.NewStore(cfg.DatasetPath, header, logger),
		logger:  logger,
	}
}

// WithHistory indexes appended records in store after each successful run
func (o *Orchestrator) WithHistory(store storage.HistoryStore) *Orchestrator {
	o.history = store
	return o
}

// WithMetrics records run statistics in registry
func (o *Orchestrator) WithMetrics(registry *metrics.Registry) *Orchestrator {
	o.metrics = registry
	return o
}

// InitializeVariables returns the dataset content to append to, the time to
// list commits from, and the loaded cursor. Without a valid cursor the run
// starts over from the epoch on top of the existing rows; the merge skips
// rows that are already on disk.
func (o *Orchestrator) InitializeVariables() (string, time.Time, models.Cursor, error) {
	cur := o.cursors.Load()

	content, err := o.dataset.Load()
	if err != nil {
		return "", time.Time{}, cur, err
	}

	if cur.IsAbsent() {
		if o.dataset.Exists() {
			o.logger.WithFields(logrus.Fields{
				"path": o.dataset.Path(),
				"rows": dataset.CountRows(content),
			}).Warn("No valid cursor, re-scanning from epoch over the existing dataset")
		}
		return content, o.cfg.Epoch, cur, nil
	}
	return content, *cur.LastDate, cur, nil
}

// Run mines new commits into the relationship dataset. Nothing is persisted
// unless every fetch succeeds.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	result, content, err := o.begin(config.ModeRelationships)
	if err != nil {
		return nil, err
	}

	commits, err := o.fetcher.FetchCommits(ctx, o.cfg.Owner, o.cfg.Repo, o.cfg.Path, result.Since, o.cfg.Files)
	if err != nil {
		return nil, o.fail(result, err)
	}
	if len(commits) == 0 {
		return o.noNewData(result), nil
	}

	batches := make([]models.CommitRecords, 0, len(commits))
	for _, commit := range commits {
		batch := o.parser.ParseCommit(commit)
		result.Anomalies += batch.Anomalies
		batches = append(batches, batch)
	}

	merged := merge.Merge(content, batches)
	result.Commits = len(commits)

	if err := o.persist(result, content, merged); err != nil {
		return nil, o.fail(result, err)
	}

	if o.history != nil && merged.RowCount > 0 {
		var records []models.Record
		for _, batch := range batches {
			records = append(records, batch.Records...)
		}
		if err := o.history.SaveRecords(ctx, result.RunID, records); err != nil {
			o.logger.WithError(err).Warn("Failed to index history, dataset is unaffected")
		}
	}

	return o.finish(result, metrics.OutcomeAppended), nil
}

// RunLegacy mines the single-value-per-line file: each commit's first tracked
// file is fetched whole, decoded and stamped with the commit date.
func (o *Orchestrator) RunLegacy(ctx context.Context) (*RunResult, error) {
	result, content, err := o.begin(config.ModeLegacy)
	if err != nil {
		return nil, err
	}

	commits, err := o.fetcher.FetchCommits(ctx, o.cfg.Owner, o.cfg.Repo, o.cfg.Path, result.Since, o.cfg.Files)
	if err != nil {
		return nil, o.fail(result, err)
	}
	if len(commits) == 0 {
		return o.noNewData(result), nil
	}

	batches := make([]merge.LegacyBatch, 0, len(commits))
	for _, commit := range commits {
		batch := merge.LegacyBatch{AuthorDate: commit.AuthorDate}
		if len(commit.Files) > 0 {
			encoded, err := o.fetcher.GetFileContent(ctx, o.cfg.Owner, o.cfg.Repo, commit.Files[0].Name, commit.SHA)
			if err != nil {
				return nil, o.fail(result, err)
			}
			rows, err := patch.DecodeLegacy(encoded, models.FormatTimestamp(commit.AuthorDate))
			if err != nil {
				// Undecodable content is skipped like any other malformed line
				o.logger.WithError(err).WithField("commit", commit.SHA).Warn("Skipping undecodable content")
				result.Anomalies++
			}
			batch.Rows = rows
		}
		batches = append(batches, batch)
	}

	merged := merge.MergeLegacy(content, batches)
	result.Commits = len(commits)

	if err := o.persist(result, content, merged); err != nil {
		return nil, o.fail(result, err)
	}

	return o.finish(result, metrics.OutcomeAppended), nil
}

func (o *Orchestrator) begin(mode string) (*RunResult, string, error) {
	result := &RunResult{
		RunID:     uuid.New().String(),
		Mode:      mode,
		StartedAt: time.Now(),
	}

	content, since, cur, err := o.InitializeVariables()
	if err != nil {
		return nil, "", err
	}
	result.Since = since
	result.Cursor = cur

	o.logger.WithFields(logrus.Fields{
		"run_id": result.RunID,
		"mode":   mode,
		"owner":  o.cfg.Owner,
		"repo":   o.cfg.Repo,
		"path":   o.cfg.Path,
		"since":  models.FormatTimestamp(since),
	}).Info("Starting run")

	return result, content, nil
}

// persist writes the dataset before the cursor so a crash between the two
// writes causes a re-scan instead of a gap. If the cursor cannot be saved the
// dataset is put back to previous, leaving both stores as they were.
func (o *Orchestrator) persist(result *RunResult, previous string, merged merge.Result) error {
	existed := o.dataset.Exists()
	if err := o.dataset.Write(merged.Content); err != nil {
		return err
	}
	if err := o.cursors.Save(merged.Cursor); err != nil {
		o.restoreDataset(previous, existed)
		return err
	}
	result.NewRows = merged.RowCount
	result.Cursor = merged.Cursor
	return nil
}

func (o *Orchestrator) restoreDataset(previous string, existed bool) {
	var err error
	if existed {
		err = o.dataset.Write(previous)
	} else {
		err = o.dataset.Remove()
	}
	if err != nil {
		o.logger.WithError(err).WithField("path", o.dataset.Path()).
			Error("Failed to restore dataset after cursor write failure")
	}
}

func (o *Orchestrator) noNewData(result *RunResult) *RunResult {
	result.NoNewData = true
	return o.finish(result, metrics.OutcomeNoNewData)
}

func (o *Orchestrator) finish(result *RunResult, outcome string) *RunResult {
	result.Duration = time.Since(result.StartedAt)

	fields := logrus.Fields{
		"run_id":    result.RunID,
		"commits":   result.Commits,
		"rows":      result.NewRows,
		"anomalies": result.Anomalies,
		"duration":  result.Duration.String(),
	}
	if result.NoNewData {
		o.logger.WithFields(fields).Info("No new data")
	} else {
		o.logger.WithFields(fields).Info("Run completed")
	}

	o.record(result, outcome)
	return result
}

func (o *Orchestrator) fail(result *RunResult, err error) error {
	result.Duration = time.Since(result.StartedAt)
	entry := o.logger.WithError(err).WithField("run_id", result.RunID)
	if status := errors.Status(err); status != 0 {
		entry = entry.WithField("status", status)
	}
	entry.Error("Run failed, nothing persisted")

	o.record(result, metrics.OutcomeFailed)
	return err
}

func (o *Orchestrator) record(result *RunResult, outcome string) {
	if o.metrics == nil {
		return
	}

	o.metrics.RecordRun(metrics.RunStats{
		Mode:      result.Mode,
		Outcome:   outcome,
		Commits:   result.Commits,
		Rows:      result.NewRows,
		Anomalies: result.Anomalies,
		Duration:  result.Duration,
	})

	if o.cfg.MetricsFile != "" {
		if err := o.metrics.WriteTextfile(o.cfg.MetricsFile); err != nil {
			o.logger.WithError(err).Warn("Failed to write metrics textfile")
		}
	}
}

// Package merge folds parsed commit records into the dataset text and
// computes the cursor for the next run.
package merge

import (
	"strings"
	"time"

	"github.com/ahn-nath/confevo/internal/cursor"
	"github.com/ahn-nath/confevo/internal/dataset"
	"github.com/ahn-nath/confevo/internal/models"
)

// Result is the outcome of a merge
type Result struct {
	Content  string        // existing content followed by NewRows
	NewRows  string        // rows appended by this merge
	RowCount int           // number of rows in NewRows
	Cursor   models.Cursor // cursor to persist after the dataset is written
}

// Merge appends the records of batches to existing in commit order.
// Batches must already be ordered oldest first. Rows already present in
// existing are skipped, so re-scanning from the epoch over a dataset that
// outlived its cursor keeps every old row exactly once. The cursor moves one
// second past the newest commit so the next run does not see it again; with
// no batches the cursor is absent and callers keep the stored one.
func Merge(existing string, batches []models.CommitRecords) Result {
	seen := rowSet(existing)
	var rows strings.Builder
	count := 0
	var latest time.Time

	for _, batch := range batches {
		for _, record := range batch.Records {
			if appendRow(&rows, seen, dataset.FormatRow(record.Fields()...)) {
				count++
			}
		}
		if batch.AuthorDate.After(latest) {
			latest = batch.AuthorDate
		}
	}

	return result(existing, rows.String(), count, latest, len(batches) > 0)
}

// LegacyBatch is the decoded content of one commit in legacy mode
type LegacyBatch struct {
	AuthorDate time.Time
	Rows       string // newline-terminated rows, already stamped
}

// MergeLegacy appends decoded legacy rows to existing in commit order,
// skipping rows already present in existing
func MergeLegacy(existing string, batches []LegacyBatch) Result {
	seen := rowSet(existing)
	var rows strings.Builder
	count := 0
	var latest time.Time

	for _, batch := range batches {
		for _, line := range strings.SplitAfter(batch.Rows, "\n") {
			if line != "" && appendRow(&rows, seen, line) {
				count++
			}
		}
		if batch.AuthorDate.After(latest) {
			latest = batch.AuthorDate
		}
	}

	return result(existing, rows.String(), count, latest, len(batches) > 0)
}

func result(existing, rows string, count int, latest time.Time, advance bool) Result {
	r := Result{
		Content:  existing + rows,
		NewRows:  rows,
		RowCount: count,
	}
	if advance {
		r.Cursor = cursor.Advance(latest)
	}
	return r
}

// rowSet indexes the newline-terminated lines of content
func rowSet(content string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, line := range strings.SplitAfter(content, "\n") {
		if strings.HasSuffix(line, "\n") {
			set[line] = struct{}{}
		}
	}
	return set
}

// appendRow writes row unless it was already on disk before this merge.
// Rows repeated within one merge are kept.
func appendRow(rows *strings.Builder, existing map[string]struct{}, row string) bool {
	if _, ok := existing[row]; ok {
		return false
	}
	rows.WriteString(row)
	return true
}

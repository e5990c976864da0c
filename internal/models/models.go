package models

import (
	"time"
)

// TimestampLayout is the ISO-8601 form used in the cursor and dataset files
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in UTC using TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Commit represents a commit touching the tracked configuration path.
// Files only holds allow-listed files.
type Commit struct {
	SHA        string        `json:"sha" db:"sha"`
	AuthorDate time.Time     `json:"author_date" db:"author_date"`
	Message    string        `json:"message,omitempty" db:"message"`
	Files      []ChangedFile `json:"files"`
}

// ChangedFile is one file of a commit together with its unified diff hunk text
type ChangedFile struct {
	Name  string `json:"filename" db:"filename"`
	Patch string `json:"patch" db:"patch"`
}

// Operation records whether a relationship appeared or disappeared in a commit
type Operation int

const (
	Added Operation = iota
	Removed
)

// String returns the dataset representation of the operation
func (o Operation) String() string {
	switch o {
	case Added:
		return "added"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Record is a single source→target relationship change
type Record struct {
	Engine    string    `json:"engine" db:"engine"`
	Source    string    `json:"source" db:"source"`
	Target    string    `json:"target" db:"target"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Operation Operation `json:"operation" db:"operation"`
}

// Fields returns the record in dataset column order
func (r Record) Fields() []string {
	return []string{r.Engine, r.Source, r.Target, FormatTimestamp(r.Timestamp), r.Operation.String()}
}

// CommitRecords groups the records parsed from one commit
type CommitRecords struct {
	SHA        string
	AuthorDate time.Time
	Records    []Record
	Anomalies  int // lines that ended a block early
}

// Cursor marks the point up to which history has been mined.
// A nil LastDate means no valid cursor exists.
type Cursor struct {
	LastDate *time.Time
}

// IsAbsent reports whether the cursor carries no timestamp
func (c Cursor) IsAbsent() bool {
	return c.LastDate == nil
}

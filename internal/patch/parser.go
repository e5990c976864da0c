package patch

import (
	"time"

	"github.com/ahn-nath/confevo/internal/errors"
	"github.com/ahn-nath/confevo/internal/models"
	"github.com/sirupsen/logrus"
)

// Result is the outcome of parsing one file's patch
type Result struct {
	Dialect   Dialect
	Records   []models.Record
	Anomalies []*errors.Error
}

// ParseLines selects the dialect for lines and runs the matching parser
func ParseLines(engine string, lines []string, ts time.Time) Result {
	switch DetectDialect(lines) {
	case CapabilityMatrix:
		return ParseCapabilityMatrix(engine, lines, ts)
	default:
		return ParseKeyedList(engine, lines, ts)
	}
}

// ParseFile parses a changed file's patch stamped with the commit time
func ParseFile(file models.ChangedFile, ts time.Time) Result {
	if file.Patch == "" {
		return Result{Dialect: KeyedList}
	}
	return ParseLines(EngineName(file.Name), SplitLines(file.Patch), ts)
}

// Parser parses commits and reports anomalies through a logger
type Parser struct {
	logger *logrus.Logger
}

// NewParser creates a parser
func NewParser(logger *logrus.Logger) *Parser {
	return &Parser{logger: logger}
}

// ParseCommit parses every file of a commit in file order
func (p *Parser) ParseCommit(commit models.Commit) models.CommitRecords {
	out := models.CommitRecords{
		SHA:        commit.SHA,
		AuthorDate: commit.AuthorDate,
	}

	for _, file := range commit.Files {
		result := ParseFile(file, commit.AuthorDate)

		entry := p.logger.WithFields(logrus.Fields{
			"commit":  shortSHA(commit.SHA),
			"file":    file.Name,
			"dialect": result.Dialect.String(),
		})
		for _, anomaly := range result.Anomalies {
			entry.Debug(anomaly.Message)
		}
		entry.WithField("records", len(result.Records)).Debug("Parsed patch")

		out.Records = append(out.Records, result.Records...)
		out.Anomalies += len(result.Anomalies)
	}

	return out
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

package patch

import (
	"strings"
	"time"

	"github.com/ahn-nath/confevo/internal/errors"
	"github.com/ahn-nath/confevo/internal/models"
)

type keyedState int

const (
	seekKey keyedState = iota
	consumeValues
)

// ParseKeyedList scans lines (lines[0] is the hunk header) for key lines and
// emits one record per value line directly beneath each key. A line that is
// not a value ends the run and is re-examined as a potential key.
func ParseKeyedList(engine string, lines []string, ts time.Time) Result {
	result := Result{Dialect: KeyedList}

	state := seekKey
	source := ""
	values := 0

	i := 1
	for i < len(lines) {
		line := lines[i]

		switch state {
		case seekKey:
			if key, ok := matchKey(line); ok {
				source = key
				values = 0
				state = consumeValues
			}
			i++

		case consumeValues:
			if target, removed, ok := matchValue(line); ok {
				result.Records = append(result.Records, newRecord(engine, source, target, ts, removed))
				values++
				i++
				continue
			}

			// End of the value run; stay on this line so it can start the next key
			if !isBoundary(line) {
				result.Anomalies = append(result.Anomalies,
					errors.ParseAnomalyf("line %d %q ended values of %q after %d entries", i, line, source, values))
			}
			state = seekKey
		}
	}

	return result
}

// isBoundary reports whether a line may legitimately end a value run
func isBoundary(line string) bool {
	if _, ok := matchKey(line); ok {
		return true
	}
	if strings.HasPrefix(line, hunkPrefix) || strings.HasPrefix(line, noNewlinePrefix) {
		return true
	}
	body := stripMarker(line)
	return body == "" || strings.HasPrefix(body, "#")
}

func newRecord(engine, source, target string, ts time.Time, removed bool) models.Record {
	op := models.Added
	if removed {
		op = models.Removed
	}
	return models.Record{
		Engine:    engine,
		Source:    source,
		Target:    target,
		Timestamp: ts,
		Operation: op,
	}
}

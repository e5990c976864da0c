// Package patch turns the unified-diff text of a tracked configuration file
// into relationship records.
//
// Two file shapes are understood. A keyed list maps each source key to an
// indented list of targets:
//
//	es:
//	  - ca
//	  - gl
//
// A capability matrix lists a flat set of items under "languages:", with an
// optional "notAsTarget:" exclusion list, and means every item pairs with
// every other item.
//
// Diff text is parsed instead of the materialized YAML because the +/- marker
// on each line is the only record of what a commit added or removed.
package patch

import (
	"path"
	"regexp"
	"strings"
)

// Dialect identifies the shape of a tracked file
type Dialect int

const (
	// KeyedList is the default "source:\n  - target" shape
	KeyedList Dialect = iota
	// CapabilityMatrix is the "languages:" / "notAsTarget:" shape
	CapabilityMatrix
)

func (d Dialect) String() string {
	switch d {
	case KeyedList:
		return "keyed-list"
	case CapabilityMatrix:
		return "capability-matrix"
	default:
		return "unknown"
	}
}

const (
	languagesMarker   = "languages:"
	notAsTargetMarker = "notAsTarget:"
	hunkPrefix        = "@@"
	noNewlinePrefix   = `\` // "\ No newline at end of file"
)

// letters accepted in keys and values; any Unicode letter, so ñ, á and à all match
const letters = `\p{L}`

var (
	// "es:" optionally prefixed by a diff marker or the context space
	keyLine = regexp.MustCompile(`^[+\- ]?([` + letters + `][` + letters + `0-9_-]*):\s*$`)

	// "  - ca" optionally prefixed by a diff marker; group 1 is the marker
	valueLine = regexp.MustCompile(`^([+-]?)\s*-\s+([` + letters + `][` + letters + `0-9_-]*)`)
)

// stripMarker removes a single leading diff marker and surrounding whitespace
func stripMarker(line string) string {
	if line != "" && (line[0] == '+' || line[0] == '-') {
		line = line[1:]
	}
	return strings.TrimSpace(line)
}

// DetectDialect selects CapabilityMatrix when any line is the languages marker
func DetectDialect(lines []string) Dialect {
	for _, line := range lines {
		if stripMarker(line) == languagesMarker {
			return CapabilityMatrix
		}
	}
	return KeyedList
}

// EngineName derives the engine from a file name: "config/Matxin.yaml" -> "Matxin"
func EngineName(filename string) string {
	base := path.Base(filename)
	if i := strings.Index(base, "."); i >= 0 {
		return base[:i]
	}
	return base
}

// SplitLines splits patch text into lines, dropping carriage returns
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, "\r")
	}
	return lines
}

func matchKey(line string) (string, bool) {
	m := keyLine.FindStringSubmatch(strings.TrimRight(line, " \t"))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// matchValue returns the token after the dash and whether the line was removed
func matchValue(line string) (token string, removed bool, ok bool) {
	m := valueLine.FindStringSubmatch(line)
	if m == nil {
		return "", false, false
	}
	return m[2], m[1] == "-", true
}

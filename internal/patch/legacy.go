package patch

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
)

// legacyLine matches "<name>,<integer or decimal>"
var legacyLine = regexp.MustCompile(`^[^,]+,-?\d+(\.\d+)?$`)

// DecodeLegacy decodes base64 file content holding one "name,value" pair per
// line and appends timestamp to each valid line. Invalid lines are dropped;
// valid ones keep their order.
func DecodeLegacy(encoded, timestamp string) (string, error) {
	// The contents API wraps base64 at 60 columns
	compact := strings.NewReplacer("\n", "", "\r", "").Replace(encoded)

	raw, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return "", fmt.Errorf("decode legacy content: %w", err)
	}

	var sb strings.Builder
	for _, line := range SplitLines(string(raw)) {
		line = strings.TrimSpace(line)
		if !legacyLine.MatchString(line) {
			continue
		}
		sb.WriteString(line)
		sb.WriteString(",")
		sb.WriteString(timestamp)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

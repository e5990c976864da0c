package patch

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/ahn-nath/confevo/internal/logging"
	"github.com/ahn-nath/confevo/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2023, 3, 17, 1, 34, 24, 0, time.UTC)

func rec(engine, source, target string, op models.Operation) models.Record {
	return models.Record{Engine: engine, Source: source, Target: target, Timestamp: ts, Operation: op}
}

func TestParseKeyedList_RoundTrip(t *testing.T) {
	lines := []string{"@@ h @@", "+sourceKey:", "+  - targetValue1", "+  - targetValue2"}

	result := ParseKeyedList("Matxin", lines, ts)

	want := []models.Record{
		rec("Matxin", "sourceKey", "targetValue1", models.Added),
		rec("Matxin", "sourceKey", "targetValue2", models.Added),
	}
	if diff := cmp.Diff(want, result.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, result.Anomalies)
}

func TestParseKeyedList(t *testing.T) {
	tests := []struct {
		name      string
		lines     []string
		want      []models.Record
		anomalies int
	}{
		{
			name: "context key with mixed value changes",
			lines: []string{
				"@@ -1,6 +1,7 @@",
				" es:",
				"   - ca",
				"-  - gl",
				"+  - pt",
				" fr:",
				"+  - oc",
			},
			want: []models.Record{
				rec("Yandex", "es", "ca", models.Added),
				rec("Yandex", "es", "gl", models.Removed),
				rec("Yandex", "es", "pt", models.Added),
				rec("Yandex", "fr", "oc", models.Added),
			},
		},
		{
			name:  "key without values is skipped",
			lines: []string{"@@ h @@", "+es:", "+fr:", "+  - oc"},
			want:  []models.Record{rec("Yandex", "fr", "oc", models.Added)},
		},
		{
			name:      "unexpected line ends the run",
			lines:     []string{"@@ h @@", "+es:", "+  - ca", "+handler: foo", "+  - gl"},
			want:      []models.Record{rec("Yandex", "es", "ca", models.Added)},
			anomalies: 1,
		},
		{
			name:  "full file dump without markers",
			lines: []string{"@@ h @@", "español:", "  - català", "- galego"},
			want: []models.Record{
				rec("Yandex", "español", "català", models.Added),
				rec("Yandex", "español", "galego", models.Added),
			},
		},
		{
			name:  "removed zero-indented value",
			lines: []string{"@@ h @@", " eu:", "-- es"},
			want:  []models.Record{rec("Yandex", "eu", "es", models.Removed)},
		},
		{
			name:  "second hunk header ends the run",
			lines: []string{"@@ -1,2 +1,2 @@", " es:", "+  - ca", "@@ -9,2 +9,2 @@", " fr:", "-  - oc"},
			want: []models.Record{
				rec("Yandex", "es", "ca", models.Added),
				rec("Yandex", "fr", "oc", models.Removed),
			},
		},
		{
			name:  "hyphenated language codes",
			lines: []string{"@@ h @@", "+zh-yue:", "+  - be-tarask"},
			want:  []models.Record{rec("Yandex", "zh-yue", "be-tarask", models.Added)},
		},
		{
			name:  "header only",
			lines: []string{"@@ -0,0 +1 @@"},
			want:  nil,
		},
		{
			name:  "missing final newline marker is not an anomaly",
			lines: []string{"@@ h @@", "+es:", "+  - ca", `\ No newline at end of file`},
			want:  []models.Record{rec("Yandex", "es", "ca", models.Added)},
		},
		{
			name:  "values before any key are ignored",
			lines: []string{"@@ h @@", "+  - ca", "+es:", "+  - gl"},
			want:  []models.Record{rec("Yandex", "es", "gl", models.Added)},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := ParseKeyedList("Yandex", test.lines, ts)
			if diff := cmp.Diff(test.want, result.Records); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
			assert.Len(t, result.Anomalies, test.anomalies)
		})
	}
}

func TestParseCapabilityMatrix_EnglishVariants(t *testing.T) {
	lines := []string{"@@ h @@", "+languages:", "+  - en", "+  - simple", "+  - es"}

	result := ParseCapabilityMatrix("MinT", lines, ts)

	want := []models.Record{
		rec("MinT", "en", "es", models.Added),
		rec("MinT", "simple", "es", models.Added),
		rec("MinT", "es", "en", models.Added),
		rec("MinT", "es", "simple", models.Added),
	}
	if diff := cmp.Diff(want, result.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestParseCapabilityMatrix(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  []models.Record
	}{
		{
			name: "exclusions are never targets",
			lines: []string{
				"@@ h @@",
				"+notAsTarget:",
				"+  - es",
				"+languages:",
				"+  - en",
				"+  - es",
				"+  - gl",
			},
			want: []models.Record{
				rec("Google", "en", "gl", models.Added),
				rec("Google", "es", "en", models.Added),
				rec("Google", "es", "gl", models.Added),
				rec("Google", "gl", "en", models.Added),
			},
		},
		{
			name: "removed item marks its pairs removed",
			lines: []string{
				"@@ h @@",
				" languages:",
				"   - ca",
				"-  - oc",
				"   - pt",
			},
			want: []models.Record{
				rec("Google", "ca", "oc", models.Removed),
				rec("Google", "ca", "pt", models.Added),
				rec("Google", "oc", "ca", models.Removed),
				rec("Google", "oc", "pt", models.Removed),
				rec("Google", "pt", "ca", models.Added),
				rec("Google", "pt", "oc", models.Removed),
			},
		},
		{
			name: "duplicate items collapse",
			lines: []string{
				"@@ h @@",
				"+languages:",
				"-  - ca",
				"+  - ca",
				"+  - eu",
			},
			want: []models.Record{
				rec("Google", "ca", "eu", models.Added),
				rec("Google", "eu", "ca", models.Added),
			},
		},
		{
			name: "removed exclusion no longer applies to context languages",
			lines: []string{
				"@@ h @@",
				" notAsTarget:",
				"-  - eu",
				" languages:",
				"   - ca",
				"   - eu",
			},
			want: []models.Record{
				rec("Google", "ca", "eu", models.Added),
				rec("Google", "eu", "ca", models.Added),
			},
		},
		{
			name: "exclusion removed in the same patch stops excluding its target",
			lines: []string{
				"@@ h @@",
				" notAsTarget:",
				"-  - es",
				" languages:",
				"   - en",
				"   - es",
			},
			want: []models.Record{
				rec("Google", "en", "es", models.Added),
				rec("Google", "es", "en", models.Added),
			},
		},
		{
			name: "trailing key closes the item list",
			lines: []string{
				"@@ h @@",
				"+languages:",
				"+  - ca",
				"+  - eu",
				"+handlers:",
				"+  - transformer",
			},
			want: []models.Record{
				rec("Google", "ca", "eu", models.Added),
				rec("Google", "eu", "ca", models.Added),
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := ParseCapabilityMatrix("Google", test.lines, ts)
			if diff := cmp.Diff(test.want, result.Records); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDetectDialect(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  Dialect
	}{
		{"languages marker added", []string{"@@ h @@", "+languages:", "+  - es"}, CapabilityMatrix},
		{"languages marker removed", []string{"@@ h @@", "-languages:"}, CapabilityMatrix},
		{"languages marker as context", []string{"@@ h @@", " languages:", "+  - es"}, CapabilityMatrix},
		{"marker after keyed content", []string{"@@ h @@", "+es:", "+  - ca", "languages:"}, CapabilityMatrix},
		{"keyed list", []string{"@@ h @@", "+es:", "+  - ca"}, KeyedList},
		{"unknown marker defaults to keyed list", []string{"@@ h @@", "+engines:", "+  - x"}, KeyedList},
		{"languages as a value is not a marker", []string{"@@ h @@", "+es:", "+  - languages"}, KeyedList},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, DetectDialect(test.lines))
		})
	}
}

func TestParseLines_DispatchesOnDialect(t *testing.T) {
	matrix := ParseLines("E", []string{"@@ h @@", "+es:", "+  - ca", "+languages:", "+  - ca", "+  - eu"}, ts)
	assert.Equal(t, CapabilityMatrix, matrix.Dialect)
	assert.Len(t, matrix.Records, 2)

	keyed := ParseLines("E", []string{"@@ h @@", "+es:", "+  - ca"}, ts)
	assert.Equal(t, KeyedList, keyed.Dialect)
	assert.Len(t, keyed.Records, 1)
}

func TestEngineName(t *testing.T) {
	assert.Equal(t, "Matxin", EngineName("Matxin.yaml"))
	assert.Equal(t, "Yandex", EngineName("config/Yandex.yaml"))
	assert.Equal(t, "LingoCloud", EngineName("config/LingoCloud.v2.yaml"))
	assert.Equal(t, "README", EngineName("README"))
}

func TestParseFile(t *testing.T) {
	file := models.ChangedFile{
		Name:  "config/Apertium.yaml",
		Patch: "@@ -10,3 +10,4 @@\r\n es:\r\n+  - an\r\n   - ast",
	}

	result := ParseFile(file, ts)

	want := []models.Record{
		rec("Apertium", "es", "an", models.Added),
		rec("Apertium", "es", "ast", models.Added),
	}
	if diff := cmp.Diff(want, result.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, ParseFile(models.ChangedFile{Name: "Apertium.yaml"}, ts).Records)
}

func TestParser_ParseCommit(t *testing.T) {
	parser := NewParser(logging.Discard())
	commit := models.Commit{
		SHA:        "0123456789abcdef",
		AuthorDate: ts,
		Files: []models.ChangedFile{
			{Name: "Yandex.yaml", Patch: "@@ h @@\n+es:\n+  - ca"},
			{Name: "Matxin.yaml", Patch: "@@ h @@\n+eu:\n+  - es\n+  - en"},
		},
	}

	out := parser.ParseCommit(commit)

	assert.Equal(t, commit.SHA, out.SHA)
	require.Len(t, out.Records, 3)
	assert.Equal(t, "Yandex", out.Records[0].Engine)
	assert.Equal(t, "Matxin", out.Records[1].Engine)
	assert.Equal(t, "en", out.Records[2].Target)
}

func TestDecodeLegacy_DropsMalformedLines(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("Caracas,48\nPanamá,-47\nThis is just the wrong output\n452"))

	out, err := DecodeLegacy(encoded, "2023-03-17T01:34:24Z")
	require.NoError(t, err)
	assert.Equal(t, "Caracas,48,2023-03-17T01:34:24Z\nPanamá,-47,2023-03-17T01:34:24Z\n", out)
}

func TestDecodeLegacy_WrappedContent(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("Lima,19\r\nQuito,14.5\r\n"))
	wrapped := encoded[:8] + "\n" + encoded[8:]

	out, err := DecodeLegacy(wrapped, "T")
	require.NoError(t, err)
	assert.Equal(t, "Lima,19,T\nQuito,14.5,T\n", out)
}

func TestDecodeLegacy_InvalidBase64(t *testing.T) {
	_, err := DecodeLegacy("not base64!", "T")
	assert.Error(t, err)
}

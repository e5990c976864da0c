package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ahn-nath/confevo/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "confevo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test_token_1234")
	path := writeConfig(t, `
source:
  owner: ahn-nath
  repo: configuration-evolution-over-time.source-file
  files:
    - Matxin.yaml
    - Yandex.yaml
output:
  dataset_path: out/dataset.csv
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ahn-nath", cfg.Source.Owner)
	assert.Equal(t, "configuration-evolution-over-time.source-file", cfg.Source.Repo)
	assert.Equal(t, []string{"Matxin.yaml", "Yandex.yaml"}, cfg.Source.Files)
	assert.Equal(t, "out/dataset.csv", cfg.Output.DatasetPath)
	assert.Equal(t, "ghp_test_token_1234", cfg.GitHub.Token)

	// Untouched sections keep their defaults
	assert.Equal(t, 10, cfg.GitHub.RateLimit)
	assert.Equal(t, ModeRelationships, cfg.Source.Mode)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_env")
	t.Setenv("CONFEVO_OWNER", "someone")
	t.Setenv("CONFEVO_FILES", "A.yaml, B.yaml ,")
	t.Setenv("CONFEVO_MODE", ModeLegacy)
	t.Setenv("GITHUB_RATE_LIMIT", "3")

	cfg, err := Load(writeConfig(t, "source:\n  owner: from-file\n"))
	require.NoError(t, err)

	assert.Equal(t, "someone", cfg.Source.Owner)
	assert.Equal(t, []string{"A.yaml", "B.yaml"}, cfg.Source.Files)
	assert.Equal(t, ModeLegacy, cfg.Source.Mode)
	assert.Equal(t, 3, cfg.GitHub.RateLimit)
}

func TestEpochTime(t *testing.T) {
	cfg := Default()

	epoch, err := cfg.EpochTime()
	require.NoError(t, err)
	assert.Equal(t, "2015-01-01T00:00:00Z", epoch.Format("2006-01-02T15:04:05Z07:00"))

	cfg.Source.Epoch = "2021-06-30"
	epoch, err = cfg.EpochTime()
	require.NoError(t, err)
	assert.Equal(t, 2021, epoch.Year())

	cfg.Source.Epoch = "yesterday"
	_, err = cfg.EpochTime()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults are valid", func(c *Config) {}, ""},
		{"missing owner", func(c *Config) { c.Source.Owner = "" }, "source.owner is required"},
		{"no files", func(c *Config) { c.Source.Files = nil }, "source.files must list"},
		{"bad pattern", func(c *Config) { c.Source.Files = []string{"[abc"} }, "not a valid pattern"},
		{"bad mode", func(c *Config) { c.Source.Mode = "yaml" }, "source.mode"},
		{"bad epoch", func(c *Config) { c.Source.Epoch = "soon" }, "source.epoch"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.mutate(cfg)

			err := cfg.Validate()
			if test.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
			assert.Contains(t, err.Error(), test.wantErr)
		})
	}
}

func TestCheck_WarnsWithoutToken(t *testing.T) {
	cfg := Default()
	result := cfg.Check()
	assert.False(t, result.HasErrors())
	assert.NotEmpty(t, result.Warnings)
}

func TestSave_RoundTripWithoutToken(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_roundtrip")
	cfg := Default()
	cfg.GitHub.Token = "ghp_secret_never_saved"
	cfg.Source.Owner = "ahn-nath"

	path := filepath.Join(t.TempDir(), "nested", "confevo.yaml")
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "ghp_secret_never_saved")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ahn-nath", loaded.Source.Owner)
	assert.Equal(t, cfg.Source.Files, loaded.Source.Files)
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "(not set)", MaskToken(""))
	assert.Equal(t, "***", MaskToken("short"))
	assert.Equal(t, "ghp_...wxyz", MaskToken("ghp_abcdefghijklmnopqrstuvwxyz"))
}

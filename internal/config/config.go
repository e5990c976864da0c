package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Dataset modes
const (
	ModeRelationships = "relationships" // engine,source,target,timestamp,operation
	ModeLegacy        = "legacy"        // city,temperature,timestamp
)

// Config holds all configuration settings
type Config struct {
	// GitHub configuration
	GitHub GitHubConfig `yaml:"github" mapstructure:"github"`

	// Repository and files to mine
	Source SourceConfig `yaml:"source" mapstructure:"source"`

	// Cursor and dataset locations
	Output OutputConfig `yaml:"output" mapstructure:"output"`

	// Commit detail cache
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Relationship history index
	History HistoryConfig `yaml:"history" mapstructure:"history"`

	// Log file settings
	Log LogConfig `yaml:"log" mapstructure:"log"`
}

type GitHubConfig struct {
	Token      string `yaml:"token,omitempty" mapstructure:"token"`
	RateLimit  int    `yaml:"rate_limit" mapstructure:"rate_limit"` // Requests per second
	MaxWorkers int    `yaml:"max_workers" mapstructure:"max_workers"`
	BaseURL    string `yaml:"base_url,omitempty" mapstructure:"base_url"` // GitHub Enterprise API root
}

type SourceConfig struct {
	Owner string   `yaml:"owner" mapstructure:"owner"`
	Repo  string   `yaml:"repo" mapstructure:"repo"`
	Path  string   `yaml:"path" mapstructure:"path"`
	Files []string `yaml:"files" mapstructure:"files"` // Base names or glob patterns
	Epoch string   `yaml:"epoch" mapstructure:"epoch"` // Full re-scan start date
	Mode  string   `yaml:"mode" mapstructure:"mode"`
}

type OutputConfig struct {
	CursorPath  string `yaml:"cursor_path" mapstructure:"cursor_path"`
	DatasetPath string `yaml:"dataset_path" mapstructure:"dataset_path"`
	MetricsFile string `yaml:"metrics_file,omitempty" mapstructure:"metrics_file"` // Prometheus textfile
}

type CacheConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

type HistoryConfig struct {
	DSN string `yaml:"dsn,omitempty" mapstructure:"dsn"` // sqlite path or postgres:// URL; empty disables
}

type LogConfig struct {
	Directory string `yaml:"directory,omitempty" mapstructure:"directory"`
	JSON      bool   `yaml:"json" mapstructure:"json"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		GitHub: GitHubConfig{
			RateLimit:  10, // 10 requests per second
			MaxWorkers: 8,
		},
		Source: SourceConfig{
			Owner: "wikimedia",
			Repo:  "mediawiki-services-cxserver",
			Path:  "config",
			Files: []string{
				"Apertium.yaml",
				"Elia.yaml",
				"Google.yaml",
				"LingoCloud.yaml",
				"Matxin.yaml",
				"MinT.yaml",
				"Yandex.yaml",
				"Youdao.yaml",
			},
			Epoch: "2015-01-01T00:00:00.000Z",
			Mode:  ModeRelationships,
		},
		Output: OutputConfig{
			CursorPath:  filepath.Join("data", "cursor.json"),
			DatasetPath: filepath.Join("data", "dataset.csv"),
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    filepath.Join(homeDir, ".confevo", "commits.db"),
		},
	}
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	// Load .env files first (in order of precedence)
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, Default())

	v.SetEnvPrefix("CONFEVO")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("confevo")
		v.AddConfigPath(".confevo")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".confevo"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// setDefaults registers every leaf key so partial sections in a config file
// merge with the defaults instead of replacing them
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("github.rate_limit", cfg.GitHub.RateLimit)
	v.SetDefault("github.max_workers", cfg.GitHub.MaxWorkers)
	v.SetDefault("github.base_url", cfg.GitHub.BaseURL)
	v.SetDefault("source.owner", cfg.Source.Owner)
	v.SetDefault("source.repo", cfg.Source.Repo)
	v.SetDefault("source.path", cfg.Source.Path)
	v.SetDefault("source.files", cfg.Source.Files)
	v.SetDefault("source.epoch", cfg.Source.Epoch)
	v.SetDefault("source.mode", cfg.Source.Mode)
	v.SetDefault("output.cursor_path", cfg.Output.CursorPath)
	v.SetDefault("output.dataset_path", cfg.Output.DatasetPath)
	v.SetDefault("output.metrics_file", cfg.Output.MetricsFile)
	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.path", cfg.Cache.Path)
	v.SetDefault("history.dsn", cfg.History.DSN)
	v.SetDefault("log.directory", cfg.Log.Directory)
	v.SetDefault("log.json", cfg.Log.JSON)
}

// loadEnvFiles loads .env files in order of precedence.
// godotenv never overrides variables that are already set, so earlier files win.
func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".confevo", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	// GitHub configuration
	// Precedence: 1. Env var 2. Config file 3. Keychain
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		cfg.GitHub.Token = token
	} else if token := os.Getenv("GITHUB_API_TOKEN"); token != "" {
		cfg.GitHub.Token = token
	} else if cfg.GitHub.Token == "" {
		km := NewKeyringManager()
		if km.IsAvailable() {
			if keychainToken, err := km.GetGitHubToken(); err == nil && keychainToken != "" {
				cfg.GitHub.Token = keychainToken
			}
		}
	}
	if rateLimit := os.Getenv("GITHUB_RATE_LIMIT"); rateLimit != "" {
		if rate, err := strconv.Atoi(rateLimit); err == nil {
			cfg.GitHub.RateLimit = rate
		}
	}
	if url := os.Getenv("GITHUB_API_URL"); url != "" {
		cfg.GitHub.BaseURL = url
	}

	// Source configuration
	if owner := os.Getenv("CONFEVO_OWNER"); owner != "" {
		cfg.Source.Owner = owner
	}
	if repo := os.Getenv("CONFEVO_REPO"); repo != "" {
		cfg.Source.Repo = repo
	}
	if path := os.Getenv("CONFEVO_PATH"); path != "" {
		cfg.Source.Path = path
	}
	if files := os.Getenv("CONFEVO_FILES"); files != "" {
		cfg.Source.Files = splitList(files)
	}
	if epoch := os.Getenv("CONFEVO_EPOCH"); epoch != "" {
		cfg.Source.Epoch = epoch
	}
	if mode := os.Getenv("CONFEVO_MODE"); mode != "" {
		cfg.Source.Mode = mode
	}

	// Output configuration
	if path := os.Getenv("CONFEVO_CURSOR_PATH"); path != "" {
		cfg.Output.CursorPath = expandPath(path)
	}
	if path := os.Getenv("CONFEVO_DATASET_PATH"); path != "" {
		cfg.Output.DatasetPath = expandPath(path)
	}
	if path := os.Getenv("CONFEVO_METRICS_FILE"); path != "" {
		cfg.Output.MetricsFile = expandPath(path)
	}

	// Cache and history
	if path := os.Getenv("CONFEVO_CACHE_PATH"); path != "" {
		cfg.Cache.Path = expandPath(path)
	}
	if enabled := os.Getenv("CONFEVO_CACHE_ENABLED"); enabled != "" {
		cfg.Cache.Enabled = enabled == "true"
	}
	if dsn := os.Getenv("CONFEVO_HISTORY_DSN"); dsn != "" {
		cfg.History.DSN = dsn
	}
}

// EpochTime parses the configured epoch date
func (c *Config) EpochTime() (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, c.Source.Epoch); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid epoch %q: expected ISO-8601 timestamp or YYYY-MM-DD", c.Source.Epoch)
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Save writes the configuration as YAML. The GitHub token is never written.
func (c *Config) Save(path string) error {
	out := *c
	out.GitHub.Token = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".confevo-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

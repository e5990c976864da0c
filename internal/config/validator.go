package config

import (
	"fmt"
	"strings"

	"github.com/ahn-nath/confevo/internal/errors"
	"github.com/bmatcuk/doublestar/v4"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}
	return sb.String()
}

// Check inspects the configuration and collects every problem found
func (c *Config) Check() *ValidationResult {
	result := &ValidationResult{Valid: true}

	if c.Source.Owner == "" {
		result.AddError("source.owner is required")
	}
	if c.Source.Repo == "" {
		result.AddError("source.repo is required")
	}
	if len(c.Source.Files) == 0 {
		result.AddError("source.files must list at least one tracked file")
	}
	for _, pattern := range c.Source.Files {
		if !doublestar.ValidatePattern(pattern) {
			result.AddError("source.files entry %q is not a valid pattern", pattern)
		}
	}
	if _, err := c.EpochTime(); err != nil {
		result.AddError("source.epoch: %v", err)
	}
	switch c.Source.Mode {
	case ModeRelationships, ModeLegacy:
	default:
		result.AddError("source.mode must be %q or %q, got %q", ModeRelationships, ModeLegacy, c.Source.Mode)
	}
	if c.Output.CursorPath == "" {
		result.AddError("output.cursor_path is required")
	}
	if c.Output.DatasetPath == "" {
		result.AddError("output.dataset_path is required")
	}
	if c.GitHub.RateLimit <= 0 {
		result.AddError("github.rate_limit must be positive")
	}
	if c.GitHub.MaxWorkers <= 0 {
		result.AddError("github.max_workers must be positive")
	}

	if c.GitHub.Token == "" {
		result.AddWarning("no GitHub token configured; unauthenticated requests are limited to 60/hour")
	}
	if c.Source.Mode == ModeLegacy && len(c.Source.Files) > 1 {
		result.AddWarning("legacy mode reads only the first tracked file (%s)", c.Source.Files[0])
	}

	return result
}

// Validate returns a ConfigError describing every problem, or nil
func (c *Config) Validate() error {
	result := c.Check()
	if result.HasErrors() {
		return errors.ConfigError(strings.TrimSpace(result.Error()))
	}
	return nil
}

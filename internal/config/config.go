// Package config holds the widener configuration: defaults, an optional YAML
// file and environment overrides, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"class-widener/internal/manifest"
)

// Config is the complete run configuration.
type Config struct {
	// Input is the archive to rewrite.
	Input string `yaml:"input"`
	// Output is the rewritten archive; it may equal Input for in-place runs.
	Output string `yaml:"output"`
	// Manifests lists manifest files, mod archives or directories to scan.
	Manifests []string `yaml:"manifests"`
	// Rules lists standalone rule files.
	Rules        []string `yaml:"rules"`
	ManifestName string   `yaml:"manifest_name"`
	// Exclude lists directory names, or path.Match patterns such as
	// "build*", skipped while scanning directories.
	Exclude []string `yaml:"exclude"`
	// FollowSymlinks walks symlinked files and directories while scanning.
	FollowSymlinks bool `yaml:"follow_symlinks"`
	Workers        int  `yaml:"workers"`
	// Strict turns lint findings on the resolved rules into errors.
	Strict  bool          `yaml:"strict"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig selects the log level and encoder.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		ManifestName:   manifest.DefaultName,
		Exclude:        []string{".git", ".gradle", "build"},
		FollowSymlinks: true,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// HasSources reports whether any manifest or rule source is configured.
func (c *Config) HasSources() bool {
	return len(c.Manifests) > 0 || len(c.Rules) > 0
}

// ValidateSources checks the fields needed to read rules.
func (c *Config) ValidateSources() error {
	if !c.HasSources() {
		return errors.New("at least one manifest or rule source is required")
	}
	if c.ManifestName == "" || strings.ContainsAny(c.ManifestName, `/\`) {
		return fmt.Errorf("manifest_name must be a plain file name, got %q", c.ManifestName)
	}
	for _, p := range c.Exclude {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("exclude pattern %q: %w", p, err)
		}
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// Validate checks everything a rewrite run needs.
func (c *Config) Validate() error {
	if err := c.ValidateSources(); err != nil {
		return err
	}
	if c.Input == "" {
		return errors.New("input is required")
	}
	if c.Output == "" {
		return errors.New("output is required")
	}
	return nil
}

// InPlace reports whether the output replaces the input.
func (c *Config) InPlace() bool {
	return filepath.Clean(c.Input) == filepath.Clean(c.Output)
}

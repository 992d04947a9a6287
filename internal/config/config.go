// Package config holds the launcher configuration: where the align binary
// lives, what it is handed, and how it is executed.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up in the invocation directory
// when none is given explicitly.
const DefaultPath = "alignrun.yaml"

// Executor kinds.
const (
	ExecutorLocal  = "local"
	ExecutorDocker = "docker"
)

// DockerConfig configures the container executor.
type DockerConfig struct {
	Image   string `yaml:"image"`
	Workdir string `yaml:"workdir"` // Mount point of Root inside the container
}

// AuditConfig configures the JSON-lines run log.
// An empty Path disables it.
type AuditConfig struct {
	Path       string `yaml:"path,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
}

// LogConfig configures diagnostics written to stderr.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// Config is the top-level launcher configuration.
type Config struct {
	Root       string        `yaml:"root"`
	BinDir     string        `yaml:"bin_dir"`
	Executable string        `yaml:"executable"`
	LogFile    string        `yaml:"log_file"`
	Filter     bool          `yaml:"filter"`
	ExtraArgs  []string      `yaml:"extra_args,omitempty"`
	Executor   string        `yaml:"executor"`
	Timeout    time.Duration `yaml:"timeout,omitempty"` // Zero means no timeout
	Docker     DockerConfig  `yaml:"docker"`
	Audit      AuditConfig   `yaml:"audit"`
	Log        LogConfig     `yaml:"log"`
}

// Default returns the configuration matching the classic wrapper:
// ./build/bin/align <in> <out> log.txt --filter.
func Default() *Config {
	return &Config{
		Root:       ".",
		BinDir:     "build/bin",
		Executable: "align",
		LogFile:    "log.txt",
		Filter:     true,
		Executor:   ExecutorLocal,
		Docker: DockerConfig{
			Image:   "alpine:latest",
			Workdir: "/work",
		},
		Audit: AuditConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// Load reads a YAML config file on top of the defaults.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault behaves like Load but returns the defaults when the file
// does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse decodes YAML config data on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// ExpandPaths resolves a leading ~ in the path-valued fields.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.Root, &c.BinDir, &c.LogFile, &c.Audit.Path} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for values the launcher cannot use.
func (c *Config) Validate() error {
	if c.BinDir == "" {
		return errors.New("bin_dir must not be empty")
	}
	if c.Executable == "" {
		return errors.New("executable must not be empty")
	}
	if c.Executable == "." || c.Executable == ".." ||
		strings.ContainsAny(c.Executable, `/\`) || filepath.Base(c.Executable) != c.Executable {
		return fmt.Errorf("executable %q must be a bare file name inside bin_dir", c.Executable)
	}
	if c.LogFile == "" {
		return errors.New("log_file must not be empty")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative (got %s)", c.Timeout)
	}

	switch c.Executor {
	case ExecutorLocal:
	case ExecutorDocker:
		if c.Docker.Image == "" {
			return errors.New("docker.image is required for the docker executor")
		}
		if !strings.HasPrefix(c.Docker.Workdir, "/") {
			return fmt.Errorf("docker.workdir %q must be an absolute container path", c.Docker.Workdir)
		}
	default:
		return fmt.Errorf("unknown executor %q (want %q or %q)", c.Executor, ExecutorLocal, ExecutorDocker)
	}

	return nil
}

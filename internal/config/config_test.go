package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ".", cfg.Root)
	assert.Equal(t, "build/bin", cfg.BinDir)
	assert.Equal(t, "align", cfg.Executable)
	assert.Equal(t, "log.txt", cfg.LogFile)
	assert.True(t, cfg.Filter)
	assert.Equal(t, ExecutorLocal, cfg.Executor)
	assert.Empty(t, cfg.Audit.Path, "audit log must be disabled by default")
	require.NoError(t, cfg.Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	data := []byte(`
bin_dir: out/release
log_file: logs/align.txt
filter: false
extra_args: ["--mirror"]
timeout: 90s
executor: docker
docker:
  image: registry.local/align:1.2
audit:
  path: /var/log/alignrun.jsonl
`)

	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "out/release", cfg.BinDir)
	assert.Equal(t, "logs/align.txt", cfg.LogFile)
	assert.False(t, cfg.Filter)
	assert.Equal(t, []string{"--mirror"}, cfg.ExtraArgs)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, ExecutorDocker, cfg.Executor)
	assert.Equal(t, "registry.local/align:1.2", cfg.Docker.Image)
	assert.Equal(t, "/var/log/alignrun.jsonl", cfg.Audit.Path)

	// Untouched keys keep their defaults
	assert.Equal(t, "align", cfg.Executable)
	assert.Equal(t, "/work", cfg.Docker.Workdir)
	assert.Equal(t, 3, cfg.Audit.MaxBackups)
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("bindir: typo\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestLoadOrDefault(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("existing file is parsed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), DefaultPath)
		require.NoError(t, os.WriteFile(path, []byte("executable: align-dev\n"), 0644))

		cfg, err := LoadOrDefault(path)
		require.NoError(t, err)
		assert.Equal(t, "align-dev", cfg.Executable)
	})

	t.Run("explicit load of missing file fails", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty bin dir", func(c *Config) { c.BinDir = "" }, "bin_dir"},
		{"empty executable", func(c *Config) { c.Executable = "" }, "executable"},
		{"executable with path", func(c *Config) { c.Executable = "../align" }, "bare file name"},
		{"executable dot", func(c *Config) { c.Executable = ".." }, "bare file name"},
		{"empty log file", func(c *Config) { c.LogFile = "" }, "log_file"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "timeout"},
		{"unknown executor", func(c *Config) { c.Executor = "ssh" }, "unknown executor"},
		{"docker without image", func(c *Config) {
			c.Executor = ExecutorDocker
			c.Docker.Image = ""
		}, "docker.image"},
		{"docker relative workdir", func(c *Config) {
			c.Executor = ExecutorDocker
			c.Docker.Workdir = "work"
		}, "docker.workdir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExpandPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	cfg := Default()
	cfg.Root = "~/images"
	cfg.BinDir = "~/tools/bin"
	cfg.Audit.Path = "~/.alignrun/audit.jsonl"

	require.NoError(t, cfg.ExpandPaths())
	assert.Equal(t, filepath.Join(home, "images"), cfg.Root)
	assert.Equal(t, filepath.Join(home, "tools", "bin"), cfg.BinDir)
	assert.Equal(t, filepath.Join(home, ".alignrun", "audit.jsonl"), cfg.Audit.Path)
	assert.Equal(t, "log.txt", cfg.LogFile)
}

package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. ALIGNRUN_BIN_DIR
// or ALIGNRUN_DOCKER_IMAGE.
const EnvPrefix = "ALIGNRUN"

// Keys that can be overridden through viper (env vars or bound flags).
const (
	KeyRoot        = "root"
	KeyBinDir      = "bin_dir"
	KeyExecutable  = "executable"
	KeyLogFile     = "log_file"
	KeyFilter      = "filter"
	KeyExtraArgs   = "extra_args"
	KeyExecutor    = "executor"
	KeyTimeout     = "timeout"
	KeyDockerImage = "docker.image"
	KeyDockerWork  = "docker.workdir"
	KeyAuditPath   = "audit.path"
	KeyLogLevel    = "log.level"
	KeyLogFormat   = "log.format"
)

// NewViper returns a viper instance reading ALIGNRUN_* environment
// variables, with nested keys joined by underscores.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Overlay copies every key explicitly set in v (changed flag, environment
// variable or v.Set) onto c. Keys left unset keep the file/default value.
func (c *Config) Overlay(v *viper.Viper) {
	strs := map[string]*string{
		KeyRoot:        &c.Root,
		KeyBinDir:      &c.BinDir,
		KeyExecutable:  &c.Executable,
		KeyLogFile:     &c.LogFile,
		KeyExecutor:    &c.Executor,
		KeyDockerImage: &c.Docker.Image,
		KeyDockerWork:  &c.Docker.Workdir,
		KeyAuditPath:   &c.Audit.Path,
		KeyLogLevel:    &c.Log.Level,
		KeyLogFormat:   &c.Log.Format,
	}
	for key, dst := range strs {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	if v.IsSet(KeyFilter) {
		c.Filter = v.GetBool(KeyFilter)
	}
	if v.IsSet(KeyTimeout) {
		c.Timeout = v.GetDuration(KeyTimeout)
	}
	if v.IsSet(KeyExtraArgs) {
		c.ExtraArgs = v.GetStringSlice(KeyExtraArgs)
	}
}

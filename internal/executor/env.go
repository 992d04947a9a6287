package executor

import (
	"strings"
)

// Environment passed into an align container. The host environment is
// mostly meaningless inside the image and may carry credentials, so only
// locale and tuning variables cross over.

// envAllowlist contains variables that are safe to pass through.
var envAllowlist = map[string]bool{
	"LANG":            true,
	"LANGUAGE":        true,
	"LC_ALL":          true,
	"TERM":            true,
	"TZ":              true,
	"OMP_NUM_THREADS": true,
}

// envBlocklist contains variables that are never passed through, even if
// they end up in the allowlist.
var envBlocklist = map[string]bool{
	"LD_PRELOAD":       true,
	"LD_LIBRARY_PATH":  true,
	"DOCKER_HOST":      true,
	"DOCKER_CERT_PATH": true,
}

// ScrubEnvironment filters "KEY=VALUE" entries through the allowlist and
// blocklist. Launcher settings (ALIGNRUN_*) never pass.
func ScrubEnvironment(env []string) []string {
	scrubbed := make([]string, 0, len(env))

	for _, entry := range env {
		key := envKey(entry)

		if envBlocklist[key] || strings.HasPrefix(key, "ALIGNRUN_") {
			continue
		}

		if envAllowlist[key] {
			scrubbed = append(scrubbed, entry)
		}
	}

	return scrubbed
}

// envKey extracts the key from a "KEY=VALUE" environment entry.
func envKey(entry string) string {
	if idx := strings.IndexByte(entry, '='); idx >= 0 {
		return entry[:idx]
	}
	return entry
}

package executor

import (
	"testing"
)

func TestScrubEnvironment(t *testing.T) {
	env := []string{
		"PATH=/usr/bin:/bin",
		"HOME=/home/user",
		"LANG=en_US.UTF-8",
		"TERM=xterm-256color",
		"TZ=UTC",
		"OMP_NUM_THREADS=4",
		"LD_PRELOAD=/evil/lib.so",
		"DOCKER_HOST=tcp://evil:2375",
		"AWS_SECRET_ACCESS_KEY=supersecret",
		"ALIGNRUN_DOCKER_IMAGE=align:dev",
		"MALFORMED",
	}

	scrubbed := ScrubEnvironment(env)

	expected := map[string]bool{
		"LANG":            false,
		"TERM":            false,
		"TZ":              false,
		"OMP_NUM_THREADS": false,
	}

	for _, e := range scrubbed {
		key := envKey(e)
		if _, ok := expected[key]; ok {
			expected[key] = true
		} else {
			t.Errorf("unexpected env var passed through: %s", key)
		}
	}

	for key, found := range expected {
		if !found {
			t.Errorf("expected env var %s was not passed through", key)
		}
	}
}

func TestScrubEnvironmentEmpty(t *testing.T) {
	if got := ScrubEnvironment(nil); len(got) != 0 {
		t.Errorf("expected no entries, got %v", got)
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"A=B":     "A",
		"A=B=C":   "A",
		"NOVALUE": "NOVALUE",
		"=weird":  "",
		"EMPTY=":  "EMPTY",
	}
	for entry, want := range tests {
		if got := envKey(entry); got != want {
			t.Errorf("envKey(%q) = %q, want %q", entry, got, want)
		}
	}
}

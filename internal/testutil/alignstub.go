// Package testutil provides a fake align executable for tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// Stub is a shell-script stand-in for build/bin/align. Every run records its
// physical working directory and argv in TracePath, prints "aligned" to
// stdout and "warning" to stderr, and exits with ExitCode. When its fourth
// argument is --filter it reads one line from stdin and echoes
// "plugin:<line>".
type Stub struct {
	Root      string
	BinDir    string
	Path      string
	TracePath string
	ExitCode  int
}

const stubScript = `#!/bin/sh
trace=%q
pwd -P > "$trace"
for arg in "$@"; do
	printf '%%s\n' "$arg" >> "$trace"
done
printf 'aligned\n'
printf 'warning\n' >&2
if [ "$4" = "--filter" ]; then
	read -r choice || choice=none
	printf 'plugin:%%s\n' "$choice"
fi
exit %d
`

// NewAlignStub writes an executable stub at root/build/bin/align.
// Tests using it are skipped on Windows.
func NewAlignStub(t testing.TB, root string, exitCode int) *Stub {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("align stub is a POSIX shell script")
	}

	binDir := filepath.Join(root, "build", "bin")
	if err := os.MkdirAll(binDir, 0755); err != nil {
		t.Fatalf("create bin dir: %v", err)
	}

	s := &Stub{
		Root:      root,
		BinDir:    binDir,
		Path:      filepath.Join(binDir, "align"),
		TracePath: filepath.Join(root, "trace.txt"),
		ExitCode:  exitCode,
	}

	script := fmt.Sprintf(stubScript, s.TracePath, exitCode)
	if err := os.WriteFile(s.Path, []byte(script), 0755); err != nil {
		t.Fatalf("write align stub: %v", err)
	}
	return s
}

// NewSleepingAlignStub writes an align stub at root/build/bin/align that
// sleeps until it is interrupted. It records nothing.
func NewSleepingAlignStub(t testing.TB, root string) *Stub {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("align stub is a POSIX shell script")
	}

	binDir := filepath.Join(root, "build", "bin")
	if err := os.MkdirAll(binDir, 0755); err != nil {
		t.Fatalf("create bin dir: %v", err)
	}

	s := &Stub{
		Root:      root,
		BinDir:    binDir,
		Path:      filepath.Join(binDir, "align"),
		TracePath: filepath.Join(root, "trace.txt"),
	}
	if err := os.WriteFile(s.Path, []byte("#!/bin/sh\nexec sleep 30\n"), 0755); err != nil {
		t.Fatalf("write align stub: %v", err)
	}
	return s
}

// Trace returns the working directory and arguments of the last run.
func (s *Stub) Trace(t testing.TB) (cwd string, args []string) {
	t.Helper()
	data, err := os.ReadFile(s.TracePath)
	if err != nil {
		t.Fatalf("read stub trace: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	return lines[0], lines[1:]
}

// Ran reports whether the stub has been executed at least once.
func (s *Stub) Ran() bool {
	_, err := os.Stat(s.TracePath)
	return err == nil
}

// PhysicalDir resolves symlinks in dir, matching what `pwd -P` reports.
func PhysicalDir(t testing.TB, dir string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("resolve %s: %v", dir, err)
	}
	return resolved
}

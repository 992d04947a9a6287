// Package audit records every align invocation as a JSON line.
package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"alignrun/internal/config"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Entry is a single run record.
type Entry struct {
	Timestamp string   `json:"timestamp"`
	RunID     string   `json:"run_id"`
	Executor  string   `json:"executor"`
	Command   string   `json:"command"`
	Args      []string `json:"args"`
	Dir       string   `json:"dir"`
	ExitCode  int      `json:"exit_code"`
	Duration  float64  `json:"duration_ms,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Logger writes audit entries in JSON-lines format.
type Logger struct {
	writer io.WriteCloser
	mu     sync.Mutex
}

// NewLogger creates an audit logger for cfg.Path, rotated by size.
// If the path is empty, audit logging is disabled and nothing touches disk.
// The file (and its directory) is created lazily on the first entry.
func NewLogger(cfg config.AuditConfig) (*Logger, error) {
	if cfg.Path == "" {
		return &Logger{writer: nopWriteCloser{}}, nil
	}

	if info, err := os.Stat(cfg.Path); err == nil && info.IsDir() {
		return nil, fmt.Errorf("audit path %q is a directory", cfg.Path)
	}

	return &Logger{writer: &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}}, nil
}

// Log appends an entry, filling in the timestamp and run ID when unset.
func (l *Logger) Log(entry Entry) error {
	if l.writer == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if entry.RunID == "" {
		entry.RunID = uuid.NewString()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	data = append(data, '\n')
	if _, err := l.writer.Write(data); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}

	return nil
}

// Close closes the audit log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		return l.writer.Close()
	}
	return nil
}

// ReadLog reads all audit entries from the specified file.
// A missing file yields no entries; malformed lines are skipped.
func ReadLog(path string) ([]Entry, error) {
	if path == "" {
		return nil, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("read audit log: %w", err)
	}

	return entries, nil
}

type nopWriteCloser struct{}

func (nopWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (nopWriteCloser) Close() error                { return nil }

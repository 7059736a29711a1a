// Package answerlog writes one JSON line per finished question run.
package answerlog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ragfinance/internal/middleware"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Entry struct {
	Timestamp     time.Time `json:"timestamp"`
	TaskID        string    `json:"task_id"`
	CorrelationID string    `json:"correlation_id"`
	Question      string    `json:"question"`
	Answer        string    `json:"answer,omitempty"`
	Error         string    `json:"error,omitempty"`
	Status        string    `json:"status"`
	Pages         []int     `json:"pages,omitempty"`
	LatencyMs     int64     `json:"latency_ms"`
}

type Logger struct {
	writer io.Writer
	closer io.Closer
	mu     sync.Mutex
}

func New(w io.Writer) *Logger {
	return &Logger{writer: w}
}

// NewFile appends to path and mirrors every entry to stdout.
func NewFile(path string) (*Logger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}

	cleanPath := filepath.Clean(path)
	f, err := os.OpenFile(cleanPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path is from application config, not user input
	if err != nil {
		return nil, err
	}
	return &Logger{writer: io.MultiWriter(os.Stdout, f), closer: f}, nil
}

// Log stamps the entry and fills task and correlation ids from ctx when unset.
func (l *Logger) Log(ctx context.Context, entry Entry) {
	entry.Timestamp = time.Now()
	if entry.TaskID == "" {
		entry.TaskID = middleware.GetTaskID(ctx)
	}
	if entry.CorrelationID == "" {
		entry.CorrelationID = middleware.GetCorrelationID(ctx)
	}
	if entry.Status == "" {
		entry.Status = StatusCompleted
		if entry.Error != "" {
			entry.Status = StatusFailed
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := json.NewEncoder(l.writer).Encode(entry); err != nil {
		slog.ErrorContext(ctx, "failed to write answer log entry", "error", err)
	}
}

func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

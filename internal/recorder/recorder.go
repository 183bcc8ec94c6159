// internal/recorder/recorder.go
package recorder

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redeemly/redeemd/internal/metrics"
	"github.com/redeemly/redeemd/pkg/schema"
)

// FileRecorder appends one line per completed submission to a durable log.
// Appends are serialized by a mutex: completions arrive from concurrent
// handlers in no particular order and lines must never interleave.
type FileRecorder struct {
	mu     sync.Mutex
	f      *os.File
	logger *slog.Logger
}

func NewFileRecorder(path string, logger *slog.Logger) (*FileRecorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open outcome log: %w", err)
	}
	return &FileRecorder{f: f, logger: logger}, nil
}

// Record appends one outcome line. A failed write is logged and dropped; the
// pipeline must not stall because the disk did.
func (r *FileRecorder) Record(code schema.Code, outcome schema.Outcome, workerID int, when time.Time) {
	line := fmt.Sprintf("%s | %s | %s | Worker #%d\n", code, outcome, when.Format(time.ANSIC), workerID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.f.WriteString(line); err != nil {
		metrics.RecordFailures.Inc()
		r.logger.Error("append outcome failed", "code", code, "status", outcome, "err", err)
	}
}

func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}

package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ObserveLogSink is the default TelemetrySink: it appends one line per
// event to <workspace>/.agentcore/observe.log, RFC3339 timestamp first,
// matching the workspace runtime layout's observability file. The handle
// is opened once at construction and shared for the process's lifetime.
type ObserveLogSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewObserveLogSink opens (creating if needed) observe.log under
// workspaceRoot/.agentcore/. The returned sink is safe to share across all
// sessions in the process; Close releases the handle at shutdown.
func NewObserveLogSink(workspaceRoot string) (*ObserveLogSink, error) {
	dir := filepath.Join(workspaceRoot, ".agentcore")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("observe log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "observe.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open observe log: %w", err)
	}
	return &ObserveLogSink{file: f}, nil
}

// Record appends one line; write failures are logged nowhere further up the
// stack since telemetry is never allowed to fail the calling operation.
func (s *ObserveLogSink) Record(_ context.Context, kind string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line := fmt.Sprintf("%s %s %v\n", time.Now().UTC().Format(time.RFC3339), kind, fields)
	_, _ = s.file.WriteString(line)
}

func (s *ObserveLogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

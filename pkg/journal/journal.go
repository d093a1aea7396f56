// Package journal implements the append-only JSONL log streams that are
// the system's truth-of-side-effects: every runtime event, telemetry
// metric, and team chat exchange is written once and never rewritten.
package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger appends JSON objects as newline-delimited records to a single
// file, creating parent directories on first write. Safe for concurrent
// use.
type Logger struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// NewLogger builds a Logger writing to path. The file is opened lazily on
// the first Write so a Logger that never writes never touches disk.
func NewLogger(path string) *Logger {
	return &Logger{path: path}
}

// Write appends payload as one JSON line.
func (l *Logger) Write(payload map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		l.file = f
	}

	line, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = l.file.Write(line)
	return err
}

// Close releases the underlying file handle, if one was opened.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// TelemetryCollector emits named metrics to a Logger, gated by Enabled so
// a disabled collector costs nothing per tick.
type TelemetryCollector struct {
	Enabled bool
	logger  *Logger
}

// NewTelemetryCollector builds a collector writing through logger.
func NewTelemetryCollector(enabled bool, logger *Logger) *TelemetryCollector {
	return &TelemetryCollector{Enabled: enabled, logger: logger}
}

// Emit writes one metric sample if the collector is enabled.
func (c *TelemetryCollector) Emit(metric string, value float64, attrs map[string]any) error {
	if !c.Enabled {
		return nil
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	return c.logger.Write(map[string]any{
		"ts":     float64(time.Now().UnixNano()) / 1e9,
		"metric": metric,
		"value":  value,
		"attrs":  attrs,
	})
}

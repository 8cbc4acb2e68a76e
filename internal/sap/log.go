// Package sap implements outbound delivery of invoice documents to the
// SAP drop folder over FTP, implicit-TLS FTP, or SFTP.
package sap

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Level is the severity of a transfer log entry.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// LogEntry is one timestamped step of a transfer or diagnostic run.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// TransferLog accumulates the ordered log of a single transfer or
// diagnostic invocation. It is part of the response contract: the full
// sequence is returned to the caller on success and failure alike.
// Entries are mirrored to the structured application logger as they are
// appended. A TransferLog is local to one invocation and is not safe
// for concurrent use.
type TransferLog struct {
	entries []LogEntry
	logger  *zap.Logger
}

// NewTransferLog creates an empty transfer log. The zap logger may be
// nil in tests.
func NewTransferLog(logger *zap.Logger) *TransferLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferLog{logger: logger}
}

// Info appends an informational entry.
func (l *TransferLog) Info(msg string, kv ...any) {
	l.append(LevelInfo, msg, kv)
	l.logger.Info(msg, zapFields(kv)...)
}

// Success appends a success entry.
func (l *TransferLog) Success(msg string, kv ...any) {
	l.append(LevelSuccess, msg, kv)
	l.logger.Info(msg, zapFields(kv)...)
}

// Warning appends a warning entry.
func (l *TransferLog) Warning(msg string, kv ...any) {
	l.append(LevelWarning, msg, kv)
	l.logger.Warn(msg, zapFields(kv)...)
}

// Error appends an error entry.
func (l *TransferLog) Error(msg string, kv ...any) {
	l.append(LevelError, msg, kv)
	l.logger.Error(msg, zapFields(kv)...)
}

// Entries returns a copy of the accumulated entries in emission order.
func (l *TransferLog) Entries() []LogEntry {
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of accumulated entries.
func (l *TransferLog) Len() int {
	return len(l.entries)
}

func (l *TransferLog) append(level Level, msg string, kv []any) {
	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   msg,
	}
	if len(kv) > 0 {
		entry.Data = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			key, ok := kv[i].(string)
			if !ok {
				key = fmt.Sprintf("%v", kv[i])
			}
			entry.Data[key] = kv[i+1]
		}
	}
	l.entries = append(l.entries, entry)
}

func zapFields(kv []any) []zap.Field {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		fields = append(fields, zap.Any(key, kv[i+1]))
	}
	return fields
}

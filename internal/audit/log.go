// Package audit provides the append-only JSON event log every validation
// decision and broker-call attempt is written to.
package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ibkr-mcp/gateway/internal/models"
)

// redactedFields lists payload keys whose values are sensitive and must
// never be written in full. Account identifiers are truncated to their
// first two characters; everything else in this set keeps its key but has
// its value replaced with "[REDACTED]".
var redactedFields = map[string]string{
	"api_key":        "drop",
	"apikey":         "drop",
	"token":          "drop",
	"override_token": "drop",
	"password":       "drop",
	"secret":         "drop",
	"account_id":     "truncate2",
	"account":        "truncate2",
}

// Log is a single-writer, append-only audit event stream. Writes are
// serialized through a mutex; a write failure is logged to stderr and
// never returned to the caller (spec: AuditWriteFailed never propagates).
type Log struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	sessionID string
	errLogger *log.Logger
}

// New opens (creating if necessary) the audit log file at path and returns
// a Log bound to sessionID. The file is opened for append with O_SYNC-free
// buffering; each Write call flushes explicitly so a crash only ever loses
// the in-flight record, never prior ones.
func New(path, sessionID string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path is operator-configured
	if err != nil {
		return nil, fmt.Errorf("opening audit log %q: %w", path, err)
	}
	return &Log{
		file:      f,
		path:      path,
		sessionID: sessionID,
		errLogger: log.New(os.Stderr, "[AUDIT] ", log.LstdFlags),
	}, nil
}

// Tail returns the last n lines of the audit log, oldest first. It reads
// the file fresh on every call rather than tracking an in-memory ring
// buffer, since the ops API serves this rarely and the file is append-only.
func (l *Log) Tail(n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	l.mu.Lock()
	path := l.path
	l.mu.Unlock()

	data, err := os.ReadFile(path) // #nosec G304 -- path is operator-configured
	if err != nil {
		return nil, fmt.Errorf("reading audit log %q: %w", path, err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Close flushes and closes the underlying file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// WriteValidation appends an event recording a safety-manager decision.
func (l *Log) WriteValidation(kind models.OperationKind, payload map[string]any, decision *models.ValidationDecision) {
	l.write(models.AuditEvent{
		TimestampUTC: time.Now().UTC(),
		SessionID:    l.sessionID,
		Kind:         kind,
		Payload:      sanitize(payload),
		Decision:     decision,
	})
}

// WriteOutcome appends an event recording the outcome of a broker call that
// followed a validation (e.g. "accepted", "BrokerTimeout", "BrokerRejected: ...").
func (l *Log) WriteOutcome(kind models.OperationKind, payload map[string]any, outcome string) {
	l.write(models.AuditEvent{
		TimestampUTC: time.Now().UTC(),
		SessionID:    l.sessionID,
		Kind:         kind,
		Payload:      sanitize(payload),
		Outcome:      &outcome,
	})
}

func (l *Log) write(evt models.AuditEvent) {
	line, err := json.Marshal(evt)
	if err != nil {
		l.errLogger.Printf("marshal failed for %s: %v", evt.Kind, err)
		return
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(line); err != nil {
		l.errLogger.Printf("write failed for %s: %v", evt.Kind, err)
		return
	}
	if err := l.file.Sync(); err != nil {
		l.errLogger.Printf("sync failed for %s: %v", evt.Kind, err)
	}
}

// sanitize returns a copy of payload with sensitive fields redacted per
// redactedFields. Unknown keys pass through unchanged.
func sanitize(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		mode, sensitive := redactedFields[strings.ToLower(k)]
		if !sensitive {
			out[k] = v
			continue
		}
		switch mode {
		case "drop":
			out[k] = "[REDACTED]"
		case "truncate2":
			if s, ok := v.(string); ok && len(s) > 2 {
				out[k] = s[:2] + strings.Repeat("*", len(s)-2)
			} else {
				out[k] = "[REDACTED]"
			}
		}
	}
	return out
}

// Package audit records every governed tool call: one attempt entry before
// execution and one outcome entry after. Entries are append-only and never
// mutated once written.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"datawarden/internal/policy"
)

type Status string

const (
	// StatusAttempt marks the pre-execution entry.
	StatusAttempt Status = "attempt"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

type Entry struct {
	Timestamp       time.Time                `json:"timestamp"`
	UserID          string                   `json:"user_id"`
	TenantID        string                   `json:"tenant_id,omitempty"`
	Tool            string                   `json:"tool_name"`
	Args            map[string]any           `json:"arguments,omitempty"`
	Result          any                      `json:"result,omitempty"`
	Validation      *policy.ValidationResult `json:"validation,omitempty"`
	ExecutionTimeMS int64                    `json:"execution_time_ms,omitempty"`
	Error           string                   `json:"error,omitempty"`
	Status          Status                   `json:"status,omitempty"`
}

// Sink is the audit trail. For a single call the attempt entry is written
// before the outcome entry; across concurrent calls no ordering is
// guaranteed.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
	ReadRecent(ctx context.Context, limit int) ([]Entry, error)
}

// MemorySink keeps entries in process memory, newest-first on read.
// Useful for tests and for running without a database.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Append(ctx context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MemorySink) ReadRecent(ctx context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

// Writer is the database surface the durable store needs. *db.DB
// satisfies it.
type Writer interface {
	InsertAuditEvent(ctx context.Context, payload []byte) (string, error)
	ReadRecentAuditEvents(ctx context.Context, limit int) ([][]byte, error)
}

// Store persists entries through a Writer as JSON payloads.
type Store struct {
	DB Writer
}

func NewStore(db Writer) *Store {
	return &Store{DB: db}
}

func (s *Store) Append(ctx context.Context, entry Entry) error {
	if s.DB == nil {
		return errors.New("audit writer required")
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = s.DB.InsertAuditEvent(ctx, payload)
	return err
}

func (s *Store) ReadRecent(ctx context.Context, limit int) ([]Entry, error) {
	if s.DB == nil {
		return nil, errors.New("audit writer required")
	}
	payloads, err := s.DB.ReadRecentAuditEvents(ctx, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(payloads))
	for _, payload := range payloads {
		var entry Entry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

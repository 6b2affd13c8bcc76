package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemorySinkNewestFirst(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()
	for i, tool := range []string{"first", "second", "third"} {
		entry := Entry{
			Timestamp: time.Date(2026, 3, 1, 12, i, 0, 0, time.UTC),
			UserID:    "bob",
			Tool:      tool,
			Status:    StatusSuccess,
		}
		if err := sink.Append(ctx, entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	entries, err := sink.ReadRecent(ctx, 2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 2 || entries[0].Tool != "third" || entries[1].Tool != "second" {
		t.Fatalf("entries: %+v", entries)
	}
	all, err := sink.ReadRecent(ctx, 0)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all: %d", len(all))
	}
}

type fakeWriter struct {
	payloads [][]byte
	err      error
}

func (f *fakeWriter) InsertAuditEvent(ctx context.Context, payload []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.payloads = append(f.payloads, payload)
	return "audit_1", nil
}

func (f *fakeWriter) ReadRecentAuditEvents(ctx context.Context, limit int) ([][]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]byte, 0, len(f.payloads))
	for i := len(f.payloads) - 1; i >= 0; i-- {
		out = append(out, f.payloads[i])
	}
	return out, nil
}

func TestStoreRoundTrip(t *testing.T) {
	writer := &fakeWriter{}
	store := NewStore(writer)
	ctx := context.Background()
	entry := Entry{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		UserID:    "alice",
		TenantID:  "US",
		Tool:      "revenue_analysis",
		Args:      map[string]any{"table": "customers"},
		Status:    StatusError,
		Error:     "boom",
	}
	if err := store.Append(ctx, entry); err != nil {
		t.Fatalf("append: %v", err)
	}
	entries, err := store.ReadRecent(ctx, 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries: %d", len(entries))
	}
	got := entries[0]
	if got.UserID != "alice" || got.TenantID != "US" || got.Tool != "revenue_analysis" || got.Error != "boom" || got.Status != StatusError {
		t.Fatalf("entry: %+v", got)
	}
}

func TestStoreNilWriter(t *testing.T) {
	store := NewStore(nil)
	if err := store.Append(context.Background(), Entry{}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := store.ReadRecent(context.Background(), 1); err == nil {
		t.Fatalf("expected error")
	}
}

func TestStoreWriterError(t *testing.T) {
	store := NewStore(&fakeWriter{err: errors.New("db down")})
	if err := store.Append(context.Background(), Entry{}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := store.ReadRecent(context.Background(), 1); err == nil {
		t.Fatalf("expected error")
	}
}

package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// InsertAuditEvent appends one audit entry. The payload is the
// JSON-encoded entry produced by the audit store; it is kept opaque here
// so schema changes in the entry never require a migration.
func (d *DB) InsertAuditEvent(ctx context.Context, payload []byte) (string, error) {
	if d == nil || d.conn == nil {
		return "", errors.New("db required")
	}
	if len(payload) == 0 {
		return "", errors.New("payload required")
	}
	eventID := newID("aud")
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO audit_events(event_id, created_at, payload)
		VALUES ($1, $2, $3)
	`, eventID, time.Now().UTC(), payload)
	if err != nil {
		return "", err
	}
	return eventID, nil
}

// ReadRecentAuditEvents returns up to limit payloads, newest first.
func (d *DB) ReadRecentAuditEvents(ctx context.Context, limit int) ([][]byte, error) {
	if d == nil || d.conn == nil {
		return nil, errors.New("db required")
	}
	limit = clampLimit(limit)
	var blob []byte
	err := d.conn.QueryRowContext(ctx, `
		SELECT COALESCE(jsonb_agg(t.payload ORDER BY t.created_at DESC), '[]'::jsonb)
		FROM (
			SELECT payload, created_at
			FROM audit_events
			ORDER BY created_at DESC
			LIMIT $1
		) t
	`, limit).Scan(&blob)
	if err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(raw))
	for _, r := range raw {
		out = append(out, []byte(r))
	}
	return out, nil
}

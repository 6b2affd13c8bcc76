package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// UpsertLearnedMapping records that failedColumn on table resolves to
// correctedColumn. Keys are lowercased so lookups are case-insensitive.
func (d *DB) UpsertLearnedMapping(ctx context.Context, table, failedColumn, correctedColumn string) error {
	if d == nil || d.conn == nil {
		return errors.New("db required")
	}
	table = strings.ToLower(strings.TrimSpace(table))
	failedColumn = strings.ToLower(strings.TrimSpace(failedColumn))
	correctedColumn = strings.TrimSpace(correctedColumn)
	if table == "" || failedColumn == "" || correctedColumn == "" {
		return errors.New("table, failed column and corrected column required")
	}
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO learned_mappings(table_name, failed_column, corrected_column, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (table_name, failed_column) DO UPDATE
		SET corrected_column=excluded.corrected_column,
		    updated_at=excluded.updated_at
	`, table, failedColumn, correctedColumn, time.Now().UTC())
	return err
}

// LookupLearnedMapping returns the corrected column for (table, failedColumn)
// if one has been recorded.
func (d *DB) LookupLearnedMapping(ctx context.Context, table, failedColumn string) (string, bool, error) {
	if d == nil || d.conn == nil {
		return "", false, errors.New("db required")
	}
	var corrected string
	err := d.conn.QueryRowContext(ctx, `
		SELECT corrected_column FROM learned_mappings
		WHERE table_name=$1 AND failed_column=$2
	`, strings.ToLower(strings.TrimSpace(table)), strings.ToLower(strings.TrimSpace(failedColumn))).Scan(&corrected)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return corrected, true, nil
}

// Mappings adapts the learned-mapping tables to the interface the healing
// executor consumes.
type Mappings struct {
	DB *DB
}

func (m *Mappings) Lookup(ctx context.Context, table, column string) (string, bool, error) {
	return m.DB.LookupLearnedMapping(ctx, table, column)
}

func (m *Mappings) Store(ctx context.Context, table, failedColumn, correctedColumn string) error {
	return m.DB.UpsertLearnedMapping(ctx, table, failedColumn, correctedColumn)
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"regexp"

	"github.com/lib/pq"

	"datawarden/internal/healing"
)

// QueryBackend executes governed SQL against Postgres and translates
// schema errors into the typed variants the healing loop matches on.
type QueryBackend struct {
	DB *sql.DB
}

func NewQueryBackend(d *DB) *QueryBackend {
	return &QueryBackend{DB: d.Conn()}
}

func (b *QueryBackend) Execute(ctx context.Context, query string) ([]map[string]any, error) {
	if b == nil || b.DB == nil {
		return nil, errors.New("db required")
	}
	rows, err := b.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, translateSchemaError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			// lib/pq returns text columns as []byte.
			if bs, ok := values[i].([]byte); ok {
				row[col] = string(bs)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, translateSchemaError(err)
	}
	return out, nil
}

var (
	columnMsgRe = regexp.MustCompile(`column "([^"]+)"(?: of relation "([^"]+)")? does not exist`)
	tableMsgRe  = regexp.MustCompile(`relation "([^"]+)" does not exist`)
)

// translateSchemaError maps Postgres error codes onto the healing
// package's typed errors. 42703 is undefined_column, 42P01 is
// undefined_table, 42804 and 22P02 are type errors. Anything else
// passes through unchanged.
func translateSchemaError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "42703":
		col := pqErr.Column
		table := pqErr.Table
		if m := columnMsgRe.FindStringSubmatch(pqErr.Message); m != nil {
			if col == "" {
				col = m[1]
			}
			if table == "" {
				table = m[2]
			}
		}
		return &healing.ColumnNotFoundError{Table: table, Column: col}
	case "42P01":
		table := pqErr.Table
		if m := tableMsgRe.FindStringSubmatch(pqErr.Message); m != nil && table == "" {
			table = m[1]
		}
		return &healing.TableNotFoundError{Table: table}
	case "42804", "22P02":
		return &healing.TypeMismatchError{Detail: pqErr.Message}
	}
	return err
}

package healing

import "fmt"

// Schema errors are tagged variants rather than string-matched messages so
// the healing loop can branch on them explicitly. Backends translate their
// driver errors into these types.

// ColumnNotFoundError is the only retryable schema error.
type ColumnNotFoundError struct {
	Table  string
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q does not exist", e.Column)
}

// TableNotFoundError is terminal: a missing table is never healed.
type TableNotFoundError struct {
	Table string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("table %q does not exist", e.Table)
}

// TypeMismatchError is terminal: healing cannot fix operand types.
type TypeMismatchError struct {
	Detail string
}

func (e *TypeMismatchError) Error() string {
	if e.Detail == "" {
		return "type mismatch"
	}
	return "type mismatch: " + e.Detail
}

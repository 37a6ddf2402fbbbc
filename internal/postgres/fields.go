package postgres

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"
)

// UpdateBuilder accumulates column assignments against an allow-list and
// renders one parameterized UPDATE statement. It exists so dynamic updates
// never concatenate values into SQL text.
type UpdateBuilder struct {
	table   string
	allowed map[string]struct{}
	cols    []string
	args    []any
}

// NewUpdateBuilder creates a builder for the given table. Only the listed
// columns may be assigned.
func NewUpdateBuilder(table string, allowed ...string) *UpdateBuilder {
	set := make(map[string]struct{}, len(allowed))
	for _, col := range allowed {
		set[col] = struct{}{}
	}
	return &UpdateBuilder{table: table, allowed: set}
}

// Set records an assignment for col. It rejects columns outside the
// allow-list and duplicate assignments.
func (b *UpdateBuilder) Set(col string, value any) error {
	if _, ok := b.allowed[col]; !ok {
		return errors.Errorf("column %q is not updatable on %s", col, b.table)
	}
	for _, existing := range b.cols {
		if existing == col {
			return errors.Errorf("column %q set twice", col)
		}
	}
	b.cols = append(b.cols, col)
	b.args = append(b.args, value)
	return nil
}

// SQL renders the statement with a single equality condition on keyCol. The
// returned args align with the $n placeholders in order.
func (b *UpdateBuilder) SQL(keyCol string, keyValue any) (string, []any, error) {
	if len(b.cols) == 0 {
		return "", nil, errors.New("no columns to update")
	}

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(b.table)
	sb.WriteString(" SET ")
	for i, col := range b.cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(col)
		sb.WriteString(" = $")
		sb.WriteString(strconv.Itoa(i + 1))
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(keyCol)
	sb.WriteString(" = $")
	sb.WriteString(strconv.Itoa(len(b.cols) + 1))

	args := make([]any, 0, len(b.args)+1)
	args = append(args, b.args...)
	args = append(args, keyValue)
	return sb.String(), args, nil
}

package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateBuilderSQL(t *testing.T) {
	b := NewUpdateBuilder("orders", "status", "updated_at")
	require.NoError(t, b.Set("status", "confirmed"))
	require.NoError(t, b.Set("updated_at", "2025-06-15"))

	sql, args, err := b.SQL("id", int64(42))
	require.NoError(t, err)
	assert.Equal(t, "UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3", sql)
	assert.Equal(t, []any{"confirmed", "2025-06-15", int64(42)}, args)
}

func TestUpdateBuilderSingleColumn(t *testing.T) {
	b := NewUpdateBuilder("books", "stock_quantity")
	require.NoError(t, b.Set("stock_quantity", 7))

	sql, args, err := b.SQL("id", int64(1))
	require.NoError(t, err)
	assert.Equal(t, "UPDATE books SET stock_quantity = $1 WHERE id = $2", sql)
	assert.Equal(t, []any{7, int64(1)}, args)
}

func TestUpdateBuilderRejectsUnknownColumn(t *testing.T) {
	b := NewUpdateBuilder("orders", "status")
	err := b.Set("total_amount", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not updatable")
}

func TestUpdateBuilderRejectsDuplicateColumn(t *testing.T) {
	b := NewUpdateBuilder("orders", "status")
	require.NoError(t, b.Set("status", "confirmed"))
	err := b.Set("status", "shipped")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set twice")
}

func TestUpdateBuilderEmpty(t *testing.T) {
	b := NewUpdateBuilder("orders", "status")
	_, _, err := b.SQL("id", 1)
	require.Error(t, err)
}

// Package book holds the catalog entity and its read interface. Stock is
// mutated only inside an order transaction, never through this interface.
package book

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a book does not exist in the catalog.
var ErrNotFound = errors.New("book not found")

// Book is a catalog entry. GenreID and AuthorID are nil when the book has
// not been classified yet.
type Book struct {
	ID         int64
	Title      string
	ISBN       string
	Price      decimal.Decimal
	Stock      int
	GenreID    *int64
	AuthorID   *int64
	CoverImage string
}

// Repository defines catalog reads outside the order transaction.
type Repository interface {
	List(ctx context.Context) ([]Book, error)
	GetByID(ctx context.Context, id int64) (*Book, error)
}

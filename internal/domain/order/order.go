// Package order implements the checkout core: atomic order placement with
// stock decrement and best-promotion selection.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/pageturn/bookstore/internal/domain/book"
	"github.com/pageturn/bookstore/internal/domain/promotion"
)

// Status tracks an order through its lifecycle. Only the pending state is
// ever produced here; later transitions belong to the order-management side.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered},
}

// CanTransition reports whether moving from s to next is a legal step.
// Delivered and cancelled are terminal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Sentinel errors for order validation and reads.
var (
	ErrEmptyCart              = errors.New("cart is empty")
	ErrMissingShippingAddress = errors.New("shipping address is required")
	ErrNotFound               = errors.New("order not found")
	ErrAccessDenied           = errors.New("access denied")
)

// InvalidQuantityError indicates a requested item with a non-positive quantity.
type InvalidQuantityError struct {
	BookID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for book %d", e.BookID)
}

// BookNotFoundError indicates a requested book id that does not exist.
type BookNotFoundError struct {
	BookID int64
}

func (e *BookNotFoundError) Error() string {
	return fmt.Sprintf("book %d not found", e.BookID)
}

// InsufficientStockError names the book and the quantity actually available.
type InsufficientStockError struct {
	BookID    int64
	Title     string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: %d available", e.Title, e.Available)
}

// InvalidTransitionError indicates an illegal status change.
type InvalidTransitionError struct {
	From, To Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// Item is one requested {book, quantity} pair from the client's order draft.
type Item struct {
	BookID   int64 `json:"book_id"`
	Quantity int   `json:"quantity"`
}

// Line is a persisted order line with its price snapshot. UnitPrice is the
// catalog price at order time and never changes afterwards.
type Line struct {
	BookID    int64
	Title     string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Order is a placed order with its lines attached.
type Order struct {
	ID              int64
	UserID          int64
	Total           decimal.Decimal
	Status          Status
	ShippingAddress string
	CustomerNotes   string
	PromotionID     *int64
	Discount        decimal.Decimal
	Lines           []Line
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Tx is the storage view of one in-flight order placement. Every call runs
// inside the same database transaction; BooksForUpdate must lock the rows it
// returns so resolve-then-decrement cannot race a concurrent order.
type Tx interface {
	BooksForUpdate(ctx context.Context, ids []int64) ([]book.Book, error)
	ActivePromotions(ctx context.Context, now time.Time) ([]promotion.Promotion, error)
	InsertOrder(ctx context.Context, o *Order) error
	InsertLines(ctx context.Context, orderID int64, lines []Line) error
	DecrementStock(ctx context.Context, bookID int64, quantity int) error
}

// Store persists and reads orders. InTx runs fn inside a single transaction,
// committing when fn returns nil and rolling back otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	ByUser(ctx context.Context, userID int64) ([]Order, error)
	ByID(ctx context.Context, id int64) (*Order, error)
	UpdateStatus(ctx context.Context, id int64, next Status) (*Order, error)
}

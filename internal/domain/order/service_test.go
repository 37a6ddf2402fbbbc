package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageturn/bookstore/internal/domain/book"
	"github.com/pageturn/bookstore/internal/domain/promotion"
)

// --- Mock implementations ---

type mockTx struct {
	books     []book.Book
	booksErr  error
	promos    []promotion.Promotion
	promosErr error

	insertOrderErr error
	insertLinesErr error
	decrementErr   error

	lockedIDs     []int64
	insertedOrder *Order
	insertedLines []Line
	decrements    map[int64]int
}

func (m *mockTx) BooksForUpdate(_ context.Context, ids []int64) ([]book.Book, error) {
	m.lockedIDs = ids
	return m.books, m.booksErr
}

func (m *mockTx) ActivePromotions(_ context.Context, _ time.Time) ([]promotion.Promotion, error) {
	return m.promos, m.promosErr
}

func (m *mockTx) InsertOrder(_ context.Context, o *Order) error {
	if m.insertOrderErr != nil {
		return m.insertOrderErr
	}
	o.ID = 42
	o.CreatedAt = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	o.UpdatedAt = o.CreatedAt
	m.insertedOrder = o
	return nil
}

func (m *mockTx) InsertLines(_ context.Context, _ int64, lines []Line) error {
	if m.insertLinesErr != nil {
		return m.insertLinesErr
	}
	m.insertedLines = lines
	return nil
}

func (m *mockTx) DecrementStock(_ context.Context, bookID int64, qty int) error {
	if m.decrementErr != nil {
		return m.decrementErr
	}
	if m.decrements == nil {
		m.decrements = make(map[int64]int)
	}
	m.decrements[bookID] += qty
	return nil
}

type mockStore struct {
	tx         *mockTx
	txCalls    int
	committed  bool
	rolledBack bool

	byUser    []Order
	byID      *Order
	byIDErr   error
	updateErr error
}

func (m *mockStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	m.txCalls++
	if err := fn(m.tx); err != nil {
		m.rolledBack = true
		return err
	}
	m.committed = true
	return nil
}

func (m *mockStore) ByUser(_ context.Context, _ int64) ([]Order, error) {
	return m.byUser, nil
}

func (m *mockStore) ByID(_ context.Context, _ int64) (*Order, error) {
	return m.byID, m.byIDErr
}

func (m *mockStore) UpdateStatus(_ context.Context, _ int64, _ Status) (*Order, error) {
	return nil, m.updateErr
}

// --- Helpers ---

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func i64(v int64) *int64 {
	return &v
}

func testBook(id int64, title, price string, stock int) book.Book {
	return book.Book{ID: id, Title: title, Price: dec(price), Stock: stock}
}

func validRequest(items ...Item) CreateOrderRequest {
	return CreateOrderRequest{
		UserID:          7,
		Items:           items,
		ShippingAddress: "221B Baker Street",
	}
}

// --- Tests ---

func TestCreateOrder_EmptyCart(t *testing.T) {
	store := &mockStore{tx: &mockTx{}}
	svc := NewService(store)

	_, err := svc.CreateOrder(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, store.txCalls, "no transaction may open for validation errors")
}

func TestCreateOrder_MissingShippingAddress(t *testing.T) {
	store := &mockStore{tx: &mockTx{}}
	svc := NewService(store)

	req := validRequest(Item{BookID: 1, Quantity: 1})
	req.ShippingAddress = "   "
	_, err := svc.CreateOrder(context.Background(), req)
	require.ErrorIs(t, err, ErrMissingShippingAddress)
	assert.Zero(t, store.txCalls)
}

func TestCreateOrder_InvalidQuantity(t *testing.T) {
	store := &mockStore{tx: &mockTx{}}
	svc := NewService(store)

	_, err := svc.CreateOrder(context.Background(), validRequest(Item{BookID: 3, Quantity: 0}))

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, int64(3), iqErr.BookID)
	assert.Zero(t, store.txCalls)
}

func TestCreateOrder_BookNotFound(t *testing.T) {
	store := &mockStore{tx: &mockTx{books: []book.Book{testBook(1, "Solaris", "14.00", 5)}}}
	svc := NewService(store)

	_, err := svc.CreateOrder(context.Background(),
		validRequest(Item{BookID: 1, Quantity: 1}, Item{BookID: 99, Quantity: 1}))

	var bnErr *BookNotFoundError
	require.ErrorAs(t, err, &bnErr)
	assert.Equal(t, int64(99), bnErr.BookID)
	assert.True(t, store.rolledBack)
	assert.Nil(t, store.tx.insertedOrder)
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	store := &mockStore{tx: &mockTx{books: []book.Book{testBook(2, "Solaris", "14.00", 3)}}}
	svc := NewService(store)

	_, err := svc.CreateOrder(context.Background(), validRequest(Item{BookID: 2, Quantity: 10}))

	var isErr *InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, "Solaris", isErr.Title)
	assert.Equal(t, 3, isErr.Available)
	assert.True(t, store.rolledBack)
	assert.Empty(t, store.tx.decrements)
}

func TestCreateOrder_NoPromotions(t *testing.T) {
	store := &mockStore{tx: &mockTx{books: []book.Book{testBook(1, "Earthsea", "10.00", 5)}}}
	svc := NewService(store)

	o, err := svc.CreateOrder(context.Background(), validRequest(Item{BookID: 1, Quantity: 2}))
	require.NoError(t, err)

	assert.True(t, o.Total.Equal(dec("20.00")), "total %s", o.Total)
	assert.True(t, o.Discount.IsZero())
	assert.Nil(t, o.PromotionID)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, int64(42), o.ID)
	assert.Equal(t, map[int64]int{1: 2}, store.tx.decrements)
	assert.True(t, store.committed)

	require.Len(t, o.Lines, 1)
	assert.True(t, o.Lines[0].UnitPrice.Equal(dec("10.00")))
}

func TestCreateOrder_AppliesBestPromotion(t *testing.T) {
	tx := &mockTx{
		books: []book.Book{testBook(1, "Earthsea", "50.00", 5)},
		promos: []promotion.Promotion{
			{ID: 1, Type: promotion.TypeFixed, Value: dec("15")},
			{ID: 2, Type: promotion.TypePercent, Value: dec("20")},
		},
	}
	store := &mockStore{tx: tx}
	svc := NewService(store)

	o, err := svc.CreateOrder(context.Background(), validRequest(Item{BookID: 1, Quantity: 2}))
	require.NoError(t, err)

	// Subtotal 100; 20% beats fixed 15.
	assert.True(t, o.Discount.Equal(dec("20.00")), "discount %s", o.Discount)
	assert.True(t, o.Total.Equal(dec("80.00")), "total %s", o.Total)
	require.NotNil(t, o.PromotionID)
	assert.Equal(t, int64(2), *o.PromotionID)
}

func TestCreateOrder_ConditionsFilterPromotions(t *testing.T) {
	genreFantasy := i64(1)
	tx := &mockTx{
		books: []book.Book{
			{ID: 1, Title: "Earthsea", Price: dec("30.00"), Stock: 5, GenreID: genreFantasy},
		},
		promos: []promotion.Promotion{
			{
				ID:         1,
				Type:       promotion.TypePercent,
				Value:      dec("50"),
				Conditions: promotion.Conditions{IncludeGenres: []int64{7}},
			},
		},
	}
	store := &mockStore{tx: tx}
	svc := NewService(store)

	o, err := svc.CreateOrder(context.Background(), validRequest(Item{BookID: 1, Quantity: 1}))
	require.NoError(t, err)

	assert.True(t, o.Discount.IsZero())
	assert.Nil(t, o.PromotionID)
	assert.True(t, o.Total.Equal(dec("30.00")))
}

func TestCreateOrder_PromotionLookupFailsOpen(t *testing.T) {
	tx := &mockTx{
		books:     []book.Book{testBook(1, "Earthsea", "10.00", 5)},
		promosErr: errors.New("promotions table on fire"),
	}
	store := &mockStore{tx: tx}
	svc := NewService(store)

	o, err := svc.CreateOrder(context.Background(), validRequest(Item{BookID: 1, Quantity: 1}))
	require.NoError(t, err, "promotion failure must not abort the order")

	assert.True(t, o.Discount.IsZero())
	assert.Nil(t, o.PromotionID)
	assert.True(t, o.Total.Equal(dec("10.00")))
	assert.True(t, store.committed)
}

func TestCreateOrder_MergesDuplicateBooks(t *testing.T) {
	store := &mockStore{tx: &mockTx{books: []book.Book{testBook(1, "Earthsea", "10.00", 5)}}}
	svc := NewService(store)

	o, err := svc.CreateOrder(context.Background(),
		validRequest(Item{BookID: 1, Quantity: 1}, Item{BookID: 1, Quantity: 2}))
	require.NoError(t, err)

	require.Len(t, o.Lines, 1, "one line per distinct book")
	assert.Equal(t, 3, o.Lines[0].Quantity)
	assert.Equal(t, map[int64]int{1: 3}, store.tx.decrements)
	assert.Equal(t, []int64{1}, store.tx.lockedIDs)
}

func TestCreateOrder_MergedQuantityExceedingStockFails(t *testing.T) {
	store := &mockStore{tx: &mockTx{books: []book.Book{testBook(1, "Earthsea", "10.00", 3)}}}
	svc := NewService(store)

	_, err := svc.CreateOrder(context.Background(),
		validRequest(Item{BookID: 1, Quantity: 2}, Item{BookID: 1, Quantity: 2}))

	var isErr *InsufficientStockError
	require.ErrorAs(t, err, &isErr)
}

func TestCreateOrder_InsertFailureRollsBack(t *testing.T) {
	tx := &mockTx{
		books:          []book.Book{testBook(1, "Earthsea", "10.00", 5)},
		insertOrderErr: errors.New("disk full"),
	}
	store := &mockStore{tx: tx}
	svc := NewService(store)

	_, err := svc.CreateOrder(context.Background(), validRequest(Item{BookID: 1, Quantity: 1}))
	require.Error(t, err)
	assert.True(t, store.rolledBack)
	assert.False(t, store.committed)
}

func TestCreateOrder_DecrementFailureRollsBack(t *testing.T) {
	tx := &mockTx{
		books:        []book.Book{testBook(1, "Earthsea", "10.00", 5)},
		decrementErr: errors.New("constraint violated"),
	}
	store := &mockStore{tx: tx}
	svc := NewService(store)

	_, err := svc.CreateOrder(context.Background(), validRequest(Item{BookID: 1, Quantity: 1}))
	require.Error(t, err)
	assert.True(t, store.rolledBack)
}

func TestCreateOrder_TotalNeverNegative(t *testing.T) {
	tx := &mockTx{
		books: []book.Book{testBook(1, "Earthsea", "10.00", 5)},
		promos: []promotion.Promotion{
			{ID: 1, Type: promotion.TypePercent, Value: dec("100")},
		},
	}
	store := &mockStore{tx: tx}
	svc := NewService(store)

	o, err := svc.CreateOrder(context.Background(), validRequest(Item{BookID: 1, Quantity: 1}))
	require.NoError(t, err)
	assert.True(t, o.Total.IsZero())
	assert.True(t, o.Discount.Equal(dec("10.00")))
}

func TestOrderForUser_OwnerCheck(t *testing.T) {
	owned := &Order{ID: 5, UserID: 7}
	store := &mockStore{tx: &mockTx{}, byID: owned}
	svc := NewService(store)

	o, err := svc.OrderForUser(context.Background(), 7, 5)
	require.NoError(t, err)
	assert.Equal(t, owned, o)

	_, err = svc.OrderForUser(context.Background(), 8, 5)
	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestOrderForUser_NotFound(t *testing.T) {
	store := &mockStore{tx: &mockTx{}, byIDErr: ErrNotFound}
	svc := NewService(store)

	_, err := svc.OrderForUser(context.Background(), 7, 123)
	require.ErrorIs(t, err, ErrNotFound)
}

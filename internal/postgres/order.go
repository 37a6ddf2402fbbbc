package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pageturn/bookstore/internal/domain/book"
	"github.com/pageturn/bookstore/internal/domain/order"
	"github.com/pageturn/bookstore/internal/domain/promotion"
)

const (
	booksForUpdateSQL = `SELECT id, title, COALESCE(isbn, ''), price, stock_quantity, genre_id, author_id, cover_image
		FROM books WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	insertOrderSQL = `INSERT INTO orders (user_id, total_amount, shipping_address, customer_notes, promotion_id, promotion_discount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, status, created_at, updated_at`

	decrementStockSQL = `UPDATE books SET stock_quantity = stock_quantity - $1
		WHERE id = $2 AND stock_quantity >= $1`

	ordersByUserSQL = `SELECT id, user_id, total_amount, status, shipping_address, customer_notes, promotion_id, promotion_discount, created_at, updated_at
		FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	orderByIDSQL = `SELECT id, user_id, total_amount, status, shipping_address, customer_notes, promotion_id, promotion_discount, created_at, updated_at
		FROM orders WHERE id = $1`

	orderStatusForUpdateSQL = `SELECT status FROM orders WHERE id = $1 FOR UPDATE`

	linesByOrderIDsSQL = `SELECT oi.order_id, oi.book_id, b.title, oi.quantity, oi.unit_price
		FROM order_items oi JOIN books b ON b.id = oi.book_id
		WHERE oi.order_id = ANY($1) ORDER BY oi.id`
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// InTx runs fn inside a single database transaction. The transaction commits
// when fn returns nil and rolls back otherwise, so a failed placement leaves
// no order row, no lines, and no stock change behind.
func (s *OrderStore) InTx(ctx context.Context, fn func(tx order.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&orderTx{tx: tx})
	})
}

// orderTx adapts a pgx transaction to the order.Tx interface.
type orderTx struct {
	tx pgx.Tx
}

// BooksForUpdate locks the requested book rows for the rest of the
// transaction. Rows are locked in ascending ID order so two concurrent
// orders touching the same books cannot deadlock.
func (t *orderTx) BooksForUpdate(ctx context.Context, ids []int64) ([]book.Book, error) {
	rows, err := t.tx.Query(ctx, booksForUpdateSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("locking books: %w", err)
	}
	return pgx.CollectRows(rows, scanBook)
}

// ActivePromotions lists promotions active at now, within the transaction.
func (t *orderTx) ActivePromotions(ctx context.Context, now time.Time) ([]promotion.Promotion, error) {
	return listActivePromotions(ctx, t.tx, now)
}

// InsertOrder persists the order row and fills in the generated ID, status,
// and timestamps.
func (t *orderTx) InsertOrder(ctx context.Context, o *order.Order) error {
	var status string
	err := t.tx.QueryRow(ctx, insertOrderSQL,
		o.UserID, o.Total, o.ShippingAddress, o.CustomerNotes, o.PromotionID, o.Discount,
	).Scan(&o.ID, &status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}
	o.Status = order.Status(status)
	return nil
}

// InsertLines bulk-inserts the order lines via COPY.
func (t *orderTx) InsertLines(ctx context.Context, orderID int64, lines []order.Line) error {
	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"order_items"},
		[]string{"order_id", "book_id", "quantity", "unit_price"},
		pgx.CopyFromSlice(len(lines), func(i int) ([]any, error) {
			ln := lines[i]
			return []any{orderID, ln.BookID, ln.Quantity, ln.UnitPrice}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("inserting order lines: %w", err)
	}
	return nil
}

// DecrementStock subtracts quantity from one book's stock. The WHERE guard
// and the affected-row check back up the row lock taken by BooksForUpdate;
// hitting zero rows here means the invariant was already broken.
func (t *orderTx) DecrementStock(ctx context.Context, bookID int64, quantity int) error {
	tag, err := t.tx.Exec(ctx, decrementStockSQL, quantity, bookID)
	if err != nil {
		return fmt.Errorf("decrementing stock for book %d: %w", bookID, err)
	}
	if tag.RowsAffected() != 1 {
		return errors.Errorf("stock decrement affected %d rows for book %d", tag.RowsAffected(), bookID)
	}
	return nil
}

// ByUser returns the user's orders with lines attached, newest first.
func (s *OrderStore) ByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx, ordersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %d: %w", userID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %d: %w", userID, err)
	}
	if err := s.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ByID returns a single order with lines, or order.ErrNotFound.
func (s *OrderStore) ByID(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := s.pool.Query(ctx, orderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	orders := []order.Order{o}
	if err := s.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// UpdateStatus moves the order to the next status after validating the
// transition against the current row under lock.
func (s *OrderStore) UpdateStatus(ctx context.Context, id int64, next order.Status) (*order.Order, error) {
	if !next.Valid() {
		return nil, &order.InvalidTransitionError{To: next}
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var current string
		if err := tx.QueryRow(ctx, orderStatusForUpdateSQL, id).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return order.ErrNotFound
			}
			return fmt.Errorf("reading order %d status: %w", id, err)
		}
		if !order.Status(current).CanTransition(next) {
			return &order.InvalidTransitionError{From: order.Status(current), To: next}
		}

		upd := NewUpdateBuilder("orders", "status", "updated_at")
		if err := upd.Set("status", string(next)); err != nil {
			return err
		}
		if err := upd.Set("updated_at", time.Now()); err != nil {
			return err
		}
		sql, args, err := upd.SQL("id", id)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("updating order %d status: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.ByID(ctx, id)
}

func (s *OrderStore) attachLines(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = i
	}

	rows, err := s.pool.Query(ctx, linesByOrderIDsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			ln      order.Line
		)
		if err := rows.Scan(&orderID, &ln.BookID, &ln.Title, &ln.Quantity, &ln.UnitPrice); err != nil {
			return fmt.Errorf("scanning order line: %w", err)
		}
		i := index[orderID]
		orders[i].Lines = append(orders[i].Lines, ln)
	}
	return rows.Err()
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.Total, &status, &o.ShippingAddress, &o.CustomerNotes,
		&o.PromotionID, &o.Discount, &o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}

package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pageturn/bookstore/internal/domain/promotion"
)

// CreateOrderRequest holds the client's order draft plus the authenticated
// caller's identity.
type CreateOrderRequest struct {
	UserID          int64
	Items           []Item
	ShippingAddress string
	CustomerNotes   string
}

// Service coordinates order placement and reads.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates an order Service backed by the given store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// CreateOrder validates the request, then runs the whole placement inside one
// transaction: lock and resolve book rows, select the best promotion
// (fail-open), persist the order and its lines, and decrement stock. Any
// failure after the transaction begins rolls everything back.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if strings.TrimSpace(req.ShippingAddress) == "" {
		return nil, ErrMissingShippingAddress
	}
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return nil, &InvalidQuantityError{BookID: it.BookID}
		}
	}

	items := mergeItems(req.Items)
	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.BookID
	}

	var created *Order
	err := s.store.InTx(ctx, func(tx Tx) error {
		books, err := tx.BooksForUpdate(ctx, ids)
		if err != nil {
			return errors.Wrap(err, "lock books")
		}

		lines, basket, err := resolveLines(books, items)
		if err != nil {
			return err
		}

		sel := s.selectPromotion(ctx, tx, basket)

		total := basket.Subtotal.Sub(sel.Discount)
		if total.IsNegative() {
			total = decimal.Zero
		}

		o := &Order{
			UserID:          req.UserID,
			Total:           total.Round(2),
			Status:          StatusPending,
			ShippingAddress: req.ShippingAddress,
			CustomerNotes:   req.CustomerNotes,
			Discount:        sel.Discount.Round(2),
			Lines:           lines,
		}
		if sel.Applied() {
			o.PromotionID = &sel.Promotion.ID
		}

		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		if err := tx.InsertLines(ctx, o.ID, lines); err != nil {
			return errors.Wrap(err, "insert lines")
		}
		for _, ln := range lines {
			if err := tx.DecrementStock(ctx, ln.BookID, ln.Quantity); err != nil {
				return errors.Wrapf(err, "decrement stock for book %d", ln.BookID)
			}
		}

		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// selectPromotion fetches active promotions and evaluates them against the
// basket. A failing lookup must not abort the order: the error branch logs
// and degrades to "no promotion applied".
func (s *Service) selectPromotion(ctx context.Context, tx Tx, b promotion.Basket) promotion.Selection {
	promos, err := tx.ActivePromotions(ctx, s.now())
	if err != nil {
		zctx.From(ctx).Warn("Promotion lookup failed, placing order without discount",
			zap.Error(err))
		return promotion.Selection{Discount: decimal.Zero}
	}
	return promotion.Evaluate(promos, b)
}

// OrdersByUser returns the user's orders, newest first.
func (s *Service) OrdersByUser(ctx context.Context, userID int64) ([]Order, error) {
	return s.store.ByUser(ctx, userID)
}

// OrderForUser returns a single order, enforcing that it belongs to the
// requesting user.
func (s *Service) OrderForUser(ctx context.Context, userID, orderID int64) (*Order, error) {
	o, err := s.store.ByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrAccessDenied
	}
	return o, nil
}

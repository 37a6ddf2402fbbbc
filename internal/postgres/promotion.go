package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pageturn/bookstore/internal/domain/promotion"
)

const listActivePromotionsSQL = `SELECT id, name, discount_type, discount_value, conditions, start_date, end_date, is_active, image_url
	FROM promotions
	WHERE is_active AND start_date <= $1 AND (end_date IS NULL OR end_date >= $1)
	ORDER BY id`

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// ListActive returns promotions whose active flag and date window cover now,
// ordered by ID.
func (r *PromotionRepository) ListActive(ctx context.Context, now time.Time) ([]promotion.Promotion, error) {
	return listActivePromotions(ctx, r.pool, now)
}

// querier is the subset of pgx shared by a pool and a transaction, letting
// the active-promotion listing run standalone or inside an order transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listActivePromotions(ctx context.Context, q querier, now time.Time) ([]promotion.Promotion, error) {
	rows, err := q.Query(ctx, listActivePromotionsSQL, now)
	if err != nil {
		return nil, fmt.Errorf("listing active promotions: %w", err)
	}
	return pgx.CollectRows(rows, scanPromotion)
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p          promotion.Promotion
		kind       string
		conditions []byte
	)
	err := row.Scan(
		&p.ID, &p.Name, &kind, &p.Value, &conditions,
		&p.StartDate, &p.EndDate, &p.Active, &p.ImageURL,
	)
	if err != nil {
		return p, err
	}
	p.Type = promotion.Type(kind)

	// A conditions column that fails to decode zeroes the promotion's value
	// instead of failing the whole listing: a zero discount is never selected,
	// so evaluation stays fail-open per order, not per promotion.
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &p.Conditions); err != nil {
			p.Conditions = promotion.Conditions{}
			p.Value = decimal.Zero
		}
	}
	return p, nil
}

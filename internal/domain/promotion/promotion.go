// Package promotion models storewide discount campaigns and the pure
// evaluation that picks the best one for a given order.
package promotion

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercent discounts a percentage of the order subtotal.
	TypePercent Type = "percent"
	// TypeFixed discounts a fixed amount, capped at the subtotal.
	TypeFixed Type = "fixed"
)

// Conditions is the eligibility predicate attached to a promotion. All
// present conditions must hold; a nil/empty field imposes no constraint.
type Conditions struct {
	MinTotalAmount *decimal.Decimal `json:"min_total_amount,omitempty"`
	MinItems       *int             `json:"min_items,omitempty"`
	IncludeGenres  []int64          `json:"include_genres,omitempty"`
	IncludeAuthors []int64          `json:"include_authors,omitempty"`
}

// Promotion is a discount campaign managed by the admin side; read-only here.
type Promotion struct {
	ID         int64
	Name       string
	Type       Type
	Value      decimal.Decimal
	Conditions Conditions
	StartDate  time.Time
	EndDate    *time.Time
	Active     bool
	ImageURL   string
}

// CurrentlyActive reports whether the promotion's flag and date window admit
// the given instant.
func (p *Promotion) CurrentlyActive(now time.Time) bool {
	if !p.Active || p.StartDate.After(now) {
		return false
	}
	return p.EndDate == nil || !p.EndDate.Before(now)
}

// Repository lists promotions whose active flag and date window cover now.
type Repository interface {
	ListActive(ctx context.Context, now time.Time) ([]Promotion, error)
}

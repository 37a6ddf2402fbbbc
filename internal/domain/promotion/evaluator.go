package promotion

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Basket aggregates the order properties that promotion conditions inspect.
type Basket struct {
	Subtotal  decimal.Decimal
	ItemCount int
	Genres    map[int64]struct{}
	Authors   map[int64]struct{}
}

// Selection is the outcome of evaluating promotions against a basket.
// The zero value means no promotion applies.
type Selection struct {
	Promotion *Promotion
	Discount  decimal.Decimal
}

// Applied reports whether a promotion was selected with a positive discount.
func (s Selection) Applied() bool {
	return s.Promotion != nil && s.Discount.IsPositive()
}

// Evaluate picks the eligible promotion with the strictly greatest discount.
// Candidates are folded in ascending ID order, so equal discounts resolve to
// the lowest promotion ID and repeated evaluation is deterministic. A best
// discount of zero yields an empty Selection.
func Evaluate(promos []Promotion, b Basket) Selection {
	candidates := make([]Promotion, len(promos))
	copy(candidates, promos)
	slices.SortFunc(candidates, func(a, b Promotion) int {
		return cmp.Compare(a.ID, b.ID)
	})

	best := Selection{Discount: decimal.Zero}
	for i := range candidates {
		p := &candidates[i]
		if !p.Conditions.match(b) {
			continue
		}
		if d := p.discount(b.Subtotal); d.GreaterThan(best.Discount) {
			best = Selection{Promotion: p, Discount: d}
		}
	}

	if !best.Discount.IsPositive() {
		return Selection{Discount: decimal.Zero}
	}
	return best
}

// match checks every present condition conjunctively.
func (c Conditions) match(b Basket) bool {
	if c.MinTotalAmount != nil && b.Subtotal.LessThan(*c.MinTotalAmount) {
		return false
	}
	if c.MinItems != nil && b.ItemCount < *c.MinItems {
		return false
	}
	if len(c.IncludeGenres) > 0 && !intersects(c.IncludeGenres, b.Genres) {
		return false
	}
	if len(c.IncludeAuthors) > 0 && !intersects(c.IncludeAuthors, b.Authors) {
		return false
	}
	return true
}

// discount computes the candidate discount for the given subtotal. Percent
// values are clamped to 0..100 and fixed values to [0, subtotal]; an unknown
// type yields zero and is therefore never selected.
func (p *Promotion) discount(subtotal decimal.Decimal) decimal.Decimal {
	switch p.Type {
	case TypePercent:
		pct := p.Value
		if pct.IsNegative() {
			pct = decimal.Zero
		}
		if pct.GreaterThan(hundred) {
			pct = hundred
		}
		return subtotal.Mul(pct).Div(hundred).Round(2)
	case TypeFixed:
		v := p.Value
		if v.IsNegative() {
			v = decimal.Zero
		}
		return decimal.Min(v, subtotal).Round(2)
	default:
		return decimal.Zero
	}
}

func intersects(ids []int64, set map[int64]struct{}) bool {
	for _, id := range ids {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

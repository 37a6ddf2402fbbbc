package order

import (
	"github.com/shopspring/decimal"

	"github.com/pageturn/bookstore/internal/domain/book"
	"github.com/pageturn/bookstore/internal/domain/promotion"
)

// mergeItems folds duplicate book ids into a single item, preserving the
// order in which each book first appears. Orders carry one line per distinct
// book.
func mergeItems(items []Item) []Item {
	merged := make([]Item, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, it := range items {
		if i, ok := index[it.BookID]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.BookID] = len(merged)
		merged = append(merged, it)
	}
	return merged
}

// resolveLines snapshots price and stock for each requested item against the
// locked book rows and aggregates the basket properties promotions inspect.
// It fails on the first unknown book or the first item whose quantity exceeds
// the available stock.
func resolveLines(books []book.Book, items []Item) ([]Line, promotion.Basket, error) {
	byID := make(map[int64]*book.Book, len(books))
	for i := range books {
		byID[books[i].ID] = &books[i]
	}

	basket := promotion.Basket{
		Subtotal: decimal.Zero,
		Genres:   make(map[int64]struct{}),
		Authors:  make(map[int64]struct{}),
	}

	lines := make([]Line, 0, len(items))
	for _, it := range items {
		b, ok := byID[it.BookID]
		if !ok {
			return nil, promotion.Basket{}, &BookNotFoundError{BookID: it.BookID}
		}
		if b.Stock < it.Quantity {
			return nil, promotion.Basket{}, &InsufficientStockError{
				BookID:    b.ID,
				Title:     b.Title,
				Available: b.Stock,
			}
		}

		lines = append(lines, Line{
			BookID:    b.ID,
			Title:     b.Title,
			Quantity:  it.Quantity,
			UnitPrice: b.Price,
		})

		qty := decimal.NewFromInt(int64(it.Quantity))
		basket.Subtotal = basket.Subtotal.Add(b.Price.Mul(qty))
		basket.ItemCount += it.Quantity
		if b.GenreID != nil {
			basket.Genres[*b.GenreID] = struct{}{}
		}
		if b.AuthorID != nil {
			basket.Authors[*b.AuthorID] = struct{}{}
		}
	}

	return lines, basket, nil
}

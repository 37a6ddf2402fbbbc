package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"

	"github.com/pageturn/bookstore/internal/domain/promotion"
)

// ListPromotions returns the promotions active right now, for the storefront
// banner. Conditions are echoed so the client can explain eligibility.
func (h *Handler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	promos, err := h.promotions.ListActive(r.Context(), h.now())
	if err != nil {
		writeInternalError(w, r, "cannot list promotions", err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("promotions")
	e.ArrStart()
	for i := range promos {
		encodePromotion(&e, &promos[i])
	}
	e.ArrEnd()
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

func encodePromotion(e *jx.Encoder, p *promotion.Promotion) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("discount_type")
	e.Str(string(p.Type))
	e.FieldStart("discount_value")
	e.Float64(p.Value.InexactFloat64())
	e.FieldStart("conditions")
	encodeConditions(e, p.Conditions)
	e.FieldStart("start_date")
	e.Str(p.StartDate.Format(time.RFC3339))
	if p.EndDate != nil {
		e.FieldStart("end_date")
		e.Str(p.EndDate.Format(time.RFC3339))
	}
	if p.ImageURL != "" {
		e.FieldStart("image_url")
		e.Str(p.ImageURL)
	}
	e.ObjEnd()
}

func encodeConditions(e *jx.Encoder, c promotion.Conditions) {
	e.ObjStart()
	if c.MinTotalAmount != nil {
		e.FieldStart("min_total_amount")
		e.Float64(c.MinTotalAmount.InexactFloat64())
	}
	if c.MinItems != nil {
		e.FieldStart("min_items")
		e.Int(*c.MinItems)
	}
	if len(c.IncludeGenres) > 0 {
		e.FieldStart("include_genres")
		e.ArrStart()
		for _, id := range c.IncludeGenres {
			e.Int64(id)
		}
		e.ArrEnd()
	}
	if len(c.IncludeAuthors) > 0 {
		e.FieldStart("include_authors")
		e.ArrStart()
		for _, id := range c.IncludeAuthors {
			e.Int64(id)
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}

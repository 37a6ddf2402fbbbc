package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/pageturn/bookstore/internal/domain/order"
)

// CreateOrder places an order for the authenticated user.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	req, err := decodeOrderRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed order request")
		return
	}
	req.UserID = uid

	o, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusCreated, &e)
}

// ListOrders returns the authenticated user's orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	orders, err := h.orders.OrdersByUser(r.Context(), uid)
	if err != nil {
		writeInternalError(w, r, "cannot list orders", err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orders")
	e.ArrStart()
	for i := range orders {
		encodeOrder(&e, &orders[i])
	}
	e.ArrEnd()
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// GetOrder returns one order, owner-checked.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := h.orders.OrderForUser(r.Context(), uid, id)
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
		return
	case errors.Is(err, order.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "access denied")
		return
	case err != nil:
		writeInternalError(w, r, "cannot get order", err)
		return
	}

	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusOK, &e)
}

// writeOrderError maps placement errors onto the API contract: validation
// and business-rule failures are 400, an unknown book is 404, and anything
// else is a generic 500 with no partial state behind it.
func (h *Handler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		iqErr *order.InvalidQuantityError
		bnErr *order.BookNotFoundError
		isErr *order.InsufficientStockError
	)
	switch {
	case errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrMissingShippingAddress):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &iqErr):
		writeError(w, http.StatusBadRequest, iqErr.Error())
	case errors.As(err, &isErr):
		writeError(w, http.StatusBadRequest, isErr.Error())
	case errors.As(err, &bnErr):
		writeError(w, http.StatusNotFound, bnErr.Error())
	default:
		writeInternalError(w, r, "order could not be created", err)
	}
}

func decodeOrderRequest(data []byte) (order.CreateOrderRequest, error) {
	var req order.CreateOrderRequest
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				var it order.Item
				if err := d.Obj(func(d *jx.Decoder, k string) error {
					switch k {
					case "book_id":
						v, err := d.Int64()
						it.BookID = v
						return err
					case "quantity":
						v, err := d.Int()
						it.Quantity = v
						return err
					default:
						return d.Skip()
					}
				}); err != nil {
					return err
				}
				req.Items = append(req.Items, it)
				return nil
			})
		case "shipping_address":
			v, err := d.Str()
			req.ShippingAddress = v
			return err
		case "customer_notes":
			v, err := d.Str()
			req.CustomerNotes = v
			return err
		default:
			return d.Skip()
		}
	})
	return req, err
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(o.ID)
	e.FieldStart("total_amount")
	e.Float64(o.Total.InexactFloat64())
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("applied_discount")
	e.Float64(o.Discount.InexactFloat64())
	e.FieldStart("promotion_id")
	if o.PromotionID != nil {
		e.Int64(*o.PromotionID)
	} else {
		e.Null()
	}
	e.FieldStart("shipping_address")
	e.Str(o.ShippingAddress)
	if o.CustomerNotes != "" {
		e.FieldStart("customer_notes")
		e.Str(o.CustomerNotes)
	}
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.Format(time.RFC3339))
	e.FieldStart("items")
	e.ArrStart()
	for _, ln := range o.Lines {
		e.ObjStart()
		e.FieldStart("book_id")
		e.Int64(ln.BookID)
		e.FieldStart("title")
		e.Str(ln.Title)
		e.FieldStart("quantity")
		e.Int(ln.Quantity)
		e.FieldStart("unit_price")
		e.Float64(ln.UnitPrice.InexactFloat64())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

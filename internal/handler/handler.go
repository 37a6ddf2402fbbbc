// Package handler exposes the JSON API consumed by the storefront. It is a
// thin layer: identity arrives pre-authenticated from the upstream gateway
// and all business rules live in the domain packages.
package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/pageturn/bookstore/internal/domain/book"
	"github.com/pageturn/bookstore/internal/domain/order"
	"github.com/pageturn/bookstore/internal/domain/promotion"
)

// maxBodyBytes caps request bodies; an order draft is tiny.
const maxBodyBytes = 1 << 20

// Clock returns the current time; swapped in tests.
type Clock func() time.Time

// Handler serves the storefront API.
type Handler struct {
	books      book.Repository
	promotions promotion.Repository
	orders     *order.Service
	now        Clock
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	books book.Repository,
	promotions promotion.Repository,
	orders *order.Service,
) *Handler {
	return &Handler{
		books:      books,
		promotions: promotions,
		orders:     orders,
		now:        time.Now,
	}
}

// Register attaches all API routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/books", h.ListBooks)
	mux.HandleFunc("GET /api/books/{id}", h.GetBook)
	mux.HandleFunc("GET /api/promotions", h.ListPromotions)
	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
}

// userID extracts the authenticated caller's identity. The upstream gateway
// strips any client-supplied X-User-ID and sets its own after auth.
func userID(r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read request body")
		return nil, false
	}
	return data, true
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("error")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, &e)
}

func writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg)
}

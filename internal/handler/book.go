package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/pageturn/bookstore/internal/domain/book"
)

// ListBooks returns the full catalog.
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.books.List(r.Context())
	if err != nil {
		writeInternalError(w, r, "cannot list books", err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("books")
	e.ArrStart()
	for i := range books {
		encodeBook(&e, &books[i])
	}
	e.ArrEnd()
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// GetBook returns a single catalog entry.
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid book id")
		return
	}

	b, err := h.books.GetByID(r.Context(), id)
	switch {
	case errors.Is(err, book.ErrNotFound):
		writeError(w, http.StatusNotFound, "book not found")
		return
	case err != nil:
		writeInternalError(w, r, "cannot get book", err)
		return
	}

	var e jx.Encoder
	encodeBook(&e, b)
	writeJSON(w, http.StatusOK, &e)
}

func encodeBook(e *jx.Encoder, b *book.Book) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(b.ID)
	e.FieldStart("title")
	e.Str(b.Title)
	if b.ISBN != "" {
		e.FieldStart("isbn")
		e.Str(b.ISBN)
	}
	e.FieldStart("price")
	e.Float64(b.Price.InexactFloat64())
	e.FieldStart("stock_quantity")
	e.Int(b.Stock)
	e.FieldStart("genre_id")
	encodeOptInt64(e, b.GenreID)
	e.FieldStart("author_id")
	encodeOptInt64(e, b.AuthorID)
	if b.CoverImage != "" {
		e.FieldStart("cover_image")
		e.Str(b.CoverImage)
	}
	e.ObjEnd()
}

func encodeOptInt64(e *jx.Encoder, v *int64) {
	if v == nil {
		e.Null()
		return
	}
	e.Int64(*v)
}

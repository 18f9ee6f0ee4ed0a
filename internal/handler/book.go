package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/bookworm/internal/auth"
	"github.com/sakif/bookworm/internal/repository"
	"github.com/sakif/bookworm/internal/service"
)

// BookHandler serves the book endpoints. All of them sit behind RequireAuth.
type BookHandler struct {
	books   *service.BookService
	maxBody int64
	logger  *slog.Logger
}

// NewBookHandler sizes the create body for a base64 data URL of at most
// maxUploadBytes plus the text fields.
func NewBookHandler(books *service.BookService, maxUploadBytes int64, logger *slog.Logger) *BookHandler {
	return &BookHandler{
		books:   books,
		maxBody: maxUploadBytes/3*4 + 64<<10,
		logger:  logger,
	}
}

// flexInt accepts 4 and "4"; web forms tend to send the rating as a string.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("rating %q is not a number", b)
	}
	*n = flexInt(v)
	return nil
}

type createBookRequest struct {
	Title   string  `json:"title"`
	Caption string  `json:"caption"`
	Rating  flexInt `json:"rating"`
	Image   string  `json:"image"`
}

// HandleCreate stores a new recommendation.
//
// HTTP: POST /api/books  {title, caption, rating, image} → 201 {data: book}
func (h *BookHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req createBookRequest
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	book, err := h.books.Create(r.Context(), userID, service.CreateBookInput{
		Title:   req.Title,
		Caption: req.Caption,
		Rating:  int(req.Rating),
		Image:   req.Image,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, book)
}

// HandleList returns one page of the feed.
//
// HTTP: GET /api/books?page=1&limit=10&title=dune&sort=-rating
// → {results, data: {books, currentPage, totalBooks, totalPages}}
//
// Unparseable page or limit fall back to the defaults; an unknown sort is a 400.
func (h *BookHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := repository.ListOptions{
		Page:  queryInt(q.Get("page")),
		Limit: queryInt(q.Get("limit")),
		Title: q.Get("title"),
		Sort:  q.Get("sort"),
	}

	page, err := h.books.List(r.Context(), opts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeList(w, len(page.Books), page)
}

// HandleListMine returns the caller's books, newest first.
//
// HTTP: GET /api/books/user → {results, data: [book...]}
func (h *BookHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	books, err := h.books.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeList(w, len(books), books)
}

// HandleDelete removes one of the caller's books.
//
// HTTP: DELETE /api/books/{id} → {message}
func (h *BookHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	bookID := chi.URLParam(r, "id")

	if err := h.books.Delete(r.Context(), userID, bookID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "Book deleted successfully")
}

func queryInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/biblioteca/internal/catalog"
	"github.com/hitoshi/biblioteca/internal/middleware"
	"github.com/hitoshi/biblioteca/internal/model"
)

// BookServiceInterface は書籍ハンドラーが必要とするサービスインターフェース。
type BookServiceInterface interface {
	Create(ctx context.Context, in catalog.BookInput) (*model.Book, error)
	Update(ctx context.Context, id string, in catalog.BookInput) (*model.Book, error)
	Delete(ctx context.Context, id string) error
	FindAll(ctx context.Context) ([]*model.Book, error)
	FindByID(ctx context.Context, id string) (*model.Book, error)
	FindByISBN(ctx context.Context, isbn string) (*model.Book, error)
	FindAvailable(ctx context.Context) ([]*model.Book, error)
	Search(ctx context.Context, title, author string) ([]*model.Book, error)
}

// BookHandler は蔵書管理のHTTPハンドラー。
type BookHandler struct {
	service BookServiceInterface
}

// NewBookHandler はBookHandlerを生成する。
func NewBookHandler(service BookServiceInterface) *BookHandler {
	return &BookHandler{service: service}
}

// bookIDParam はパスの書籍IDを返す。UUID形式でない場合はBOOK_NOT_FOUNDを書き込みfalseを返す。
func bookIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !isValidID(id) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewBookNotFoundError(id))
		return "", false
	}
	return id, true
}

// ListBooks は全書籍を返す。
// GET /api/books
func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.FindAll(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookResponses(books))
}

// ListAvailable は貸出可能な書籍を返す。
// GET /api/books/available
func (h *BookHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.FindAvailable(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookResponses(books))
}

// SearchBooks はタイトル・著者の部分一致で書籍を検索する。
// GET /api/books/search?title=&author=
func (h *BookHandler) SearchBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	books, err := h.service.Search(r.Context(), q.Get("title"), q.Get("author"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookResponses(books))
}

// GetBook は指定IDの書籍を返す。
// GET /api/books/{id}
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := bookIDParam(w, r)
	if !ok {
		return
	}
	book, err := h.service.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookResponse(book))
}

// GetBookByISBN はISBNで書籍を返す。
// GET /api/books/isbn/{isbn}
func (h *BookHandler) GetBookByISBN(w http.ResponseWriter, r *http.Request) {
	book, err := h.service.FindByISBN(r.Context(), chi.URLParam(r, "isbn"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookResponse(book))
}

// CreateBook は書籍を登録する。
// POST /api/books
func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var in catalog.BookInput
	if !decodeJSON(w, r, &in) {
		return
	}
	book, err := h.service.Create(r.Context(), in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookResponse(book))
}

// UpdateBook は書籍を更新する。
// PUT /api/books/{id}
func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := bookIDParam(w, r)
	if !ok {
		return
	}
	var in catalog.BookInput
	if !decodeJSON(w, r, &in) {
		return
	}
	book, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookResponse(book))
}

// DeleteBook は書籍を削除する。
// DELETE /api/books/{id}
func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := bookIDParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Routes は書籍関連のルーティングを設定したchi.Routerを返す。
func (h *BookHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListBooks)
	r.Post("/", h.CreateBook)
	r.Get("/available", h.ListAvailable)
	r.Get("/search", h.SearchBooks)
	r.Get("/isbn/{isbn}", h.GetBookByISBN)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetBook)
		r.Put("/", h.UpdateBook)
		r.Delete("/", h.DeleteBook)
	})
	return r
}

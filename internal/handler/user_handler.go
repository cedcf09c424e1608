package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/biblioteca/internal/membership"
	"github.com/hitoshi/biblioteca/internal/middleware"
	"github.com/hitoshi/biblioteca/internal/model"
)

// UserServiceInterface は利用者ハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Create(ctx context.Context, in membership.UserInput) (*model.User, error)
	Update(ctx context.Context, id string, in membership.UserInput) (*model.User, error)
	Delete(ctx context.Context, id string) error
	FindAll(ctx context.Context) ([]*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindActive(ctx context.Context) ([]*model.User, error)
	Search(ctx context.Context, query string) ([]*model.User, error)
}

// UserHandler は利用者管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

func userIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !isValidID(id) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError(id))
		return "", false
	}
	return id, true
}

// ListUsers は全利用者を返す。
// GET /api/users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.FindAll(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponses(users))
}

// ListActive は有効な利用者を返す。
// GET /api/users/active
func (h *UserHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.FindActive(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponses(users))
}

// SearchUsers は名または姓の部分一致で利用者を検索する。
// GET /api/users/search?name=
func (h *UserHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.Search(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponses(users))
}

// GetUser は指定IDの利用者を返す。
// GET /api/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	user, err := h.service.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// GetUserByEmail はメールアドレスで利用者を返す。
// GET /api/users/email/{email}
func (h *UserHandler) GetUserByEmail(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.FindByEmail(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// CreateUser は利用者を登録する。
// POST /api/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var in membership.UserInput
	if !decodeJSON(w, r, &in) {
		return
	}
	user, err := h.service.Create(r.Context(), in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// UpdateUser は利用者を更新する。
// PUT /api/users/{id}
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var in membership.UserInput
	if !decodeJSON(w, r, &in) {
		return
	}
	user, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// DeleteUser は利用者を削除する。
// DELETE /api/users/{id}
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Routes は利用者関連のルーティングを設定したchi.Routerを返す。
func (h *UserHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListUsers)
	r.Post("/", h.CreateUser)
	r.Get("/active", h.ListActive)
	r.Get("/search", h.SearchUsers)
	r.Get("/email/{email}", h.GetUserByEmail)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetUser)
		r.Put("/", h.UpdateUser)
		r.Delete("/", h.DeleteUser)
	})
	return r
}

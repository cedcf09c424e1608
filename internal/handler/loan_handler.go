package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/biblioteca/internal/lending"
	"github.com/hitoshi/biblioteca/internal/middleware"
	"github.com/hitoshi/biblioteca/internal/model"
)

// LoanServiceInterface は貸出ハンドラーが必要とするサービスインターフェース。
type LoanServiceInterface interface {
	Checkout(ctx context.Context, req lending.CheckoutRequest) (*model.Loan, error)
	ReturnLoan(ctx context.Context, loanID string) (*model.Loan, error)
	SweepOverdue(ctx context.Context) (int, error)
	FindOverdue(ctx context.Context, asOf time.Time) ([]*model.Loan, error)
	FindOverdueToday(ctx context.Context) ([]*model.Loan, error)
	FindAll(ctx context.Context) ([]*model.Loan, error)
	FindByID(ctx context.Context, loanID string) (*model.Loan, error)
	FindByUser(ctx context.Context, userID string) ([]*model.Loan, error)
	FindByBook(ctx context.Context, bookID string) ([]*model.Loan, error)
	FindActive(ctx context.Context) ([]*model.Loan, error)
}

// LoanHandler は貸出・返却のHTTPハンドラー。
type LoanHandler struct {
	service LoanServiceInterface
}

// NewLoanHandler はLoanHandlerを生成する。
func NewLoanHandler(service LoanServiceInterface) *LoanHandler {
	return &LoanHandler{service: service}
}

// checkoutRequest は貸出リクエストのボディ。日付はYYYY-MM-DD形式。
type checkoutRequest struct {
	BookID           string  `json:"book_id"`
	UserID           string  `json:"user_id"`
	ExpectReturnDate *string `json:"expect_return_date,omitempty"`
}

// sweepResponse は延滞スイープの結果。
type sweepResponse struct {
	Expired int `json:"expired"`
}

// parseDateParam はYYYY-MM-DD形式の日付を解析する。
// 失敗した場合はfieldに対する検証エラーを返す。
func parseDateParam(field, value string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, model.NewValidationError(map[string]string{
			field: "YYYY-MM-DD形式で指定してください",
		})
	}
	return d, nil
}

// Checkout は書籍を貸し出す。
// POST /api/loans
func (h *LoanHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var body checkoutRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	req := lending.CheckoutRequest{
		BookID: body.BookID,
		UserID: body.UserID,
	}
	if body.ExpectReturnDate != nil {
		d, err := parseDateParam("expect_return_date", *body.ExpectReturnDate)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		req.ExpectReturnDate = &d
	}

	loan, err := h.service.Checkout(r.Context(), req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanResponse(loan))
}

// ReturnLoan は貸出を返却する。
// POST /api/loans/{id}/return
func (h *LoanHandler) ReturnLoan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !isValidID(id) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewLoanNotFoundError(id))
		return
	}
	loan, err := h.service.ReturnLoan(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanResponse(loan))
}

// Sweep は延滞スイープを即時実行し、期限切れにした件数を返す。
// 一部の貸出で失敗した場合も、コミット済みの件数をSWEEP_INCOMPLETEの詳細に含めて返す。
// POST /api/loans/sweep
func (h *LoanHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	expired, err := h.service.SweepOverdue(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "overdue sweep finished with errors",
			slog.Int("expired", expired),
			slog.Any("error", err),
		)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewSweepIncompleteError(expired))
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{Expired: expired})
}

// ListLoans は全貸出を返す。
// GET /api/loans
func (h *LoanHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	h.writeLoans(w, r, h.service.FindAll)
}

// ListActive は有効な貸出を返す。
// GET /api/loans/active
func (h *LoanHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	h.writeLoans(w, r, h.service.FindActive)
}

// ListOverdue は延滞中の貸出を返す。as_ofが省略された場合は当日を基準にする。
// GET /api/loans/overdue?as_of=YYYY-MM-DD
func (h *LoanHandler) ListOverdue(w http.ResponseWriter, r *http.Request) {
	asOf := r.URL.Query().Get("as_of")
	if asOf == "" {
		h.writeLoans(w, r, h.service.FindOverdueToday)
		return
	}

	d, err := parseDateParam("as_of", asOf)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	h.writeLoans(w, r, func(ctx context.Context) ([]*model.Loan, error) {
		return h.service.FindOverdue(ctx, d)
	})
}

// ListByUser は利用者の貸出を返す。
// GET /api/loans/user/{userId}
func (h *LoanHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !isValidID(userID) {
		writeJSON(w, http.StatusOK, []loanResponse{})
		return
	}
	h.writeLoans(w, r, func(ctx context.Context) ([]*model.Loan, error) {
		return h.service.FindByUser(ctx, userID)
	})
}

// ListByBook は書籍の貸出を返す。
// GET /api/loans/book/{bookId}
func (h *LoanHandler) ListByBook(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookId")
	if !isValidID(bookID) {
		writeJSON(w, http.StatusOK, []loanResponse{})
		return
	}
	h.writeLoans(w, r, func(ctx context.Context) ([]*model.Loan, error) {
		return h.service.FindByBook(ctx, bookID)
	})
}

// GetLoan は指定IDの貸出を返す。
// GET /api/loans/{id}
func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !isValidID(id) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewLoanNotFoundError(id))
		return
	}
	loan, err := h.service.FindByID(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanResponse(loan))
}

func (h *LoanHandler) writeLoans(w http.ResponseWriter, r *http.Request, find func(context.Context) ([]*model.Loan, error)) {
	loans, err := find(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLoanResponses(loans))
}

// Routes は貸出関連のルーティングを設定したchi.Routerを返す。
// limitが指定された場合は貸出・返却・スイープのみに追加で適用する。
func (h *LoanHandler) Routes(limit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	writes := r.With()
	if limit != nil {
		writes = r.With(limit)
	}

	r.Get("/", h.ListLoans)
	writes.Post("/", h.Checkout)
	r.Get("/active", h.ListActive)
	r.Get("/overdue", h.ListOverdue)
	writes.Post("/sweep", h.Sweep)
	r.Get("/user/{userId}", h.ListByUser)
	r.Get("/book/{bookId}", h.ListByBook)
	r.Get("/{id}", h.GetLoan)
	writes.Post("/{id}/return", h.ReturnLoan)
	return r
}

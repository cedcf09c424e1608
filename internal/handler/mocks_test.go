package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/biblioteca/internal/catalog"
	"github.com/hitoshi/biblioteca/internal/lending"
	"github.com/hitoshi/biblioteca/internal/membership"
	"github.com/hitoshi/biblioteca/internal/middleware"
	"github.com/hitoshi/biblioteca/internal/model"
)

// --- モック定義 ---

// mockBookService はBookServiceInterfaceのモック実装。
type mockBookService struct {
	createFn        func(ctx context.Context, in catalog.BookInput) (*model.Book, error)
	updateFn        func(ctx context.Context, id string, in catalog.BookInput) (*model.Book, error)
	deleteFn        func(ctx context.Context, id string) error
	findAllFn       func(ctx context.Context) ([]*model.Book, error)
	findByIDFn      func(ctx context.Context, id string) (*model.Book, error)
	findByISBNFn    func(ctx context.Context, isbn string) (*model.Book, error)
	findAvailableFn func(ctx context.Context) ([]*model.Book, error)
	searchFn        func(ctx context.Context, title, author string) ([]*model.Book, error)
}

func (m *mockBookService) Create(ctx context.Context, in catalog.BookInput) (*model.Book, error) {
	return m.createFn(ctx, in)
}
func (m *mockBookService) Update(ctx context.Context, id string, in catalog.BookInput) (*model.Book, error) {
	return m.updateFn(ctx, id, in)
}
func (m *mockBookService) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}
func (m *mockBookService) FindAll(ctx context.Context) ([]*model.Book, error) {
	return m.findAllFn(ctx)
}
func (m *mockBookService) FindByID(ctx context.Context, id string) (*model.Book, error) {
	return m.findByIDFn(ctx, id)
}
func (m *mockBookService) FindByISBN(ctx context.Context, isbn string) (*model.Book, error) {
	return m.findByISBNFn(ctx, isbn)
}
func (m *mockBookService) FindAvailable(ctx context.Context) ([]*model.Book, error) {
	return m.findAvailableFn(ctx)
}
func (m *mockBookService) Search(ctx context.Context, title, author string) ([]*model.Book, error) {
	return m.searchFn(ctx, title, author)
}

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	createFn      func(ctx context.Context, in membership.UserInput) (*model.User, error)
	updateFn      func(ctx context.Context, id string, in membership.UserInput) (*model.User, error)
	deleteFn      func(ctx context.Context, id string) error
	findAllFn     func(ctx context.Context) ([]*model.User, error)
	findByIDFn    func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	findActiveFn  func(ctx context.Context) ([]*model.User, error)
	searchFn      func(ctx context.Context, query string) ([]*model.User, error)
}

func (m *mockUserService) Create(ctx context.Context, in membership.UserInput) (*model.User, error) {
	return m.createFn(ctx, in)
}
func (m *mockUserService) Update(ctx context.Context, id string, in membership.UserInput) (*model.User, error) {
	return m.updateFn(ctx, id, in)
}
func (m *mockUserService) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}
func (m *mockUserService) FindAll(ctx context.Context) ([]*model.User, error) {
	return m.findAllFn(ctx)
}
func (m *mockUserService) FindByID(ctx context.Context, id string) (*model.User, error) {
	return m.findByIDFn(ctx, id)
}
func (m *mockUserService) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return m.findByEmailFn(ctx, email)
}
func (m *mockUserService) FindActive(ctx context.Context) ([]*model.User, error) {
	return m.findActiveFn(ctx)
}
func (m *mockUserService) Search(ctx context.Context, query string) ([]*model.User, error) {
	return m.searchFn(ctx, query)
}

// mockLoanService はLoanServiceInterfaceのモック実装。
type mockLoanService struct {
	checkoutFn         func(ctx context.Context, req lending.CheckoutRequest) (*model.Loan, error)
	returnLoanFn       func(ctx context.Context, loanID string) (*model.Loan, error)
	sweepOverdueFn     func(ctx context.Context) (int, error)
	findOverdueFn      func(ctx context.Context, asOf time.Time) ([]*model.Loan, error)
	findOverdueTodayFn func(ctx context.Context) ([]*model.Loan, error)
	findAllFn          func(ctx context.Context) ([]*model.Loan, error)
	findByIDFn         func(ctx context.Context, loanID string) (*model.Loan, error)
	findByUserFn       func(ctx context.Context, userID string) ([]*model.Loan, error)
	findByBookFn       func(ctx context.Context, bookID string) ([]*model.Loan, error)
	findActiveFn       func(ctx context.Context) ([]*model.Loan, error)
}

func (m *mockLoanService) Checkout(ctx context.Context, req lending.CheckoutRequest) (*model.Loan, error) {
	return m.checkoutFn(ctx, req)
}
func (m *mockLoanService) ReturnLoan(ctx context.Context, loanID string) (*model.Loan, error) {
	return m.returnLoanFn(ctx, loanID)
}
func (m *mockLoanService) SweepOverdue(ctx context.Context) (int, error) {
	return m.sweepOverdueFn(ctx)
}
func (m *mockLoanService) FindOverdue(ctx context.Context, asOf time.Time) ([]*model.Loan, error) {
	return m.findOverdueFn(ctx, asOf)
}
func (m *mockLoanService) FindOverdueToday(ctx context.Context) ([]*model.Loan, error) {
	return m.findOverdueTodayFn(ctx)
}
func (m *mockLoanService) FindAll(ctx context.Context) ([]*model.Loan, error) {
	return m.findAllFn(ctx)
}
func (m *mockLoanService) FindByID(ctx context.Context, loanID string) (*model.Loan, error) {
	return m.findByIDFn(ctx, loanID)
}
func (m *mockLoanService) FindByUser(ctx context.Context, userID string) ([]*model.Loan, error) {
	return m.findByUserFn(ctx, userID)
}
func (m *mockLoanService) FindByBook(ctx context.Context, bookID string) ([]*model.Loan, error) {
	return m.findByBookFn(ctx, bookID)
}
func (m *mockLoanService) FindActive(ctx context.Context) ([]*model.Loan, error) {
	return m.findActiveFn(ctx)
}

// --- テストヘルパー ---

const (
	testBookID = "6f1c2a0e-3b4d-4c5e-8f90-1a2b3c4d5e6f"
	testUserID = "0b9f8e7d-6c5b-4a39-8281-7f6e5d4c3b2a"
	testLoanID = "c3d4e5f6-a7b8-4c9d-8e0f-112233445566"
)

// newTestRouter はモックサービスで構成したルーターを返す。nilのサービスは空のモックになる。
func newTestRouter(books *mockBookService, users *mockUserService, loans *mockLoanService) http.Handler {
	if books == nil {
		books = &mockBookService{}
	}
	if users == nil {
		users = &mockUserService{}
	}
	if loans == nil {
		loans = &mockLoanService{}
	}
	return NewRouter(&RouterDeps{
		CORSAllowedOrigin: "http://localhost:3000",
		BookService:       books,
		UserService:       users,
		LoanService:       loans,
	})
}

// serve はルーターにリクエストを送りレスポンスを返す。
func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// parseErrorBody はレスポンスボディを統一エラーフォーマットとしてパースする。
func parseErrorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

// assertError はステータスコードとエラーコードを検証する。
func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Errorf("status = %d, want %d (body: %s)", w.Code, status, w.Body.String())
	}
	if body := parseErrorBody(t, w); body.Code != code {
		t.Errorf("code = %q, want %q", body.Code, code)
	}
}

func strPtr(s string) *string { return &s }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

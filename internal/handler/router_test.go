package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/biblioteca/internal/lending"
	"github.com/hitoshi/biblioteca/internal/middleware"
	"github.com/hitoshi/biblioteca/internal/model"
)

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		err    error
		status int
	}{
		{"root ok", "/health", nil, http.StatusOK},
		{"api ok", "/api/health", nil, http.StatusOK},
		{"db down", "/api/health", errors.New("connection refused"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(&RouterDeps{
				HealthChecker: &mockHealthChecker{err: tt.err},
			})

			w := serve(router, http.MethodGet, tt.path, "")
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := NewRouter(&RouterDeps{
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# metrics"))
		}),
	})

	w := serve(router, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "# metrics" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestRouter_AppliesSecurityAndCORSHeaders(t *testing.T) {
	router := newTestRouter(nil, nil, nil)

	w := serve(router, http.MethodOptions, "/api/books", "")

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

func TestRouter_RecoversFromPanic(t *testing.T) {
	svc := &mockBookService{
		findAllFn: func(ctx context.Context) ([]*model.Book, error) {
			panic("unexpected")
		},
	}
	router := newTestRouter(svc, nil, nil)

	w := serve(router, http.MethodGet, "/api/books", "")

	assertError(t, w, http.StatusInternalServerError, "INTERNAL_ERROR")
}

func TestRouter_LendingRateLimitOnlyAppliesToWrites(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     100,
		GeneralBurst:    100,
		LendingRate:     1,
		LendingBurst:    1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	loans := &mockLoanService{
		checkoutFn: func(ctx context.Context, req lending.CheckoutRequest) (*model.Loan, error) {
			return sampleLoan(), nil
		},
		findAllFn: func(ctx context.Context) ([]*model.Loan, error) {
			return nil, nil
		},
	}
	router := NewRouter(&RouterDeps{
		RateLimiter: rl,
		BookService: &mockBookService{},
		UserService: &mockUserService{},
		LoanService: loans,
	})

	body := `{"book_id":"` + testBookID + `","user_id":"` + testUserID + `"}`
	if w := serve(router, http.MethodPost, "/api/loans", body); w.Code != http.StatusCreated {
		t.Fatalf("first checkout: status = %d, want %d", w.Code, http.StatusCreated)
	}
	if w := serve(router, http.MethodPost, "/api/loans", body); w.Code != http.StatusTooManyRequests {
		t.Errorf("second checkout: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	// 読み取りは貸出用のレート制限を受けない
	for i := 0; i < 3; i++ {
		if w := serve(router, http.MethodGet, "/api/loans", ""); w.Code != http.StatusOK {
			t.Errorf("list %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRouter_RealIPHeaderSeparatesClients(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    1,
		LendingRate:     1,
		LendingBurst:    1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	books := &mockBookService{
		findAllFn: func(ctx context.Context) ([]*model.Book, error) {
			return nil, nil
		},
	}
	router := NewRouter(&RouterDeps{RateLimiter: rl, BookService: books})

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
		req.Header.Set("X-Real-IP", ip)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("198.51.100.1"); code != http.StatusOK {
		t.Errorf("client 1 first: status = %d, want %d", code, http.StatusOK)
	}
	if code := send("198.51.100.1"); code != http.StatusTooManyRequests {
		t.Errorf("client 1 second: status = %d, want %d", code, http.StatusTooManyRequests)
	}
	if code := send("198.51.100.2"); code != http.StatusOK {
		t.Errorf("client 2 first: status = %d, want %d", code, http.StatusOK)
	}
}

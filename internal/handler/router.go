package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/biblioteca/internal/metrics"
	"github.com/hitoshi/biblioteca/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector

	// ヘルスチェック・メトリクス公開
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ドメインサービス
	BookService BookServiceInterface
	UserService UserServiceInterface
	LoanService LoanServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → Logging → SecurityHeaders → CORS → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	health := NewHealthHandler(deps.HealthChecker)
	r.Get("/health", health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	bookHandler := NewBookHandler(deps.BookService)
	userHandler := NewUserHandler(deps.UserService)
	loanHandler := NewLoanHandler(deps.LoanService)

	r.Route("/api", func(r chi.Router) {
		var lendingLimit func(http.Handler) http.Handler
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
			lendingLimit = deps.RateLimiter.LendingMiddleware()
		}

		r.Get("/health", health)
		r.Mount("/books", bookHandler.Routes())
		r.Mount("/users", userHandler.Routes())
		r.Mount("/loans", loanHandler.Routes(lendingLimit))
	})

	return r
}

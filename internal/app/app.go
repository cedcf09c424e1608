// Package app はサブコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/biblioteca/internal/catalog"
	"github.com/hitoshi/biblioteca/internal/config"
	"github.com/hitoshi/biblioteca/internal/database"
	"github.com/hitoshi/biblioteca/internal/handler"
	"github.com/hitoshi/biblioteca/internal/lending"
	"github.com/hitoshi/biblioteca/internal/logger"
	"github.com/hitoshi/biblioteca/internal/membership"
	"github.com/hitoshi/biblioteca/internal/metrics"
	"github.com/hitoshi/biblioteca/internal/middleware"
	"github.com/hitoshi/biblioteca/internal/repository"
	"github.com/hitoshi/biblioteca/internal/security"
	"github.com/hitoshi/biblioteca/internal/validation"
	"github.com/hitoshi/biblioteca/internal/worker/overdue"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.Int("loan_period_days", cfg.LoanPeriodDays),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSweep:
		return runSweep(cfg)
	default:
		return runServe(cfg)
	}
}

// services はワイヤリング済みのドメインサービス群。
type services struct {
	books *catalog.Service
	users *membership.Service
	loans *lending.Service
}

// newServices はDB接続からリポジトリとドメインサービスを組み立てる。
func newServices(db *sql.DB, cfg *config.Config, collector metrics.MetricsCollector, log *slog.Logger) *services {
	bookRepo := repository.NewPostgresBookRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)
	loanRepo := repository.NewPostgresLoanRepo(db)
	store := repository.NewPostgresLendingStore(db)

	v := validation.New()
	sanitizer := security.NewTextSanitizer()

	return &services{
		books: catalog.NewService(bookRepo, store, loanRepo, v, sanitizer, log, nil),
		users: membership.NewService(userRepo, loanRepo, v, sanitizer, log, nil),
		loans: lending.NewService(store, loanRepo, v, collector, log, lending.ServiceConfig{
			LoanDays: cfg.LoanPeriodDays,
		}),
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newMetrics はプロセス単位のレジストリにランタイムメトリクスとドメインメトリクスを登録する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクスとドメインサービスの初期化
	reg, collector := newMetrics()
	svc := newServices(db, cfg, collector, slog.Default())

	// 3. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLending),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Metrics:           collector,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		BookService: svc.books,
		UserService: svc.users,
		LoanService: svc.loans,
	})

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、延滞スイープのスケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. 貸出サービスの初期化
	_, collector := newMetrics()
	svc := newServices(db, cfg, collector, slog.Default())

	// 3. シグナルでキャンセルされるコンテキスト
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.OverdueSweepInterval),
	)

	// 4. スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler := overdue.NewScheduler(svc.loans, slog.Default())
	scheduler.Start(ctx, cfg.OverdueSweepInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runSweep は延滞スイープを1回実行して終了する。
// 一部の貸出で失敗した場合はエラーを返し、終了コードで呼び出し元に通知する。
func runSweep(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	_, collector := newMetrics()
	svc := newServices(db, cfg, collector, slog.Default())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	expired, err := overdue.NewScheduler(svc.loans, slog.Default()).RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("overdue sweep failed after expiring %d loans: %w", expired, err)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/health", port))
}

func checkHealth(endpoint string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// 解析できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}

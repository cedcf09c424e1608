// Package lending は貸出ライフサイクル（貸出・返却・延滞スイープ）のドメインロジックを提供する。
//
// 書籍と貸出をまたぐ更新はrepository.LendingStoreのトランザクション内で行い、
// 書籍のavailableフラグと有効な貸出の有無を常に一致させる。
package lending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/biblioteca/internal/metrics"
	"github.com/hitoshi/biblioteca/internal/model"
	"github.com/hitoshi/biblioteca/internal/repository"
	"github.com/hitoshi/biblioteca/internal/validation"
)

// CheckoutRequest は貸出の要求。
// ExpectReturnDateを省略した場合は貸出日から既定の貸出日数後となる。
type CheckoutRequest struct {
	BookID           string     `json:"book_id" validate:"required,uuid"`
	UserID           string     `json:"user_id" validate:"required,uuid"`
	ExpectReturnDate *time.Time `json:"expect_return_date,omitempty"`
}

// ServiceConfig はServiceの設定。
type ServiceConfig struct {
	// LoanDays は返却予定日を省略した場合の貸出日数。0以下の場合はmodel.DefaultLoanDays。
	LoanDays int
	// Now は現在時刻を返す。nilの場合はtime.Now。
	Now func() time.Time
}

// Service は貸出ライフサイクルのサービス層。
type Service struct {
	store     repository.LendingStore
	loanRepo  repository.LoanRepository
	validator *validation.Validator
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	loanDays  int
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	store repository.LendingStore,
	loanRepo repository.LoanRepository,
	validator *validation.Validator,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg ServiceConfig,
) *Service {
	if cfg.LoanDays <= 0 {
		cfg.LoanDays = model.DefaultLoanDays
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:     store,
		loanRepo:  loanRepo,
		validator: validator,
		metrics:   collector,
		logger:    logger,
		loanDays:  cfg.LoanDays,
		now:       cfg.Now,
	}
}

// today は注入された時計に基づく本日の暦日を返す。
func (s *Service) today() time.Time {
	return model.Date(s.now())
}

// Checkout は書籍を利用者に貸し出す。
//
// 書籍の行をロックしたうえで、書籍が存在しavailable=trueであること、
// 有効な貸出が0件であることを確認し、書籍を貸出不可にして貸出を作成する。
// 書籍が存在しない場合も貸出不可として扱う。
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*model.Loan, error) {
	loan, err := s.checkout(ctx, req)
	if err != nil {
		if code := apiErrorCode(err); code != "" {
			s.metrics.RecordCheckoutRejected(code)
		}
		return nil, err
	}

	s.metrics.RecordCheckout()
	s.logger.Info("貸出を作成しました",
		slog.String("loan_id", loan.ID),
		slog.String("book_id", loan.BookID),
		slog.String("user_id", loan.UserID),
		slog.String("expect_return_date", loan.ExpectReturnDate.Format(time.DateOnly)),
	)
	return loan, nil
}

func (s *Service) checkout(ctx context.Context, req CheckoutRequest) (*model.Loan, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	today := s.today()
	expect := today.AddDate(0, 0, s.loanDays)
	if req.ExpectReturnDate != nil {
		expect = model.Date(*req.ExpectReturnDate)
		if expect.Before(today) {
			return nil, model.NewInvalidReturnDateError()
		}
	}

	loan := &model.Loan{
		ID:               uuid.NewString(),
		BookID:           req.BookID,
		UserID:           req.UserID,
		LoanDate:         today,
		ExpectReturnDate: expect,
		Status:           model.LoanStatusActive,
	}

	err := s.store.InTx(ctx, func(tx repository.LendingTx) error {
		book, err := tx.GetBookForUpdate(ctx, req.BookID)
		if err != nil {
			return fmt.Errorf("書籍の取得に失敗しました: %w", err)
		}
		if book == nil || !book.Available {
			return model.NewBookUnavailableError(req.BookID)
		}

		// availableフラグとは独立に、有効な貸出の件数を確認する
		active, err := tx.CountActiveLoansForBook(ctx, book.ID)
		if err != nil {
			return fmt.Errorf("有効な貸出件数の取得に失敗しました: %w", err)
		}
		if active > 0 {
			return model.NewBookAlreadyOnLoanError(book.ID)
		}

		user, err := tx.GetUser(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("利用者の取得に失敗しました: %w", err)
		}
		if user == nil {
			return model.NewUserNotFoundError(req.UserID)
		}

		book.Available = false
		if err := tx.SaveBook(ctx, book); err != nil {
			return fmt.Errorf("書籍の更新に失敗しました: %w", err)
		}

		if err := tx.CreateLoan(ctx, loan); err != nil {
			if errors.Is(err, repository.ErrUniqueViolation) {
				return model.NewBookAlreadyOnLoanError(book.ID)
			}
			return fmt.Errorf("貸出の作成に失敗しました: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// ReturnLoan は有効な貸出を返却済みにし、書籍を貸出可能に戻す。
// 返却済み・期限切れの貸出に対する返却は拒否する。
func (s *Service) ReturnLoan(ctx context.Context, loanID string) (*model.Loan, error) {
	loan, err := s.returnLoan(ctx, loanID)
	if err != nil {
		if code := apiErrorCode(err); code != "" {
			s.metrics.RecordReturnRejected(code)
		}
		return nil, err
	}

	s.metrics.RecordReturn()
	s.logger.Info("貸出を返却しました",
		slog.String("loan_id", loan.ID),
		slog.String("book_id", loan.BookID),
		slog.Bool("overdue", loan.ActualReturnDate.After(loan.ExpectReturnDate)),
	)
	return loan, nil
}

func (s *Service) returnLoan(ctx context.Context, loanID string) (*model.Loan, error) {
	today := s.today()

	var returned *model.Loan
	err := s.store.InTx(ctx, func(tx repository.LendingTx) error {
		loan, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return fmt.Errorf("貸出の取得に失敗しました: %w", err)
		}
		if loan == nil {
			return model.NewLoanNotFoundError(loanID)
		}
		if loan.Status != model.LoanStatusActive {
			return model.NewLoanNotActiveError(loanID, loan.Status)
		}

		book, err := tx.GetBookForUpdate(ctx, loan.BookID)
		if err != nil {
			return fmt.Errorf("書籍の取得に失敗しました: %w", err)
		}
		if book == nil {
			return fmt.Errorf("貸出 %s が参照する書籍 %s が存在しません", loan.ID, loan.BookID)
		}

		loan.ActualReturnDate = &today
		loan.Status = model.LoanStatusReturned
		if err := tx.SaveLoan(ctx, loan); err != nil {
			if errors.Is(err, repository.ErrStaleLoan) {
				return model.NewLoanNotActiveError(loanID, model.LoanStatusExpired)
			}
			return fmt.Errorf("貸出の更新に失敗しました: %w", err)
		}

		book.Available = true
		if err := tx.SaveBook(ctx, book); err != nil {
			return fmt.Errorf("書籍の更新に失敗しました: %w", err)
		}

		returned = loan
		return nil
	})
	if err != nil {
		return nil, err
	}
	return returned, nil
}

// SweepOverdue は返却予定日を過ぎた有効な貸出をEXPIREDに遷移させ、遷移した件数を返す。
//
// 貸出ごとに個別のトランザクションで状態を再確認し、並行する返却が先に
// コミットされた貸出は遷移させない。書籍のavailableフラグは変更しない。
// 同じ日に再実行しても追加の遷移は発生しない。
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	start := time.Now()
	today := s.today()

	candidates, err := s.loanRepo.FindActiveOverdue(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("延滞貸出の取得に失敗しました: %w", err)
	}

	var (
		expired int
		errs    []error
	)
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		ok, err := s.expire(ctx, candidate.ID, today)
		if err != nil {
			s.logger.Error("貸出の期限切れ処理に失敗しました",
				slog.String("loan_id", candidate.ID),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		if ok {
			expired++
		}
	}

	s.metrics.RecordLoansExpired(expired)
	s.metrics.RecordSweepDuration(time.Since(start))
	s.logger.Info("延滞スイープが完了しました",
		slog.Int("candidates", len(candidates)),
		slog.Int("expired_count", expired),
		slog.Int("error_count", len(errs)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return expired, errors.Join(errs...)
}

// expire は1件の貸出をロックして再確認し、まだ有効かつ延滞している場合のみEXPIREDにする。
func (s *Service) expire(ctx context.Context, loanID string, today time.Time) (bool, error) {
	var transitioned bool
	err := s.store.InTx(ctx, func(tx repository.LendingTx) error {
		loan, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return fmt.Errorf("貸出の取得に失敗しました: %w", err)
		}
		if loan == nil || !loan.IsOverdue(today) {
			return nil
		}

		loan.Status = model.LoanStatusExpired
		if err := tx.SaveLoan(ctx, loan); err != nil {
			if errors.Is(err, repository.ErrStaleLoan) {
				return nil
			}
			return fmt.Errorf("貸出の更新に失敗しました: %w", err)
		}
		transitioned = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return transitioned, nil
}

// FindOverdue はasOf時点で返却予定日を過ぎた有効な貸出を返す。
func (s *Service) FindOverdue(ctx context.Context, asOf time.Time) ([]*model.Loan, error) {
	loans, err := s.loanRepo.FindActiveOverdue(ctx, model.Date(asOf))
	if err != nil {
		return nil, fmt.Errorf("延滞貸出の取得に失敗しました: %w", err)
	}
	return loans, nil
}

// FindOverdueToday は本日時点で延滞している有効な貸出を返す。
func (s *Service) FindOverdueToday(ctx context.Context) ([]*model.Loan, error) {
	return s.FindOverdue(ctx, s.now())
}

// FindAll は全貸出を返す。
func (s *Service) FindAll(ctx context.Context) ([]*model.Loan, error) {
	loans, err := s.loanRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("貸出一覧の取得に失敗しました: %w", err)
	}
	return loans, nil
}

// FindByID は指定IDの貸出を返す。存在しない場合はLOAN_NOT_FOUNDを返す。
func (s *Service) FindByID(ctx context.Context, loanID string) (*model.Loan, error) {
	loan, err := s.loanRepo.FindByID(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("貸出の取得に失敗しました: %w", err)
	}
	if loan == nil {
		return nil, model.NewLoanNotFoundError(loanID)
	}
	return loan, nil
}

// FindByUser は利用者の貸出を返す。
func (s *Service) FindByUser(ctx context.Context, userID string) ([]*model.Loan, error) {
	loans, err := s.loanRepo.FindByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("利用者の貸出の取得に失敗しました: %w", err)
	}
	return loans, nil
}

// FindByBook は書籍の貸出を返す。
func (s *Service) FindByBook(ctx context.Context, bookID string) ([]*model.Loan, error) {
	loans, err := s.loanRepo.FindByBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("書籍の貸出の取得に失敗しました: %w", err)
	}
	return loans, nil
}

// FindActive は有効な貸出を返す。
func (s *Service) FindActive(ctx context.Context) ([]*model.Loan, error) {
	loans, err := s.loanRepo.FindByStatus(ctx, model.LoanStatusActive)
	if err != nil {
		return nil, fmt.Errorf("有効な貸出の取得に失敗しました: %w", err)
	}
	return loans, nil
}

func apiErrorCode(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// Package membership は利用者の登録・更新・削除・検索を提供する。
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/biblioteca/internal/model"
	"github.com/hitoshi/biblioteca/internal/repository"
	"github.com/hitoshi/biblioteca/internal/security"
	"github.com/hitoshi/biblioteca/internal/validation"
)

// UserInput は利用者の登録・更新の入力。
type UserInput struct {
	Name     string  `json:"name" validate:"required,max=100"`
	LastName string  `json:"last_name" validate:"required,max=100"`
	Email    string  `json:"email" validate:"required,email,max=150"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,max=20"`
	// Active は未指定の場合、登録時はtrue、更新時は現在値を維持する。
	Active *bool `json:"active,omitempty"`
}

// ActiveLoanCounter は利用者の有効な貸出の件数を返すインターフェース。
type ActiveLoanCounter interface {
	CountActiveByUser(ctx context.Context, userID string) (int, error)
}

// Service は利用者管理のサービス層。
type Service struct {
	userRepo  repository.UserRepository
	loans     ActiveLoanCounter
	validator *validation.Validator
	sanitizer security.TextSanitizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	loans ActiveLoanCounter,
	validator *validation.Validator,
	sanitizer security.TextSanitizer,
	logger *slog.Logger,
	now func() time.Time,
) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		userRepo:  userRepo,
		loans:     loans,
		validator: validator,
		sanitizer: sanitizer,
		logger:    logger,
		now:       now,
	}
}

// NormalizeEmail はメールアドレスの前後の空白を除き小文字に変換する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) normalize(in UserInput) (UserInput, error) {
	in.Name = s.sanitizer.Clean(in.Name)
	in.LastName = s.sanitizer.Clean(in.LastName)
	in.Email = NormalizeEmail(in.Email)
	in.Phone = s.sanitizer.CleanPtr(in.Phone)
	if err := s.validator.Validate(in); err != nil {
		return in, err
	}
	return in, nil
}

// ensureEmailFree はメールアドレスが他の利用者（exceptID以外）に使われていないことを確認する。
func (s *Service) ensureEmailFree(ctx context.Context, email, exceptID string) error {
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("メールアドレスの重複確認に失敗しました: %w", err)
	}
	if existing != nil && existing.ID != exceptID {
		return model.NewEmailAlreadyExistsError(email)
	}
	return nil
}

// Create は利用者を登録する。
// メールアドレスは大文字小文字を区別せず一意であり、重複時はEMAIL_ALREADY_EXISTSを返す。
func (s *Service) Create(ctx context.Context, in UserInput) (*model.User, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, in.Email, ""); err != nil {
		return nil, err
	}

	user := &model.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		LastName:     in.LastName,
		Email:        in.Email,
		Phone:        in.Phone,
		RegisteredAt: model.Date(s.now()),
		Active:       true,
	}
	if in.Active != nil {
		user.Active = *in.Active
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, model.NewEmailAlreadyExistsError(in.Email)
		}
		return nil, fmt.Errorf("利用者の登録に失敗しました: %w", err)
	}

	s.logger.Info("利用者を登録しました", slog.String("user_id", user.ID))
	return user, nil
}

// Update は利用者の可変フィールドを上書きする。IDと登録日は変更しない。
func (s *Service) Update(ctx context.Context, id string, in UserInput) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("利用者の取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(id)
	}

	in, err = s.normalize(in)
	if err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, in.Email, id); err != nil {
		return nil, err
	}

	user.Name = in.Name
	user.LastName = in.LastName
	user.Email = in.Email
	user.Phone = in.Phone
	if in.Active != nil {
		user.Active = *in.Active
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, model.NewEmailAlreadyExistsError(in.Email)
		}
		return nil, fmt.Errorf("利用者の更新に失敗しました: %w", err)
	}
	return user, nil
}

// Delete は利用者を削除する。
// 有効な貸出がある場合はUSER_HAS_ACTIVE_LOANS、過去の貸出記録から参照されている場合は
// HAS_LOAN_HISTORYを返す。
func (s *Service) Delete(ctx context.Context, id string) error {
	exists, err := s.userRepo.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("利用者の存在確認に失敗しました: %w", err)
	}
	if !exists {
		return model.NewUserNotFoundError(id)
	}

	active, err := s.loans.CountActiveByUser(ctx, id)
	if err != nil {
		return fmt.Errorf("有効な貸出件数の取得に失敗しました: %w", err)
	}
	if active > 0 {
		return model.NewUserHasActiveLoansError(id)
	}

	if err := s.userRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrReferenced) {
			return model.NewHasLoanHistoryError(id)
		}
		return fmt.Errorf("利用者の削除に失敗しました: %w", err)
	}

	s.logger.Info("利用者を削除しました", slog.String("user_id", id))
	return nil
}

// FindAll は全利用者を返す。
func (s *Service) FindAll(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("利用者一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// FindByID は指定IDの利用者を返す。存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("利用者の取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(id)
	}
	return user, nil
}

// FindByEmail はメールアドレス（大文字小文字を区別しない）で利用者を返す。
func (s *Service) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	normalized := NormalizeEmail(email)
	user, err := s.userRepo.FindByEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("利用者の取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(normalized)
	}
	return user, nil
}

// FindActive は有効な利用者を返す。
func (s *Service) FindActive(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("有効な利用者の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Search は名または姓の部分一致で利用者を検索する。queryが空の場合は全利用者を返す。
func (s *Service) Search(ctx context.Context, query string) ([]*model.User, error) {
	query = s.sanitizer.Clean(query)
	if query == "" {
		return s.FindAll(ctx)
	}
	users, err := s.userRepo.SearchByNameOrLastName(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("利用者の検索に失敗しました: %w", err)
	}
	return users, nil
}

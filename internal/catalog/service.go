// Package catalog は蔵書管理（書籍の登録・更新・削除・検索）のドメインロジックを提供する。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/biblioteca/internal/model"
	"github.com/hitoshi/biblioteca/internal/repository"
	"github.com/hitoshi/biblioteca/internal/security"
	"github.com/hitoshi/biblioteca/internal/validation"
)

// BookInput は書籍の登録・更新の入力。
type BookInput struct {
	Title           string  `json:"title" validate:"required,max=200"`
	Author          string  `json:"author" validate:"required,max=150"`
	ISBN            *string `json:"isbn,omitempty" validate:"omitempty,max=20"`
	PublicationYear *int    `json:"publication_year" validate:"required,gte=0,lte=9999"`
	Publisher       *string `json:"publisher,omitempty" validate:"omitempty,max=100"`
	// Available は更新時のみ参照する。登録時は常にtrue。
	Available *bool `json:"available,omitempty"`
}

// ActiveLoanCounter は書籍を参照する有効な貸出の件数を返すインターフェース。
type ActiveLoanCounter interface {
	CountActiveByBook(ctx context.Context, bookID string) (int, error)
}

// Service は蔵書管理のサービス層。
type Service struct {
	bookRepo  repository.BookRepository
	store     repository.LendingStore
	loans     ActiveLoanCounter
	validator *validation.Validator
	sanitizer security.TextSanitizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// nowがnilの場合はtime.Nowを使用する。
func NewService(
	bookRepo repository.BookRepository,
	store repository.LendingStore,
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
		bookRepo:  bookRepo,
		store:     store,
		loans:     loans,
		validator: validator,
		sanitizer: sanitizer,
		logger:    logger,
		now:       now,
	}
}

// normalize は自由入力テキストをサニタイズしてから入力を検証する。
func (s *Service) normalize(in BookInput) (BookInput, error) {
	in.Title = s.sanitizer.Clean(in.Title)
	in.Author = s.sanitizer.Clean(in.Author)
	in.ISBN = s.sanitizer.CleanPtr(in.ISBN)
	in.Publisher = s.sanitizer.CleanPtr(in.Publisher)
	if err := s.validator.Validate(in); err != nil {
		return in, err
	}
	return in, nil
}

// ensureISBNFree はISBNが他の書籍（exceptID以外）に使われていないことを確認する。
func (s *Service) ensureISBNFree(ctx context.Context, isbn *string, exceptID string) error {
	if isbn == nil {
		return nil
	}
	existing, err := s.bookRepo.FindByISBN(ctx, *isbn)
	if err != nil {
		return fmt.Errorf("ISBNの重複確認に失敗しました: %w", err)
	}
	if existing != nil && existing.ID != exceptID {
		return model.NewISBNAlreadyExistsError(*isbn)
	}
	return nil
}

// Create は書籍を登録する。
// ISBNが指定され、既に他の書籍が同じISBNを持つ場合はISBN_ALREADY_EXISTSを返す。
func (s *Service) Create(ctx context.Context, in BookInput) (*model.Book, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}
	if err := s.ensureISBNFree(ctx, in.ISBN, ""); err != nil {
		return nil, err
	}

	book := &model.Book{
		ID:              uuid.NewString(),
		Title:           in.Title,
		Author:          in.Author,
		ISBN:            in.ISBN,
		PublicationYear: *in.PublicationYear,
		Publisher:       in.Publisher,
		Available:       true,
		RegisteredAt:    model.Date(s.now()),
	}
	if err := s.bookRepo.Create(ctx, book); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, model.NewISBNAlreadyExistsError(*in.ISBN)
		}
		return nil, fmt.Errorf("書籍の登録に失敗しました: %w", err)
	}

	s.logger.Info("書籍を登録しました",
		slog.String("book_id", book.ID),
		slog.String("title", book.Title),
	)
	return book, nil
}

// Update は書籍の可変フィールド（タイトル・著者・ISBN・出版年・出版社・貸出可否）を上書きする。
//
// 書籍行をロックしたトランザクション内で現在値を読み直し、並行する貸出・返却と直列化する。
// Availableを省略した場合はロック下で読んだ現在の貸出可否を維持する。
// 有効な貸出がある書籍を貸出可能に戻す更新はBOOK_ON_LOANで拒否する。
// ISBNの一意性は更新時にも再確認する。
func (s *Service) Update(ctx context.Context, id string, in BookInput) (*model.Book, error) {
	in, err := s.normalize(in)
	if err != nil {
		return nil, err
	}
	if err := s.ensureISBNFree(ctx, in.ISBN, id); err != nil {
		return nil, err
	}

	var book *model.Book
	err = s.store.InTx(ctx, func(tx repository.LendingTx) error {
		current, err := tx.GetBookForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("書籍の取得に失敗しました: %w", err)
		}
		if current == nil {
			return model.NewBookNotFoundError(id)
		}

		if in.Available != nil {
			if *in.Available && !current.Available {
				active, err := tx.CountActiveLoansForBook(ctx, id)
				if err != nil {
					return fmt.Errorf("有効な貸出件数の取得に失敗しました: %w", err)
				}
				if active > 0 {
					return model.NewBookOnLoanError(id)
				}
			}
			current.Available = *in.Available
		}

		current.Title = in.Title
		current.Author = in.Author
		current.ISBN = in.ISBN
		current.PublicationYear = *in.PublicationYear
		current.Publisher = in.Publisher

		if err := tx.UpdateBook(ctx, current); err != nil {
			return err
		}
		book = current
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, model.NewISBNAlreadyExistsError(*in.ISBN)
		}
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, fmt.Errorf("書籍の更新に失敗しました: %w", err)
	}

	s.logger.Info("書籍を更新しました",
		slog.String("book_id", book.ID),
		slog.Bool("available", book.Available),
	)
	return book, nil
}

// Delete は書籍を削除する。
// 有効な貸出がある場合はBOOK_ON_LOAN、過去の貸出記録から参照されている場合は
// HAS_LOAN_HISTORYを返す。
func (s *Service) Delete(ctx context.Context, id string) error {
	exists, err := s.bookRepo.Exists(ctx, id)
	if err != nil {
		return fmt.Errorf("書籍の存在確認に失敗しました: %w", err)
	}
	if !exists {
		return model.NewBookNotFoundError(id)
	}

	active, err := s.loans.CountActiveByBook(ctx, id)
	if err != nil {
		return fmt.Errorf("有効な貸出件数の取得に失敗しました: %w", err)
	}
	if active > 0 {
		return model.NewBookOnLoanError(id)
	}

	if err := s.bookRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrReferenced) {
			return model.NewHasLoanHistoryError(id)
		}
		return fmt.Errorf("書籍の削除に失敗しました: %w", err)
	}

	s.logger.Info("書籍を削除しました", slog.String("book_id", id))
	return nil
}

// FindAll は全書籍を返す。
func (s *Service) FindAll(ctx context.Context) ([]*model.Book, error) {
	books, err := s.bookRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("書籍一覧の取得に失敗しました: %w", err)
	}
	return books, nil
}

// FindByID は指定IDの書籍を返す。存在しない場合はBOOK_NOT_FOUNDを返す。
func (s *Service) FindByID(ctx context.Context, id string) (*model.Book, error) {
	book, err := s.bookRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("書籍の取得に失敗しました: %w", err)
	}
	if book == nil {
		return nil, model.NewBookNotFoundError(id)
	}
	return book, nil
}

// FindByISBN はISBNで書籍を返す。存在しない場合はBOOK_NOT_FOUNDを返す。
func (s *Service) FindByISBN(ctx context.Context, isbn string) (*model.Book, error) {
	book, err := s.bookRepo.FindByISBN(ctx, isbn)
	if err != nil {
		return nil, fmt.Errorf("書籍の取得に失敗しました: %w", err)
	}
	if book == nil {
		return nil, model.NewBookNotFoundError(isbn)
	}
	return book, nil
}

// FindAvailable は貸出可能な書籍を返す。
func (s *Service) FindAvailable(ctx context.Context) ([]*model.Book, error) {
	books, err := s.bookRepo.FindAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("貸出可能な書籍の取得に失敗しました: %w", err)
	}
	return books, nil
}

// Search はタイトル・著者の部分一致（大文字小文字を区別しない）で書籍を検索する。
// 両方空の場合は全書籍を返す。
func (s *Service) Search(ctx context.Context, title, author string) ([]*model.Book, error) {
	books, err := s.bookRepo.Search(ctx, repository.BookSearchFilter{
		Title:  s.sanitizer.Clean(title),
		Author: s.sanitizer.Clean(author),
	})
	if err != nil {
		return nil, fmt.Errorf("書籍の検索に失敗しました: %w", err)
	}
	return books, nil
}

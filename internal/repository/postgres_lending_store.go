package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/biblioteca/internal/model"
)

// PostgresLendingStore はPostgreSQLのトランザクションでLendingStoreを実装する。
// 書籍・貸出の行はSELECT ... FOR UPDATEでロックし、同一書籍への並行貸出や
// 同一貸出への並行返却を直列化する。
type PostgresLendingStore struct {
	db TxBeginner
}

// NewPostgresLendingStore はPostgresLendingStoreを生成する。
func NewPostgresLendingStore(db TxBeginner) *PostgresLendingStore {
	return &PostgresLendingStore{db: db}
}

// InTx はfnを単一トランザクション内で実行する。
// fnがnilを返した場合のみコミットする。
func (s *PostgresLendingStore) InTx(ctx context.Context, fn func(tx LendingTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&postgresLendingTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// postgresLendingTx は*sql.Txに束縛されたLendingTx。
type postgresLendingTx struct {
	tx *sql.Tx
}

func (t *postgresLendingTx) GetBookForUpdate(ctx context.Context, id string) (*model.Book, error) {
	book, err := scanBook(t.tx.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("書籍のロック取得に失敗しました: %w", err)
	}
	return book, nil
}

func (t *postgresLendingTx) SaveBook(ctx context.Context, book *model.Book) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE books SET available = $2 WHERE id = $1`,
		book.ID, book.Available,
	)
	if err != nil {
		return fmt.Errorf("書籍の貸出可否の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("書籍が見つかりません: %s", book.ID)
	}
	return nil
}

// UpdateBook はロック済みの書籍行の可変フィールドを上書きする。
func (t *postgresLendingTx) UpdateBook(ctx context.Context, book *model.Book) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE books
		 SET title = $2, author = $3, isbn = $4, publication_year = $5, publisher = $6, available = $7
		 WHERE id = $1`,
		book.ID, book.Title, book.Author, book.ISBN, book.PublicationYear, book.Publisher, book.Available,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("書籍の更新に失敗しました: %w", ErrUniqueViolation)
	}
	if err != nil {
		return fmt.Errorf("書籍の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("書籍が見つかりません: %s", book.ID)
	}
	return nil
}

func (t *postgresLendingTx) GetUser(ctx context.Context, id string) (*model.User, error) {
	return findUserByID(ctx, t.tx, id)
}

func (t *postgresLendingTx) CountActiveLoansForBook(ctx context.Context, bookID string) (int, error) {
	return countActiveLoans(ctx, t.tx, "book_id", bookID)
}

func (t *postgresLendingTx) GetLoanForUpdate(ctx context.Context, id string) (*model.Loan, error) {
	loan, err := scanLoan(t.tx.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("貸出のロック取得に失敗しました: %w", err)
	}
	return loan, nil
}

func (t *postgresLendingTx) CreateLoan(ctx context.Context, loan *model.Loan) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO loans (`+loanColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		loan.ID, loan.BookID, loan.UserID, loan.LoanDate, loan.ExpectReturnDate, loan.ActualReturnDate, string(loan.Status),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("貸出の作成に失敗しました: %w", ErrUniqueViolation)
	}
	if err != nil {
		return fmt.Errorf("貸出の作成に失敗しました: %w", err)
	}
	return nil
}

// SaveLoan はACTIVEの貸出に対してのみ状態を書き込む条件付き更新。
// book_idは更新対象に含めない。
func (t *postgresLendingTx) SaveLoan(ctx context.Context, loan *model.Loan) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE loans SET status = $2, actual_return_date = $3
		 WHERE id = $1 AND status = 'ACTIVE'`,
		loan.ID, string(loan.Status), loan.ActualReturnDate,
	)
	if err != nil {
		return fmt.Errorf("貸出の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStaleLoan
	}
	return nil
}

// compile-time interface check
var (
	_ LendingStore = (*PostgresLendingStore)(nil)
	_ LendingTx    = (*postgresLendingTx)(nil)
)

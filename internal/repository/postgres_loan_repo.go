package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/biblioteca/internal/model"
)

// PostgresLoanRepo はPostgreSQLを使用した貸出リポジトリ。
// 読み取り専用で、状態遷移はPostgresLendingStoreが担う。
type PostgresLoanRepo struct {
	db *sql.DB
}

// NewPostgresLoanRepo はPostgresLoanRepoを生成する。
func NewPostgresLoanRepo(db *sql.DB) *PostgresLoanRepo {
	return &PostgresLoanRepo{db: db}
}

// FindByID は指定IDの貸出を取得する。見つからない場合はnilを返す。
func (r *PostgresLoanRepo) FindByID(ctx context.Context, id string) (*model.Loan, error) {
	loan, err := scanLoan(r.db.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("貸出の取得に失敗しました: %w", err)
	}
	return loan, nil
}

// FindAll は全貸出を貸出日の新しい順で返す。
func (r *PostgresLoanRepo) FindAll(ctx context.Context) ([]*model.Loan, error) {
	return r.list(ctx, "貸出一覧",
		`SELECT `+loanColumns+` FROM loans ORDER BY loan_date DESC, id ASC`,
	)
}

// FindByStatus は指定ステータスの貸出を返す。
func (r *PostgresLoanRepo) FindByStatus(ctx context.Context, status model.LoanStatus) ([]*model.Loan, error) {
	return r.list(ctx, "ステータス別貸出一覧",
		`SELECT `+loanColumns+` FROM loans WHERE status = $1 ORDER BY loan_date DESC, id ASC`,
		string(status),
	)
}

// FindActiveOverdue はstatus = ACTIVE かつ expect_return_date < asOf の貸出を返す。
func (r *PostgresLoanRepo) FindActiveOverdue(ctx context.Context, asOf time.Time) ([]*model.Loan, error) {
	return r.list(ctx, "延滞貸出一覧",
		`SELECT `+loanColumns+` FROM loans
		 WHERE status = 'ACTIVE' AND expect_return_date < $1
		 ORDER BY expect_return_date ASC, id ASC`,
		model.Date(asOf),
	)
}

// FindByUser は利用者の貸出を返す。
func (r *PostgresLoanRepo) FindByUser(ctx context.Context, userID string) ([]*model.Loan, error) {
	return r.list(ctx, "利用者別貸出一覧",
		`SELECT `+loanColumns+` FROM loans WHERE user_id = $1 ORDER BY loan_date DESC, id ASC`,
		userID,
	)
}

// FindByBook は書籍の貸出を返す。
func (r *PostgresLoanRepo) FindByBook(ctx context.Context, bookID string) ([]*model.Loan, error) {
	return r.list(ctx, "書籍別貸出一覧",
		`SELECT `+loanColumns+` FROM loans WHERE book_id = $1 ORDER BY loan_date DESC, id ASC`,
		bookID,
	)
}

// CountActiveByBook は書籍を参照する有効な貸出の件数を返す。
func (r *PostgresLoanRepo) CountActiveByBook(ctx context.Context, bookID string) (int, error) {
	return countActiveLoans(ctx, r.db, "book_id", bookID)
}

// CountActiveByUser は利用者の有効な貸出の件数を返す。
func (r *PostgresLoanRepo) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	return countActiveLoans(ctx, r.db, "user_id", userID)
}

func (r *PostgresLoanRepo) list(ctx context.Context, what, query string, args ...any) ([]*model.Loan, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%sの取得に失敗しました: %w", what, err)
	}
	loans, err := collectRows(rows, scanLoan)
	if err != nil {
		return nil, fmt.Errorf("%sの走査に失敗しました: %w", what, err)
	}
	return loans, nil
}

// countActiveLoans はcolumn = value を満たす有効な貸出の件数を返す。
// columnは呼び出し側の定数のみを渡すこと。
func countActiveLoans(ctx context.Context, q queryer, column, value string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE `+column+` = $1 AND status = 'ACTIVE'`,
		value,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("有効な貸出数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ LoanRepository = (*PostgresLoanRepo)(nil)

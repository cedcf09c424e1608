// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/biblioteca/internal/model"
)

// ErrUniqueViolation は一意制約違反を表す。
// ISBN・メールアドレスの重複や、同一書籍への有効な貸出の重複で返される。
var ErrUniqueViolation = errors.New("unique constraint violation")

// ErrStaleLoan は条件付き更新の時点で貸出が既に有効状態でなかったことを表す。
var ErrStaleLoan = errors.New("loan is no longer active")

// ErrReferenced は削除対象が他の行（貸出記録）から参照されていることを表す。
var ErrReferenced = errors.New("row is referenced by other rows")

// BookSearchFilter は書籍検索の条件。空文字列の条件は無視される。
type BookSearchFilter struct {
	Title  string
	Author string
}

// BookRepository は書籍データの永続化インターフェース。
type BookRepository interface {
	// FindByID は指定IDの書籍を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Book, error)

	// FindByISBN はISBNで書籍を検索する。見つからない場合はnilを返す。
	FindByISBN(ctx context.Context, isbn string) (*model.Book, error)

	// FindAll は全書籍をタイトル順で返す。
	FindAll(ctx context.Context) ([]*model.Book, error)

	// FindAvailable は貸出可能な書籍を返す。
	FindAvailable(ctx context.Context) ([]*model.Book, error)

	// Search はタイトル・著者の部分一致（大文字小文字を区別しない）で書籍を検索する。
	Search(ctx context.Context, filter BookSearchFilter) ([]*model.Book, error)

	// Create は書籍を作成する。ISBN重複時はErrUniqueViolationをラップして返す。
	Create(ctx context.Context, book *model.Book) error

	// Exists は指定IDの書籍が存在するかを返す。
	Exists(ctx context.Context, id string) (bool, error)

	// Delete は指定IDの書籍を削除する。
	// 貸出記録から参照されている場合はErrReferencedをラップして返す。
	Delete(ctx context.Context, id string) error
}

// UserRepository は利用者データの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDの利用者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスで利用者を検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindAll は全利用者を返す。
	FindAll(ctx context.Context) ([]*model.User, error)

	// FindActive は有効な利用者を返す。
	FindActive(ctx context.Context) ([]*model.User, error)

	// SearchByNameOrLastName は名または姓にqueryを含む利用者を返す（大文字小文字を区別しない）。
	SearchByNameOrLastName(ctx context.Context, query string) ([]*model.User, error)

	// Create は利用者を作成する。メールアドレス重複時はErrUniqueViolationをラップして返す。
	Create(ctx context.Context, user *model.User) error

	// Update は利用者の可変フィールドを上書き更新する。
	Update(ctx context.Context, user *model.User) error

	// Exists は指定IDの利用者が存在するかを返す。
	Exists(ctx context.Context, id string) (bool, error)

	// Delete は指定IDの利用者を削除する。
	// 貸出記録から参照されている場合はErrReferencedをラップして返す。
	Delete(ctx context.Context, id string) error
}

// LoanRepository は貸出データの読み取りインターフェース。
// 貸出の作成・状態遷移はLendingStoreのトランザクション内でのみ行う。
type LoanRepository interface {
	// FindByID は指定IDの貸出を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Loan, error)

	// FindAll は全貸出を貸出日の新しい順で返す。
	FindAll(ctx context.Context) ([]*model.Loan, error)

	// FindByStatus は指定ステータスの貸出を返す。
	FindByStatus(ctx context.Context, status model.LoanStatus) ([]*model.Loan, error)

	// FindActiveOverdue はstatus = ACTIVE かつ expect_return_date < asOf の貸出を返す。
	FindActiveOverdue(ctx context.Context, asOf time.Time) ([]*model.Loan, error)

	// FindByUser は利用者の貸出を返す。
	FindByUser(ctx context.Context, userID string) ([]*model.Loan, error)

	// FindByBook は書籍の貸出を返す。
	FindByBook(ctx context.Context, bookID string) ([]*model.Loan, error)

	// CountActiveByBook は書籍を参照する有効な貸出の件数を返す。
	CountActiveByBook(ctx context.Context, bookID string) (int, error)

	// CountActiveByUser は利用者の有効な貸出の件数を返す。
	CountActiveByUser(ctx context.Context, userID string) (int, error)
}

// LendingTx は貸出処理の単一トランザクション内で使用する操作の集合。
// 書籍の貸出可否に触れる更新（貸出・返却・蔵書の更新）はすべてこのインターフェース経由で行う。
type LendingTx interface {
	// GetBookForUpdate は書籍を行ロック付きで取得する。見つからない場合はnilを返す。
	GetBookForUpdate(ctx context.Context, id string) (*model.Book, error)

	// SaveBook は書籍の貸出可否を更新する。
	SaveBook(ctx context.Context, book *model.Book) error

	// UpdateBook は書籍の可変フィールド（貸出可否を含む）を上書き更新する。
	// GetBookForUpdateでロックした行に対して使う。ISBN重複時はErrUniqueViolationをラップして返す。
	UpdateBook(ctx context.Context, book *model.Book) error

	// GetUser は利用者を取得する。見つからない場合はnilを返す。
	GetUser(ctx context.Context, id string) (*model.User, error)

	// CountActiveLoansForBook は書籍を参照する有効な貸出の件数を返す。
	CountActiveLoansForBook(ctx context.Context, bookID string) (int, error)

	// GetLoanForUpdate は貸出を行ロック付きで取得する。見つからない場合はnilを返す。
	GetLoanForUpdate(ctx context.Context, id string) (*model.Loan, error)

	// CreateLoan は貸出を作成する。
	// 同一書籍に有効な貸出が既にある場合はErrUniqueViolationをラップして返す。
	CreateLoan(ctx context.Context, loan *model.Loan) error

	// SaveLoan は有効な貸出のステータスと返却日を更新する。
	// 更新時点で貸出がACTIVEでない場合はErrStaleLoanを返す。
	SaveLoan(ctx context.Context, loan *model.Loan) error
}

// LendingStore は貸出処理のユニットオブワークを提供する。
type LendingStore interface {
	// InTx はfnを単一トランザクション内で実行する。
	// fnがエラーを返した場合はロールバックし、そのエラーを返す。
	InTx(ctx context.Context, fn func(tx LendingTx) error) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/lib/pq"

	"github.com/hitoshi/biblioteca/internal/model"
)

// PostgreSQLのSQLSTATE
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// dialect は動的クエリの組み立てに使うgoquのPostgreSQL方言。
var dialect = goqu.Dialect("postgres")

// queryer は*sql.DBと*sql.Txの共通部分。
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...any) error
}

const bookColumns = `id, title, author, isbn, publication_year, publisher, available, registered_at`

var bookColumnList = []any{"id", "title", "author", "isbn", "publication_year", "publisher", "available", "registered_at"}

const userColumns = `id, name, last_name, email, phone, registered_at, active`

var userColumnList = []any{"id", "name", "last_name", "email", "phone", "registered_at", "active"}

const loanColumns = `id, book_id, user_id, loan_date, expect_return_date, actual_return_date, status`

// isUniqueViolation はエラーがPostgreSQLの一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// isForeignKeyViolation はエラーがPostgreSQLの外部キー制約違反かどうかを判定する。
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgForeignKeyViolation
}

// containsPattern はILIKE用の部分一致パターンを返す。
// ワイルドカード文字はエスケープする。
func containsPattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func scanBook(s rowScanner) (*model.Book, error) {
	b := &model.Book{}
	var isbn, publisher sql.NullString
	if err := s.Scan(&b.ID, &b.Title, &b.Author, &isbn, &b.PublicationYear, &publisher, &b.Available, &b.RegisteredAt); err != nil {
		return nil, err
	}
	b.ISBN = nullStringPtr(isbn)
	b.Publisher = nullStringPtr(publisher)
	return b, nil
}

func scanUser(s rowScanner) (*model.User, error) {
	u := &model.User{}
	var phone sql.NullString
	if err := s.Scan(&u.ID, &u.Name, &u.LastName, &u.Email, &phone, &u.RegisteredAt, &u.Active); err != nil {
		return nil, err
	}
	u.Phone = nullStringPtr(phone)
	return u, nil
}

func scanLoan(s rowScanner) (*model.Loan, error) {
	l := &model.Loan{}
	var actual sql.NullTime
	if err := s.Scan(&l.ID, &l.BookID, &l.UserID, &l.LoanDate, &l.ExpectReturnDate, &actual, &l.Status); err != nil {
		return nil, err
	}
	if actual.Valid {
		t := actual.Time
		l.ActualReturnDate = &t
	}
	return l, nil
}

// collectRows はrowsを走査してscanで変換した結果を返す。
func collectRows[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

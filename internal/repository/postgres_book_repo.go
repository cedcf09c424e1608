package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/hitoshi/biblioteca/internal/model"
)

// PostgresBookRepo はPostgreSQLを使用した書籍リポジトリ。
type PostgresBookRepo struct {
	db *sql.DB
}

// NewPostgresBookRepo はPostgresBookRepoを生成する。
func NewPostgresBookRepo(db *sql.DB) *PostgresBookRepo {
	return &PostgresBookRepo{db: db}
}

// FindByID は指定IDの書籍を取得する。見つからない場合はnilを返す。
func (r *PostgresBookRepo) FindByID(ctx context.Context, id string) (*model.Book, error) {
	book, err := scanBook(r.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("書籍の取得に失敗しました: %w", err)
	}
	return book, nil
}

// FindByISBN はISBNで書籍を検索する。見つからない場合はnilを返す。
func (r *PostgresBookRepo) FindByISBN(ctx context.Context, isbn string) (*model.Book, error) {
	book, err := scanBook(r.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE isbn = $1`,
		isbn,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ISBNによる書籍の検索に失敗しました: %w", err)
	}
	return book, nil
}

// FindAll は全書籍をタイトル順で返す。
func (r *PostgresBookRepo) FindAll(ctx context.Context) ([]*model.Book, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books ORDER BY title ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("書籍一覧の取得に失敗しました: %w", err)
	}
	books, err := collectRows(rows, scanBook)
	if err != nil {
		return nil, fmt.Errorf("書籍一覧の走査に失敗しました: %w", err)
	}
	return books, nil
}

// FindAvailable は貸出可能な書籍を返す。
func (r *PostgresBookRepo) FindAvailable(ctx context.Context) ([]*model.Book, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE available = true ORDER BY title ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("貸出可能な書籍の取得に失敗しました: %w", err)
	}
	books, err := collectRows(rows, scanBook)
	if err != nil {
		return nil, fmt.Errorf("貸出可能な書籍の走査に失敗しました: %w", err)
	}
	return books, nil
}

// Search はタイトル・著者の部分一致で書籍を検索する。
// 指定された条件はAND結合する。条件が空の場合は全件を返す。
func (r *PostgresBookRepo) Search(ctx context.Context, filter BookSearchFilter) ([]*model.Book, error) {
	query, args, err := buildBookSearchQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("書籍検索クエリの構築に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("書籍の検索に失敗しました: %w", err)
	}
	books, err := collectRows(rows, scanBook)
	if err != nil {
		return nil, fmt.Errorf("書籍検索結果の走査に失敗しました: %w", err)
	}
	return books, nil
}

// buildBookSearchQuery は検索条件からプレースホルダ付きSQLを組み立てる。
func buildBookSearchQuery(filter BookSearchFilter) (string, []any, error) {
	ds := dialect.From("books").Select(bookColumnList...)

	var conds []goqu.Expression
	if filter.Title != "" {
		conds = append(conds, goqu.C("title").ILike(containsPattern(filter.Title)))
	}
	if filter.Author != "" {
		conds = append(conds, goqu.C("author").ILike(containsPattern(filter.Author)))
	}
	if len(conds) > 0 {
		ds = ds.Where(goqu.And(conds...))
	}

	return ds.Order(goqu.C("title").Asc(), goqu.C("id").Asc()).Prepared(true).ToSQL()
}

// Create は書籍を作成する。
func (r *PostgresBookRepo) Create(ctx context.Context, book *model.Book) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO books (`+bookColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		book.ID, book.Title, book.Author, book.ISBN, book.PublicationYear, book.Publisher, book.Available, book.RegisteredAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("書籍の作成に失敗しました: %w", ErrUniqueViolation)
	}
	if err != nil {
		return fmt.Errorf("書籍の作成に失敗しました: %w", err)
	}
	return nil
}

// Exists は指定IDの書籍が存在するかを返す。
func (r *PostgresBookRepo) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`,
		id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("書籍の存在確認に失敗しました: %w", err)
	}
	return exists, nil
}

// Delete は指定IDの書籍を削除する。
func (r *PostgresBookRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM books WHERE id = $1`,
		id,
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("書籍の削除に失敗しました: %w", ErrReferenced)
	}
	if err != nil {
		return fmt.Errorf("書籍の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("書籍が見つかりません: %s", id)
	}
	return nil
}

// compile-time interface check
var _ BookRepository = (*PostgresBookRepo)(nil)

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/hitoshi/biblioteca/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用した利用者リポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDの利用者を取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return findUserByID(ctx, r.db, id)
}

func findUserByID(ctx context.Context, q queryer, id string) (*model.User, error) {
	user, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスで利用者を検索する。見つからない場合はnilを返す。
// メールアドレスは保存時に小文字へ正規化されている前提で完全一致で比較する。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindAll は全利用者を姓・名の順で返す。
func (r *PostgresUserRepo) FindAll(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY last_name ASC, name ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	users, err := collectRows(rows, scanUser)
	if err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}
	return users, nil
}

// FindActive は有効な利用者を返す。
func (r *PostgresUserRepo) FindActive(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE active = true ORDER BY last_name ASC, name ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	users, err := collectRows(rows, scanUser)
	if err != nil {
		return nil, fmt.Errorf("failed to scan active users: %w", err)
	}
	return users, nil
}

// SearchByNameOrLastName は名または姓にqueryを含む利用者を返す。
func (r *PostgresUserRepo) SearchByNameOrLastName(ctx context.Context, query string) ([]*model.User, error) {
	pattern := containsPattern(query)
	sqlStr, args, err := dialect.From("users").
		Select(userColumnList...).
		Where(goqu.Or(
			goqu.C("name").ILike(pattern),
			goqu.C("last_name").ILike(pattern),
		)).
		Order(goqu.C("last_name").Asc(), goqu.C("name").Asc(), goqu.C("id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build user search query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	users, err := collectRows(rows, scanUser)
	if err != nil {
		return nil, fmt.Errorf("failed to scan user search results: %w", err)
	}
	return users, nil
}

// Create は利用者を作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Name, user.LastName, user.Email, user.Phone, user.RegisteredAt, user.Active,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to insert user: %w", ErrUniqueViolation)
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Update は利用者の可変フィールドを上書き更新する。
func (r *PostgresUserRepo) Update(ctx context.Context, user *model.User) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = $2, last_name = $3, email = $4, phone = $5, active = $6 WHERE id = $1`,
		user.ID, user.Name, user.LastName, user.Email, user.Phone, user.Active,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to update user: %w", ErrUniqueViolation)
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", user.ID)
	}
	return nil
}

// Exists は指定IDの利用者が存在するかを返す。
func (r *PostgresUserRepo) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`,
		id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// Delete は指定IDの利用者を削除する。
func (r *PostgresUserRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("failed to delete user: %w", ErrReferenced)
	}
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)

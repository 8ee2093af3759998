package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, license_key, whop_user_id, name, email, avatar_url, last_trained_at, created_at, updated_at`

// scanUser は1行をmodel.Userに読み取る。
func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	user := &model.User{}
	var lastTrained sql.NullTime
	err := row.Scan(
		&user.ID, &user.LicenseKey, &user.WhopUserID, &user.Name, &user.Email,
		&user.AvatarURL, &lastTrained, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastTrained.Valid {
		t := lastTrained.Time
		user.LastTrainedAt = &t
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByLicenseKey はライセンスキーでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByLicenseKey(ctx context.Context, licenseKey string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE license_key = $1`, licenseKey)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by license key: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, license_key, whop_user_id, name, email, avatar_url, last_trained_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.LicenseKey, user.WhopUserID, user.Name, user.Email,
		user.AvatarURL, user.LastTrainedAt, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateWhopLink は外部アカウント連携情報を更新する。
func (r *PostgresUserRepo) UpdateWhopLink(ctx context.Context, userID, whopUserID, name, email, avatarURL string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET whop_user_id = $2, name = $3, email = $4, avatar_url = $5, updated_at = now()
		 WHERE id = $1`,
		userID, whopUserID, name, email, avatarURL,
	)
	if err != nil {
		return fmt.Errorf("failed to update whop link: %w", err)
	}
	return nil
}

// TouchLastTrained は最終学習日時を更新する。
func (r *PostgresUserRepo) TouchLastTrained(ctx context.Context, userID string, trainedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_trained_at = $2, updated_at = now() WHERE id = $1`,
		userID, trainedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update last_trained_at: %w", err)
	}
	return nil
}

// Stats はユーザーの回答数・ブロブ数・案件数を集計する。
func (r *PostgresUserRepo) Stats(ctx context.Context, userID string) (*model.UserStats, error) {
	stats := &model.UserStats{}
	err := r.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM training_answers WHERE user_id = $1),
			(SELECT COUNT(*) FROM knowledge_blobs WHERE user_id = $1),
			(SELECT COUNT(*) FROM projects WHERE user_id = $1)`,
		userID,
	).Scan(&stats.AnswerCount, &stats.BlobCount, &stats.ProjectCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count user stats: %w", err)
	}
	return stats, nil
}

// ListAll は全ユーザーを返す。週次リマインダージョブ用。
func (r *PostgresUserRepo) ListAll(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)

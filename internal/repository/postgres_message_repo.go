package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用したチャットログリポジトリ。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// Create は発話ログを1件追記する。
func (r *PostgresMessageRepo) Create(ctx context.Context, msg *model.MessageLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO message_logs (id, user_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.UserID, msg.Role, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message log: %w", err)
	}
	return nil
}

// ListByUser はユーザーの発話ログを作成日時昇順でページング取得する。
// 昇順なのは会話の流れをそのまま表示するため。
func (r *PostgresMessageRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.MessageLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, role, content, created_at
		 FROM message_logs WHERE user_id = $1
		 ORDER BY created_at ASC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list message logs: %w", err)
	}
	defer rows.Close()

	var msgs []*model.MessageLog
	for rows.Next() {
		m := &model.MessageLog{}
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message log: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message logs: %w", err)
	}
	return msgs, nil
}

// DeleteByUser はユーザーの全発話ログを削除し、削除件数を返す。
func (r *PostgresMessageRepo) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM message_logs WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete message logs: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ MessageLogRepository = (*PostgresMessageRepo)(nil)

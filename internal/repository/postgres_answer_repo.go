package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
)

// PostgresAnswerRepo はPostgreSQLを使用した質問回答リポジトリ。
type PostgresAnswerRepo struct {
	db *sql.DB
}

// NewPostgresAnswerRepo はPostgresAnswerRepoを生成する。
func NewPostgresAnswerRepo(db *sql.DB) *PostgresAnswerRepo {
	return &PostgresAnswerRepo{db: db}
}

// Find は指定ユーザー・質問インデックスの回答を取得する。見つからない場合はnilを返す。
func (r *PostgresAnswerRepo) Find(ctx context.Context, userID string, qIndex int) (*model.Answer, error) {
	answer := &model.Answer{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, q_index, answer, updated_at
		 FROM training_answers WHERE user_id = $1 AND q_index = $2`,
		userID, qIndex,
	).Scan(&answer.ID, &answer.UserID, &answer.QIndex, &answer.Answer, &answer.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find answer: %w", err)
	}
	return answer, nil
}

// Upsert は回答を冪等にUPSERTする。既存回答は無条件に上書きする（last write wins）。
func (r *PostgresAnswerRepo) Upsert(ctx context.Context, userID string, qIndex int, answer string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO training_answers (id, user_id, q_index, answer, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (user_id, q_index)
		 DO UPDATE SET answer = EXCLUDED.answer, updated_at = now()`,
		uuid.New().String(), userID, qIndex, answer,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert answer: %w", err)
	}
	return nil
}

// ListByUser はユーザーの全回答を質問インデックス昇順で返す。
func (r *PostgresAnswerRepo) ListByUser(ctx context.Context, userID string) ([]*model.Answer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, q_index, answer, updated_at
		 FROM training_answers WHERE user_id = $1 ORDER BY q_index ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()

	var answers []*model.Answer
	for rows.Next() {
		a := &model.Answer{}
		if err := rows.Scan(&a.ID, &a.UserID, &a.QIndex, &a.Answer, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate answers: %w", err)
	}
	return answers, nil
}

// compile-time interface check
var _ AnswerRepository = (*PostgresAnswerRepo)(nil)

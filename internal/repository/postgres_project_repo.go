package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
)

// PostgresProjectRepo はPostgreSQLを使用した案件リポジトリ。
// すべての読み書きは所有ユーザーIDでスコープされる。
type PostgresProjectRepo struct {
	db *sql.DB
}

// NewPostgresProjectRepo はPostgresProjectRepoを生成する。
func NewPostgresProjectRepo(db *sql.DB) *PostgresProjectRepo {
	return &PostgresProjectRepo{db: db}
}

const projectColumns = `id, user_id, name, description, status, client_name, client_email, start_date, end_date, created_at, updated_at`

// scanProject は1行をmodel.Projectに読み取る。
func scanProject(row interface{ Scan(...any) error }) (*model.Project, error) {
	p := &model.Project{}
	var startDate, endDate sql.NullTime
	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.Description, &p.Status,
		&p.ClientName, &p.ClientEmail, &startDate, &endDate,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if startDate.Valid {
		t := startDate.Time
		p.StartDate = &t
	}
	if endDate.Valid {
		t := endDate.Time
		p.EndDate = &t
	}
	return p, nil
}

// Create は案件を作成する。
func (r *PostgresProjectRepo) Create(ctx context.Context, project *model.Project) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (id, user_id, name, description, status, client_name, client_email, start_date, end_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		project.ID, project.UserID, project.Name, project.Description, project.Status,
		project.ClientName, project.ClientEmail, project.StartDate, project.EndDate,
		project.CreatedAt, project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

// FindByIDAndUser は指定IDかつ指定ユーザー所有の案件を取得する。
// 存在しない、または他ユーザー所有の場合はnilを返す。
func (r *PostgresProjectRepo) FindByIDAndUser(ctx context.Context, id, userID string) (*model.Project, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1 AND user_id = $2`,
		id, userID)

	project, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	return project, nil
}

// ListByUser はユーザーの案件一覧を更新日時降順で返す。
func (r *PostgresProjectRepo) ListByUser(ctx context.Context, userID string) ([]*model.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE user_id = $1 ORDER BY updated_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate projects: %w", err)
	}
	return projects, nil
}

// Update は案件を更新する。対象が存在しない場合はfalseを返す。
func (r *PostgresProjectRepo) Update(ctx context.Context, project *model.Project) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE projects
		 SET name = $3, description = $4, status = $5, client_name = $6, client_email = $7, end_date = $8, updated_at = now()
		 WHERE id = $1 AND user_id = $2`,
		project.ID, project.UserID, project.Name, project.Description, project.Status,
		project.ClientName, project.ClientEmail, project.EndDate,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// Delete は案件を削除する。対象が存在しない場合はfalseを返す。
// 配下のマイルストーン・トランスクリプト・インサイトはCASCADE削除される。
func (r *PostgresProjectRepo) Delete(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM projects WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// compile-time interface check
var _ ProjectRepository = (*PostgresProjectRepo)(nil)

package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
)

// PostgresInsightRepo はPostgreSQLを使用した案件インサイトリポジトリ。
type PostgresInsightRepo struct {
	db *sql.DB
}

// NewPostgresInsightRepo はPostgresInsightRepoを生成する。
func NewPostgresInsightRepo(db *sql.DB) *PostgresInsightRepo {
	return &PostgresInsightRepo{db: db}
}

const insightColumns = `id, project_id, type, title, description, severity, status, created_at`

// Create はインサイトを作成する。
func (r *PostgresInsightRepo) Create(ctx context.Context, insight *model.Insight) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO project_insights (id, project_id, type, title, description, severity, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		insight.ID, insight.ProjectID, insight.Type, insight.Title,
		insight.Description, insight.Severity, insight.Status, insight.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert insight: %w", err)
	}
	return nil
}

// ListByProject は案件のインサイト一覧を作成日時降順で返す。
func (r *PostgresInsightRepo) ListByProject(ctx context.Context, projectID string) ([]*model.Insight, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+insightColumns+` FROM project_insights WHERE project_id = $1 ORDER BY created_at DESC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}
	defer rows.Close()
	return collectInsights(rows)
}

// ListRecentByUser はユーザーの全案件を横断して最新のインサイトを最大limit件返す。
func (r *PostgresInsightRepo) ListRecentByUser(ctx context.Context, userID string, limit int) ([]*model.Insight, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT i.id, i.project_id, i.type, i.title, i.description, i.severity, i.status, i.created_at
		 FROM project_insights i
		 JOIN projects p ON p.id = i.project_id
		 WHERE p.user_id = $1
		 ORDER BY i.created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent insights: %w", err)
	}
	defer rows.Close()
	return collectInsights(rows)
}

// collectInsights は行をmodel.Insightのスライスに集める。
func collectInsights(rows *sql.Rows) ([]*model.Insight, error) {
	var insights []*model.Insight
	for rows.Next() {
		i := &model.Insight{}
		if err := rows.Scan(&i.ID, &i.ProjectID, &i.Type, &i.Title, &i.Description, &i.Severity, &i.Status, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		insights = append(insights, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate insights: %w", err)
	}
	return insights, nil
}

// compile-time interface check
var _ InsightRepository = (*PostgresInsightRepo)(nil)

// PostgresMilestoneRepo はPostgreSQLを使用したマイルストーンリポジトリ。
type PostgresMilestoneRepo struct {
	db *sql.DB
}

// NewPostgresMilestoneRepo はPostgresMilestoneRepoを生成する。
func NewPostgresMilestoneRepo(db *sql.DB) *PostgresMilestoneRepo {
	return &PostgresMilestoneRepo{db: db}
}

// Create はマイルストーンを作成する。
func (r *PostgresMilestoneRepo) Create(ctx context.Context, milestone *model.Milestone) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO milestones (id, project_id, title, description, status, due_date, completed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		milestone.ID, milestone.ProjectID, milestone.Title, milestone.Description,
		milestone.Status, milestone.DueDate, milestone.CompletedAt, milestone.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert milestone: %w", err)
	}
	return nil
}

// ListByProject は案件のマイルストーン一覧を作成日時昇順で返す。
func (r *PostgresMilestoneRepo) ListByProject(ctx context.Context, projectID string) ([]*model.Milestone, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, project_id, title, description, status, due_date, completed_at, created_at
		 FROM milestones WHERE project_id = $1 ORDER BY created_at ASC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	defer rows.Close()

	var milestones []*model.Milestone
	for rows.Next() {
		m := &model.Milestone{}
		var dueDate, completedAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Title, &m.Description, &m.Status, &dueDate, &completedAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan milestone: %w", err)
		}
		if dueDate.Valid {
			t := dueDate.Time
			m.DueDate = &t
		}
		if completedAt.Valid {
			t := completedAt.Time
			m.CompletedAt = &t
		}
		milestones = append(milestones, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate milestones: %w", err)
	}
	return milestones, nil
}

// compile-time interface check
var _ MilestoneRepository = (*PostgresMilestoneRepo)(nil)

// PostgresTrendRepo はPostgreSQLを使用したトレンド解析キャッシュリポジトリ。
type PostgresTrendRepo struct {
	db *sql.DB
}

// NewPostgresTrendRepo はPostgresTrendRepoを生成する。
func NewPostgresTrendRepo(db *sql.DB) *PostgresTrendRepo {
	return &PostgresTrendRepo{db: db}
}

// Create はトレンド解析結果を保存する。
func (r *PostgresTrendRepo) Create(ctx context.Context, trend *model.TrendAnalysis) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO trend_analyses (id, user_id, analysis, created_at)
		 VALUES ($1, $2, $3, $4)`,
		trend.ID, trend.UserID, trend.Analysis, trend.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trend analysis: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TrendRepository = (*PostgresTrendRepo)(nil)

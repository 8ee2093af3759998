package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
)

// PostgresTranscriptRepo はPostgreSQLを使用したトランスクリプトリポジトリ。
type PostgresTranscriptRepo struct {
	db *sql.DB
}

// NewPostgresTranscriptRepo はPostgresTranscriptRepoを生成する。
func NewPostgresTranscriptRepo(db *sql.DB) *PostgresTranscriptRepo {
	return &PostgresTranscriptRepo{db: db}
}

const transcriptColumns = `id, project_id, title, content, call_date, duration_min, participants, created_at`

// scanTranscript は1行をmodel.Transcriptに読み取る。
func scanTranscript(row interface{ Scan(...any) error }) (*model.Transcript, error) {
	t := &model.Transcript{}
	var duration sql.NullInt64
	err := row.Scan(
		&t.ID, &t.ProjectID, &t.Title, &t.Content, &t.CallDate,
		&duration, &t.Participants, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if duration.Valid {
		d := int(duration.Int64)
		t.DurationMin = &d
	}
	return t, nil
}

// Create はトランスクリプトを作成する。
func (r *PostgresTranscriptRepo) Create(ctx context.Context, transcript *model.Transcript) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transcripts (id, project_id, title, content, call_date, duration_min, participants, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		transcript.ID, transcript.ProjectID, transcript.Title, transcript.Content,
		transcript.CallDate, transcript.DurationMin, transcript.Participants, transcript.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transcript: %w", err)
	}
	return nil
}

// ListByProject は案件のトランスクリプト一覧を作成日時降順で返す。
func (r *PostgresTranscriptRepo) ListByProject(ctx context.Context, projectID string) ([]*model.Transcript, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transcriptColumns+` FROM transcripts WHERE project_id = $1 ORDER BY created_at DESC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	defer rows.Close()
	return collectTranscripts(rows)
}

// ListRecentByUser はユーザーの全案件を横断して最新のトランスクリプトを最大limit件返す。
func (r *PostgresTranscriptRepo) ListRecentByUser(ctx context.Context, userID string, limit int) ([]*model.Transcript, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.project_id, t.title, t.content, t.call_date, t.duration_min, t.participants, t.created_at
		 FROM transcripts t
		 JOIN projects p ON p.id = t.project_id
		 WHERE p.user_id = $1
		 ORDER BY t.created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent transcripts: %w", err)
	}
	defer rows.Close()
	return collectTranscripts(rows)
}

// collectTranscripts は行をmodel.Transcriptのスライスに集める。
func collectTranscripts(rows *sql.Rows) ([]*model.Transcript, error) {
	var transcripts []*model.Transcript
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}
		transcripts = append(transcripts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcripts: %w", err)
	}
	return transcripts, nil
}

// compile-time interface check
var _ TranscriptRepository = (*PostgresTranscriptRepo)(nil)

// PostgresAnalysisRepo はPostgreSQLを使用した解析結果リポジトリ。
// 文字列スライスのフィールドはJSONB列として保存する。
type PostgresAnalysisRepo struct {
	db *sql.DB
}

// NewPostgresAnalysisRepo はPostgresAnalysisRepoを生成する。
func NewPostgresAnalysisRepo(db *sql.DB) *PostgresAnalysisRepo {
	return &PostgresAnalysisRepo{db: db}
}

// Create は解析結果を作成する。トランスクリプトと1:1。
func (r *PostgresAnalysisRepo) Create(ctx context.Context, analysis *model.Analysis) error {
	keyPoints, err := json.Marshal(analysis.KeyPoints)
	if err != nil {
		return fmt.Errorf("failed to marshal key points: %w", err)
	}
	painPoints, err := json.Marshal(analysis.PainPoints)
	if err != nil {
		return fmt.Errorf("failed to marshal pain points: %w", err)
	}
	opportunities, err := json.Marshal(analysis.Opportunities)
	if err != nil {
		return fmt.Errorf("failed to marshal opportunities: %w", err)
	}
	actionItems, err := json.Marshal(analysis.ActionItems)
	if err != nil {
		return fmt.Errorf("failed to marshal action items: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO transcript_analyses (id, transcript_id, summary, key_points, pain_points, opportunities, action_items, sentiment, confidence, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		analysis.ID, analysis.TranscriptID, analysis.Summary,
		keyPoints, painPoints, opportunities, actionItems,
		analysis.Sentiment, analysis.Confidence, analysis.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	return nil
}

// FindByTranscript はトランスクリプトの解析結果を取得する。見つからない場合はnilを返す。
func (r *PostgresAnalysisRepo) FindByTranscript(ctx context.Context, transcriptID string) (*model.Analysis, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, transcript_id, summary, key_points, pain_points, opportunities, action_items, sentiment, confidence, created_at
		 FROM transcript_analyses WHERE transcript_id = $1`,
		transcriptID)

	analysis, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find analysis: %w", err)
	}
	return analysis, nil
}

// ListByProject は案件配下の全解析結果を返す。センチメント集計用。
func (r *PostgresAnalysisRepo) ListByProject(ctx context.Context, projectID string) ([]*model.Analysis, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.id, a.transcript_id, a.summary, a.key_points, a.pain_points, a.opportunities, a.action_items, a.sentiment, a.confidence, a.created_at
		 FROM transcript_analyses a
		 JOIN transcripts t ON t.id = a.transcript_id
		 WHERE t.project_id = $1
		 ORDER BY a.created_at DESC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var analyses []*model.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analyses: %w", err)
	}
	return analyses, nil
}

// scanAnalysis は1行をmodel.Analysisに読み取り、JSONB列をデコードする。
func scanAnalysis(row interface{ Scan(...any) error }) (*model.Analysis, error) {
	a := &model.Analysis{}
	var keyPoints, painPoints, opportunities, actionItems []byte
	err := row.Scan(
		&a.ID, &a.TranscriptID, &a.Summary,
		&keyPoints, &painPoints, &opportunities, &actionItems,
		&a.Sentiment, &a.Confidence, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(keyPoints, &a.KeyPoints); err != nil {
		return nil, fmt.Errorf("failed to decode key points: %w", err)
	}
	if err := json.Unmarshal(painPoints, &a.PainPoints); err != nil {
		return nil, fmt.Errorf("failed to decode pain points: %w", err)
	}
	if err := json.Unmarshal(opportunities, &a.Opportunities); err != nil {
		return nil, fmt.Errorf("failed to decode opportunities: %w", err)
	}
	if err := json.Unmarshal(actionItems, &a.ActionItems); err != nil {
		return nil, fmt.Errorf("failed to decode action items: %w", err)
	}
	return a, nil
}

// compile-time interface check
var _ AnalysisRepository = (*PostgresAnalysisRepo)(nil)

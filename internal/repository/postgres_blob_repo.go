package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
)

// uniqueViolationCode はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolationCode = "23505"

// insertQAMaxAttempts は同時コミット競合時の再試行上限。
const insertQAMaxAttempts = 3

// PostgresBlobRepo はPostgreSQLを使用したナレッジブロブリポジトリ。
type PostgresBlobRepo struct {
	db *sql.DB
}

// NewPostgresBlobRepo はPostgresBlobRepoを生成する。
func NewPostgresBlobRepo(db *sql.DB) *PostgresBlobRepo {
	return &PostgresBlobRepo{db: db}
}

// InsertQANextVersion はqaブロブを次バージョン番号で挿入し、割り当てたバージョンを返す。
// バージョンの算出（全種別ブロブのmax+1）と挿入を単一のINSERT ... SELECT文で行い、
// 同時コミットが同じバージョンを計算した場合は部分一意インデックスの違反として検出し再試行する。
func (r *PostgresBlobRepo) InsertQANextVersion(ctx context.Context, id, userID, content string, createdAt time.Time) (int, error) {
	for attempt := 1; ; attempt++ {
		var version int
		err := r.db.QueryRowContext(ctx,
			`INSERT INTO knowledge_blobs (id, user_id, kind, content, version, created_at)
			 SELECT $1, $2, 'qa', $3, COALESCE(MAX(version), 0) + 1, $4
			 FROM knowledge_blobs WHERE user_id = $2
			 RETURNING version`,
			id, userID, content, createdAt,
		).Scan(&version)

		if err == nil {
			return version, nil
		}

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode && attempt < insertQAMaxAttempts {
			// 同時コミットとの競合。新しいIDで再計算して再試行する。
			id = uuid.New().String()
			continue
		}
		return 0, fmt.Errorf("failed to insert qa blob: %w", err)
	}
}

// InsertUpload はアップロードブロブをversion 0で挿入する。
// アップロード単独では共有バージョンカウンタを進めない。
func (r *PostgresBlobRepo) InsertUpload(ctx context.Context, id, userID, content string, createdAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO knowledge_blobs (id, user_id, kind, content, version, created_at)
		 VALUES ($1, $2, 'upload', $3, 0, $4)`,
		id, userID, content, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert upload blob: %w", err)
	}
	return nil
}

// ListQAByMaxVersion は最大バージョンのqaブロブを返す。
// 一意制約により通常は1件だが、複数件を許容する（作成日時昇順）。
func (r *PostgresBlobRepo) ListQAByMaxVersion(ctx context.Context, userID string) ([]*model.KnowledgeBlob, error) {
	return r.queryBlobs(ctx,
		`SELECT id, user_id, kind, content, version, created_at
		 FROM knowledge_blobs
		 WHERE user_id = $1 AND kind = 'qa'
		   AND version = (SELECT MAX(version) FROM knowledge_blobs WHERE user_id = $1 AND kind = 'qa')
		 ORDER BY created_at ASC`,
		userID,
	)
}

// ListQADesc はqaブロブをバージョン降順で返す。
func (r *PostgresBlobRepo) ListQADesc(ctx context.Context, userID string) ([]*model.KnowledgeBlob, error) {
	return r.queryBlobs(ctx,
		`SELECT id, user_id, kind, content, version, created_at
		 FROM knowledge_blobs WHERE user_id = $1 AND kind = 'qa'
		 ORDER BY version DESC`,
		userID,
	)
}

// ListUploadsDesc はアップロードブロブを作成日時降順で最大limit件返す。
func (r *PostgresBlobRepo) ListUploadsDesc(ctx context.Context, userID string, limit int) ([]*model.KnowledgeBlob, error) {
	return r.queryBlobs(ctx,
		`SELECT id, user_id, kind, content, version, created_at
		 FROM knowledge_blobs WHERE user_id = $1 AND kind = 'upload'
		 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
}

// FindLatestUpload は最新のアップロードブロブを返す。見つからない場合はnilを返す。
func (r *PostgresBlobRepo) FindLatestUpload(ctx context.Context, userID string) (*model.KnowledgeBlob, error) {
	blobs, err := r.ListUploadsDesc(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(blobs) == 0 {
		return nil, nil
	}
	return blobs[0], nil
}

// ListRecentByUser は種別を問わず最新のブロブを最大limit件返す。トレンド解析用。
func (r *PostgresBlobRepo) ListRecentByUser(ctx context.Context, userID string, limit int) ([]*model.KnowledgeBlob, error) {
	return r.queryBlobs(ctx,
		`SELECT id, user_id, kind, content, version, created_at
		 FROM knowledge_blobs WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
}

// queryBlobs はブロブ取得クエリの共通処理。
func (r *PostgresBlobRepo) queryBlobs(ctx context.Context, query string, args ...any) ([]*model.KnowledgeBlob, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query blobs: %w", err)
	}
	defer rows.Close()

	var blobs []*model.KnowledgeBlob
	for rows.Next() {
		b := &model.KnowledgeBlob{}
		if err := rows.Scan(&b.ID, &b.UserID, &b.Kind, &b.Content, &b.Version, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan blob: %w", err)
		}
		blobs = append(blobs, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate blobs: %w", err)
	}
	return blobs, nil
}

// compile-time interface check
var _ BlobRepository = (*PostgresBlobRepo)(nil)

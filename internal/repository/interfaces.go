// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByLicenseKey はライセンスキーでユーザーを検索する。見つからない場合はnilを返す。
	FindByLicenseKey(ctx context.Context, licenseKey string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// UpdateWhopLink は外部アカウント連携情報を更新する。
	UpdateWhopLink(ctx context.Context, userID, whopUserID, name, email, avatarURL string) error

	// TouchLastTrained は最終学習日時を更新する。
	TouchLastTrained(ctx context.Context, userID string, trainedAt time.Time) error

	// Stats はユーザーの回答数・ブロブ数・案件数を集計する。
	Stats(ctx context.Context, userID string) (*model.UserStats, error)

	// ListAll は全ユーザーを返す。週次リマインダージョブ用。
	ListAll(ctx context.Context) ([]*model.User, error)
}

// AnswerRepository は質問回答の永続化インターフェース。
type AnswerRepository interface {
	// Find は指定ユーザー・質問インデックスの回答を取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, userID string, qIndex int) (*model.Answer, error)

	// Upsert は回答を冪等にUPSERTする。既存回答は無条件に上書きする（last write wins）。
	Upsert(ctx context.Context, userID string, qIndex int, answer string) error

	// ListByUser はユーザーの全回答を質問インデックス昇順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Answer, error)
}

// BlobRepository はナレッジブロブの永続化インターフェース。
// ブロブは追記専用で、作成後に更新されることはない。
type BlobRepository interface {
	// InsertQANextVersion はqaブロブを次バージョン番号で挿入し、割り当てたバージョンを返す。
	// バージョンの算出と挿入は単一のアトミックなSQL文で行い、
	// (user_id, version) の一意制約違反時は再試行する。
	// バージョンの走査は全種別のブロブを対象とする（アップロードもmaxに含まれる）。
	InsertQANextVersion(ctx context.Context, id, userID, content string, createdAt time.Time) (int, error)

	// InsertUpload はアップロードブロブをversion 0で挿入する。
	// アップロード単独では共有バージョンカウンタを進めない。
	InsertUpload(ctx context.Context, id, userID, content string, createdAt time.Time) error

	// ListQAByMaxVersion は最大バージョンのqaブロブを返す。
	// 一意制約により通常は1件だが、複数件を許容する（作成日時昇順）。
	ListQAByMaxVersion(ctx context.Context, userID string) ([]*model.KnowledgeBlob, error)

	// ListQADesc はqaブロブをバージョン降順で返す。
	ListQADesc(ctx context.Context, userID string) ([]*model.KnowledgeBlob, error)

	// ListUploadsDesc はアップロードブロブを作成日時降順で最大limit件返す。
	ListUploadsDesc(ctx context.Context, userID string, limit int) ([]*model.KnowledgeBlob, error)

	// FindLatestUpload は最新のアップロードブロブを返す。見つからない場合はnilを返す。
	FindLatestUpload(ctx context.Context, userID string) (*model.KnowledgeBlob, error)

	// ListRecentByUser は種別を問わず最新のブロブを最大limit件返す。トレンド解析用。
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]*model.KnowledgeBlob, error)
}

// MessageLogRepository はチャットログの永続化インターフェース。
type MessageLogRepository interface {
	// Create は発話ログを1件追記する。
	Create(ctx context.Context, msg *model.MessageLog) error

	// ListByUser はユーザーの発話ログを作成日時昇順でページング取得する。
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*model.MessageLog, error)

	// DeleteByUser はユーザーの全発話ログを削除し、削除件数を返す。
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// ProjectRepository は案件データの永続化インターフェース。
// すべての操作は所有ユーザーIDでスコープされる。
type ProjectRepository interface {
	// Create は案件を作成する。
	Create(ctx context.Context, project *model.Project) error

	// FindByIDAndUser は指定IDかつ指定ユーザー所有の案件を取得する。
	// 存在しない、または他ユーザー所有の場合はnilを返す。
	FindByIDAndUser(ctx context.Context, id, userID string) (*model.Project, error)

	// ListByUser はユーザーの案件一覧を更新日時降順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Project, error)

	// Update は案件を更新する。対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, project *model.Project) (bool, error)

	// Delete は案件を削除する。対象が存在しない場合はfalseを返す。
	// 配下のマイルストーン・トランスクリプト・インサイトはCASCADE削除される。
	Delete(ctx context.Context, id, userID string) (bool, error)
}

// MilestoneRepository はマイルストーンの永続化インターフェース。
type MilestoneRepository interface {
	// Create はマイルストーンを作成する。
	Create(ctx context.Context, milestone *model.Milestone) error

	// ListByProject は案件のマイルストーン一覧を作成日時昇順で返す。
	ListByProject(ctx context.Context, projectID string) ([]*model.Milestone, error)
}

// TranscriptRepository はコールトランスクリプトの永続化インターフェース。
type TranscriptRepository interface {
	// Create はトランスクリプトを作成する。
	Create(ctx context.Context, transcript *model.Transcript) error

	// ListByProject は案件のトランスクリプト一覧を作成日時降順で返す。
	ListByProject(ctx context.Context, projectID string) ([]*model.Transcript, error)

	// ListRecentByUser はユーザーの全案件を横断して最新のトランスクリプトを最大limit件返す。
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]*model.Transcript, error)
}

// AnalysisRepository はトランスクリプト解析結果の永続化インターフェース。
type AnalysisRepository interface {
	// Create は解析結果を作成する。トランスクリプトと1:1。
	Create(ctx context.Context, analysis *model.Analysis) error

	// FindByTranscript はトランスクリプトの解析結果を取得する。見つからない場合はnilを返す。
	FindByTranscript(ctx context.Context, transcriptID string) (*model.Analysis, error)

	// ListByProject は案件配下の全解析結果を返す。センチメント集計用。
	ListByProject(ctx context.Context, projectID string) ([]*model.Analysis, error)
}

// InsightRepository は案件インサイトの永続化インターフェース。
type InsightRepository interface {
	// Create はインサイトを作成する。
	Create(ctx context.Context, insight *model.Insight) error

	// ListByProject は案件のインサイト一覧を作成日時降順で返す。
	ListByProject(ctx context.Context, projectID string) ([]*model.Insight, error)

	// ListRecentByUser はユーザーの全案件を横断して最新のインサイトを最大limit件返す。
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]*model.Insight, error)
}

// TrendRepository はトレンド解析キャッシュの永続化インターフェース。
type TrendRepository interface {
	// Create はトレンド解析結果を保存する。
	Create(ctx context.Context, trend *model.TrendAnalysis) error
}

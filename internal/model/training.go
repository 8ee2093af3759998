package model

import "time"

// QuestionCount はブランド質問の総数。質問インデックスは1..QuestionCount。
const QuestionCount = 30

// Answer はユーザーごと・質問インデックスごとの回答を表す。
// (user_id, q_index) で一意。再POSTは無条件に上書きする（last write wins）。
type Answer struct {
	ID        string
	UserID    string
	QIndex    int
	Answer    string
	UpdatedAt time.Time
}

// BlobKind はナレッジブロブの種別を表す。
type BlobKind string

const (
	// BlobKindQA は30問の回答をコミットして生成されたブロブ。
	BlobKindQA BlobKind = "qa"
	// BlobKindUpload は生トランスクリプトのアップロードで生成されたブロブ。
	// アップロード単独ではバージョン番号を進めない（version 0 で保存される）。
	BlobKindUpload BlobKind = "upload"
)

// KnowledgeBlob は確定済みの学習データを表す不変レコード。
// バージョン番号はユーザー内で種別をまたいで単調増加する（追記専用ログ）。
type KnowledgeBlob struct {
	ID        string
	UserID    string
	Kind      BlobKind
	Content   string
	Version   int
	CreatedAt time.Time
}

// MessageRole はチャットログの発話者を表す。
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// MessageLog はチャットの発話1件を表す追記専用レコード。
type MessageLog struct {
	ID        string
	UserID    string
	Role      MessageRole
	Content   string
	CreatedAt time.Time
}

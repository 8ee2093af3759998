// Package model はドメインモデルを定義する。
package model

import "time"

// User はライセンスキーで識別されるコーチユーザーを表す。
// 初回のライセンス解決時に自動作成され、明示的な削除フローは持たない。
type User struct {
	ID            string
	LicenseKey    string
	WhopUserID    string
	Name          string
	Email         string
	AvatarURL     string
	LastTrainedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserStats はライセンス検証時に返すユーザーの集計情報を表す。
type UserStats struct {
	AnswerCount  int
	BlobCount    int
	ProjectCount int
}

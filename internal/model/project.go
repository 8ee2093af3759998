package model

import "time"

// Project はコーチのクライアント案件を表す。
// 配下のMilestone、Transcript、Insightは所有ユーザーに推移的にスコープされる。
type Project struct {
	ID          string
	UserID      string
	Name        string
	Description string
	Status      string // active, completed, archived
	ClientName  string
	ClientEmail string
	StartDate   *time.Time
	EndDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Milestone は案件のマイルストーンを表す。
type Milestone struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	Status      string // pending, completed
	DueDate     *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// Transcript はクライアントコールの文字起こしを表す。
// Analysisは作成直後にベストエフォートで1件だけ生成される（1:1）。
type Transcript struct {
	ID           string
	ProjectID    string
	Title        string
	Content      string
	CallDate     time.Time
	DurationMin  *int
	Participants string
	CreatedAt    time.Time
}

// Analysis はトランスクリプトのAI解析結果を表す。派生データでありユーザーは編集しない。
type Analysis struct {
	ID            string
	TranscriptID  string
	Summary       string
	KeyPoints     []string
	PainPoints    []string
	Opportunities []string
	ActionItems   []string
	Sentiment     string // positive, negative, neutral, mixed
	Confidence    float64
	CreatedAt     time.Time
}

// Insight は解析から自動生成された案件インサイトを表す。
type Insight struct {
	ID          string
	ProjectID   string
	Type        string // bottleneck, opportunity
	Title       string
	Description string
	Severity    string // low, medium, high, critical
	Status      string // open, resolved, dismissed
	CreatedAt   time.Time
}

// TrendAnalysis はユーザー横断データのトレンド解析結果のキャッシュを表す。
type TrendAnalysis struct {
	ID        string
	UserID    string
	Analysis  string // 解析結果のJSON
	CreatedAt time.Time
}

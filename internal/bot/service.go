// Package bot はコーチのボイスで応答するチャットアシスタントを提供する。
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/knowledge"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/llm"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/metrics"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/repository"
)

const (
	// chatTemperature はチャット応答の温度。
	chatTemperature = 0.6

	// FallbackReply はプロバイダー失敗時に返す安全な応答文。
	FallbackReply = "Something went wrong on my end. Give me a moment and send that again."

	// defaultHistoryLimit は履歴取得のデフォルト件数。
	defaultHistoryLimit = 50
	// maxHistoryLimit は履歴取得の最大件数。
	maxHistoryLimit = 200
)

// NotesSource はコーチノートの取得インターフェース。
// knowledge.Retrieverの部分集合として定義する。
type NotesSource interface {
	LatestQA(ctx context.Context, userID string) (string, error)
}

// Completer はチャット補完のインターフェース。llm.Clientの部分集合。
type Completer interface {
	Complete(ctx context.Context, kind, system string, messages []llm.Message, temperature float64) (string, error)
}

// Service はチャットアシスタントのサービス。
type Service struct {
	messageRepo repository.MessageLogRepository
	notes       NotesSource
	completer   Completer
	collector   metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	messageRepo repository.MessageLogRepository,
	notes NotesSource,
	completer Completer,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		messageRepo: messageRepo,
		notes:       notes,
		completer:   completer,
		collector:   collector,
	}
}

// ChatResult はチャット応答の結果。
// プロバイダー失敗時もFallbackがtrueの正常結果として返る（HTTPは200）。
type ChatResult struct {
	Reply     string
	Fallback  bool
	ErrorCode string
}

// Chat はユーザーメッセージを記録し、最新のコーチノートを使って応答を生成する。
// ユーザーメッセージの記録が失敗した場合のみエラーを返す。
// 応答生成の失敗はフォールバック応答に変換され、エラーにはならない。
func (s *Service) Chat(ctx context.Context, userID, coachName, message string) (*ChatResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, model.NewInvalidRequestError("message is empty")
	}

	// 応答生成より先にユーザーメッセージを記録する。
	// プロバイダーが落ちていてもユーザーの発話は失われない。
	if err := s.messageRepo.Create(ctx, &model.MessageLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Role:      model.MessageRoleUser,
		Content:   message,
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("failed to log user message: %w", err)
	}

	s.collector.RecordChatMessage()

	notes, err := s.notes.LatestQA(ctx, userID)
	if err != nil {
		slog.Error("failed to load coach notes",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return s.fallback("INTERNAL_ERROR"), nil
	}

	system := knowledge.BuildSystemPrompt(coachName, notes)
	reply, err := s.completer.Complete(ctx, "chat", system, []llm.Message{
		{Role: "user", Content: message},
	}, chatTemperature)
	if err != nil {
		code := model.ErrCodeProviderFailed
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			code = apiErr.Code
		}
		slog.Warn("chat completion failed, returning fallback",
			slog.String("user_id", userID),
			slog.String("code", code),
		)
		return s.fallback(code), nil
	}

	if err := s.messageRepo.Create(ctx, &model.MessageLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Role:      model.MessageRoleAssistant,
		Content:   reply,
		CreatedAt: time.Now(),
	}); err != nil {
		// 応答は生成済みのため、記録失敗はログのみで応答は返す
		slog.Error("failed to log assistant message",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	return &ChatResult{Reply: reply}, nil
}

// fallback はフォールバック応答を組み立てる。
// フォールバック文言は会話履歴には記録しない。
func (s *Service) fallback(code string) *ChatResult {
	return &ChatResult{
		Reply:     FallbackReply,
		Fallback:  true,
		ErrorCode: code,
	}
}

// Conversation は同一日のメッセージのまとまり。
type Conversation struct {
	Date     string // YYYY-MM-DD
	Messages []*model.MessageLog
}

// HistoryResult はチャット履歴のページ。
type HistoryResult struct {
	Conversations []Conversation
	HasMore       bool
}

// History はチャット履歴を作成日時昇順で取得し、日付ごとの会話にまとめる。
// limit+1件を取得してHasMoreを判定する。
func (s *Service) History(ctx context.Context, userID string, limit, offset int) (*HistoryResult, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	messages, err := s.messageRepo.ListByUser(ctx, userID, limit+1, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list message logs: %w", err)
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	result := &HistoryResult{HasMore: hasMore}
	for _, msg := range messages {
		date := msg.CreatedAt.Format("2006-01-02")
		n := len(result.Conversations)
		if n == 0 || result.Conversations[n-1].Date != date {
			result.Conversations = append(result.Conversations, Conversation{Date: date})
			n++
		}
		result.Conversations[n-1].Messages = append(result.Conversations[n-1].Messages, msg)
	}

	return result, nil
}

// Clear はユーザーの全チャット履歴を削除し、削除件数を返す。
func (s *Service) Clear(ctx context.Context, userID string) (int64, error) {
	deleted, err := s.messageRepo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete message logs: %w", err)
	}

	slog.Info("chat history cleared",
		slog.String("user_id", userID),
		slog.Int64("deleted", deleted),
	)
	return deleted, nil
}

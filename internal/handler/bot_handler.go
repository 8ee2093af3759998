package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/bot"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
)

// BotServiceInterface はチャットボットハンドラーが必要とするサービスインターフェース。
type BotServiceInterface interface {
	Chat(ctx context.Context, userID, coachName, message string) (*bot.ChatResult, error)
	History(ctx context.Context, userID string, limit, offset int) (*bot.HistoryResult, error)
	Clear(ctx context.Context, userID string) (int64, error)
}

// BotHandler はチャットアシスタントのHTTPハンドラー。
type BotHandler struct {
	service BotServiceInterface
}

// NewBotHandler はBotHandlerを生成する。
func NewBotHandler(service BotServiceInterface) *BotHandler {
	return &BotHandler{service: service}
}

// Chat はユーザーメッセージに対するコーチボイスの応答を返す。
// プロバイダー失敗時もフォールバック応答とエラーコード付きの200で返す。
// POST /bot/chat (form: message, coach_name)
func (h *BotHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("malformed form body"))
		return
	}

	result, err := h.service.Chat(r.Context(), userID, r.FormValue("coach_name"), r.FormValue("message"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := map[string]any{
		"reply":    result.Reply,
		"fallback": result.Fallback,
	}
	if result.ErrorCode != "" {
		resp["code"] = result.ErrorCode
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

// History はチャット履歴を日付ごとの会話にまとめて返す。
// GET /bot/chat/history?limit&offset
func (h *BotHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	history, err := h.service.History(r.Context(), userID, limit, offset)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	conversations := make([]map[string]any, 0, len(history.Conversations))
	for _, conv := range history.Conversations {
		messages := make([]map[string]any, 0, len(conv.Messages))
		for _, msg := range conv.Messages {
			messages = append(messages, map[string]any{
				"role":       msg.Role,
				"content":    msg.Content,
				"created_at": msg.CreatedAt.Format(time.RFC3339),
			})
		}
		conversations = append(conversations, map[string]any{
			"date":     conv.Date,
			"messages": messages,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"conversations": conversations,
		"has_more":      history.HasMore,
	})
}

// Clear はユーザーのチャット履歴を全件削除する。
// DELETE /bot/chat/history
func (h *BotHandler) Clear(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	deleted, err := h.service.Clear(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"deleted": deleted,
	})
}

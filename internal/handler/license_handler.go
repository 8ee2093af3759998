// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/middleware"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
)

// LicenseServiceInterface はライセンスハンドラーが必要とするサービスインターフェース。
type LicenseServiceInterface interface {
	// Resolve はライセンスキーからユーザーを解決する。無効なキーは (nil, nil)。
	Resolve(ctx context.Context, key string) (*model.User, error)
	// IssueNew は新しいライセンスキーを発行し、紐付くユーザーを作成する。
	IssueNew(ctx context.Context) (*model.User, error)
	// LinkWhop は外部Whopアカウント情報をユーザーに紐付ける。
	LinkWhop(ctx context.Context, key, whopUserID, name, email, avatarURL string) (*model.User, error)
}

// UserStatsProvider はユーザー集計情報の取得インターフェース。
type UserStatsProvider interface {
	// Stats はユーザーの回答数・ブロブ数・案件数を集計する。
	Stats(ctx context.Context, userID string) (*model.UserStats, error)
}

// LicenseHandler はライセンス発行・検証のHTTPハンドラー。
type LicenseHandler struct {
	service LicenseServiceInterface
	stats   UserStatsProvider
}

// NewLicenseHandler はLicenseHandlerを生成する。
func NewLicenseHandler(service LicenseServiceInterface, stats UserStatsProvider) *LicenseHandler {
	return &LicenseHandler{service: service, stats: stats}
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID            string  `json:"id"`
	LicenseKey    string  `json:"license_key"`
	Name          string  `json:"name,omitempty"`
	Email         string  `json:"email,omitempty"`
	AvatarURL     string  `json:"avatar_url,omitempty"`
	LastTrainedAt *string `json:"last_trained_at"`
}

// licenseStatusResponse はライセンス検証レスポンス。
type licenseStatusResponse struct {
	Valid bool         `json:"valid"`
	User  userResponse `json:"user"`
	Stats struct {
		Answers  int `json:"answers"`
		Blobs    int `json:"blobs"`
		Projects int `json:"projects"`
	} `json:"stats"`
}

// whopLinkRequest はWhopアカウント連携リクエストのボディ。
type whopLinkRequest struct {
	LicenseKey string `json:"license_key"`
	WhopUserID string `json:"whop_user_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	AvatarURL  string `json:"avatar_url"`
}

// Issue は新しいライセンスキーを発行する。
// POST /license
func (h *LicenseHandler) Issue(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.IssueNew(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, toUserResponse(user))
}

// Verify は提示されたライセンスキーを検証し、ユーザー情報と集計を返す。
// GET /license
func (h *LicenseHandler) Verify(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(middleware.LicenseKeyHeader)

	user, err := h.service.Resolve(r.Context(), key)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewInvalidLicenseError())
		return
	}

	stats, err := h.stats.Stats(r.Context(), user.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := licenseStatusResponse{Valid: true, User: toUserResponse(user)}
	if stats != nil {
		resp.Stats.Answers = stats.AnswerCount
		resp.Stats.Blobs = stats.BlobCount
		resp.Stats.Projects = stats.ProjectCount
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

// LinkWhop は外部Whopアカウント情報をライセンスキーのユーザーに紐付ける。
// POST /auth/whop-license
func (h *LicenseHandler) LinkWhop(w http.ResponseWriter, r *http.Request) {
	var req whopLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("malformed JSON body"))
		return
	}

	user, err := h.service.LinkWhop(r.Context(), req.LicenseKey, req.WhopUserID, req.Name, req.Email, req.AvatarURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toUserResponse(user))
}

// --- ヘルパー関数 ---

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// toUserResponse はmodel.UserからAPIレスポンスに変換する。
func toUserResponse(user *model.User) userResponse {
	resp := userResponse{
		ID:         user.ID,
		LicenseKey: user.LicenseKey,
		Name:       user.Name,
		Email:      user.Email,
		AvatarURL:  user.AvatarURL,
	}
	if user.LastTrainedAt != nil {
		s := user.LastTrainedAt.Format(time.RFC3339)
		resp.LastTrainedAt = &s
	}
	return resp
}

// writeJSONResponse はJSONレスポンスを書き込む。
func writeJSONResponse(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSONResponse(w, statusCode, apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// requireUserID はコンテキストからユーザーIDを取り出す。未認証なら401を書き込みfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidLicense:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidIndex,
		model.ErrCodeEmptyFile, model.ErrCodeNoUploadFound, model.ErrCodeInvalidAction:
		return http.StatusBadRequest
	case model.ErrCodeProjectNotFound, model.ErrCodeTranscriptNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeProviderFailed, model.ErrCodeProviderParse:
		return http.StatusBadGateway
	case model.ErrCodeProviderTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// isProviderError はエラーがLLMプロバイダー起因かを判定する。
// プロバイダー失敗をエラーコード付きの200で返すエンドポイントが使う。
func isProviderError(err error) (*model.APIError, bool) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Category == "provider" {
		return apiErr, true
	}
	return nil, false
}

package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/trainer"
)

// maxUploadBytes はアップロードファイルの上限サイズ（10MB）。
const maxUploadBytes = 10 << 20

// TrainerServiceInterface はトレーナーハンドラーが必要とするサービスインターフェース。
type TrainerServiceInterface interface {
	GetAnswer(ctx context.Context, userID string, index int) (string, error)
	SetAnswer(ctx context.Context, userID string, index int, text string) error
	Status(ctx context.Context, userID string) (*trainer.StatusResult, error)
	Commit(ctx context.Context, userID string) (int, error)
	History(ctx context.Context, userID string) (*trainer.HistoryResult, error)
	Upload(ctx context.Context, userID string, content []byte) error
	PrefillLatest(ctx context.Context, userID string) (int, error)
	Prefill(ctx context.Context, userID, source string) (int, error)
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// TrainerHandler はボイストレーナーのHTTPハンドラー。
type TrainerHandler struct {
	service TrainerServiceInterface
}

// NewTrainerHandler はTrainerHandlerを生成する。
func NewTrainerHandler(service TrainerServiceInterface) *TrainerHandler {
	return &TrainerHandler{service: service}
}

// questionResponse は質問1件のAPIレスポンス。
type questionResponse struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Questions は30問の質問リストを返す。
// GET /trainer/questions
func (h *TrainerHandler) Questions(w http.ResponseWriter, r *http.Request) {
	questions := make([]questionResponse, 0, len(trainer.Questions))
	for i, q := range trainer.Questions {
		questions = append(questions, questionResponse{Index: i + 1, Text: q})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"questions": questions})
}

// parseQuestionIndex はURLパラメータの質問インデックスを検証付きで取り出す。
func parseQuestionIndex(r *http.Request) (int, *model.APIError) {
	raw := chi.URLParam(r, "index")
	index, err := strconv.Atoi(raw)
	if err != nil || index < 1 || index > model.QuestionCount {
		return 0, model.NewInvalidIndexError(index)
	}
	return index, nil
}

// GetAnswer は指定インデックスの現在の回答を返す。未回答は空文字列。
// GET /trainer/answer/{index}
func (h *TrainerHandler) GetAnswer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	index, apiErr := parseQuestionIndex(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	answer, err := h.service.GetAnswer(r.Context(), userID, index)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"index":  index,
		"answer": answer,
	})
}

// setAnswerRequest は回答保存リクエストのボディ。
type setAnswerRequest struct {
	Answer string `json:"answer"`
}

// SetAnswer は指定インデックスの回答をUPSERTする。
// POST /trainer/answer/{index}
func (h *TrainerHandler) SetAnswer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	index, apiErr := parseQuestionIndex(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	var req setAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("malformed JSON body"))
		return
	}

	if err := h.service.SetAnswer(r.Context(), userID, index, req.Answer); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"index": index,
		"saved": true,
	})
}

// Status はトレーニングの進捗状況を返す。
// GET /trainer/status
func (h *TrainerHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	status, err := h.service.Status(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := map[string]any{
		"answered_count":   status.AnsweredCount,
		"solid_count":      status.SolidCount,
		"answered_indices": status.AnsweredIndices,
		"ready":            status.Ready,
		"message":          status.Message,
		"last_trained_at":  nil,
	}
	if status.LastTrainedAt != nil {
		resp["last_trained_at"] = status.LastTrainedAt.Format(time.RFC3339)
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

// Commit は現在の回答をボイスプロファイルとして確定する。
// POST /trainer/commit
func (h *TrainerHandler) Commit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	version, err := h.service.Commit(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"voice_version": version,
	})
}

// History はコミット履歴と直近のアップロードを返す。
// GET /trainer/history
func (h *TrainerHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	history, err := h.service.History(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	commits := make([]map[string]any, 0, len(history.Commits))
	for _, c := range history.Commits {
		commits = append(commits, map[string]any{
			"version":        c.Version,
			"question_count": c.QuestionCount,
			"preview":        c.Preview,
			"char_count":     c.CharCount,
			"created_at":     c.CreatedAt.Format(time.RFC3339),
		})
	}
	uploads := make([]map[string]any, 0, len(history.Uploads))
	for _, u := range history.Uploads {
		uploads = append(uploads, map[string]any{
			"preview":    u.Preview,
			"char_count": u.CharCount,
			"created_at": u.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"commits": commits,
		"uploads": uploads,
	})
}

// Upload はトランスクリプトファイルをアップロードブロブとして保存する。
// POST /train/upload
func (h *TrainerHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	content, _, apiErr := readMultipartFile(r, "file")
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := h.service.Upload(r.Context(), userID, content); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"uploaded": true,
	})
}

// Prefill はアップロード済みまたは添付のソーステキストから回答ドラフトを生成する。
// プロバイダー起因の失敗は5xxではなく、filled=0とエラーコード付きの200で返す。
// POST /trainer/prefill
func (h *TrainerHandler) Prefill(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("malformed multipart form"))
		return
	}

	var filled int
	var err error
	if r.FormValue("use_latest") == "true" {
		filled, err = h.service.PrefillLatest(r.Context(), userID)
	} else {
		content, _, apiErr := readMultipartFile(r, "file")
		if apiErr != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
			return
		}
		filled, err = h.service.Prefill(r.Context(), userID, string(content))
	}

	if err != nil {
		if apiErr, ok := isProviderError(err); ok {
			writeJSONResponse(w, http.StatusOK, map[string]any{
				"filled": 0,
				"code":   apiErr.Code,
			})
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"filled": filled,
	})
}

// whisperFallbackText は音声認識失敗時のフォールバック文言。
const whisperFallbackText = "Could not transcribe the audio. Please try again or type your answer."

// Whisper は音声ファイルをテキスト化する。
// プロバイダー起因の失敗はフォールバック文言とエラーコード付きの200で返す。
// POST /trainer/whisper
func (h *TrainerHandler) Whisper(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("malformed multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("audio file is required"))
		return
	}
	defer file.Close()

	text, err := h.service.Transcribe(r.Context(), header.Filename, file)
	if err != nil {
		if apiErr, ok := isProviderError(err); ok {
			writeJSONResponse(w, http.StatusOK, map[string]any{
				"text": whisperFallbackText,
				"code": apiErr.Code,
			})
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"text": text,
	})
}

// readMultipartFile はマルチパートフォームからファイル内容を読み取る。
func readMultipartFile(r *http.Request, field string) ([]byte, string, *model.APIError) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, "", model.NewInvalidRequestError("malformed multipart form")
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", model.NewInvalidRequestError(field + " is required")
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		return nil, "", model.NewInvalidRequestError("failed to read uploaded file")
	}
	return content, header.Filename, nil
}

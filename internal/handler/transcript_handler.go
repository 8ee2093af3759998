package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/analysis"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
)

// AnalysisServiceInterface はトランスクリプトハンドラーが必要とするサービスインターフェース。
type AnalysisServiceInterface interface {
	CreateTranscript(ctx context.Context, userID string, input analysis.CreateInput) (*analysis.CreateResult, error)
}

// TranscriptHandler はコールトランスクリプトのHTTPハンドラー。
type TranscriptHandler struct {
	service AnalysisServiceInterface
}

// NewTranscriptHandler はTranscriptHandlerを生成する。
func NewTranscriptHandler(service AnalysisServiceInterface) *TranscriptHandler {
	return &TranscriptHandler{service: service}
}

// Create はトランスクリプトを登録し、続けてAI解析を実行する。
// 解析の失敗は登録を妨げず、ニュートラルな解析結果が返る。
// POST /transcripts (form)
func (h *TranscriptHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("malformed form body"))
		return
	}

	input := analysis.CreateInput{
		ProjectID:    r.FormValue("project_id"),
		Title:        r.FormValue("title"),
		Content:      r.FormValue("content"),
		Participants: r.FormValue("participants"),
	}
	if d := parseDate(r.FormValue("call_date")); d != nil {
		input.CallDate = *d
	}
	if v := r.FormValue("duration_min"); v != "" {
		if mins, err := strconv.Atoi(v); err == nil {
			input.DurationMin = &mins
		}
	}

	result, err := h.service.CreateTranscript(r.Context(), userID, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	insights := make([]map[string]any, 0, len(result.Insights))
	for _, i := range result.Insights {
		insights = append(insights, toInsightResponse(i))
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{
		"transcript": toTranscriptResponse(result.Transcript),
		"analysis":   toAnalysisResponse(result.Analysis),
		"insights":   insights,
	})
}

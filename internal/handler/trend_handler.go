package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/trend"
)

// TrendServiceInterface はトレンドハンドラーが必要とするサービスインターフェース。
type TrendServiceInterface interface {
	Analyze(ctx context.Context, userID string) (*trend.Result, error)
	GenerateInsight(ctx context.Context, userID, projectID, trendData string) (*model.Insight, error)
}

// TrendHandler はトレンド解析のHTTPハンドラー。
type TrendHandler struct {
	service TrendServiceInterface
}

// NewTrendHandler はTrendHandlerを生成する。
func NewTrendHandler(service TrendServiceInterface) *TrendHandler {
	return &TrendHandler{service: service}
}

// Get はユーザー横断データのトレンド解析を実行して返す。
// GET /trends
func (h *TrendHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	result, err := h.service.Analyze(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toTrendResponse(result))
}

// trendActionRequest はトレンドアクションリクエストのボディ。
type trendActionRequest struct {
	Action    string `json:"action"`
	ProjectID string `json:"project_id"`
	TrendData string `json:"trend_data"`
}

// Act はトレンドアクションを実行する。
// generate_insight: 渡されたトレンドデータからインサイトを生成する。
// update_trends: トレンド解析を強制的に再実行する。
// POST /trends
func (h *TrendHandler) Act(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req trendActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("malformed JSON body"))
		return
	}

	switch req.Action {
	case "generate_insight":
		insight, err := h.service.GenerateInsight(r.Context(), userID, req.ProjectID, req.TrendData)
		if err != nil {
			if apiErr, ok := isProviderError(err); ok {
				writeJSONResponse(w, http.StatusOK, map[string]any{
					"insight": nil,
					"code":    apiErr.Code,
				})
				return
			}
			handleServiceError(w, err)
			return
		}
		writeJSONResponse(w, http.StatusCreated, map[string]any{
			"insight": toInsightResponse(insight),
		})

	case "update_trends":
		result, err := h.service.Analyze(r.Context(), userID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, toTrendResponse(result))

	default:
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidActionError(req.Action))
	}
}

func toTrendResponse(result *trend.Result) map[string]any {
	resp := map[string]any{
		"trends": map[string]any{
			"trending_topics":   result.Trends.TrendingTopics,
			"coaching_patterns": result.Trends.CoachingPatterns,
			"client_insights":   result.Trends.ClientInsights,
			"recommendations":   result.Trends.Recommendations,
		},
		"metadata": map[string]any{
			"transcript_count": result.Meta.TranscriptCount,
			"blob_count":       result.Meta.BlobCount,
			"insight_count":    result.Meta.InsightCount,
			"generated_at":     result.GeneratedAt.Format(time.RFC3339),
		},
	}
	if result.Fallback {
		resp["fallback"] = true
	}
	return resp
}

package handler

import (
	"context"
	"net/http"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/dashboard"
)

// DashboardServiceInterface はダッシュボードハンドラーが必要とするサービスインターフェース。
type DashboardServiceInterface interface {
	ProjectDashboard(ctx context.Context, userID, projectID string) (*dashboard.ProjectMetrics, error)
	Overall(ctx context.Context, userID string) (*dashboard.Overview, error)
}

// DashboardHandler はダッシュボードのHTTPハンドラー。
type DashboardHandler struct {
	service DashboardServiceInterface
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(service DashboardServiceInterface) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Get はダッシュボードメトリクスを返す。
// project_idクエリがあれば単一案件、なければ全案件横断のメトリクス。
// GET /dashboard[?project_id]
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if projectID := r.URL.Query().Get("project_id"); projectID != "" {
		metrics, err := h.service.ProjectDashboard(r.Context(), userID, projectID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, toProjectMetricsResponse(metrics))
		return
	}

	overview, err := h.service.Overall(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	recentTranscripts := make([]map[string]any, 0, len(overview.RecentTranscripts))
	for _, t := range overview.RecentTranscripts {
		recentTranscripts = append(recentTranscripts, toTranscriptResponse(t))
	}
	recentInsights := make([]map[string]any, 0, len(overview.RecentInsights))
	for _, i := range overview.RecentInsights {
		recentInsights = append(recentInsights, toInsightResponse(i))
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"total_projects":         overview.TotalProjects,
		"active_projects":        overview.ActiveProjects,
		"total_transcripts":      overview.TotalTranscripts,
		"total_insights":         overview.TotalInsights,
		"open_insights":          overview.OpenInsights,
		"critical_insights":      overview.CriticalInsights,
		"sentiment_distribution": overview.SentimentDistribution,
		"recent_transcripts":     recentTranscripts,
		"recent_insights":        recentInsights,
	})
}

func toProjectMetricsResponse(m *dashboard.ProjectMetrics) map[string]any {
	return map[string]any{
		"project":                toProjectResponse(m.Project),
		"milestone_total":        m.MilestoneTotal,
		"milestone_completed":    m.MilestoneCompleted,
		"milestone_completion":   m.MilestoneCompletion,
		"transcript_count":       m.TranscriptCount,
		"insight_count":          m.InsightCount,
		"open_insights":          m.OpenInsights,
		"critical_insights":      m.CriticalInsights,
		"sentiment_distribution": m.SentimentDistribution,
	}
}

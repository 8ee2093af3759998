package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/project"
)

// ProjectServiceInterface は案件ハンドラーが必要とするサービスインターフェース。
type ProjectServiceInterface interface {
	Create(ctx context.Context, userID string, input project.CreateInput) (*model.Project, error)
	Get(ctx context.Context, userID, id string) (*project.Detail, error)
	List(ctx context.Context, userID string) ([]*project.Detail, error)
	Update(ctx context.Context, userID, id string, input project.UpdateInput) (*model.Project, error)
	Delete(ctx context.Context, userID, id string) error
}

// ProjectHandler はクライアント案件のHTTPハンドラー。
type ProjectHandler struct {
	service ProjectServiceInterface
}

// NewProjectHandler はProjectHandlerを生成する。
func NewProjectHandler(service ProjectServiceInterface) *ProjectHandler {
	return &ProjectHandler{service: service}
}

// milestoneRequest は案件作成時のインラインマイルストーン。
type milestoneRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
}

// createProjectRequest は案件作成リクエストのボディ。
type createProjectRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Status      string             `json:"status"`
	ClientName  string             `json:"client_name"`
	ClientEmail string             `json:"client_email"`
	StartDate   string             `json:"start_date"`
	EndDate     string             `json:"end_date"`
	Milestones  []milestoneRequest `json:"milestones"`
}

// updateProjectRequest は案件更新リクエストのボディ。nilのフィールドは変更しない。
type updateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	ClientName  *string `json:"client_name"`
	ClientEmail *string `json:"client_email"`
	StartDate   *string `json:"start_date"`
	EndDate     *string `json:"end_date"`
}

// Create は案件を作成する。
// POST /projects
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("malformed JSON body"))
		return
	}

	input := project.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
		StartDate:   parseDate(req.StartDate),
		EndDate:     parseDate(req.EndDate),
	}
	for _, m := range req.Milestones {
		input.Milestones = append(input.Milestones, project.MilestoneInput{
			Title:       m.Title,
			Description: m.Description,
			DueDate:     parseDate(m.DueDate),
		})
	}

	created, err := h.service.Create(r.Context(), userID, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, toProjectResponse(created))
}

// List はユーザーの案件一覧を詳細付きで返す。
// GET /projects
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	details, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	projects := make([]map[string]any, 0, len(details))
	for _, d := range details {
		projects = append(projects, toDetailResponse(d))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"projects": projects,
		"count":    len(projects),
	})
}

// Get は案件の詳細を返す。
// GET /projects/{id}
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	detail, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toDetailResponse(detail))
}

// Update は案件を部分更新する。
// PUT /projects/{id}
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("malformed JSON body"))
		return
	}

	input := project.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		ClientName:  req.ClientName,
		ClientEmail: req.ClientEmail,
	}
	if req.StartDate != nil {
		input.StartDate = parseDate(*req.StartDate)
	}
	if req.EndDate != nil {
		input.EndDate = parseDate(*req.EndDate)
	}

	updated, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), input)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toProjectResponse(updated))
}

// Delete は案件を削除する。配下のデータはCASCADE削除される。
// DELETE /projects/{id}
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- レスポンス変換 ---

// parseDate はRFC3339または日付のみの文字列を解析する。解析不能・空はnil。
func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t
	}
	return nil
}

func formatDatePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func toProjectResponse(p *model.Project) map[string]any {
	return map[string]any{
		"id":           p.ID,
		"name":         p.Name,
		"description":  p.Description,
		"status":       p.Status,
		"client_name":  p.ClientName,
		"client_email": p.ClientEmail,
		"start_date":   formatDatePtr(p.StartDate),
		"end_date":     formatDatePtr(p.EndDate),
		"created_at":   p.CreatedAt.Format(time.RFC3339),
		"updated_at":   p.UpdatedAt.Format(time.RFC3339),
	}
}

func toMilestoneResponse(m *model.Milestone) map[string]any {
	return map[string]any{
		"id":           m.ID,
		"title":        m.Title,
		"description":  m.Description,
		"status":       m.Status,
		"due_date":     formatDatePtr(m.DueDate),
		"completed_at": formatDatePtr(m.CompletedAt),
	}
}

func toTranscriptResponse(t *model.Transcript) map[string]any {
	return map[string]any{
		"id":           t.ID,
		"project_id":   t.ProjectID,
		"title":        t.Title,
		"content":      t.Content,
		"call_date":    t.CallDate.Format(time.RFC3339),
		"duration_min": t.DurationMin,
		"participants": t.Participants,
		"created_at":   t.CreatedAt.Format(time.RFC3339),
	}
}

func toAnalysisResponse(a *model.Analysis) map[string]any {
	if a == nil {
		return nil
	}
	return map[string]any{
		"summary":       a.Summary,
		"key_points":    a.KeyPoints,
		"pain_points":   a.PainPoints,
		"opportunities": a.Opportunities,
		"action_items":  a.ActionItems,
		"sentiment":     a.Sentiment,
		"confidence":    a.Confidence,
	}
}

func toInsightResponse(i *model.Insight) map[string]any {
	return map[string]any{
		"id":          i.ID,
		"project_id":  i.ProjectID,
		"type":        i.Type,
		"title":       i.Title,
		"description": i.Description,
		"severity":    i.Severity,
		"status":      i.Status,
		"created_at":  i.CreatedAt.Format(time.RFC3339),
	}
}

func toDetailResponse(d *project.Detail) map[string]any {
	milestones := make([]map[string]any, 0, len(d.Milestones))
	for _, m := range d.Milestones {
		milestones = append(milestones, toMilestoneResponse(m))
	}
	transcripts := make([]map[string]any, 0, len(d.Transcripts))
	for _, t := range d.Transcripts {
		entry := toTranscriptResponse(t.Transcript)
		entry["analysis"] = toAnalysisResponse(t.Analysis)
		transcripts = append(transcripts, entry)
	}
	insights := make([]map[string]any, 0, len(d.Insights))
	for _, i := range d.Insights {
		insights = append(insights, toInsightResponse(i))
	}

	resp := toProjectResponse(d.Project)
	resp["milestones"] = milestones
	resp["transcripts"] = transcripts
	resp["insights"] = insights
	resp["transcript_count"] = len(transcripts)
	resp["insight_count"] = len(insights)
	return resp
}

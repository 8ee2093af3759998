package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/analysis"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
)

// --- モック ---

type mockAnalysisService struct {
	createFunc func(ctx context.Context, userID string, input analysis.CreateInput) (*analysis.CreateResult, error)
}

func (m *mockAnalysisService) CreateTranscript(ctx context.Context, userID string, input analysis.CreateInput) (*analysis.CreateResult, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, userID, input)
	}
	return nil, nil
}

func transcriptFormRequest(values url.Values) *http.Request {
	req := authedRequest(http.MethodPost, "/transcripts", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// --- テスト ---

func TestTranscriptCreate(t *testing.T) {
	var gotInput analysis.CreateInput
	service := &mockAnalysisService{
		createFunc: func(ctx context.Context, userID string, input analysis.CreateInput) (*analysis.CreateResult, error) {
			gotInput = input
			return &analysis.CreateResult{
				Transcript: &model.Transcript{ID: "t1", ProjectID: input.ProjectID, CallDate: time.Now(), CreatedAt: time.Now()},
				Analysis:   &model.Analysis{TranscriptID: "t1", Summary: "good call", Sentiment: "positive"},
				Insights:   []*model.Insight{{ID: "i1", Type: "bottleneck", CreatedAt: time.Now()}},
			}, nil
		},
	}
	h := NewTranscriptHandler(service)

	form := url.Values{}
	form.Set("project_id", "p1")
	form.Set("title", "Weekly call")
	form.Set("content", "client said things")
	form.Set("duration_min", "45")
	rec := httptest.NewRecorder()
	h.Create(rec, transcriptFormRequest(form))

	if rec.Code != http.StatusCreated {
		t.Fatalf("ステータスコードが期待と異なる: %d", rec.Code)
	}
	if gotInput.ProjectID != "p1" || gotInput.Content != "client said things" {
		t.Errorf("入力が期待と異なる: %+v", gotInput)
	}
	if gotInput.DurationMin == nil || *gotInput.DurationMin != 45 {
		t.Errorf("通話時間が解析されていない: %v", gotInput.DurationMin)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのJSON解析に失敗: %v", err)
	}
	analysisResp := resp["analysis"].(map[string]any)
	if analysisResp["sentiment"] != "positive" {
		t.Errorf("解析結果が期待と異なる: %+v", analysisResp)
	}
	if len(resp["insights"].([]any)) != 1 {
		t.Errorf("インサイト数が期待と異なる: %v", resp["insights"])
	}
}

func TestTranscriptCreate_MissingContent(t *testing.T) {
	service := &mockAnalysisService{
		createFunc: func(ctx context.Context, userID string, input analysis.CreateInput) (*analysis.CreateResult, error) {
			return nil, model.NewInvalidRequestError("transcript content is required")
		},
	}
	h := NewTranscriptHandler(service)

	form := url.Values{}
	form.Set("project_id", "p1")
	rec := httptest.NewRecorder()
	h.Create(rec, transcriptFormRequest(form))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("内容なしで400になっていない: %d", rec.Code)
	}
}

func TestTranscriptCreate_ForeignProject(t *testing.T) {
	service := &mockAnalysisService{
		createFunc: func(ctx context.Context, userID string, input analysis.CreateInput) (*analysis.CreateResult, error) {
			return nil, model.NewProjectNotFoundError()
		},
	}
	h := NewTranscriptHandler(service)

	form := url.Values{}
	form.Set("project_id", "foreign")
	form.Set("content", "text")
	rec := httptest.NewRecorder()
	h.Create(rec, transcriptFormRequest(form))

	if rec.Code != http.StatusNotFound {
		t.Errorf("他ユーザー案件で404になっていない: %d", rec.Code)
	}
}

package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/llm"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
)

// --- モック ---

type mockProjectRepo struct {
	findByIDAndUserFunc func(ctx context.Context, id, userID string) (*model.Project, error)
}

func (m *mockProjectRepo) Create(ctx context.Context, project *model.Project) error { return nil }

func (m *mockProjectRepo) FindByIDAndUser(ctx context.Context, id, userID string) (*model.Project, error) {
	if m.findByIDAndUserFunc != nil {
		return m.findByIDAndUserFunc(ctx, id, userID)
	}
	return nil, nil
}

func (m *mockProjectRepo) ListByUser(ctx context.Context, userID string) ([]*model.Project, error) {
	return nil, nil
}

func (m *mockProjectRepo) Update(ctx context.Context, project *model.Project) (bool, error) {
	return true, nil
}

func (m *mockProjectRepo) Delete(ctx context.Context, id, userID string) (bool, error) {
	return true, nil
}

type mockTranscriptRepo struct {
	createFunc func(ctx context.Context, transcript *model.Transcript) error
	created    []*model.Transcript
}

func (m *mockTranscriptRepo) Create(ctx context.Context, transcript *model.Transcript) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, transcript)
	}
	m.created = append(m.created, transcript)
	return nil
}

func (m *mockTranscriptRepo) ListByProject(ctx context.Context, projectID string) ([]*model.Transcript, error) {
	return nil, nil
}

func (m *mockTranscriptRepo) ListRecentByUser(ctx context.Context, userID string, limit int) ([]*model.Transcript, error) {
	return nil, nil
}

type mockAnalysisRepo struct {
	createFunc func(ctx context.Context, analysis *model.Analysis) error
	created    []*model.Analysis
}

func (m *mockAnalysisRepo) Create(ctx context.Context, analysis *model.Analysis) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, analysis)
	}
	m.created = append(m.created, analysis)
	return nil
}

func (m *mockAnalysisRepo) FindByTranscript(ctx context.Context, transcriptID string) (*model.Analysis, error) {
	return nil, nil
}

func (m *mockAnalysisRepo) ListByProject(ctx context.Context, projectID string) ([]*model.Analysis, error) {
	return nil, nil
}

type mockInsightRepo struct {
	created []*model.Insight
}

func (m *mockInsightRepo) Create(ctx context.Context, insight *model.Insight) error {
	m.created = append(m.created, insight)
	return nil
}

func (m *mockInsightRepo) ListByProject(ctx context.Context, projectID string) ([]*model.Insight, error) {
	return nil, nil
}

func (m *mockInsightRepo) ListRecentByUser(ctx context.Context, userID string, limit int) ([]*model.Insight, error) {
	return nil, nil
}

type mockCompleter struct {
	completeFunc func(ctx context.Context, kind, system string, messages []llm.Message, temperature float64) (string, error)
}

func (m *mockCompleter) Complete(ctx context.Context, kind, system string, messages []llm.Message, temperature float64) (string, error) {
	if m.completeFunc != nil {
		return m.completeFunc(ctx, kind, system, messages, temperature)
	}
	return "", nil
}

func owningProjectRepo() *mockProjectRepo {
	return &mockProjectRepo{
		findByIDAndUserFunc: func(ctx context.Context, id, userID string) (*model.Project, error) {
			return &model.Project{ID: id, UserID: userID}, nil
		},
	}
}

func validAnalysisJSON() string {
	return `{
		"summary": "Client is stalled on nutrition adherence.",
		"keyPoints": ["travel schedule is disruptive"],
		"painPoints": ["cannot stay consistent on the road"],
		"opportunities": ["build a travel meal protocol"],
		"actionItems": ["send hotel gym template"],
		"sentiment": "mixed",
		"confidence": 0.82
	}`
}

func validInput() CreateInput {
	return CreateInput{
		ProjectID: "project-1",
		Title:     "Weekly check-in",
		Content:   "Coach: how was the week? Client: rough, I was traveling...",
		CallDate:  time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateTranscript_Success_WithAnalysisAndInsights(t *testing.T) {
	transcripts := &mockTranscriptRepo{}
	analyses := &mockAnalysisRepo{}
	insights := &mockInsightRepo{}
	completer := &mockCompleter{
		completeFunc: func(ctx context.Context, kind, system string, messages []llm.Message, temperature float64) (string, error) {
			if kind != "analysis" {
				t.Errorf("kind = %q, want analysis", kind)
			}
			return "Sure:\n" + validAnalysisJSON(), nil
		},
	}
	s := NewService(owningProjectRepo(), transcripts, analyses, insights, completer, nil)

	result, err := s.CreateTranscript(context.Background(), "user-1", validInput())
	if err != nil {
		t.Fatalf("CreateTranscript() error = %v", err)
	}

	if len(transcripts.created) != 1 {
		t.Fatalf("トランスクリプト作成数 = %d", len(transcripts.created))
	}
	if result.Analysis.Sentiment != "mixed" || result.Analysis.Confidence != 0.82 {
		t.Errorf("Analysis = %+v", result.Analysis)
	}
	if len(result.Analysis.PainPoints) != 1 {
		t.Errorf("PainPoints = %v", result.Analysis.PainPoints)
	}

	// ペインポイント1件 + 機会1件 = インサイト2件
	if len(insights.created) != 2 {
		t.Fatalf("インサイト数 = %d, want 2", len(insights.created))
	}
	if insights.created[0].Type != "bottleneck" || insights.created[1].Type != "opportunity" {
		t.Errorf("インサイト種別が不正: %+v", insights.created)
	}
	for _, ins := range insights.created {
		if ins.Severity != "medium" || ins.Status != "open" {
			t.Errorf("severity/statusが不正: %+v", ins)
		}
	}
}

func TestCreateTranscript_ProjectNotOwned_NotFound(t *testing.T) {
	s := NewService(&mockProjectRepo{}, &mockTranscriptRepo{}, &mockAnalysisRepo{}, &mockInsightRepo{}, &mockCompleter{}, nil)

	_, err := s.CreateTranscript(context.Background(), "user-2", validInput())
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProjectNotFound {
		t.Errorf("err = %v, want PROJECT_NOT_FOUND", err)
	}
}

func TestCreateTranscript_EmptyContent_Rejected(t *testing.T) {
	s := NewService(owningProjectRepo(), &mockTranscriptRepo{}, &mockAnalysisRepo{}, &mockInsightRepo{}, &mockCompleter{}, nil)

	input := validInput()
	input.Content = "   "
	_, err := s.CreateTranscript(context.Background(), "user-1", input)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}

func TestCreateTranscript_ProviderFailure_NeutralFallback(t *testing.T) {
	analyses := &mockAnalysisRepo{}
	insights := &mockInsightRepo{}
	completer := &mockCompleter{
		completeFunc: func(ctx context.Context, kind, system string, messages []llm.Message, temperature float64) (string, error) {
			return "", model.NewProviderFailedError("down")
		},
	}
	s := NewService(owningProjectRepo(), &mockTranscriptRepo{}, analyses, insights, completer, nil)

	result, err := s.CreateTranscript(context.Background(), "user-1", validInput())
	if err != nil {
		t.Fatalf("解析失敗で登録を失敗させるべきではない: %v", err)
	}
	if result.Analysis.Sentiment != "neutral" || result.Analysis.Confidence != 0 {
		t.Errorf("ニュートラルなデフォルトであるべき: %+v", result.Analysis)
	}
	if result.Analysis.Summary != neutralSummary {
		t.Errorf("Summary = %q", result.Analysis.Summary)
	}
	if len(insights.created) != 0 {
		t.Errorf("デフォルト解析からインサイトは生成されないべき: %d", len(insights.created))
	}
}

func TestCreateTranscript_InvalidSentiment_NeutralFallback(t *testing.T) {
	completer := &mockCompleter{
		completeFunc: func(ctx context.Context, kind, system string, messages []llm.Message, temperature float64) (string, error) {
			return `{"summary": "ok", "sentiment": "euphoric"}`, nil
		},
	}
	s := NewService(owningProjectRepo(), &mockTranscriptRepo{}, &mockAnalysisRepo{}, &mockInsightRepo{}, completer, nil)

	result, err := s.CreateTranscript(context.Background(), "user-1", validInput())
	if err != nil {
		t.Fatalf("CreateTranscript() error = %v", err)
	}
	if result.Analysis.Sentiment != "neutral" {
		t.Errorf("不正なセンチメントはニュートラルに落ちるべき: %q", result.Analysis.Sentiment)
	}
}

func TestCreateTranscript_MalformedJSON_NeutralFallback(t *testing.T) {
	completer := &mockCompleter{
		completeFunc: func(ctx context.Context, kind, system string, messages []llm.Message, temperature float64) (string, error) {
			return "I could not analyze this call, sorry.", nil
		},
	}
	s := NewService(owningProjectRepo(), &mockTranscriptRepo{}, &mockAnalysisRepo{}, &mockInsightRepo{}, completer, nil)

	result, err := s.CreateTranscript(context.Background(), "user-1", validInput())
	if err != nil {
		t.Fatalf("CreateTranscript() error = %v", err)
	}
	if result.Analysis.Summary != neutralSummary {
		t.Errorf("Summary = %q, want neutral default", result.Analysis.Summary)
	}
}

func TestCreateTranscript_OutOfRangeConfidence_Clamped(t *testing.T) {
	completer := &mockCompleter{
		completeFunc: func(ctx context.Context, kind, system string, messages []llm.Message, temperature float64) (string, error) {
			return `{"summary": "ok", "sentiment": "positive", "confidence": 7}`, nil
		},
	}
	s := NewService(owningProjectRepo(), &mockTranscriptRepo{}, &mockAnalysisRepo{}, &mockInsightRepo{}, completer, nil)

	result, err := s.CreateTranscript(context.Background(), "user-1", validInput())
	if err != nil {
		t.Fatalf("CreateTranscript() error = %v", err)
	}
	if result.Analysis.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want 0.5", result.Analysis.Confidence)
	}
}

func TestCreateTranscript_DefaultsTitleAndDate(t *testing.T) {
	transcripts := &mockTranscriptRepo{}
	s := NewService(owningProjectRepo(), transcripts, &mockAnalysisRepo{}, &mockInsightRepo{}, &mockCompleter{}, nil)

	input := validInput()
	input.Title = ""
	if _, err := s.CreateTranscript(context.Background(), "user-1", input); err != nil {
		t.Fatalf("CreateTranscript() error = %v", err)
	}
	if transcripts.created[0].Title != "Call on 2026-08-20" {
		t.Errorf("Title = %q", transcripts.created[0].Title)
	}
}

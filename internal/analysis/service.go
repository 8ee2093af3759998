// Package analysis はコールトランスクリプトの登録とAI解析を提供する。
// 解析は登録直後に同期的なベストエフォートで行い、失敗しても登録自体は成立する。
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/llm"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/metrics"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/repository"
)

const (
	// analysisTemperature は解析呼び出しの温度。構造化出力の安定を優先して低くする。
	analysisTemperature = 0.3

	// neutralSummary は解析失敗時のデフォルトサマリー。
	neutralSummary = "Automated analysis is unavailable for this transcript."

	// maxTranscriptChars は解析プロンプトに載せるトランスクリプトの上限。
	maxTranscriptChars = 12000
)

// validSentiments はセンチメントの有効値。
var validSentiments = map[string]bool{
	"positive": true,
	"negative": true,
	"neutral":  true,
	"mixed":    true,
}

// Completer はチャット補完のインターフェース。llm.Clientの部分集合。
type Completer interface {
	Complete(ctx context.Context, kind, system string, messages []llm.Message, temperature float64) (string, error)
}

// Service はトランスクリプト管理と解析のサービス。
type Service struct {
	projectRepo    repository.ProjectRepository
	transcriptRepo repository.TranscriptRepository
	analysisRepo   repository.AnalysisRepository
	insightRepo    repository.InsightRepository
	completer      Completer
	collector      metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	projectRepo repository.ProjectRepository,
	transcriptRepo repository.TranscriptRepository,
	analysisRepo repository.AnalysisRepository,
	insightRepo repository.InsightRepository,
	completer Completer,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		projectRepo:    projectRepo,
		transcriptRepo: transcriptRepo,
		analysisRepo:   analysisRepo,
		insightRepo:    insightRepo,
		completer:      completer,
		collector:      collector,
	}
}

// CreateInput はトランスクリプト登録の入力。
type CreateInput struct {
	ProjectID    string
	Title        string
	Content      string
	CallDate     time.Time
	DurationMin  *int
	Participants string
}

// CreateResult はトランスクリプト登録の結果。
type CreateResult struct {
	Transcript *model.Transcript
	Analysis   *model.Analysis
	Insights   []*model.Insight
}

// CreateTranscript はトランスクリプトを登録し、続けて解析を実行する。
// 案件の所有チェックに失敗した場合のみエラー。解析の失敗は
// ニュートラルなデフォルト解析に置き換えられ、登録は成立する。
func (s *Service) CreateTranscript(ctx context.Context, userID string, input CreateInput) (*CreateResult, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, model.NewInvalidRequestError("transcript content is required")
	}

	project, err := s.projectRepo.FindByIDAndUser(ctx, input.ProjectID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	if project == nil {
		return nil, model.NewProjectNotFoundError()
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "Call on " + input.CallDate.Format("2006-01-02")
	}
	callDate := input.CallDate
	if callDate.IsZero() {
		callDate = time.Now()
	}

	transcript := &model.Transcript{
		ID:           uuid.New().String(),
		ProjectID:    project.ID,
		Title:        title,
		Content:      input.Content,
		CallDate:     callDate,
		DurationMin:  input.DurationMin,
		Participants: input.Participants,
		CreatedAt:    time.Now(),
	}
	if err := s.transcriptRepo.Create(ctx, transcript); err != nil {
		return nil, fmt.Errorf("failed to create transcript: %w", err)
	}

	analysis := s.analyze(ctx, transcript)
	if err := s.analysisRepo.Create(ctx, analysis); err != nil {
		// 解析結果の保存失敗は登録を巻き戻さない
		slog.Error("failed to store analysis",
			slog.String("transcript_id", transcript.ID),
			slog.String("error", err.Error()),
		)
		return &CreateResult{Transcript: transcript}, nil
	}

	insights := s.deriveInsights(ctx, project.ID, analysis)

	return &CreateResult{
		Transcript: transcript,
		Analysis:   analysis,
		Insights:   insights,
	}, nil
}

// analysisSchema はLLM解析結果の期待スキーマ。
type analysisSchema struct {
	Summary       string   `json:"summary"`
	KeyPoints     []string `json:"keyPoints"`
	PainPoints    []string `json:"painPoints"`
	Opportunities []string `json:"opportunities"`
	ActionItems   []string `json:"actionItems"`
	Sentiment     string   `json:"sentiment"`
	Confidence    float64  `json:"confidence"`
}

const analysisSystemPrompt = `You are analyzing a coaching call transcript for a fitness and business coach.
Extract the substance of the call and return ONLY a JSON object with these keys:
"summary" (string, 2-4 sentences), "keyPoints" (array of strings),
"painPoints" (array of strings, the client's stated struggles),
"opportunities" (array of strings, openings for the coach to act on),
"actionItems" (array of strings), "sentiment" (one of "positive", "negative", "neutral", "mixed"),
"confidence" (number between 0 and 1).`

// analyze はトランスクリプトをLLMで解析する。
// いかなる失敗もニュートラルなデフォルト解析に変換される。
func (s *Service) analyze(ctx context.Context, transcript *model.Transcript) *model.Analysis {
	content := transcript.Content
	if len(content) > maxTranscriptChars {
		content = content[:maxTranscriptChars]
	}

	raw, err := s.completer.Complete(ctx, "analysis", analysisSystemPrompt, []llm.Message{
		{Role: "user", Content: content},
	}, analysisTemperature)
	if err != nil {
		return s.neutralAnalysis(transcript.ID, "completion failed")
	}

	jsonStr, err := llm.ExtractJSONObject(raw)
	if err != nil {
		return s.neutralAnalysis(transcript.ID, "no json object in response")
	}

	var parsed analysisSchema
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return s.neutralAnalysis(transcript.ID, "schema decode failed")
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return s.neutralAnalysis(transcript.ID, "missing summary")
	}
	if !validSentiments[parsed.Sentiment] {
		return s.neutralAnalysis(transcript.ID, "invalid sentiment: "+parsed.Sentiment)
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		parsed.Confidence = 0.5
	}

	return &model.Analysis{
		ID:            uuid.New().String(),
		TranscriptID:  transcript.ID,
		Summary:       parsed.Summary,
		KeyPoints:     emptyIfNil(parsed.KeyPoints),
		PainPoints:    emptyIfNil(parsed.PainPoints),
		Opportunities: emptyIfNil(parsed.Opportunities),
		ActionItems:   emptyIfNil(parsed.ActionItems),
		Sentiment:     parsed.Sentiment,
		Confidence:    parsed.Confidence,
		CreatedAt:     time.Now(),
	}
}

// neutralAnalysis は解析失敗時のデフォルト解析を生成する。
func (s *Service) neutralAnalysis(transcriptID, reason string) *model.Analysis {
	s.collector.RecordAnalysisFailure()
	slog.Warn("transcript analysis fell back to neutral default",
		slog.String("transcript_id", transcriptID),
		slog.String("reason", reason),
	)
	return &model.Analysis{
		ID:            uuid.New().String(),
		TranscriptID:  transcriptID,
		Summary:       neutralSummary,
		KeyPoints:     []string{},
		PainPoints:    []string{},
		Opportunities: []string{},
		ActionItems:   []string{},
		Sentiment:     "neutral",
		Confidence:    0,
		CreatedAt:     time.Now(),
	}
}

// deriveInsights は解析結果からインサイトを自動生成する。
// ペインポイント1件につきbottleneck、機会1件につきopportunityを起こす。
func (s *Service) deriveInsights(ctx context.Context, projectID string, analysis *model.Analysis) []*model.Insight {
	var insights []*model.Insight

	add := func(insightType, title string) {
		insight := &model.Insight{
			ID:          uuid.New().String(),
			ProjectID:   projectID,
			Type:        insightType,
			Title:       title,
			Description: "Derived from call analysis: " + analysis.Summary,
			Severity:    "medium",
			Status:      "open",
			CreatedAt:   time.Now(),
		}
		if err := s.insightRepo.Create(ctx, insight); err != nil {
			slog.Error("failed to store insight",
				slog.String("project_id", projectID),
				slog.String("error", err.Error()),
			)
			return
		}
		insights = append(insights, insight)
	}

	for _, p := range analysis.PainPoints {
		add("bottleneck", p)
	}
	for _, o := range analysis.Opportunities {
		add("opportunity", o)
	}

	return insights
}

// emptyIfNil はJSONでフィールド欠落だった場合に空スライスへ正規化する。
func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

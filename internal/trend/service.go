// Package trend はユーザー横断データのトレンド解析を提供する。
package trend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/knowledge"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/llm"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/repository"
)

const (
	// trendTemperature はトレンド抽出の温度。
	trendTemperature = 0.2

	// 解析に含めるソースデータの上限件数。
	transcriptLimit = 50
	blobLimit       = 20
	insightLimit    = 30

	// maxSourceChars はプロンプトに載せるソースデータの上限。
	maxSourceChars = 12000
)

// Completer はチャット補完のインターフェース。llm.Clientの部分集合。
type Completer interface {
	Complete(ctx context.Context, kind, system string, messages []llm.Message, temperature float64) (string, error)
}

// Service はトレンド解析のサービス。
type Service struct {
	projectRepo    repository.ProjectRepository
	transcriptRepo repository.TranscriptRepository
	analysisRepo   repository.AnalysisRepository
	blobRepo       repository.BlobRepository
	insightRepo    repository.InsightRepository
	trendRepo      repository.TrendRepository
	completer      Completer
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	projectRepo repository.ProjectRepository,
	transcriptRepo repository.TranscriptRepository,
	analysisRepo repository.AnalysisRepository,
	blobRepo repository.BlobRepository,
	insightRepo repository.InsightRepository,
	trendRepo repository.TrendRepository,
	completer Completer,
) *Service {
	return &Service{
		projectRepo:    projectRepo,
		transcriptRepo: transcriptRepo,
		analysisRepo:   analysisRepo,
		blobRepo:       blobRepo,
		insightRepo:    insightRepo,
		trendRepo:      trendRepo,
		completer:      completer,
	}
}

// Data はトレンド解析の構造化結果。
type Data struct {
	TrendingTopics   []string `json:"trendingTopics"`
	CoachingPatterns []string `json:"coachingPatterns"`
	ClientInsights   []string `json:"clientInsights"`
	Recommendations  []string `json:"recommendations"`
}

// Meta は解析に使用したソースデータの件数。
type Meta struct {
	TranscriptCount int
	BlobCount       int
	InsightCount    int
}

// Result はトレンド解析の結果。
type Result struct {
	Trends      Data
	Meta        Meta
	Fallback    bool // LLM失敗によりニュートラルなデフォルトが入っている
	GeneratedAt time.Time
}

const trendSystemPrompt = `You are analyzing aggregated coaching business data: call transcript analyses, knowledge base entries, and project insights.
Identify patterns across the whole dataset and return ONLY a JSON object with these keys:
"trendingTopics" (array of strings, recurring themes across clients),
"coachingPatterns" (array of strings, what the coach repeatedly does or says),
"clientInsights" (array of strings, what clients struggle with or respond to),
"recommendations" (array of strings, concrete next moves for the coach).`

// Analyze はユーザーの直近データを集めてトレンドを抽出し、結果をキャッシュする。
// LLM失敗時はニュートラルなデフォルト（空のトレンド）を返し、エラーにはしない。
func (s *Service) Analyze(ctx context.Context, userID string) (*Result, error) {
	source, meta, err := s.gatherSource(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &Result{Meta: meta, GeneratedAt: time.Now()}

	data, ok := s.extract(ctx, source)
	if !ok {
		result.Fallback = true
		result.Trends = Data{
			TrendingTopics:   []string{},
			CoachingPatterns: []string{},
			ClientInsights:   []string{},
			Recommendations:  []string{},
		}
	} else {
		result.Trends = data
	}

	if err := s.cache(ctx, userID, result); err != nil {
		// キャッシュ失敗は結果の返却を妨げない
		slog.Error("failed to cache trend analysis",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	return result, nil
}

// gatherSource は解析対象のソーステキストとメタ情報を収集する。
func (s *Service) gatherSource(ctx context.Context, userID string) (string, Meta, error) {
	var meta Meta
	var sb strings.Builder

	transcripts, err := s.transcriptRepo.ListRecentByUser(ctx, userID, transcriptLimit)
	if err != nil {
		return "", meta, fmt.Errorf("failed to list recent transcripts: %w", err)
	}
	meta.TranscriptCount = len(transcripts)

	sb.WriteString("CALL ANALYSES:\n")
	for _, tr := range transcripts {
		analysis, err := s.analysisRepo.FindByTranscript(ctx, tr.ID)
		if err != nil {
			return "", meta, fmt.Errorf("failed to find analysis: %w", err)
		}
		if analysis == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("- [%s] %s | pain: %s | opportunities: %s\n",
			analysis.Sentiment,
			analysis.Summary,
			strings.Join(analysis.PainPoints, "; "),
			strings.Join(analysis.Opportunities, "; "),
		))
	}

	blobs, err := s.blobRepo.ListRecentByUser(ctx, userID, blobLimit)
	if err != nil {
		return "", meta, fmt.Errorf("failed to list recent blobs: %w", err)
	}
	meta.BlobCount = len(blobs)

	sb.WriteString("\nKNOWLEDGE BASE:\n")
	for _, b := range blobs {
		sb.WriteString("- " + knowledge.Truncate(b.Content, 300) + "\n")
	}

	insights, err := s.insightRepo.ListRecentByUser(ctx, userID, insightLimit)
	if err != nil {
		return "", meta, fmt.Errorf("failed to list recent insights: %w", err)
	}
	meta.InsightCount = len(insights)

	sb.WriteString("\nPROJECT INSIGHTS:\n")
	for _, i := range insights {
		sb.WriteString(fmt.Sprintf("- [%s/%s] %s: %s\n", i.Type, i.Severity, i.Title, i.Description))
	}

	return knowledge.Truncate(sb.String(), maxSourceChars), meta, nil
}

// extract はLLMでトレンドを抽出する。失敗時はfalseを返す。
func (s *Service) extract(ctx context.Context, source string) (Data, bool) {
	raw, err := s.completer.Complete(ctx, "trend", trendSystemPrompt, []llm.Message{
		{Role: "user", Content: source},
	}, trendTemperature)
	if err != nil {
		slog.Warn("trend extraction failed", slog.String("error", err.Error()))
		return Data{}, false
	}

	jsonStr, err := llm.ExtractJSONObject(raw)
	if err != nil {
		return Data{}, false
	}

	var data Data
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		slog.Warn("trend response failed schema decode", slog.String("error", err.Error()))
		return Data{}, false
	}

	if data.TrendingTopics == nil {
		data.TrendingTopics = []string{}
	}
	if data.CoachingPatterns == nil {
		data.CoachingPatterns = []string{}
	}
	if data.ClientInsights == nil {
		data.ClientInsights = []string{}
	}
	if data.Recommendations == nil {
		data.Recommendations = []string{}
	}
	return data, true
}

// cache は解析結果をtrend_analysesに保存する。
func (s *Service) cache(ctx context.Context, userID string, result *Result) error {
	payload, err := json.Marshal(result.Trends)
	if err != nil {
		return fmt.Errorf("failed to marshal trend data: %w", err)
	}
	return s.trendRepo.Create(ctx, &model.TrendAnalysis{
		ID:        uuid.New().String(),
		UserID:    userID,
		Analysis:  string(payload),
		CreatedAt: result.GeneratedAt,
	})
}

// insightSchema はgenerate_insightのLLM出力スキーマ。
type insightSchema struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

var (
	validInsightTypes = map[string]bool{
		"bottleneck":  true,
		"opportunity": true,
	}
	validSeverities = map[string]bool{
		"low":      true,
		"medium":   true,
		"high":     true,
		"critical": true,
	}
)

const insightSystemPrompt = `You are generating a single actionable project insight from coaching trend data.
Return ONLY a JSON object with keys:
"type" (one of "bottleneck", "opportunity"),
"title" (string, short),
"description" (string, 1-3 sentences),
"severity" (one of "low", "medium", "high", "critical").`

// GenerateInsight は渡されたトレンドデータからLLMでインサイトを1件生成する。
// projectIDが指定されている場合は所有チェックのうえ永続化する。
// LLM失敗はエラーとして返す（フォールバックに意味のある形がないため）。
func (s *Service) GenerateInsight(ctx context.Context, userID, projectID, trendData string) (*model.Insight, error) {
	trendData = strings.TrimSpace(trendData)
	if trendData == "" {
		return nil, model.NewInvalidRequestError("trend data is required")
	}
	trendData = knowledge.Truncate(trendData, maxSourceChars)

	raw, err := s.completer.Complete(ctx, "trend", insightSystemPrompt, []llm.Message{
		{Role: "user", Content: trendData},
	}, trendTemperature)
	if err != nil {
		return nil, err
	}

	jsonStr, err := llm.ExtractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var parsed insightSchema
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, model.NewProviderParseError()
	}
	if !validInsightTypes[parsed.Type] || strings.TrimSpace(parsed.Title) == "" {
		return nil, model.NewProviderParseError()
	}
	if !validSeverities[parsed.Severity] {
		parsed.Severity = "medium"
	}

	insight := &model.Insight{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Type:        parsed.Type,
		Title:       parsed.Title,
		Description: parsed.Description,
		Severity:    parsed.Severity,
		Status:      "open",
		CreatedAt:   time.Now(),
	}

	if projectID != "" {
		project, err := s.projectRepo.FindByIDAndUser(ctx, projectID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to find project: %w", err)
		}
		if project == nil {
			return nil, model.NewProjectNotFoundError()
		}
		if err := s.insightRepo.Create(ctx, insight); err != nil {
			return nil, fmt.Errorf("failed to store insight: %w", err)
		}
	}

	return insight, nil
}

// Package dashboard は案件横断のメトリクス集計を提供する。
package dashboard

import (
	"context"
	"fmt"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/repository"
)

// recentLimit は全体ダッシュボードに含める直近アイテムの件数。
const recentLimit = 5

// Service はダッシュボード集計のサービス。
type Service struct {
	projectRepo    repository.ProjectRepository
	milestoneRepo  repository.MilestoneRepository
	transcriptRepo repository.TranscriptRepository
	analysisRepo   repository.AnalysisRepository
	insightRepo    repository.InsightRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	projectRepo repository.ProjectRepository,
	milestoneRepo repository.MilestoneRepository,
	transcriptRepo repository.TranscriptRepository,
	analysisRepo repository.AnalysisRepository,
	insightRepo repository.InsightRepository,
) *Service {
	return &Service{
		projectRepo:    projectRepo,
		milestoneRepo:  milestoneRepo,
		transcriptRepo: transcriptRepo,
		analysisRepo:   analysisRepo,
		insightRepo:    insightRepo,
	}
}

// ProjectMetrics は単一案件のメトリクス。
type ProjectMetrics struct {
	Project               *model.Project
	MilestoneTotal        int
	MilestoneCompleted    int
	MilestoneCompletion   float64 // 0..1。マイルストーンなしは0
	TranscriptCount       int
	InsightCount          int
	OpenInsights          int
	CriticalInsights      int
	SentimentDistribution map[string]int
}

// Overview は全案件横断のメトリクス。
type Overview struct {
	TotalProjects         int
	ActiveProjects        int
	TotalTranscripts      int
	TotalInsights         int
	OpenInsights          int
	CriticalInsights      int
	SentimentDistribution map[string]int
	RecentTranscripts     []*model.Transcript
	RecentInsights        []*model.Insight
}

// ProjectDashboard は指定案件のメトリクスを返す。
// 存在しない、または他ユーザー所有の案件はPROJECT_NOT_FOUNDを返す。
func (s *Service) ProjectDashboard(ctx context.Context, userID, projectID string) (*ProjectMetrics, error) {
	project, err := s.projectRepo.FindByIDAndUser(ctx, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	if project == nil {
		return nil, model.NewProjectNotFoundError()
	}
	return s.projectMetrics(ctx, project)
}

// Overall は全案件横断のメトリクスと直近のアクティビティを返す。
func (s *Service) Overall(ctx context.Context, userID string) (*Overview, error) {
	projects, err := s.projectRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	overview := &Overview{
		TotalProjects:         len(projects),
		SentimentDistribution: make(map[string]int),
	}

	for _, p := range projects {
		if p.Status == "active" {
			overview.ActiveProjects++
		}

		metrics, err := s.projectMetrics(ctx, p)
		if err != nil {
			return nil, err
		}
		overview.TotalTranscripts += metrics.TranscriptCount
		overview.TotalInsights += metrics.InsightCount
		overview.OpenInsights += metrics.OpenInsights
		overview.CriticalInsights += metrics.CriticalInsights
		for sentiment, count := range metrics.SentimentDistribution {
			overview.SentimentDistribution[sentiment] += count
		}
	}

	recentTranscripts, err := s.transcriptRepo.ListRecentByUser(ctx, userID, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent transcripts: %w", err)
	}
	overview.RecentTranscripts = recentTranscripts

	recentInsights, err := s.insightRepo.ListRecentByUser(ctx, userID, recentLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent insights: %w", err)
	}
	overview.RecentInsights = recentInsights

	return overview, nil
}

// projectMetrics は案件配下のデータからメトリクスを算出する。
func (s *Service) projectMetrics(ctx context.Context, project *model.Project) (*ProjectMetrics, error) {
	metrics := &ProjectMetrics{
		Project:               project,
		SentimentDistribution: make(map[string]int),
	}

	milestones, err := s.milestoneRepo.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	metrics.MilestoneTotal = len(milestones)
	for _, m := range milestones {
		if m.Status == "completed" {
			metrics.MilestoneCompleted++
		}
	}
	if metrics.MilestoneTotal > 0 {
		metrics.MilestoneCompletion = float64(metrics.MilestoneCompleted) / float64(metrics.MilestoneTotal)
	}

	transcripts, err := s.transcriptRepo.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	metrics.TranscriptCount = len(transcripts)

	analyses, err := s.analysisRepo.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	for _, a := range analyses {
		metrics.SentimentDistribution[a.Sentiment]++
	}

	insights, err := s.insightRepo.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}
	metrics.InsightCount = len(insights)
	for _, i := range insights {
		if i.Status == "open" {
			metrics.OpenInsights++
		}
		if i.Severity == "critical" {
			metrics.CriticalInsights++
		}
	}

	return metrics, nil
}

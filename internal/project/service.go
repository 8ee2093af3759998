// Package project はクライアント案件のCRUDを提供する。
// すべての操作は所有ユーザーでスコープされ、他ユーザーの案件は存在しないものとして扱う。
package project

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/repository"
)

// validStatuses は案件ステータスの有効値。
var validStatuses = map[string]bool{
	"active":    true,
	"completed": true,
	"archived":  true,
}

// Service は案件管理のサービス。
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

// MilestoneInput は案件作成時のインラインマイルストーン。
type MilestoneInput struct {
	Title       string
	Description string
	DueDate     *time.Time
}

// CreateInput は案件作成の入力。
type CreateInput struct {
	Name        string
	Description string
	Status      string
	ClientName  string
	ClientEmail string
	StartDate   *time.Time
	EndDate     *time.Time
	Milestones  []MilestoneInput
}

// Create は案件を作成する。マイルストーンが指定されていれば一緒に作成する。
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*model.Project, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, model.NewInvalidRequestError("project name is required")
	}

	status := input.Status
	if status == "" {
		status = "active"
	}
	if !validStatuses[status] {
		return nil, model.NewInvalidRequestError("invalid project status: " + status)
	}

	now := time.Now()
	project := &model.Project{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        name,
		Description: input.Description,
		Status:      status,
		ClientName:  input.ClientName,
		ClientEmail: input.ClientEmail,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.projectRepo.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	for _, m := range input.Milestones {
		title := strings.TrimSpace(m.Title)
		if title == "" {
			continue
		}
		milestone := &model.Milestone{
			ID:          uuid.New().String(),
			ProjectID:   project.ID,
			Title:       title,
			Description: m.Description,
			Status:      "pending",
			DueDate:     m.DueDate,
			CreatedAt:   now,
		}
		if err := s.milestoneRepo.Create(ctx, milestone); err != nil {
			return nil, fmt.Errorf("failed to create milestone: %w", err)
		}
	}

	slog.Info("project created",
		slog.String("user_id", userID),
		slog.String("project_id", project.ID),
	)
	return project, nil
}

// TranscriptWithAnalysis はトランスクリプトとその解析結果の組。
// 解析が未生成または失敗している場合Analysisはnil。
type TranscriptWithAnalysis struct {
	Transcript *model.Transcript
	Analysis   *model.Analysis
}

// Detail は案件の詳細情報。
type Detail struct {
	Project     *model.Project
	Milestones  []*model.Milestone
	Transcripts []TranscriptWithAnalysis
	Insights    []*model.Insight
}

// Get は案件の詳細を取得する。
// 存在しない、または他ユーザー所有の案件はPROJECT_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, userID, id string) (*Detail, error) {
	project, err := s.projectRepo.FindByIDAndUser(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	if project == nil {
		return nil, model.NewProjectNotFoundError()
	}
	return s.loadDetail(ctx, project)
}

// List はユーザーの全案件を詳細付きで返す。
func (s *Service) List(ctx context.Context, userID string) ([]*Detail, error) {
	projects, err := s.projectRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	details := make([]*Detail, 0, len(projects))
	for _, p := range projects {
		detail, err := s.loadDetail(ctx, p)
		if err != nil {
			return nil, err
		}
		details = append(details, detail)
	}
	return details, nil
}

// loadDetail は案件配下のマイルストーン・トランスクリプト・インサイトを読み込む。
func (s *Service) loadDetail(ctx context.Context, project *model.Project) (*Detail, error) {
	milestones, err := s.milestoneRepo.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}

	transcripts, err := s.transcriptRepo.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}

	withAnalysis := make([]TranscriptWithAnalysis, 0, len(transcripts))
	for _, tr := range transcripts {
		analysis, err := s.analysisRepo.FindByTranscript(ctx, tr.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to find analysis: %w", err)
		}
		withAnalysis = append(withAnalysis, TranscriptWithAnalysis{Transcript: tr, Analysis: analysis})
	}

	insights, err := s.insightRepo.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}

	return &Detail{
		Project:     project,
		Milestones:  milestones,
		Transcripts: withAnalysis,
		Insights:    insights,
	}, nil
}

// UpdateInput は案件更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Name        *string
	Description *string
	Status      *string
	ClientName  *string
	ClientEmail *string
	StartDate   *time.Time
	EndDate     *time.Time
}

// Update は案件を更新する。
// 存在しない、または他ユーザー所有の案件はPROJECT_NOT_FOUNDを返す。
func (s *Service) Update(ctx context.Context, userID, id string, input UpdateInput) (*model.Project, error) {
	project, err := s.projectRepo.FindByIDAndUser(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find project: %w", err)
	}
	if project == nil {
		return nil, model.NewProjectNotFoundError()
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, model.NewInvalidRequestError("project name is required")
		}
		project.Name = name
	}
	if input.Description != nil {
		project.Description = *input.Description
	}
	if input.Status != nil {
		if !validStatuses[*input.Status] {
			return nil, model.NewInvalidRequestError("invalid project status: " + *input.Status)
		}
		project.Status = *input.Status
	}
	if input.ClientName != nil {
		project.ClientName = *input.ClientName
	}
	if input.ClientEmail != nil {
		project.ClientEmail = *input.ClientEmail
	}
	if input.StartDate != nil {
		project.StartDate = input.StartDate
	}
	if input.EndDate != nil {
		project.EndDate = input.EndDate
	}
	project.UpdatedAt = time.Now()

	updated, err := s.projectRepo.Update(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	if !updated {
		return nil, model.NewProjectNotFoundError()
	}

	return project, nil
}

// Delete は案件と配下のデータをすべて削除する。
// 存在しない、または他ユーザー所有の案件はPROJECT_NOT_FOUNDを返す。
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	deleted, err := s.projectRepo.Delete(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if !deleted {
		return model.NewProjectNotFoundError()
	}

	slog.Info("project deleted",
		slog.String("user_id", userID),
		slog.String("project_id", id),
	)
	return nil
}

package trainer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/knowledge"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/llm"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/metrics"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/repository"
)

const (
	// EmptyCommitPlaceholder は1問も回答せずにコミットした場合のブロブ内容。
	EmptyCommitPlaceholder = "No answers provided."

	// MaxPrefillSourceChars はプリフィルのソーステキスト上限。
	MaxPrefillSourceChars = 12000

	// prefillTemperature はプリフィル抽出の温度。忠実な抽出を優先して低くする。
	prefillTemperature = 0.3

	// historyUploadLimit は履歴に含める直近アップロードの件数。
	historyUploadLimit = 10

	// previewChars は履歴プレビューの最大文字数。
	previewChars = 120
)

// LLMClient はトレーナーが必要とするLLM操作のインターフェース。
// llm.Clientの部分集合として定義する。
type LLMClient interface {
	Complete(ctx context.Context, kind, system string, messages []llm.Message, temperature float64) (string, error)
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// Service はボイストレーニングのサービス。
type Service struct {
	answerRepo repository.AnswerRepository
	blobRepo   repository.BlobRepository
	userRepo   repository.UserRepository
	llmClient  LLMClient
	collector  metrics.MetricsCollector
	sanitizer  *bluemonday.Policy
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	answerRepo repository.AnswerRepository,
	blobRepo repository.BlobRepository,
	userRepo repository.UserRepository,
	llmClient LLMClient,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		answerRepo: answerRepo,
		blobRepo:   blobRepo,
		userRepo:   userRepo,
		llmClient:  llmClient,
		collector:  collector,
		sanitizer:  bluemonday.StrictPolicy(),
	}
}

// GetAnswer は指定インデックスの現在の回答を返す。未回答の場合は空文字。
func (s *Service) GetAnswer(ctx context.Context, userID string, index int) (string, error) {
	if index < 1 || index > model.QuestionCount {
		return "", model.NewInvalidIndexError(index)
	}

	answer, err := s.answerRepo.Find(ctx, userID, index)
	if err != nil {
		return "", fmt.Errorf("failed to find answer: %w", err)
	}
	if answer == nil {
		return "", nil
	}
	return answer.Answer, nil
}

// SetAnswer は指定インデックスの回答を保存する。既存回答は上書きする。
func (s *Service) SetAnswer(ctx context.Context, userID string, index int, text string) error {
	if index < 1 || index > model.QuestionCount {
		return model.NewInvalidIndexError(index)
	}

	if err := s.answerRepo.Upsert(ctx, userID, index, text); err != nil {
		return fmt.Errorf("failed to upsert answer: %w", err)
	}
	return nil
}

// StatusResult はトレーニングの進捗状況。
type StatusResult struct {
	Score
	LastTrainedAt *time.Time
}

// Status は全回答の集計と最終学習日時を返す。
func (s *Service) Status(ctx context.Context, userID string) (*StatusResult, error) {
	answers, err := s.answerRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	result := &StatusResult{Score: Aggregate(answers, 0, "")}
	if user != nil {
		result.LastTrainedAt = user.LastTrainedAt
	}
	return result, nil
}

// Commit は現在の回答をレンダリングしてqaブロブとして確定し、
// 割り当てられたバージョン番号を返す。完成度によるゲートはなく、
// 回答ゼロでもプレースホルダーをコミットできる。
func (s *Service) Commit(ctx context.Context, userID string) (int, error) {
	answers, err := s.answerRepo.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list answers: %w", err)
	}

	content := RenderAnswers(answers)

	now := time.Now()
	version, err := s.blobRepo.InsertQANextVersion(ctx, uuid.New().String(), userID, content, now)
	if err != nil {
		return 0, fmt.Errorf("failed to commit knowledge blob: %w", err)
	}

	if err := s.userRepo.TouchLastTrained(ctx, userID, now); err != nil {
		// コミット自体は成立しているため、最終学習日時の更新失敗はログのみ
		slog.Error("failed to update last trained at",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	s.collector.RecordVoiceCommit()
	slog.Info("voice knowledge committed",
		slog.String("user_id", userID),
		slog.Int("version", version),
	)
	return version, nil
}

// RenderAnswers は非空の回答を質問インデックス昇順でレンダリングする。
// 各ブロックは "Q{i}: {質問}\nA{i}: {trim後の回答}" 形式で、空行で連結する。
// 非空の回答がない場合はプレースホルダーを返す。
func RenderAnswers(answers []*model.Answer) string {
	texts := make(map[int]string, len(answers))
	for _, a := range answers {
		texts[a.QIndex] = a.Answer
	}

	var blocks []string
	for i := 1; i <= model.QuestionCount; i++ {
		trimmed := strings.TrimSpace(texts[i])
		if trimmed == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("Q%d: %s\nA%d: %s", i, Questions[i-1], i, trimmed))
	}

	if len(blocks) == 0 {
		return EmptyCommitPlaceholder
	}
	return strings.Join(blocks, "\n\n")
}

// HistoryEntry はコミット履歴の1エントリ。
type HistoryEntry struct {
	Version       int
	QuestionCount int
	Preview       string
	CharCount     int
	CreatedAt     time.Time
}

// UploadEntry はアップロード履歴の1エントリ。
type UploadEntry struct {
	Preview   string
	CharCount int
	CreatedAt time.Time
}

// HistoryResult はトレーニング履歴。
type HistoryResult struct {
	Commits []HistoryEntry
	Uploads []UploadEntry
}

var questionLinePattern = regexp.MustCompile(`(?m)^Q\d+:`)

// History はqaブロブのコミット履歴と直近のアップロードを返す。
func (s *Service) History(ctx context.Context, userID string) (*HistoryResult, error) {
	qaBlobs, err := s.blobRepo.ListQADesc(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list qa blobs: %w", err)
	}

	uploads, err := s.blobRepo.ListUploadsDesc(ctx, userID, historyUploadLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}

	result := &HistoryResult{
		Commits: make([]HistoryEntry, 0, len(qaBlobs)),
		Uploads: make([]UploadEntry, 0, len(uploads)),
	}

	for _, b := range qaBlobs {
		result.Commits = append(result.Commits, HistoryEntry{
			Version:       b.Version,
			QuestionCount: len(questionLinePattern.FindAllString(b.Content, -1)),
			Preview:       preview(b.Content),
			CharCount:     len(b.Content),
			CreatedAt:     b.CreatedAt,
		})
	}

	for _, b := range uploads {
		result.Uploads = append(result.Uploads, UploadEntry{
			Preview:   preview(b.Content),
			CharCount: len(b.Content),
			CreatedAt: b.CreatedAt,
		})
	}

	return result, nil
}

// preview は内容の先頭を切り出した表示用テキストを返す。
// マルチバイト文字の分断を避けるためルーン境界で切る。
func preview(content string) string {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) <= previewChars {
		return trimmed
	}
	return knowledge.Truncate(trimmed, previewChars) + "..."
}

// Upload はトランスクリプト等のテキストをHTML除去のうえ
// アップロードブロブとして保存する。空の内容は拒否する。
func (s *Service) Upload(ctx context.Context, userID string, content []byte) error {
	sanitized := strings.TrimSpace(s.sanitizer.Sanitize(string(content)))
	if sanitized == "" {
		return model.NewEmptyFileError()
	}

	if err := s.blobRepo.InsertUpload(ctx, uuid.New().String(), userID, sanitized, time.Now()); err != nil {
		return fmt.Errorf("failed to store upload blob: %w", err)
	}

	slog.Info("upload stored",
		slog.String("user_id", userID),
		slog.Int("chars", len(sanitized)),
	)
	return nil
}

// prefillSystemPrompt はプリフィル抽出のシステムプロンプトを組み立てる。
func prefillSystemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are helping a coach fill out a 30-question brand voice questionnaire from their existing content.\n")
	sb.WriteString("Read the provided source material and draft answers in the coach's own voice wherever the material supports one.\n")
	sb.WriteString("Return ONLY a JSON object whose keys are the question numbers as strings (\"1\" through \"30\") and whose values are the drafted answers.\n")
	sb.WriteString("Omit questions the material does not cover. Do not invent facts.\n\n")
	sb.WriteString("The questions:\n")
	for i, q := range Questions {
		sb.WriteString(strconv.Itoa(i+1) + ". " + q + "\n")
	}
	return sb.String()
}

// PrefillLatest は最新のアップロードをソースにプリフィルする。
// アップロードが存在しない場合はバリデーションエラーを返す。
func (s *Service) PrefillLatest(ctx context.Context, userID string) (int, error) {
	blob, err := s.blobRepo.FindLatestUpload(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to find latest upload: %w", err)
	}
	if blob == nil {
		return 0, model.NewNoUploadFoundError()
	}
	return s.Prefill(ctx, userID, blob.Content)
}

// Prefill はソーステキストからLLMで30問の回答ドラフトを抽出し、
// 一括UPSERTする。埋めた回答数を返す。
// プロバイダー失敗・パース失敗はエラーをそのまま返す（埋めた数は0）。
func (s *Service) Prefill(ctx context.Context, userID, source string) (int, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return 0, model.NewInvalidRequestError("prefill source is empty")
	}
	source = knowledge.Truncate(source, MaxPrefillSourceChars)

	raw, err := s.llmClient.Complete(ctx, "prefill", prefillSystemPrompt(), []llm.Message{
		{Role: "user", Content: source},
	}, prefillTemperature)
	if err != nil {
		return 0, err
	}

	jsonStr, err := llm.ExtractJSONObject(raw)
	if err != nil {
		return 0, err
	}

	var draft map[string]string
	if err := json.Unmarshal([]byte(jsonStr), &draft); err != nil {
		return 0, model.NewProviderParseError()
	}

	filled := 0
	for key, text := range draft {
		index, err := strconv.Atoi(key)
		if err != nil || index < 1 || index > model.QuestionCount {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if err := s.answerRepo.Upsert(ctx, userID, index, text); err != nil {
			return filled, fmt.Errorf("failed to upsert drafted answer %d: %w", index, err)
		}
		filled++
	}

	slog.Info("answers prefilled",
		slog.String("user_id", userID),
		slog.Int("filled", filled),
	)
	return filled, nil
}

// Transcribe は音声データをテキスト化する。プロバイダーエラーはそのまま返し、
// フォールバック文言の選択は呼び出し側に委ねる。
func (s *Service) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	return s.llmClient.Transcribe(ctx, filename, audio)
}

package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/llm"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
)

// --- モック ---

type mockAnswerRepo struct {
	findFunc       func(ctx context.Context, userID string, qIndex int) (*model.Answer, error)
	upsertFunc     func(ctx context.Context, userID string, qIndex int, answer string) error
	listByUserFunc func(ctx context.Context, userID string) ([]*model.Answer, error)
}

func (m *mockAnswerRepo) Find(ctx context.Context, userID string, qIndex int) (*model.Answer, error) {
	if m.findFunc != nil {
		return m.findFunc(ctx, userID, qIndex)
	}
	return nil, nil
}

func (m *mockAnswerRepo) Upsert(ctx context.Context, userID string, qIndex int, answer string) error {
	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, userID, qIndex, answer)
	}
	return nil
}

func (m *mockAnswerRepo) ListByUser(ctx context.Context, userID string) ([]*model.Answer, error) {
	if m.listByUserFunc != nil {
		return m.listByUserFunc(ctx, userID)
	}
	return nil, nil
}

type mockBlobRepo struct {
	insertQAFunc         func(ctx context.Context, id, userID, content string, createdAt time.Time) (int, error)
	insertUploadFunc     func(ctx context.Context, id, userID, content string, createdAt time.Time) error
	listQADescFunc       func(ctx context.Context, userID string) ([]*model.KnowledgeBlob, error)
	listUploadsDescFunc  func(ctx context.Context, userID string, limit int) ([]*model.KnowledgeBlob, error)
	findLatestUploadFunc func(ctx context.Context, userID string) (*model.KnowledgeBlob, error)
}

func (m *mockBlobRepo) InsertQANextVersion(ctx context.Context, id, userID, content string, createdAt time.Time) (int, error) {
	if m.insertQAFunc != nil {
		return m.insertQAFunc(ctx, id, userID, content, createdAt)
	}
	return 1, nil
}

func (m *mockBlobRepo) InsertUpload(ctx context.Context, id, userID, content string, createdAt time.Time) error {
	if m.insertUploadFunc != nil {
		return m.insertUploadFunc(ctx, id, userID, content, createdAt)
	}
	return nil
}

func (m *mockBlobRepo) ListQAByMaxVersion(ctx context.Context, userID string) ([]*model.KnowledgeBlob, error) {
	return nil, nil
}

func (m *mockBlobRepo) ListQADesc(ctx context.Context, userID string) ([]*model.KnowledgeBlob, error) {
	if m.listQADescFunc != nil {
		return m.listQADescFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockBlobRepo) ListUploadsDesc(ctx context.Context, userID string, limit int) ([]*model.KnowledgeBlob, error) {
	if m.listUploadsDescFunc != nil {
		return m.listUploadsDescFunc(ctx, userID, limit)
	}
	return nil, nil
}

func (m *mockBlobRepo) FindLatestUpload(ctx context.Context, userID string) (*model.KnowledgeBlob, error) {
	if m.findLatestUploadFunc != nil {
		return m.findLatestUploadFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockBlobRepo) ListRecentByUser(ctx context.Context, userID string, limit int) ([]*model.KnowledgeBlob, error) {
	return nil, nil
}

type mockUserRepo struct {
	findByIDFunc         func(ctx context.Context, id string) (*model.User, error)
	touchLastTrainedFunc func(ctx context.Context, userID string, trainedAt time.Time) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return &model.User{ID: id}, nil
}

func (m *mockUserRepo) FindByLicenseKey(ctx context.Context, licenseKey string) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error { return nil }

func (m *mockUserRepo) UpdateWhopLink(ctx context.Context, userID, whopUserID, name, email, avatarURL string) error {
	return nil
}

func (m *mockUserRepo) TouchLastTrained(ctx context.Context, userID string, trainedAt time.Time) error {
	if m.touchLastTrainedFunc != nil {
		return m.touchLastTrainedFunc(ctx, userID, trainedAt)
	}
	return nil
}

func (m *mockUserRepo) Stats(ctx context.Context, userID string) (*model.UserStats, error) {
	return nil, nil
}

func (m *mockUserRepo) ListAll(ctx context.Context) ([]*model.User, error) { return nil, nil }

type mockLLMClient struct {
	completeFunc   func(ctx context.Context, kind, system string, messages []llm.Message, temperature float64) (string, error)
	transcribeFunc func(ctx context.Context, filename string, audio io.Reader) (string, error)
}

func (m *mockLLMClient) Complete(ctx context.Context, kind, system string, messages []llm.Message, temperature float64) (string, error) {
	if m.completeFunc != nil {
		return m.completeFunc(ctx, kind, system, messages, temperature)
	}
	return "", nil
}

func (m *mockLLMClient) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if m.transcribeFunc != nil {
		return m.transcribeFunc(ctx, filename, audio)
	}
	return "", nil
}

func newTestService(answers *mockAnswerRepo, blobs *mockBlobRepo, users *mockUserRepo, client *mockLLMClient) *Service {
	if answers == nil {
		answers = &mockAnswerRepo{}
	}
	if blobs == nil {
		blobs = &mockBlobRepo{}
	}
	if users == nil {
		users = &mockUserRepo{}
	}
	if client == nil {
		client = &mockLLMClient{}
	}
	return NewService(answers, blobs, users, client, nil)
}

func TestGetAnswer_InvalidIndex(t *testing.T) {
	s := newTestService(nil, nil, nil, nil)

	for _, index := range []int{0, -1, 31} {
		_, err := s.GetAnswer(context.Background(), "user-1", index)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidIndex {
			t.Errorf("index %d: err = %v, want INVALID_QUESTION_INDEX", index, err)
		}
	}
}

func TestGetAnswer_NoAnswer_ReturnsEmpty(t *testing.T) {
	s := newTestService(nil, nil, nil, nil)

	got, err := s.GetAnswer(context.Background(), "user-1", 1)
	if err != nil {
		t.Fatalf("GetAnswer() error = %v", err)
	}
	if got != "" {
		t.Errorf("GetAnswer() = %q, want empty", got)
	}
}

func TestSetAnswer_Upserts(t *testing.T) {
	var gotIndex int
	var gotText string
	answers := &mockAnswerRepo{
		upsertFunc: func(ctx context.Context, userID string, qIndex int, answer string) error {
			gotIndex = qIndex
			gotText = answer
			return nil
		},
	}
	s := newTestService(answers, nil, nil, nil)

	if err := s.SetAnswer(context.Background(), "user-1", 7, "my coaching story"); err != nil {
		t.Fatalf("SetAnswer() error = %v", err)
	}
	if gotIndex != 7 || gotText != "my coaching story" {
		t.Errorf("upsert(%d, %q)", gotIndex, gotText)
	}
}

func TestRenderAnswers_OnlyNonEmptyAscending(t *testing.T) {
	answers := []*model.Answer{
		{QIndex: 5, Answer: "  answer five  "},
		{QIndex: 2, Answer: "answer two"},
		{QIndex: 9, Answer: "   "}, // 空白のみは除外
	}

	got := RenderAnswers(answers)

	wantQ2 := fmt.Sprintf("Q2: %s\nA2: answer two", Questions[1])
	wantQ5 := fmt.Sprintf("Q5: %s\nA5: answer five", Questions[4])
	if got != wantQ2+"\n\n"+wantQ5 {
		t.Errorf("RenderAnswers() = %q", got)
	}
}

func TestRenderAnswers_Empty_ReturnsPlaceholder(t *testing.T) {
	if got := RenderAnswers(nil); got != EmptyCommitPlaceholder {
		t.Errorf("RenderAnswers(nil) = %q, want %q", got, EmptyCommitPlaceholder)
	}
	if got := RenderAnswers([]*model.Answer{{QIndex: 1, Answer: "  "}}); got != EmptyCommitPlaceholder {
		t.Errorf("空白のみの回答でもプレースホルダーを返すべき: %q", got)
	}
}

func TestCommit_PersistsRenderedBlobAndTouchesUser(t *testing.T) {
	var committed string
	var touched bool
	blobs := &mockBlobRepo{
		insertQAFunc: func(ctx context.Context, id, userID, content string, createdAt time.Time) (int, error) {
			committed = content
			return 3, nil
		},
	}
	users := &mockUserRepo{
		touchLastTrainedFunc: func(ctx context.Context, userID string, trainedAt time.Time) error {
			touched = true
			return nil
		},
	}
	answers := &mockAnswerRepo{
		listByUserFunc: func(ctx context.Context, userID string) ([]*model.Answer, error) {
			return []*model.Answer{{QIndex: 1, Answer: "my philosophy"}}, nil
		},
	}
	s := newTestService(answers, blobs, users, nil)

	version, err := s.Commit(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if version != 3 {
		t.Errorf("version = %d, want 3", version)
	}
	if !strings.Contains(committed, "A1: my philosophy") {
		t.Errorf("コミット内容が不正: %q", committed)
	}
	if !touched {
		t.Error("コミット後にlast_trained_atを更新すべき")
	}
}

func TestCommit_EmptyAnswers_CommitsPlaceholder(t *testing.T) {
	var committed string
	blobs := &mockBlobRepo{
		insertQAFunc: func(ctx context.Context, id, userID, content string, createdAt time.Time) (int, error) {
			committed = content
			return 1, nil
		},
	}
	s := newTestService(nil, blobs, nil, nil)

	if _, err := s.Commit(context.Background(), "user-1"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if committed != EmptyCommitPlaceholder {
		t.Errorf("committed = %q, want %q", committed, EmptyCommitPlaceholder)
	}
}

func TestCommit_TouchFailure_DoesNotFailCommit(t *testing.T) {
	users := &mockUserRepo{
		touchLastTrainedFunc: func(ctx context.Context, userID string, trainedAt time.Time) error {
			return errors.New("db down")
		},
	}
	s := newTestService(nil, nil, users, nil)

	if _, err := s.Commit(context.Background(), "user-1"); err != nil {
		t.Errorf("last_trained_at更新失敗でコミットを失敗させるべきではない: %v", err)
	}
}

func TestCommit_SequentialCommitsProduceContiguousVersions(t *testing.T) {
	// qaブロブのバージョン割り当て（ユーザー内の最大値+1）を模した
	// インメモリリポジトリで、連続コミットが欠番も重複もなく
	// {1..N}を割り当てることを検証する。
	store := make(map[string][]int)
	blobs := &mockBlobRepo{
		insertQAFunc: func(ctx context.Context, id, userID, content string, createdAt time.Time) (int, error) {
			max := 0
			for _, v := range store[userID] {
				if v > max {
					max = v
				}
			}
			v := max + 1
			store[userID] = append(store[userID], v)
			return v, nil
		},
	}
	s := newTestService(nil, blobs, nil, nil)

	for want := 1; want <= 3; want++ {
		got, err := s.Commit(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("Commit() #%d error = %v", want, err)
		}
		if got != want {
			t.Errorf("Commit() #%d version = %d, want %d", want, got, want)
		}
	}

	// 別ユーザーのバージョンは独立して1から始まる
	got, err := s.Commit(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if got != 1 {
		t.Errorf("別ユーザーの初回コミット version = %d, want 1", got)
	}

	wantVersions := []int{1, 2, 3}
	if len(store["user-1"]) != len(wantVersions) {
		t.Fatalf("len(versions) = %d, want %d", len(store["user-1"]), len(wantVersions))
	}
	for i, v := range store["user-1"] {
		if v != wantVersions[i] {
			t.Errorf("versions[%d] = %d, want %d", i, v, wantVersions[i])
		}
	}
}

func TestUpload_StripsHTMLAndStores(t *testing.T) {
	var stored string
	blobs := &mockBlobRepo{
		insertUploadFunc: func(ctx context.Context, id, userID, content string, createdAt time.Time) error {
			stored = content
			return nil
		},
	}
	s := newTestService(nil, blobs, nil, nil)

	err := s.Upload(context.Background(), "user-1", []byte("<p>Hello <b>client</b></p><script>alert(1)</script>"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if strings.Contains(stored, "<") {
		t.Errorf("HTMLタグが残っている: %q", stored)
	}
	if !strings.Contains(stored, "Hello") || !strings.Contains(stored, "client") {
		t.Errorf("テキスト内容が失われている: %q", stored)
	}
	if strings.Contains(stored, "alert") {
		t.Errorf("スクリプト内容は除去されるべき: %q", stored)
	}
}

func TestUpload_Empty_Rejected(t *testing.T) {
	s := newTestService(nil, nil, nil, nil)

	for _, content := range []string{"", "   ", "<p>  </p>"} {
		err := s.Upload(context.Background(), "user-1", []byte(content))
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmptyFile {
			t.Errorf("content %q: err = %v, want EMPTY_FILE", content, err)
		}
	}
}

func TestUpload_NeverTouchesVersionCounter(t *testing.T) {
	blobs := &mockBlobRepo{
		insertQAFunc: func(ctx context.Context, id, userID, content string, createdAt time.Time) (int, error) {
			t.Error("アップロードはqaバージョンカウンタに触れるべきではない")
			return 0, nil
		},
	}
	s := newTestService(nil, blobs, nil, nil)

	if err := s.Upload(context.Background(), "user-1", []byte("raw transcript")); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
}

func TestPrefill_FillsValidEntries(t *testing.T) {
	upserts := make(map[int]string)
	answers := &mockAnswerRepo{
		upsertFunc: func(ctx context.Context, userID string, qIndex int, answer string) error {
			upserts[qIndex] = answer
			return nil
		},
	}
	client := &mockLLMClient{
		completeFunc: func(ctx context.Context, kind, system string, messages []llm.Message, temperature float64) (string, error) {
			if kind != "prefill" {
				t.Errorf("kind = %q, want prefill", kind)
			}
			return "Here you go:\n" + `{"1": "drafted one", "2": "", "31": "out of range", "abc": "bad key", "5": "drafted five"}`, nil
		},
	}
	s := newTestService(answers, nil, nil, client)

	filled, err := s.Prefill(context.Background(), "user-1", "source material")
	if err != nil {
		t.Fatalf("Prefill() error = %v", err)
	}
	if filled != 2 {
		t.Errorf("filled = %d, want 2", filled)
	}
	if upserts[1] != "drafted one" || upserts[5] != "drafted five" {
		t.Errorf("upserts = %v", upserts)
	}
	if _, ok := upserts[31]; ok {
		t.Error("範囲外インデックスはスキップすべき")
	}
}

func TestPrefill_EmptySource_ValidationError(t *testing.T) {
	s := newTestService(nil, nil, nil, nil)

	_, err := s.Prefill(context.Background(), "user-1", "   ")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}

func TestPrefill_TruncatesSource(t *testing.T) {
	var gotSource string
	client := &mockLLMClient{
		completeFunc: func(ctx context.Context, kind, system string, messages []llm.Message, temperature float64) (string, error) {
			gotSource = messages[0].Content
			return "{}", nil
		},
	}
	s := newTestService(nil, nil, nil, client)

	long := strings.Repeat("a", MaxPrefillSourceChars+1000)
	if _, err := s.Prefill(context.Background(), "user-1", long); err != nil {
		t.Fatalf("Prefill() error = %v", err)
	}
	if len(gotSource) != MaxPrefillSourceChars {
		t.Errorf("len(source) = %d, want %d", len(gotSource), MaxPrefillSourceChars)
	}
}

func TestPrefill_UnparseableResponse_ZeroFilled(t *testing.T) {
	client := &mockLLMClient{
		completeFunc: func(ctx context.Context, kind, system string, messages []llm.Message, temperature float64) (string, error) {
			return "sorry, I cannot do that", nil
		},
	}
	s := newTestService(nil, nil, nil, client)

	filled, err := s.Prefill(context.Background(), "user-1", "source")
	if filled != 0 {
		t.Errorf("filled = %d, want 0", filled)
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProviderParse {
		t.Errorf("err = %v, want PROVIDER_PARSE_FAILED", err)
	}
}

func TestPrefillLatest_NoUpload_Error(t *testing.T) {
	s := newTestService(nil, nil, nil, nil)

	_, err := s.PrefillLatest(context.Background(), "user-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNoUploadFound {
		t.Errorf("err = %v, want NO_UPLOAD_FOUND", err)
	}
}

func TestPrefillLatest_UsesLatestUpload(t *testing.T) {
	var gotSource string
	blobs := &mockBlobRepo{
		findLatestUploadFunc: func(ctx context.Context, userID string) (*model.KnowledgeBlob, error) {
			return &model.KnowledgeBlob{Content: "latest upload text"}, nil
		},
	}
	client := &mockLLMClient{
		completeFunc: func(ctx context.Context, kind, system string, messages []llm.Message, temperature float64) (string, error) {
			gotSource = messages[0].Content
			return "{}", nil
		},
	}
	s := newTestService(nil, blobs, nil, client)

	if _, err := s.PrefillLatest(context.Background(), "user-1"); err != nil {
		t.Fatalf("PrefillLatest() error = %v", err)
	}
	if gotSource != "latest upload text" {
		t.Errorf("source = %q", gotSource)
	}
}

func TestHistory_SummarizesCommitsAndUploads(t *testing.T) {
	blobs := &mockBlobRepo{
		listQADescFunc: func(ctx context.Context, userID string) ([]*model.KnowledgeBlob, error) {
			return []*model.KnowledgeBlob{
				{Version: 2, Content: "Q1: one?\nA1: first answer\n\nQ5: five?\nA5: fifth answer"},
				{Version: 1, Content: EmptyCommitPlaceholder},
			}, nil
		},
		listUploadsDescFunc: func(ctx context.Context, userID string, limit int) ([]*model.KnowledgeBlob, error) {
			if limit != historyUploadLimit {
				t.Errorf("limit = %d, want %d", limit, historyUploadLimit)
			}
			return []*model.KnowledgeBlob{{Content: strings.Repeat("u", 200)}}, nil
		},
	}
	s := newTestService(nil, blobs, nil, nil)

	got, err := s.History(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got.Commits) != 2 {
		t.Fatalf("len(Commits) = %d, want 2", len(got.Commits))
	}
	if got.Commits[0].QuestionCount != 2 {
		t.Errorf("QuestionCount = %d, want 2", got.Commits[0].QuestionCount)
	}
	if got.Commits[1].QuestionCount != 0 {
		t.Errorf("プレースホルダーブロブのQuestionCount = %d, want 0", got.Commits[1].QuestionCount)
	}
	if len(got.Uploads) != 1 {
		t.Fatalf("len(Uploads) = %d, want 1", len(got.Uploads))
	}
	if len(got.Uploads[0].Preview) != previewChars+3 {
		t.Errorf("プレビューは%d文字+省略記号であるべき: %d", previewChars, len(got.Uploads[0].Preview))
	}
	if got.Uploads[0].CharCount != 200 {
		t.Errorf("CharCount = %d, want 200", got.Uploads[0].CharCount)
	}
}

func TestHistory_PreviewKeepsRuneBoundary(t *testing.T) {
	// 上限位置にマルチバイト文字がかかる内容でも、
	// プレビューが不正なUTF-8にならないことを検証する。
	content := strings.Repeat("a", previewChars-1) + "あいう"
	blobs := &mockBlobRepo{
		listUploadsDescFunc: func(ctx context.Context, userID string, limit int) ([]*model.KnowledgeBlob, error) {
			return []*model.KnowledgeBlob{{Content: content}}, nil
		},
	}
	s := newTestService(nil, blobs, nil, nil)

	got, err := s.History(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got.Uploads) != 1 {
		t.Fatalf("len(Uploads) = %d, want 1", len(got.Uploads))
	}
	preview := got.Uploads[0].Preview
	if !utf8.ValidString(preview) {
		t.Errorf("プレビューが不正なUTF-8を含む: %q", preview)
	}
	if want := strings.Repeat("a", previewChars-1) + "..."; preview != want {
		t.Errorf("Preview = %q, want %q", preview, want)
	}
}

func TestTranscribe_DelegatesToClient(t *testing.T) {
	client := &mockLLMClient{
		transcribeFunc: func(ctx context.Context, filename string, audio io.Reader) (string, error) {
			return "spoken words", nil
		},
	}
	s := newTestService(nil, nil, nil, client)

	got, err := s.Transcribe(context.Background(), "memo.webm", strings.NewReader("audio"))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "spoken words" {
		t.Errorf("Transcribe() = %q", got)
	}
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
)

func testClient(serverURL string) *Client {
	return NewClient(Config{
		BaseURL:      serverURL,
		APIKey:       "test-key",
		Model:        "gpt-4o",
		WhisperModel: "whisper-1",
		Timeout:      5 * time.Second,
	}, nil)
}

func TestComplete_Success(t *testing.T) {
	var gotPath, gotAuth string
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotReq)

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "Hello from the coach."}},
			},
		})
	}))
	defer server.Close()

	c := testClient(server.URL)
	got, err := c.Complete(context.Background(), "chat", "You are a coach.", []Message{
		{Role: "user", Content: "Hi"},
	}, 0.6)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "Hello from the coach." {
		t.Errorf("Complete() = %q", got)
	}
	if gotPath != "/chat/completions" {
		t.Errorf("path = %q, want /chat/completions", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("システムメッセージが先頭に挿入されるべき: %+v", gotReq.Messages)
	}
	if gotReq.Temperature != 0.6 {
		t.Errorf("temperature = %v, want 0.6", gotReq.Temperature)
	}
}

func TestComplete_ProviderErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := testClient(server.URL)
	_, err := c.Complete(context.Background(), "chat", "sys", nil, 0.6)
	if err == nil {
		t.Fatal("エラーステータスはエラーを返すべき")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorを返すべき: %v", err)
	}
	if apiErr.Code != model.ErrCodeProviderFailed {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeProviderFailed)
	}
}

func TestComplete_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	c := NewClient(Config{
		BaseURL: server.URL,
		Model:   "gpt-4o",
		Timeout: 20 * time.Millisecond,
	}, nil)

	_, err := c.Complete(context.Background(), "chat", "sys", nil, 0.6)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorを返すべき: %v", err)
	}
	if apiErr.Code != model.ErrCodeProviderTimeout {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeProviderTimeout)
	}
}

func TestComplete_EmptyChoices_ParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	c := testClient(server.URL)
	_, err := c.Complete(context.Background(), "chat", "sys", nil, 0.6)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorを返すべき: %v", err)
	}
	if apiErr.Code != model.ErrCodeProviderParse {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeProviderParse)
	}
}

func TestTranscribe_Success(t *testing.T) {
	var gotPath string
	var gotModel, gotFile string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("multipartのパースに失敗: %v", err)
		}
		gotModel = r.FormValue("model")
		if f, header, err := r.FormFile("file"); err == nil {
			gotFile = header.Filename
			f.Close()
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "transcribed words"})
	}))
	defer server.Close()

	c := testClient(server.URL)
	got, err := c.Transcribe(context.Background(), "memo.webm", strings.NewReader("fake-audio-bytes"))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "transcribed words" {
		t.Errorf("Transcribe() = %q", got)
	}
	if gotPath != "/audio/transcriptions" {
		t.Errorf("path = %q, want /audio/transcriptions", gotPath)
	}
	if gotModel != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", gotModel)
	}
	if gotFile != "memo.webm" {
		t.Errorf("filename = %q, want memo.webm", gotFile)
	}
}

func TestTranscribe_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := testClient(server.URL)
	_, err := c.Transcribe(context.Background(), "memo.webm", strings.NewReader("x"))
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorを返すべき: %v", err)
	}
	if apiErr.Code != model.ErrCodeProviderFailed {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeProviderFailed)
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"素のJSON", `{"a":1}`, `{"a":1}`, false},
		{"散文に包まれたJSON", "Here is the result:\n```json\n{\"a\":1}\n```\nDone.", `{"a":1}`, false},
		{"ネストしたオブジェクト", `prefix {"a":{"b":2}} suffix`, `{"a":{"b":2}}`, false},
		{"JSONなし", "no json here", "", true},
		{"空文字", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractJSONObject() = %q, want %q", got, tt.want)
			}
		})
	}
}

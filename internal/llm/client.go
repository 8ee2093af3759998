// Package llm はOpenAI互換APIへのクライアントを提供する。
// チャット補完と音声文字起こしの呼び出し、およびレスポンス整形を含む。
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/metrics"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/model"
)

// Message はチャット補完の1メッセージ。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config はLLMクライアントの設定。
type Config struct {
	BaseURL      string // OpenAI互換APIのベースURL（末尾スラッシュなし）
	APIKey       string
	Model        string // チャット補完モデル
	WhisperModel string // 音声文字起こしモデル
	Timeout      time.Duration
}

// Client はOpenAI互換APIのクライアント。
// プロバイダーの生エラーは外に出さず、model.APIErrorに変換して返す。
type Client struct {
	httpClient *http.Client
	config     Config
	collector  metrics.MetricsCollector
	baseURL    string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(config Config, collector metrics.MetricsCollector) *Client {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
		collector:  collector,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
	}
}

// chatRequest はchat completionsエンドポイントのリクエストボディ。
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// chatResponse はchat completionsエンドポイントのレスポンスボディ。
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete はシステムプロンプトとメッセージ列からチャット補完を実行する。
// kindはメトリクスのラベルに使用する（"chat"、"analysis"など）。
// タイムアウトはPROVIDER_TIMEOUT、その他の失敗はPROVIDER_FAILEDに変換する。
func (c *Client) Complete(ctx context.Context, kind, system string, messages []Message, temperature float64) (string, error) {
	start := time.Now()

	all := make([]Message, 0, len(messages)+1)
	all = append(all, Message{Role: "system", Content: system})
	all = append(all, messages...)

	reqBody, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    all,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.collector.RecordLLMLatency(kind, time.Since(start))
		if isTimeout(err) {
			c.collector.RecordLLMRequest(kind, "timeout")
			slog.Warn("llm request timed out", slog.String("kind", kind))
			return "", model.NewProviderTimeoutError()
		}
		c.collector.RecordLLMRequest(kind, "failure")
		slog.Error("llm request failed",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		return "", model.NewProviderFailedError("request failed")
	}
	defer resp.Body.Close()

	c.collector.RecordLLMLatency(kind, time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.collector.RecordLLMRequest(kind, "failure")
		return "", model.NewProviderFailedError("failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		c.collector.RecordLLMRequest(kind, "failure")
		slog.Error("llm provider returned error status",
			slog.String("kind", kind),
			slog.Int("http_status", resp.StatusCode),
		)
		return "", model.NewProviderFailedError(fmt.Sprintf("provider returned status %d", resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.collector.RecordLLMRequest(kind, "parse_failure")
		return "", model.NewProviderParseError()
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		c.collector.RecordLLMRequest(kind, "parse_failure")
		return "", model.NewProviderParseError()
	}

	c.collector.RecordLLMRequest(kind, "success")
	return parsed.Choices[0].Message.Content, nil
}

// transcribeResponse はaudio transcriptionsエンドポイントのレスポンスボディ。
type transcribeResponse struct {
	Text string `json:"text"`
}

// Transcribe は音声データをテキストに文字起こしする。
// multipart/form-dataでaudio transcriptionsエンドポイントに送信する。
func (c *Client) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	const kind = "transcribe"
	start := time.Now()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(fw, audio); err != nil {
		return "", fmt.Errorf("failed to copy audio data: %w", err)
	}
	if err := mw.WriteField("model", c.config.WhisperModel); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.collector.RecordLLMLatency(kind, time.Since(start))
		if isTimeout(err) {
			c.collector.RecordLLMRequest(kind, "timeout")
			return "", model.NewProviderTimeoutError()
		}
		c.collector.RecordLLMRequest(kind, "failure")
		slog.Error("transcription request failed", slog.String("error", err.Error()))
		return "", model.NewProviderFailedError("request failed")
	}
	defer resp.Body.Close()

	c.collector.RecordLLMLatency(kind, time.Since(start))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.collector.RecordLLMRequest(kind, "failure")
		return "", model.NewProviderFailedError("failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		c.collector.RecordLLMRequest(kind, "failure")
		slog.Error("transcription provider returned error status",
			slog.Int("http_status", resp.StatusCode),
		)
		return "", model.NewProviderFailedError(fmt.Sprintf("provider returned status %d", resp.StatusCode))
	}

	var parsed transcribeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.collector.RecordLLMRequest(kind, "parse_failure")
		return "", model.NewProviderParseError()
	}

	c.collector.RecordLLMRequest(kind, "success")
	return parsed.Text, nil
}

// isTimeout はエラーがタイムアウト起因かを判定する。
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// ExtractJSONObject はモデルが散文でJSONを包んで返した場合に備え、
// 最初の'{'から最後の'}'までを切り出す。JSONオブジェクトが見つからない
// 場合はパースエラーを返す。
func ExtractJSONObject(raw string) (string, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return "", model.NewProviderParseError()
	}
	return raw[start : end+1], nil
}

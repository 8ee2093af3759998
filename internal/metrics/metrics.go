// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層およびLLMクライアントから利用する。
type MetricsCollector interface {
	RecordLLMRequest(kind string, outcome string)
	RecordLLMLatency(kind string, duration time.Duration)
	RecordChatMessage()
	RecordVoiceCommit()
	RecordAnalysisFailure()
	RecordReminderSent()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	llmRequests      *prometheus.CounterVec
	llmLatency       *prometheus.HistogramVec
	chatMessages     prometheus.Counter
	voiceCommits     prometheus.Counter
	analysisFailures prometheus.Counter
	remindersSent    prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eva_llm_requests_total",
			Help: "LLM呼び出しの合計数（種別・結果別）",
		}, []string{"kind", "outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eva_llm_latency_seconds",
			Help:    "LLM呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		chatMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eva_chat_messages_total",
			Help: "処理したチャットメッセージの合計数",
		}),
		voiceCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eva_voice_commits_total",
			Help: "ボイスナレッジのコミット合計数",
		}),
		analysisFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eva_analysis_failures_total",
			Help: "トランスクリプト分析の失敗合計数（フォールバック適用含む）",
		}),
		remindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eva_reminders_sent_total",
			Help: "送信した再トレーニングリマインダーの合計数",
		}),
	}

	reg.MustRegister(
		c.llmRequests,
		c.llmLatency,
		c.chatMessages,
		c.voiceCommits,
		c.analysisFailures,
		c.remindersSent,
	)

	return c
}

// RecordLLMRequest はLLM呼び出しの結果を記録する。
// kindは"chat"、"analysis"、"trend"、"prefill"、"transcribe"のいずれか。
// outcomeは"success"、"failure"、"timeout"、"parse_failure"のいずれか。
func (c *Collector) RecordLLMRequest(kind string, outcome string) {
	c.llmRequests.WithLabelValues(kind, outcome).Inc()
}

// RecordLLMLatency はLLM呼び出しのレイテンシを記録する。
func (c *Collector) RecordLLMLatency(kind string, duration time.Duration) {
	c.llmLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordChatMessage はチャットメッセージの処理を記録する。
func (c *Collector) RecordChatMessage() {
	c.chatMessages.Inc()
}

// RecordVoiceCommit はボイスナレッジのコミットを記録する。
func (c *Collector) RecordVoiceCommit() {
	c.voiceCommits.Inc()
}

// RecordAnalysisFailure は分析失敗（フォールバック適用）を記録する。
func (c *Collector) RecordAnalysisFailure() {
	c.analysisFailures.Inc()
}

// RecordReminderSent はリマインダー送信を記録する。
func (c *Collector) RecordReminderSent() {
	c.remindersSent.Inc()
}

// NopCollector は何も記録しないMetricsCollector実装。テスト用。
type NopCollector struct{}

func (NopCollector) RecordLLMRequest(kind string, outcome string)        {}
func (NopCollector) RecordLLMLatency(kind string, duration time.Duration) {}
func (NopCollector) RecordChatMessage()                                  {}
func (NopCollector) RecordVoiceCommit()                                  {}
func (NopCollector) RecordAnalysisFailure()                              {}
func (NopCollector) RecordReminderSent()                                 {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

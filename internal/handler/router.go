package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	UserResolver      middleware.UserResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// ライセンス
	LicenseService LicenseServiceInterface
	StatsProvider  UserStatsProvider

	// ボイストレーナー
	TrainerService TrainerServiceInterface

	// チャットボット
	BotService BotServiceInterface

	// 案件・解析
	ProjectService  ProjectServiceInterface
	AnalysisService AnalysisServiceInterface

	// ダッシュボード・トレンド
	DashboardService DashboardServiceInterface
	TrendService     TrendServiceInterface

	// Prometheusメトリクス（nilなら/metricsを公開しない）
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → License → RateLimit(General)
//
// LLMを呼ぶエンドポイントにはLLM専用レート制限を追加で適用する。
// ライセンス発行・検証ルート（/license, /auth/whop-license）は認証チェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルートに効くミドルウェア
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())

	licenseHandler := NewLicenseHandler(deps.LicenseService, deps.StatsProvider)
	trainerHandler := NewTrainerHandler(deps.TrainerService)
	botHandler := NewBotHandler(deps.BotService)
	projectHandler := NewProjectHandler(deps.ProjectService)
	transcriptHandler := NewTranscriptHandler(deps.AnalysisService)
	dashboardHandler := NewDashboardHandler(deps.DashboardService)
	trendHandler := NewTrendHandler(deps.TrendService)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// ライセンス発行・検証（認証のブートストラップ）
	r.Post("/license", licenseHandler.Issue)
	r.Get("/license", licenseHandler.Verify)
	r.Post("/auth/whop-license", licenseHandler.LinkWhop)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: License → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewLicenseMiddleware(deps.UserResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		llmLimited := deps.RateLimiter.LLMMiddleware()

		// ボイストレーナー
		r.Route("/trainer", func(r chi.Router) {
			r.Get("/questions", trainerHandler.Questions)
			r.Get("/status", trainerHandler.Status)
			r.Post("/commit", trainerHandler.Commit)
			r.Get("/history", trainerHandler.History)

			r.Route("/answer/{index}", func(r chi.Router) {
				r.Get("/", trainerHandler.GetAnswer)
				r.Post("/", trainerHandler.SetAnswer)
			})

			// LLMを呼ぶエンドポイント
			r.With(llmLimited).Post("/prefill", trainerHandler.Prefill)
			r.With(llmLimited).Post("/whisper", trainerHandler.Whisper)
		})

		// アップロード（original routeとの互換パス）
		r.Post("/train/upload", trainerHandler.Upload)

		// チャットアシスタント
		r.Route("/bot/chat", func(r chi.Router) {
			r.With(llmLimited).Post("/", botHandler.Chat)
			r.Get("/history", botHandler.History)
			r.Delete("/history", botHandler.Clear)
		})

		// 案件管理
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", projectHandler.List)
			r.Post("/", projectHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", projectHandler.Get)
				r.Put("/", projectHandler.Update)
				r.Delete("/", projectHandler.Delete)
			})
		})

		// トランスクリプト登録（同期解析つき）
		r.With(llmLimited).Post("/transcripts", transcriptHandler.Create)

		// ダッシュボード
		r.Get("/dashboard", dashboardHandler.Get)

		// トレンド解析
		r.Route("/trends", func(r chi.Router) {
			r.With(llmLimited).Get("/", trendHandler.Get)
			r.With(llmLimited).Post("/", trendHandler.Act)
		})
	})

	return r
}

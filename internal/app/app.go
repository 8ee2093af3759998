package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/analysis"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/bot"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/config"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/dashboard"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/database"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/handler"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/knowledge"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/license"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/llm"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/logger"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/metrics"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/middleware"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/notify"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/project"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/repository"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/trainer"
	"github.com/kgone1211/eca-personal-assistant-chatbot/internal/trend"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	answerRepo := repository.NewPostgresAnswerRepo(db)
	blobRepo := repository.NewPostgresBlobRepo(db)
	messageRepo := repository.NewPostgresMessageRepo(db)
	projectRepo := repository.NewPostgresProjectRepo(db)
	milestoneRepo := repository.NewPostgresMilestoneRepo(db)
	transcriptRepo := repository.NewPostgresTranscriptRepo(db)
	analysisRepo := repository.NewPostgresAnalysisRepo(db)
	insightRepo := repository.NewPostgresInsightRepo(db)
	trendRepo := repository.NewPostgresTrendRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. LLMクライアントの初期化
	llmClient := llm.NewClient(llm.Config{
		BaseURL:      cfg.OpenAIBaseURL,
		APIKey:       cfg.OpenAIAPIKey,
		Model:        cfg.OpenAIModel,
		WhisperModel: cfg.OpenAIWhisperModel,
		Timeout:      cfg.LLMTimeout,
	}, collector)

	// 5. ドメインサービスの初期化
	resolver := license.NewResolver(
		&license.FormatVerifier{AllowAny: cfg.LicenseDevAllowAny},
		userRepo,
	)
	retriever := knowledge.NewRetriever(blobRepo)

	trainerService := trainer.NewService(answerRepo, blobRepo, userRepo, llmClient, collector)
	botService := bot.NewService(messageRepo, retriever, llmClient, collector)
	projectService := project.NewService(projectRepo, milestoneRepo, transcriptRepo, analysisRepo, insightRepo)
	analysisService := analysis.NewService(projectRepo, transcriptRepo, analysisRepo, insightRepo, llmClient, collector)
	dashboardService := dashboard.NewService(projectRepo, milestoneRepo, transcriptRepo, analysisRepo, insightRepo)
	trendService := trend.NewService(projectRepo, transcriptRepo, analysisRepo, blobRepo, insightRepo, trendRepo, llmClient)

	// 6. レートリミッターの初期化（configはreq/min単位なのでreq/secに変換）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.LLMRate = rate.Limit(float64(cfg.RateLimitLLM) / 60.0)
	rateLimiterCfg.LLMBurst = cfg.RateLimitLLM
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	deps := &handler.RouterDeps{
		UserResolver:      resolver,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		LicenseService: resolver,
		StatsProvider:  userRepo,

		TrainerService:   trainerService,
		BotService:       botService,
		ProjectService:   projectService,
		AnalysisService:  analysisService,
		DashboardService: dashboardService,
		TrendService:     trendService,

		MetricsHandler: metrics.SetupMetricsRoute(registry),
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、再トレーニングリマインダーのスケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリ・メトリクスの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. メール送信とリマインダージョブの初期化
	// RESEND_API_KEY未設定時はログ出力のみのSenderにフォールバックする
	sender := notify.NewSender(cfg.ResendAPIKey, cfg.SenderEmail)
	reminder := notify.NewReminder(
		userRepo, sender, collector,
		cfg.RetrainReminderAfter, cfg.BaseURL,
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("notify_interval", cfg.NotifyInterval),
		slog.Duration("retrain_reminder_after", cfg.RetrainReminderAfter),
	)

	// リマインダースケジューラをメインgoroutineで実行（ブロッキング）
	reminder.Start(ctx, cfg.NotifyInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

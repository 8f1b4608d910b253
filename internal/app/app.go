// Package app はアプリケーションの初期化・依存関係のワイヤリング・起動を担う。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/newsdispatcher/internal/article"
	"github.com/hitoshi/newsdispatcher/internal/config"
	"github.com/hitoshi/newsdispatcher/internal/database"
	"github.com/hitoshi/newsdispatcher/internal/dedup"
	"github.com/hitoshi/newsdispatcher/internal/dispatch"
	"github.com/hitoshi/newsdispatcher/internal/handler"
	"github.com/hitoshi/newsdispatcher/internal/logger"
	"github.com/hitoshi/newsdispatcher/internal/metrics"
	"github.com/hitoshi/newsdispatcher/internal/middleware"
	"github.com/hitoshi/newsdispatcher/internal/pipeline"
	"github.com/hitoshi/newsdispatcher/internal/repository"
	"github.com/hitoshi/newsdispatcher/internal/security"
	"github.com/hitoshi/newsdispatcher/internal/source"
	"github.com/hitoshi/newsdispatcher/internal/translate"
)

// Init はアプリケーションの初期化を行う。
// .envファイル（存在する場合）と環境変数からConfigを読み込み、
// JSON構造化ログをセットアップする。
func Init(w io.Writer) (*config.Config, error) {
	// .envは任意（本番環境では環境変数を直接設定する）
	_ = godotenv.Load()

	logger.SetupDefault(w)

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
	cmd, flags := ParseCommand(args)

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
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandDispatch:
		return runDispatch(cfg, flags)
	case CommandWorker:
		return runWorker(cfg, flags)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newFetchers は全検索ソースのフェッチャーを構築する。
// 外部通信はSSRF防止付きHTTPクライアントで行う。
func newFetchers(cfg *config.Config, log *slog.Logger) []source.Fetcher {
	clientFactory := security.NewOutboundClientFactory()
	httpClient := clientFactory.NewClient(cfg.FetchTimeout)
	sanitizer := security.NewTitleSanitizer()

	return []source.Fetcher{
		source.NewGoogleNewsFetcher(httpClient, sanitizer, log),
		source.NewCiNiiFetcher(httpClient, sanitizer, log, cfg.CiNiiAppID, cfg.CiNiiOverfetchFactor, cfg.CiNiiAPIInterval),
		source.NewArxivFetcher(httpClient, sanitizer, log, cfg.ArxivOverfetchFactor),
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	log := slog.Default()

	// serveモードは配信や翻訳を行わないが、/metricsで公開する
	// レジストリには同じメトリクス群を登録しておく
	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg)

	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral), log,
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		DB:          db,
		Fetchers:    newFetchers(cfg, log),
		Gatherer:    reg,
		RateLimiter: rateLimiter,
		Logger:      log,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
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

// newDispatchJob は配信ジョブの依存関係を一括でワイヤリングする。
func newDispatchJob(cfg *config.Config, db *sql.DB, log *slog.Logger, collector metrics.MetricsCollector, flags RunFlags) *dispatch.Job {
	articleRepo := repository.NewPostgresArticleRepo(db)
	recipientRepo := repository.NewPostgresRecipientRepo(db)
	queryRepo := repository.NewPostgresQuerySpecRepo(db)
	deliveryRepo := repository.NewPostgresDeliveryRepo(db)

	backend := translate.NewFromConfig(cfg, log)
	batcher := translate.NewBatcher(backend, cfg.TranslationBatchSize, collector, log)

	orchestrator := pipeline.NewOrchestrator(
		newFetchers(cfg, log),
		dedup.NewLoader(deliveryRepo, log),
		article.NewStore(articleRepo, log),
		batcher,
		log,
		cfg.DefaultLanguage,
	)

	mailer := dispatch.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)

	return dispatch.NewJob(
		orchestrator,
		recipientRepo,
		queryRepo,
		deliveryRepo,
		mailer,
		collector,
		log,
		dispatch.JobConfig{
			DispatchInterval:   cfg.DispatchInterval,
			FetchSpacing:       cfg.FetchSpacing,
			DryRun:             flags.DryRun,
			DisableTranslation: flags.NoTranslate,
		},
	)
}

// runDispatch は配信サイクルを1回実行して終了する。
func runDispatch(cfg *config.Config, flags RunFlags) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (dispatch)")

	log := slog.Default()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	job := newDispatchJob(cfg, db, log, collector, flags)

	// シグナルで実行途中のサイクルを中断できるようにする
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := job.RunOnce(ctx); err != nil {
		return fmt.Errorf("dispatch cycle failed: %w", err)
	}
	return nil
}

// runWorker はワーカーモード（定期配信）で起動する。
// 配信ジョブをティッカーで実行し、メトリクスをHTTPで公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config, flags RunFlags) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	log := slog.Default()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	job := newDispatchJob(cfg, db, log, collector, flags)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// メトリクス公開用の軽量HTTPサーバー
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	metricsServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: mux,
	}
	go func() {
		slog.Info("metrics server starting", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

	// 配信ジョブをメインgoroutineで実行（ブロッキング）
	job.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", slog.String("error", err.Error()))
	}

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
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
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

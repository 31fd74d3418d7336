package app

import (
	"context"
	"errors"
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

	"github.com/hitoshi/commentman/internal/auth"
	"github.com/hitoshi/commentman/internal/collector"
	"github.com/hitoshi/commentman/internal/comment"
	"github.com/hitoshi/commentman/internal/config"
	"github.com/hitoshi/commentman/internal/credential"
	"github.com/hitoshi/commentman/internal/database"
	"github.com/hitoshi/commentman/internal/douyin"
	"github.com/hitoshi/commentman/internal/handler"
	"github.com/hitoshi/commentman/internal/logger"
	"github.com/hitoshi/commentman/internal/metrics"
	"github.com/hitoshi/commentman/internal/middleware"
	"github.com/hitoshi/commentman/internal/repository"
	"github.com/hitoshi/commentman/internal/security"
	"github.com/hitoshi/commentman/internal/signer"
	"github.com/hitoshi/commentman/internal/worker/cleanup"
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
	)

	switch cmd {
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
	sessionRepo := repository.NewPostgresSessionRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	metricsCollector := metrics.NewCollector(registry)

	// 4. リモートAPIクライアントの初期化
	ssrfGuard := security.NewSSRFGuard()
	webSigner := signer.NewWebSigner()
	douyinClient := douyin.NewClient(
		ssrfGuard.NewSafeClient(cfg.FetchTimeout), webSigner, slog.Default(),
	)
	shareResolver := douyin.NewShareLinkResolver(
		ssrfGuard.NewSafeClient(cfg.FetchTimeout), ssrfGuard, slog.Default(),
	)

	// 5. クレデンシャルストアの初期化
	// Cookieの欠落は起動失敗にしない。最初の収集リクエストでエラーとして表面化する。
	credStore := credential.NewStore(
		cfg.CookieFile, cfg.ReferenceVideoID, douyinClient, slog.Default(),
	)
	if err := credStore.Load(cfg.DouyinCookie); err != nil {
		if errors.Is(err, credential.ErrCredentialMissing) {
			slog.Warn("Douyin Cookieが未設定のため、収集APIは利用できません",
				slog.String("hint", "DOUYIN_COOKIE環境変数またはCookieファイルを設定してください"),
			)
		} else {
			return fmt.Errorf("failed to load cookie credential: %w", err)
		}
	}

	// 6. ドメインサービスの初期化
	collectorService := collector.NewService(
		douyinClient, credStore, shareResolver,
		collector.Config{
			PageSize:         cfg.FetchPageSize,
			RetryMax:         cfg.CollectRetryMax,
			BackoffBase:      cfg.CollectBackoff,
			ThrottleInterval: cfg.ThrottleInterval,
		},
		metricsCollector, slog.Default(),
	)
	commentService := comment.NewService(commentRepo, metricsCollector, slog.Default())
	authService := auth.NewService(
		userRepo, sessionRepo,
		time.Duration(cfg.SessionMaxAge)*time.Second, slog.Default(),
	)

	// 7. レートリミッターの構築（configはreq/min単位、rate.Limitはreq/sec単位）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.CollectRate = rate.Limit(float64(cfg.RateLimitCollect) / 60.0)
	rateLimiterCfg.CollectBurst = cfg.RateLimitCollect
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 8. ルーターの構築
	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		AuthService:       authService,
		CollectorService:  collectorService,
		CommentService:    commentService,
		CredentialService: credStore,

		DB:              db,
		MetricsGatherer: registry,
	}
	// 本番以外ではエラーレスポンスに診断詳細を含める
	handler.SetIncludeErrorDetail(!cfg.IsProduction())

	router := handler.NewRouter(deps)

	// 9. バックグラウンドジョブの起動
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())
	go cleanupJob.RunDaily(jobCtx, 24*time.Hour)

	// 10. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // 収集リクエストはページング＋リトライで長引く
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
	cancelJobs()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
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
// /api/health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/api/health", port)
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

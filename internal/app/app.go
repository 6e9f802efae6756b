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
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/cvbuilder/internal/agency"
	"github.com/hitoshi/cvbuilder/internal/auth"
	"github.com/hitoshi/cvbuilder/internal/billing"
	"github.com/hitoshi/cvbuilder/internal/config"
	"github.com/hitoshi/cvbuilder/internal/cv"
	"github.com/hitoshi/cvbuilder/internal/cvtemplate"
	"github.com/hitoshi/cvbuilder/internal/database"
	"github.com/hitoshi/cvbuilder/internal/guard"
	"github.com/hitoshi/cvbuilder/internal/handler"
	"github.com/hitoshi/cvbuilder/internal/logger"
	"github.com/hitoshi/cvbuilder/internal/metrics"
	"github.com/hitoshi/cvbuilder/internal/middleware"
	"github.com/hitoshi/cvbuilder/internal/profile"
	"github.com/hitoshi/cvbuilder/internal/repository"
	"github.com/hitoshi/cvbuilder/internal/security"
	"github.com/hitoshi/cvbuilder/internal/seo"
	"github.com/hitoshi/cvbuilder/internal/user"
	"github.com/hitoshi/cvbuilder/internal/worker/cleanup"
)

// dbPingTimeout は起動時のDB疎通確認のタイムアウト。
const dbPingTimeout = 5 * time.Second

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if !cmd.NeedsConfig() {
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
		slog.String("pdf_renderer", string(cfg.PDFRenderer)),
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
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーとメトリクスサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクス
	registry := newRegistry()
	collector := metrics.NewCollector(registry)

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	variantRepo := repository.NewPostgresCVVariantRepo(db)
	billingRepo := repository.NewPostgresBillingRepo(db)
	orgRepo := repository.NewPostgresOrganisationRepo(db)

	// 4. 認証
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo,
		auth.ServiceConfig{
			SessionMaxAge:  cfg.SessionMaxAge,
			TokenSecret:    cfg.SessionSecret,
			AccessTokenTTL: cfg.AccessTokenTTL,
		},
	)
	sessionGuard := guard.New(authService, profileRepo, collector)

	// 5. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard(cfg.PhotoAllowedHosts...)
	imageFetcher := security.NewImageFetcher(ssrfGuard, cfg.PhotoFetchTimeout, cfg.PhotoMaxSize)
	sanitizer := security.NewContentSanitizer()

	// 6. テンプレートとPDF生成
	templates, err := cvtemplate.NewRegistry()
	if err != nil {
		return fmt.Errorf("failed to load cv templates: %w", err)
	}
	templateService := cvtemplate.NewService(templates, newPDFRenderer(cfg), imageFetcher, collector)

	// 7. ドメインサービスの初期化
	cvService, err := cv.NewService(variantRepo, profileRepo, billingRepo, sanitizer)
	if err != nil {
		return fmt.Errorf("failed to initialize cv service: %w", err)
	}
	profileService := profile.NewService(profileRepo, ssrfGuard, collector)
	agencyService := agency.NewService(orgRepo)
	billingService := billing.NewService(billingRepo, billing.Config{
		WebhookSecret: cfg.StripeWebhookSecret,
		Tolerance:     cfg.WebhookTolerance,
	}, collector)
	seoGenerator := seo.NewGenerator(cfg.BaseURL, profileRepo)
	userService := user.NewService(userRepo, sessionRepo)

	// 8. ミドルウェア
	csrf := middleware.NewCSRFService(middleware.CSRFConfig{
		CookieSecure: cfg.CookieSecure,
		CookieDomain: cfg.CookieDomain,
		MaxAge:       cfg.SessionMaxAge,
		ExemptPaths:  []string{handler.StripeWebhookPath, middleware.CSPReportPath},
		OnReject:     collector.RecordCSRFRejection,
	})
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitPhoto),
	)
	defer rateLimiter.Stop()

	// 9. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Metrics:           collector,
		SessionResolver:   authService,
		CSRF:              csrf,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		SecurityHeaders: middleware.SecurityHeadersConfig{
			HSTS:         cfg.CookieSecure,
			ImageSources: imageSources(cfg.PhotoAllowedHosts),
		},

		Guard:       sessionGuard,
		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		CVService:       cvService,
		TemplateService: templateService,
		ProfileService:  profileService,
		AgencyService:   agencyService,
		BillingService:  billingService,
		SEOService:      seoGenerator,
		UserService:     userService,
		HealthChecker:   db,
	})

	// 10. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsServer := newMetricsServer(cfg.MetricsPort, registry)

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	go serveMetrics(metricsServer)

	select {
	case <-stop:
		slog.Info("shutting down API server...")
	case err := <-serverErr:
		slog.Error("server listen error", slog.String("error", err.Error()))
		_ = metricsServer.Close()
		return fmt.Errorf("server listen failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := metricsServer.Shutdown(ctx); err != nil {
		slog.Warn("metrics server shutdown failed", slog.String("error", err.Error()))
	}
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れセッションと古いWebhookイベントの定期削除を実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. メトリクス
	registry := newRegistry()
	collector := metrics.NewCollector(registry)
	metricsServer := newMetricsServer(cfg.MetricsPort, registry)
	go serveMetrics(metricsServer)

	// 3. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(
		repository.NewPostgresSessionRepo(db),
		repository.NewPostgresBillingRepo(db),
		slog.Default(),
		collector,
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
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)

	// クリーンアップをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.SessionCleanupInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("metrics server shutdown failed", slog.String("error", err.Error()))
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

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("schema_version", uint64(version)))
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

// newRegistry はランタイムとプロセスのメトリクスを含むレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// newMetricsServer はメトリクス専用ポートのサーバーを生成する。
func newMetricsServer(port string, gatherer prometheus.Gatherer) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           metrics.SetupMetricsRoute(gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func serveMetrics(server *http.Server) {
	slog.Info("metrics server starting", slog.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server listen error", slog.String("error", err.Error()))
	}
}

// newPDFRenderer は設定に応じたPDFレンダラーを返す。
func newPDFRenderer(cfg *config.Config) cvtemplate.PDFRenderer {
	if cfg.PDFRenderer == config.PDFRendererChromedp {
		return cvtemplate.NewChromedpRenderer(cfg.ChromePath, 30*time.Second)
	}
	return cvtemplate.NewMarotoRenderer()
}

// imageSources はCSPのimg-srcに追加するオリジンを返す。
// 許可ホストが未設定の場合はHTTPSの任意オリジンを許可する。
func imageSources(hosts []string) []string {
	if len(hosts) == 0 {
		return []string{"https:"}
	}
	sources := make([]string, 0, len(hosts))
	for _, h := range hosts {
		sources = append(sources, "https://"+h)
	}
	return sources
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}

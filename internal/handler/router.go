package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/cvbuilder/internal/metrics"
	"github.com/hitoshi/cvbuilder/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	SessionResolver   middleware.SessionResolver
	CSRF              *middleware.CSRFService
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	SecurityHeaders   middleware.SecurityHeadersConfig

	// 認証
	Guard       Authenticator
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ドメイン
	CVService       CVServiceInterface
	TemplateService TemplateServiceInterface
	ProfileService  ProfileServiceInterface
	AgencyService   AgencyServiceInterface
	BillingService  BillingServiceInterface
	SEOService      SEOServiceInterface
	UserService     UserServiceInterface
	HealthChecker   HealthChecker
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session → CSRF
//
// /api/* にはさらにRateLimit(General)を適用する。
// CSRFの対象外は決済WebhookとCSPレポートのみで、CSRFServiceの設定で指定する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.SecurityHeaders))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
	r.Use(deps.CSRF.Middleware)

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	pageHandler := NewPageHandler(deps.Guard, deps.CVService, deps.TemplateService, deps.CSRF)
	publicHandler := NewPublicHandler(deps.SEOService, deps.HealthChecker)
	sessionHandler := NewSessionHandler(deps.ProfileService)
	profileHandler := NewProfileHandler(deps.Guard, deps.ProfileService)
	cvHandler := NewCVHandler(deps.Guard, deps.CVService, deps.TemplateService)
	agencyHandler := NewAgencyHandler(deps.Guard, deps.AgencyService)
	webhookHandler := NewWebhookHandler(deps.BillingService)
	userHandler := NewUserHandler(deps.Guard, deps.UserService)

	// --- 公開ルート ---
	r.Get("/health", publicHandler.Health)
	r.Get("/robots.txt", publicHandler.RobotsTxt)
	r.Get("/sitemap.xml", publicHandler.SitemapXML)

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.With(middleware.RequireSession).Post("/token", authHandler.Token)
	})

	// --- ページ ---
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	})
	r.Get("/login", servePage("page.login", pageHandler.Login))
	r.Get("/dashboard", servePage("page.dashboard", pageHandler.Dashboard))
	r.Get("/cv/{slug}", servePage("page.public_cv", pageHandler.PublicCV))

	// --- API ---
	r.Route("/api", func(r chi.Router) {
		// ブラウザや決済サービスから直接届くためレート制限の対象外
		r.Post("/csp-report", webhookHandler.CSPReport)
		r.Post("/stripe/webhook", webhookHandler.Stripe)

		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Method(http.MethodGet, "/csrf-token", deps.CSRF.TokenHandler())

			r.Get("/verify-session", sessionHandler.VerifySession)
			r.Get("/profile-diagnostics", sessionHandler.ProfileDiagnostics)

			r.With(deps.RateLimiter.PhotoUpdateMiddleware()).Post("/update-profile-photo", profileHandler.UpdatePhoto)

			r.Route("/content-editor", func(r chi.Router) {
				r.Get("/get-cv-data", cvHandler.GetCVData)
				r.Post("/save-cv-data", cvHandler.SaveCVData)
			})
			r.Get("/cv/{variantID}/pdf", cvHandler.DownloadPDF)

			r.Post("/agency/cancel-invitation", agencyHandler.CancelInvitation)

			r.Delete("/users/me", userHandler.Withdraw)
		})
	})

	return r
}

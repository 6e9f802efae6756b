// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// PDFRenderer はPDF生成に使用するレンダラーの種別。
type PDFRenderer string

const (
	// PDFRendererMaroto はmarotoによるネイティブPDF生成。
	PDFRendererMaroto PDFRenderer = "maroto"
	// PDFRendererChromedp はヘッドレスChromeによるHTML印刷。
	PDFRendererChromedp PDFRenderer = "chromedp"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// OAuth
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID,required,notEmpty"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET,required,notEmpty"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL,required,notEmpty"`

	// Session
	SessionSecret          string        `env:"SESSION_SECRET,required,notEmpty"`
	SessionMaxAge          int           `env:"SESSION_MAX_AGE" envDefault:"86400"`
	AccessTokenTTL         time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`

	// Billing
	StripeWebhookSecret string        `env:"STRIPE_WEBHOOK_SECRET,required,notEmpty"`
	WebhookTolerance    time.Duration `env:"WEBHOOK_TOLERANCE" envDefault:"5m"`

	// Rate Limit（req/min）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitPhoto   int `env:"RATE_LIMIT_PHOTO" envDefault:"10"`

	// Rendering
	PDFRenderer       PDFRenderer   `env:"PDF_RENDERER" envDefault:"maroto"`
	ChromePath        string        `env:"CHROME_PATH"`
	PhotoFetchTimeout time.Duration `env:"PHOTO_FETCH_TIMEOUT" envDefault:"5s"`
	PhotoMaxSize      int64         `env:"PHOTO_MAX_SIZE" envDefault:"2097152"`
	// PhotoAllowedHosts はプロフィール写真の取得を許可するホスト。空の場合はHTTPSの公開ホストすべて。
	PhotoAllowedHosts []string `env:"PHOTO_ALLOWED_HOSTS" envSeparator:","`

	// Server
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	BaseURL     string `env:"BASE_URL,required,notEmpty"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		var aggErr env.AggregateError
		if errors.As(err, &aggErr) {
			return nil, fmt.Errorf("required environment variables are not set: %v", missingVars(aggErr))
		}
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	switch cfg.PDFRenderer {
	case PDFRendererMaroto, PDFRendererChromedp:
	default:
		return nil, fmt.Errorf("unsupported PDF_RENDERER: %q", cfg.PDFRenderer)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	return cfg, nil
}

// missingVars は集約エラーから未設定の環境変数名を取り出す。
// 必須以外のパースエラーはそのままメッセージとして残す。
func missingVars(aggErr env.AggregateError) []string {
	var names []string
	for _, e := range aggErr.Errors {
		var notSet env.EnvVarIsNotSetError
		if errors.As(e, &notSet) {
			names = append(names, notSet.Key)
			continue
		}
		var empty env.EmptyEnvVarError
		if errors.As(e, &empty) {
			names = append(names, empty.Key)
			continue
		}
		names = append(names, e.Error())
	}
	return names
}

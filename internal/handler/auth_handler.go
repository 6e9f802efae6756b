// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/cvbuilder/internal/middleware"
)

const (
	oauthStateCookie    = "oauth_state"
	oauthRedirectCookie = "oauth_redirect"
)

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google/login?redirect=
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	h.setShortCookie(w, oauthStateCookie, state, 600)

	// ログイン後の遷移先は自サイト内の相対パスに限る
	if next := r.URL.Query().Get("redirect"); safeRedirectPath(next) {
		h.setShortCookie(w, oauthRedirectCookie, next, 600)
	}

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("op", "auth.callback"))
		http.Redirect(w, r, "/login?error=invalid_state", http.StatusSeeOther)
		return
	}
	h.setShortCookie(w, oauthStateCookie, "", -1)

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Redirect(w, r, "/login?error=missing_code", http.StatusSeeOther)
		return
	}

	// 3. 認証処理
	session, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed",
			slog.String("op", "auth.callback"),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, "/login?error=authentication_failed", http.StatusSeeOther)
		return
	}

	// 4. セッションCookieを設定（HTTP Only）
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 5. 元のページかダッシュボードへリダイレクト
	next := "/dashboard"
	if c, err := r.Cookie(oauthRedirectCookie); err == nil && safeRedirectPath(c.Value) {
		next = c.Value
		h.setShortCookie(w, oauthRedirectCookie, "", -1)
	}
	http.Redirect(w, r, h.config.BaseURL+next, http.StatusSeeOther)
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.service.SignOut(r.Context(), cookie.Value); err != nil {
			// ログアウト失敗してもCookieはクリアする
			slog.Error("failed to sign out",
				slog.String("op", "auth.logout"),
				slog.String("error", err.Error()),
			)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CSRFCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.config.BaseURL+"/", http.StatusSeeOther)
}

type accessTokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Token は現在のセッションに紐づくBearerアクセストークンを発行する。
// POST /auth/token
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	session := middleware.RequestContextFrom(r.Context()).Session()
	if session == nil {
		middleware.WriteUnauthenticated(w)
		return
	}

	token, expiresAt, err := h.service.IssueAccessToken(session)
	if err != nil {
		slog.Error("failed to issue access token",
			slog.String("op", "auth.token"),
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, accessTokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	})
}

func (h *AuthHandler) setShortCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

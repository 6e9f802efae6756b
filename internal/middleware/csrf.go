package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"

	"github.com/hitoshi/cvbuilder/internal/model"
)

const (
	// CSRFCookieName はCSRFトークンを保持するCookieの名前。
	// ページのスクリプトが読み取ってヘッダーに載せるため、HttpOnlyではない。
	CSRFCookieName = "csrf_token"

	// CSRFHeaderName はCSRFトークンを送るリクエストヘッダー名。
	CSRFHeaderName = "X-CSRF-Token"

	// CSRFFormField はフォーム送信時にCSRFトークンを送るフィールド名。
	CSRFFormField = "csrf_token"

	// csrfTokenBytes はトークンのエントロピー（256bit）。hexで64文字になる。
	csrfTokenBytes = 32
)

// CSRFConfig はCSRFサービスの設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
	MaxAge       int // 秒

	// ExemptPaths はCSRF検証を行わないパス。
	// 署名検証を行うWebhookとブラウザが直接送るCSPレポートのみを登録する。
	ExemptPaths []string

	// OnReject は検証失敗時に呼ばれる。メトリクス記録用。
	OnReject func(reason string)
}

// CSRFService はダブルサブミットCookie方式のCSRFトークンを発行・検証する。
type CSRFService struct {
	config CSRFConfig
	exempt map[string]struct{}
}

// NewCSRFService はCSRFServiceを生成する。
func NewCSRFService(config CSRFConfig) *CSRFService {
	if config.MaxAge <= 0 {
		config.MaxAge = 86400
	}
	exempt := make(map[string]struct{}, len(config.ExemptPaths))
	for _, p := range config.ExemptPaths {
		exempt[p] = struct{}{}
	}
	return &CSRFService{config: config, exempt: exempt}
}

// GetOrCreateToken はCookieに有効なトークンがあればそれを返し、なければ生成してCookieに設定する。
// 生成したトークンはリクエストにも反映し、同一リクエスト内の再呼び出しで同じ値を返す。
func (s *CSRFService) GetOrCreateToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if token, ok := cookieToken(r); ok {
		return token, nil
	}

	token, err := generateCSRFToken()
	if err != nil {
		return "", err
	}

	cookie := &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Domain:   s.config.CookieDomain,
		MaxAge:   s.config.MaxAge,
		HttpOnly: false,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, cookie)
	r.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: token})

	return token, nil
}

// Verify は送信されたトークンとCookieのトークンを定数時間で比較する。
// 欠落・形式不正・不一致はすべてfalseを返す。
func (s *CSRFService) Verify(submitted string, r *http.Request) bool {
	expected, ok := cookieToken(r)
	if !ok || !wellFormed(submitted) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(expected)) == 1
}

// Middleware は状態変更メソッド（POST, PUT, PATCH, DELETE）のトークン検証を行う。
// 検証失敗時は403を返し、後続のハンドラーは呼ばない。
// 安全なメソッドではトークンCookieを発行する。
func (s *CSRFService) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			if _, err := s.GetOrCreateToken(w, r); err != nil {
				slog.Error("failed to issue CSRF token", slog.String("error", err.Error()))
			}
			next.ServeHTTP(w, r)
			return
		}

		if _, ok := s.exempt[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		// Cookieを伴わないBearer認証はブラウザが自動送信しないため検証対象外
		if creds := CredentialsFromRequest(r); creds.BearerToken != "" && creds.SessionID == "" {
			next.ServeHTTP(w, r)
			return
		}

		submitted, source := submittedToken(r)
		if !s.Verify(submitted, r) {
			reason := "mismatch"
			switch {
			case submitted == "":
				reason = "missing"
			case !wellFormed(submitted):
				reason = "malformed"
			}
			slog.Warn("CSRF validation failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("reason", reason),
				slog.String("source", source),
			)
			if s.config.OnReject != nil {
				s.config.OnReject(reason)
			}
			WriteErrorResponse(w, http.StatusForbidden, model.NewCSRFInvalidError())
			return
		}

		next.ServeHTTP(w, r)
	})
}

// csrfTokenResponse はCSRFトークン取得APIのレスポンス。
type csrfTokenResponse struct {
	Success   bool   `json:"success"`
	CSRFToken string `json:"csrfToken"`
}

// TokenHandler はCSRFトークン取得エンドポイントのハンドラーを返す。
// GET /api/csrf-token
func (s *CSRFService) TokenHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := s.GetOrCreateToken(w, r)
		if err != nil {
			slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
			WriteInternalServerError(w)
			return
		}

		w.Header().Set(CSRFHeaderName, token)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		json.NewEncoder(w).Encode(csrfTokenResponse{Success: true, CSRFToken: token})
	})
}

// submittedToken はヘッダー、フォームフィールドの順でトークンを取り出す。
func submittedToken(r *http.Request) (token, source string) {
	if v := r.Header.Get(CSRFHeaderName); v != "" {
		return v, "header"
	}
	if isFormRequest(r) {
		if v := r.PostFormValue(CSRFFormField); v != "" {
			return v, "form"
		}
	}
	return "", "none"
}

func isFormRequest(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/x-www-form-urlencoded" || mt == "multipart/form-data"
}

// cookieToken はCookieのトークンを返す。形式不正のトークンは存在しないものとして扱う。
func cookieToken(r *http.Request) (string, bool) {
	c, err := r.Cookie(CSRFCookieName)
	if err != nil || !wellFormed(c.Value) {
		return "", false
	}
	return c.Value, true
}

// wellFormed はトークンが64文字のhex文字列かどうかを判定する。
func wellFormed(token string) bool {
	if len(token) != csrfTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// generateCSRFToken は暗号的に安全なCSRFトークンを生成する。
func generateCSRFToken() (string, error) {
	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/cvbuilder/internal/auth"
	"github.com/hitoshi/cvbuilder/internal/model"
)

// SessionCookieName はセッションIDを保持するHttpOnly Cookieの名前。
const SessionCookieName = "session_id"

type contextKey string

var requestContextKey = contextKey("request_context")

// SessionResolver は認証情報からセッションを解決するインターフェース。
// auth.Serviceの部分集合として定義する。
type SessionResolver interface {
	ResolveSession(ctx context.Context, creds auth.Credentials) (*model.Session, error)
}

// RequestContext はリクエストごとの認証状態。生成後は変更しない。
// セッションは読み取り専用のコピーとして保持する。
type RequestContext struct {
	session     *model.Session
	credentials auth.Credentials
}

// NewRequestContext はRequestContextを生成する。sessionはコピーして保持する。
func NewRequestContext(session *model.Session, creds auth.Credentials) *RequestContext {
	rc := &RequestContext{credentials: creds}
	if session != nil {
		s := *session
		rc.session = &s
	}
	return rc
}

// Session はセッションのコピーを返す。未認証の場合はnil。
func (rc *RequestContext) Session() *model.Session {
	if rc == nil || rc.session == nil {
		return nil
	}
	s := *rc.session
	return &s
}

// Credentials はリクエストから読み取った認証情報を返す。
func (rc *RequestContext) Credentials() auth.Credentials {
	if rc == nil {
		return auth.Credentials{}
	}
	return rc.credentials
}

// UserID は認証済みユーザーのIDを返す。未認証の場合は空文字。
func (rc *RequestContext) UserID() string {
	if rc == nil || rc.session == nil {
		return ""
	}
	return rc.session.UserID
}

// CredentialsFromRequest はCookieとAuthorizationヘッダーから認証情報を取り出す。
func CredentialsFromRequest(r *http.Request) auth.Credentials {
	var creds auth.Credentials
	if c, err := r.Cookie(SessionCookieName); err == nil {
		creds.SessionID = c.Value
	}
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			creds.BearerToken = strings.TrimSpace(token)
		}
	}
	return creds
}

// NewSessionMiddleware は全リクエストでセッションを解決し、RequestContextを注入する。
// バックエンドエラー時はセッションなしとして処理を続行する（fail closed）。
// 未認証でもリクエストは拒否しない。拒否はRequireSessionやSession Guardが行う。
func NewSessionMiddleware(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := CredentialsFromRequest(r)

			var session *model.Session
			if !creds.Empty() {
				s, err := resolver.ResolveSession(r.Context(), creds)
				if err != nil {
					slog.Warn("session resolution failed",
						slog.String("op", "session.populate"),
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
				} else {
					session = s
				}
			}

			rc := NewRequestContext(session, creds)
			annotateRequestLog(r.Context(), rc)
			next.ServeHTTP(w, r.WithContext(ContextWithRequestContext(r.Context(), rc)))
		})
	}
}

// RequireSession はセッションのないリクエストに401を返すミドルウェア。
// プロフィールの存在確認が不要なセッション参照系APIで使用する。
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RequestContextFrom(r.Context()).Session() == nil {
			WriteUnauthenticated(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestContextFrom はコンテキストからRequestContextを取得する。
// セッションミドルウェアを通過していない場合は空のRequestContextを返す。
func RequestContextFrom(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestContextKey).(*RequestContext); ok && rc != nil {
		return rc
	}
	return &RequestContext{}
}

// ContextWithRequestContext はコンテキストにRequestContextを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) string {
	return RequestContextFrom(ctx).UserID()
}

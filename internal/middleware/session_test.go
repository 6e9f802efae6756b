package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/cvbuilder/internal/auth"
	"github.com/hitoshi/cvbuilder/internal/model"
)

// --- モック定義 ---

type mockResolver struct {
	resolveFn func(ctx context.Context, creds auth.Credentials) (*model.Session, error)
	calls     int
}

func (m *mockResolver) ResolveSession(ctx context.Context, creds auth.Credentials) (*model.Session, error) {
	m.calls++
	if m.resolveFn != nil {
		return m.resolveFn(ctx, creds)
	}
	return nil, nil
}

func validSession() *model.Session {
	return &model.Session{
		ID:        "valid-session-id",
		UserID:    "user-123",
		Email:     "jane@example.com",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

// --- テスト ---

func TestSessionMiddleware_ValidCookie_InjectsSession(t *testing.T) {
	resolver := &mockResolver{
		resolveFn: func(ctx context.Context, creds auth.Credentials) (*model.Session, error) {
			if creds.SessionID == "valid-session-id" {
				return validSession(), nil
			}
			return nil, nil
		},
	}

	var got *RequestContext
	handler := NewSessionMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = RequestContextFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "valid-session-id"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.UserID() != "user-123" {
		t.Errorf("UserID = %q, want %q", got.UserID(), "user-123")
	}
	if got.Session().Email != "jane@example.com" {
		t.Errorf("Email = %q, want %q", got.Session().Email, "jane@example.com")
	}
}

func TestSessionMiddleware_BearerHeader_PassesToken(t *testing.T) {
	var seen auth.Credentials
	resolver := &mockResolver{
		resolveFn: func(ctx context.Context, creds auth.Credentials) (*model.Session, error) {
			seen = creds
			return validSession(), nil
		},
	}

	handler := NewSessionMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/api/update-profile-photo", nil)
	req.Header.Set("Authorization", "bearer abc.def.ghi")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen.BearerToken != "abc.def.ghi" {
		t.Errorf("BearerToken = %q, want %q", seen.BearerToken, "abc.def.ghi")
	}
}

// 認証情報がなければバックエンドに問い合わせない。
func TestSessionMiddleware_NoCredentials_SkipsResolver(t *testing.T) {
	resolver := &mockResolver{}
	called := false
	handler := NewSessionMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if RequestContextFrom(r.Context()).Session() != nil {
			t.Error("expected nil session")
		}
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !called {
		t.Fatal("handler should be called for anonymous requests")
	}
	if resolver.calls != 0 {
		t.Errorf("resolver calls = %d, want 0", resolver.calls)
	}
}

// バックエンドエラーはセッションなしとして扱い、リクエストは継続する。
func TestSessionMiddleware_BackendError_FailsClosed(t *testing.T) {
	resolver := &mockResolver{
		resolveFn: func(ctx context.Context, creds auth.Credentials) (*model.Session, error) {
			return nil, errors.New("connection refused")
		},
	}

	var got *RequestContext
	handler := NewSessionMiddleware(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = RequestContextFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "some-session"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.Session() != nil {
		t.Error("session should be nil after backend error")
	}
	if got.Credentials().SessionID != "some-session" {
		t.Error("credentials should be kept for later re-resolution")
	}
}

// Sessionは毎回コピーを返し、呼び出し側の変更がRequestContextに影響しない。
func TestRequestContext_SessionIsImmutable(t *testing.T) {
	rc := NewRequestContext(validSession(), auth.Credentials{SessionID: "valid-session-id"})

	s := rc.Session()
	s.UserID = "tampered"

	if rc.UserID() != "user-123" {
		t.Errorf("UserID = %q after mutating copy, want %q", rc.UserID(), "user-123")
	}
}

func TestRequireSession(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("no session returns 401", func(t *testing.T) {
		w := httptest.NewRecorder()
		RequireSession(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/verify-session", nil))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if body := decodeErrorBody(t, w); body.Error != "Not authenticated" {
			t.Errorf("error = %q, want %q", body.Error, "Not authenticated")
		}
	})

	t.Run("session passes through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/verify-session", nil)
		req = req.WithContext(ContextWithRequestContext(req.Context(), NewRequestContext(validSession(), auth.Credentials{})))
		w := httptest.NewRecorder()
		RequireSession(next).ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})
}

func TestCredentialsFromRequest_IgnoresNonBearerScheme(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	if creds := CredentialsFromRequest(req); creds.BearerToken != "" {
		t.Errorf("BearerToken = %q, want empty", creds.BearerToken)
	}
}

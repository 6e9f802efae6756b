package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/cvbuilder/internal/model"
	"github.com/hitoshi/cvbuilder/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn           func(ctx context.Context, id string) (*model.User, error)
	createWithIdentityFn func(ctx context.Context, user *model.User, identity *model.Identity) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	if m.createWithIdentityFn != nil {
		return m.createWithIdentityFn(ctx, user, identity)
	}
	return nil
}

func (m *mockUserRepo) DeleteByID(_ context.Context, _ string) error {
	return nil
}

type mockIdentityRepo struct {
	findByProviderFn func(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

func (m *mockIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	if m.findByProviderFn != nil {
		return m.findByProviderFn(ctx, provider, providerUserID)
	}
	return nil, nil
}

type mockSessionRepo struct {
	createFn     func(ctx context.Context, session *model.Session) error
	findByIDFn   func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(_ context.Context, _ string) error { return nil }

func (m *mockSessionRepo) DeleteExpired(_ context.Context) (int64, error) { return 0, nil }

type mockOAuthProvider struct {
	getLoginURLFn  func(state string) string
	exchangeCodeFn func(ctx context.Context, code string) (*OAuthUserInfo, error)
}

func (m *mockOAuthProvider) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.IdentityRepository = (*mockIdentityRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ OAuthProvider = (*mockOAuthProvider)(nil)

var testConfig = ServiceConfig{
	SessionMaxAge:  86400,
	TokenSecret:    "test-session-secret-32bytes-long!",
	AccessTokenTTL: time.Hour,
}

// --- テスト ---

func TestGetLoginURL_ReturnsOAuthURL(t *testing.T) {
	provider := &mockOAuthProvider{
		getLoginURLFn: func(state string) string {
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}
	svc := NewService(provider, nil, nil, nil, testConfig)

	want := "https://accounts.google.com/o/oauth2/auth?state=test-state"
	if got := svc.GetLoginURL("test-state"); got != want {
		t.Errorf("GetLoginURL() = %q, want %q", got, want)
	}
}

func TestHandleCallback_NewUser_CreatesUserIdentityAndSession(t *testing.T) {
	var createdUser *model.User
	var createdIdentity *model.Identity
	var createdSession *model.Session

	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{
				ProviderUserID: "google-user-123",
				Email:          "jane@example.com",
				Name:           "Jane Doe",
				Provider:       "google",
			}, nil
		},
	}
	userRepo := &mockUserRepo{
		createWithIdentityFn: func(ctx context.Context, user *model.User, identity *model.Identity) error {
			createdUser = user
			createdIdentity = identity
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			createdSession = session
			return nil
		},
	}

	svc := NewService(provider, userRepo, &mockIdentityRepo{}, sessionRepo, testConfig)

	session, err := svc.HandleCallback(context.Background(), "auth-code-123")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if createdUser == nil || createdIdentity == nil || createdSession == nil {
		t.Fatal("expected user, identity and session to be created")
	}
	if createdIdentity.UserID != createdUser.ID {
		t.Errorf("identity.UserID = %q, want %q", createdIdentity.UserID, createdUser.ID)
	}
	if session.UserID != createdUser.ID {
		t.Errorf("session.UserID = %q, want %q", session.UserID, createdUser.ID)
	}
	if session.Email != "jane@example.com" {
		t.Errorf("session.Email = %q, want %q", session.Email, "jane@example.com")
	}
	if len(session.ID) != 64 {
		t.Errorf("session ID length = %d, want 64 hex chars", len(session.ID))
	}
	if !session.ExpiresAt.After(time.Now().Add(23 * time.Hour)) {
		t.Errorf("session should expire after SessionMaxAge, got %v", session.ExpiresAt)
	}
}

func TestHandleCallback_ExistingUser_DoesNotCreateUser(t *testing.T) {
	provider := &mockOAuthProvider{
		exchangeCodeFn: func(ctx context.Context, code string) (*OAuthUserInfo, error) {
			return &OAuthUserInfo{ProviderUserID: "google-user-789", Email: "old@example.com", Provider: "google"}, nil
		},
	}
	identityRepo := &mockIdentityRepo{
		findByProviderFn: func(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
			return &model.Identity{ID: "identity-1", UserID: "existing-user", Provider: "google", ProviderUserID: providerUserID}, nil
		},
	}
	userRepo := &mockUserRepo{
		createWithIdentityFn: func(ctx context.Context, user *model.User, identity *model.Identity) error {
			t.Error("CreateWithIdentity should not be called for an existing identity")
			return nil
		},
	}

	svc := NewService(provider, userRepo, identityRepo, &mockSessionRepo{}, testConfig)

	session, err := svc.HandleCallback(context.Background(), "code")
	if err != nil {
		t.Fatalf("HandleCallback() error = %v", err)
	}
	if session.UserID != "existing-user" {
		t.Errorf("session.UserID = %q, want %q", session.UserID, "existing-user")
	}
}

func TestHandleCallback_Errors(t *testing.T) {
	info := &OAuthUserInfo{ProviderUserID: "g", Email: "e@example.com", Provider: "google"}

	tests := []struct {
		name     string
		oauth    *mockOAuthProvider
		identity *mockIdentityRepo
		user     *mockUserRepo
	}{
		{
			name: "oauth exchange fails",
			oauth: &mockOAuthProvider{exchangeCodeFn: func(context.Context, string) (*OAuthUserInfo, error) {
				return nil, errors.New("oauth exchange failed")
			}},
		},
		{
			name: "identity lookup fails",
			oauth: &mockOAuthProvider{exchangeCodeFn: func(context.Context, string) (*OAuthUserInfo, error) {
				return info, nil
			}},
			identity: &mockIdentityRepo{findByProviderFn: func(context.Context, string, string) (*model.Identity, error) {
				return nil, errors.New("db down")
			}},
		},
		{
			name: "user creation fails",
			oauth: &mockOAuthProvider{exchangeCodeFn: func(context.Context, string) (*OAuthUserInfo, error) {
				return info, nil
			}},
			identity: &mockIdentityRepo{},
			user: &mockUserRepo{createWithIdentityFn: func(context.Context, *model.User, *model.Identity) error {
				return errors.New("db error")
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.oauth, tt.user, tt.identity, &mockSessionRepo{}, testConfig)
			if _, err := svc.HandleCallback(context.Background(), "code"); err == nil {
				t.Fatal("expected error from HandleCallback")
			}
		})
	}
}

func liveSession(id, userID string) *model.Session {
	return &model.Session{
		ID:        id,
		UserID:    userID,
		Email:     "jane@example.com",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestResolveSession_Cookie(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id == "sess-1" {
				return liveSession(id, "user-1"), nil
			}
			return nil, nil
		},
	}
	svc := NewService(nil, nil, nil, sessionRepo, testConfig)

	got, err := svc.ResolveSession(context.Background(), Credentials{SessionID: "sess-1"})
	if err != nil || got == nil {
		t.Fatalf("ResolveSession() = %v, %v", got, err)
	}
	if got.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", got.UserID, "user-1")
	}

	got, err = svc.ResolveSession(context.Background(), Credentials{SessionID: "unknown"})
	if err != nil || got != nil {
		t.Errorf("unknown session: ResolveSession() = %v, %v; want nil, nil", got, err)
	}
}

func TestResolveSession_Bearer(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id == "sess-bearer" {
				return liveSession(id, "user-1"), nil
			}
			return nil, nil
		},
	}
	svc := NewService(nil, nil, nil, sessionRepo, testConfig)

	token, _, err := svc.IssueAccessToken(liveSession("sess-bearer", "user-1"))
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}

	got, err := svc.ResolveSession(context.Background(), Credentials{BearerToken: token})
	if err != nil || got == nil {
		t.Fatalf("ResolveSession(bearer) = %v, %v", got, err)
	}
	if got.ID != "sess-bearer" {
		t.Errorf("session ID = %q, want %q", got.ID, "sess-bearer")
	}

	// 署名が不正なトークンはエラーではなく未認証として扱う。
	got, err = svc.ResolveSession(context.Background(), Credentials{BearerToken: token + "x"})
	if err != nil || got != nil {
		t.Errorf("tampered token: ResolveSession() = %v, %v; want nil, nil", got, err)
	}
}

// トークンのsubとセッションの所有者が一致しない場合は拒否する。
func TestResolveSession_Bearer_SubjectMismatch(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return liveSession(id, "someone-else"), nil
		},
	}
	svc := NewService(nil, nil, nil, sessionRepo, testConfig)

	token, _, _ := svc.IssueAccessToken(liveSession("sess-x", "user-1"))
	got, err := svc.ResolveSession(context.Background(), Credentials{BearerToken: token})
	if err != nil || got != nil {
		t.Errorf("ResolveSession() = %v, %v; want nil, nil", got, err)
	}
}

func TestResolveSession_BackendError_ReturnsError(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := NewService(nil, nil, nil, sessionRepo, testConfig)

	if _, err := svc.ResolveSession(context.Background(), Credentials{SessionID: "sess"}); err == nil {
		t.Fatal("expected backend error to be returned")
	}
}

func TestResolveSession_EmptyCredentials(t *testing.T) {
	svc := NewService(nil, nil, nil, &mockSessionRepo{}, testConfig)

	got, err := svc.ResolveSession(context.Background(), Credentials{})
	if err != nil || got != nil {
		t.Errorf("ResolveSession(empty) = %v, %v; want nil, nil", got, err)
	}
	if !(Credentials{}).Empty() {
		t.Error("zero Credentials should be Empty")
	}
}

func TestSignOut_DeletesSession(t *testing.T) {
	var deleted string
	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	svc := NewService(nil, nil, nil, sessionRepo, testConfig)

	if err := svc.SignOut(context.Background(), "session-to-delete"); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}
	if deleted != "session-to-delete" {
		t.Errorf("deleted session ID = %q, want %q", deleted, "session-to-delete")
	}
}

func TestSignOut_EmptySessionID_ReturnsError(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, testConfig)

	if err := svc.SignOut(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty session ID")
	}
}

package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/cvbuilder/internal/auth"
	"github.com/hitoshi/cvbuilder/internal/cv"
	"github.com/hitoshi/cvbuilder/internal/guard"
	"github.com/hitoshi/cvbuilder/internal/middleware"
	"github.com/hitoshi/cvbuilder/internal/model"
	"github.com/hitoshi/cvbuilder/internal/profile"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn      func(state string) string
	handleCallbackFn   func(ctx context.Context, code string) (*model.Session, error)
	signOutFn          func(ctx context.Context, sessionID string) error
	issueAccessTokenFn func(session *model.Session) (string, time.Time, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, nil
}

func (m *mockAuthService) SignOut(ctx context.Context, sessionID string) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) IssueAccessToken(session *model.Session) (string, time.Time, error) {
	if m.issueAccessTokenFn != nil {
		return m.issueAccessTokenFn(session)
	}
	return "", time.Time{}, nil
}

// mockGuard はSession Guardのモック。
// 関数が未設定の場合はリクエストコンテキストのセッションで認証する。
type mockGuard struct {
	requireProfileFn func(ctx context.Context) (model.VerifiedIdentity, *model.Profile, error)
}

func (m *mockGuard) RequireAuth(ctx context.Context) (model.VerifiedIdentity, error) {
	id, _, err := m.RequireProfile(ctx)
	return id, err
}

func (m *mockGuard) RequireProfile(ctx context.Context) (model.VerifiedIdentity, *model.Profile, error) {
	if m.requireProfileFn != nil {
		return m.requireProfileFn(ctx)
	}
	s := middleware.RequestContextFrom(ctx).Session()
	if s == nil {
		return model.VerifiedIdentity{}, nil, guard.ErrUnauthenticated
	}
	return s.Identity(), model.NewDefaultProfile(s.UserID, s.Email, time.Time{}), nil
}

type mockCVService struct {
	getEditorDataFn func(ctx context.Context, userID, variantID string) (*cv.EditorData, error)
	getVariantFn    func(ctx context.Context, userID, variantID string) (*model.CVVariant, error)
	saveCVDataFn    func(ctx context.Context, userID, variantID string, raw json.RawMessage) (*model.CVDocument, error)
	publicCVFn      func(ctx context.Context, slug string) (*model.Profile, *model.CVVariant, error)
	listVariantsFn  func(ctx context.Context, userID string) ([]*model.CVVariant, error)
}

func (m *mockCVService) GetEditorData(ctx context.Context, userID, variantID string) (*cv.EditorData, error) {
	return m.getEditorDataFn(ctx, userID, variantID)
}

func (m *mockCVService) GetVariant(ctx context.Context, userID, variantID string) (*model.CVVariant, error) {
	return m.getVariantFn(ctx, userID, variantID)
}

func (m *mockCVService) SaveCVData(ctx context.Context, userID, variantID string, raw json.RawMessage) (*model.CVDocument, error) {
	return m.saveCVDataFn(ctx, userID, variantID, raw)
}

func (m *mockCVService) PublicCV(ctx context.Context, slug string) (*model.Profile, *model.CVVariant, error) {
	return m.publicCVFn(ctx, slug)
}

func (m *mockCVService) ListVariants(ctx context.Context, userID string) ([]*model.CVVariant, error) {
	if m.listVariantsFn != nil {
		return m.listVariantsFn(ctx, userID)
	}
	return nil, nil
}

type mockTemplateService struct {
	renderPDFFn     func(ctx context.Context, templateID string, p *model.Profile, doc model.CVDocument) ([]byte, error)
	renderPreviewFn func(ctx context.Context, w io.Writer, templateID string, p *model.Profile, doc model.CVDocument) error
}

func (m *mockTemplateService) TemplateIDs() []string {
	return []string{"classic", "compact", "modern"}
}

func (m *mockTemplateService) RenderPDF(ctx context.Context, templateID string, p *model.Profile, doc model.CVDocument) ([]byte, error) {
	return m.renderPDFFn(ctx, templateID, p, doc)
}

func (m *mockTemplateService) RenderPreview(ctx context.Context, w io.Writer, templateID string, p *model.Profile, doc model.CVDocument) error {
	return m.renderPreviewFn(ctx, w, templateID, p, doc)
}

type mockProfileService struct {
	updatePhotoFn func(ctx context.Context, userID, photoURL string) (string, error)
	diagnoseFn    func(ctx context.Context, session *model.Session) *profile.Diagnostics
}

func (m *mockProfileService) UpdatePhoto(ctx context.Context, userID, photoURL string) (string, error) {
	return m.updatePhotoFn(ctx, userID, photoURL)
}

func (m *mockProfileService) Diagnose(ctx context.Context, session *model.Session) *profile.Diagnostics {
	return m.diagnoseFn(ctx, session)
}

type mockAgencyService struct {
	cancelInvitationFn func(ctx context.Context, userID, invitationID, invitationType string) error
}

func (m *mockAgencyService) CancelInvitation(ctx context.Context, userID, invitationID, invitationType string) error {
	return m.cancelInvitationFn(ctx, userID, invitationID, invitationType)
}

type mockBillingService struct {
	handleWebhookFn func(ctx context.Context, payload []byte, signature string) (string, error)
}

func (m *mockBillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) (string, error) {
	return m.handleWebhookFn(ctx, payload, signature)
}

type mockSEOService struct {
	sitemapFn func(ctx context.Context) ([]byte, error)
}

func (m *mockSEOService) RobotsTxt() string {
	return "User-agent: *\nDisallow: /api/\n"
}

func (m *mockSEOService) SitemapXML(ctx context.Context) ([]byte, error) {
	return m.sitemapFn(ctx)
}

type mockUserService struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	return m.withdrawFn(ctx, userID)
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// mockResolver はセッションIDまたはBearerトークンが登録済みの場合のみセッションを返す。
type mockResolver struct {
	sessions map[string]*model.Session
}

func (m *mockResolver) ResolveSession(ctx context.Context, creds auth.Credentials) (*model.Session, error) {
	if s, ok := m.sessions[creds.SessionID]; ok {
		return s, nil
	}
	if s, ok := m.sessions[creds.BearerToken]; ok {
		return s, nil
	}
	return nil, nil
}

// --- ヘルパー ---

var testSession = &model.Session{
	ID:        "session-123",
	UserID:    "user-123",
	Email:     "ada@example.com",
	ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
}

// withSession はリクエストにセッション付きのRequestContextを注入する。
func withSession(r *http.Request, s *model.Session) *http.Request {
	rc := middleware.NewRequestContext(s, auth.Credentials{SessionID: s.ID})
	return r.WithContext(middleware.ContextWithRequestContext(r.Context(), rc))
}

func decodeBody(t interface{ Fatalf(string, ...any) }, body io.Reader) map[string]any {
	var m map[string]any
	if err := json.NewDecoder(body).Decode(&m); err != nil {
		t.Fatalf("レスポンスのJSONパースに失敗: %v", err)
	}
	return m
}

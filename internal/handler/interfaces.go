package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/cvbuilder/internal/cv"
	"github.com/hitoshi/cvbuilder/internal/model"
	"github.com/hitoshi/cvbuilder/internal/profile"
)

// Authenticator はSession Guardの操作。
type Authenticator interface {
	RequireAuth(ctx context.Context) (model.VerifiedIdentity, error)
	RequireProfile(ctx context.Context) (model.VerifiedIdentity, *model.Profile, error)
}

// CSRFTokenSource はページに埋め込むCSRFトークンを返す。
type CSRFTokenSource interface {
	GetOrCreateToken(w http.ResponseWriter, r *http.Request) (string, error)
}

// CVServiceInterface はCVデータの操作。
type CVServiceInterface interface {
	GetEditorData(ctx context.Context, userID, variantID string) (*cv.EditorData, error)
	GetVariant(ctx context.Context, userID, variantID string) (*model.CVVariant, error)
	SaveCVData(ctx context.Context, userID, variantID string, raw json.RawMessage) (*model.CVDocument, error)
	PublicCV(ctx context.Context, slug string) (*model.Profile, *model.CVVariant, error)
	ListVariants(ctx context.Context, userID string) ([]*model.CVVariant, error)
}

// TemplateServiceInterface はCVテンプレートの描画。
type TemplateServiceInterface interface {
	TemplateIDs() []string
	RenderPDF(ctx context.Context, templateID string, profile *model.Profile, doc model.CVDocument) ([]byte, error)
	RenderPreview(ctx context.Context, w io.Writer, templateID string, profile *model.Profile, doc model.CVDocument) error
}

// ProfileServiceInterface はプロフィール写真の更新と診断。
type ProfileServiceInterface interface {
	UpdatePhoto(ctx context.Context, userID, photoURL string) (string, error)
	Diagnose(ctx context.Context, session *model.Session) *profile.Diagnostics
}

// AgencyServiceInterface は組織の招待操作。
type AgencyServiceInterface interface {
	CancelInvitation(ctx context.Context, userID, invitationID, invitationType string) error
}

// BillingServiceInterface は決済Webhookの処理。
type BillingServiceInterface interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (string, error)
}

// SEOServiceInterface はクローラー向けファイルの生成。
type SEOServiceInterface interface {
	RobotsTxt() string
	SitemapXML(ctx context.Context) ([]byte, error)
}

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Withdraw はユーザーの退会処理を実行する。セッションとユーザーを削除する。
	Withdraw(ctx context.Context, userID string) error
}

// HealthChecker はDB疎通確認。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.Session, error)
	SignOut(ctx context.Context, sessionID string) error
	IssueAccessToken(session *model.Session) (string, time.Time, error)
}

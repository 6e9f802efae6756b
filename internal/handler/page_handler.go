package handler

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/cvbuilder/internal/model"
)

// PageHandler はサーバーレンダリングのページを返すハンドラー。
type PageHandler struct {
	guard     Authenticator
	cvs       CVServiceInterface
	templates TemplateServiceInterface
	csrf      CSRFTokenSource
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(guard Authenticator, cvs CVServiceInterface, templates TemplateServiceInterface, csrf CSRFTokenSource) *PageHandler {
	return &PageHandler{guard: guard, cvs: cvs, templates: templates, csrf: csrf}
}

type loginPage struct {
	Error    string
	LoginURL string
}

// Login はログイン画面を返す。
// GET /login?redirect=&error=
func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) Result {
	loginURL := "/auth/google/login"
	if next := r.URL.Query().Get("redirect"); safeRedirectPath(next) {
		loginURL += "?redirect=" + url.QueryEscape(next)
	}
	return RenderPage("login.html", loginPage{
		Error:    r.URL.Query().Get("error"),
		LoginURL: loginURL,
	})
}

type dashboardPage struct {
	Profile   *model.Profile
	Variants  []*model.CVVariant
	Templates []string
	CSRFToken string
}

// Dashboard はログインユーザーのプロフィールとCV一覧を返す。
// プロフィール行が欠落していた場合はSession Guardが作成した既定のプロフィールを表示する。
// GET /dashboard
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) Result {
	identity, profile, err := h.guard.RequireProfile(r.Context())
	if err != nil {
		return authRedirect(err, r)
	}

	variants, err := h.cvs.ListVariants(r.Context(), identity.UserID)
	if err != nil {
		return Fail(err)
	}

	token, err := h.csrf.GetOrCreateToken(w, r)
	if err != nil {
		return Fail(err)
	}

	return RenderPage("dashboard.html", dashboardPage{
		Profile:   profile,
		Variants:  variants,
		Templates: h.templates.TemplateIDs(),
		CSRFToken: token,
	})
}

// PublicCV は公開プロフィールのCVをHTMLで返す。
// テンプレートはクエリのtemplate、なければバリエーションの設定を使う。
// GET /cv/{slug}?template=
func (h *PageHandler) PublicCV(w http.ResponseWriter, r *http.Request) Result {
	slug := chi.URLParam(r, "slug")
	profile, variant, err := h.cvs.PublicCV(r.Context(), slug)
	if err != nil {
		return Fail(err)
	}

	templateID := r.URL.Query().Get("template")
	if templateID == "" {
		templateID = variant.TemplateID
	}

	var buf bytes.Buffer
	if err := h.templates.RenderPreview(r.Context(), &buf, templateID, profile, variant.Data); err != nil {
		return Fail(err)
	}

	slog.Debug("public cv rendered",
		slog.String("slug", slug),
		slog.String("template_id", templateID),
	)
	return Render(http.StatusOK, func(w io.Writer) error {
		_, err := w.Write(buf.Bytes())
		return err
	})
}

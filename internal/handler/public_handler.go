package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/cvbuilder/internal/middleware"
)

// crawlerCacheControl はrobots.txtとsitemap.xmlのキャッシュ指定。
const crawlerCacheControl = "public, max-age=3600"

// PublicHandler は認証不要の公開エンドポイントのハンドラー。
type PublicHandler struct {
	seo    SEOServiceInterface
	health HealthChecker
}

// NewPublicHandler はPublicHandlerを生成する。
func NewPublicHandler(seo SEOServiceInterface, health HealthChecker) *PublicHandler {
	return &PublicHandler{seo: seo, health: health}
}

// Health はDBへの疎通を確認して結果を返す。
// GET /health
func (h *PublicHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.health.PingContext(ctx); err != nil {
		slog.Error("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RobotsTxt はrobots.txtを返す。
// GET /robots.txt
func (h *PublicHandler) RobotsTxt(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", crawlerCacheControl)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(h.seo.RobotsTxt()))
}

// SitemapXML は公開CVを列挙したsitemap.xmlを返す。
// GET /sitemap.xml
func (h *PublicHandler) SitemapXML(w http.ResponseWriter, r *http.Request) {
	body, err := h.seo.SitemapXML(r.Context())
	if err != nil {
		slog.Error("failed to build sitemap", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Cache-Control", crawlerCacheControl)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

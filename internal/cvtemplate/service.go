package cvtemplate

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/hitoshi/cvbuilder/internal/metrics"
	"github.com/hitoshi/cvbuilder/internal/model"
	"github.com/hitoshi/cvbuilder/internal/security"
)

// PhotoFetcher はプロフィール写真の取得を抽象化する。
type PhotoFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*security.Image, error)
}

// Service はテンプレートの選択、写真の取得、描画をまとめて行う。
type Service struct {
	registry *Registry
	pdf      PDFRenderer
	photos   PhotoFetcher
	metrics  metrics.MetricsCollector
}

// NewService はServiceを生成する。photosがnilの場合は写真を埋め込まない。
func NewService(registry *Registry, pdf PDFRenderer, photos PhotoFetcher, collector metrics.MetricsCollector) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{registry: registry, pdf: pdf, photos: photos, metrics: collector}
}

// Template はIDに対応するテンプレートを返す。
func (s *Service) Template(id string) (*Template, error) {
	return s.registry.Get(id)
}

// TemplateIDs は選択可能なテンプレートIDを返す。
func (s *Service) TemplateIDs() []string {
	return s.registry.IDs()
}

// RenderPDF は指定テンプレートでPDFを生成する。
func (s *Service) RenderPDF(ctx context.Context, templateID string, profile *model.Profile, cv model.CVDocument) ([]byte, error) {
	tmpl, err := s.registry.Get(templateID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := s.pdf.RenderPDF(ctx, tmpl, s.document(ctx, profile, cv))
	s.metrics.RecordPDFRender(tmpl.ID, s.pdf.Name(), time.Since(start), err)
	if err != nil {
		slog.Error("pdf render failed",
			slog.String("op", "cvtemplate.render_pdf"),
			slog.String("user_id", profile.ID),
			slog.String("template", tmpl.ID),
			slog.String("renderer", s.pdf.Name()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return out, nil
}

// RenderPreview は指定テンプレートでHTMLプレビューを書き出す。
// 写真はダウンロードせず、保存時に検証済みのURLをそのまま参照させる。
// 表示可否はCSPのimg-src許可リストが決める。
func (s *Service) RenderPreview(ctx context.Context, w io.Writer, templateID string, profile *model.Profile, cv model.CVDocument) error {
	tmpl, err := s.registry.Get(templateID)
	if err != nil {
		return err
	}
	return tmpl.Preview(w, Document{Profile: *profile, CV: cv, PhotoLink: profile.PhotoURL})
}

// document はPDF用の描画対象を組み立てる。写真の取得に失敗した場合は写真なしで続行する。
func (s *Service) document(ctx context.Context, profile *model.Profile, cv model.CVDocument) Document {
	doc := Document{Profile: *profile, CV: cv}
	if profile.PhotoURL == "" || s.photos == nil {
		return doc
	}

	img, err := s.photos.Fetch(ctx, profile.PhotoURL)
	if err != nil {
		slog.Warn("profile photo omitted",
			slog.String("op", "cvtemplate.fetch_photo"),
			slog.String("user_id", profile.ID),
			slog.String("error", err.Error()),
		)
		return doc
	}
	doc.Photo = img
	return doc
}

// Package seo はrobots.txtとsitemap.xmlを生成する。
package seo

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/cvbuilder/internal/repository"
)

// SlugLister は公開プロフィールのslug一覧を返す。
type SlugLister interface {
	ListPublicSlugs(ctx context.Context) ([]repository.PublicSlug, error)
}

// Generator はクロール用の静的テキストを生成する。
type Generator struct {
	baseURL string
	slugs   SlugLister
}

// NewGenerator はGeneratorを生成する。baseURLの末尾のスラッシュは除去する。
func NewGenerator(baseURL string, slugs SlugLister) *Generator {
	return &Generator{baseURL: strings.TrimRight(baseURL, "/"), slugs: slugs}
}

// disallowed はクロール対象外のパス。
var disallowed = []string{"/api/", "/auth/", "/dashboard"}

// RobotsTxt はrobots.txtの本文を返す。
func (g *Generator) RobotsTxt() string {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	b.WriteString("Allow: /\n")
	for _, p := range disallowed {
		b.WriteString("Disallow: " + p + "\n")
	}
	b.WriteString("\nSitemap: " + g.baseURL + "/sitemap.xml\n")
	return b.String()
}

type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// SitemapXML はトップページと公開CVページを列挙したsitemap.xmlを返す。
func (g *Generator) SitemapXML(ctx context.Context) ([]byte, error) {
	slugs, err := g.slugs.ListPublicSlugs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list public profiles: %w", err)
	}

	set := urlSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  make([]sitemapURL, 0, len(slugs)+1),
	}
	set.URLs = append(set.URLs, sitemapURL{Loc: g.baseURL + "/"})
	for _, s := range slugs {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:     g.baseURL + "/cv/" + url.PathEscape(s.Slug),
			LastMod: s.UpdatedAt.UTC().Format(time.DateOnly),
		})
	}

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode sitemap: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

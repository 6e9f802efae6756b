package seo

import (
	"context"
	"encoding/xml"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/cvbuilder/internal/repository"
)

type mockSlugLister struct {
	listFn func(ctx context.Context) ([]repository.PublicSlug, error)
}

func (m *mockSlugLister) ListPublicSlugs(ctx context.Context) ([]repository.PublicSlug, error) {
	return m.listFn(ctx)
}

func TestRobotsTxt(t *testing.T) {
	g := NewGenerator("https://cv.example.com/", nil)
	got := g.RobotsTxt()

	for _, want := range []string{
		"User-agent: *\n",
		"Disallow: /api/\n",
		"Disallow: /dashboard\n",
		"Sitemap: https://cv.example.com/sitemap.xml\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("robots.txt missing %q:\n%s", want, got)
		}
	}
}

func TestSitemapXML(t *testing.T) {
	updated := time.Date(2026, 5, 6, 23, 0, 0, 0, time.FixedZone("JST", 9*60*60))
	lister := &mockSlugLister{listFn: func(context.Context) ([]repository.PublicSlug, error) {
		return []repository.PublicSlug{
			{Slug: "ada", UpdatedAt: updated},
			{Slug: "grace hopper", UpdatedAt: updated},
		}, nil
	}}

	out, err := NewGenerator("https://cv.example.com", lister).SitemapXML(context.Background())
	if err != nil {
		t.Fatalf("SitemapXML returned error: %v", err)
	}
	if !strings.HasPrefix(string(out), xml.Header) {
		t.Error("sitemap should start with the XML header")
	}

	var set urlSet
	if err := xml.Unmarshal(out, &set); err != nil {
		t.Fatalf("sitemap is not valid XML: %v", err)
	}
	if len(set.URLs) != 3 {
		t.Fatalf("got %d urls, want 3", len(set.URLs))
	}
	if set.URLs[0].Loc != "https://cv.example.com/" {
		t.Errorf("first url = %q", set.URLs[0].Loc)
	}
	if set.URLs[1].Loc != "https://cv.example.com/cv/ada" || set.URLs[1].LastMod != "2026-05-06" {
		t.Errorf("second url = %+v", set.URLs[1])
	}
	if set.URLs[2].Loc != "https://cv.example.com/cv/grace%20hopper" {
		t.Errorf("slug should be path-escaped, got %q", set.URLs[2].Loc)
	}
}

func TestSitemapXML_ListError(t *testing.T) {
	boom := errors.New("db down")
	lister := &mockSlugLister{listFn: func(context.Context) ([]repository.PublicSlug, error) {
		return nil, boom
	}}

	if _, err := NewGenerator("https://cv.example.com", lister).SitemapXML(context.Background()); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

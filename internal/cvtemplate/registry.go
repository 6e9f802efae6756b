// Package cvtemplate はCVテンプレートのレジストリと、HTMLプレビュー・PDFへの描画を提供する。
//
// テンプレートは起動時に埋め込みファイルから構築される固定のマップで、
// IDで引いて使う。未知のIDはErrUnknownTemplateになる。
package cvtemplate

import (
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"io"
	"sort"
	"strings"

	"github.com/hitoshi/cvbuilder/internal/model"
	"github.com/hitoshi/cvbuilder/internal/security"
	"github.com/hitoshi/cvbuilder/internal/textfmt"
)

// DefaultTemplateID はテンプレート未指定時に使うID。
const DefaultTemplateID = "classic"

// ErrUnknownTemplate は登録されていないテンプレートIDが指定されたことを表す。
var ErrUnknownTemplate = errors.New("unknown template")

//go:embed templates/*.html
var templateFS embed.FS

// Style はPDFレンダラー向けのレイアウト指定。
type Style struct {
	NameSize    float64
	HeadingSize float64
	BodySize    float64
	// PhotoCols は写真に割り当てる列数（12列中）。0なら写真を描画しない。
	PhotoCols int
	// RowPadding は各行の上下余白（mm）。
	RowPadding float64
}

// Template は1つのCVテンプレート。
type Template struct {
	ID    string
	Name  string
	Style Style

	preview *template.Template
}

// Document はテンプレートへ渡す描画対象。
type Document struct {
	Profile model.Profile
	CV      model.CVDocument
	// Photo は取得済みのプロフィール写真。取得できなかった場合はnil。
	Photo *security.Image
	// PhotoLink はブラウザに直接読ませる写真URL。HTMLプレビュー専用で、
	// PDF生成では設定しない（ヘッドレスブラウザに外部URLを取得させない）。
	PhotoLink string
}

// Preview はHTMLプレビューを書き出す。
func (t *Template) Preview(w io.Writer, doc Document) error {
	if err := t.preview.ExecuteTemplate(w, t.ID+".html", newView(doc)); err != nil {
		return fmt.Errorf("failed to render %s preview: %w", t.ID, err)
	}
	return nil
}

// Registry はテンプレートIDからテンプレートを引くための固定マップ。
type Registry struct {
	templates map[string]*Template
}

// definitions は登録するテンプレートの一覧。
var definitions = []Template{
	{
		ID:    "classic",
		Name:  "Classic",
		Style: Style{NameSize: 20, HeadingSize: 12, BodySize: 10, PhotoCols: 3, RowPadding: 2},
	},
	{
		ID:    "modern",
		Name:  "Modern",
		Style: Style{NameSize: 22, HeadingSize: 13, BodySize: 10, PhotoCols: 4, RowPadding: 3},
	},
	{
		ID:    "compact",
		Name:  "Compact",
		Style: Style{NameSize: 16, HeadingSize: 11, BodySize: 9, PhotoCols: 0, RowPadding: 1},
	},
}

var funcs = template.FuncMap{
	// richtext は改行区切りテキストを段落・箇条書きのHTMLに変換する。
	// 出力はtextfmtの許可リストでサニタイズ済み。
	"richtext": func(s string) template.HTML {
		return template.HTML(textfmt.FormatHTML(s))
	},
}

// NewRegistry は埋め込みテンプレートを解析してレジストリを構築する。
func NewRegistry() (*Registry, error) {
	r := &Registry{templates: make(map[string]*Template, len(definitions))}
	for _, def := range definitions {
		tmpl, err := template.New(def.ID).Funcs(funcs).ParseFS(templateFS,
			"templates/partials.html",
			"templates/"+def.ID+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", def.ID, err)
		}
		t := def
		t.preview = tmpl
		r.templates[def.ID] = &t
	}
	return r, nil
}

// Get はIDに対応するテンプレートを返す。空のIDはデフォルトテンプレートになる。
func (r *Registry) Get(id string) (*Template, error) {
	if id == "" {
		id = DefaultTemplateID
	}
	t, ok := r.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, id)
	}
	return t, nil
}

// IDs は登録済みテンプレートIDをソートして返す。
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// view はHTMLテンプレートに渡す表示用データ。
// 公開設定で非表示の連絡先はここで落とす。
type view struct {
	Name           string
	Headline       string
	Email          string
	Phone          string
	Location       string
	PhotoSrc       template.URL
	Summary        string
	Experience     []model.Experience
	Education      []model.Education
	Skills         []string
	Certifications []model.Certification
	Languages      []string
}

func newView(doc Document) view {
	v := view{
		Name:           displayName(doc.Profile),
		Headline:       doc.CV.Headline,
		Location:       doc.Profile.Location,
		Summary:        doc.CV.Summary,
		Experience:     doc.CV.Experience,
		Education:      doc.CV.Education,
		Skills:         doc.CV.Skills,
		Certifications: doc.CV.Certifications,
		Languages:      doc.CV.Languages,
	}
	if doc.Profile.ShowEmail {
		v.Email = doc.Profile.Email
	}
	if doc.Profile.ShowPhone {
		v.Phone = doc.Profile.Phone
	}
	switch {
	case doc.Photo != nil:
		// ContentTypeはImageFetcherがjpeg/pngに限定している
		v.PhotoSrc = template.URL("data:" + doc.Photo.ContentType + ";base64," +
			base64.StdEncoding.EncodeToString(doc.Photo.Data))
	case strings.HasPrefix(doc.PhotoLink, "https://"):
		v.PhotoSrc = template.URL(doc.PhotoLink)
	}
	return v
}

// displayName は氏名が未設定のプロフィールでも見出しが空にならないようにする。
func displayName(p model.Profile) string {
	if p.FullName != "" {
		return p.FullName
	}
	return "Curriculum Vitae"
}

package cvtemplate

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/image"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/extension"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/hitoshi/cvbuilder/internal/textfmt"
)

// PDFRenderer はテンプレートとドキュメントからPDFを生成する。
type PDFRenderer interface {
	// Name はメトリクスのラベルに使うレンダラー名を返す。
	Name() string
	RenderPDF(ctx context.Context, tmpl *Template, doc Document) ([]byte, error)
}

// MarotoRenderer はmarotoでPDFを直接組み立てるレンダラー。
// HTMLを経由しないため外部プロセスを必要としない。
type MarotoRenderer struct{}

// NewMarotoRenderer はMarotoRendererを生成する。
func NewMarotoRenderer() *MarotoRenderer {
	return &MarotoRenderer{}
}

// Name はレンダラー名を返す。
func (r *MarotoRenderer) Name() string { return "maroto" }

// charsPerLine は本文サイズ10ptで1行に収まるおおよその文字数。行の高さの見積もりに使う。
const charsPerLine = 95

// RenderPDF はA4のPDFを生成する。
func (r *MarotoRenderer) RenderPDF(ctx context.Context, tmpl *Template, doc Document) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithPageNumber(props.PageNumber{
			Pattern: "{current} / {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)
	b := &pdfBuilder{m: m, style: tmpl.Style}
	v := newView(doc)

	b.header(v, doc)
	if v.Summary != "" {
		b.heading("Summary")
		b.richText(v.Summary)
	}
	if len(v.Experience) > 0 {
		b.heading("Experience")
		for _, e := range v.Experience {
			b.entry(e.Title, e.Company, e.Period)
			b.richText(e.Description)
		}
	}
	if len(v.Education) > 0 {
		b.heading("Education")
		for _, e := range v.Education {
			b.entry(e.Institution, e.Degree, e.Period)
			b.richText(e.Description)
		}
	}
	if len(v.Skills) > 0 {
		b.heading("Skills")
		b.paragraph(strings.Join(v.Skills, ", "))
	}
	if len(v.Certifications) > 0 {
		b.heading("Certifications")
		for _, c := range v.Certifications {
			line := c.Name
			if c.Issuer != "" {
				line += ", " + c.Issuer
			}
			if c.Year != "" {
				line += " (" + c.Year + ")"
			}
			b.paragraph("- " + line)
		}
	}
	if len(v.Languages) > 0 {
		b.heading("Languages")
		b.paragraph(strings.Join(v.Languages, ", "))
	}

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate pdf: %w", err)
	}
	return out.GetBytes(), nil
}

// pdfBuilder はテンプレートのスタイルに従って行を追加する。
type pdfBuilder struct {
	m     core.Maroto
	style Style
}

func (b *pdfBuilder) header(v view, doc Document) {
	contact := make([]string, 0, 3)
	for _, s := range []string{v.Email, v.Phone, v.Location} {
		if s != "" {
			contact = append(contact, s)
		}
	}

	info := col.New(12)
	if doc.Photo != nil && b.style.PhotoCols > 0 {
		ext := extension.Jpg
		if doc.Photo.ContentType == "image/png" {
			ext = extension.Png
		}
		b.m.AddRow(35,
			image.NewFromBytesCol(b.style.PhotoCols, doc.Photo.Data, ext, props.Rect{
				Center:  true,
				Percent: 90,
			}),
			b.headerText(col.New(12-b.style.PhotoCols), v, contact),
		)
		return
	}
	b.m.AddRow(b.style.NameSize+float64(len(contact)+1)*5, b.headerText(info, v, contact))
}

func (b *pdfBuilder) headerText(c core.Col, v view, contact []string) core.Col {
	c.Add(text.New(v.Name, props.Text{
		Size:  b.style.NameSize,
		Style: fontstyle.Bold,
		Align: align.Left,
	}))
	top := b.style.NameSize/2 + 2
	if v.Headline != "" {
		c.Add(text.New(v.Headline, props.Text{Size: b.style.HeadingSize, Top: top}))
		top += 6
	}
	for _, s := range contact {
		c.Add(text.New(s, props.Text{Size: b.style.BodySize, Top: top}))
		top += 5
	}
	return c
}

func (b *pdfBuilder) heading(title string) {
	b.m.AddRow(b.style.HeadingSize/2+4+b.style.RowPadding,
		text.NewCol(12, title, props.Text{
			Size:  b.style.HeadingSize,
			Style: fontstyle.Bold,
			Top:   b.style.RowPadding,
		}),
	)
}

func (b *pdfBuilder) entry(title, org, period string) {
	line := title
	if org != "" {
		line += " - " + org
	}
	b.m.AddRow(6,
		text.NewCol(8, line, props.Text{Size: b.style.BodySize, Style: fontstyle.Bold}),
		text.NewCol(4, period, props.Text{Size: b.style.BodySize, Align: align.Right}),
	)
}

// richText は自由記述テキストをブロック単位で描画する。
// 強調はPDFでは表現せず、箇条書きは項目ごとに行を分ける。
func (b *pdfBuilder) richText(s string) {
	for _, block := range textfmt.Format(s) {
		for _, line := range textfmt.BlockText(block) {
			if block.Kind == textfmt.KindList {
				line = "- " + line
			}
			b.paragraph(line)
		}
	}
}

func (b *pdfBuilder) paragraph(s string) {
	if s == "" {
		return
	}
	b.m.AddRow(rowHeight(s, b.style.BodySize),
		text.NewCol(12, s, props.Text{Size: b.style.BodySize}),
	)
}

// rowHeight は折り返し後の行数から行の高さ（mm）を見積もる。
func rowHeight(s string, size float64) float64 {
	lines := 0
	for _, part := range strings.Split(s, "\n") {
		lines += utf8.RuneCountInString(part)/charsPerLine + 1
	}
	return float64(lines)*size*0.45 + 1
}

var _ PDFRenderer = (*MarotoRenderer)(nil)

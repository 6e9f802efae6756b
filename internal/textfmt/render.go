package textfmt

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	xhtml "golang.org/x/net/html"
)

// policy はフォーマッタが出力してよい要素だけを許可する。
var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "ul", "li", "strong", "em", "br")
	return p
}

// Policy はフォーマッタ出力用のサニタイズポリシーを返す。
// テンプレート側で外部由来のHTML断片を埋め込む前にも使う。
func Policy() *bluemonday.Policy {
	return policy
}

// RenderHTML はブロック列をHTMLに変換する。
// 段落は<p>、箇条書きは<ul><li>になり、出力は許可リストで再サニタイズされる。
func RenderHTML(blocks []Block) string {
	var b strings.Builder
	for _, block := range blocks {
		switch block.Kind {
		case KindList:
			b.WriteString("<ul>")
			for _, item := range block.Items {
				b.WriteString("<li>")
				b.WriteString(html.EscapeString(item))
				b.WriteString("</li>")
			}
			b.WriteString("</ul>")
		default:
			b.WriteString("<p>")
			b.WriteString(block.Text)
			b.WriteString("</p>")
		}
	}
	return policy.Sanitize(b.String())
}

// FormatHTML はテキストを直接HTMLに変換する。
func FormatHTML(text string) string {
	return RenderHTML(Format(text))
}

// PlainText はフォーマッタが出力したHTMLからマークアップを除去する。
// PDFレンダラーのようにHTMLを解釈しない出力先で使う。
// 段落は空行、<br>と箇条書き項目は改行で区切り、項目には「• 」を付ける。
func PlainText(fragment string) string {
	z := xhtml.NewTokenizer(strings.NewReader(fragment))

	var b strings.Builder
	for {
		tt := z.Next()
		switch tt {
		case xhtml.ErrorToken:
			// io.EOFまたは不正な入力。ここまでのテキストを返す
			return strings.TrimSpace(b.String())
		case xhtml.TextToken:
			b.Write(z.Text())
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "br":
				b.WriteString("\n")
			case "li":
				b.WriteString("• ")
			}
		case xhtml.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "p":
				b.WriteString("\n\n")
			case "li", "ul":
				b.WriteString("\n")
			}
		}
	}
}

// BlockText はブロックのプレーンテキスト表現を返す。
// 箇条書きは項目ごとの行、段落は強調を除いた1つの文字列になる。
func BlockText(block Block) []string {
	if block.Kind == KindList {
		out := make([]string, len(block.Items))
		copy(out, block.Items)
		return out
	}
	return []string{PlainText(block.Text)}
}

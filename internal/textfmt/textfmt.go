// Package textfmt は改行区切りの自由記述テキストを段落と箇条書きのブロックへ変換する。
//
// 変換は決定的で副作用を持たない。同じ入力からは常に同じブロック列が得られる。
package textfmt

import (
	"html"
	"regexp"
	"strings"
)

// BlockKind はブロックの種別。
type BlockKind int

const (
	// KindParagraph は段落ブロック。
	KindParagraph BlockKind = iota
	// KindList は箇条書きブロック。
	KindList
)

// Block はフォーマッタの出力単位。
//
// KindParagraphではTextに強調変換済みのインラインHTMLが入る。
// KindListではItemsにエスケープ前の項目テキストが入る。
type Block struct {
	Kind  BlockKind
	Text  string
	Items []string
}

// Paragraph は段落ブロックを生成する。textはインラインHTMLとして扱う。
func Paragraph(text string) Block {
	return Block{Kind: KindParagraph, Text: text}
}

// List は箇条書きブロックを生成する。
func List(items []string) Block {
	return Block{Kind: KindList, Items: items}
}

var (
	// bulletPattern は箇条書き行の先頭記号。記号の後には空白が必要。
	bulletPattern = regexp.MustCompile(`^(?:•|-)\s+`)

	strongPattern = regexp.MustCompile(`\*\*([^*\n]+?)\*\*`)
	emPattern     = regexp.MustCompile(`\*([^*\n]+?)\*`)
)

// SplitParagraphLines はテキストを空行区切りの段落に分け、段落ごとの行を返す。
// 行は前後の空白を除去する。空白のみの行は空行として扱う。
func SplitParagraphLines(text string) [][]string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var (
		paragraphs [][]string
		current    []string
	)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(current) > 0 {
				paragraphs = append(paragraphs, current)
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, current)
	}
	return paragraphs
}

// SplitParagraphs は段落ごとに行を空白で連結した文字列を返す。
// 空の入力は空のスライスになる。
func SplitParagraphs(text string) []string {
	groups := SplitParagraphLines(text)
	out := make([]string, 0, len(groups))
	for _, lines := range groups {
		out = append(out, strings.Join(lines, " "))
	}
	return out
}

// DetectListBlock は段落内のいずれかの行が箇条書き記号で始まるかを返す。
func DetectListBlock(lines []string) bool {
	for _, line := range lines {
		if bulletPattern.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

// RenderBlock は段落の行をブロックに変換する。
//
// 箇条書きでは記号行が新しい項目を開始し、続く記号なし行は直前の項目に連結する。
// 最初の記号行より前の行はそれ自体で1項目とする。空の項目は出力しない。
// 段落では行を空白で連結してから強調記法を変換する。
func RenderBlock(lines []string) Block {
	if !DetectListBlock(lines) {
		return Paragraph(Emphasize(strings.Join(trimAll(lines), " ")))
	}

	var (
		items   []string
		current []string
	)
	flush := func() {
		if item := strings.Join(current, " "); item != "" {
			items = append(items, item)
		}
		current = nil
	}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if loc := bulletPattern.FindStringIndex(line); loc != nil {
			flush()
			line = strings.TrimSpace(line[loc[1]:])
		} else if line == "•" || line == "-" {
			// 行末の空白が除去された空の箇条書き
			flush()
			continue
		}
		if line != "" {
			current = append(current, line)
		}
	}
	flush()

	return List(items)
}

// Emphasize はテキストをHTMLエスケープしたうえで強調記法を変換する。
// **x** は<strong>、*x* は<em>になる。対応の取れないアスタリスクはそのまま残す。
// 残った改行は<br>になる。
func Emphasize(text string) string {
	escaped := html.EscapeString(text)

	lines := strings.Split(escaped, "\n")
	for i, line := range lines {
		line = strongPattern.ReplaceAllString(line, "<strong>$1</strong>")
		lines[i] = emPattern.ReplaceAllString(line, "<em>$1</em>")
	}
	return strings.Join(lines, "<br>")
}

// Format はテキスト全体をブロック列に変換する。
func Format(text string) []Block {
	groups := SplitParagraphLines(text)
	blocks := make([]Block, 0, len(groups))
	for _, lines := range groups {
		b := RenderBlock(lines)
		if b.Kind == KindList && len(b.Items) == 0 {
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks
}

func trimAll(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer はCVの自由記述テキストからマークアップを除去する。
// 保存されるのはプレーンテキストのみで、HTMLエスケープは表示時に行う。
// SSRFGuard と ImageFetcher はユーザー指定のプロフィール写真URLを安全に扱う。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/cvbuilder/internal/model"
)

// ContentSanitizerService はCVテキストのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// SanitizeText はタグを全て除去したプレーンテキストを返す。
	// 実体参照は元の文字に戻すため、同一入力に対して常に同一出力を返す。
	SanitizeText(s string) string
	// SanitizeDocument はCVドキュメントの全テキストフィールドをサニタイズしたコピーを返す。
	SanitizeDocument(doc model.CVDocument) model.CVDocument
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフなので共有して使う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{policy: bluemonday.StrictPolicy()}
}

// SanitizeText はタグを除去し、bluemondayが付与した実体参照を戻す。
// 改行と箇条書き記号は保持されるため、textfmtでの整形結果は変わらない。
func (s *contentSanitizer) SanitizeText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return html.UnescapeString(s.policy.Sanitize(text))
}

// SanitizeDocument はCVドキュメントの全テキストフィールドをサニタイズする。
// スライスは新しく確保するため、引数のドキュメントは変更されない。
func (s *contentSanitizer) SanitizeDocument(doc model.CVDocument) model.CVDocument {
	out := model.CVDocument{
		Headline:       s.SanitizeText(doc.Headline),
		Summary:        s.SanitizeText(doc.Summary),
		Experience:     make([]model.Experience, 0, len(doc.Experience)),
		Education:      make([]model.Education, 0, len(doc.Education)),
		Skills:         s.sanitizeAll(doc.Skills),
		Certifications: make([]model.Certification, 0, len(doc.Certifications)),
		Languages:      s.sanitizeAll(doc.Languages),
	}

	for _, e := range doc.Experience {
		out.Experience = append(out.Experience, model.Experience{
			Title:       s.SanitizeText(e.Title),
			Company:     s.SanitizeText(e.Company),
			Period:      s.SanitizeText(e.Period),
			Description: s.SanitizeText(e.Description),
		})
	}
	for _, e := range doc.Education {
		out.Education = append(out.Education, model.Education{
			Institution: s.SanitizeText(e.Institution),
			Degree:      s.SanitizeText(e.Degree),
			Period:      s.SanitizeText(e.Period),
			Description: s.SanitizeText(e.Description),
		})
	}
	for _, c := range doc.Certifications {
		out.Certifications = append(out.Certifications, model.Certification{
			Name:   s.SanitizeText(c.Name),
			Issuer: s.SanitizeText(c.Issuer),
			Year:   s.SanitizeText(c.Year),
		})
	}

	return out
}

func (s *contentSanitizer) sanitizeAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, s.SanitizeText(v))
	}
	return out
}

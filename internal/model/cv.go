package model

import "time"

// CVVariant はユーザーが管理するCVのバリエーションを表す。
// Dataには構造化されたCVドキュメントがJSONで保存される。
type CVVariant struct {
	ID         string
	UserID     string
	Name       string
	TemplateID string
	Data       CVDocument
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CVDocument はCVの構造化データ。
// 自由記述フィールドは改行区切りテキストで、表示時にtextfmtでブロックへ変換される。
type CVDocument struct {
	Headline       string          `json:"headline,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	Experience     []Experience    `json:"experience"`
	Education      []Education     `json:"education"`
	Skills         []string        `json:"skills"`
	Certifications []Certification `json:"certifications"`
	Languages      []string        `json:"languages,omitempty"`
}

// Experience は職務経歴の1件を表す。
type Experience struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Period      string `json:"period,omitempty"`
	Description string `json:"description,omitempty"`
}

// Education は学歴の1件を表す。
type Education struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree,omitempty"`
	Period      string `json:"period,omitempty"`
	Description string `json:"description,omitempty"`
}

// Certification は資格の1件を表す。
type Certification struct {
	Name   string `json:"name"`
	Issuer string `json:"issuer,omitempty"`
	Year   string `json:"year,omitempty"`
}

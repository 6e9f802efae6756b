package model

import "time"

// Profile はユーザーごとの主要レコード（連絡先、写真、公開設定）を表す。
// IDはUser.IDと一致し、ストア側の主キー制約で一意性が保証される。
type Profile struct {
	ID        string
	Email     string
	FullName  string
	Phone     string
	Location  string
	PhotoURL  string
	Slug      string
	IsPublic  bool
	ShowEmail bool
	ShowPhone bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDefaultProfile はセッション情報から最小限のプロフィールを合成する。
// プロフィール行が欠落している場合の自己修復で使用する。
func NewDefaultProfile(userID, email string, now time.Time) *Profile {
	return &Profile{
		ID:        userID,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

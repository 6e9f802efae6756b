package model

import "time"

// User はログイン主体を表す。OAuthログイン時に認証バックエンドが作成する。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
// 認証バックエンドが所有し、リクエストは読み取り専用のコピーを保持する。
type Session struct {
	ID        string
	UserID    string
	Email     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Identity はセッションから検証済みのユーザー識別情報を返す。
func (s *Session) Identity() VerifiedIdentity {
	return VerifiedIdentity{UserID: s.UserID, Email: s.Email}
}

// VerifiedIdentity はプロフィールの存在まで確認済みのユーザー識別情報。
type VerifiedIdentity struct {
	UserID string
	Email  string
}

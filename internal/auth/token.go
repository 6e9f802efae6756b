package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// accessTokenIssuer はアクセストークンのissクレーム。
const accessTokenIssuer = "cvbuilder"

// ErrInvalidToken はアクセストークンの署名・期限・形式が不正な場合のエラー。
var ErrInvalidToken = errors.New("invalid access token")

// AccessClaims はBearerアクセストークンのクレーム。
// sidが指すセッションが有効な間だけトークンも有効とする。
type AccessClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	Email     string `json:"email,omitempty"`
}

// TokenIssuer はセッションに紐づくHS256署名のアクセストークンを発行・検証する。
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue はセッションIDとユーザー情報を含むアクセストークンを発行する。
// トークンの有効期限はセッションの有効期限を超えない。
func (t *TokenIssuer) Issue(sessionID, userID, email string, sessionExpiry time.Time) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	if !sessionExpiry.IsZero() && sessionExpiry.Before(exp) {
		exp = sessionExpiry
	}

	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    accessTokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		SessionID: sessionID,
		Email:     email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, exp, nil
}

// Parse はアクセストークンを検証しクレームを返す。
// 検証失敗はすべてErrInvalidTokenでラップして返す。
func (t *TokenIssuer) Parse(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(accessTokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.SessionID == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

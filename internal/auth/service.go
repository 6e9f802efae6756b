// Package auth はOAuthログイン、セッションの解決と破棄、Bearerアクセストークンを提供する。
// アプリケーションから見た認証バックエンドであり、セッションの所有者はこのパッケージ。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/cvbuilder/internal/model"
	"github.com/hitoshi/cvbuilder/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	GetLoginURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// Credentials はリクエストから取り出した認証情報。
// Cookieのセッションを優先し、なければBearerトークンを使う。
type Credentials struct {
	SessionID   string
	BearerToken string
}

// Empty は認証情報が何も含まれていないかどうかを返す。
func (c Credentials) Empty() bool {
	return c.SessionID == "" && c.BearerToken == ""
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge  int // セッション有効期間（秒）
	TokenSecret    string
	AccessTokenTTL time.Duration
}

// Service は認証バックエンドのビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	tokens      *TokenIssuer
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	ttl := config.AccessTokenTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		tokens:      NewTokenIssuer(config.TokenSecret, ttl),
		config:      config,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はusersとidentitiesを同一トランザクションで作成する。
// プロフィールはここでは作らず、最初の保護ページでSession Guardが作成する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var userID string
	if identity != nil {
		userID = identity.UserID
		slog.Info("existing user logged in",
			slog.String("user_id", userID),
			slog.String("provider", userInfo.Provider),
		)
	} else {
		now := time.Now()
		newUser := &model.User{
			ID:        uuid.NewString(),
			Email:     userInfo.Email,
			Name:      userInfo.Name,
			CreatedAt: now,
			UpdatedAt: now,
		}
		newIdentity := &model.Identity{
			ID:             uuid.NewString(),
			UserID:         newUser.ID,
			Provider:       userInfo.Provider,
			ProviderUserID: userInfo.ProviderUserID,
			CreatedAt:      now,
		}

		if err := s.userRepo.CreateWithIdentity(ctx, newUser, newIdentity); err != nil {
			return nil, fmt.Errorf("failed to create user and identity: %w", err)
		}

		userID = newUser.ID
		slog.Info("new user created",
			slog.String("user_id", userID),
			slog.String("provider", userInfo.Provider),
		)
	}

	session, err := s.createSession(ctx, userID, userInfo.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

// ResolveSession は認証情報から有効なセッションを解決する。
// セッションが存在しない、またはトークンが不正な場合は (nil, nil) を返す。
// エラーはバックエンド障害のときだけ返す。
func (s *Service) ResolveSession(ctx context.Context, creds Credentials) (*model.Session, error) {
	if creds.SessionID != "" {
		session, err := s.sessionRepo.FindByID(ctx, creds.SessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve session cookie: %w", err)
		}
		if session != nil {
			return session, nil
		}
	}

	if creds.BearerToken == "" {
		return nil, nil
	}

	claims, err := s.tokens.Parse(creds.BearerToken)
	if err != nil {
		slog.Debug("bearer token rejected", slog.String("error", err.Error()))
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bearer session: %w", err)
	}
	if session == nil || session.UserID != claims.Subject {
		return nil, nil
	}
	return session, nil
}

// IssueAccessToken はセッションに紐づくBearerアクセストークンを発行する。
func (s *Service) IssueAccessToken(session *model.Session) (string, time.Time, error) {
	if session == nil {
		return "", time.Time{}, errors.New("session is required")
	}
	return s.tokens.Issue(session.ID, session.UserID, session.Email, session.ExpiresAt)
}

// SignOut はセッションを破棄する。発行済みアクセストークンもセッション消滅により無効になる。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("session signed out", slog.String("session_id_prefix", sessionIDPrefix(sessionID)))
	return nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID, email string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		Email:     email,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// sessionIDPrefix はログ出力用にセッションIDの先頭8文字だけを返す。
func sessionIDPrefix(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

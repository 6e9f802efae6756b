// Package profile はプロフィール写真の更新とプロフィール診断を提供する。
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/cvbuilder/internal/metrics"
	"github.com/hitoshi/cvbuilder/internal/model"
	"github.com/hitoshi/cvbuilder/internal/repository"
)

// 写真更新がどの経路で成功したかを表すメトリクスラベル。
const (
	PathScoped     = "scoped"
	PathPrivileged = "privileged"
	PathFailed     = "failed"
)

// URLValidator は写真URLの静的検証を行う。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Service はプロフィールのサービス層。
type Service struct {
	profiles repository.ProfileRepository
	urls     URLValidator
	metrics  metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(profiles repository.ProfileRepository, urls URLValidator, collector metrics.MetricsCollector) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{profiles: profiles, urls: urls, metrics: collector}
}

// UpdatePhoto は呼び出し元自身のプロフィールのphoto_urlだけを更新する。
//
// まずユーザースコープで更新し、失敗した場合に限り特権経路で再試行する。
// 保存した（前後の空白を除いた）URLを返す。経路はメトリクスにのみ記録する。
func (s *Service) UpdatePhoto(ctx context.Context, userID, photoURL string) (string, error) {
	photoURL = strings.TrimSpace(photoURL)
	if photoURL == "" {
		return "", model.NewValidationError("photo_url", "is required")
	}
	if err := s.urls.ValidateURL(photoURL); err != nil {
		return "", model.NewInvalidPhotoURLError(err.Error())
	}

	scopedErr := s.profiles.UpdatePhotoScoped(ctx, userID, photoURL)
	if scopedErr == nil {
		s.metrics.RecordPhotoUpdate(PathScoped)
		return photoURL, nil
	}

	slog.Warn("scoped photo update failed, retrying with privileged client",
		slog.String("op", "profile.update_photo"),
		slog.String("user_id", userID),
		slog.String("kind", repository.KindOf(scopedErr).String()),
		slog.String("code", repository.CodeOf(scopedErr)),
	)

	if err := s.profiles.UpdatePhotoPrivileged(ctx, userID, photoURL); err != nil {
		s.metrics.RecordPhotoUpdate(PathFailed)
		if repository.IsNotFound(err) {
			return "", model.NewProfileNotFoundError()
		}
		return "", fmt.Errorf("failed to update profile photo: %w", err)
	}

	s.metrics.RecordPhotoUpdate(PathPrivileged)
	return photoURL, nil
}

// Diagnostics はセッションとプロフィールの状態のレポート。
type Diagnostics struct {
	UserID           string
	Email            string
	SessionExpiresAt time.Time
	ProfileExists    bool
	// ProfileLookup はプロフィール取得結果の分類（ok / not_found / unavailable など）。
	ProfileLookup    string
	ProfileUpdatedAt *time.Time
	MissingFields    []string
}

// Diagnose はセッションに対応するプロフィールの状態を調べる。
// 取得エラーは分類名としてレポートに含め、呼び出し元へは返さない。
func (s *Service) Diagnose(ctx context.Context, session *model.Session) *Diagnostics {
	d := &Diagnostics{
		UserID:           session.UserID,
		Email:            session.Email,
		SessionExpiresAt: session.ExpiresAt,
		ProfileLookup:    "ok",
		MissingFields:    []string{},
	}

	p, err := s.profiles.FindByID(ctx, session.UserID)
	if err != nil {
		d.ProfileLookup = repository.KindOf(err).String()
		if !repository.IsNotFound(err) {
			slog.Warn("profile diagnostics lookup failed",
				slog.String("op", "profile.diagnose"),
				slog.String("user_id", session.UserID),
				slog.String("kind", d.ProfileLookup),
				slog.String("code", repository.CodeOf(err)),
			)
		}
		return d
	}

	d.ProfileExists = true
	updated := p.UpdatedAt
	d.ProfileUpdatedAt = &updated
	d.MissingFields = missingFields(p)
	return d
}

// missingFields はCVの表示に必要で未入力の項目名を返す。
func missingFields(p *model.Profile) []string {
	out := []string{}
	if p.FullName == "" {
		out = append(out, "full_name")
	}
	if p.Email == "" {
		out = append(out, "email")
	}
	if p.PhotoURL == "" {
		out = append(out, "photo_url")
	}
	if p.IsPublic && p.Slug == "" {
		out = append(out, "slug")
	}
	return out
}

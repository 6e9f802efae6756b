// Package guard は認証必須ルートの入口でセッションとプロフィールの存在を保証する。
//
// プロフィール行が欠落している場合はセッション情報から最小限のプロフィールを作成して処理を続ける。
// 修復できない場合はセッションを破棄し、未認証とは区別されたErrUnrecoverableを返す。
package guard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/cvbuilder/internal/auth"
	"github.com/hitoshi/cvbuilder/internal/metrics"
	"github.com/hitoshi/cvbuilder/internal/middleware"
	"github.com/hitoshi/cvbuilder/internal/model"
	"github.com/hitoshi/cvbuilder/internal/repository"
)

var (
	// ErrUnauthenticated はセッションが存在しないことを表す。
	// ページはログイン画面へリダイレクトし、APIは401を返す。
	ErrUnauthenticated = errors.New("guard: not authenticated")

	// ErrUnrecoverable はプロフィールの取得または修復に失敗したことを表す。
	// セッションは破棄済みで、ページはエラーフラグ付きでログイン画面へリダイレクトする。
	ErrUnrecoverable = errors.New("guard: profile unavailable")
)

// プロフィール修復の結果ラベル
const (
	repairCreated       = "created"
	repairRaceRefetched = "race_refetched"
	repairFailed        = "failed"
)

// SessionBackend はGuardが利用する認証バックエンドの操作。
type SessionBackend interface {
	ResolveSession(ctx context.Context, creds auth.Credentials) (*model.Session, error)
	SignOut(ctx context.Context, sessionID string) error
}

// Guard はrequireAuthを提供する。
type Guard struct {
	backend  SessionBackend
	profiles repository.ProfileRepository
	metrics  metrics.MetricsCollector
	now      func() time.Time
}

// New はGuardを生成する。collectorがnilの場合はメトリクスを記録しない。
func New(backend SessionBackend, profiles repository.ProfileRepository, collector metrics.MetricsCollector) *Guard {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Guard{
		backend:  backend,
		profiles: profiles,
		metrics:  collector,
		now:      time.Now,
	}
}

// RequireAuth はセッションとプロフィールの存在を確認し、検証済みの識別情報を返す。
func (g *Guard) RequireAuth(ctx context.Context) (model.VerifiedIdentity, error) {
	identity, _, err := g.RequireProfile(ctx)
	return identity, err
}

// RequireProfile はRequireAuthと同じ検証を行い、確認したプロフィールも返す。
// 同一リクエスト内で何度呼んでもプロフィールの作成は高々1回になる。
// 2回目以降は1回目が作成した行を読み取るため。
func (g *Guard) RequireProfile(ctx context.Context) (model.VerifiedIdentity, *model.Profile, error) {
	session, err := g.session(ctx)
	if err != nil {
		return model.VerifiedIdentity{}, nil, err
	}

	profile, err := g.ensureProfile(ctx, session)
	if err != nil {
		g.signOut(ctx, session)
		return model.VerifiedIdentity{}, nil, ErrUnrecoverable
	}

	return session.Identity(), profile, nil
}

// session はリクエストコンテキストのセッションを返す。
// 存在しない場合はリクエストの認証情報で1回だけ再解決を試みる。
func (g *Guard) session(ctx context.Context) (*model.Session, error) {
	rc := middleware.RequestContextFrom(ctx)
	if s := rc.Session(); s != nil {
		return s, nil
	}

	creds := rc.Credentials()
	if creds.Empty() {
		return nil, ErrUnauthenticated
	}

	s, err := g.backend.ResolveSession(ctx, creds)
	if err != nil {
		slog.Warn("session re-resolution failed",
			slog.String("op", "guard.resolve_session"),
			slog.String("error", err.Error()),
		)
		return nil, ErrUnauthenticated
	}
	if s == nil {
		return nil, ErrUnauthenticated
	}
	return s, nil
}

// ensureProfile はプロフィールを取得し、存在しなければ作成する。
// 同時作成の競合で負けた場合は一意制約違反を成功とみなして再取得する。
func (g *Guard) ensureProfile(ctx context.Context, session *model.Session) (*model.Profile, error) {
	profile, err := g.profiles.FindByID(ctx, session.UserID)
	if err == nil {
		return profile, nil
	}
	if !repository.IsNotFound(err) {
		g.logFailure("guard.lookup_profile", session, err)
		g.metrics.RecordProfileRepair(repairFailed)
		return nil, err
	}

	profile = model.NewDefaultProfile(session.UserID, session.Email, g.now())
	err = g.profiles.Insert(ctx, profile)
	switch {
	case err == nil:
		slog.Info("missing profile recreated",
			slog.String("op", "guard.repair_profile"),
			slog.String("user_id", session.UserID),
		)
		g.metrics.RecordProfileRepair(repairCreated)
		return profile, nil

	case repository.KindOf(err) == repository.KindUniqueViolation:
		existing, ferr := g.profiles.FindByID(ctx, session.UserID)
		if ferr != nil {
			g.logFailure("guard.refetch_profile", session, ferr)
			g.metrics.RecordProfileRepair(repairFailed)
			return nil, ferr
		}
		g.metrics.RecordProfileRepair(repairRaceRefetched)
		return existing, nil

	default:
		g.logFailure("guard.repair_profile", session, err)
		g.metrics.RecordProfileRepair(repairFailed)
		return nil, err
	}
}

// signOut は修復不能時にセッションを破棄する。失敗してもErrUnrecoverableの返却は変えない。
func (g *Guard) signOut(ctx context.Context, session *model.Session) {
	if session.ID == "" {
		return
	}
	if err := g.backend.SignOut(ctx, session.ID); err != nil {
		slog.Error("sign out after unrecoverable profile failed",
			slog.String("op", "guard.sign_out"),
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
	}
}

func (g *Guard) logFailure(op string, session *model.Session, err error) {
	slog.Error("profile unavailable",
		slog.String("op", op),
		slog.String("user_id", session.UserID),
		slog.String("kind", repository.KindOf(err).String()),
		slog.String("code", repository.CodeOf(err)),
		slog.String("error", err.Error()),
	)
}

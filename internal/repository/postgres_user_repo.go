package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hitoshi/cvbuilder/internal/model"
)

// PostgresUserRepo はusersとidentitiesを扱うアカウントリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	u := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, created_at, updated_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, Classify("users.find_by_id", err)
	}
	return u, nil
}

// CreateWithIdentity は初回ログイン時のアカウント一式を1トランザクションで作成する。
// ユーザー、IdP紐付けに加えて、メールアドレスだけを持つ既定のプロフィールも作る。
// プロフィールが後から失われた場合の修復はSession Guardが担う。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	return withTx(ctx, r.db, "users.create_with_identity", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, email, name, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
			user.ID, user.Email, user.Name, user.CreatedAt, user.UpdatedAt,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO identities (id, user_id, provider, provider_user_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
			identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
		); err != nil {
			return err
		}
		return seedProfile(ctx, tx, model.NewDefaultProfile(user.ID, user.Email, user.CreatedAt))
	})
}

// seedProfile は既定のプロフィールを作成する。既に存在する場合は何もしない。
func seedProfile(ctx context.Context, exec execer, p *model.Profile) error {
	_, err := exec.ExecContext(ctx,
		`INSERT INTO profiles (id, email, full_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Email, p.FullName, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// DeleteByID は指定IDのユーザーを削除する。
// identities、profiles、sessions、cv_variants等はCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	const op = "users.delete"
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return Classify(op, err)
	}
	return affectedOne(op, result)
}

// PostgresIdentityRepo は外部IdPの紐付けを検索する。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// FindByProviderAndProviderUserID はIdPのユーザーIDに紐づくidentityを返す。
// 見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error) {
	var id model.Identity
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, provider, provider_user_id, created_at
		 FROM identities WHERE provider = $1 AND provider_user_id = $2`,
		provider, providerUserID,
	).Scan(&id.ID, &id.UserID, &id.Provider, &id.ProviderUserID, &id.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, Classify("identities.find", err)
	}
	return &id, nil
}

var (
	_ UserRepository     = (*PostgresUserRepo)(nil)
	_ IdentityRepository = (*PostgresIdentityRepo)(nil)
)

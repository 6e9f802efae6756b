package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/cvbuilder/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const profileColumns = `id, email, full_name, phone, location, photo_url, slug,
	is_public, show_email, show_phone, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*model.Profile, error) {
	p := &model.Profile{}
	var slug sql.NullString
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.Phone, &p.Location, &p.PhotoURL, &slug,
		&p.IsPublic, &p.ShowEmail, &p.ShowPhone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Slug = slug.String
	return p, nil
}

// FindByID は指定ユーザーのプロフィールを取得する。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if err != nil {
		return nil, Classify("profiles.find_by_id", err)
	}
	return p, nil
}

// Insert はプロフィールを作成する。主キー重複はKindUniqueViolationとして返る。
func (r *PostgresProfileRepo) Insert(ctx context.Context, p *model.Profile) error {
	var slug sql.NullString
	if p.Slug != "" {
		slug = sql.NullString{String: p.Slug, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, email, full_name, phone, location, photo_url, slug,
		                       is_public, show_email, show_phone, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.Email, p.FullName, p.Phone, p.Location, p.PhotoURL, slug,
		p.IsPublic, p.ShowEmail, p.ShowPhone, p.CreatedAt, p.UpdatedAt,
	)
	return Classify("profiles.insert", err)
}

// FindPublicBySlug は公開プロフィールをslugで取得する。
func (r *PostgresProfileRepo) FindPublicBySlug(ctx context.Context, slug string) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE slug = $1 AND is_public = true`, slug))
	if err != nil {
		return nil, Classify("profiles.find_public_by_slug", err)
	}
	return p, nil
}

// ListPublicSlugs は公開プロフィールのslug一覧を返す。
func (r *PostgresProfileRepo) ListPublicSlugs(ctx context.Context) ([]PublicSlug, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT slug, updated_at FROM profiles
		 WHERE is_public = true AND slug IS NOT NULL
		 ORDER BY slug`)
	if err != nil {
		return nil, Classify("profiles.list_public_slugs", err)
	}
	defer rows.Close()

	var out []PublicSlug
	for rows.Next() {
		var s PublicSlug
		if err := rows.Scan(&s.Slug, &s.UpdatedAt); err != nil {
			return nil, Classify("profiles.list_public_slugs", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, Classify("profiles.list_public_slugs", err)
	}
	return out, nil
}

// UpdatePhotoScoped はトランザクション内でapp.current_user_idを設定し、
// その値に一致する行のphoto_urlだけを更新する。
func (r *PostgresProfileRepo) UpdatePhotoScoped(ctx context.Context, userID, photoURL string) error {
	const op = "profiles.update_photo_scoped"
	return withTx(ctx, r.db, op, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT set_config('app.current_user_id', $1, true)`, userID); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx,
			`UPDATE profiles SET photo_url = $1, updated_at = now()
			 WHERE id = $2 AND id::text = current_setting('app.current_user_id', true)`,
			photoURL, userID,
		)
		if err != nil {
			return err
		}
		if err := affectedOne(op, result); err != nil {
			return &BackendError{Kind: KindPermissionDenied, Op: op, Message: "no row visible to user scope"}
		}
		return nil
	})
}

// UpdatePhotoPrivileged はスコープ制限なしでphoto_urlを更新する。
func (r *PostgresProfileRepo) UpdatePhotoPrivileged(ctx context.Context, userID, photoURL string) error {
	const op = "profiles.update_photo_privileged"
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET photo_url = $1, updated_at = now() WHERE id = $2`,
		photoURL, userID,
	)
	if err != nil {
		return Classify(op, err)
	}
	return affectedOne(op, result)
}

var _ ProfileRepository = (*PostgresProfileRepo)(nil)

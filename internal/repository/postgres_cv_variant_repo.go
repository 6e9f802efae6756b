package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/cvbuilder/internal/model"
)

// PostgresCVVariantRepo はPostgreSQLを使用したCVバリエーションリポジトリ。
// CVデータはJSONBカラムに保存する。
type PostgresCVVariantRepo struct {
	db *sql.DB
}

// NewPostgresCVVariantRepo はPostgresCVVariantRepoを生成する。
func NewPostgresCVVariantRepo(db *sql.DB) *PostgresCVVariantRepo {
	return &PostgresCVVariantRepo{db: db}
}

func scanVariant(row rowScanner) (*model.CVVariant, error) {
	v := &model.CVVariant{}
	var raw []byte
	if err := row.Scan(&v.ID, &v.UserID, &v.Name, &v.TemplateID, &raw, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &v.Data); err != nil {
		return nil, fmt.Errorf("failed to decode cv data: %w", err)
	}
	return v, nil
}

// FindByIDForUser は所有者が一致するバリエーションを取得する。
func (r *PostgresCVVariantRepo) FindByIDForUser(ctx context.Context, id, userID string) (*model.CVVariant, error) {
	v, err := scanVariant(r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, template_id, data, created_at, updated_at
		 FROM cv_variants WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if err != nil {
		return nil, Classify("cv_variants.find_by_id", err)
	}
	return v, nil
}

// ListByUserID はユーザーのバリエーション一覧を返す。
func (r *PostgresCVVariantRepo) ListByUserID(ctx context.Context, userID string) ([]*model.CVVariant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, template_id, data, created_at, updated_at
		 FROM cv_variants WHERE user_id = $1
		 ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, Classify("cv_variants.list", err)
	}
	defer rows.Close()

	var out []*model.CVVariant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, Classify("cv_variants.list", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, Classify("cv_variants.list", err)
	}
	return out, nil
}

// UpdateData はバリエーションのCVデータを置き換える。
func (r *PostgresCVVariantRepo) UpdateData(ctx context.Context, id, userID string, doc model.CVDocument) error {
	const op = "cv_variants.update_data"

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode cv data: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE cv_variants SET data = $1, updated_at = now()
		 WHERE id = $2 AND user_id = $3`,
		raw, id, userID,
	)
	if err != nil {
		return Classify(op, err)
	}
	return affectedOne(op, result)
}

var _ CVVariantRepository = (*PostgresCVVariantRepo)(nil)

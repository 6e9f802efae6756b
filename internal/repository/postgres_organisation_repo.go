package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/cvbuilder/internal/model"
)

// PostgresOrganisationRepo はPostgreSQLを使用した組織リポジトリ。
type PostgresOrganisationRepo struct {
	db *sql.DB
}

// NewPostgresOrganisationRepo はPostgresOrganisationRepoを生成する。
func NewPostgresOrganisationRepo(db *sql.DB) *PostgresOrganisationRepo {
	return &PostgresOrganisationRepo{db: db}
}

// invitationTable は招待種別に対応するテーブル名を返す。
// テーブル名はSQLに埋め込むため、既知の種別以外はエラーにする。
func invitationTable(typ model.InvitationType) (string, error) {
	switch typ {
	case model.InvitationTypeCandidate:
		return "candidate_invitations", nil
	case model.InvitationTypeTeam:
		return "team_invitations", nil
	default:
		return "", fmt.Errorf("unknown invitation type: %q", typ)
	}
}

// FindMember は組織内のメンバー情報を取得する。所属していない場合はnilを返す。
func (r *PostgresOrganisationRepo) FindMember(ctx context.Context, organisationID, userID string) (*model.OrganisationMember, error) {
	m := &model.OrganisationMember{}
	err := r.db.QueryRowContext(ctx,
		`SELECT organisation_id, user_id, role FROM organisation_members
		 WHERE organisation_id = $1 AND user_id = $2`,
		organisationID, userID,
	).Scan(&m.OrganisationID, &m.UserID, &m.Role)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, Classify("organisation_members.find", err)
	}
	return m, nil
}

// FindInvitation は種別ごとのテーブルから招待を取得する。
func (r *PostgresOrganisationRepo) FindInvitation(ctx context.Context, typ model.InvitationType, id string) (*model.Invitation, error) {
	const op = "invitations.find"

	table, err := invitationTable(typ)
	if err != nil {
		return nil, Classify(op, err)
	}

	inv := &model.Invitation{Type: typ}
	err = r.db.QueryRowContext(ctx,
		`SELECT id, organisation_id, email, status, created_at, updated_at FROM `+table+` WHERE id = $1`,
		id,
	).Scan(&inv.ID, &inv.OrganisationID, &inv.Email, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, Classify(op, err)
	}
	return inv, nil
}

// CancelInvitation は保留中の招待をキャンセル状態にする。
func (r *PostgresOrganisationRepo) CancelInvitation(ctx context.Context, typ model.InvitationType, id string) error {
	const op = "invitations.cancel"

	table, err := invitationTable(typ)
	if err != nil {
		return Classify(op, err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE `+table+` SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		model.InvitationStatusCancelled, id, model.InvitationStatusPending,
	)
	if err != nil {
		return Classify(op, err)
	}
	return affectedOne(op, result)
}

var _ OrganisationRepository = (*PostgresOrganisationRepo)(nil)

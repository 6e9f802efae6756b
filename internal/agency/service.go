// Package agency は組織（エージェンシー）の招待管理を提供する。
package agency

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/cvbuilder/internal/model"
	"github.com/hitoshi/cvbuilder/internal/repository"
)

// Service は招待管理のサービス層。
type Service struct {
	orgs repository.OrganisationRepository
}

// NewService はServiceを生成する。
func NewService(orgs repository.OrganisationRepository) *Service {
	return &Service{orgs: orgs}
}

// CancelInvitation は保留中の招待をキャンセルする。
// 呼び出し元は招待が属する組織の管理者でなければならない。
func (s *Service) CancelInvitation(ctx context.Context, userID, invitationID, rawType string) error {
	invitationID = strings.TrimSpace(invitationID)
	if invitationID == "" {
		return model.NewValidationError("invitation_id", "is required")
	}
	typ, ok := model.ParseInvitationType(strings.TrimSpace(rawType))
	if !ok {
		return model.NewValidationError("type", "must be candidate or team")
	}

	inv, err := s.orgs.FindInvitation(ctx, typ, invitationID)
	if err != nil {
		if repository.IsNotFound(err) {
			return model.NewInvitationNotFoundError(invitationID)
		}
		return fmt.Errorf("failed to load invitation: %w", err)
	}

	member, err := s.orgs.FindMember(ctx, inv.OrganisationID, userID)
	if err != nil {
		return fmt.Errorf("failed to load organisation membership: %w", err)
	}
	if member == nil || member.Role != model.OrganisationRoleAdmin {
		slog.Warn("invitation cancel denied",
			slog.String("op", "agency.cancel_invitation"),
			slog.String("user_id", userID),
			slog.String("organisation_id", inv.OrganisationID),
			slog.String("invitation_id", invitationID),
		)
		return model.NewForbiddenError("Only organisation admins can cancel invitations")
	}

	if err := s.orgs.CancelInvitation(ctx, typ, invitationID); err != nil {
		if repository.IsNotFound(err) {
			// 既にキャンセル済みまたは承諾済み
			return model.NewInvitationNotFoundError(invitationID)
		}
		return fmt.Errorf("failed to cancel invitation: %w", err)
	}

	slog.Info("invitation cancelled",
		slog.String("op", "agency.cancel_invitation"),
		slog.String("user_id", userID),
		slog.String("organisation_id", inv.OrganisationID),
		slog.String("invitation_id", invitationID),
		slog.String("type", string(typ)),
	)
	return nil
}

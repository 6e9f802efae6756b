package model

import "time"

// OrganisationRole は組織内のメンバー権限を表す。
type OrganisationRole string

const (
	// OrganisationRoleAdmin は組織管理者。
	OrganisationRoleAdmin OrganisationRole = "admin"
	// OrganisationRoleMember は一般メンバー。
	OrganisationRoleMember OrganisationRole = "member"
)

// OrganisationMember は組織とユーザーの所属関係を表す。
type OrganisationMember struct {
	OrganisationID string
	UserID         string
	Role           OrganisationRole
}

// InvitationType は招待の種別を表す。
type InvitationType string

const (
	// InvitationTypeCandidate は候補者（CV提出者）への招待。
	InvitationTypeCandidate InvitationType = "candidate"
	// InvitationTypeTeam はチームメンバーへの招待。
	InvitationTypeTeam InvitationType = "team"
)

// ParseInvitationType は文字列を招待種別に変換する。
func ParseInvitationType(s string) (InvitationType, bool) {
	switch InvitationType(s) {
	case InvitationTypeCandidate, InvitationTypeTeam:
		return InvitationType(s), true
	default:
		return "", false
	}
}

// InvitationStatus は招待の状態を表す。
type InvitationStatus string

const (
	InvitationStatusPending   InvitationStatus = "pending"
	InvitationStatusCancelled InvitationStatus = "cancelled"
	InvitationStatusAccepted  InvitationStatus = "accepted"
)

// Invitation は組織からの招待を表す。
type Invitation struct {
	ID             string
	OrganisationID string
	Type           InvitationType
	Email          string
	Status         InvitationStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

package handler

import (
	"net/http"
	"time"

	"github.com/hitoshi/cvbuilder/internal/middleware"
)

// notAuthenticatedBody はセッション参照系APIの401レスポンス。
var notAuthenticatedBody = map[string]string{"error": "Not authenticated"}

// SessionHandler はセッションとプロフィールの状態を返すハンドラー。
type SessionHandler struct {
	profiles ProfileServiceInterface
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(profiles ProfileServiceInterface) *SessionHandler {
	return &SessionHandler{profiles: profiles}
}

type sessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type verifySessionResponse struct {
	Valid     bool        `json:"valid"`
	User      sessionUser `json:"user"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// VerifySession はリクエストのセッションが有効かを返す。
// GET /api/verify-session
func (h *SessionHandler) VerifySession(w http.ResponseWriter, r *http.Request) {
	session := middleware.RequestContextFrom(r.Context()).Session()
	if session == nil {
		writeJSON(w, http.StatusUnauthorized, notAuthenticatedBody)
		return
	}

	writeJSON(w, http.StatusOK, verifySessionResponse{
		Valid:     true,
		User:      sessionUser{ID: session.UserID, Email: session.Email},
		ExpiresAt: session.ExpiresAt,
	})
}

type diagnosticsResponse struct {
	Session struct {
		UserID    string    `json:"userId"`
		Email     string    `json:"email"`
		ExpiresAt time.Time `json:"expiresAt"`
	} `json:"session"`
	Profile struct {
		Exists        bool       `json:"exists"`
		Lookup        string     `json:"lookup"`
		UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
		MissingFields []string   `json:"missingFields"`
	} `json:"profile"`
}

// ProfileDiagnostics はセッションとプロフィールの有無をレポートする。
// プロフィールの作成は行わない。
// GET /api/profile-diagnostics
func (h *SessionHandler) ProfileDiagnostics(w http.ResponseWriter, r *http.Request) {
	session := middleware.RequestContextFrom(r.Context()).Session()
	if session == nil {
		writeJSON(w, http.StatusUnauthorized, notAuthenticatedBody)
		return
	}

	d := h.profiles.Diagnose(r.Context(), session)

	var resp diagnosticsResponse
	resp.Session.UserID = d.UserID
	resp.Session.Email = d.Email
	resp.Session.ExpiresAt = d.SessionExpiresAt
	resp.Profile.Exists = d.ProfileExists
	resp.Profile.Lookup = d.ProfileLookup
	resp.Profile.UpdatedAt = d.ProfileUpdatedAt
	resp.Profile.MissingFields = d.MissingFields
	if resp.Profile.MissingFields == nil {
		resp.Profile.MissingFields = []string{}
	}

	writeJSON(w, http.StatusOK, resp)
}

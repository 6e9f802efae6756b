package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/cvbuilder/internal/middleware"
	"github.com/hitoshi/cvbuilder/internal/model"
)

// maxJSONBody はJSONリクエストボディの上限。
const maxJSONBody = 1 << 20

// ProfileHandler はプロフィール更新のハンドラー。
type ProfileHandler struct {
	guard    Authenticator
	profiles ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(guard Authenticator, profiles ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{guard: guard, profiles: profiles}
}

type updatePhotoRequest struct {
	PhotoURL string `json:"photo_url"`
}

type updatePhotoResponse struct {
	Success  bool   `json:"success"`
	PhotoURL string `json:"photoUrl"`
}

// UpdatePhoto は呼び出し元自身のプロフィール写真URLを更新する。
// CookieセッションとBearerトークンのどちらでも認証できる。更新対象はphoto_urlのみ。
// POST /api/update-profile-photo
func (h *ProfileHandler) UpdatePhoto(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireAPIAuth(w, r, h.guard)
	if !ok {
		return
	}

	var req updatePhotoRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("body", "must be a JSON object"))
		return
	}

	photoURL, err := h.profiles.UpdatePhoto(r.Context(), identity.UserID, req.PhotoURL)
	if err != nil {
		handleServiceError(w, r, "profile.update_photo", err)
		return
	}

	writeJSON(w, http.StatusOK, updatePhotoResponse{Success: true, PhotoURL: photoURL})
}

// requireAPIAuth はSession Guardを通し、失敗時は401を書き込んでfalseを返す。
// プロフィールを修復できなかった場合もAPIでは未認証として扱う。
func requireAPIAuth(w http.ResponseWriter, r *http.Request, g Authenticator) (model.VerifiedIdentity, bool) {
	identity, err := g.RequireAuth(r.Context())
	if err != nil {
		middleware.WriteUnauthenticated(w)
		return model.VerifiedIdentity{}, false
	}
	return identity, true
}

package handler

import (
	"net/http"

	"github.com/hitoshi/cvbuilder/internal/middleware"
)

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	guard   Authenticator
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(guard Authenticator, service UserServiceInterface) *UserHandler {
	return &UserHandler{
		guard:   guard,
		service: service,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireAPIAuth(w, r, h.guard)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), identity.UserID); err != nil {
		handleServiceError(w, r, "user.withdraw", err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

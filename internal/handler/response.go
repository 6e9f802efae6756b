package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/cvbuilder/internal/cvtemplate"
	"github.com/hitoshi/cvbuilder/internal/middleware"
	"github.com/hitoshi/cvbuilder/internal/model"
	"github.com/hitoshi/cvbuilder/internal/repository"
)

// writeJSON はJSONレスポンスを書き込む。
// encoding/jsonは<>&をエスケープするため、ページへの埋め込みにもそのまま使える。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}
	if isUnknownTemplate(err) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUnknownTemplateError(r.URL.Query().Get("template")))
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う。詳細はログのみ。
	slog.Error("internal server error",
		slog.String("op", op),
		slog.String("path", r.URL.Path),
		slog.String("user_id", middleware.UserIDFromContext(r.Context())),
		slog.String("kind", repository.KindOf(err).String()),
		slog.String("code", repository.CodeOf(err)),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeCSRFInvalid, model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeValidation, model.ErrCodeInvalidPhotoURL, model.ErrCodeInvalidCVData,
		model.ErrCodeWebhookSignature:
		return http.StatusBadRequest
	case model.ErrCodeProfileNotFound, model.ErrCodePublicProfileNotFound,
		model.ErrCodeVariantNotFound, model.ErrCodeInvitationNotFound,
		model.ErrCodeUnknownTemplate, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func isUnknownTemplate(err error) bool {
	return errors.Is(err, cvtemplate.ErrUnknownTemplate)
}

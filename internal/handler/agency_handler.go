package handler

import (
	"mime"
	"net/http"

	"github.com/hitoshi/cvbuilder/internal/middleware"
	"github.com/hitoshi/cvbuilder/internal/model"
)

// AgencyHandler は組織管理のハンドラー。
type AgencyHandler struct {
	guard  Authenticator
	agency AgencyServiceInterface
}

// NewAgencyHandler はAgencyHandlerを生成する。
func NewAgencyHandler(guard Authenticator, agency AgencyServiceInterface) *AgencyHandler {
	return &AgencyHandler{guard: guard, agency: agency}
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// CancelInvitation は候補者またはチームの招待を取り消す。組織の管理者のみ実行できる。
// POST /api/agency/cancel-invitation (form: invitation_id, type)
// ブラウザのFormData送信（multipart/form-data）も受け付ける。
func (h *AgencyHandler) CancelInvitation(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireAPIAuth(w, r, h.guard)
	if !ok {
		return
	}

	if err := parseFormBody(w, r); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("body", "must be form encoded"))
		return
	}

	err := h.agency.CancelInvitation(r.Context(), identity.UserID, r.PostForm.Get("invitation_id"), r.PostForm.Get("type"))
	if err != nil {
		handleServiceError(w, r, "agency.cancel_invitation", err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Invitation cancelled"})
}

// maxFormBody はフォームボディの上限。招待取消のフォームはファイルを含まない。
const maxFormBody = 64 << 10

// parseFormBody はurlencodedとmultipartのどちらのフォームもr.PostFormへ読み込む。
// CSRFミドルウェアが先に解析済みの場合はそれを再利用する。
func parseFormBody(w http.ResponseWriter, r *http.Request) error {
	if r.PostForm != nil {
		return nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.ParseForm()
	}
	return r.ParseMultipartForm(maxFormBody)
}

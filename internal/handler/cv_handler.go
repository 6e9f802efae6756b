package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/cvbuilder/internal/cv"
	"github.com/hitoshi/cvbuilder/internal/middleware"
	"github.com/hitoshi/cvbuilder/internal/model"
)

// CVHandler はCVエディタとPDFダウンロードのハンドラー。
type CVHandler struct {
	guard     Authenticator
	cvs       CVServiceInterface
	templates TemplateServiceInterface
}

// NewCVHandler はCVHandlerを生成する。
func NewCVHandler(guard Authenticator, cvs CVServiceInterface, templates TemplateServiceInterface) *CVHandler {
	return &CVHandler{guard: guard, cvs: cvs, templates: templates}
}

type variantResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	TemplateID string    `json:"templateId"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type profileResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Phone     string    `json:"phone"`
	Location  string    `json:"location"`
	PhotoURL  string    `json:"photoUrl"`
	Slug      string    `json:"slug"`
	IsPublic  bool      `json:"isPublic"`
	ShowEmail bool      `json:"showEmail"`
	ShowPhone bool      `json:"showPhone"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type subscriptionResponse struct {
	Plan     string `json:"plan"`
	Status   string `json:"status"`
	IsActive bool   `json:"isActive"`
}

type editorDataResponse struct {
	CVData              model.CVDocument     `json:"cvData"`
	Variant             variantResponse      `json:"variant"`
	Profile             profileResponse      `json:"profile"`
	SubscriptionContext subscriptionResponse `json:"subscriptionContext"`
}

func newEditorDataResponse(d *cv.EditorData) editorDataResponse {
	p := d.Profile
	return editorDataResponse{
		CVData: d.Variant.Data,
		Variant: variantResponse{
			ID:         d.Variant.ID,
			Name:       d.Variant.Name,
			TemplateID: d.Variant.TemplateID,
			UpdatedAt:  d.Variant.UpdatedAt,
		},
		Profile: profileResponse{
			ID:        p.ID,
			Email:     p.Email,
			FullName:  p.FullName,
			Phone:     p.Phone,
			Location:  p.Location,
			PhotoURL:  p.PhotoURL,
			Slug:      p.Slug,
			IsPublic:  p.IsPublic,
			ShowEmail: p.ShowEmail,
			ShowPhone: p.ShowPhone,
			UpdatedAt: p.UpdatedAt,
		},
		SubscriptionContext: subscriptionResponse{
			Plan:     d.Subscription.Plan,
			Status:   string(d.Subscription.Status),
			IsActive: d.Subscription.IsActive,
		},
	}
}

// GetCVData はエディタ用のCVデータ、プロフィール、課金状態を返す。
// GET /api/content-editor/get-cv-data?variant_id=
func (h *CVHandler) GetCVData(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireAPIAuth(w, r, h.guard)
	if !ok {
		return
	}

	variantID := strings.TrimSpace(r.URL.Query().Get("variant_id"))
	if variantID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("variant_id", "is required"))
		return
	}

	data, err := h.cvs.GetEditorData(r.Context(), identity.UserID, variantID)
	if err != nil {
		handleServiceError(w, r, "cv.get_data", err)
		return
	}

	writeJSON(w, http.StatusOK, newEditorDataResponse(data))
}

type saveCVDataRequest struct {
	VariantID string          `json:"variant_id"`
	CVData    json.RawMessage `json:"cvData"`
}

type saveCVDataResponse struct {
	Success bool             `json:"success"`
	CVData  model.CVDocument `json:"cvData"`
}

// SaveCVData はCVデータをスキーマ検証とサニタイズの後に保存する。
// POST /api/content-editor/save-cv-data
func (h *CVHandler) SaveCVData(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireAPIAuth(w, r, h.guard)
	if !ok {
		return
	}

	var req saveCVDataRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("body", "must be a JSON object"))
		return
	}
	if strings.TrimSpace(req.VariantID) == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("variant_id", "is required"))
		return
	}
	if len(req.CVData) == 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("cvData", "is required"))
		return
	}

	doc, err := h.cvs.SaveCVData(r.Context(), identity.UserID, req.VariantID, req.CVData)
	if err != nil {
		handleServiceError(w, r, "cv.save_data", err)
		return
	}

	writeJSON(w, http.StatusOK, saveCVDataResponse{Success: true, CVData: *doc})
}

// DownloadPDF は自分のCVバリエーションをPDFで返す。
// GET /api/cv/{variantID}/pdf?template=
func (h *CVHandler) DownloadPDF(w http.ResponseWriter, r *http.Request) {
	identity, profile, err := h.guard.RequireProfile(r.Context())
	if err != nil {
		middleware.WriteUnauthenticated(w)
		return
	}

	variantID := chi.URLParam(r, "variantID")
	variant, err := h.cvs.GetVariant(r.Context(), identity.UserID, variantID)
	if err != nil {
		handleServiceError(w, r, "cv.download_pdf", err)
		return
	}

	templateID := r.URL.Query().Get("template")
	if templateID == "" {
		templateID = variant.TemplateID
	}

	pdf, err := h.templates.RenderPDF(r.Context(), templateID, profile, variant.Data)
	if err != nil {
		handleServiceError(w, r, "cv.download_pdf", err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="cv-%s.pdf"`, variant.ID))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}

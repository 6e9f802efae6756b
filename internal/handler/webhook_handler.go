package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/cvbuilder/internal/billing"
	"github.com/hitoshi/cvbuilder/internal/middleware"
	"github.com/hitoshi/cvbuilder/internal/model"
)

// StripeWebhookPath は決済Webhookのパス。CSRF検証の除外対象として設定する。
const StripeWebhookPath = "/api/stripe/webhook"

// maxWebhookBody は決済Webhookボディの上限。
const maxWebhookBody = 64 << 10

// maxCSPReportBody はCSPレポートボディの上限。
const maxCSPReportBody = 16 << 10

// WebhookHandler は外部から送られる通知のハンドラー。
// CSRF検証の対象外で、決済Webhookは署名で送信元を検証する。
type WebhookHandler struct {
	billing BillingServiceInterface
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(billing BillingServiceInterface) *WebhookHandler {
	return &WebhookHandler{billing: billing}
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome"`
}

// Stripe は決済Webhookを処理する。署名は生のボディに対して検証する。
// 再送された処理済みイベントも200を返す。
// POST /api/stripe/webhook
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("body", "is too large"))
		return
	}

	outcome, err := h.billing.HandleWebhook(r.Context(), payload, r.Header.Get(billing.SignatureHeader))
	if err != nil {
		handleServiceError(w, r, "billing.webhook", err)
		return
	}

	writeJSON(w, http.StatusOK, webhookResponse{Received: true, Outcome: outcome})
}

// cspReport はreport-uri形式のCSP違反レポート。
type cspReport struct {
	Body struct {
		DocumentURI        string `json:"document-uri"`
		ViolatedDirective  string `json:"violated-directive"`
		EffectiveDirective string `json:"effective-directive"`
		BlockedURI         string `json:"blocked-uri"`
		SourceFile         string `json:"source-file"`
		LineNumber         int    `json:"line-number"`
	} `json:"csp-report"`
}

// CSPReport はブラウザが送るCSP違反レポートを記録する。常に204を返す。
// POST /api/csp-report
func (h *WebhookHandler) CSPReport(w http.ResponseWriter, r *http.Request) {
	var report cspReport
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCSPReportBody)).Decode(&report); err != nil {
		slog.Debug("ignoring unreadable csp report", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusNoContent)
		return
	}

	v := report.Body
	slog.Warn("csp violation",
		slog.String("document_uri", v.DocumentURI),
		slog.String("violated_directive", v.ViolatedDirective),
		slog.String("effective_directive", v.EffectiveDirective),
		slog.String("blocked_uri", v.BlockedURI),
		slog.String("source_file", v.SourceFile),
		slog.Int("line_number", v.LineNumber),
	)
	w.WriteHeader(http.StatusNoContent)
}

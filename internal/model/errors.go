// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, cv, billing, system
	Action   string // ユーザー向け対処方法
	Field    string // バリデーションエラー時の対象フィールド
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated       = "UNAUTHENTICATED"
	ErrCodeCSRFInvalid           = "CSRF_INVALID"
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeValidation            = "VALIDATION_FAILED"
	ErrCodeProfileNotFound       = "PROFILE_NOT_FOUND"
	ErrCodeVariantNotFound       = "CV_VARIANT_NOT_FOUND"
	ErrCodeInvitationNotFound    = "INVITATION_NOT_FOUND"
	ErrCodeUnknownTemplate       = "UNKNOWN_TEMPLATE"
	ErrCodeInvalidPhotoURL       = "INVALID_PHOTO_URL"
	ErrCodeInvalidCVData         = "INVALID_CV_DATA"
	ErrCodeWebhookSignature      = "WEBHOOK_SIGNATURE_INVALID"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeInternal              = "INTERNAL_ERROR"
	ErrCodeRateLimited           = "RATE_LIMITED"
	ErrCodePublicProfileNotFound = "PUBLIC_PROFILE_NOT_FOUND"
)

// NewUnauthenticatedError は未認証エラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "Not authenticated",
		Category: "auth",
		Action:   "Please sign in again.",
	}
}

// NewCSRFInvalidError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "Invalid CSRF token",
		Category: "auth",
		Action:   "Reload the page and try again.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  reason,
		Category: "auth",
		Action:   "Check that you are signed in with the right account.",
	}
}

// NewValidationError はフィールド単位のバリデーションエラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("%s: %s", field, reason),
		Category: "validation",
		Action:   "Correct the highlighted field and submit again.",
		Field:    field,
	}
}

// NewProfileNotFoundError はプロフィール未検出エラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "Profile not found",
		Category: "cv",
		Action:   "Sign in again to recreate your profile.",
	}
}

// NewPublicProfileNotFoundError は公開プロフィール未検出エラーを生成する。
// 非公開プロフィールの存在は明かさない。
func NewPublicProfileNotFoundError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodePublicProfileNotFound,
		Message:  fmt.Sprintf("No public CV at %q", slug),
		Category: "cv",
		Action:   "Check the link you were given.",
	}
}

// NewVariantNotFoundError はCVバリエーション未検出エラーを生成する。
func NewVariantNotFoundError(variantID string) *APIError {
	return &APIError{
		Code:     ErrCodeVariantNotFound,
		Message:  fmt.Sprintf("CV variant not found: %s", variantID),
		Category: "cv",
		Action:   "Select an existing CV from your dashboard.",
	}
}

// NewInvitationNotFoundError は招待未検出エラーを生成する。
func NewInvitationNotFoundError(invitationID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvitationNotFound,
		Message:  fmt.Sprintf("Invitation not found: %s", invitationID),
		Category: "agency",
		Action:   "Refresh the invitation list.",
	}
}

// NewUnknownTemplateError は未登録テンプレートエラーを生成する。
func NewUnknownTemplateError(templateID string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownTemplate,
		Message:  fmt.Sprintf("Unknown template: %s", templateID),
		Category: "cv",
		Action:   "Choose one of the available templates.",
	}
}

// NewInvalidPhotoURLError は無効な写真URLエラーを生成する。
func NewInvalidPhotoURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPhotoURL,
		Message:  fmt.Sprintf("Invalid photo URL: %s", reason),
		Category: "validation",
		Action:   "Upload the photo again.",
		Field:    "photo_url",
	}
}

// NewInvalidCVDataError はCVデータのスキーマ違反エラーを生成する。
func NewInvalidCVDataError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCVData,
		Message:  fmt.Sprintf("Invalid CV data: %s", reason),
		Category: "validation",
		Action:   "Check the highlighted sections and save again.",
		Field:    "cvData",
	}
}

// NewWebhookSignatureError はWebhook署名検証失敗エラーを生成する。
func NewWebhookSignatureError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeWebhookSignature,
		Message:  fmt.Sprintf("Webhook signature verification failed: %s", reason),
		Category: "billing",
		Action:   "",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "Please sign in again.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}

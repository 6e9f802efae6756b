// Package cv はコンテンツエディタ向けのCVデータの読み書きを提供する。
package cv

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/hitoshi/cvbuilder/internal/model"
	"github.com/hitoshi/cvbuilder/internal/repository"
	"github.com/hitoshi/cvbuilder/internal/security"
)

//go:embed cv.schema.json
var schemaJSON []byte

// maxReportedErrors はバリデーションエラーメッセージに含めるエラーの最大件数。
const maxReportedErrors = 3

// EditorData はコンテンツエディタの初期表示に必要なデータ。
type EditorData struct {
	Variant      *model.CVVariant
	Profile      *model.Profile
	Subscription SubscriptionContext
}

// SubscriptionContext はエディタが機能制限の表示に使う課金状態。
type SubscriptionContext struct {
	Plan     string
	Status   model.SubscriptionStatus
	IsActive bool
}

// Service はCVデータのサービス層。
type Service struct {
	variants  repository.CVVariantRepository
	profiles  repository.ProfileRepository
	billing   repository.BillingRepository
	sanitizer security.ContentSanitizerService
	schema    *gojsonschema.Schema
}

// NewService はServiceを生成する。埋め込みスキーマの読み込みに失敗した場合はエラーを返す。
func NewService(
	variants repository.CVVariantRepository,
	profiles repository.ProfileRepository,
	billing repository.BillingRepository,
	sanitizer security.ContentSanitizerService,
) (*Service, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to load cv schema: %w", err)
	}
	return &Service{
		variants:  variants,
		profiles:  profiles,
		billing:   billing,
		sanitizer: sanitizer,
		schema:    schema,
	}, nil
}

// GetEditorData はバリエーション、プロフィール、課金状態をまとめて返す。
// 文字列は実体参照をデコードした状態で返す。
func (s *Service) GetEditorData(ctx context.Context, userID, variantID string) (*EditorData, error) {
	variant, err := s.GetVariant(ctx, userID, variantID)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.FindByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, model.NewProfileNotFoundError()
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	sub, err := s.billing.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	decoded := *variant
	decoded.Name = html.UnescapeString(variant.Name)
	decoded.Data = DecodeEntities(variant.Data)

	p := *profile
	p.FullName = html.UnescapeString(p.FullName)
	p.Location = html.UnescapeString(p.Location)

	return &EditorData{
		Variant:      &decoded,
		Profile:      &p,
		Subscription: subscriptionContext(sub),
	}, nil
}

// GetVariant は所有者が一致するバリエーションを返す。
func (s *Service) GetVariant(ctx context.Context, userID, variantID string) (*model.CVVariant, error) {
	if strings.TrimSpace(variantID) == "" {
		return nil, model.NewValidationError("variant_id", "is required")
	}

	variant, err := s.variants.FindByIDForUser(ctx, variantID, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, model.NewVariantNotFoundError(variantID)
		}
		return nil, fmt.Errorf("failed to load cv variant: %w", err)
	}
	return variant, nil
}

// SaveCVData はJSONスキーマで検証し、サニタイズしたうえでCVデータを保存する。
// 保存後のドキュメントを返す。
func (s *Service) SaveCVData(ctx context.Context, userID, variantID string, raw json.RawMessage) (*model.CVDocument, error) {
	if strings.TrimSpace(variantID) == "" {
		return nil, model.NewValidationError("variant_id", "is required")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, model.NewValidationError("cvData", "is required")
	}

	if err := s.validate(raw); err != nil {
		return nil, err
	}

	var doc model.CVDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, model.NewInvalidCVDataError("malformed JSON")
	}
	doc = s.sanitizer.SanitizeDocument(doc)

	if err := s.variants.UpdateData(ctx, variantID, userID, doc); err != nil {
		if repository.IsNotFound(err) {
			return nil, model.NewVariantNotFoundError(variantID)
		}
		return nil, fmt.Errorf("failed to save cv data: %w", err)
	}

	slog.Info("cv data saved",
		slog.String("op", "cv.save"),
		slog.String("user_id", userID),
		slog.String("variant_id", variantID),
	)
	return &doc, nil
}

// PublicCV は公開プロフィールと最新のバリエーションを返す。
// バリエーションが1件もない場合は空のドキュメントになる。
func (s *Service) PublicCV(ctx context.Context, slug string) (*model.Profile, *model.CVVariant, error) {
	profile, err := s.profiles.FindPublicBySlug(ctx, slug)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, model.NewPublicProfileNotFoundError(slug)
		}
		return nil, nil, fmt.Errorf("failed to load public profile: %w", err)
	}

	variants, err := s.variants.ListByUserID(ctx, profile.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list cv variants: %w", err)
	}
	if len(variants) == 0 {
		return profile, &model.CVVariant{UserID: profile.ID}, nil
	}
	return profile, variants[0], nil
}

// ListVariants はユーザーのバリエーション一覧を返す。
func (s *Service) ListVariants(ctx context.Context, userID string) ([]*model.CVVariant, error) {
	variants, err := s.variants.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cv variants: %w", err)
	}
	return variants, nil
}

func (s *Service) validate(raw json.RawMessage) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return model.NewInvalidCVDataError("malformed JSON")
	}
	if result.Valid() {
		return nil
	}

	errs := result.Errors()
	msgs := make([]string, 0, maxReportedErrors)
	for i, e := range errs {
		if i == maxReportedErrors {
			break
		}
		msgs = append(msgs, e.String())
	}
	apiErr := model.NewInvalidCVDataError(strings.Join(msgs, "; "))
	apiErr.Field = "cvData." + errs[0].Field()
	return apiErr
}

func subscriptionContext(sub *model.BillingSubscription) SubscriptionContext {
	if sub == nil {
		return SubscriptionContext{Plan: "free", Status: model.SubscriptionStatusNone}
	}
	return SubscriptionContext{Plan: sub.Plan, Status: sub.Status, IsActive: sub.IsActive()}
}

// DecodeEntities は保存済みドキュメントの実体参照をデコードする。
// 以前のバージョンはエスケープ済みの文字列を保存していたため、読み出し時に戻す。
func DecodeEntities(doc model.CVDocument) model.CVDocument {
	out := model.CVDocument{
		Headline:       html.UnescapeString(doc.Headline),
		Summary:        html.UnescapeString(doc.Summary),
		Experience:     make([]model.Experience, len(doc.Experience)),
		Education:      make([]model.Education, len(doc.Education)),
		Skills:         decodeAll(doc.Skills),
		Certifications: make([]model.Certification, len(doc.Certifications)),
		Languages:      decodeAll(doc.Languages),
	}
	for i, e := range doc.Experience {
		out.Experience[i] = model.Experience{
			Title:       html.UnescapeString(e.Title),
			Company:     html.UnescapeString(e.Company),
			Period:      html.UnescapeString(e.Period),
			Description: html.UnescapeString(e.Description),
		}
	}
	for i, e := range doc.Education {
		out.Education[i] = model.Education{
			Institution: html.UnescapeString(e.Institution),
			Degree:      html.UnescapeString(e.Degree),
			Period:      html.UnescapeString(e.Period),
			Description: html.UnescapeString(e.Description),
		}
	}
	for i, c := range doc.Certifications {
		out.Certifications[i] = model.Certification{
			Name:   html.UnescapeString(c.Name),
			Issuer: html.UnescapeString(c.Issuer),
			Year:   html.UnescapeString(c.Year),
		}
	}
	return out
}

func decodeAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = html.UnescapeString(v)
	}
	return out
}

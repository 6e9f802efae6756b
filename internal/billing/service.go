package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/cvbuilder/internal/metrics"
	"github.com/hitoshi/cvbuilder/internal/model"
	"github.com/hitoshi/cvbuilder/internal/repository"
)

// EventPaymentIntentSucceeded は支払い完了イベントの種別。
const EventPaymentIntentSucceeded = "payment_intent.succeeded"

// defaultPlan はメタデータにプランがない場合に付与するプラン名。
const defaultPlan = "pro"

// Webhook処理結果のメトリクスラベル。
const (
	OutcomeApplied   = "applied"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Config はWebhook検証の設定。
type Config struct {
	WebhookSecret string
	Tolerance     time.Duration
}

// Service は課金Webhookのサービス層。
type Service struct {
	repo    repository.BillingRepository
	config  Config
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.BillingRepository, config Config, collector metrics.MetricsCollector) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{repo: repo, config: config, metrics: collector, now: time.Now}
}

type event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type paymentIntent struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

// HandleWebhook は署名を検証してからイベントを処理し、処理結果のラベルを返す。
// 同じイベントIDの再送は何もせずOutcomeDuplicateになる。
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (string, error) {
	if err := VerifySignature(payload, signature, s.config.WebhookSecret, s.config.Tolerance, s.now()); err != nil {
		s.metrics.RecordWebhookEvent("unknown", OutcomeRejected)
		slog.Warn("webhook signature rejected",
			slog.String("op", "billing.webhook"),
			slog.String("reason", err.Error()),
		)
		return OutcomeRejected, model.NewWebhookSignatureError(err.Error())
	}

	var ev event
	if err := json.Unmarshal(payload, &ev); err != nil || strings.TrimSpace(ev.ID) == "" {
		s.metrics.RecordWebhookEvent("unknown", OutcomeRejected)
		return OutcomeRejected, model.NewValidationError("body", "is not a valid event")
	}

	outcome, err := s.apply(ctx, ev)
	if err != nil {
		s.metrics.RecordWebhookEvent(ev.Type, OutcomeFailed)
		slog.Error("webhook processing failed",
			slog.String("op", "billing.webhook"),
			slog.String("event_id", ev.ID),
			slog.String("event_type", ev.Type),
			slog.String("kind", repository.KindOf(err).String()),
			slog.String("code", repository.CodeOf(err)),
			slog.String("error", err.Error()),
		)
		return OutcomeFailed, err
	}

	s.metrics.RecordWebhookEvent(ev.Type, outcome)
	slog.Info("webhook processed",
		slog.String("op", "billing.webhook"),
		slog.String("event_id", ev.ID),
		slog.String("event_type", ev.Type),
		slog.String("outcome", outcome),
	)
	return outcome, nil
}

func (s *Service) apply(ctx context.Context, ev event) (string, error) {
	record := repository.WebhookEvent{ID: ev.ID, Type: ev.Type, ReceivedAt: s.now()}

	if ev.Type != EventPaymentIntentSucceeded {
		fresh, err := s.repo.RecordEvent(ctx, record)
		if err != nil {
			return "", err
		}
		if !fresh {
			return OutcomeDuplicate, nil
		}
		return OutcomeIgnored, nil
	}

	var pi paymentIntent
	if err := json.Unmarshal(ev.Data.Object, &pi); err != nil {
		return "", model.NewValidationError("data.object", "is not a payment intent")
	}
	userID := strings.TrimSpace(pi.Metadata["user_id"])
	if userID == "" {
		return "", model.NewValidationError("data.object.metadata.user_id", "is required")
	}
	plan := strings.TrimSpace(pi.Metadata["plan"])
	if plan == "" {
		plan = defaultPlan
	}

	sub := &model.BillingSubscription{
		UserID:          userID,
		Plan:            plan,
		Status:          model.SubscriptionStatusActive,
		PaymentIntentID: pi.ID,
		UpdatedAt:       record.ReceivedAt,
	}
	fresh, err := s.repo.ApplyPaymentSucceeded(ctx, record, sub)
	if err != nil {
		return "", fmt.Errorf("failed to apply payment: %w", err)
	}
	if !fresh {
		return OutcomeDuplicate, nil
	}
	return OutcomeApplied, nil
}

package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/cvbuilder/internal/metrics"
	"github.com/hitoshi/cvbuilder/internal/model"
	"github.com/hitoshi/cvbuilder/internal/repository"
)

const secret = "whsec_test"

// memBillingRepo はイベントIDの一意性を再現するインメモリ実装。
type memBillingRepo struct {
	repository.BillingRepository
	mu     sync.Mutex
	events map[string]repository.WebhookEvent
	subs   map[string]model.BillingSubscription
	err    error
}

func newMemRepo() *memBillingRepo {
	return &memBillingRepo{
		events: map[string]repository.WebhookEvent{},
		subs:   map[string]model.BillingSubscription{},
	}
}

func (m *memBillingRepo) RecordEvent(_ context.Context, ev repository.WebhookEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if _, ok := m.events[ev.ID]; ok {
		return false, nil
	}
	m.events[ev.ID] = ev
	return true, nil
}

func (m *memBillingRepo) ApplyPaymentSucceeded(ctx context.Context, ev repository.WebhookEvent, sub *model.BillingSubscription) (bool, error) {
	fresh, err := m.RecordEvent(ctx, ev)
	if err != nil || !fresh {
		return fresh, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.UserID] = *sub
	return true, nil
}

type webhookRecorder struct {
	metrics.Nop
	outcomes []string
}

func (r *webhookRecorder) RecordWebhookEvent(_, outcome string) {
	r.outcomes = append(r.outcomes, outcome)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(repo repository.BillingRepository, rec metrics.MetricsCollector) *Service {
	svc := NewService(repo, Config{WebhookSecret: secret, Tolerance: 5 * time.Minute}, rec)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

const succeeded = `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","metadata":{"user_id":"u1","plan":"premium"}}}}`

func TestHandleWebhook_PaymentSucceeded(t *testing.T) {
	repo := newMemRepo()
	rec := &webhookRecorder{}
	svc := newTestService(repo, rec)

	payload := []byte(succeeded)
	outcome, err := svc.HandleWebhook(context.Background(), payload, SignPayload(payload, secret, fixedNow))
	if err != nil {
		t.Fatalf("HandleWebhook returned error: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeApplied)
	}

	sub, ok := repo.subs["u1"]
	if !ok {
		t.Fatal("subscription was not stored")
	}
	if !sub.IsActive() || sub.Plan != "premium" || sub.PaymentIntentID != "pi_1" {
		t.Errorf("subscription = %+v", sub)
	}
}

func TestHandleWebhook_DuplicateDelivery(t *testing.T) {
	repo := newMemRepo()
	rec := &webhookRecorder{}
	svc := newTestService(repo, rec)

	payload := []byte(succeeded)
	sig := SignPayload(payload, secret, fixedNow)
	if _, err := svc.HandleWebhook(context.Background(), payload, sig); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	repo.subs["u1"] = model.BillingSubscription{UserID: "u1", Status: model.SubscriptionStatusNone}

	outcome, err := svc.HandleWebhook(context.Background(), payload, sig)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if outcome != OutcomeDuplicate {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeDuplicate)
	}
	if repo.subs["u1"].Status != model.SubscriptionStatusNone {
		t.Error("duplicate delivery must not modify the subscription")
	}
	if len(rec.outcomes) != 2 || rec.outcomes[1] != OutcomeDuplicate {
		t.Errorf("metrics = %v", rec.outcomes)
	}
}

func TestHandleWebhook_OtherEventsAreRecordedOnly(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, nil)

	payload := []byte(`{"id":"evt_2","type":"charge.refunded","data":{"object":{}}}`)
	outcome, err := svc.HandleWebhook(context.Background(), payload, SignPayload(payload, secret, fixedNow))
	if err != nil {
		t.Fatalf("HandleWebhook returned error: %v", err)
	}
	if outcome != OutcomeIgnored {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeIgnored)
	}
	if _, ok := repo.events["evt_2"]; !ok {
		t.Error("event id should be recorded")
	}
	if len(repo.subs) != 0 {
		t.Error("subscriptions must not change")
	}
}

func TestHandleWebhook_RejectsBadSignatures(t *testing.T) {
	payload := []byte(succeeded)

	tests := []struct {
		name string
		sig  string
	}{
		{"missing", ""},
		{"wrong secret", SignPayload(payload, "other", fixedNow)},
		{"too old", SignPayload(payload, secret, fixedNow.Add(-10*time.Minute))},
		{"garbage", "nonsense"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			rec := &webhookRecorder{}

			outcome, err := newTestService(repo, rec).HandleWebhook(context.Background(), payload, tt.sig)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeWebhookSignature {
				t.Fatalf("err = %v, want signature error", err)
			}
			if outcome != OutcomeRejected {
				t.Errorf("outcome = %q", outcome)
			}
			if len(repo.events) != 0 {
				t.Error("rejected webhook must have no side effects")
			}
		})
	}
}

func TestHandleWebhook_TamperedBody(t *testing.T) {
	payload := []byte(succeeded)
	sig := SignPayload(payload, secret, fixedNow)
	tampered := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","metadata":{"user_id":"attacker"}}}}`)

	_, err := newTestService(newMemRepo(), nil).HandleWebhook(context.Background(), tampered, sig)
	if err == nil {
		t.Fatal("tampered body must be rejected")
	}
}

func TestHandleWebhook_InvalidEvents(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `not json`},
		{"missing id", `{"type":"payment_intent.succeeded"}`},
		{"missing user id", `{"id":"evt_3","type":"payment_intent.succeeded","data":{"object":{"id":"pi_3","metadata":{}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := []byte(tt.payload)
			_, err := newTestService(newMemRepo(), nil).HandleWebhook(context.Background(), payload, SignPayload(payload, secret, fixedNow))
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
				t.Errorf("err = %v, want validation error", err)
			}
		})
	}
}

func TestHandleWebhook_BackendFailure(t *testing.T) {
	repo := newMemRepo()
	repo.err = &repository.BackendError{Kind: repository.KindUnavailable, Op: "billing", Message: "down"}
	rec := &webhookRecorder{}

	payload := []byte(succeeded)
	outcome, err := newTestService(repo, rec).HandleWebhook(context.Background(), payload, SignPayload(payload, secret, fixedNow))
	if err == nil {
		t.Fatal("expected error")
	}
	if outcome != OutcomeFailed {
		t.Errorf("outcome = %q", outcome)
	}
	if repository.KindOf(err) != repository.KindUnavailable {
		t.Errorf("kind = %v", repository.KindOf(err))
	}
}

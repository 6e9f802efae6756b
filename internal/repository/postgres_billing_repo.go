package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/cvbuilder/internal/model"
)

// PostgresBillingRepo はPostgreSQLを使用した課金リポジトリ。
type PostgresBillingRepo struct {
	db *sql.DB
}

// NewPostgresBillingRepo はPostgresBillingRepoを生成する。
func NewPostgresBillingRepo(db *sql.DB) *PostgresBillingRepo {
	return &PostgresBillingRepo{db: db}
}

// FindByUserID はユーザーの課金状態を取得する。存在しない場合はnilを返す。
func (r *PostgresBillingRepo) FindByUserID(ctx context.Context, userID string) (*model.BillingSubscription, error) {
	s := &model.BillingSubscription{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, plan, status, payment_intent_id, updated_at
		 FROM billing_subscriptions WHERE user_id = $1`,
		userID,
	).Scan(&s.UserID, &s.Plan, &s.Status, &s.PaymentIntentID, &s.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, Classify("billing.find_by_user", err)
	}
	return s, nil
}

// insertEvent はイベントIDを記録する。既に記録済みの場合はfalseを返す。
func insertEvent(ctx context.Context, exec execer, event WebhookEvent) (bool, error) {
	result, err := exec.ExecContext(ctx,
		`INSERT INTO webhook_events (id, type, received_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		event.ID, event.Type, event.ReceivedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ApplyPaymentSucceeded はイベント記録とサブスクリプション有効化を同一トランザクションで行う。
func (r *PostgresBillingRepo) ApplyPaymentSucceeded(ctx context.Context, event WebhookEvent, sub *model.BillingSubscription) (bool, error) {
	var fresh bool
	err := withTx(ctx, r.db, "billing.apply_payment_succeeded", func(tx *sql.Tx) error {
		var err error
		if fresh, err = insertEvent(ctx, tx, event); err != nil || !fresh {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO billing_subscriptions (user_id, plan, status, payment_intent_id, updated_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (user_id) DO UPDATE
			 SET plan = EXCLUDED.plan,
			     status = EXCLUDED.status,
			     payment_intent_id = EXCLUDED.payment_intent_id,
			     updated_at = EXCLUDED.updated_at`,
			sub.UserID, sub.Plan, sub.Status, sub.PaymentIntentID, sub.UpdatedAt,
		)
		return err
	})
	if err != nil {
		return false, err
	}
	return fresh, nil
}

// RecordEvent は状態変更を伴わないイベントを記録する。
func (r *PostgresBillingRepo) RecordEvent(ctx context.Context, event WebhookEvent) (bool, error) {
	fresh, err := insertEvent(ctx, r.db, event)
	if err != nil {
		return false, Classify("billing.record_event", err)
	}
	return fresh, nil
}

// DeleteEventsBefore は古いイベント記録を削除する。
func (r *PostgresBillingRepo) DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE received_at < $1`, before)
	if err != nil {
		return 0, Classify("billing.delete_events", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, Classify("billing.delete_events", err)
	}
	return n, nil
}

var _ BillingRepository = (*PostgresBillingRepo)(nil)

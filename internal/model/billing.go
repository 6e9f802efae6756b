package model

import "time"

// SubscriptionStatus は課金サブスクリプションの状態を表す。
type SubscriptionStatus string

const (
	// SubscriptionStatusNone は未課金状態。
	SubscriptionStatusNone SubscriptionStatus = "none"
	// SubscriptionStatusActive は支払い済みの有効状態。
	SubscriptionStatusActive SubscriptionStatus = "active"
)

// BillingSubscription はユーザーの課金状態を表す。
type BillingSubscription struct {
	UserID          string
	Plan            string
	Status          SubscriptionStatus
	PaymentIntentID string
	UpdatedAt       time.Time
}

// IsActive は有効な課金状態かどうかを返す。
func (s *BillingSubscription) IsActive() bool {
	return s != nil && s.Status == SubscriptionStatusActive
}

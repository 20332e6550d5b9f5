package models

import "time"

// WebhookSubscription mirrors the single push subscription registered
// with Strava. The provider allows exactly one per application.
type WebhookSubscription struct {
	SubscriptionID int64 `gorm:"primaryKey"`
	CallbackURL    string
	VerifyToken    string
	CreatedAt      time.Time
}

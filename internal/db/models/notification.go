package models

import "time"

// ActivityNotification records one processed activity per user. The
// composite unique index is the durability point for webhook dedup:
// redelivery of the same create event collapses against it, across
// restarts and across process instances.
type ActivityNotification struct {
	ID               string `gorm:"primaryKey"` // UUID
	UserID           string `gorm:"uniqueIndex:idx_user_activity"`
	StravaActivityID int64  `gorm:"uniqueIndex:idx_user_activity"`
	ActivityType     string
	ActivityName     string
	Summary          string // derived summary JSON
	NotificationSent bool   `gorm:"default:false"`
	SentAt           *time.Time
	CreatedAt        time.Time
}

// DispatchLog is an append-only record of Poke dispatch attempts,
// successful or not.
type DispatchLog struct {
	ID               string `gorm:"primaryKey"` // UUID
	UserID           string `gorm:"index"`
	StravaActivityID int64
	Message          string
	ResponseReceived bool
	Error            string
	SentAt           time.Time
}

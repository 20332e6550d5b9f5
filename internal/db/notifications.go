package db

import (
	"errors"
	"strings"
	"time"

	"github.com/joltfit/strava-bridge/internal/db/models"
	"gorm.io/gorm"
)

// NotificationStore persists ActivityNotification rows. The composite
// unique index on (user_id, strava_activity_id) is the storage-level
// dedup point for at-least-once webhook delivery.
type NotificationStore struct {
	db *gorm.DB
}

// NewNotificationStore creates a notification store backed by the given DB.
func NewNotificationStore(db *gorm.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// Find returns the notification for (user, activity), or nil if none.
func (s *NotificationStore) Find(userID string, activityID int64) (*models.ActivityNotification, error) {
	var n models.ActivityNotification
	err := s.db.Where("user_id = ? AND strava_activity_id = ?", userID, activityID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Create inserts a notification row. A unique-index violation surfaces
// as IsDuplicate(err) == true.
func (s *NotificationStore) Create(n *models.ActivityNotification) error {
	return s.db.Create(n).Error
}

// MarkSent records a successful dispatch against the notification.
func (s *NotificationStore) MarkSent(id string, at time.Time) error {
	return s.db.Model(&models.ActivityNotification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"notification_sent": true,
			"sent_at":           at,
		}).Error
}

// IsDuplicate reports whether err is a unique-constraint violation from
// a racing duplicate insert.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

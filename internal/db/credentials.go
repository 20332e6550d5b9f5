package db

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/joltfit/strava-bridge/internal/db/models"
	"gorm.io/gorm"
)

// ErrNoCredential is returned when a user has no active credential row.
var ErrNoCredential = errors.New("no active credential")

// CredentialStore is the single mutation path for Credential rows. All
// token writes funnel through it so the per-user refresh serialization
// in the token manager covers every mutation.
type CredentialStore struct {
	db *gorm.DB
}

// NewCredentialStore creates a credential store backed by the given DB.
func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// UpsertParams carries the fields persisted on OAuth authorization.
type UpsertParams struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	AthleteID    int64
	AthleteData  string
	Scopes       string
}

// Upsert creates or replaces the credential for a user. An existing row
// keeps its identity; reconnecting reactivates a deactivated credential.
func (s *CredentialStore) Upsert(p UpsertParams) (*models.Credential, error) {
	var cred models.Credential
	err := s.db.Where("user_id = ?", p.UserID).First(&cred).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		cred = models.Credential{ID: uuid.New().String(), UserID: p.UserID}
	}

	cred.AccessToken = p.AccessToken
	cred.RefreshToken = p.RefreshToken
	cred.ExpiresAt = p.ExpiresAt
	cred.AthleteID = p.AthleteID
	cred.AthleteData = p.AthleteData
	cred.Scopes = p.Scopes
	cred.IsActive = true

	if err := s.db.Save(&cred).Error; err != nil {
		return nil, err
	}
	return &cred, nil
}

// GetByUserID returns the active credential for a user.
func (s *CredentialStore) GetByUserID(userID string) (*models.Credential, error) {
	var cred models.Credential
	err := s.db.Where("user_id = ? AND is_active = ?", userID, true).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoCredential
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// GetByAthleteID resolves a Strava athlete ID to the active credential,
// used by the webhook gateway to map owner_id to an internal user.
func (s *CredentialStore) GetByAthleteID(athleteID int64) (*models.Credential, error) {
	var cred models.Credential
	err := s.db.Where("athlete_id = ? AND is_active = ?", athleteID, true).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoCredential
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// SaveRefreshed atomically replaces the token triple after a refresh
// exchange. The refresh token is whatever the provider returned, never
// the one we sent.
func (s *CredentialStore) SaveRefreshed(userID, accessToken, refreshToken string, expiresAt time.Time) error {
	return s.db.Model(&models.Credential{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_at":    expiresAt,
			"is_active":     true,
		}).Error
}

// Deactivate marks a credential inactive. Used on irrecoverable refresh
// failure and on athlete deauthorization; the row is kept so the user
// can reconnect.
func (s *CredentialStore) Deactivate(userID string) error {
	return s.db.Model(&models.Credential{}).
		Where("user_id = ?", userID).
		Update("is_active", false).Error
}

// AdvanceLastSeenActivity bumps last_seen_activity_id, only ever
// forward. The SQL guard keeps the advance monotonic under reordered
// webhook delivery.
func (s *CredentialStore) AdvanceLastSeenActivity(userID string, activityID int64) error {
	return s.db.Model(&models.Credential{}).
		Where("user_id = ? AND (last_seen_activity_id IS NULL OR last_seen_activity_id < ?)", userID, activityID).
		Update("last_seen_activity_id", activityID).Error
}

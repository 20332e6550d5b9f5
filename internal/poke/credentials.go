package poke

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/joltfit/strava-bridge/internal/db/models"
	"gorm.io/gorm"
)

// CredentialStore manages the optional per-user Poke API keys.
type CredentialStore struct {
	db *gorm.DB
}

// NewCredentialStore creates a Poke credential store.
func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// GetAPIKey returns the user's active Poke key, or "" if none is
// configured. A missing key is the normal "no notification" case, not
// an error.
func (s *CredentialStore) GetAPIKey(userID string) (string, error) {
	var cred models.PokeCredential
	err := s.db.Where("user_id = ? AND is_active = ?", userID, true).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return cred.APIKey, nil
}

// StoreAPIKey saves or replaces the user's Poke key, reactivating a
// previously removed one.
func (s *CredentialStore) StoreAPIKey(userID, apiKey string) error {
	var cred models.PokeCredential
	err := s.db.Where("user_id = ?", userID).First(&cred).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		cred = models.PokeCredential{ID: uuid.New().String(), UserID: userID}
	}
	cred.APIKey = apiKey
	cred.IsActive = true
	return s.db.Save(&cred).Error
}

// Remove deactivates the user's Poke key.
func (s *CredentialStore) Remove(userID string) error {
	return s.db.Model(&models.PokeCredential{}).
		Where("user_id = ?", userID).
		Update("is_active", false).Error
}

func (s *CredentialStore) touchLastUsed(userID string) {
	s.db.Model(&models.PokeCredential{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("last_used_at", time.Now())
}

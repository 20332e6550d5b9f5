package models

import "time"

// Credential stores the Strava OAuth token set for one user.
// At most one active row exists per user; every refresh replaces the
// three token fields together.
type Credential struct {
	ID                 string `gorm:"primaryKey"` // UUID
	UserID             string `gorm:"uniqueIndex"`
	AccessToken        string
	RefreshToken       string
	ExpiresAt          time.Time
	AthleteID          int64  `gorm:"index"`
	AthleteData        string // JSON blob returned by the token exchange
	Scopes             string // comma-joined granted scopes
	LastSeenActivityID *int64 // monotonic, secondary dedup aid for polling
	IsActive           bool   `gorm:"default:true"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PokeCredential stores the optional per-user bearer key for the Poke
// messaging service. Absence simply means "no notification configured".
type PokeCredential struct {
	ID         string `gorm:"primaryKey"` // UUID
	UserID     string `gorm:"uniqueIndex"`
	APIKey     string
	IsActive   bool `gorm:"default:true"`
	LastUsedAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

package db

import (
	"crypto/rand"
	"encoding/hex"
	"log"

	"github.com/glebarez/sqlite"
	"github.com/joltfit/strava-bridge/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB initializes the SQLite database connection and runs migrations.
func InitDB(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	// Auto-migrate all models
	if err := db.AutoMigrate(
		&models.Credential{},
		&models.PokeCredential{},
		&models.ActivityNotification{},
		&models.DispatchLog{},
		&models.WebhookSubscription{},
		&models.Config{},
	); err != nil {
		return nil, err
	}

	// Ensure admin key exists (generate on first run)
	ensureAdminKey(db)

	return db, nil
}

// ensureAdminKey generates the operator API key if not exists
func ensureAdminKey(db *gorm.DB) {
	var config models.Config
	result := db.Where("key = ?", "admin_key").First(&config)

	if result.Error != nil {
		// Generate new admin key: jb-<32 hex chars>
		keyBytes := make([]byte, 16)
		rand.Read(keyBytes)
		adminKey := "jb-" + hex.EncodeToString(keyBytes)

		db.Create(&models.Config{
			Key:   "admin_key",
			Value: adminKey,
		})
		log.Printf("🔑 Generated new admin key: %s", adminKey)
	}
}

// GetAdminKey retrieves the operator API key from database
func GetAdminKey(db *gorm.DB) string {
	var config models.Config
	db.Where("key = ?", "admin_key").First(&config)
	return config.Value
}

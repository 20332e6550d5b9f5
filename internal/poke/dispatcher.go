package poke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/joltfit/strava-bridge/internal/db/models"
	"github.com/joltfit/strava-bridge/internal/strava"
	"gorm.io/gorm"
)

// DefaultInboundURL is Poke's inbound message endpoint.
const DefaultInboundURL = "https://poke.com/api/v1/inbound-sms/webhook"

const dispatchTimeout = 10 * time.Second

// DeliveryOutcome describes one best-effort dispatch. Failures are
// recorded here, never returned as errors that would undo processing.
type DeliveryOutcome struct {
	Attempted bool
	Accepted  bool
	Err       error
}

// Dispatcher sends best-effort messages to users via the Poke API.
// Every attempt is appended to the dispatch log, successful or not.
type Dispatcher struct {
	httpClient *http.Client
	creds      *CredentialStore
	db         *gorm.DB

	// InboundURL is overridable for tests.
	InboundURL string
}

// NewDispatcher creates a Poke dispatcher over the given DB.
func NewDispatcher(gdb *gorm.DB) *Dispatcher {
	return &Dispatcher{
		httpClient: &http.Client{Timeout: dispatchTimeout},
		creds:      NewCredentialStore(gdb),
		db:         gdb,
		InboundURL: DefaultInboundURL,
	}
}

// Credentials exposes the underlying key store for the admin surface.
func (d *Dispatcher) Credentials() *CredentialStore {
	return d.creds
}

// SendRunCompletion dispatches the post-run message for an activity.
func (d *Dispatcher) SendRunCompletion(ctx context.Context, userID string, activity *strava.Activity) DeliveryOutcome {
	return d.Send(ctx, userID, activity.ID, BuildRunMessage(activity))
}

// Send delivers a message to the user's Poke inbox. No configured key
// means no attempt; that is not a failure.
func (d *Dispatcher) Send(ctx context.Context, userID string, activityID int64, message string) DeliveryOutcome {
	apiKey, err := d.creds.GetAPIKey(userID)
	if err != nil {
		return DeliveryOutcome{Err: fmt.Errorf("load poke key: %w", err)}
	}
	if apiKey == "" {
		log.Printf("📭 No Poke key for user %s, skipping dispatch", userID)
		return DeliveryOutcome{}
	}

	outcome := DeliveryOutcome{Attempted: true}
	outcome.Accepted, outcome.Err = d.post(ctx, apiKey, message)

	if outcome.Accepted {
		d.creds.touchLastUsed(userID)
		log.Printf("✅ Poke message dispatched to user %s for activity %d", userID, activityID)
	} else {
		log.Printf("❌ Poke dispatch failed for user %s: %v", userID, outcome.Err)
	}

	d.appendLog(userID, activityID, message, outcome)
	return outcome
}

func (d *Dispatcher) post(ctx context.Context, apiKey, message string) (bool, error) {
	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.InboundURL, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("poke api status %d", resp.StatusCode)
	}
	// 200 means the message was accepted, not that it was delivered.
	return true, nil
}

func (d *Dispatcher) appendLog(userID string, activityID int64, message string, outcome DeliveryOutcome) {
	entry := models.DispatchLog{
		ID:               uuid.New().String(),
		UserID:           userID,
		StravaActivityID: activityID,
		Message:          message,
		ResponseReceived: outcome.Accepted,
		SentAt:           time.Now(),
	}
	if outcome.Err != nil {
		entry.Error = outcome.Err.Error()
	}
	if err := d.db.Create(&entry).Error; err != nil {
		log.Printf("⚠️ Failed to record dispatch log: %v", err)
	}
}

package webhook

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/joltfit/strava-bridge/internal/db/models"
	"github.com/joltfit/strava-bridge/internal/strava"
	"gorm.io/gorm"
)

// ErrSubscriptionExists is returned when creating a subscription while
// one is already active. Strava allows exactly one per application.
var ErrSubscriptionExists = errors.New("webhook: a subscription already exists")

type subscriptionAPI interface {
	CreateSubscription(ctx context.Context, callbackURL, verifyToken string) (*strava.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]strava.Subscription, error)
	DeleteSubscription(ctx context.Context, subscriptionID int64) error
}

// SubscriptionManager administers the single provider-side push
// subscription and keeps a local mirror row. Out-of-band surface only,
// never on the event hot path.
type SubscriptionManager struct {
	db          *gorm.DB
	client      subscriptionAPI
	verifyToken string
}

// NewSubscriptionManager creates a subscription manager.
func NewSubscriptionManager(gdb *gorm.DB, client subscriptionAPI, verifyToken string) *SubscriptionManager {
	return &SubscriptionManager{db: gdb, client: client, verifyToken: verifyToken}
}

// Status reports the local mirror and the provider-side list.
type Status struct {
	Local  *models.WebhookSubscription `json:"local"`
	Remote []strava.Subscription       `json:"remote"`
}

// Create registers the callback URL with Strava. Idempotence guard:
// creation refuses when either the local mirror or the provider already
// holds a subscription.
func (m *SubscriptionManager) Create(ctx context.Context, callbackURL string) (*models.WebhookSubscription, error) {
	var existing models.WebhookSubscription
	if err := m.db.First(&existing).Error; err == nil {
		return nil, fmt.Errorf("%w: id %d", ErrSubscriptionExists, existing.SubscriptionID)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	remote, err := m.client.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("check provider subscriptions: %w", err)
	}
	if len(remote) > 0 {
		return nil, fmt.Errorf("%w: provider reports id %d", ErrSubscriptionExists, remote[0].ID)
	}

	sub, err := m.client.CreateSubscription(ctx, callbackURL, m.verifyToken)
	if err != nil {
		return nil, err
	}

	mirror := models.WebhookSubscription{
		SubscriptionID: sub.ID,
		CallbackURL:    callbackURL,
		VerifyToken:    m.verifyToken,
	}
	if err := m.db.Create(&mirror).Error; err != nil {
		return nil, fmt.Errorf("persist subscription mirror: %w", err)
	}

	log.Printf("✅ Webhook subscription %d created for %s", sub.ID, callbackURL)
	return &mirror, nil
}

// GetStatus returns the current local and provider-side subscription
// state.
func (m *SubscriptionManager) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{}

	var local models.WebhookSubscription
	err := m.db.First(&local).Error
	if err == nil {
		status.Local = &local
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	remote, err := m.client.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	status.Remote = remote
	return status, nil
}

// Delete removes the subscription from the provider and clears the
// local mirror.
func (m *SubscriptionManager) Delete(ctx context.Context, subscriptionID int64) error {
	if err := m.client.DeleteSubscription(ctx, subscriptionID); err != nil {
		return err
	}
	if err := m.db.Where("subscription_id = ?", subscriptionID).
		Delete(&models.WebhookSubscription{}).Error; err != nil {
		return fmt.Errorf("clear subscription mirror: %w", err)
	}
	log.Printf("🗑️ Webhook subscription %d deleted", subscriptionID)
	return nil
}

package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/joltfit/strava-bridge/internal/auth/token"
	"github.com/joltfit/strava-bridge/internal/db"
	"github.com/joltfit/strava-bridge/internal/db/models"
	"github.com/joltfit/strava-bridge/internal/poke"
	"github.com/joltfit/strava-bridge/internal/strava"
)

// Status classifies the outcome of processing one activity event.
type Status string

const (
	StatusProcessed Status = "processed"
	// StatusDuplicate is a normal no-op: the activity was already
	// processed for this user.
	StatusDuplicate         Status = "duplicate"
	StatusNotConnected      Status = "not_connected"
	StatusRefreshFailed     Status = "refresh_failed"
	StatusFetchFailed       Status = "fetch_failed"
	StatusMalformedActivity Status = "malformed_activity"
)

// Result reports what Process did with an event.
type Result struct {
	Status            Status
	NotificationID    string
	Summary           *Summary
	DispatchAttempted bool
}

type tokenSource interface {
	GetValidToken(ctx context.Context, userID string) (string, error)
}

type activityFetcher interface {
	FetchActivity(ctx context.Context, activityID int64, accessToken string) (*strava.Activity, error)
}

type notifier interface {
	SendRunCompletion(ctx context.Context, userID string, activity *strava.Activity) poke.DeliveryOutcome
}

// Processor is the run-completion pipeline: dedup, fetch, summarize,
// persist, dispatch. Safe to run concurrently across users; duplicate
// deliveries for the same activity collapse on the notification store's
// unique index.
type Processor struct {
	creds         *db.CredentialStore
	notifications *db.NotificationStore
	tokens        tokenSource
	provider      activityFetcher
	dispatcher    notifier
}

// New creates an event processor.
func New(creds *db.CredentialStore, notifications *db.NotificationStore, tokens tokenSource, provider activityFetcher, dispatcher notifier) *Processor {
	return &Processor{
		creds:         creds,
		notifications: notifications,
		tokens:        tokens,
		provider:      provider,
		dispatcher:    dispatcher,
	}
}

// Process handles one activity-create event. Once the notification row
// is written the event counts as processed; dispatch failure afterwards
// never rolls that back.
func (p *Processor) Process(ctx context.Context, userID string, activityID int64) (*Result, error) {
	// Webhook delivery is at-least-once; the fast path keeps redelivery
	// cheap, the unique index below makes it correct.
	if existing, err := p.notifications.Find(userID, activityID); err != nil {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	} else if existing != nil {
		log.Printf("🔁 Activity %d already processed for user %s", activityID, userID)
		return &Result{Status: StatusDuplicate, NotificationID: existing.ID}, nil
	}

	accessToken, err := p.tokens.GetValidToken(ctx, userID)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrNotConnected):
			log.Printf("⚠️ Activity %d for user %s dropped: not connected", activityID, userID)
			return &Result{Status: StatusNotConnected}, err
		case errors.Is(err, token.ErrRefreshFailed):
			log.Printf("⚠️ Activity %d for user %s dropped: refresh failed, reconnect required", activityID, userID)
			return &Result{Status: StatusRefreshFailed}, err
		default:
			log.Printf("⚠️ Activity %d for user %s abandoned: %v", activityID, userID, err)
			return &Result{Status: StatusFetchFailed}, err
		}
	}

	activity, err := p.provider.FetchActivity(ctx, activityID, accessToken)
	if err != nil {
		log.Printf("⚠️ Activity %d fetch abandoned for user %s: %v", activityID, userID, err)
		return &Result{Status: StatusFetchFailed}, err
	}

	summary, err := BuildSummary(activity)
	if err != nil {
		log.Printf("⚠️ Activity %d has unusable payload for user %s: %v", activityID, userID, err)
		return &Result{Status: StatusMalformedActivity}, err
	}

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}

	notification := &models.ActivityNotification{
		ID:               uuid.New().String(),
		UserID:           userID,
		StravaActivityID: activityID,
		ActivityType:     activity.Type,
		ActivityName:     activity.Name,
		Summary:          string(summaryJSON),
	}
	if err := p.notifications.Create(notification); err != nil {
		if db.IsDuplicate(err) {
			// A concurrent redelivery won the insert race.
			log.Printf("🔁 Activity %d raced with a duplicate delivery for user %s", activityID, userID)
			return &Result{Status: StatusDuplicate}, nil
		}
		return nil, fmt.Errorf("persist notification: %w", err)
	}

	if err := p.creds.AdvanceLastSeenActivity(userID, activityID); err != nil {
		// Secondary dedup aid only; the notification row already holds.
		log.Printf("⚠️ Failed to advance last seen activity for user %s: %v", userID, err)
	}

	log.Printf("🎯 Run complete processed for user %s: %s (%s)", userID, activity.Name, activity.Type)

	result := &Result{
		Status:         StatusProcessed,
		NotificationID: notification.ID,
		Summary:        summary,
	}

	outcome := p.dispatcher.SendRunCompletion(ctx, userID, activity)
	result.DispatchAttempted = outcome.Attempted
	if outcome.Accepted {
		if err := p.notifications.MarkSent(notification.ID, time.Now()); err != nil {
			log.Printf("⚠️ Failed to mark notification %s sent: %v", notification.ID, err)
		}
	}

	return result, nil
}

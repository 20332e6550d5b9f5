package token

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joltfit/strava-bridge/internal/db"
	"github.com/joltfit/strava-bridge/internal/strava"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrNotConnected means no active credential exists. User-actionable:
	// the account must be (re)connected.
	ErrNotConnected = errors.New("token: user not connected")

	// ErrRefreshFailed means the provider rejected the refresh exchange.
	// The credential has been deactivated; callers must not retry.
	ErrRefreshFailed = errors.New("token: refresh rejected, reconnect required")
)

// RefreshSafetyMargin follows Strava's guidance to refresh tokens that
// expire within one hour.
const RefreshSafetyMargin = time.Hour

// refresher is the slice of the provider client the manager needs.
type refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*strava.TokenResponse, error)
}

// Manager owns the token lifecycle: it hands out currently-valid access
// tokens and transparently refreshes near-expiry ones. Refreshes are
// serialized per user, because Strava rotates the refresh token on every
// exchange and a second concurrent exchange with the stale token fails.
type Manager struct {
	store    *db.CredentialStore
	provider refresher
	group    singleflight.Group
	margin   time.Duration
}

// NewManager creates a token manager over the credential store and
// provider client.
func NewManager(store *db.CredentialStore, provider refresher) *Manager {
	return &Manager{
		store:    store,
		provider: provider,
		margin:   RefreshSafetyMargin,
	}
}

// GetValidToken returns an access token valid for at least the safety
// margin. Tokens already inside the margin are refreshed first;
// concurrent callers for the same user share a single refresh.
func (m *Manager) GetValidToken(ctx context.Context, userID string) (string, error) {
	cred, err := m.store.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, db.ErrNoCredential) {
			return "", ErrNotConnected
		}
		return "", fmt.Errorf("load credential: %w", err)
	}

	if time.Until(cred.ExpiresAt) > m.margin {
		return cred.AccessToken, nil
	}

	v, err, shared := m.group.Do(userID, func() (interface{}, error) {
		return m.refresh(ctx, userID)
	})
	if err != nil {
		return "", err
	}
	if shared {
		log.Printf("🔁 Reused in-flight refresh result for user %s", userID)
	}
	return v.(string), nil
}

// refresh runs inside the singleflight. It re-reads the credential
// first: a caller that waited on an earlier flight arrives here after
// the token was already replaced.
func (m *Manager) refresh(ctx context.Context, userID string) (string, error) {
	cred, err := m.store.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, db.ErrNoCredential) {
			return "", ErrNotConnected
		}
		return "", fmt.Errorf("load credential: %w", err)
	}
	if time.Until(cred.ExpiresAt) > m.margin {
		return cred.AccessToken, nil
	}

	tr, err := m.provider.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		if errors.Is(err, strava.ErrAuthRejected) {
			// Grant is dead. Deactivate so nothing retries until the
			// user reconnects.
			if derr := m.store.Deactivate(userID); derr != nil {
				log.Printf("⚠️ Failed to deactivate credential for user %s: %v", userID, derr)
			}
			log.Printf("🔒 Credential deactivated for user %s, reconnect required", userID)
			return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
		}
		return "", fmt.Errorf("refresh token for user %s: %w", userID, err)
	}

	expiresAt := time.Unix(tr.ExpiresAt, 0)
	if err := m.store.SaveRefreshed(userID, tr.AccessToken, tr.RefreshToken, expiresAt); err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}

	log.Printf("✅ Refreshed token for user %s (expires: %s)", userID, expiresAt.Format(time.RFC3339))
	return tr.AccessToken, nil
}

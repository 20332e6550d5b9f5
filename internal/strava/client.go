package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joltfit/strava-bridge/internal/util"
	"golang.org/x/oauth2"
)

// Error classes for provider calls. Callers decide retry-vs-reconnect
// with errors.Is against these.
var (
	// ErrAuthRejected means the provider rejected our grant. The stored
	// refresh token is dead; the user must reconnect.
	ErrAuthRejected = errors.New("strava: authorization rejected")

	// ErrTransient covers network failures and 5xx responses.
	ErrTransient = errors.New("strava: transient provider error")

	// ErrActivityNotFound is a 404 on the activity detail fetch.
	ErrActivityNotFound = errors.New("strava: activity not found")
)

const (
	fetchAttempts     = 3
	fetchBaseBackoff  = 500 * time.Millisecond
	providerCallLimit = 10 * time.Second
)

// Client talks to the Strava API and token endpoint.
type Client struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string

	// Endpoint overrides for tests; production defaults otherwise.
	AuthorizeURL string
	TokenURL     string
	APIBaseURL   string
}

// NewClient creates a Strava client with bounded call timeouts.
func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: providerCallLimit},
		clientID:     clientID,
		clientSecret: clientSecret,
		AuthorizeURL: DefaultAuthorizeURL,
		TokenURL:     DefaultTokenURL,
		APIBaseURL:   DefaultAPIBaseURL,
	}
}

// ExchangeCode trades an authorization code for a token set. The
// athlete object and granted scope ride along in the token response.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURL string) (*TokenResponse, error) {
	conf := c.OAuthConfig(redirectURL)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			return nil, fmt.Errorf("%w: code exchange: %v", ErrAuthRejected, err)
		}
		return nil, fmt.Errorf("%w: code exchange: %v", ErrTransient, err)
	}

	tr := &TokenResponse{
		TokenType:    tok.TokenType,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry.Unix(),
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		tr.Scope = scope
	}
	if raw := tok.Extra("athlete"); raw != nil {
		// Round-trip through JSON; oauth2 hands extras back untyped.
		if b, err := json.Marshal(raw); err == nil {
			athlete := &Athlete{}
			if json.Unmarshal(b, athlete) == nil {
				tr.Athlete = athlete
			}
		}
	}
	return tr, nil
}

// Refresh exchanges a refresh token for a new token set. Strava rotates
// the refresh token on every exchange, so the caller must persist the
// returned one. The form POST is deliberate: Strava's response carries
// non-standard fields (absolute expires_at) that the oauth2 TokenSource
// machinery would hide, and the token manager owns the retry policy.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build refresh request: %v", ErrTransient, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: refresh: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read refresh response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var tr TokenResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			return nil, fmt.Errorf("%w: decode refresh response: %v", ErrTransient, err)
		}
		return &tr, nil
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnauthorized:
		log.Printf("❌ Token refresh rejected (%d): %s", resp.StatusCode, util.TruncateBytes(body))
		return nil, fmt.Errorf("%w: status %d", ErrAuthRejected, resp.StatusCode)
	default:
		if isPermanentAuthBody(body) {
			return nil, fmt.Errorf("%w: status %d", ErrAuthRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: refresh status %d", ErrTransient, resp.StatusCode)
	}
}

// FetchActivity retrieves the detailed activity payload, retrying a
// bounded number of times on transient failures.
func (c *Client) FetchActivity(ctx context.Context, activityID int64, accessToken string) (*Activity, error) {
	var lastErr error
	backoff := fetchBaseBackoff

	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		activity, err := c.fetchActivityOnce(ctx, activityID, accessToken)
		if err == nil {
			return activity, nil
		}
		if !errors.Is(err, ErrTransient) {
			return nil, err
		}
		lastErr = err

		if attempt < fetchAttempts {
			log.Printf("⏳ Activity %d fetch attempt %d/%d failed, retrying in %s: %v",
				activityID, attempt, fetchAttempts, backoff, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("fetch activity %d: attempts exhausted: %w", activityID, lastErr)
}

func (c *Client) fetchActivityOnce(ctx context.Context, activityID int64, accessToken string) (*Activity, error) {
	endpoint := fmt.Sprintf("%s/activities/%d", c.APIBaseURL, activityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build activity request: %v", ErrTransient, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch activity: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read activity response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var activity Activity
		if err := json.Unmarshal(body, &activity); err != nil {
			return nil, fmt.Errorf("%w: decode activity: %v", ErrTransient, err)
		}
		return &activity, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrActivityNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: activity fetch status %d", ErrTransient, resp.StatusCode)
	default:
		return nil, fmt.Errorf("activity fetch rejected: status %d: %s", resp.StatusCode, util.TruncateBytes(body))
	}
}

// CreateSubscription registers the webhook callback with Strava.
func (c *Client) CreateSubscription(ctx context.Context, callbackURL, verifyToken string) (*Subscription, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"callback_url":  {callbackURL},
		"verify_token":  {verifyToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.APIBaseURL+"/push_subscriptions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: create subscription: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("create subscription: status %d: %s", resp.StatusCode, util.TruncateBytes(body))
	}

	var sub Subscription
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, fmt.Errorf("decode subscription response: %w", err)
	}
	return &sub, nil
}

// ListSubscriptions returns the subscriptions registered for this app.
// Strava allows at most one, but the endpoint returns a list.
func (c *Client) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	endpoint := fmt.Sprintf("%s/push_subscriptions?client_id=%s&client_secret=%s",
		c.APIBaseURL, url.QueryEscape(c.clientID), url.QueryEscape(c.clientSecret))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: list subscriptions: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list subscriptions: status %d: %s", resp.StatusCode, util.TruncateBytes(body))
	}

	var subs []Subscription
	if err := json.Unmarshal(body, &subs); err != nil {
		return nil, fmt.Errorf("decode subscription list: %w", err)
	}
	return subs, nil
}

// DeleteSubscription removes a push subscription by ID.
func (c *Client) DeleteSubscription(ctx context.Context, subscriptionID int64) error {
	endpoint := fmt.Sprintf("%s/push_subscriptions/%d?client_id=%s&client_secret=%s",
		c.APIBaseURL, subscriptionID, url.QueryEscape(c.clientID), url.QueryEscape(c.clientSecret))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: delete subscription: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete subscription %d: status %d: %s", subscriptionID, resp.StatusCode, util.TruncateBytes(body))
	}
	return nil
}

// isPermanentAuthBody detects grant-is-dead responses by body markers,
// for providers that bury the OAuth error under a non-4xx status.
func isPermanentAuthBody(body []byte) bool {
	msg := strings.ToLower(string(body))
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

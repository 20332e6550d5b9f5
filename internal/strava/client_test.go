package strava

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("client-id", "client-secret")
	c.TokenURL = srv.URL + "/oauth/token"
	c.APIBaseURL = srv.URL + "/api/v3"
	return c
}

func TestRefresh_Classification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   error
		wantToken string
	}{
		{
			name:      "success with rotation",
			status:    http.StatusOK,
			body:      `{"access_token":"a2","refresh_token":"r2","expires_at":1893456000}`,
			wantToken: "a2",
		},
		{
			name:    "bad request is permanent",
			status:  http.StatusBadRequest,
			body:    `{"message":"Bad Request"}`,
			wantErr: ErrAuthRejected,
		},
		{
			name:    "unauthorized is permanent",
			status:  http.StatusUnauthorized,
			body:    `{"message":"Authorization Error"}`,
			wantErr: ErrAuthRejected,
		},
		{
			name:    "invalid_grant body under odd status is permanent",
			status:  http.StatusForbidden,
			body:    `{"error":"invalid_grant"}`,
			wantErr: ErrAuthRejected,
		},
		{
			name:    "server error is transient",
			status:  http.StatusBadGateway,
			body:    `upstream unavailable`,
			wantErr: ErrTransient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))

			tr, err := c.Refresh(context.Background(), "r1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("refresh: %v", err)
			}
			if tr.AccessToken != tt.wantToken {
				t.Errorf("access token = %q, want %q", tr.AccessToken, tt.wantToken)
			}
			if tr.RefreshToken != "r2" {
				t.Errorf("rotated refresh token = %q, want r2", tr.RefreshToken)
			}
		})
	}
}

func TestFetchActivity_RetriesTransientThenSucceeds(t *testing.T) {
	var calls int64
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if n := atomic.AddInt64(&calls, 1); n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth header = %q", got)
		}
		json.NewEncoder(w).Encode(Activity{
			ID: 999, Name: "Morning Run", Type: "Run",
			Distance: 5000, MovingTime: 1500, AverageSpeed: 3.33,
		})
	}))

	activity, err := c.FetchActivity(context.Background(), 999, "tok")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if activity.ID != 999 || activity.Name != "Morning Run" {
		t.Errorf("unexpected activity: %+v", activity)
	}
	if got := atomic.LoadInt64(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestFetchActivity_ExhaustsRetries(t *testing.T) {
	var calls int64
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.FetchActivity(context.Background(), 999, "tok")
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("error = %v, want ErrTransient", err)
	}
	if got := atomic.LoadInt64(&calls); got != fetchAttempts {
		t.Errorf("calls = %d, want %d", got, fetchAttempts)
	}
}

func TestFetchActivity_NotFoundIsPermanent(t *testing.T) {
	var calls int64
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.FetchActivity(context.Background(), 999, "tok")
	if !errors.Is(err, ErrActivityNotFound) {
		t.Fatalf("error = %v, want ErrActivityNotFound", err)
	}
	// 404 never retries.
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestFetchActivity_ContextCancelStopsRetries(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.FetchActivity(ctx, 999, "tok")
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("error = %v, want ErrTransient", err)
	}
	// Full backoff schedule is ~1.5s; cancellation must cut it short.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("retries outlived the context: %v", elapsed)
	}
}

func TestCreateAndListSubscriptions(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			if r.Form.Get("callback_url") != "https://example.com/webhook/strava" {
				t.Errorf("callback_url = %q", r.Form.Get("callback_url"))
			}
			if r.Form.Get("verify_token") != "secret" {
				t.Errorf("verify_token = %q", r.Form.Get("verify_token"))
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(Subscription{ID: 7, CallbackURL: r.Form.Get("callback_url")})
		case http.MethodGet:
			json.NewEncoder(w).Encode([]Subscription{{ID: 7}})
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	sub, err := c.CreateSubscription(context.Background(), "https://example.com/webhook/strava", "secret")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sub.ID != 7 {
		t.Errorf("subscription id = %d, want 7", sub.ID)
	}

	subs, err := c.ListSubscriptions(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != 7 {
		t.Errorf("unexpected list: %+v", subs)
	}

	if err := c.DeleteSubscription(context.Background(), 7); err != nil {
		t.Errorf("delete: %v", err)
	}
}

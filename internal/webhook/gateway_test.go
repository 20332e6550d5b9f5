package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/joltfit/strava-bridge/internal/db"
	"github.com/joltfit/strava-bridge/internal/db/models"
	"github.com/joltfit/strava-bridge/internal/processor"
	"gorm.io/gorm"
)

const testVerifyToken = "test-verify-token"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := gdb.AutoMigrate(&models.Credential{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return gdb
}

type recordingProcessor struct {
	mu    sync.Mutex
	calls []processedEvent
}

type processedEvent struct {
	userID     string
	activityID int64
}

func (p *recordingProcessor) Process(ctx context.Context, userID string, activityID int64) (*processor.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, processedEvent{userID: userID, activityID: activityID})
	return &processor.Result{Status: processor.StatusProcessed}, nil
}

func (p *recordingProcessor) snapshot() []processedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]processedEvent, len(p.calls))
	copy(out, p.calls)
	return out
}

func seedAthlete(t *testing.T, creds *db.CredentialStore, userID string, athleteID int64) {
	t.Helper()
	if _, err := creds.Upsert(db.UpsertParams{
		UserID:       userID,
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(6 * time.Hour),
		AthleteID:    athleteID,
	}); err != nil {
		t.Fatalf("seed athlete: %v", err)
	}
}

func postEvent(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/strava", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return body["status"]
}

func TestHandleChallenge(t *testing.T) {
	tests := []struct {
		name       string
		mode       string
		token      string
		challenge  string
		wantStatus int
	}{
		{name: "valid handshake", mode: "subscribe", token: testVerifyToken, challenge: "abc123", wantStatus: http.StatusOK},
		{name: "wrong token", mode: "subscribe", token: "intruder", challenge: "abc123", wantStatus: http.StatusForbidden},
		{name: "wrong mode", mode: "unsubscribe", token: testVerifyToken, challenge: "abc123", wantStatus: http.StatusForbidden},
		{name: "empty challenge", mode: "subscribe", token: testVerifyToken, challenge: "", wantStatus: http.StatusForbidden},
	}

	gateway := NewGateway(db.NewCredentialStore(newTestDB(t)), &recordingProcessor{}, testVerifyToken)
	handler := gateway.HandleChallenge()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := url.Values{}
			q.Set("hub.mode", tt.mode)
			q.Set("hub.verify_token", tt.token)
			q.Set("hub.challenge", tt.challenge)
			req := httptest.NewRequest(http.MethodGet, "/webhook/strava?"+q.Encode(), nil)
			rec := httptest.NewRecorder()
			handler(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				var body map[string]string
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if body["hub.challenge"] != tt.challenge {
					t.Errorf("hub.challenge = %q, want %q", body["hub.challenge"], tt.challenge)
				}
			}
		})
	}
}

func TestHandleEvent_CreateDispatchesToProcessor(t *testing.T) {
	gdb := newTestDB(t)
	creds := db.NewCredentialStore(gdb)
	seedAthlete(t, creds, "user-1", 42)

	proc := &recordingProcessor{}
	gateway := NewGateway(creds, proc, testVerifyToken)

	rec := postEvent(t, gateway.HandleEvent(),
		`{"object_type":"activity","object_id":999,"aspect_type":"create","owner_id":42,"event_time":1700000000}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decodeStatus(t, rec); got != "accepted" {
		t.Fatalf("body status = %q, want accepted", got)
	}

	// Processing happens off the response path.
	gateway.Wait()
	calls := proc.snapshot()
	if len(calls) != 1 {
		t.Fatalf("processor calls = %d, want 1", len(calls))
	}
	if calls[0].userID != "user-1" || calls[0].activityID != 999 {
		t.Errorf("processed %+v, want user-1/999", calls[0])
	}
}

func TestHandleEvent_AlwaysAcknowledges(t *testing.T) {
	gdb := newTestDB(t)
	creds := db.NewCredentialStore(gdb)
	seedAthlete(t, creds, "user-1", 42)

	proc := &recordingProcessor{}
	gateway := NewGateway(creds, proc, testVerifyToken)
	handler := gateway.HandleEvent()

	tests := []struct {
		name       string
		body       string
		wantStatus string
	}{
		{name: "malformed json", body: `{"object_type": 12`, wantStatus: "ignored"},
		{name: "unknown athlete", body: `{"object_type":"activity","object_id":1,"aspect_type":"create","owner_id":777}`, wantStatus: "ignored"},
		{name: "activity update", body: `{"object_type":"activity","object_id":999,"aspect_type":"update","owner_id":42}`, wantStatus: "ignored"},
		{name: "activity delete", body: `{"object_type":"activity","object_id":999,"aspect_type":"delete","owner_id":42}`, wantStatus: "ignored"},
		{name: "unknown object type", body: `{"object_type":"gear","object_id":1,"aspect_type":"create","owner_id":42}`, wantStatus: "ignored"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postEvent(t, handler, tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if got := decodeStatus(t, rec); got != tt.wantStatus {
				t.Errorf("body status = %q, want %q", got, tt.wantStatus)
			}
		})
	}

	gateway.Wait()
	if calls := proc.snapshot(); len(calls) != 0 {
		t.Errorf("processor calls = %d, want 0", len(calls))
	}
}

func TestHandleEvent_AthleteDeauthDeactivatesCredential(t *testing.T) {
	gdb := newTestDB(t)
	creds := db.NewCredentialStore(gdb)
	seedAthlete(t, creds, "user-1", 42)

	gateway := NewGateway(creds, &recordingProcessor{}, testVerifyToken)

	rec := postEvent(t, gateway.HandleEvent(),
		`{"object_type":"athlete","object_id":42,"aspect_type":"update","owner_id":42,"updates":{"authorized":"false"}}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decodeStatus(t, rec); got != "deauthorized" {
		t.Fatalf("body status = %q, want deauthorized", got)
	}

	if _, err := creds.GetByAthleteID(42); !errors.Is(err, db.ErrNoCredential) {
		t.Errorf("credential still active after deauthorization, err = %v", err)
	}

	// A later create event for the same athlete is dropped.
	rec = postEvent(t, gateway.HandleEvent(),
		`{"object_type":"activity","object_id":1000,"aspect_type":"create","owner_id":42}`)
	if got := decodeStatus(t, rec); got != "ignored" {
		t.Errorf("post-deauth event status = %q, want ignored", got)
	}
}

func TestHandleEvent_AthleteUpdateWithoutDeauthIsIgnored(t *testing.T) {
	gdb := newTestDB(t)
	creds := db.NewCredentialStore(gdb)
	seedAthlete(t, creds, "user-1", 42)

	gateway := NewGateway(creds, &recordingProcessor{}, testVerifyToken)

	rec := postEvent(t, gateway.HandleEvent(),
		`{"object_type":"athlete","object_id":42,"aspect_type":"update","owner_id":42,"updates":{"title":"renamed"}}`)

	if got := decodeStatus(t, rec); got != "ignored" {
		t.Fatalf("body status = %q, want ignored", got)
	}
	if _, err := creds.GetByAthleteID(42); err != nil {
		t.Errorf("credential should remain active, err = %v", err)
	}
}

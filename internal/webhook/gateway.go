package webhook

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/joltfit/strava-bridge/internal/db"
	"github.com/joltfit/strava-bridge/internal/logging"
	"github.com/joltfit/strava-bridge/internal/processor"
)

// Event is one webhook delivery from Strava. Exactly one event arrives
// per POST.
type Event struct {
	ObjectType string            `json:"object_type"`
	ObjectID   int64             `json:"object_id"`
	AspectType string            `json:"aspect_type"`
	OwnerID    int64             `json:"owner_id"`
	EventTime  int64             `json:"event_time"`
	Updates    map[string]string `json:"updates,omitempty"`
}

// processTimeout bounds one unit of work; an event is expected to
// finish in low single-digit seconds.
const processTimeout = 30 * time.Second

type eventProcessor interface {
	Process(ctx context.Context, userID string, activityID int64) (*processor.Result, error)
}

// Gateway is the network-facing entry point for Strava webhooks. It
// validates the handshake, acknowledges every event quickly, and hands
// create events to the processor off the response path.
type Gateway struct {
	creds       *db.CredentialStore
	proc        eventProcessor
	verifyToken string

	wg sync.WaitGroup
}

// NewGateway creates a webhook gateway.
func NewGateway(creds *db.CredentialStore, proc eventProcessor, verifyToken string) *Gateway {
	return &Gateway{creds: creds, proc: proc, verifyToken: verifyToken}
}

// Wait blocks until all in-flight event processing has finished. Called
// on shutdown so acknowledged events are not dropped mid-pipeline.
func (g *Gateway) Wait() {
	g.wg.Wait()
}

// HandleChallenge answers Strava's subscription validation GET. The
// challenge is echoed only when the verify token matches.
func (g *Gateway) HandleChallenge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		mode := q.Get("hub.mode")
		challenge := q.Get("hub.challenge")
		verifyToken := q.Get("hub.verify_token")

		if mode != "subscribe" || verifyToken != g.verifyToken || challenge == "" {
			log.Printf("❌ Webhook validation failed: mode=%q token=%q", mode, verifyToken)
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "verification failed"})
			return
		}

		log.Printf("✅ Webhook validation succeeded")
		writeJSON(w, http.StatusOK, map[string]string{"hub.challenge": challenge})
	}
}

// HandleEvent ingests one webhook delivery. It always acknowledges with
// 2xx: Strava retries on non-2xx and a payload we cannot parse today
// will not parse on redelivery either.
func (g *Gateway) HandleEvent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var event Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			log.Printf("⚠️ Malformed webhook payload dropped: %v", err)
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}

		log.Printf("📬 Webhook: %s.%s object=%d owner=%d",
			event.ObjectType, event.AspectType, event.ObjectID, event.OwnerID)

		switch event.ObjectType {
		case "activity":
			g.handleActivityEvent(w, r, event)
		case "athlete":
			g.handleAthleteEvent(w, event)
		default:
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		}
	}
}

func (g *Gateway) handleActivityEvent(w http.ResponseWriter, r *http.Request, event Event) {
	// update/delete carry no destructive sync in this design.
	if event.AspectType != "create" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	cred, err := g.creds.GetByAthleteID(event.OwnerID)
	if err != nil {
		// User disconnected or never connected. Silently acknowledge so
		// Strava does not keep retrying an event we can never route.
		log.Printf("🤷 No active credential for athlete %d, event dropped", event.OwnerID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	requestID := logging.GetRequestID(r.Context())
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		// Detached from the request: the ack must not wait on processing.
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		ctx = logging.WithRequestID(ctx, requestID)

		result, err := g.proc.Process(ctx, cred.UserID, event.ObjectID)
		if err != nil {
			log.Printf("[%s] ⚠️ Event processing for activity %d ended: %v", requestID, event.ObjectID, err)
			return
		}
		log.Printf("[%s] 📦 Activity %d for user %s: %s", requestID, event.ObjectID, cred.UserID, result.Status)
	}()

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (g *Gateway) handleAthleteEvent(w http.ResponseWriter, event Event) {
	// The only athlete event we act on is deauthorization.
	if event.AspectType == "update" && event.Updates["authorized"] == "false" {
		cred, err := g.creds.GetByAthleteID(event.OwnerID)
		if err == nil {
			if err := g.creds.Deactivate(cred.UserID); err != nil {
				log.Printf("⚠️ Failed to deactivate credential for athlete %d: %v", event.OwnerID, err)
			} else {
				log.Printf("🔒 Athlete %d deauthorized, credential deactivated for user %s", event.OwnerID, cred.UserID)
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

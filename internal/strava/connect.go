package strava

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/joltfit/strava-bridge/internal/db"
	"golang.org/x/oauth2"
)

// pendingStates maps CSRF state tokens to the user who initiated the
// connect flow. Entries expire; the flow is expected to finish quickly.
var (
	pendingStates   = map[string]pendingState{}
	pendingStatesMu sync.Mutex
)

type pendingState struct {
	userID  string
	created time.Time
}

const stateTTL = 10 * time.Minute

func newStateToken(userID string) string {
	b := make([]byte, 16)
	rand.Read(b)
	state := hex.EncodeToString(b)

	pendingStatesMu.Lock()
	defer pendingStatesMu.Unlock()
	for token, p := range pendingStates {
		if time.Since(p.created) > stateTTL {
			delete(pendingStates, token)
		}
	}
	pendingStates[state] = pendingState{userID: userID, created: time.Now()}
	return state
}

func takeStateToken(state string) (string, bool) {
	pendingStatesMu.Lock()
	defer pendingStatesMu.Unlock()
	p, ok := pendingStates[state]
	if !ok || time.Since(p.created) > stateTTL {
		return "", false
	}
	delete(pendingStates, state)
	return p.userID, true
}

func callbackRedirectURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/auth/strava/callback", scheme, r.Host)
}

// HandleLogin initiates the Strava OAuth flow by redirecting to the
// consent page. The user to connect is identified by the user_id query
// parameter (the session layer in front of this service supplies it).
func HandleLogin(client *Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "missing user_id", http.StatusBadRequest)
			return
		}

		config := client.OAuthConfig(callbackRedirectURL(r))
		url := config.AuthCodeURL(newStateToken(userID),
			// Strava re-prompts so re-connects always yield fresh scopes.
			oauth2.SetAuthURLParam("approval_prompt", "force"),
		)
		http.Redirect(w, r, url, http.StatusTemporaryRedirect)
	}
}

// HandleCallback processes the OAuth callback from Strava and persists
// the credential.
func HandleCallback(store *db.CredentialStore, client *Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := takeStateToken(r.URL.Query().Get("state"))
		if !ok {
			http.Error(w, "Invalid state token", http.StatusBadRequest)
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "Authorization denied", http.StatusBadRequest)
			return
		}

		token, err := client.ExchangeCode(r.Context(), code, callbackRedirectURL(r))
		if err != nil {
			http.Error(w, fmt.Sprintf("Token exchange failed: %v", err), http.StatusInternalServerError)
			return
		}

		// Strava reports granted scopes on the redirect; the token
		// response only carries them on some flows.
		scope := r.URL.Query().Get("scope")
		if scope == "" {
			scope = token.Scope
		}

		var athleteID int64
		athleteData := ""
		if token.Athlete != nil {
			athleteID = token.Athlete.ID
			if b, err := json.Marshal(token.Athlete); err == nil {
				athleteData = string(b)
			}
		}

		cred, err := store.Upsert(db.UpsertParams{
			UserID:       userID,
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			ExpiresAt:    time.Unix(token.ExpiresAt, 0),
			AthleteID:    athleteID,
			AthleteData:  athleteData,
			Scopes:       scope,
		})
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to save credential: %v", err), http.StatusInternalServerError)
			return
		}

		log.Printf("✅ Strava connected for user %s (athlete %d, scopes: %s)", userID, athleteID, scope)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>Strava Connected</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; background: #1a1a2e; color: #eee; }
		.success { color: #4ade80; }
		code { background: #374151; padding: 2px 6px; border-radius: 4px; color: #fbbf24; }
	</style>
</head>
<body>
	<h1 class="success">✅ Strava Connected!</h1>
	<p><strong>Athlete ID:</strong> <code>%d</code></p>
	<p><strong>Scopes:</strong> <code>%s</code></p>
	<p>New activities will now be processed automatically. You can close this window.</p>
</body>
</html>`, cred.AthleteID, cred.Scopes)
	}
}

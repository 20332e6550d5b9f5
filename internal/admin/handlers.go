// Package admin is the operator surface: manual reprocessing,
// subscription administration, and credential inspection. Privileged
// via the bootstrapped admin key, separate from end-user OAuth.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joltfit/strava-bridge/internal/db"
	"github.com/joltfit/strava-bridge/internal/poke"
	"github.com/joltfit/strava-bridge/internal/processor"
	"github.com/joltfit/strava-bridge/internal/webhook"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// ReprocessHandler triggers manual processing of a given activity.
// POST /admin/reprocess/{activityID}?user_id=...
func ReprocessHandler(proc *processor.Processor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activityID, err := strconv.ParseInt(chi.URLParam(r, "activityID"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid activity id"})
			return
		}
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user_id"})
			return
		}

		result, procErr := proc.Process(r.Context(), userID, activityID)
		if result == nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": procErr.Error()})
			return
		}

		resp := map[string]interface{}{
			"status":          string(result.Status),
			"notification_id": result.NotificationID,
		}
		if procErr != nil {
			resp["detail"] = procErr.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// SubscriptionStatusHandler reports local and provider-side
// subscription state.
func SubscriptionStatusHandler(subs *webhook.SubscriptionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := subs.GetStatus(r.Context())
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// CreateSubscriptionHandler registers the webhook callback with the
// provider. Body: {"callback_url": "..."}.
func CreateSubscriptionHandler(subs *webhook.SubscriptionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			CallbackURL string `json:"callback_url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.CallbackURL == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing callback_url"})
			return
		}

		sub, err := subs.Create(r.Context(), body.CallbackURL)
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, webhook.ErrSubscriptionExists) {
				status = http.StatusConflict
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	}
}

// DeleteSubscriptionHandler removes a subscription by id.
func DeleteSubscriptionHandler(subs *webhook.SubscriptionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subscription id"})
			return
		}
		if err := subs.Delete(r.Context(), id); err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// CredentialStatusHandler reports a user's connection state without
// exposing token material.
func CredentialStatusHandler(creds *db.CredentialStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		cred, err := creds.GetByUserID(userID)
		if err != nil {
			if errors.Is(err, db.ErrNoCredential) {
				writeJSON(w, http.StatusOK, map[string]interface{}{"connected": false})
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"connected":  true,
			"athlete_id": cred.AthleteID,
			"scopes":     cred.Scopes,
			"expires_at": cred.ExpiresAt.Format(time.RFC3339),
		})
	}
}

// StorePokeKeyHandler saves a user's Poke API key.
// Body: {"user_id": "...", "api_key": "..."}.
func StorePokeKeyHandler(creds *poke.CredentialStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID string `json:"user_id"`
			APIKey string `json:"api_key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" || body.APIKey == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user_id or api_key"})
			return
		}
		if err := creds.StoreAPIKey(body.UserID, body.APIKey); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
	}
}

// RemovePokeKeyHandler deactivates a user's Poke API key.
func RemovePokeKeyHandler(creds *poke.CredentialStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if err := creds.Remove(userID); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
	}
}

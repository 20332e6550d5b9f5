package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/joltfit/strava-bridge/internal/admin"
	"github.com/joltfit/strava-bridge/internal/auth/token"
	"github.com/joltfit/strava-bridge/internal/config"
	"github.com/joltfit/strava-bridge/internal/db"
	"github.com/joltfit/strava-bridge/internal/logging"
	"github.com/joltfit/strava-bridge/internal/poke"
	"github.com/joltfit/strava-bridge/internal/processor"
	"github.com/joltfit/strava-bridge/internal/strava"
	"github.com/joltfit/strava-bridge/internal/version"
	"github.com/joltfit/strava-bridge/internal/webhook"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("BRIDGE_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	stravaClient := strava.NewClient(cfg.Strava.ClientID, cfg.Strava.ClientSecret)

	credStore := db.NewCredentialStore(database)
	notifStore := db.NewNotificationStore(database)
	tokenManager := token.NewManager(credStore, stravaClient)

	dispatcher := poke.NewDispatcher(database)
	if cfg.Poke.InboundURL != "" {
		dispatcher.InboundURL = cfg.Poke.InboundURL
	}

	proc := processor.New(credStore, notifStore, tokenManager, stravaClient, dispatcher)
	gateway := webhook.NewGateway(credStore, proc, cfg.Strava.VerifyToken)
	subscriptions := webhook.NewSubscriptionManager(database, stravaClient, cfg.Strava.VerifyToken)

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(logging.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": version.Version})
	})

	// OAuth connect flow
	r.Get("/auth/strava/login", strava.HandleLogin(stravaClient))
	r.Get("/auth/strava/callback", strava.HandleCallback(credStore, stravaClient))

	// Webhook surface (Strava calls these)
	r.Get("/webhook/strava", gateway.HandleChallenge())
	r.Post("/webhook/strava", gateway.HandleEvent())

	// Admin surface (operator key required)
	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.KeyAuth(database))
		r.Post("/reprocess/{activityID}", admin.ReprocessHandler(proc))
		r.Get("/subscription", admin.SubscriptionStatusHandler(subscriptions))
		r.Post("/subscription", admin.CreateSubscriptionHandler(subscriptions))
		r.Delete("/subscription/{id}", admin.DeleteSubscriptionHandler(subscriptions))
		r.Get("/credentials/{userID}/status", admin.CredentialStatusHandler(credStore))
		r.Post("/poke/key", admin.StorePokeKeyHandler(dispatcher.Credentials()))
		r.Delete("/poke/key/{userID}", admin.RemovePokeKeyHandler(dispatcher.Credentials()))
	})

	addr := cfg.Host + ":" + cfg.Port
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		log.Printf("🚀 strava-bridge %s starting on http://%s", version.Version, addr)
		log.Printf("🔗 Webhook callback: http://%s/webhook/strava", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("🛑 Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ Server shutdown: %v", err)
	}
	// Acknowledged events still in the pipeline get to finish.
	gateway.Wait()
	log.Printf("👋 Bye")
}

// Command hub runs the VibeTea Hub: it ingests signed telemetry events from
// one or more Monitors over HTTP and rebroadcasts them to subscribers over
// WebSocket (§1, §4.9–§4.13).
package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aaronbassett/vibetea/internal/broadcast"
	"github.com/aaronbassett/vibetea/internal/config"
	"github.com/aaronbassett/vibetea/internal/identity"
	"github.com/aaronbassett/vibetea/internal/ingest"
	"github.com/aaronbassett/vibetea/internal/privacy"
	"github.com/aaronbassett/vibetea/internal/ratelimit"
	"github.com/aaronbassett/vibetea/internal/subscriber"
	"github.com/aaronbassett/vibetea/internal/wsserver"
)

const (
	exitOK     = 0
	exitConfig = 1

	rateLimitPerSecond = 20
	rateLimitBurst     = 40

	limiterSweepInterval = 30 * time.Second
	limiterIdleAfter     = 10 * time.Minute
	sessionSweepInterval = time.Minute

	jwksCacheTTL = 5 * time.Minute

	shutdownGrace = 10 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadHubConfig()
	if err != nil {
		log.Printf("config error: %v", err)
		return exitConfig
	}

	publicKeys := make(map[string]ed25519.PublicKey, len(cfg.PublicKeys))
	for source, raw := range cfg.PublicKeys {
		publicKeys[source] = ed25519.PublicKey(raw)
	}

	limiter := ratelimit.New(rateLimitPerSecond, rateLimitBurst)
	broadcaster := broadcast.New(cfg.BroadcastSlots, cfg.LagDisconnect)
	store := subscriber.New(cfg.SessionStoreMax)
	filter := privacy.New()

	if cfg.SubscriberToken != "" {
		store.Seed(cfg.SubscriberToken, "static", 0)
	}

	ingestHandler := ingest.New(publicKeys, limiter, broadcaster, filter, cfg.BodyCapBytes, cfg.UnsafeNoAuth)
	wsHandler := wsserver.New(store, broadcaster)
	if cfg.JWKSURL != "" {
		verifier := identity.NewVerifier(cfg.JWKSURL, cfg.JWTIssuer, cfg.JWTAudience, jwksCacheTTL)
		wsHandler.SetIdentityVerifier(verifier)
		log.Printf("hub: identity verifier wired against %s", cfg.JWKSURL)
	}

	startedAt := time.Now()
	mux := http.NewServeMux()
	mux.Handle("/events", ingestHandler)
	mux.Handle("/ws", wsHandler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","uptime_s":%d}`, int64(time.Since(startedAt).Seconds()))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	stop := make(chan struct{})
	go limiter.Run(stop, limiterSweepInterval, limiterIdleAfter)
	go sweepSubscribers(store, stop)

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("hub: listening on :%d (unsafe_no_auth=%v)", cfg.Port, cfg.UnsafeNoAuth)
		serveErr <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Printf("hub: listen error: %v", err)
			close(stop)
			return exitConfig
		}
	case <-sigCh:
		log.Println("hub: shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("hub: shutdown error: %v", err)
		}
	}

	close(stop)
	return exitOK
}

func sweepSubscribers(store *subscriber.Store, stop <-chan struct{}) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			store.SweepExpired()
		case <-stop:
			return
		}
	}
}

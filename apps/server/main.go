package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"towerplane/apps/server/internal/auth"
	"towerplane/apps/server/internal/gateway"
	"towerplane/apps/server/internal/httpapi"
	"towerplane/apps/server/internal/registry"
	"towerplane/apps/server/internal/store"
	"towerplane/deck"
)

func main() {
	cfg, err := registry.ConfigFromEnv()
	if err != nil {
		log.Fatalf("[server] invalid configuration: %v", err)
	}

	design, err := deck.Create(cfg.DesignOrder)
	if err != nil {
		log.Fatalf("[server] failed to build deck design: %v", err)
	}
	stats := design.Stats()
	log.Printf("[server] deck design: order=%d cards=%d symbols=%d symbolsPerCard=%d",
		stats.Order, stats.CardCount, stats.SymbolCount, stats.SymbolsPerCard)

	stores, storeMode, err := store.NewBundleFromEnv()
	if err != nil {
		log.Fatalf("[server] failed to init store: %v", err)
	}
	defer stores.Close()

	validator, authMode, err := auth.NewValidatorFromEnv()
	if err != nil {
		log.Fatalf("[server] failed to init auth validator: %v", err)
	}
	defer validator.Close()

	reg := registry.New(cfg, stores, design)
	gw := gateway.New(validator, reg, cfg.MaxInboundMessageBytes)

	startedAt := time.Now().UTC()
	httpHandler := httpapi.New(stores.Leaderboard, design, startedAt.Format(time.RFC3339))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.HandleWebSocket)
	httpHandler.RegisterRoutes(mux)

	addr := strings.TrimSpace(os.Getenv("SERVER_ADDR"))
	if addr == "" {
		addr = ":18080"
	}

	srv := &http.Server{Addr: addr, Handler: withCORS(mux)}

	log.Printf("[server] store mode: %s", storeMode)
	log.Printf("[server] auth mode: %s", authMode)
	log.Printf("[server] max inbound message size: %s", humanize.Bytes(uint64(cfg.MaxInboundMessageBytes)))
	log.Printf("[server] starting on %s", addr)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		log.Fatalf("[server] failed to start: %v", err)
	case sig := <-sigCh:
		log.Printf("[server] received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] http shutdown error: %v", err)
	}

	for _, err := range reg.Shutdown(shutdownCtx) {
		log.Printf("[server] finalize error during shutdown: %v", err)
	}

	log.Printf("[server] shutdown complete after %s", humanize.Time(startedAt))
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Package server starts the HTTP server for the Keepsake dashboard: a thin
// JSON API over the memory store and people graph, plus a WebSocket stream of
// extraction events.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/keepsake-ai/keepsake/internal/config"
	"github.com/keepsake-ai/keepsake/internal/graph"
	"github.com/keepsake-ai/keepsake/internal/notify"
	"github.com/keepsake-ai/keepsake/internal/profile"
	"github.com/keepsake-ai/keepsake/internal/storage"
	"github.com/keepsake-ai/keepsake/web/handlers"
)

// Deps are the repositories the dashboard serves. Queue may be nil.
type Deps struct {
	Store  storage.MemoryStore
	People *graph.Repository
	Self   *profile.SelfKnowledge
	Queue  handlers.QueueSizeGetter
}

// Routes builds the dashboard handler tree around the given API and hub.
// Exposed separately so tests can drive it through httptest.
func Routes(api *handlers.API, hub *handlers.EventHub) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /api/stats", api.GetStats)
	mux.HandleFunc("GET /api/search", api.Search)
	mux.HandleFunc("GET /api/recent", api.Recent)
	mux.HandleFunc("GET /api/memories", api.Memories)
	mux.HandleFunc("PATCH /api/memories/{id}", api.UpdateMemory)
	mux.HandleFunc("DELETE /api/memories/{id}", api.DeleteMemory)
	mux.HandleFunc("GET /api/people", api.ListPeople)
	mux.HandleFunc("GET /api/people/{id}", api.GetPerson)
	mux.HandleFunc("GET /api/self", api.GetSelf)
	mux.Handle("/ws", hub)

	// 10 req/s sustained with a burst of 20 is generous for a one-user tool.
	limiter := handlers.NewRateLimiter(10, 20)
	return handlers.SecurityHeaders(handlers.RateLimitMiddleware(mux, limiter))
}

// Start listens on cfg.Server.Host:Port and serves until ctx is canceled.
// It returns the bound address, useful with port 0.
func Start(ctx context.Context, cfg *config.Config, deps Deps) (string, error) {
	hub := handlers.NewEventHub()
	go hub.Run()

	api := handlers.NewAPI(deps.Store, deps.People, deps.Self, deps.Queue)

	// Relay cross-process extraction events to connected clients.
	watcher := notify.NewEventWatcher(cfg.Storage.DataPath, hub.Publish)
	if err := watcher.Start(); err != nil {
		log.Printf("server: event watcher disabled: %v", err)
		watcher = nil
	}

	srv := &http.Server{
		Handler:      Routes(api, hub),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("server: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown: %v", err)
		}
		if watcher != nil {
			watcher.Stop()
		}
		hub.Stop()
	}()

	log.Printf("server: dashboard listening on %s", actualAddr)
	return actualAddr, nil
}

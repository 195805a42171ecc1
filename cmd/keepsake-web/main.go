// Command keepsake-web serves the dashboard API over the memory store and
// people graph, pushing extraction events to clients over WebSocket.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/keepsake-ai/keepsake/internal/config"
	"github.com/keepsake-ai/keepsake/internal/graph"
	"github.com/keepsake-ai/keepsake/internal/llm"
	"github.com/keepsake-ai/keepsake/internal/profile"
	"github.com/keepsake-ai/keepsake/internal/server"
	"github.com/keepsake-ai/keepsake/internal/storage"
	"github.com/keepsake-ai/keepsake/internal/storage/postgres"
	"github.com/keepsake-ai/keepsake/internal/storage/sqlite"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	embedder, err := llm.NewEmbeddingGenerator(cfg.EmbeddingProviderConfig())
	if err != nil {
		log.Fatalf("Failed to create embedding generator: %v", err)
	}

	store, err := openStore(cfg, embedder)
	if err != nil {
		log.Fatalf("Failed to open memory store: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps := server.Deps{
		Store:  store,
		People: graph.Open(filepath.Join(cfg.Storage.DataPath, "graph.json")),
		Self:   profile.OpenSelfKnowledge(filepath.Join(cfg.Storage.DataPath, "self.json")),
	}

	addr, err := server.Start(ctx, cfg, deps)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("Keepsake dashboard running at http://%s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	cancel()
	time.Sleep(time.Second)
}

func openStore(cfg *config.Config, embedder storage.Embedder) (storage.MemoryStore, error) {
	if cfg.Storage.Engine == "postgres" {
		return postgres.Open(cfg.Storage.PostgresDSN, embedder, cfg.LLM.EmbeddingDimension, cfg.DedupThresholds())
	}
	return sqlite.Open(filepath.Join(cfg.Storage.DataPath, "memories.db"), embedder, cfg.LLM.EmbeddingDimension, cfg.DedupThresholds())
}

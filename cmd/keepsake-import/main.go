// Command keepsake-import loads a directory of markdown diary files into the
// memory store. Re-running on the same directory is safe: near-duplicates
// are skipped by the store's dedup gate.
package main

import (
	"context"
	"flag"
	"log"
	"path/filepath"

	"github.com/keepsake-ai/keepsake/internal/config"
	"github.com/keepsake-ai/keepsake/internal/importer"
	"github.com/keepsake-ai/keepsake/internal/llm"
	"github.com/keepsake-ai/keepsake/internal/storage"
	"github.com/keepsake-ai/keepsake/internal/storage/postgres"
	"github.com/keepsake-ai/keepsake/internal/storage/sqlite"
)

var owner = flag.Int64("owner", 1, "Owner id for files without an owner in their front matter")

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatal("usage: keepsake-import [-owner N] <directory>")
	}
	dir := flag.Arg(0)

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

	imp := importer.New(store)
	imp.DefaultOwner = *owner

	result, err := imp.ImportDir(context.Background(), dir)
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}

	log.Printf("Imported %d of %d files (%d duplicates, %d failed)",
		result.MemoriesCreated, result.FilesFound, result.Duplicates, result.Failed)
	for _, e := range result.Errors {
		log.Printf("  %s", e)
	}
}

func openStore(cfg *config.Config, embedder storage.Embedder) (storage.MemoryStore, error) {
	if cfg.Storage.Engine == "postgres" {
		return postgres.Open(cfg.Storage.PostgresDSN, embedder, cfg.LLM.EmbeddingDimension, cfg.DedupThresholds())
	}
	return sqlite.Open(filepath.Join(cfg.Storage.DataPath, "memories.db"), embedder, cfg.LLM.EmbeddingDimension, cfg.DedupThresholds())
}

// Command keepsake-export writes a JSON snapshot of everything the system
// knows: all memories, the people graph, self-knowledge, and notes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/keepsake-ai/keepsake/internal/config"
	"github.com/keepsake-ai/keepsake/internal/graph"
	"github.com/keepsake-ai/keepsake/internal/llm"
	"github.com/keepsake-ai/keepsake/internal/profile"
	"github.com/keepsake-ai/keepsake/internal/storage"
	"github.com/keepsake-ai/keepsake/internal/storage/postgres"
	"github.com/keepsake-ai/keepsake/internal/storage/sqlite"
	"github.com/keepsake-ai/keepsake/pkg/types"
)

// Snapshot is the export file format.
type Snapshot struct {
	ExportedAt    time.Time             `json:"exported_at"`
	Memories      []types.Memory        `json:"memories"`
	People        []*types.Person       `json:"people"`
	Relationships []*types.Relationship `json:"relationships"`
	SelfName      string                `json:"self_name,omitempty"`
	SelfKnowledge []profile.Entry       `json:"self_knowledge,omitempty"`
	Notes         []profile.Entry       `json:"notes,omitempty"`
}

var (
	outPath    = flag.String("out", "", "Output file (default: stdout)")
	embeddings = flag.Bool("embeddings", false, "Include embedding vectors in the export")
)

func main() {
	flag.Parse()

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

	memories, err := store.ExportAll(context.Background())
	if err != nil {
		log.Fatalf("Failed to export memories: %v", err)
	}
	if !*embeddings {
		for i := range memories {
			memories[i].Embedding = nil
		}
	}

	people := graph.Open(filepath.Join(cfg.Storage.DataPath, "graph.json"))
	self := profile.OpenSelfKnowledge(filepath.Join(cfg.Storage.DataPath, "self.json"))
	notes := profile.OpenNotes(filepath.Join(cfg.Storage.DataPath, "notes.json"))

	snapshot := Snapshot{
		ExportedAt:    time.Now().UTC(),
		Memories:      memories,
		SelfName:      self.Name(),
		SelfKnowledge: self.Entries(),
		Notes:         notes.List(),
	}
	snapshot.People, snapshot.Relationships = people.Export()

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", *outPath, err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		log.Fatalf("Failed to write snapshot: %v", err)
	}
	log.Printf("Exported %d memories, %d people, %d relationships",
		len(snapshot.Memories), len(snapshot.People), len(snapshot.Relationships))
}

func openStore(cfg *config.Config, embedder storage.Embedder) (storage.MemoryStore, error) {
	if cfg.Storage.Engine == "postgres" {
		return postgres.Open(cfg.Storage.PostgresDSN, embedder, cfg.LLM.EmbeddingDimension, cfg.DedupThresholds())
	}
	return sqlite.Open(filepath.Join(cfg.Storage.DataPath, "memories.db"), embedder, cfg.LLM.EmbeddingDimension, cfg.DedupThresholds())
}

// Command keepsake-chat runs an interactive conversation loop: each turn is
// answered with memory-assembled context, then handed to the background
// extraction worker so anything worth keeping is written to the stores.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/keepsake-ai/keepsake/internal/assembler"
	"github.com/keepsake-ai/keepsake/internal/config"
	"github.com/keepsake-ai/keepsake/internal/extraction"
	"github.com/keepsake-ai/keepsake/internal/graph"
	"github.com/keepsake-ai/keepsake/internal/identity"
	"github.com/keepsake-ai/keepsake/internal/llm"
	"github.com/keepsake-ai/keepsake/internal/notify"
	"github.com/keepsake-ai/keepsake/internal/profile"
	"github.com/keepsake-ai/keepsake/internal/storage"
	"github.com/keepsake-ai/keepsake/internal/storage/postgres"
	"github.com/keepsake-ai/keepsake/internal/storage/sqlite"
)

var speakerID = flag.Int64("speaker", 1, "Owner id attributed to this session's memories")

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
	generator, err := llm.NewTextGenerator(cfg.ProviderConfig())
	if err != nil {
		log.Fatalf("Failed to create text generator: %v", err)
	}

	store, err := openStore(cfg, embedder)
	if err != nil {
		log.Fatalf("Failed to open memory store: %v", err)
	}
	defer store.Close()

	people := graph.Open(filepath.Join(cfg.Storage.DataPath, "graph.json"))
	self := profile.OpenSelfKnowledge(filepath.Join(cfg.Storage.DataPath, "self.json"))
	notes := profile.OpenNotes(filepath.Join(cfg.Storage.DataPath, "notes.json"))

	// Link whoever is typing to their node in the graph.
	speaker := people.FindOrCreate(identity.SpeakerName())
	people.SetLinkedAccount(speaker.ID, fmt.Sprintf("local:%d", *speakerID))
	if err := people.Save(); err != nil {
		log.Printf("failed to persist graph: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := notify.NewEventWriter(cfg.Storage.DataPath)
	pipeline := extraction.NewPipeline(generator, store, people, self, events)
	worker := extraction.NewWorker(pipeline)
	worker.Start(ctx)

	contextBuilder := assembler.New(store, people, self, notes)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
		os.Stdin.Close()
	}()

	name := self.Name()
	if name == "" {
		name = "Keepsake"
	}
	fmt.Printf("%s is listening. Ctrl-D to exit.\n", name)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		turn := strings.TrimSpace(scanner.Text())
		if turn == "" {
			continue
		}

		memoryContext := contextBuilder.Assemble(ctx, turn, *speakerID)
		reply, err := generator.Complete(ctx, replyPrompt(name, memoryContext, turn))
		if err != nil {
			log.Printf("generation failed: %v", err)
			fmt.Println("(I lost my train of thought — try again?)")
			continue
		}
		fmt.Println(strings.TrimSpace(reply))

		worker.Enqueue(extraction.Job{
			Turn:    turn,
			Context: memoryContext,
			OwnerID: *speakerID,
		})
	}

	fmt.Println("\nGoodbye.")
	worker.Stop(10 * time.Second)
}

func replyPrompt(name, memoryContext, turn string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a personal companion with long-term memory.\n", name)
	b.WriteString("Answer warmly and concretely, using what you remember when it is relevant.\n\n")
	if memoryContext != "" {
		b.WriteString(memoryContext)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "User: %s\n", turn)
	b.WriteString("Reply:")
	return b.String()
}

func openStore(cfg *config.Config, embedder storage.Embedder) (storage.MemoryStore, error) {
	if cfg.Storage.Engine == "postgres" {
		return postgres.Open(cfg.Storage.PostgresDSN, embedder, cfg.LLM.EmbeddingDimension, cfg.DedupThresholds())
	}
	return sqlite.Open(filepath.Join(cfg.Storage.DataPath, "memories.db"), embedder, cfg.LLM.EmbeddingDimension, cfg.DedupThresholds())
}

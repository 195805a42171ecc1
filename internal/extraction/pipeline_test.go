package extraction

import (
	"context"
	"hash/fnv"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/keepsake-ai/keepsake/internal/graph"
	"github.com/keepsake-ai/keepsake/internal/profile"
	"github.com/keepsake-ai/keepsake/internal/storage"
	"github.com/keepsake-ai/keepsake/internal/storage/sqlite"
)

// stubEmbedder maps equal texts to equal unit vectors and distinct texts to
// near-orthogonal ones, so dedup triggers exactly on repeated content.
type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, 8)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed>>33)%2001-1000) / 1000
		norm += float64(vec[i]) * float64(vec[i])
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec, nil
}

// scriptedGenerator returns canned responses in order, repeating the last.
type scriptedGenerator struct {
	responses []string
	calls     int
}

func (g *scriptedGenerator) Complete(context.Context, string) (string, error) {
	i := g.calls
	if i >= len(g.responses) {
		i = len(g.responses) - 1
	}
	g.calls++
	return g.responses[i], nil
}

func (g *scriptedGenerator) GetModel() string { return "scripted" }

func newTestPipeline(t *testing.T, gen *scriptedGenerator) (*Pipeline, storage.MemoryStore, *graph.Repository, *profile.SelfKnowledge) {
	t.Helper()
	dir := t.TempDir()

	store, err := sqlite.Open(filepath.Join(dir, "memories.db"), stubEmbedder{}, 8, storage.DefaultDedupThresholds())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	people := graph.Open(filepath.Join(dir, "graph.json"))
	self := profile.OpenSelfKnowledge(filepath.Join(dir, "self.json"))

	return NewPipeline(gen, store, people, self, nil), store, people, self
}

func TestPipelineAppliesFullResult(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{`{
		"memories": [
			{"content": "Maya plays the cello", "kind": "user_fact", "tags": ["music"], "subject": "Maya"}
		],
		"people": [
			{"name": "Maya", "aliases": ["Ally"], "bio": "the cellist", "relationships": [
				{"related_to": "Ben", "type": "sibling", "label": "Maya's brother"}
			]}
		],
		"self": {"name": "Keepsake", "entries": ["I like hearing about music"]}
	}`}}

	pipeline, store, people, self := newTestPipeline(t, gen)
	pipeline.Run(context.Background(), Job{Turn: "my sister Maya plays cello", OwnerID: 7})

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("store count = %d, want 1", count)
	}

	maya := people.FindByName("Maya")
	if maya == nil {
		t.Fatal("Maya was not created")
	}
	if !maya.HasAlias("Ally") {
		t.Error("alias not applied")
	}
	if maya.Bio != "the cellist" {
		t.Errorf("bio = %q", maya.Bio)
	}
	related := people.RelationshipsOf(maya.ID)
	if len(related) != 1 || related[0].Other.Name != "Ben" {
		t.Errorf("relationship not applied: %+v", related)
	}

	if self.Name() != "Keepsake" {
		t.Errorf("self name = %q", self.Name())
	}
	if len(self.Entries()) != 1 {
		t.Errorf("self entries = %d, want 1", len(self.Entries()))
	}
}

func TestPipelineNeverBypassesDedup(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{`{
		"memories": [{"content": "Maya plays the cello", "kind": "user_fact", "tags": []}]
	}`}}

	pipeline, store, _, _ := newTestPipeline(t, gen)
	pipeline.Run(context.Background(), Job{Turn: "turn one", OwnerID: 7})
	pipeline.Run(context.Background(), Job{Turn: "turn two", OwnerID: 7})

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("identical extracted fact stored twice: count = %d", count)
	}
}

func TestPipelineSurvivesMalformedOutput(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"I could not produce JSON, sorry!"}}

	pipeline, store, people, _ := newTestPipeline(t, gen)
	pipeline.Run(context.Background(), Job{Turn: "hello", OwnerID: 7})

	count, _ := store.Count(context.Background())
	if count != 0 {
		t.Errorf("malformed output should extract nothing, count = %d", count)
	}
	p, r := people.Counts()
	if p != 0 || r != 0 {
		t.Errorf("graph should be untouched, got %d/%d", p, r)
	}
}

func TestPipelineRenameOrder(t *testing.T) {
	// Rename applies before aliases, so the update can rename and alias in
	// one pass without the alias colliding with the outgoing name.
	gen := &scriptedGenerator{responses: []string{`{
		"people": [{"name": "Bob", "rename": "Robert", "aliases": ["Bobby"]}]
	}`}}

	pipeline, _, people, _ := newTestPipeline(t, gen)
	people.FindOrCreate("Bob")
	pipeline.Run(context.Background(), Job{Turn: "call him Robert", OwnerID: 7})

	p := people.FindByName("Robert")
	if p == nil {
		t.Fatal("rename not applied")
	}
	if !p.HasAlias("Bob") || !p.HasAlias("Bobby") {
		t.Errorf("aliases = %v, want Bob and Bobby", p.Aliases)
	}
}

func TestWorkerProcessesAsync(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{`{
		"memories": [{"content": "a durable fact", "kind": "user_fact", "tags": []}]
	}`}}

	pipeline, store, _, _ := newTestPipeline(t, gen)
	worker := NewWorker(pipeline)
	worker.Start(context.Background())

	worker.Enqueue(Job{Turn: "turn", OwnerID: 1})
	worker.Stop(5 * time.Second)

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("worker did not process the job, count = %d", count)
	}
}

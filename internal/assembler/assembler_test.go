package assembler

import (
	"context"
	"hash/fnv"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/keepsake-ai/keepsake/internal/graph"
	"github.com/keepsake-ai/keepsake/internal/profile"
	"github.com/keepsake-ai/keepsake/internal/storage"
	"github.com/keepsake-ai/keepsake/internal/storage/sqlite"
	"github.com/keepsake-ai/keepsake/pkg/types"
)

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

func newTestAssembler(t *testing.T) (*Assembler, storage.MemoryStore, *graph.Repository, *profile.SelfKnowledge, *profile.Notes) {
	t.Helper()
	dir := t.TempDir()

	store, err := sqlite.Open(filepath.Join(dir, "memories.db"), stubEmbedder{}, 8, storage.DefaultDedupThresholds())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	people := graph.Open(filepath.Join(dir, "graph.json"))
	self := profile.OpenSelfKnowledge(filepath.Join(dir, "self.json"))
	notes := profile.OpenNotes(filepath.Join(dir, "notes.json"))

	return New(store, people, self, notes), store, people, self, notes
}

func mustAdd(t *testing.T, store storage.MemoryStore, content string, kind types.Kind, owner int64) {
	t.Helper()
	if _, err := store.Add(context.Background(), storage.AddRequest{
		Content: content,
		Kind:    kind,
		OwnerID: owner,
	}); err != nil {
		t.Fatalf("add %q: %v", content, err)
	}
}

func TestAssembleSections(t *testing.T) {
	a, store, people, self, notes := newTestAssembler(t)
	ctx := context.Background()

	mustAdd(t, store, "Dana is allergic to peanuts", types.KindUserFact, 1)
	mustAdd(t, store, "Sam started a pottery class", types.KindUserFact, 2)
	mustAdd(t, store, "We watched the meteor shower together", types.KindDiaryEntry, 1)
	mustAdd(t, store, "Long conversation about travel plans", types.KindConversationSummary, 1)

	p := people.FindOrCreate("Dana")
	people.SetBio(p.ID, "loves gardening")
	self.SetName("Keepsake")
	notes.Add("ask Dana about the tomatoes")

	out := a.Assemble(ctx, "tell me about dana", 1)

	for _, want := range []string{
		"Dana is allergic to peanuts",     // speaker facts
		"Sam started a pottery class",     // cross-speaker facts
		"We watched the meteor shower",    // recent non-fact memory
		"loves gardening",                 // graph snapshot
		"Keepsake",                        // self-knowledge
		"ask Dana about the tomatoes",     // outstanding notes
	} {
		if !strings.Contains(out, want) {
			t.Errorf("assembled context missing %q:\n%s", want, out)
		}
	}

	if strings.Contains(out, "Long conversation about travel plans") {
		t.Error("conversation summaries must not appear in the context")
	}
}

func TestAssembleEmptyState(t *testing.T) {
	a, _, _, _, _ := newTestAssembler(t)
	out := a.Assemble(context.Background(), "hello", 1)
	if strings.TrimSpace(out) != "" {
		t.Errorf("empty repositories should assemble to empty context, got:\n%s", out)
	}
}

func TestAssembleExcludesSpeakerFactsFromRecent(t *testing.T) {
	a, store, _, _, _ := newTestAssembler(t)
	mustAdd(t, store, "Dana is allergic to peanuts", types.KindUserFact, 1)

	out := a.Assemble(context.Background(), "unrelated query text", 1)
	if strings.Count(out, "Dana is allergic to peanuts") > 1 {
		t.Error("speaker fact duplicated between sections")
	}
}

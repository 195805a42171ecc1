package importer

import (
	"context"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"testing"

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

func newTestImporter(t *testing.T) (*Importer, storage.MemoryStore) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "memories.db"), stubEmbedder{}, 8, storage.DefaultDedupThresholds())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store), store
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestImportDirWithFrontMatter(t *testing.T) {
	imp, store := newTestImporter(t)
	dir := t.TempDir()

	writeFile(t, dir, "entry.md", `---
kind: user_fact
tags: [family, music]
subjects: [Maya]
owner: 7
---
Maya plays the cello in the school orchestra.`)

	writeFile(t, dir, "plain.md", "We hiked up Mount Si this weekend.")

	result, err := imp.ImportDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ImportDir failed: %v", err)
	}
	if result.FilesFound != 2 || result.MemoriesCreated != 2 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	memories, err := store.BySubject(context.Background(), []string{"maya"})
	if err != nil {
		t.Fatal(err)
	}
	if len(memories) != 1 {
		t.Fatalf("expected 1 memory about Maya, got %d", len(memories))
	}
	mem := memories[0]
	if mem.Kind != types.KindUserFact || mem.OwnerID != 7 {
		t.Errorf("front matter not applied: %+v", mem)
	}
	if len(mem.Tags) != 2 {
		t.Errorf("tags = %v", mem.Tags)
	}
}

func TestImportIsIdempotent(t *testing.T) {
	imp, store := newTestImporter(t)
	dir := t.TempDir()
	writeFile(t, dir, "entry.md", "We hiked up Mount Si this weekend.")

	if _, err := imp.ImportDir(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	result, err := imp.ImportDir(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if result.Duplicates != 1 || result.MemoriesCreated != 0 {
		t.Errorf("re-import should dedup: %+v", result)
	}

	count, _ := store.Count(context.Background())
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestImportRejectsBadFiles(t *testing.T) {
	imp, _ := newTestImporter(t)
	dir := t.TempDir()

	writeFile(t, dir, "badkind.md", `---
kind: grocery_list
---
milk, eggs`)
	writeFile(t, dir, "empty.md", `---
kind: diary_entry
---
`)
	writeFile(t, dir, "notes.txt", "not markdown, ignored")

	result, err := imp.ImportDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ImportDir failed: %v", err)
	}
	if result.FilesFound != 2 {
		t.Errorf("files found = %d, want 2 (txt ignored)", result.FilesFound)
	}
	if result.Failed != 2 {
		t.Errorf("failed = %d, want 2: %+v", result.Failed, result.Errors)
	}
}

func TestImportDirRejectsMissingPath(t *testing.T) {
	imp, _ := newTestImporter(t)
	if _, err := imp.ImportDir(context.Background(), "/no/such/dir"); err == nil {
		t.Error("missing directory should fail")
	}
}

package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSelfKnowledgeCap(t *testing.T) {
	sk := OpenSelfKnowledge(filepath.Join(t.TempDir(), "self.json"))

	for i := 0; i < MaxSelfEntries; i++ {
		if !sk.Add(fmt.Sprintf("entry %d", i)) {
			t.Fatalf("entry %d rejected below the cap", i)
		}
	}
	if sk.Add("one too many") {
		t.Error("entry beyond the cap should be rejected")
	}

	entries := sk.Entries()
	if len(entries) != MaxSelfEntries {
		t.Fatalf("got %d entries, want %d", len(entries), MaxSelfEntries)
	}
	// Rejection, not eviction: the first entry must survive.
	if entries[0].Content != "entry 0" {
		t.Errorf("first entry was evicted: %q", entries[0].Content)
	}
}

func TestSelfKnowledgeFormatContext(t *testing.T) {
	sk := OpenSelfKnowledge(filepath.Join(t.TempDir(), "self.json"))
	if sk.FormatContext() != "" {
		t.Error("empty self-knowledge should render as empty string")
	}

	sk.SetName("Keepsake")
	sk.Add("I enjoy talking about music")

	out := sk.FormatContext()
	if !strings.Contains(out, "Keepsake") || !strings.Contains(out, "music") {
		t.Errorf("FormatContext missing content:\n%s", out)
	}
}

func TestSelfKnowledgeRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "self.json")

	sk := OpenSelfKnowledge(path)
	sk.SetName("Keepsake")
	sk.Add("first observation")
	if err := sk.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded := OpenSelfKnowledge(path)
	if reloaded.Name() != "Keepsake" {
		t.Errorf("reloaded name = %q", reloaded.Name())
	}
	if len(reloaded.Entries()) != 1 {
		t.Errorf("reloaded entries = %d, want 1", len(reloaded.Entries()))
	}
}

func TestNotes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.json")
	notes := OpenNotes(path)

	if notes.Add("  ") != nil {
		t.Error("blank note should be rejected")
	}
	note := notes.Add("remember to ask about the recital")
	if note == nil {
		t.Fatal("Add returned nil")
	}
	if err := notes.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded := OpenNotes(path)
	if len(reloaded.List()) != 1 {
		t.Fatalf("reloaded notes = %d, want 1", len(reloaded.List()))
	}
	if !strings.Contains(reloaded.FormatContext(), "recital") {
		t.Error("FormatContext missing note content")
	}

	if !reloaded.Remove(note.ID) {
		t.Error("Remove failed for known id")
	}
	if reloaded.Remove(note.ID) {
		t.Error("Remove should return false for unknown id")
	}
	if reloaded.FormatContext() != "" {
		t.Error("empty notes should render as empty string")
	}
}

func TestCorruptDocumentLoadsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "self.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	sk := OpenSelfKnowledge(path)
	if sk.Name() != "" || len(sk.Entries()) != 0 {
		t.Error("corrupt file should load as empty default")
	}
}

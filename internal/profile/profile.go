// Package profile persists what the agent knows about itself: a chosen
// name plus a small capped set of self-knowledge entries, and a separate
// list of outstanding self-authored notes. Each lives in its own JSON
// document saved atomically, and a missing or corrupt file loads as the
// empty default.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxSelfEntries caps the retained self-knowledge entries. Additions beyond
// the cap are rejected, not evicted: the earliest self-observations are the
// identity-defining ones.
const MaxSelfEntries = 20

// Entry is one dated free-text item in either document.
type Entry struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type selfDocument struct {
	Name      string    `json:"name"`
	Entries   []Entry   `json:"entries"`
	UpdatedAt time.Time `json:"updated_at"`
}

type notesDocument struct {
	Notes     []Entry   `json:"notes"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SelfKnowledge is the repository for the agent's self-model.
type SelfKnowledge struct {
	mu   sync.Mutex
	path string
	doc  *selfDocument
}

// OpenSelfKnowledge loads the self-knowledge document at path.
func OpenSelfKnowledge(path string) *SelfKnowledge {
	doc := &selfDocument{}
	loadJSON(path, doc)
	return &SelfKnowledge{path: path, doc: doc}
}

// Name returns the agent's chosen name, empty when unset.
func (s *SelfKnowledge) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Name
}

// SetName records the agent's chosen name.
func (s *SelfKnowledge) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Name = strings.TrimSpace(name)
	s.doc.UpdatedAt = time.Now().UTC()
}

// Add appends a self-knowledge entry. Returns false when the entry is blank
// or the cap is reached; the existing entries are never evicted.
func (s *SelfKnowledge) Add(content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}
	if len(s.doc.Entries) >= MaxSelfEntries {
		return false
	}
	s.doc.Entries = append(s.doc.Entries, Entry{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	s.doc.UpdatedAt = time.Now().UTC()
	return true
}

// Entries returns a copy of the retained entries in insertion order.
func (s *SelfKnowledge) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, len(s.doc.Entries))
	copy(entries, s.doc.Entries)
	return entries
}

// FormatContext renders the self-model for prompt injection. Returns the
// empty string when there is nothing recorded.
func (s *SelfKnowledge) FormatContext() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc.Name == "" && len(s.doc.Entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("About me:\n")
	if s.doc.Name != "" {
		fmt.Fprintf(&b, "- My name is %s\n", s.doc.Name)
	}
	for _, e := range s.doc.Entries {
		fmt.Fprintf(&b, "- %s\n", e.Content)
	}
	return b.String()
}

// Save persists the document atomically.
func (s *SelfKnowledge) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveJSON(s.path, s.doc)
}

// Notes is the repository for outstanding self-authored notes.
type Notes struct {
	mu   sync.Mutex
	path string
	doc  *notesDocument
}

// OpenNotes loads the notes document at path.
func OpenNotes(path string) *Notes {
	doc := &notesDocument{}
	loadJSON(path, doc)
	return &Notes{path: path, doc: doc}
}

// Add appends a note and returns it. Blank notes return nil.
func (n *Notes) Add(content string) *Entry {
	n.mu.Lock()
	defer n.mu.Unlock()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	note := Entry{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	n.doc.Notes = append(n.doc.Notes, note)
	n.doc.UpdatedAt = time.Now().UTC()
	return &note
}

// Remove deletes a note by id. Returns false for unknown ids.
func (n *Notes) Remove(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, note := range n.doc.Notes {
		if note.ID == id {
			n.doc.Notes = append(n.doc.Notes[:i], n.doc.Notes[i+1:]...)
			n.doc.UpdatedAt = time.Now().UTC()
			return true
		}
	}
	return false
}

// List returns a copy of the notes in insertion order.
func (n *Notes) List() []Entry {
	n.mu.Lock()
	defer n.mu.Unlock()

	notes := make([]Entry, len(n.doc.Notes))
	copy(notes, n.doc.Notes)
	return notes
}

// FormatContext renders outstanding notes for prompt injection. Returns the
// empty string when there are none.
func (n *Notes) FormatContext() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.doc.Notes) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Notes to self:\n")
	for _, note := range n.doc.Notes {
		fmt.Fprintf(&b, "- %s\n", note.Content)
	}
	return b.String()
}

// Save persists the document atomically.
func (n *Notes) Save() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return saveJSON(n.path, n.doc)
}

// loadJSON fills v from the file at path. Missing or corrupt files leave v
// at its zero value.
func loadJSON(path string, v interface{}) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	_ = json.Unmarshal(data, v)
}

// saveJSON writes v atomically: temp file, fsync, rename.
func saveJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("profile: marshal document: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("profile: create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".profile-*.json")
	if err != nil {
		return fmt.Errorf("profile: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("profile: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("profile: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("profile: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("profile: rename temp file: %w", err)
	}
	return nil
}

package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/keepsake-ai/keepsake/pkg/types"
)

// document is the on-disk shape of the whole graph. The graph is small
// enough (a personal circle, not a social network) that a full-document
// rewrite per save is the right trade.
type document struct {
	People        []*types.Person       `json:"people"`
	Relationships []*types.Relationship `json:"relationships"`
}

// loadDocument reads the graph file. A missing or corrupt file loads as the
// empty graph so a damaged document never bricks the agent.
func loadDocument(path string) *document {
	doc := &document{}
	data, err := os.ReadFile(path)
	if err != nil {
		return doc
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return &document{}
	}
	return doc
}

// saveDocument writes the graph atomically: temp file in the same directory,
// fsync, then rename over the target.
func saveDocument(path string, doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("graph: marshal document: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("graph: create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".graph-*.json")
	if err != nil {
		return fmt.Errorf("graph: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("graph: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("graph: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("graph: close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("graph: rename temp file: %w", err)
	}
	return nil
}

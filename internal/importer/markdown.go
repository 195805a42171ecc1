// Package importer loads markdown diary files into the memory store. Files
// carry optional YAML front matter (kind, tags, subjects, owner); everything
// goes through the store's dedup-gated Add so re-importing the same
// directory is idempotent.
package importer

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/keepsake-ai/keepsake/internal/storage"
	"github.com/keepsake-ai/keepsake/pkg/types"
)

// frontMatter is the YAML header of a diary file. All fields are optional.
type frontMatter struct {
	Kind     string   `yaml:"kind"`
	Tags     []string `yaml:"tags"`
	Subjects []string `yaml:"subjects"`
	Owner    int64    `yaml:"owner"`
}

// Result summarizes one import run.
type Result struct {
	FilesFound      int      `json:"files_found"`
	MemoriesCreated int      `json:"memories_created"`
	Duplicates      int      `json:"duplicates"`
	Failed          int      `json:"failed"`
	Errors          []string `json:"errors,omitempty"`
}

// Importer walks markdown directories and writes memories.
type Importer struct {
	store storage.MemoryStore

	// DefaultOwner is used when a file's front matter has no owner.
	DefaultOwner int64
}

// New creates an importer over the given store.
func New(store storage.MemoryStore) *Importer {
	return &Importer{store: store}
}

// ImportDir imports every .md file under dir, recursively. Per-file failures
// are collected, not fatal.
func (imp *Importer) ImportDir(ctx context.Context, dir string) (*Result, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("importer: cannot access %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("importer: %q is not a directory", dir)
	}

	result := &Result{}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}
		result.FilesFound++

		created, err := imp.ImportFile(ctx, path)
		switch {
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", filepath.Base(path), err))
			log.Printf("importer: %s: %v", path, err)
		case created:
			result.MemoriesCreated++
		default:
			result.Duplicates++
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("importer: walk %q: %w", dir, err)
	}
	return result, nil
}

// ImportFile imports a single markdown file. Returns false with a nil error
// when the store skipped the content as a near-duplicate.
func (imp *Importer) ImportFile(ctx context.Context, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}

	fm, body, err := splitFrontMatter(string(data))
	if err != nil {
		return false, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return false, fmt.Errorf("empty body")
	}

	kind := types.Kind(fm.Kind)
	if fm.Kind == "" {
		kind = types.KindDiaryEntry
	}
	if !types.IsValidKind(kind) {
		return false, fmt.Errorf("invalid kind %q", fm.Kind)
	}

	owner := fm.Owner
	if owner == 0 {
		owner = imp.DefaultOwner
	}

	mem, err := imp.store.Add(ctx, storage.AddRequest{
		Content:  body,
		Kind:     kind,
		OwnerID:  owner,
		Tags:     fm.Tags,
		Subjects: fm.Subjects,
	})
	if err != nil {
		return false, err
	}
	return mem != nil, nil
}

// splitFrontMatter separates a leading YAML block (between --- delimiters)
// from the markdown body. Files without front matter parse as all-body.
func splitFrontMatter(text string) (frontMatter, string, error) {
	var fm frontMatter

	scanner := bufio.NewScanner(strings.NewReader(text))
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return fm, text, nil
	}

	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		return fm, text, nil
	}

	header := strings.Join(lines[1:closeIdx], "\n")
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return fm, "", fmt.Errorf("front matter: %w", err)
	}
	body := strings.Join(lines[closeIdx+1:], "\n")
	return fm, body, nil
}

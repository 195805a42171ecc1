// Package storage defines the vector memory store contract for Keepsake.
//
// The store persists Memory records together with their embeddings and
// answers similarity queries. Two backends implement it: SQLite (embedded,
// similarity computed in Go) and PostgreSQL (pgvector, similarity pushed
// into SQL).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/keepsake-ai/keepsake/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotInitialized indicates use of a store that was never opened or
	// has been closed. This is a programmer error and fails fast.
	ErrNotInitialized = errors.New("store not initialized")

	// ErrDimensionMismatch indicates that an existing table was created with
	// a different embedding dimension than the one configured now.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder maps text to a fixed-length vector. llm.EmbeddingGenerator
// satisfies this; tests substitute deterministic stubs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DedupThresholds holds the per-kind cosine-distance cutoffs for the dedup
// probe. Facts dedup aggressively, episodic entries dedup conservatively.
// The exact values are calibration, not guaranteed-stable behavior, so they
// are configuration rather than constants.
type DedupThresholds struct {
	// UserFact is the cutoff for user_fact memories (default 0.10).
	UserFact float64

	// Episodic is the cutoff for every other kind (default 0.05).
	Episodic float64
}

// DefaultDedupThresholds returns the empirically tuned defaults.
func DefaultDedupThresholds() DedupThresholds {
	return DedupThresholds{UserFact: 0.10, Episodic: 0.05}
}

// For returns the threshold that applies to the given kind.
func (t DedupThresholds) For(kind types.Kind) float64 {
	if kind == types.KindUserFact {
		return t.UserFact
	}
	return t.Episodic
}

// AddRequest carries the fields for a new memory. The store computes the
// embedding and assigns ID and CreatedAt.
type AddRequest struct {
	Content    string
	Kind       types.Kind
	OwnerID    int64
	Tags       []string
	MediaRef   string
	SourceText string
	Subjects   []string
}

// UpdatePatch carries a partial update for an existing memory. Nil fields
// pass through unchanged. When Content is set the embedding is recomputed;
// CreatedAt never changes.
type UpdatePatch struct {
	Content    *string
	Kind       *types.Kind
	OwnerID    *int64
	Tags       *[]string
	MediaRef   *string
	SourceText *string
	Subjects   *[]string
}

// Filters restricts a similarity search by equality predicates that are
// ANDed into the candidate query.
type Filters struct {
	// Kind restricts to a single memory kind when non-empty.
	Kind types.Kind

	// OwnerID restricts to a single owner when non-nil.
	OwnerID *int64
}

// MemoryStore is the vector memory store contract.
type MemoryStore interface {
	// Add computes the embedding for the request content, runs the dedup
	// probe, and inserts the memory. It returns (nil, nil) when the nearest
	// existing memory of the same kind (and, for user facts, the same owner)
	// is within the kind's dedup threshold.
	//
	// The probe is check-then-act: two concurrent Adds of near-identical
	// content can both pass it. Accepted limitation, see package docs.
	Add(ctx context.Context, req AddRequest) (*types.Memory, error)

	// Search returns up to limit memories ranked by ascending cosine
	// distance from the query text.
	Search(ctx context.Context, query string, limit int, f Filters) ([]types.Memory, error)

	// Recent returns up to limit memories sorted by CreatedAt descending.
	Recent(ctx context.Context, limit int) ([]types.Memory, error)

	// ByDateRange returns up to limit memories with start <= CreatedAt < end,
	// ascending by CreatedAt.
	ByDateRange(ctx context.Context, start, end time.Time, limit int) ([]types.Memory, error)

	// BySubject returns memories whose subject set intersects names,
	// case-folded, newest first.
	BySubject(ctx context.Context, names []string) ([]types.Memory, error)

	// Update replaces a memory in place as a single atomic write. It returns
	// (nil, nil) when the id is unknown.
	Update(ctx context.Context, id string, patch UpdatePatch) (*types.Memory, error)

	// Delete removes a memory by ID. Returns ErrNotFound for unknown ids.
	Delete(ctx context.Context, id string) error

	// DeleteAll removes every memory.
	DeleteAll(ctx context.Context) error

	// Count returns the total number of stored memories.
	Count(ctx context.Context) (int, error)

	// ExportAll returns every stored memory, embeddings included.
	ExportAll(ctx context.Context) ([]types.Memory, error)

	// Close releases any resources held by the store.
	Close() error
}

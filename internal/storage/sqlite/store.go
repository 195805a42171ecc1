// Package sqlite implements the Keepsake memory store on an embedded SQLite
// database. Embeddings are stored as little-endian float32 BLOBs and cosine
// distance is computed in Go over a recency-capped candidate pool.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/keepsake-ai/keepsake/internal/storage"
	"github.com/keepsake-ai/keepsake/pkg/types"
)

// schema creates the memories table and its indexes. Tags and subjects are
// JSON arrays, not comma-joined strings.
const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id          TEXT PRIMARY KEY,
	owner_id    INTEGER NOT NULL,
	content     TEXT NOT NULL,
	kind        TEXT NOT NULL,
	tags        TEXT,
	created_at  TIMESTAMP NOT NULL,
	media_ref   TEXT,
	source_text TEXT,
	subjects    TEXT,
	embedding   BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_kind ON memories(kind);
CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(owner_id);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);

CREATE TABLE IF NOT EXISTS store_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// searchMaxCandidates caps the number of embeddings loaded into memory
// during a similarity query. Candidates are selected newest first so recent
// memories are always considered. Personal-memory datasets stay far below
// this; larger deployments should use the pgvector backend instead.
const searchMaxCandidates = 10_000

// Store implements storage.MemoryStore using SQLite.
type Store struct {
	db         *sql.DB
	embedder   storage.Embedder
	dimension  int
	thresholds storage.DedupThresholds
}

// Open opens (or creates) a SQLite memory store at dsn. The embedder's
// dimension is fixed at store creation; reopening an existing database with
// a different dimension fails with storage.ErrDimensionMismatch.
func Open(dsn string, embedder storage.Embedder, dimension int, thresholds storage.DedupThresholds) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", storage.ErrInvalidInput)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", storage.ErrInvalidInput)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if err := checkDimension(db, dimension); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, embedder: embedder, dimension: dimension, thresholds: thresholds}, nil
}

// checkDimension records the embedding dimension on first open and rejects
// subsequent opens with a disagreeing dimension.
func checkDimension(db *sql.DB, dimension int) error {
	var stored string
	err := db.QueryRow("SELECT value FROM store_meta WHERE key = 'embedding_dimension'").Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err := db.Exec("INSERT INTO store_meta (key, value) VALUES ('embedding_dimension', ?)",
			strconv.Itoa(dimension))
		if err != nil {
			return fmt.Errorf("failed to record embedding dimension: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to read embedding dimension: %w", err)
	}

	got, err := strconv.Atoi(stored)
	if err != nil {
		return fmt.Errorf("corrupt embedding_dimension value %q: %w", stored, err)
	}
	if got != dimension {
		return fmt.Errorf("%w: table has dimension %d, configured %d",
			storage.ErrDimensionMismatch, got, dimension)
	}
	return nil
}

// Add computes the embedding, runs the dedup probe, and inserts the memory.
// Returns (nil, nil) when a near-duplicate already exists.
func (s *Store) Add(ctx context.Context, req storage.AddRequest) (*types.Memory, error) {
	if s.db == nil {
		return nil, storage.ErrNotInitialized
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", storage.ErrInvalidInput)
	}
	if !types.IsValidKind(req.Kind) {
		return nil, fmt.Errorf("%w: invalid kind %q", storage.ErrInvalidInput, req.Kind)
	}

	embedding, err := s.embed(ctx, req.Content)
	if err != nil {
		return nil, err
	}

	// Dedup probe: best-effort check-then-act. For user facts the probe is
	// additionally scoped to the same owner, so the same fact can be learned
	// independently about different people.
	var owner *int64
	if req.Kind == types.KindUserFact {
		owner = &req.OwnerID
	}
	nearest, found, err := s.nearestDistance(ctx, embedding, req.Kind, owner)
	if err != nil {
		return nil, err
	}
	if found && nearest < s.thresholds.For(req.Kind) {
		return nil, nil
	}

	mem := &types.Memory{
		ID:         uuid.NewString(),
		OwnerID:    req.OwnerID,
		Content:    req.Content,
		Kind:       req.Kind,
		Tags:       req.Tags,
		CreatedAt:  time.Now().UTC(),
		Embedding:  embedding,
		MediaRef:   req.MediaRef,
		SourceText: req.SourceText,
		Subjects:   req.Subjects,
	}

	if err := s.upsert(ctx, mem); err != nil {
		return nil, err
	}
	return mem, nil
}

// Search returns up to limit memories ranked by ascending cosine distance.
func (s *Store) Search(ctx context.Context, query string, limit int, f storage.Filters) ([]types.Memory, error) {
	if s.db == nil {
		return nil, storage.ErrNotInitialized
	}
	if limit <= 0 {
		return []types.Memory{}, nil
	}

	queryVec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates, err := s.loadCandidates(ctx, f)
	if err != nil {
		return nil, err
	}

	type scored struct {
		mem      types.Memory
		distance float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, mem := range candidates {
		ranked = append(ranked, scored{mem, cosineDistance(queryVec, mem.Embedding)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].distance < ranked[j].distance
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	results := make([]types.Memory, len(ranked))
	for i, r := range ranked {
		results[i] = r.mem
	}
	return results, nil
}

// Recent returns up to limit memories sorted by CreatedAt descending.
// Ordering is pushed into SQL via the created_at index.
func (s *Store) Recent(ctx context.Context, limit int) ([]types.Memory, error) {
	if s.db == nil {
		return nil, storage.ErrNotInitialized
	}
	if limit <= 0 {
		return []types.Memory{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		selectColumns+" FROM memories ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: Recent: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// ByDateRange returns memories with start <= CreatedAt < end, ascending.
func (s *Store) ByDateRange(ctx context.Context, start, end time.Time, limit int) ([]types.Memory, error) {
	if s.db == nil {
		return nil, storage.ErrNotInitialized
	}
	if limit <= 0 {
		return []types.Memory{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		selectColumns+" FROM memories WHERE created_at >= ? AND created_at < ? ORDER BY created_at ASC LIMIT ?",
		start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: ByDateRange: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// BySubject returns memories whose subject set intersects names,
// case-folded, newest first. The intersection is computed in Go; the
// subjects column is a JSON array with no usable SQL predicate.
func (s *Store) BySubject(ctx context.Context, names []string) ([]types.Memory, error) {
	if s.db == nil {
		return nil, storage.ErrNotInitialized
	}
	if len(names) == 0 {
		return []types.Memory{}, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			want[n] = true
		}
	}

	rows, err := s.db.QueryContext(ctx,
		selectColumns+" FROM memories WHERE subjects IS NOT NULL ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("sqlite: BySubject: %w", err)
	}
	defer rows.Close()

	all, err := scanMemories(rows)
	if err != nil {
		return nil, err
	}

	var matched []types.Memory
	for _, mem := range all {
		for _, subject := range mem.Subjects {
			if want[strings.ToLower(strings.TrimSpace(subject))] {
				matched = append(matched, mem)
				break
			}
		}
	}
	return matched, nil
}

// Update replaces a memory in place as a single upsert. The embedding is
// recomputed only when Content changes; CreatedAt is never touched.
// Returns (nil, nil) when the id is unknown.
func (s *Store) Update(ctx context.Context, id string, patch storage.UpdatePatch) (*types.Memory, error) {
	if s.db == nil {
		return nil, storage.ErrNotInitialized
	}

	mem, err := s.get(ctx, id)
	if err == storage.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if patch.Content != nil && *patch.Content != mem.Content {
		mem.Content = *patch.Content
		embedding, err := s.embed(ctx, mem.Content)
		if err != nil {
			return nil, err
		}
		mem.Embedding = embedding
	}
	if patch.Kind != nil {
		if !types.IsValidKind(*patch.Kind) {
			return nil, fmt.Errorf("%w: invalid kind %q", storage.ErrInvalidInput, *patch.Kind)
		}
		mem.Kind = *patch.Kind
	}
	if patch.OwnerID != nil {
		mem.OwnerID = *patch.OwnerID
	}
	if patch.Tags != nil {
		mem.Tags = *patch.Tags
	}
	if patch.MediaRef != nil {
		mem.MediaRef = *patch.MediaRef
	}
	if patch.SourceText != nil {
		mem.SourceText = *patch.SourceText
	}
	if patch.Subjects != nil {
		mem.Subjects = *patch.Subjects
	}

	if err := s.upsert(ctx, mem); err != nil {
		return nil, err
	}
	return mem, nil
}

// Delete removes a memory by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s.db == nil {
		return storage.ErrNotInitialized
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: Delete: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: Delete rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteAll removes every memory.
func (s *Store) DeleteAll(ctx context.Context) error {
	if s.db == nil {
		return storage.ErrNotInitialized
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM memories"); err != nil {
		return fmt.Errorf("sqlite: DeleteAll: %w", err)
	}
	return nil
}

// Count returns the total number of stored memories.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, storage.ErrNotInitialized
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories").Scan(&count); err != nil {
		return 0, fmt.Errorf("sqlite: Count: %w", err)
	}
	return count, nil
}

// ExportAll returns every stored memory, newest first.
func (s *Store) ExportAll(ctx context.Context) ([]types.Memory, error) {
	if s.db == nil {
		return nil, storage.ErrNotInitialized
	}
	rows, err := s.db.QueryContext(ctx,
		selectColumns+" FROM memories ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("sqlite: ExportAll: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// Close flushes the WAL into the main database file and releases resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.db.Close()
	s.db = nil
	return err
}

// embed calls the embedder and validates the returned dimension.
func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("%w: embedder returned %d values, store expects %d",
			storage.ErrDimensionMismatch, len(embedding), s.dimension)
	}
	return embedding, nil
}

// nearestDistance returns the cosine distance to the nearest stored memory
// of the given kind, optionally scoped to one owner. found is false when no
// candidate exists.
func (s *Store) nearestDistance(ctx context.Context, embedding []float32, kind types.Kind, owner *int64) (float64, bool, error) {
	query := "SELECT embedding FROM memories WHERE kind = ?"
	args := []interface{}{string(kind)}
	if owner != nil {
		query += " AND owner_id = ?"
		args = append(args, *owner)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, searchMaxCandidates)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: dedup probe: %w", err)
	}
	defer rows.Close()

	best := 0.0
	found := false
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return 0, false, fmt.Errorf("sqlite: dedup probe scan: %w", err)
		}
		candidate, err := deserializeEmbedding(blob)
		if err != nil {
			continue
		}
		d := cosineDistance(embedding, candidate)
		if !found || d < best {
			best = d
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return 0, false, fmt.Errorf("sqlite: dedup probe rows: %w", err)
	}
	return best, found, nil
}

// loadCandidates loads the filtered, recency-capped candidate pool for a
// similarity query.
func (s *Store) loadCandidates(ctx context.Context, f storage.Filters) ([]types.Memory, error) {
	query := selectColumns + " FROM memories"
	var conditions []string
	var args []interface{}

	if f.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.OwnerID != nil {
		conditions = append(conditions, "owner_id = ?")
		args = append(args, *f.OwnerID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, searchMaxCandidates)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load candidates: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// get fetches one memory by id. Returns storage.ErrNotFound for unknown ids.
func (s *Store) get(ctx context.Context, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM memories WHERE id = ?", id)
	mem, err := scanMemory(row.Scan)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get: %w", err)
	}
	return mem, nil
}

// upsert writes the full row, replacing any existing row with the same id.
// A single statement, so a crash cannot lose the row the way a
// delete-then-insert sequence could.
func (s *Store) upsert(ctx context.Context, mem *types.Memory) error {
	tagsJSON, err := marshalList(mem.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	subjectsJSON, err := marshalList(mem.Subjects)
	if err != nil {
		return fmt.Errorf("failed to marshal subjects: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, owner_id, content, kind, tags, created_at, media_ref, source_text, subjects, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			content = excluded.content,
			kind = excluded.kind,
			tags = excluded.tags,
			media_ref = excluded.media_ref,
			source_text = excluded.source_text,
			subjects = excluded.subjects,
			embedding = excluded.embedding
	`,
		mem.ID,
		mem.OwnerID,
		mem.Content,
		string(mem.Kind),
		tagsJSON,
		mem.CreatedAt,
		nullableString(mem.MediaRef),
		nullableString(mem.SourceText),
		subjectsJSON,
		serializeEmbedding(mem.Embedding),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert: %w", err)
	}
	return nil
}

const selectColumns = "SELECT id, owner_id, content, kind, tags, created_at, media_ref, source_text, subjects, embedding"

// scanMemories reads all rows into a slice. Column order must match
// selectColumns.
func scanMemories(rows *sql.Rows) ([]types.Memory, error) {
	var memories []types.Memory
	for rows.Next() {
		mem, err := scanMemory(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		memories = append(memories, *mem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return memories, nil
}

// scanMemory decodes one row via the given scan function.
func scanMemory(scan func(dest ...interface{}) error) (*types.Memory, error) {
	var mem types.Memory
	var kind string
	var tagsJSON, subjectsJSON, mediaRef, sourceText sql.NullString
	var blob []byte

	err := scan(
		&mem.ID,
		&mem.OwnerID,
		&mem.Content,
		&kind,
		&tagsJSON,
		&mem.CreatedAt,
		&mediaRef,
		&sourceText,
		&subjectsJSON,
		&blob,
	)
	if err != nil {
		return nil, err
	}

	mem.Kind = types.Kind(kind)
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &mem.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if subjectsJSON.Valid && subjectsJSON.String != "" {
		if err := json.Unmarshal([]byte(subjectsJSON.String), &mem.Subjects); err != nil {
			return nil, fmt.Errorf("unmarshal subjects: %w", err)
		}
	}
	if mediaRef.Valid {
		mem.MediaRef = mediaRef.String
	}
	if sourceText.Valid {
		mem.SourceText = sourceText.String
	}

	embedding, err := deserializeEmbedding(blob)
	if err != nil {
		return nil, err
	}
	mem.Embedding = embedding

	return &mem, nil
}

// marshalList encodes a string list as a JSON array, NULL when empty.
func marshalList(list []string) (sql.NullString, error) {
	if len(list) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// nullableString converts a string to sql.NullString. Empty means NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

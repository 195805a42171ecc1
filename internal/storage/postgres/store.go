// Package postgres implements the Keepsake memory store on PostgreSQL with
// the pgvector extension. Similarity ordering and the dedup probe are pushed
// into SQL via the <=> cosine-distance operator.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/keepsake-ai/keepsake/internal/storage"
	"github.com/keepsake-ai/keepsake/pkg/types"
)

// Store implements storage.MemoryStore using PostgreSQL + pgvector.
type Store struct {
	db         *sql.DB
	embedder   storage.Embedder
	dimension  int
	thresholds storage.DedupThresholds
}

// Open connects to PostgreSQL, enables pgvector, and creates the schema.
// An existing memories table with a different vector dimension is rejected
// with storage.ErrDimensionMismatch.
func Open(dsn string, embedder storage.Embedder, dimension int, thresholds storage.DedupThresholds) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", storage.ErrInvalidInput)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", storage.ErrInvalidInput)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: pgvector extension unavailable: %w", err)
	}

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS memories (
			id          TEXT PRIMARY KEY,
			owner_id    BIGINT NOT NULL,
			content     TEXT NOT NULL,
			kind        TEXT NOT NULL,
			tags        TEXT[],
			created_at  TIMESTAMPTZ NOT NULL,
			media_ref   TEXT,
			source_text TEXT,
			subjects    TEXT[],
			embedding   vector(%d) NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_memories_kind ON memories(kind);
		CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(owner_id);
		CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
	`, dimension)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to apply schema: %w", err)
	}

	if err := checkDimension(db, dimension); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, embedder: embedder, dimension: dimension, thresholds: thresholds}, nil
}

// checkDimension verifies the existing table's vector dimension against the
// configured one. The table may predate this process with another dimension,
// in which case CREATE TABLE IF NOT EXISTS silently kept the old definition.
func checkDimension(db *sql.DB, dimension int) error {
	var atttypmod sql.NullInt64
	err := db.QueryRow(`
		SELECT a.atttypmod
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		WHERE c.relname = 'memories' AND a.attname = 'embedding'
	`).Scan(&atttypmod)
	if err != nil {
		return fmt.Errorf("postgres: failed to inspect embedding column: %w", err)
	}
	if atttypmod.Valid && atttypmod.Int64 > 0 && int(atttypmod.Int64) != dimension {
		return fmt.Errorf("%w: table has dimension %d, configured %d",
			storage.ErrDimensionMismatch, atttypmod.Int64, dimension)
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
	vec := pgvector.NewVector(embedding)

	// Dedup probe: nearest existing memory of the same kind, owner-scoped
	// for user facts. Check-then-act; see the storage package docs.
	probe := "SELECT embedding <=> $1 FROM memories WHERE kind = $2"
	args := []interface{}{vec, string(req.Kind)}
	if req.Kind == types.KindUserFact {
		probe += " AND owner_id = $3"
		args = append(args, req.OwnerID)
	}
	probe += " ORDER BY embedding <=> $1 LIMIT 1"

	var distance float64
	err = s.db.QueryRowContext(ctx, probe, args...).Scan(&distance)
	switch {
	case err == sql.ErrNoRows:
		// No candidate, nothing to dedup against.
	case err != nil:
		return nil, fmt.Errorf("postgres: dedup probe: %w", err)
	case distance < s.thresholds.For(req.Kind):
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

	sqlQuery := selectColumns + " FROM memories"
	args := []interface{}{pgvector.NewVector(queryVec)}
	var conditions []string
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if f.OwnerID != nil {
		args = append(args, *f.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		sqlQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)
	sqlQuery += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: Search: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// Recent returns up to limit memories sorted by CreatedAt descending.
func (s *Store) Recent(ctx context.Context, limit int) ([]types.Memory, error) {
	if s.db == nil {
		return nil, storage.ErrNotInitialized
	}
	if limit <= 0 {
		return []types.Memory{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		selectColumns+" FROM memories ORDER BY created_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: Recent: %w", err)
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
		selectColumns+" FROM memories WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at ASC LIMIT $3",
		start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: ByDateRange: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// BySubject returns memories whose subject set intersects names,
// case-folded, newest first. The overlap test runs in SQL against the
// lowercased subjects array.
func (s *Store) BySubject(ctx context.Context, names []string) ([]types.Memory, error) {
	if s.db == nil {
		return nil, storage.ErrNotInitialized
	}
	if len(names) == 0 {
		return []types.Memory{}, nil
	}

	folded := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			folded = append(folded, n)
		}
	}

	rows, err := s.db.QueryContext(ctx, selectColumns+`
		FROM memories
		WHERE subjects IS NOT NULL
		  AND (SELECT array_agg(lower(trim(s))) FROM unnest(subjects) AS s) && $1
		ORDER BY created_at DESC`,
		pq.Array(folded))
	if err != nil {
		return nil, fmt.Errorf("postgres: BySubject: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// Update replaces a memory in place as a single upsert. Re-embeds only when
// Content changes. Returns (nil, nil) when the id is unknown.
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
	result, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("postgres: Delete: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: Delete rows affected: %w", err)
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
		return fmt.Errorf("postgres: DeleteAll: %w", err)
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
		return 0, fmt.Errorf("postgres: Count: %w", err)
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
		return nil, fmt.Errorf("postgres: ExportAll: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

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

func (s *Store) get(ctx context.Context, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM memories WHERE id = $1", id)
	mem, err := scanMemory(row.Scan)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get: %w", err)
	}
	return mem, nil
}

// upsert writes the full row, replacing any existing row with the same id.
func (s *Store) upsert(ctx context.Context, mem *types.Memory) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, owner_id, content, kind, tags, created_at, media_ref, source_text, subjects, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
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
		nullableArray(mem.Tags),
		mem.CreatedAt,
		nullableString(mem.MediaRef),
		nullableString(mem.SourceText),
		nullableArray(mem.Subjects),
		pgvector.NewVector(mem.Embedding),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert: %w", err)
	}
	return nil
}

const selectColumns = "SELECT id, owner_id, content, kind, tags, created_at, media_ref, source_text, subjects, embedding"

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

func scanMemory(scan func(dest ...interface{}) error) (*types.Memory, error) {
	var mem types.Memory
	var kind string
	var tags, subjects pq.StringArray
	var mediaRef, sourceText sql.NullString
	var vec pgvector.Vector

	err := scan(
		&mem.ID,
		&mem.OwnerID,
		&mem.Content,
		&kind,
		&tags,
		&mem.CreatedAt,
		&mediaRef,
		&sourceText,
		&subjects,
		&vec,
	)
	if err != nil {
		return nil, err
	}

	mem.Kind = types.Kind(kind)
	mem.Tags = []string(tags)
	mem.Subjects = []string(subjects)
	if mediaRef.Valid {
		mem.MediaRef = mediaRef.String
	}
	if sourceText.Valid {
		mem.SourceText = sourceText.String
	}
	mem.Embedding = vec.Slice()

	return &mem, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableArray(list []string) interface{} {
	if len(list) == 0 {
		return nil
	}
	return pq.Array(list)
}

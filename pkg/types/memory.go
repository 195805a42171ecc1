package types

import "time"

// Memory represents a single persisted fact or episode. Memories are the
// atomic units of storage, carrying content, classification, and a vector
// embedding for semantic search.
type Memory struct {
	// Core identification fields
	ID      string `json:"id"`       // Unique identifier
	OwnerID int64  `json:"owner_id"` // Conversational participant the memory was captured from
	Content string `json:"content"`  // Raw memory content
	Kind    Kind   `json:"kind"`     // Memory kind (diary_entry, user_fact, ...)

	// Classification and organization
	Tags []string `json:"tags,omitempty"` // Short labels; order irrelevant

	// CreatedAt is immutable once set. Re-embedding on edit never changes it.
	CreatedAt time.Time `json:"created_at"`

	// Embedding is the vector derived from Content. Its length always equals
	// the store's configured dimension.
	Embedding []float32 `json:"embedding,omitempty"`

	// Optional fields
	MediaRef   string   `json:"media_ref,omitempty"`   // Handle to an externally stored photo/video
	SourceText string   `json:"source_text,omitempty"` // Verbatim excerpt that produced this memory
	Subjects   []string `json:"subjects,omitempty"`    // Names of the people the memory is about
}

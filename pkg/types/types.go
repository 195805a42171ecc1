// Package types defines the core data structures for the Keepsake memory
// system: memories, people, and the relationships between them.
package types

// Kind classifies the purpose of a memory.
type Kind string

// Memory kind constants. The set is closed: the store and the extraction
// pipeline both reject anything outside it.
const (
	// KindDiaryEntry is an episodic entry capturing something that happened.
	KindDiaryEntry Kind = "diary_entry"

	// KindUserFact is a discrete durable fact about a specific person.
	KindUserFact Kind = "user_fact"

	// KindConversationSummary is a condensed record of a past conversation.
	KindConversationSummary Kind = "conversation_summary"

	// KindReflection is a self-generated observation by the agent.
	KindReflection Kind = "reflection"

	// KindPhotoMemory is a memory anchored to an externally stored photo.
	KindPhotoMemory Kind = "photo_memory"

	// KindVideoMemory is a memory anchored to an externally stored video.
	KindVideoMemory Kind = "video_memory"
)

// ValidKinds is a slice of all valid memory kinds for validation.
var ValidKinds = []Kind{
	KindDiaryEntry,
	KindUserFact,
	KindConversationSummary,
	KindReflection,
	KindPhotoMemory,
	KindVideoMemory,
}

// ExtractableKinds are the kinds the extraction pipeline is allowed to
// produce. Summaries and reflections are written by dedicated paths, never
// extracted from a single turn.
var ExtractableKinds = []Kind{
	KindDiaryEntry,
	KindUserFact,
	KindPhotoMemory,
	KindVideoMemory,
}

// IsValidKind checks if the given kind is in the closed set.
func IsValidKind(kind Kind) bool {
	for _, k := range ValidKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// IsExtractableKind checks if the kind may be produced by extraction.
func IsExtractableKind(kind Kind) bool {
	for _, k := range ExtractableKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Relationship type constants. Edges are undirected; the type names the
// nature of the pair, not a direction.
const (
	RelSibling  = "sibling"
	RelParent   = "parent"
	RelChild    = "child"
	RelPartner  = "partner"
	RelFriend   = "friend"
	RelCoworker = "coworker"
	RelPet      = "pet"
	RelOther    = "other"
)

// ValidRelationshipTypes is a slice of all valid relationship types for validation.
var ValidRelationshipTypes = []string{
	RelSibling,
	RelParent,
	RelChild,
	RelPartner,
	RelFriend,
	RelCoworker,
	RelPet,
	RelOther,
}

// IsValidRelationshipType checks if the given relationship type is valid.
func IsValidRelationshipType(relType string) bool {
	for _, validType := range ValidRelationshipTypes {
		if validType == relType {
			return true
		}
	}
	return false
}

// MaxBioLength caps the free-text bio on a Person.
const MaxBioLength = 280

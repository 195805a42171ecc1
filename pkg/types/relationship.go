package types

import "time"

// Relationship represents an undirected, typed edge between two Persons.
// At most one relationship of a given type exists per unordered pair; the
// order of PersonA and PersonB carries no meaning.
type Relationship struct {
	ID        string    `json:"id"`
	PersonA   string    `json:"person_a"` // Person ID of one endpoint
	PersonB   string    `json:"person_b"` // Person ID of the other endpoint
	Type      string    `json:"type"`     // Relationship type (see Rel* constants)
	Label     string    `json:"label"`    // Free-text display string, e.g. "siblings"
	CreatedAt time.Time `json:"created_at"`
}

// Touches reports whether the edge has personID as either endpoint.
func (r *Relationship) Touches(personID string) bool {
	return r.PersonA == personID || r.PersonB == personID
}

// Other returns the counterpart endpoint for personID. Returns an empty
// string when personID is not an endpoint.
func (r *Relationship) Other(personID string) string {
	switch personID {
	case r.PersonA:
		return r.PersonB
	case r.PersonB:
		return r.PersonA
	default:
		return ""
	}
}

// SamePair reports whether the edge connects the same unordered pair.
func (r *Relationship) SamePair(a, b string) bool {
	return (r.PersonA == a && r.PersonB == b) || (r.PersonA == b && r.PersonB == a)
}

// Package graph maintains the people-and-relationships graph: entity
// resolution by name or alias, undirected typed edges with symmetric dedup,
// merge of duplicate people, and textual renderings for prompt injection.
//
// The whole graph lives in memory and persists as one JSON document.
// Mutations mutate the in-memory document; Save writes it atomically.
// Concurrent mutation across processes is last-writer-wins at the file
// level; a mutex keeps in-process mutations from tearing the document.
package graph

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keepsake-ai/keepsake/pkg/types"
)

// Repository holds the in-memory graph and its backing file.
type Repository struct {
	mu   sync.Mutex
	path string
	doc  *document
}

// Related pairs a relationship with the counterpart person, both directions
// of the undirected edge resolved from the viewpoint of one person.
type Related struct {
	Relationship *types.Relationship
	Other        *types.Person
}

// Open loads the graph document at path. Missing or corrupt files load as
// the empty graph.
func Open(path string) *Repository {
	return &Repository{path: path, doc: loadDocument(path)}
}

// Save persists the whole document atomically.
func (r *Repository) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return saveDocument(r.path, r.doc)
}

// FindByName returns the person whose name or any alias matches name
// case-insensitively, or nil.
func (r *Repository) FindByName(name string) *types.Person {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findByName(name)
}

func (r *Repository) findByName(name string) *types.Person {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	for _, p := range r.doc.People {
		if p.Matches(name) {
			return p
		}
	}
	return nil
}

func (r *Repository) findByID(id string) *types.Person {
	for _, p := range r.doc.People {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// FindOrCreate returns the existing person matching name or creates a new
// one with empty aliases and bio.
func (r *Repository) FindOrCreate(name string) *types.Person {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p := r.findByName(name); p != nil {
		return p
	}
	now := time.Now().UTC()
	p := &types.Person{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.doc.People = append(r.doc.People, p)
	return p
}

// Person returns the person with the given id, or nil.
func (r *Repository) Person(id string) *types.Person {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findByID(id)
}

// People returns every person, sorted by name for stable output.
func (r *Repository) People() []*types.Person {
	r.mu.Lock()
	defer r.mu.Unlock()

	people := make([]*types.Person, len(r.doc.People))
	copy(people, r.doc.People)
	sort.Slice(people, func(i, j int) bool {
		return strings.ToLower(people[i].Name) < strings.ToLower(people[j].Name)
	})
	return people
}

// Rename sets a new primary name and pushes the old name into the aliases so
// the previous identity string is never lost. The new name is removed from
// the aliases to keep name and alias sets mutually exclusive. Returns false
// for unknown ids or blank names.
func (r *Repository) Rename(id, newName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	newName = strings.TrimSpace(newName)
	p := r.findByID(id)
	if p == nil || newName == "" {
		return false
	}
	if strings.EqualFold(p.Name, newName) {
		p.Name = newName
		p.UpdatedAt = time.Now().UTC()
		return true
	}

	oldName := p.Name
	p.Name = newName

	kept := p.Aliases[:0]
	for _, a := range p.Aliases {
		if !strings.EqualFold(a, newName) {
			kept = append(kept, a)
		}
	}
	p.Aliases = kept
	if !p.HasAlias(oldName) {
		p.Aliases = append(p.Aliases, oldName)
	}
	p.UpdatedAt = time.Now().UTC()
	return true
}

// AddAlias adds an alias unless it collides with the primary name or an
// existing alias, case-insensitively. Returns false when nothing was added.
func (r *Repository) AddAlias(id, alias string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	alias = strings.TrimSpace(alias)
	p := r.findByID(id)
	if p == nil || alias == "" {
		return false
	}
	if strings.EqualFold(p.Name, alias) || p.HasAlias(alias) {
		return false
	}
	p.Aliases = append(p.Aliases, alias)
	p.UpdatedAt = time.Now().UTC()
	return true
}

// SetBio sets the person's bio, truncated to types.MaxBioLength. Returns
// false for unknown ids.
func (r *Repository) SetBio(id, bio string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findByID(id)
	if p == nil {
		return false
	}
	bio = strings.TrimSpace(bio)
	if len(bio) > types.MaxBioLength {
		bio = bio[:types.MaxBioLength]
	}
	p.Bio = bio
	p.UpdatedAt = time.Now().UTC()
	return true
}

// SetLinkedAccount attaches an external account id to the person.
func (r *Repository) SetLinkedAccount(id, accountID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findByID(id)
	if p == nil {
		return false
	}
	p.LinkedAccountID = accountID
	p.UpdatedAt = time.Now().UTC()
	return true
}

// AddRelationship creates an undirected typed edge between two people.
// Returns nil when either endpoint is unknown, the type is not in the closed
// enum, or an edge of the same type already exists between the pair in
// either order.
func (r *Repository) AddRelationship(aID, bID, relType, label string) *types.Relationship {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !types.IsValidRelationshipType(relType) {
		return nil
	}
	if aID == bID {
		return nil
	}
	if r.findByID(aID) == nil || r.findByID(bID) == nil {
		return nil
	}
	for _, rel := range r.doc.Relationships {
		if rel.Type == relType && rel.SamePair(aID, bID) {
			return nil
		}
	}

	rel := &types.Relationship{
		ID:        uuid.NewString(),
		PersonA:   aID,
		PersonB:   bID,
		Type:      relType,
		Label:     strings.TrimSpace(label),
		CreatedAt: time.Now().UTC(),
	}
	r.doc.Relationships = append(r.doc.Relationships, rel)
	return rel
}

// DeletePerson removes a person and cascades every edge touching them.
// Returns false for unknown ids.
func (r *Repository) DeletePerson(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findByID(id) == nil {
		return false
	}

	people := r.doc.People[:0]
	for _, p := range r.doc.People {
		if p.ID != id {
			people = append(people, p)
		}
	}
	r.doc.People = people

	rels := r.doc.Relationships[:0]
	for _, rel := range r.doc.Relationships {
		if !rel.Touches(id) {
			rels = append(rels, rel)
		}
	}
	r.doc.Relationships = rels
	return true
}

// Merge folds mergeID into keepID and removes the merged person. The merged
// name becomes an alias of keep (unless it collides with keep's own name or
// aliases), keep's bio wins when non-empty, the linked account is adopted
// only when keep lacks one, edges re-point to keep, and edges that become
// self-referential are dropped. Returns nil when either id is unknown or
// both ids are the same.
func (r *Repository) Merge(keepID, mergeID string) *types.Person {
	r.mu.Lock()
	defer r.mu.Unlock()

	if keepID == mergeID {
		return nil
	}
	keep := r.findByID(keepID)
	merge := r.findByID(mergeID)
	if keep == nil || merge == nil {
		return nil
	}

	if !strings.EqualFold(keep.Name, merge.Name) && !keep.HasAlias(merge.Name) {
		keep.Aliases = append(keep.Aliases, merge.Name)
	}
	for _, alias := range merge.Aliases {
		if !strings.EqualFold(keep.Name, alias) && !keep.HasAlias(alias) {
			keep.Aliases = append(keep.Aliases, alias)
		}
	}
	if keep.Bio == "" {
		keep.Bio = merge.Bio
	}
	if keep.LinkedAccountID == "" {
		keep.LinkedAccountID = merge.LinkedAccountID
	}

	rels := r.doc.Relationships[:0]
	for _, rel := range r.doc.Relationships {
		if rel.PersonA == mergeID {
			rel.PersonA = keepID
		}
		if rel.PersonB == mergeID {
			rel.PersonB = keepID
		}
		if rel.PersonA == rel.PersonB {
			continue
		}
		rels = append(rels, rel)
	}
	r.doc.Relationships = rels

	people := r.doc.People[:0]
	for _, p := range r.doc.People {
		if p.ID != mergeID {
			people = append(people, p)
		}
	}
	r.doc.People = people

	keep.UpdatedAt = time.Now().UTC()
	return keep
}

// RelationshipsOf returns every edge touching the person, each resolved to
// the counterpart. Returns nil for unknown ids.
func (r *Repository) RelationshipsOf(personID string) []Related {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findByID(personID) == nil {
		return nil
	}
	var related []Related
	for _, rel := range r.doc.Relationships {
		if !rel.Touches(personID) {
			continue
		}
		other := r.findByID(rel.Other(personID))
		if other == nil {
			continue
		}
		related = append(related, Related{Relationship: rel, Other: other})
	}
	return related
}

// FormatContext renders every person compactly for inclusion in a
// generation prompt. Returns the empty string when the graph is empty.
func (r *Repository) FormatContext() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.doc.People) == 0 {
		return ""
	}

	people := make([]*types.Person, len(r.doc.People))
	copy(people, r.doc.People)
	sort.Slice(people, func(i, j int) bool {
		return strings.ToLower(people[i].Name) < strings.ToLower(people[j].Name)
	})

	var b strings.Builder
	b.WriteString("People I know:\n")
	for _, p := range people {
		b.WriteString("- ")
		b.WriteString(p.Name)
		if len(p.Aliases) > 0 {
			fmt.Fprintf(&b, " (also: %s)", strings.Join(p.Aliases, ", "))
		}
		var labels []string
		for _, rel := range r.doc.Relationships {
			if rel.Touches(p.ID) && rel.Label != "" {
				labels = append(labels, rel.Label)
			}
		}
		if len(labels) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(labels, "; "))
		}
		if p.Bio != "" {
			b.WriteString(" — ")
			b.WriteString(p.Bio)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatDetail renders a single person verbosely: name, aliases, bio, and
// one line per relationship. Returns the empty string for unknown ids.
func (r *Repository) FormatDetail(personID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.findByID(personID)
	if p == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", p.Name)
	if len(p.Aliases) > 0 {
		fmt.Fprintf(&b, "Also known as: %s\n", strings.Join(p.Aliases, ", "))
	}
	if p.Bio != "" {
		fmt.Fprintf(&b, "About: %s\n", p.Bio)
	}
	for _, rel := range r.doc.Relationships {
		if !rel.Touches(personID) {
			continue
		}
		other := r.findByID(rel.Other(personID))
		if other == nil {
			continue
		}
		line := rel.Label
		if line == "" {
			line = rel.Type
		}
		fmt.Fprintf(&b, "Relationship: %s (%s)\n", other.Name, line)
	}
	return b.String()
}

// Counts returns the number of people and relationships.
func (r *Repository) Counts() (people, relationships int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.doc.People), len(r.doc.Relationships)
}

// Export returns a deep-enough snapshot of the document for serialization.
func (r *Repository) Export() ([]*types.Person, []*types.Relationship) {
	r.mu.Lock()
	defer r.mu.Unlock()

	people := make([]*types.Person, len(r.doc.People))
	copy(people, r.doc.People)
	rels := make([]*types.Relationship, len(r.doc.Relationships))
	copy(rels, r.doc.Relationships)
	return people, rels
}

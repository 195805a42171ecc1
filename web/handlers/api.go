package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/keepsake-ai/keepsake/internal/graph"
	"github.com/keepsake-ai/keepsake/internal/profile"
	"github.com/keepsake-ai/keepsake/internal/storage"
	"github.com/keepsake-ai/keepsake/pkg/types"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// QueueSizeGetter reports the extraction queue depth for /api/stats.
// The worker satisfies it; nil is allowed.
type QueueSizeGetter interface {
	QueueSize() int
}

// API carries the repositories the dashboard reads from.
type API struct {
	store  storage.MemoryStore
	people *graph.Repository
	self   *profile.SelfKnowledge
	queue  QueueSizeGetter
}

// NewAPI wires the dashboard handlers. queue may be nil.
func NewAPI(store storage.MemoryStore, people *graph.Repository, self *profile.SelfKnowledge, queue QueueSizeGetter) *API {
	return &API{store: store, people: people, self: self, queue: queue}
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Memories      int `json:"memories"`
	People        int `json:"people"`
	Relationships int `json:"relationships"`
	SelfEntries   int `json:"self_entries"`
	QueueSize     int `json:"queue_size"`
}

// GetStats handles GET /api/stats.
func (a *API) GetStats(w http.ResponseWriter, r *http.Request) {
	count, err := a.store.Count(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "failed to count memories")
		return
	}
	people, relationships := a.people.Counts()

	stats := StatsResponse{
		Memories:      count,
		People:        people,
		Relationships: relationships,
		SelfEntries:   len(a.self.Entries()),
	}
	if a.queue != nil {
		stats.QueueSize = a.queue.QueueSize()
	}
	respondJSON(w, http.StatusOK, stats)
}

// SearchResponse is the body of GET /api/search.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []types.Memory `json:"results"`
}

// Search handles GET /api/search?q=...&limit=...&kind=...&owner=...
func (a *API) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		respondError(w, http.StatusBadRequest, "MISSING_QUERY", "q parameter is required")
		return
	}

	limit := queryInt(r, "limit", defaultSearchLimit)
	if limit < 1 || limit > maxSearchLimit {
		limit = defaultSearchLimit
	}

	var filters storage.Filters
	if kind := r.URL.Query().Get("kind"); kind != "" {
		if !types.IsValidKind(types.Kind(kind)) {
			respondError(w, http.StatusBadRequest, "INVALID_KIND", "unknown memory kind")
			return
		}
		filters.Kind = types.Kind(kind)
	}
	if owner := r.URL.Query().Get("owner"); owner != "" {
		id, err := strconv.ParseInt(owner, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_OWNER", "owner must be an integer")
			return
		}
		filters.OwnerID = &id
	}

	results, err := a.store.Search(r.Context(), q, limit, filters)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "search failed")
		return
	}
	respondJSON(w, http.StatusOK, SearchResponse{Query: q, Results: results})
}

// Recent handles GET /api/recent?limit=...
func (a *API) Recent(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultSearchLimit)
	if limit < 1 || limit > maxSearchLimit {
		limit = defaultSearchLimit
	}

	memories, err := a.store.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "recent fetch failed")
		return
	}
	respondJSON(w, http.StatusOK, memories)
}

// Memories handles GET /api/memories?from=...&to=... (RFC 3339 timestamps).
func (a *API) Memories(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_RANGE", "from must be RFC 3339")
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_RANGE", "to must be RFC 3339")
		return
	}

	limit := queryInt(r, "limit", maxSearchLimit)
	memories, err := a.store.ByDateRange(r.Context(), from, to, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "range fetch failed")
		return
	}
	respondJSON(w, http.StatusOK, memories)
}

// UpdateMemoryRequest is the body of PATCH /api/memories/{id}. Absent fields
// are left untouched.
type UpdateMemoryRequest struct {
	Content  *string   `json:"content,omitempty"`
	Kind     *string   `json:"kind,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
	Subjects *[]string `json:"subjects,omitempty"`
}

// UpdateMemory handles PATCH /api/memories/{id}.
func (a *API) UpdateMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req UpdateMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "malformed JSON body")
		return
	}

	patch := storage.UpdatePatch{
		Content:  req.Content,
		Tags:     req.Tags,
		Subjects: req.Subjects,
	}
	if req.Kind != nil {
		kind := types.Kind(*req.Kind)
		patch.Kind = &kind
	}

	mem, err := a.store.Update(r.Context(), id, patch)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "update failed")
		return
	}
	if mem == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "no memory with that id")
		return
	}
	respondJSON(w, http.StatusOK, mem)
}

// DeleteMemory handles DELETE /api/memories/{id}.
func (a *API) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "no memory with that id")
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PersonSummary is one row of GET /api/people.
type PersonSummary struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Aliases       []string `json:"aliases,omitempty"`
	Bio           string   `json:"bio,omitempty"`
	Relationships int      `json:"relationships"`
}

// ListPeople handles GET /api/people.
func (a *API) ListPeople(w http.ResponseWriter, r *http.Request) {
	people := a.people.People()
	out := make([]PersonSummary, 0, len(people))
	for _, p := range people {
		out = append(out, PersonSummary{
			ID:            p.ID,
			Name:          p.Name,
			Aliases:       p.Aliases,
			Bio:           p.Bio,
			Relationships: len(a.people.RelationshipsOf(p.ID)),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// PersonDetail is the body of GET /api/people/{id}.
type PersonDetail struct {
	Person        *types.Person   `json:"person"`
	Relationships []RelatedPerson `json:"relationships,omitempty"`
	Memories      []types.Memory  `json:"memories,omitempty"`
}

// RelatedPerson is one edge in a person detail view.
type RelatedPerson struct {
	Type  string `json:"type"`
	Label string `json:"label,omitempty"`
	ID    string `json:"id"`
	Name  string `json:"name"`
}

// GetPerson handles GET /api/people/{id}: the person, their edges, and the
// memories mentioning them.
func (a *API) GetPerson(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p := a.people.Person(id)
	if p == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "no person with that id")
		return
	}

	detail := PersonDetail{Person: p}
	for _, rel := range a.people.RelationshipsOf(id) {
		detail.Relationships = append(detail.Relationships, RelatedPerson{
			Type:  rel.Relationship.Type,
			Label: rel.Relationship.Label,
			ID:    rel.Other.ID,
			Name:  rel.Other.Name,
		})
	}

	memories, err := a.store.BySubject(r.Context(), append([]string{p.Name}, p.Aliases...))
	if err == nil {
		detail.Memories = memories
	}
	respondJSON(w, http.StatusOK, detail)
}

// SelfResponse is the body of GET /api/self.
type SelfResponse struct {
	Name    string          `json:"name,omitempty"`
	Entries []profile.Entry `json:"entries"`
}

// GetSelf handles GET /api/self.
func (a *API) GetSelf(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, SelfResponse{
		Name:    a.self.Name(),
		Entries: a.self.Entries(),
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/keepsake-ai/keepsake/internal/graph"
	"github.com/keepsake-ai/keepsake/internal/profile"
	"github.com/keepsake-ai/keepsake/internal/storage"
	"github.com/keepsake-ai/keepsake/internal/storage/sqlite"
	"github.com/keepsake-ai/keepsake/pkg/types"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, 8)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed>>33)%2001-1000) / 1000
		norm += float64(vec[i]) * float64(vec[i])
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec, nil
}

type fixedQueue int

func (q fixedQueue) QueueSize() int { return int(q) }

func newTestAPI(t *testing.T) (*API, storage.MemoryStore, *graph.Repository) {
	t.Helper()
	dir := t.TempDir()

	store, err := sqlite.Open(filepath.Join(dir, "memories.db"), stubEmbedder{}, 8, storage.DefaultDedupThresholds())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	people := graph.Open(filepath.Join(dir, "graph.json"))
	self := profile.OpenSelfKnowledge(filepath.Join(dir, "self.json"))
	return NewAPI(store, people, self, fixedQueue(3)), store, people
}

func addMemory(t *testing.T, store storage.MemoryStore, content string, kind types.Kind, owner int64, subjects ...string) *types.Memory {
	t.Helper()
	mem, err := store.Add(context.Background(), storage.AddRequest{
		Content: content, Kind: kind, OwnerID: owner, Subjects: subjects,
	})
	if err != nil || mem == nil {
		t.Fatalf("add %q: mem=%v err=%v", content, mem, err)
	}
	return mem
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestGetStats(t *testing.T) {
	api, store, people := newTestAPI(t)
	addMemory(t, store, "We hiked up Mount Si", types.KindDiaryEntry, 1)
	a := people.FindOrCreate("Maya")
	b := people.FindOrCreate("Ben")
	people.AddRelationship(a.ID, b.ID, types.RelSibling, "siblings")

	rec := httptest.NewRecorder()
	api.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats StatsResponse
	decode(t, rec, &stats)
	if stats.Memories != 1 || stats.People != 2 || stats.Relationships != 1 || stats.QueueSize != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSearchValidation(t *testing.T) {
	api, _, _ := newTestAPI(t)

	rec := httptest.NewRecorder()
	api.Search(rec, httptest.NewRequest(http.MethodGet, "/api/search", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing q: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	api.Search(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=x&kind=grocery_list", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad kind: status = %d", rec.Code)
	}
}

func TestSearchWithFilters(t *testing.T) {
	api, store, _ := newTestAPI(t)
	addMemory(t, store, "Dana is allergic to peanuts", types.KindUserFact, 1)
	addMemory(t, store, "Sam started pottery", types.KindUserFact, 2)
	addMemory(t, store, "We hiked up Mount Si", types.KindDiaryEntry, 1)

	rec := httptest.NewRecorder()
	api.Search(rec, httptest.NewRequest(http.MethodGet, "/api/search?q=anything&kind=user_fact&owner=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	var resp SearchResponse
	decode(t, rec, &resp)
	if len(resp.Results) != 1 || resp.Results[0].Content != "Dana is allergic to peanuts" {
		t.Errorf("filtered search wrong: %+v", resp.Results)
	}
}

func TestUpdateMemory(t *testing.T) {
	api, store, _ := newTestAPI(t)
	mem := addMemory(t, store, "original", types.KindDiaryEntry, 1)

	body, _ := json.Marshal(UpdateMemoryRequest{Content: strPtr("revised")})
	req := httptest.NewRequest(http.MethodPatch, "/api/memories/"+mem.ID, bytes.NewReader(body))
	req.SetPathValue("id", mem.ID)

	rec := httptest.NewRecorder()
	api.UpdateMemory(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var updated types.Memory
	decode(t, rec, &updated)
	if updated.Content != "revised" {
		t.Errorf("content = %q", updated.Content)
	}

	// Unknown id maps to 404.
	req = httptest.NewRequest(http.MethodPatch, "/api/memories/nope", bytes.NewReader(body))
	req.SetPathValue("id", "nope")
	rec = httptest.NewRecorder()
	api.UpdateMemory(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d", rec.Code)
	}
}

func TestDeleteMemory(t *testing.T) {
	api, store, _ := newTestAPI(t)
	mem := addMemory(t, store, "doomed", types.KindDiaryEntry, 1)

	req := httptest.NewRequest(http.MethodDelete, "/api/memories/"+mem.ID, nil)
	req.SetPathValue("id", mem.ID)
	rec := httptest.NewRecorder()
	api.DeleteMemory(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	api.DeleteMemory(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d", rec.Code)
	}
}

func TestPeopleEndpoints(t *testing.T) {
	api, store, people := newTestAPI(t)
	maya := people.FindOrCreate("Maya")
	people.AddAlias(maya.ID, "Mai")
	people.SetBio(maya.ID, "plays the cello")
	ben := people.FindOrCreate("Ben")
	people.AddRelationship(maya.ID, ben.ID, types.RelSibling, "siblings")
	addMemory(t, store, "Maya's recital went great", types.KindDiaryEntry, 1, "Maya")

	rec := httptest.NewRecorder()
	api.ListPeople(rec, httptest.NewRequest(http.MethodGet, "/api/people", nil))
	var list []PersonSummary
	decode(t, rec, &list)
	if len(list) != 2 {
		t.Fatalf("people = %d", len(list))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/people/"+maya.ID, nil)
	req.SetPathValue("id", maya.ID)
	rec = httptest.NewRecorder()
	api.GetPerson(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var detail PersonDetail
	decode(t, rec, &detail)
	if detail.Person.Name != "Maya" || len(detail.Relationships) != 1 {
		t.Errorf("detail = %+v", detail)
	}
	if detail.Relationships[0].Name != "Ben" {
		t.Errorf("related = %+v", detail.Relationships[0])
	}
	if len(detail.Memories) != 1 {
		t.Errorf("memories about maya = %d", len(detail.Memories))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/people/missing", nil)
	req.SetPathValue("id", "missing")
	rec = httptest.NewRecorder()
	api.GetPerson(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown person: status = %d", rec.Code)
	}
}

func strPtr(s string) *string { return &s }

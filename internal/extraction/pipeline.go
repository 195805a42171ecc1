// Package extraction turns conversation turns into validated store
// mutations: new memories through the dedup-gated store, people-graph
// updates, and capped self-knowledge entries. It runs after the reply has
// been sent and its failures never surface to the user.
package extraction

import (
	"context"
	"log"

	"github.com/keepsake-ai/keepsake/internal/graph"
	"github.com/keepsake-ai/keepsake/internal/llm"
	"github.com/keepsake-ai/keepsake/internal/notify"
	"github.com/keepsake-ai/keepsake/internal/profile"
	"github.com/keepsake-ai/keepsake/internal/storage"
	"github.com/keepsake-ai/keepsake/pkg/types"
)

// Job is one unit of extraction work: the latest user-authored turn plus
// the context that was assembled for the reply.
type Job struct {
	Turn    string
	Context string
	OwnerID int64
}

// Pipeline applies one extraction run end to end.
type Pipeline struct {
	generator llm.TextGenerator
	store     storage.MemoryStore
	people    *graph.Repository
	self      *profile.SelfKnowledge
	events    *notify.EventWriter
}

// NewPipeline wires the pipeline. events may be nil when no dashboard is
// listening.
func NewPipeline(generator llm.TextGenerator, store storage.MemoryStore, people *graph.Repository, self *profile.SelfKnowledge, events *notify.EventWriter) *Pipeline {
	return &Pipeline{
		generator: generator,
		store:     store,
		people:    people,
		self:      self,
		events:    events,
	}
}

// Run performs one extraction pass. Every failure is logged and swallowed:
// the reply has already been sent, so there is no one to surface it to.
func (p *Pipeline) Run(ctx context.Context, job Job) {
	raw, err := p.generator.Complete(ctx, llm.ExtractionPrompt(job.Turn, job.Context))
	if err != nil {
		log.Printf("extraction: generation failed: %v", err)
		return
	}

	result := llm.ParseExtraction(raw)
	if result.Empty() {
		return
	}

	p.applyMemories(ctx, job, result.Memories)
	p.applyPeople(result.People)
	p.applySelf(result.SelfKnowledge)

	p.notify(notify.EventExtractionComplete, "")
}

// applyMemories inserts accepted candidates through the dedup-gated Add.
// Extraction never bypasses dedup.
func (p *Pipeline) applyMemories(ctx context.Context, job Job, candidates []llm.MemoryCandidate) {
	for _, c := range candidates {
		req := storage.AddRequest{
			Content:    c.Content,
			Kind:       types.Kind(c.Kind),
			OwnerID:    job.OwnerID,
			Tags:       c.Tags,
			SourceText: job.Turn,
		}
		if c.Subject != "" {
			req.Subjects = []string{c.Subject}
		}

		mem, err := p.store.Add(ctx, req)
		if err != nil {
			log.Printf("extraction: add memory failed: %v", err)
			continue
		}
		if mem == nil {
			continue // near-duplicate, skipped by the store
		}
		p.notify(notify.EventMemoryAdded, mem.ID)
	}
}

// applyPeople resolves each update via FindOrCreate and applies mutations in
// the order rename, aliases, bio, relationship edges. The graph document is
// persisted once per run.
func (p *Pipeline) applyPeople(updates []llm.PersonUpdate) {
	if len(updates) == 0 {
		return
	}

	for _, u := range updates {
		person := p.people.FindOrCreate(u.Name)

		if u.Rename != "" {
			p.people.Rename(person.ID, u.Rename)
		}
		for _, alias := range u.Aliases {
			p.people.AddAlias(person.ID, alias)
		}
		if u.Bio != "" {
			p.people.SetBio(person.ID, u.Bio)
		}
		for _, edge := range u.Relationships {
			other := p.people.FindOrCreate(edge.RelatedTo)
			p.people.AddRelationship(person.ID, other.ID, edge.Type, edge.Label)
		}
		p.notify(notify.EventPersonUpdated, person.ID)
	}

	if err := p.people.Save(); err != nil {
		log.Printf("extraction: graph save failed: %v", err)
	}
}

// applySelf records the agent's name and self-knowledge entries; the entry
// cap is enforced by the profile repository.
func (p *Pipeline) applySelf(update *llm.SelfUpdate) {
	if update == nil {
		return
	}
	if update.Name != "" {
		p.self.SetName(update.Name)
	}
	for _, entry := range update.Entries {
		if !p.self.Add(entry) {
			log.Printf("extraction: self-knowledge entry rejected (cap reached)")
		}
	}
	if err := p.self.Save(); err != nil {
		log.Printf("extraction: self-knowledge save failed: %v", err)
	}
}

func (p *Pipeline) notify(eventType, subject string) {
	if p.events == nil {
		return
	}
	if err := p.events.Notify(eventType, subject); err != nil {
		log.Printf("extraction: notify failed: %v", err)
	}
}

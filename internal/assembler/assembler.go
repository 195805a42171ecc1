// Package assembler builds the context block injected into a generation
// call: what is known about the active speaker, a window of recent activity,
// the people graph, and the agent's self-model. Every section is capped to a
// small fixed size to bound prompt growth.
package assembler

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/keepsake-ai/keepsake/internal/graph"
	"github.com/keepsake-ai/keepsake/internal/profile"
	"github.com/keepsake-ai/keepsake/internal/storage"
	"github.com/keepsake-ai/keepsake/pkg/types"
)

const (
	maxSpeakerFacts   = 15
	maxCrossFacts     = 10
	maxRecentMemories = 10

	// recentFetch bounds the Recent() read the windows are carved from.
	recentFetch = 50
)

// Assembler gathers context from every repository.
type Assembler struct {
	store  storage.MemoryStore
	people *graph.Repository
	self   *profile.SelfKnowledge
	notes  *profile.Notes
}

// New wires the assembler. notes may be nil.
func New(store storage.MemoryStore, people *graph.Repository, self *profile.SelfKnowledge, notes *profile.Notes) *Assembler {
	return &Assembler{store: store, people: people, self: self, notes: notes}
}

// Assemble builds the context block for a reply to the given turn. Store
// failures are logged and their section skipped: a degraded context must
// never block the reply.
func (a *Assembler) Assemble(ctx context.Context, turn string, speakerID int64) string {
	var sections []string

	if s := a.speakerFacts(ctx, turn, speakerID); s != "" {
		sections = append(sections, s)
	}

	recent, err := a.store.Recent(ctx, recentFetch)
	if err != nil {
		log.Printf("assembler: recent fetch failed: %v", err)
	} else {
		if s := a.crossSpeakerFacts(recent, speakerID); s != "" {
			sections = append(sections, s)
		}
		if s := a.recentMemories(recent, speakerID); s != "" {
			sections = append(sections, s)
		}
	}

	if s := a.people.FormatContext(); s != "" {
		sections = append(sections, s)
	}
	if s := a.self.FormatContext(); s != "" {
		sections = append(sections, s)
	}
	if a.notes != nil {
		if s := a.notes.FormatContext(); s != "" {
			sections = append(sections, s)
		}
	}

	return strings.Join(sections, "\n")
}

// speakerFacts retrieves facts about the active speaker, ranked by
// similarity to the current turn.
func (a *Assembler) speakerFacts(ctx context.Context, turn string, speakerID int64) string {
	facts, err := a.store.Search(ctx, turn, maxSpeakerFacts, storage.Filters{
		Kind:    types.KindUserFact,
		OwnerID: &speakerID,
	})
	if err != nil {
		log.Printf("assembler: speaker fact search failed: %v", err)
		return ""
	}
	if len(facts) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("What I know about you:\n")
	for _, f := range facts {
		fmt.Fprintf(&b, "- %s\n", f.Content)
	}
	return b.String()
}

// crossSpeakerFacts returns the most recent facts about other speakers.
// Context is intentionally shared across users of the same agent.
func (a *Assembler) crossSpeakerFacts(recent []types.Memory, speakerID int64) string {
	var b strings.Builder
	n := 0
	for _, m := range recent {
		if m.Kind != types.KindUserFact || m.OwnerID == speakerID {
			continue
		}
		if n == 0 {
			b.WriteString("Recent facts about others:\n")
		}
		fmt.Fprintf(&b, "- %s\n", m.Content)
		n++
		if n >= maxCrossFacts {
			break
		}
	}
	return b.String()
}

// recentMemories returns recent non-fact memories, excluding the speaker's
// own facts (already covered above) and conversation summaries.
func (a *Assembler) recentMemories(recent []types.Memory, speakerID int64) string {
	var b strings.Builder
	n := 0
	for _, m := range recent {
		if m.Kind == types.KindConversationSummary {
			continue
		}
		if m.Kind == types.KindUserFact && m.OwnerID == speakerID {
			continue // already covered by the speaker facts section
		}
		if n == 0 {
			b.WriteString("Recent memories:\n")
		}
		fmt.Fprintf(&b, "- [%s] %s\n", m.Kind, m.Content)
		n++
		if n >= maxRecentMemories {
			break
		}
	}
	return b.String()
}

package llm

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/keepsake-ai/keepsake/pkg/types"
)

// MemoryCandidate is one memory proposed by the model.
type MemoryCandidate struct {
	Content string   `json:"content"`
	Kind    string   `json:"kind"`
	Tags    []string `json:"tags"`
	Subject string   `json:"subject,omitempty"`
}

// RelationshipEdge is one proposed edge between the person update's subject
// and another named person.
type RelationshipEdge struct {
	RelatedTo string `json:"related_to"`
	Type      string `json:"type"`
	Label     string `json:"label"`
}

// PersonUpdate is one proposed update to the people graph.
type PersonUpdate struct {
	Name          string             `json:"name"`
	Rename        string             `json:"rename,omitempty"`
	Aliases       []string           `json:"aliases,omitempty"`
	Bio           string             `json:"bio,omitempty"`
	Relationships []RelationshipEdge `json:"relationships,omitempty"`
}

// SelfUpdate is a proposed update to the agent's self-knowledge.
type SelfUpdate struct {
	Name    string   `json:"name,omitempty"`
	Entries []string `json:"entries,omitempty"`
}

// ExtractionResult is the validated output of one extraction call. All
// slices may be empty; SelfKnowledge is nil when there is no usable update.
type ExtractionResult struct {
	Memories      []MemoryCandidate `json:"memories"`
	People        []PersonUpdate    `json:"people"`
	SelfKnowledge *SelfUpdate       `json:"self,omitempty"`
}

// Empty reports whether the result carries nothing to apply.
func (r *ExtractionResult) Empty() bool {
	return len(r.Memories) == 0 && len(r.People) == 0 && r.SelfKnowledge == nil
}

// extractJSON pulls the first complete JSON object out of text that may
// contain markdown fences or prose around it, despite instructions.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	braceCount := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		char := text[i]
		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return text
}

// ParseExtraction validates raw model output against the extraction schema.
// The model is untrusted input: unparsable output yields the empty result,
// never an error, and invalid items are dropped individually rather than
// failing the batch.
func ParseExtraction(raw string) *ExtractionResult {
	var parsed ExtractionResult
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		log.Printf("llm: unparsable extraction output, treating as empty: %v", err)
		return &ExtractionResult{}
	}

	result := &ExtractionResult{}
	for _, mem := range parsed.Memories {
		if strings.TrimSpace(mem.Content) == "" {
			continue
		}
		if !types.IsExtractableKind(types.Kind(mem.Kind)) {
			log.Printf("llm: skipping memory with kind %q", mem.Kind)
			continue
		}
		if mem.Tags == nil {
			mem.Tags = []string{}
		}
		result.Memories = append(result.Memories, mem)
	}

	for _, person := range parsed.People {
		update, ok := validatePersonUpdate(person)
		if !ok {
			continue
		}
		result.People = append(result.People, update)
	}

	result.SelfKnowledge = validateSelfUpdate(parsed.SelfKnowledge)
	return result
}

// validatePersonUpdate drops invalid edges individually and then drops the
// whole update when nothing usable remains besides the bare name.
func validatePersonUpdate(p PersonUpdate) (PersonUpdate, bool) {
	if strings.TrimSpace(p.Name) == "" {
		return PersonUpdate{}, false
	}

	var edges []RelationshipEdge
	for _, edge := range p.Relationships {
		if !types.IsValidRelationshipType(edge.Type) {
			log.Printf("llm: skipping relationship edge with type %q", edge.Type)
			continue
		}
		if strings.TrimSpace(edge.RelatedTo) == "" || strings.TrimSpace(edge.Label) == "" {
			continue
		}
		edges = append(edges, edge)
	}
	p.Relationships = edges

	var aliases []string
	for _, a := range p.Aliases {
		if strings.TrimSpace(a) != "" {
			aliases = append(aliases, a)
		}
	}
	p.Aliases = aliases

	if strings.TrimSpace(p.Rename) == "" &&
		len(p.Aliases) == 0 &&
		strings.TrimSpace(p.Bio) == "" &&
		len(p.Relationships) == 0 {
		return PersonUpdate{}, false
	}
	return p, true
}

// validateSelfUpdate collapses an update with neither a usable name nor any
// usable entries to nil.
func validateSelfUpdate(s *SelfUpdate) *SelfUpdate {
	if s == nil {
		return nil
	}
	var entries []string
	for _, e := range s.Entries {
		if strings.TrimSpace(e) != "" {
			entries = append(entries, e)
		}
	}
	s.Entries = entries
	if strings.TrimSpace(s.Name) == "" && len(s.Entries) == 0 {
		return nil
	}
	return s
}

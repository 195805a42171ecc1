// Package llm provides the LLM integration for Keepsake: provider clients
// for completion and embeddings, the strict JSON-only extraction prompt, and
// the response parser that validates untrusted model output.
package llm

import (
	"fmt"
	"strings"

	"github.com/keepsake-ai/keepsake/pkg/types"
)

// relationshipTypeDescriptions maps relationship type IDs to brief
// descriptions used in the extraction prompt.
var relationshipTypeDescriptions = map[string]string{
	types.RelSibling:  "Brother or sister",
	types.RelParent:   "Parent of the related person",
	types.RelChild:    "Child of the related person",
	types.RelPartner:  "Spouse or romantic partner",
	types.RelFriend:   "Friend",
	types.RelCoworker: "Colleague or coworker",
	types.RelPet:      "Pet and owner",
	types.RelOther:    "Any other relationship",
}

// ExtractionPrompt builds the strict JSON-only prompt for a single pipeline
// run. turn is the latest user-authored message; contextBlock is the
// assembled context (known facts, related memories, known people, notes).
//
// The output schema is documented in the prompt itself because no provider
// guarantees structured output; ParseExtraction validates everything.
func ExtractionPrompt(turn, contextBlock string) string {
	var kinds []string
	for _, k := range types.ExtractableKinds {
		kinds = append(kinds, string(k))
	}

	var relTypes strings.Builder
	for _, t := range types.ValidRelationshipTypes {
		fmt.Fprintf(&relTypes, "- %s: %s\n", t, relationshipTypeDescriptions[t])
	}

	return fmt.Sprintf(`TASK: Extract long-term memories, people updates, and self-knowledge from a conversation turn.
OUTPUT: ONLY valid JSON. NO markdown. NO code blocks. NO explanation.

MEMORY KINDS (ONLY these): %s

RELATIONSHIP TYPES (ONLY these):
%s
REQUIRED JSON STRUCTURE:
Your response MUST start with { and end with }
{
  "memories": [
    {"content":"...","kind":"user_fact","tags":["..."],"subject":"Alice"}
  ],
  "people": [
    {"name":"Alice","rename":"","aliases":["Ally"],"bio":"short snippet","relationships":[{"related_to":"Bob","type":"sibling","label":"Alice's brother"}]}
  ],
  "self": {"name":"","entries":["..."]}
}

RULES:
1. "memories": durable facts or diary-worthy events only, nothing transient.
2. Each memory MUST have non-empty content, a kind from the allowed list, and tags as an array (may be empty).
3. "subject" names the person the memory is about, when there is one.
4. "people": only people actually mentioned; omit fields you have nothing for.
5. Relationship "type" MUST be from the allowed list; "related_to" and "label" must be non-empty.
6. "self": updates about the agent itself only; use empty values when there is nothing.
7. Return {"memories":[],"people":[],"self":{"name":"","entries":[]}} when there is nothing to extract.

CONTEXT:
%s

LATEST USER TURN:
%s

RESPOND WITH ONLY THE JSON OBJECT:`,
		strings.Join(kinds, ", "), relTypes.String(), contextBlock, turn)
}

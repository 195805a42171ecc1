package llm

import (
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantJSON string
	}{
		{
			name:     "plain JSON object",
			input:    `{"key": "value"}`,
			wantJSON: `{"key": "value"}`,
		},
		{
			name:     "JSON with markdown code block",
			input:    "```json\n{\"key\": \"value\"}\n```",
			wantJSON: `{"key": "value"}`,
		},
		{
			name:     "JSON with surrounding text",
			input:    "Here is the JSON:\n{\"key\": \"value\"}\nEnd of JSON",
			wantJSON: `{"key": "value"}`,
		},
		{
			name:     "nested JSON object",
			input:    `{"outer": {"inner": "value"}}`,
			wantJSON: `{"outer": {"inner": "value"}}`,
		},
		{
			name:     "JSON with escaped quotes in string",
			input:    `{"text": "He said \"hello\""}`,
			wantJSON: `{"text": "He said \"hello\""}`,
		},
		{
			name:     "braces inside strings ignored",
			input:    `{"text": "a { brace } pair"}`,
			wantJSON: `{"text": "a { brace } pair"}`,
		},
		{
			name:     "no JSON present",
			input:    "just some text without json",
			wantJSON: "just some text without json",
		},
		{
			name:     "empty string",
			input:    "",
			wantJSON: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractJSON(tt.input)
			if got != tt.wantJSON {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.input, got, tt.wantJSON)
			}
		})
	}
}

func TestParseExtraction_ValidOutput(t *testing.T) {
	raw := `{
		"memories": [
			{"content": "Maya plays the cello", "kind": "user_fact", "tags": ["music"], "subject": "Maya"},
			{"content": "We went hiking at Mount Si", "kind": "diary_entry", "tags": []}
		],
		"people": [
			{"name": "Maya", "bio": "plays the cello", "relationships": [
				{"related_to": "Ben", "type": "sibling", "label": "Maya's brother"}
			]}
		],
		"self": {"name": "", "entries": ["I enjoy talking about music"]}
	}`

	result := ParseExtraction(raw)
	if len(result.Memories) != 2 {
		t.Fatalf("expected 2 memories, got %d", len(result.Memories))
	}
	if result.Memories[0].Subject != "Maya" {
		t.Errorf("expected subject Maya, got %q", result.Memories[0].Subject)
	}
	if len(result.People) != 1 {
		t.Fatalf("expected 1 person update, got %d", len(result.People))
	}
	if len(result.People[0].Relationships) != 1 {
		t.Errorf("expected 1 relationship edge, got %d", len(result.People[0].Relationships))
	}
	if result.SelfKnowledge == nil || len(result.SelfKnowledge.Entries) != 1 {
		t.Errorf("expected self-knowledge with 1 entry, got %+v", result.SelfKnowledge)
	}
}

func TestParseExtraction_MarkdownFenced(t *testing.T) {
	raw := "```json\n{\"memories\":[{\"content\":\"x\",\"kind\":\"user_fact\",\"tags\":[]}],\"people\":[]}\n```"
	result := ParseExtraction(raw)
	if len(result.Memories) != 1 {
		t.Fatalf("expected 1 memory from fenced output, got %d", len(result.Memories))
	}
}

func TestParseExtraction_MalformedYieldsEmpty(t *testing.T) {
	for _, raw := range []string{
		"",
		"not json at all",
		`{"memories": [unclosed`,
		`[1, 2, 3]`,
	} {
		result := ParseExtraction(raw)
		if result == nil {
			t.Fatal("result must never be nil")
		}
		if !result.Empty() {
			t.Errorf("malformed input %q should yield empty result, got %+v", raw, result)
		}
	}
}

func TestParseExtraction_PartialAcceptance(t *testing.T) {
	raw := `{
		"memories": [
			{"content": "", "kind": "user_fact", "tags": []},
			{"content": "valid", "kind": "user_fact", "tags": []},
			{"content": "wrong kind", "kind": "conversation_summary", "tags": []},
			{"content": "unknown kind", "kind": "grocery_list", "tags": []}
		]
	}`
	result := ParseExtraction(raw)
	if len(result.Memories) != 1 {
		t.Fatalf("expected 1 surviving memory, got %d", len(result.Memories))
	}
	if result.Memories[0].Content != "valid" {
		t.Errorf("wrong memory survived: %+v", result.Memories[0])
	}
}

func TestParseExtraction_DropsInvalidEdgesThenEmptyPerson(t *testing.T) {
	raw := `{
		"people": [
			{"name": "Maya", "relationships": [
				{"related_to": "Ben", "type": "nemesis", "label": "rival"},
				{"related_to": "", "type": "friend", "label": "friend"},
				{"related_to": "Ben", "type": "friend", "label": ""}
			]}
		]
	}`
	result := ParseExtraction(raw)
	if len(result.People) != 0 {
		t.Errorf("person with only invalid edges should be dropped, got %+v", result.People)
	}
}

func TestParseExtraction_PersonWithoutNameDropped(t *testing.T) {
	raw := `{"people": [{"name": "  ", "bio": "someone"}]}`
	result := ParseExtraction(raw)
	if len(result.People) != 0 {
		t.Errorf("nameless person update should be dropped, got %+v", result.People)
	}
}

func TestParseExtraction_SelfUpdateCollapses(t *testing.T) {
	raw := `{"self": {"name": "", "entries": ["", "  "]}}`
	result := ParseExtraction(raw)
	if result.SelfKnowledge != nil {
		t.Errorf("self update with no usable content should collapse to nil, got %+v", result.SelfKnowledge)
	}

	raw = `{"self": {"name": "Keepsake", "entries": []}}`
	result = ParseExtraction(raw)
	if result.SelfKnowledge == nil || result.SelfKnowledge.Name != "Keepsake" {
		t.Errorf("self update with a name should survive, got %+v", result.SelfKnowledge)
	}
}

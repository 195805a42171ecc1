package types

import "testing"

func TestIsValidKind(t *testing.T) {
	for _, kind := range ValidKinds {
		if !IsValidKind(kind) {
			t.Errorf("IsValidKind(%q) = false", kind)
		}
	}
	for _, kind := range []Kind{"", "grocery_list", "Diary_Entry"} {
		if IsValidKind(kind) {
			t.Errorf("IsValidKind(%q) = true", kind)
		}
	}
}

func TestIsExtractableKind(t *testing.T) {
	cases := map[Kind]bool{
		KindDiaryEntry:          true,
		KindUserFact:            true,
		KindPhotoMemory:         true,
		KindVideoMemory:         true,
		KindConversationSummary: false,
		KindReflection:          false,
		"grocery_list":          false,
	}
	for kind, want := range cases {
		if got := IsExtractableKind(kind); got != want {
			t.Errorf("IsExtractableKind(%q) = %v, want %v", kind, got, want)
		}
	}
}

func TestIsValidRelationshipType(t *testing.T) {
	for _, rel := range ValidRelationshipTypes {
		if !IsValidRelationshipType(rel) {
			t.Errorf("IsValidRelationshipType(%q) = false", rel)
		}
	}
	for _, rel := range []string{"", "enemy", "Friend"} {
		if IsValidRelationshipType(rel) {
			t.Errorf("IsValidRelationshipType(%q) = true", rel)
		}
	}
}

func TestPersonMatches(t *testing.T) {
	p := &Person{Name: "Maya", Aliases: []string{"Mai", "sis"}}

	for _, name := range []string{"Maya", "maya", "MAYA", "Mai", "SIS"} {
		if !p.Matches(name) {
			t.Errorf("Matches(%q) = false", name)
		}
	}
	if p.Matches("Ben") {
		t.Error("Matches(Ben) = true")
	}
	if p.Matches("") {
		t.Error("Matches empty string against a named person")
	}
}

func TestPersonHasAlias(t *testing.T) {
	p := &Person{Name: "Maya", Aliases: []string{"Mai"}}

	if !p.HasAlias("mai") {
		t.Error("HasAlias should be case-insensitive")
	}
	// The canonical name is not an alias.
	if p.HasAlias("Maya") {
		t.Error("HasAlias must not match the canonical name")
	}
}

func TestRelationshipEndpoints(t *testing.T) {
	r := &Relationship{PersonA: "a1", PersonB: "b2", Type: RelSibling}

	if !r.Touches("a1") || !r.Touches("b2") {
		t.Error("Touches should hit both endpoints")
	}
	if r.Touches("c3") {
		t.Error("Touches hit a non-endpoint")
	}

	if got := r.Other("a1"); got != "b2" {
		t.Errorf("Other(a1) = %q", got)
	}
	if got := r.Other("b2"); got != "a1" {
		t.Errorf("Other(b2) = %q", got)
	}
	if got := r.Other("c3"); got != "" {
		t.Errorf("Other(c3) = %q, want empty", got)
	}
}

func TestRelationshipSamePair(t *testing.T) {
	r := &Relationship{PersonA: "a1", PersonB: "b2"}

	if !r.SamePair("a1", "b2") || !r.SamePair("b2", "a1") {
		t.Error("SamePair should ignore endpoint order")
	}
	if r.SamePair("a1", "c3") {
		t.Error("SamePair matched a different pair")
	}
}

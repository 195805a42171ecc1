package identity

import "testing"

func TestEnvOverrideWins(t *testing.T) {
	t.Setenv("KEEPSAKE_SPEAKER_NAME", "Dana")
	if got := detectUncached(); got != "Dana" {
		t.Errorf("detected %q, want Dana", got)
	}
}

func TestWhitespaceEnvIgnored(t *testing.T) {
	t.Setenv("KEEPSAKE_SPEAKER_NAME", "   ")
	if got := detectUncached(); got == "" {
		t.Error("blank env should fall through, not return empty")
	}
}

func TestNeverEmpty(t *testing.T) {
	t.Setenv("KEEPSAKE_SPEAKER_NAME", "")
	if got := detectUncached(); got == "" {
		t.Error("detection must always produce a usable name")
	}
}

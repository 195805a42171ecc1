// Package identity resolves the display name of the person on the other end
// of a chat session, so the speaker can be linked to a node in the people
// graph without asking them who they are.
package identity

import (
	"os"
	"os/user"
	"strings"
	"sync"
)

var (
	cachedName string
	once       sync.Once
)

// SpeakerName returns the best available name for the local speaker.
// Checked in order: KEEPSAKE_SPEAKER_NAME, the OS account's full name, the OS
// account's username, "friend". Cached after the first call.
func SpeakerName() string {
	once.Do(func() {
		cachedName = detectUncached()
	})
	return cachedName
}

// detectUncached performs detection without caching. Split out for tests.
func detectUncached() string {
	if name := strings.TrimSpace(os.Getenv("KEEPSAKE_SPEAKER_NAME")); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil {
		if name := strings.TrimSpace(u.Name); name != "" {
			return name
		}
		if u.Username != "" {
			return u.Username
		}
	}
	return "friend"
}

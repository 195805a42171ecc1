package types

import (
	"strings"
	"time"
)

// Person represents an entity the system has learned about: the primary
// user, another human, or a pet.
type Person struct {
	ID   string `json:"id"`   // Unique identifier
	Name string `json:"name"` // Canonical display name, mutable via rename

	// Aliases are alternate names. Each alias is case-insensitively distinct
	// from Name and from every other alias.
	Aliases []string `json:"aliases,omitempty"`

	Bio             string    `json:"bio,omitempty"`               // Short free-text descriptor, capped at MaxBioLength
	LinkedAccountID string    `json:"linked_account_id,omitempty"` // External identity linkage
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Matches reports whether name equals the person's name or any alias,
// case-insensitively.
func (p *Person) Matches(name string) bool {
	if strings.EqualFold(p.Name, name) {
		return true
	}
	for _, alias := range p.Aliases {
		if strings.EqualFold(alias, name) {
			return true
		}
	}
	return false
}

// HasAlias reports whether the person already carries the alias,
// case-insensitively.
func (p *Person) HasAlias(alias string) bool {
	for _, a := range p.Aliases {
		if strings.EqualFold(a, alias) {
			return true
		}
	}
	return false
}

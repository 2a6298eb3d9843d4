// Package identity describes who the assistant is. The orchestrator reads
// an Identity on every turn to build the model instructions.
package identity

import (
	"errors"
	"strings"
)

// Identity is the read-only persona of the assistant.
type Identity struct {
	Name    string   `json:"name" yaml:"name" toml:"name"`
	Role    string   `json:"role" yaml:"role" toml:"role"`
	Purpose string   `json:"purpose" yaml:"purpose" toml:"purpose"`
	Values  []string `json:"values,omitempty" yaml:"values" toml:"values"`
}

// Validate reports missing required fields.
func (id Identity) Validate() error {
	var errs []error
	if strings.TrimSpace(id.Name) == "" {
		errs = append(errs, errors.New("identity: name is required"))
	}
	if strings.TrimSpace(id.Role) == "" {
		errs = append(errs, errors.New("identity: role is required"))
	}
	return errors.Join(errs...)
}

// Provider supplies the current identity. Implementations must be safe for
// concurrent use.
type Provider interface {
	Identity() Identity
}

// Static is a Provider that always returns the same identity.
type Static Identity

// Identity returns a copy of s.
func (s Static) Identity() Identity {
	id := Identity(s)
	id.Values = append([]string(nil), s.Values...)
	return id
}

// Default is the identity used when none is configured.
var Default = Identity{
	Name:    "Steward",
	Role:    "community assistant",
	Purpose: "help members of this community get things done with the tools available to them",
	Values:  []string{"honesty", "helpfulness", "respect for people's time"},
}

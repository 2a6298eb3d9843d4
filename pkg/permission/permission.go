// Package permission defines the ordered caller trust levels and the single
// visibility predicate used by tool listing and tool invocation.
//
// Levels are ordered from most to least trusted: anchor, trusted, public.
// A caller may see and call a tool when its level is at least as trusted as
// the tool's visibility.
package permission

import (
	"fmt"
	"strings"
)

// Level is a caller trust level or a required visibility.
type Level string

const (
	Anchor  Level = "anchor"
	Trusted Level = "trusted"
	Public  Level = "public"
)

const (
	// Default is the level assumed for a caller that did not state one.
	Default = Public

	// DefaultVisibility is the visibility of a tool that did not state one,
	// and the fixed visibility of every resource.
	DefaultVisibility = Anchor
)

// rank orders levels; higher is more trusted. Unknown levels are absent.
var rank = map[Level]int{
	Public:  1,
	Trusted: 2,
	Anchor:  3,
}

// Levels returns all known levels from most to least trusted.
func Levels() []Level {
	return []Level{Anchor, Trusted, Public}
}

// HasPermission reports whether a caller at level caller may access
// something that requires level required.
//
// The predicate is total: an unknown caller level ranks below public and an
// unknown required level ranks above anchor, so malformed input never
// grants access.
func HasPermission(caller, required Level) bool {
	c, ok := rank[caller]
	if !ok {
		return false
	}
	r, ok := rank[required]
	if !ok {
		return false
	}
	return c >= r
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	_, ok := rank[l]
	return ok
}

// String returns the level name.
func (l Level) String() string {
	return string(l)
}

// OrDefault returns l, or Default when l is empty.
func (l Level) OrDefault() Level {
	if l == "" {
		return Default
	}
	return l
}

// VisibilityOrDefault returns l, or DefaultVisibility when l is empty.
func (l Level) VisibilityOrDefault() Level {
	if l == "" {
		return DefaultVisibility
	}
	return l
}

// Parse converts a case-insensitive level name into a Level.
func Parse(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown permission level %q (want anchor, trusted, or public)", s)
	}
	return l, nil
}

// MustParse is like Parse but panics on unknown names. It is meant for
// constants in tests and static tool tables.
func MustParse(s string) Level {
	l, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return l
}

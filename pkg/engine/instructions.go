package engine

import (
	"fmt"
	"strings"

	"github.com/rhuss/steward/pkg/identity"
	"github.com/rhuss/steward/pkg/permission"
)

var tierNotes = map[permission.Level]string{
	permission.Anchor: "You are talking with an anchor: a maintainer of this community with full " +
		"administrative authority. Administrative tools are available to them.",
	permission.Trusted: "You are talking with a trusted member of this community. They can use " +
		"member tools but not administrative ones.",
	permission.Public: "You are talking with a member of the public. Only public tools are " +
		"available; do not discuss internal or administrative matters.",
}

const behaviorPolicy = `How you work:
- Use a tool whenever the answer depends on live data or an action; never guess what a tool would return.
- Only call tools you have been given. If none fits, say what you cannot do.
- Never claim an action happened unless a tool result confirms it. Report tool errors plainly.
- Destructive actions (deleting, banning, overwriting) need the user's explicit confirmation first. Describe exactly what will happen and wait.
- Keep answers short and direct. Prefer a few sentences over long lists unless asked for detail.`

// BuildInstructions renders the system instructions for one call. The text
// depends only on the identity and the caller's tier.
func BuildInstructions(id identity.Identity, level permission.Level) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, %s.", id.Name, id.Role)
	if id.Purpose != "" {
		fmt.Fprintf(&b, " Your purpose is to %s.", id.Purpose)
	}
	b.WriteString("\n")
	if len(id.Values) > 0 {
		fmt.Fprintf(&b, "You value %s.\n", strings.Join(id.Values, ", "))
	}

	b.WriteString("\n")
	note, ok := tierNotes[level]
	if !ok {
		note = tierNotes[permission.Default]
	}
	b.WriteString(note)
	b.WriteString("\n\n")
	b.WriteString(behaviorPolicy)

	return b.String()
}

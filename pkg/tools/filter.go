package tools

// Call is a model's request to invoke a tool during a turn.
type Call struct {
	// ID is the call identifier assigned by the model backend.
	ID string

	// Name is the tool name.
	Name string

	// Arguments is the JSON-encoded arguments string as produced by the
	// model. It may be malformed.
	Arguments string
}

// Rejection pairs a call with the message fed back to the model.
type Rejection struct {
	Call    Call
	Message string
}

// FilterResult holds the outcome of filtering calls against the active set.
type FilterResult struct {
	// Allowed contains calls whose tool was offered to the model.
	Allowed []Call

	// Rejected contains calls to tools outside the active set.
	Rejected []Rejection
}

// FilterCalls checks each call against the names offered to the model for
// this turn. A model that calls a tool it was never offered gets an error
// result instead of reaching the router.
func FilterCalls(calls []Call, active []string) FilterResult {
	offered := make(map[string]bool, len(active))
	for _, name := range active {
		offered[name] = true
	}

	var result FilterResult
	for _, call := range calls {
		if offered[call.Name] {
			result.Allowed = append(result.Allowed, call)
			continue
		}
		result.Rejected = append(result.Rejected, Rejection{
			Call:    call,
			Message: "tool " + call.Name + " is not available in this conversation",
		})
	}
	return result
}

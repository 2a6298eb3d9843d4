// Package transport connects outer interfaces to the conversation engine.
//
// Service is the operation set a transport exposes. Chat turns travel
// through a ChatHandler chain so recovery, request ids and logging wrap
// every turn the same way regardless of the interface it arrived on.
// Errors are normalized to api.APIError at this boundary and mapped to
// HTTP status codes by HTTPStatusFromError.
package transport

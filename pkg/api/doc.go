// Package api defines the wire-level types shared by the steward core and
// its transports.
//
// The package performs no I/O. It holds the conversation turn model, the
// structured agent response returned by a chat turn, the pending
// confirmation record, and the structured error type that transports map
// onto status codes.
//
// Core types:
//   - [Turn]: one append-only conversation entry (user or assistant)
//   - [AgentResponse]: result of one chat turn or confirmation
//   - [ToolResult]: one tool call and its outcome inside a turn
//   - [PendingConfirmation]: a destructive action awaiting consent
//   - [APIError]: structured error with type, code, param, and message
package api

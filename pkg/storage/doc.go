// Package storage defines the conversation history contract and helpers
// shared by the history store implementations (memory, postgres, sqlite).
//
// A history store is append-only: turns are added one at a time and read
// back as the most recent window of a conversation, in chronological
// order. Conversations are scoped by the tenant carried in the context, so
// two tenants using the same conversation id never see each other's turns.
package storage

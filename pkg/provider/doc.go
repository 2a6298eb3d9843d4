// Package provider defines the protocol-agnostic interface the step loop
// uses to talk to a language model backend, together with the
// backend-facing message and tool types.
package provider

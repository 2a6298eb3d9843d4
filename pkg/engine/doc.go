// Package engine implements the conversation orchestrator. One call to
// Engine.Chat runs one bounded turn: it loads a window of history, computes
// the tools the caller may use right now, builds the instructions, drives
// the model through at most StepLimit tool-calling steps, and records the
// user and assistant turns. Pending destructive actions are resolved through
// the confirm package.
package engine

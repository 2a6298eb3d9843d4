package engine

import "time"

// Defaults for Config fields left at their zero value.
const (
	DefaultStepLimit    = 10
	DefaultHistoryLimit = 50
	DefaultTurnTimeout  = 5 * time.Minute
)

// Config holds configuration for the orchestrator.
type Config struct {
	// Model is the model name sent to the provider.
	Model string

	// StepLimit bounds the model steps of one turn. Zero or negative means
	// DefaultStepLimit.
	StepLimit int

	// HistoryLimit is the number of prior turns sent to the model. Zero or
	// negative means DefaultHistoryLimit.
	HistoryLimit int

	// TurnTimeout bounds a whole turn, including every tool call. Zero
	// means DefaultTurnTimeout; negative disables the timeout.
	TurnTimeout time.Duration

	// ParallelToolCalls runs the tool calls of one step concurrently.
	ParallelToolCalls bool

	// Temperature and MaxTokens are passed through to the provider.
	Temperature *float64
	MaxTokens   *int
}

func (c Config) stepLimit() int {
	if c.StepLimit <= 0 {
		return DefaultStepLimit
	}
	return c.StepLimit
}

func (c Config) historyLimit() int {
	if c.HistoryLimit <= 0 {
		return DefaultHistoryLimit
	}
	return c.HistoryLimit
}

func (c Config) turnTimeout() time.Duration {
	if c.TurnTimeout == 0 {
		return DefaultTurnTimeout
	}
	return c.TurnTimeout
}

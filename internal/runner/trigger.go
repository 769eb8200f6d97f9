package runner

import (
	"context"
	"time"
)

// Trigger passes the caller-supplied trigger payload through unchanged.
// The trigger sub-kind (manual, schedule, webhook) only affects how the
// payload was obtained upstream, never this contract.
type Trigger struct{}

// NewTrigger creates the trigger runner.
func NewTrigger() *Trigger { return &Trigger{} }

func (t *Trigger) Run(ctx context.Context, in Input) (Result, error) {
	if in.Value != nil {
		return Result{Output: in.Value}, nil
	}
	// No payload (manual run without data): emit a minimal marker so
	// downstream nodes still receive something well-formed.
	return Result{Output: map[string]any{
		"triggered": true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}}, nil
}

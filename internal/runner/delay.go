package runner

import (
	"context"
	"fmt"
	"time"
)

// Delay waits for a configured duration, then passes its input through
// unchanged. The wait parks on a timer and honors cancellation, so a worker
// is never held hostage by a sleeping node.
type Delay struct{}

// NewDelay creates the delay runner.
func NewDelay() *Delay { return &Delay{} }

func (d *Delay) Run(ctx context.Context, in Input) (Result, error) {
	duration, err := delayDuration(in.Config)
	if err != nil {
		return Result{}, err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	return Result{Output: in.Value}, nil
}

// delayDuration reads "duration" ("2s", "500ms") or numeric
// "duration_seconds" from the node config.
func delayDuration(config map[string]any) (time.Duration, error) {
	if s := configString(config, "duration"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("parse delay duration: %w", err)
		}
		if d < 0 {
			return 0, fmt.Errorf("delay duration must not be negative")
		}
		return d, nil
	}
	if v, ok := config["duration_seconds"]; ok {
		if secs, ok := toFloat(v); ok {
			if secs < 0 {
				return 0, fmt.Errorf("delay duration must not be negative")
			}
			return time.Duration(secs * float64(time.Second)), nil
		}
	}
	return 0, fmt.Errorf("delay duration not configured")
}

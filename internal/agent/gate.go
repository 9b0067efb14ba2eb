package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/mdsync/internal/logging"
)

// ErrNotReady is returned when a readiness condition does not hold within
// the retry bound.
var ErrNotReady = errors.New("not ready")

// Gate polls a readiness condition a bounded number of times.
type Gate struct {
	Attempts int
	Interval time.Duration
	Logger   *logging.Logger
}

// Wait returns once ready reports true. It gives up with ErrNotReady
// after Attempts polls, logging a warning naming what was awaited.
func (g Gate) Wait(ctx context.Context, what string, ready func() bool) error {
	if ready() {
		return nil
	}
	ticker := time.NewTicker(g.Interval)
	defer ticker.Stop()

	for i := 1; i < g.Attempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if ready() {
			return nil
		}
	}
	if g.Logger != nil {
		g.Logger.Warn("%s not ready after %d attempts", what, g.Attempts)
	}
	return fmt.Errorf("%s: %w", what, ErrNotReady)
}

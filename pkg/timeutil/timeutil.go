// Package timeutil has context aware timing helpers.
package timeutil

import (
	"context"
	"iter"
	"time"
)

// IterTick yields once per period until ctx is done. Ticks missed by a slow
// consumer are dropped.
func IterTick(ctx context.Context, period time.Duration) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				if ctx.Err() != nil || !yield(t) {
					return
				}
			}
		}
	}
}

package scraper

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

const minSleep = 500 * time.Millisecond

// Pacer injects humanized delays between navigations: a base duration drawn
// from a range, then skewed by a variance percentage in either direction.
type Pacer struct {
	variance float64
	rng      *rand.Rand
}

func NewPacer(variance float64, rng *rand.Rand) *Pacer {
	return &Pacer{variance: variance, rng: rng}
}

// Duration picks the next pause from [min, max] with the configured variance
// applied, floored at 500ms.
func (p *Pacer) Duration(min, max time.Duration) time.Duration {
	if min > max {
		min, max = max, min
	}

	base := min + time.Duration(p.rng.Int63n(int64(max-min)+1))
	delta := time.Duration(float64(base) * p.variance)

	final := base
	if delta > 0 {
		final += time.Duration(p.rng.Int63n(int64(2*delta)+1)) - delta
	}
	if final < minSleep {
		final = minSleep
	}
	return final
}

// Sleep blocks for a jittered duration or until the context is cancelled.
func (p *Pacer) Sleep(ctx context.Context, min, max time.Duration) error {
	d := p.Duration(min, max)
	slog.Debug("pacing sleep", "duration", d)

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

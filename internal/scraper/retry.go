package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RetryConfig holds the adaptive retry knobs. Bot blocks grow the retry delay
// geometrically; plain network failures grow the navigation timeout instead.
type RetryConfig struct {
	MaxRetries int

	BaseTimeout time.Duration
	MaxTimeout  time.Duration

	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DelayMultiplier float64

	// consecutive successes before timeouts and delays reset to defaults
	SuccessThreshold int
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:       5,
		BaseTimeout:      30 * time.Second,
		MaxTimeout:       60 * time.Second,
		BaseDelay:        5 * time.Second,
		MaxDelay:         600 * time.Second,
		DelayMultiplier:  2.0,
		SuccessThreshold: 5,
	}
}

// networkDelayCap bounds the delay growth for plain network errors; only bot
// blocks are worth waiting minutes for.
const networkDelayCap = 60 * time.Second

// Retrier wraps navigation actions with retries and shared adaptive state.
// The state is shared across the catalog walker and all fetch workers so a
// block detected anywhere slows the whole collector down.
type Retrier struct {
	cfg   RetryConfig
	pacer *Pacer

	mu                   sync.Mutex
	timeout              time.Duration
	delay                time.Duration
	consecutiveSuccesses int
}

func NewRetrier(cfg RetryConfig, pacer *Pacer) *Retrier {
	return &Retrier{
		cfg:     cfg,
		pacer:   pacer,
		timeout: cfg.BaseTimeout,
		delay:   cfg.BaseDelay,
	}
}

// Timeout returns the current adaptive navigation timeout.
func (r *Retrier) Timeout() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeout
}

// Do runs action up to MaxRetries times. The action receives the current
// adaptive timeout. Returns true once the action succeeds.
func (r *Retrier) Do(ctx context.Context, name string, action func(ctx context.Context, timeout time.Duration) error) bool {
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return false
		}

		err := action(ctx, r.Timeout())
		if err == nil {
			r.recordSuccess()
			return true
		}

		slog.Warn("action failed", "action", name, "attempt", attempt, "max_attempts", r.cfg.MaxRetries, "error", err)

		delay := r.recordFailure(err)

		slog.Info("waiting before retry", "action", name, "delay", delay)
		if sleepErr := r.pacer.Sleep(ctx, delay, delay); sleepErr != nil {
			return false
		}
	}

	slog.Error("action failed after all attempts", "action", name, "attempts", r.cfg.MaxRetries)
	return false
}

func (r *Retrier) recordSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.consecutiveSuccesses++
	if r.consecutiveSuccesses >= r.cfg.SuccessThreshold {
		if r.timeout > r.cfg.BaseTimeout || r.delay > r.cfg.BaseDelay {
			slog.Info("stable connection detected, resetting timeouts and delays to defaults")
			r.timeout = r.cfg.BaseTimeout
			r.delay = r.cfg.BaseDelay
		}
		r.consecutiveSuccesses = 0
	}
}

// recordFailure escalates the adaptive state and returns the delay to wait
// before the next attempt.
func (r *Retrier) recordFailure(err error) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.consecutiveSuccesses = 0

	if IsBotBlock(err) {
		// when blocked, the only cure is waiting longer
		next := time.Duration(float64(r.delay) * r.cfg.DelayMultiplier)
		if next > r.cfg.MaxDelay {
			next = r.cfg.MaxDelay
		}
		r.delay = next
		slog.Warn("bot block detected, increasing retry delay", "delay", r.delay)
		return r.delay
	}

	next := time.Duration(float64(r.timeout) * 1.5)
	if next > r.cfg.MaxTimeout {
		next = r.cfg.MaxTimeout
	}
	r.timeout = next

	nextDelay := time.Duration(float64(r.delay) * 1.5)
	if nextDelay > networkDelayCap {
		nextDelay = networkDelayCap
	}
	r.delay = nextDelay

	slog.Info("network glitch, increasing page timeout", "timeout", r.timeout)
	return r.delay
}

package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval with the current time.
type TickFunc func(ctx context.Context, now time.Time) error

// Options tune loop behaviour.
type Options struct {
	// Name tags log lines so concurrent loops stay distinguishable.
	Name     string
	Interval time.Duration
	// Immediate fires the first tick right away instead of waiting one
	// full interval.
	Immediate bool
}

// Loop drives a periodic background job until its context is cancelled.
// Tick errors are logged and the loop keeps running; a broken poll cycle
// must not take the process down.
type Loop struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Loop instance.
func New(opts Options, logger zerolog.Logger) *Loop {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.Name == "" {
		opts.Name = "loop"
	}
	return &Loop{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Str("loop", opts.Name).Logger(),
	}
}

// Run blocks, invoking tick every interval until ctx is cancelled.
func (l *Loop) Run(ctx context.Context, tick TickFunc) error {
	if l.opts.Immediate {
		l.fire(ctx, tick, time.Now().UTC())
	}

	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			l.fire(ctx, tick, now.UTC())
		}
	}
}

func (l *Loop) fire(ctx context.Context, tick TickFunc, now time.Time) {
	if err := tick(ctx, now); err != nil {
		l.logger.Error().Err(err).Msg("tick failed")
	}
}

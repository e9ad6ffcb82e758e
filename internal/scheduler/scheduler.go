package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per polling cycle.
type TickFunc func(ctx context.Context, cycleStart time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
}

// Scheduler drives the fixed-interval polling loop. The next cycle is
// scheduled relative to the previous cycle's start, so processing time does
// not drift the cadence; overruns clip the sleep to zero.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function each cycle until ctx is cancelled.
// A tick error is logged and the loop continues.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleepCtx(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	for {
		start := time.Now().UTC()
		s.logger.Debug().Time("cycle_start", start).Msg("executing cycle")

		if err := tick(ctx, start); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error().Err(err).Time("cycle_start", start).Msg("cycle execution failed")
		}

		delay := s.opts.Interval - time.Since(start)
		if delay < 0 {
			s.logger.Warn().
				Dur("interval", s.opts.Interval).
				Dur("elapsed", time.Since(start)).
				Msg("cycle overran the polling interval")
			delay = 0
		}

		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		// Still honour cancellation between back-to-back cycles.
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunStopsOnCancel(t *testing.T) {
	s := New(Options{Interval: 5 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	ticks := 0
	err := s.Run(ctx, func(ctx context.Context, cycleStart time.Time) error {
		ticks++
		if ticks >= 3 {
			cancel()
		}
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ticks < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", ticks)
	}
}

func TestRunContinuesAfterTickError(t *testing.T) {
	s := New(Options{Interval: time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	ticks := 0
	_ = s.Run(ctx, func(ctx context.Context, cycleStart time.Time) error {
		ticks++
		if ticks >= 2 {
			cancel()
		}
		return errors.New("transient")
	})

	if ticks < 2 {
		t.Fatalf("loop should survive tick errors, got %d ticks", ticks)
	}
}

func TestNewPanicsOnBadInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("zero interval must panic")
		}
	}()
	New(Options{Interval: 0}, zerolog.Nop())
}

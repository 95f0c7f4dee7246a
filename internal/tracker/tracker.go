package tracker

import (
	"context"
	"time"

	"github.com/skysieve/mlatd/internal/adapters/mq/queue"
	"github.com/skysieve/mlatd/pkg/logger"
)

// Tracker drives an Engine from real time: it consumes observations from a
// queue and fires resolutions as their deadlines pass. It is the single
// goroutine touching the Engine, which preserves the single-writer ownership
// of aircraft state.
type Tracker struct {
	engine *Engine
	queue  queue.Queue
	clock  func() time.Time
	log    logger.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock overrides the wall clock, for tests.
func WithClock(clock func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithTrackerLogger sets the tracker logger.
func WithTrackerLogger(log logger.Logger) TrackerOption {
	return func(t *Tracker) {
		t.log = log
	}
}

// NewTracker wraps an Engine with a real-time loop fed from q.
func NewTracker(engine *Engine, q queue.Queue, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		engine: engine,
		queue:  q,
		clock:  time.Now,
		log:    logger.Get().Named("tracker"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func unix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Run consumes observations and fires due resolutions until ctx is cancelled
// or the queue closes. It always returns nil after a clean drain.
func (t *Tracker) Run(ctx context.Context) error {
	observations := t.queue.Dequeue(ctx)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	rearm := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		deadline, ok := t.engine.NextDeadline()
		if !ok {
			timer.Reset(time.Hour)
			return
		}
		wait := time.Duration((deadline - unix(t.clock())) * float64(time.Second))
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}

	t.log.Info("correlation loop started")
	for {
		select {
		case <-ctx.Done():
			t.log.Info("correlation loop stopped", logger.Error(ctx.Err()))
			return nil

		case o, ok := <-observations:
			if !ok {
				t.log.Info("observation queue closed")
				return nil
			}
			t.engine.Record(unix(t.clock()), o)
			rearm()

		case <-timer.C:
			t.engine.Advance(unix(t.clock()))
			rearm()
		}
	}
}

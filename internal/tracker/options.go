package tracker

import (
	"time"

	"github.com/skysieve/mlatd/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithDelay sets D, the correlation window between a message's first copy
// and its resolution.
func WithDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.delay = d.Seconds()
		}
	}
}

// WithPropagationSpeed overrides the propagation speed used by the cluster
// feasibility check, in metres per second.
func WithPropagationSpeed(speed float64) Option {
	return func(e *Engine) {
		if speed > 0 {
			e.speed = speed
		}
	}
}

// WithSolver attaches the external position solver. Without one, every
// resolution aborts before clustering.
func WithSolver(s Solver) Option {
	return func(e *Engine) {
		e.solver = s
	}
}

// WithBlacklist attaches the operator blacklist.
func WithBlacklist(b Blacklist) Option {
	return func(e *Engine) {
		e.blacklist = b
	}
}

// WithSmoother attaches the track smoother fed on every accepted fix.
func WithSmoother(s TrackSmoother) Option {
	return func(e *Engine) {
		e.smoother = s
	}
}

// WithDiagnosticLog attaches the per-fix diagnostic log.
func WithDiagnosticLog(d DiagnosticLog) Option {
	return func(e *Engine) {
		e.diag = d
	}
}

// WithOutputHandler registers a handler invoked per accepted fix. May be
// given multiple times.
func WithOutputHandler(h OutputHandler) Option {
	return func(e *Engine) {
		if h != nil {
			e.outputs = append(e.outputs, h)
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

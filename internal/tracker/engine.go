// Package tracker is the message correlation core: it groups copies of one
// transponder transmission heard by multiple receivers, clusters their
// normalized arrival times, and gates solved positions through a hysteresis
// acceptance policy.
//
// The Engine is deterministic: every entry point takes the current time from
// the caller and nothing inside it sleeps or reads a clock. The Tracker in
// this package drives an Engine from real time and an observation queue. All
// Engine state, including the aircraft records it mutates, is owned by a
// single caller goroutine.
package tracker

import (
	"sync/atomic"

	"github.com/skysieve/mlatd/internal/domain/cluster"
	"github.com/skysieve/mlatd/internal/domain/model"
	"github.com/skysieve/mlatd/pkg/logger"
	"github.com/skysieve/mlatd/pkg/metrics"
)

const (
	// defaultDelay is D: the fixed correlation window in seconds between a
	// message's first copy and its one-shot resolution.
	defaultDelay = 2.5

	// quorumFloor is the copy count below which no spatial information is
	// extractable and resolution aborts unconditionally.
	quorumFloor = 3

	// priorExpiry is how long an accepted result biases later resolutions.
	priorExpiry = 120.0
)

// messageGroup collects the copies of one in-flight message. It lives from
// the first copy until its resolution fires, exactly once, with no renewal.
type messageGroup struct {
	firstSeen float64
	copies    []model.Observation
}

// Engine holds the correlation table and resolution pipeline.
type Engine struct {
	delay       float64
	speed       float64
	pendingN    atomic.Int64
	pending     map[string]*messageGroup
	sched       scheduler
	partitioner *cluster.Partitioner

	registry   AircraftRegistry
	normalizer Normalizer
	solver     Solver
	blacklist  Blacklist
	smoother   TrackSmoother
	diag       DiagnosticLog
	outputs    []OutputHandler

	log logger.Logger
}

// NewEngine creates an Engine. The registry and normalizer are mandatory
// collaborators; the solver, smoother, blacklist, diagnostic log, and output
// handlers are optional and attached through options.
func NewEngine(registry AircraftRegistry, normalizer Normalizer, opts ...Option) *Engine {
	e := &Engine{
		delay:      defaultDelay,
		speed:      cluster.DefaultPropagationSpeed,
		pending:    make(map[string]*messageGroup),
		registry:   registry,
		normalizer: normalizer,
		log:        logger.Get().Named("tracker"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.partitioner = cluster.NewPartitioner(cluster.WithPropagationSpeed(e.speed))
	return e
}

// Record adds one received copy of a message. The first copy of a message
// creates its group and schedules resolution at now+D; later copies only
// append. Never fails, never blocks.
func (e *Engine) Record(now float64, o model.Observation) {
	metrics.RecordObservation()

	key := string(o.Message)
	g, ok := e.pending[key]
	if !ok {
		g = &messageGroup{firstSeen: now}
		e.pending[key] = g
		e.sched.schedule(key, now+e.delay)
		e.pendingN.Store(int64(len(e.pending)))
		metrics.RecordGroupCreated()
		metrics.UpdatePendingGroups(len(e.pending))
	}
	g.copies = append(g.copies, o)
}

// NextDeadline returns the unix time of the earliest pending resolution.
func (e *Engine) NextDeadline() (float64, bool) {
	return e.sched.next()
}

// Advance fires every resolution due at or before now, in deadline order.
// Each fired group is removed from the table unconditionally, whether or not
// its resolution produced anything.
func (e *Engine) Advance(now float64) {
	for {
		key, ok := e.sched.pop(now)
		if !ok {
			return
		}
		g := e.pending[key]
		delete(e.pending, key)
		e.pendingN.Store(int64(len(e.pending)))
		metrics.RecordGroupResolved()
		metrics.UpdatePendingGroups(len(e.pending))
		e.resolve(now, g)
	}
}

// Pending returns the number of in-flight message groups. Unlike the rest
// of the Engine it is safe to call from any goroutine.
func (e *Engine) Pending() int {
	return int(e.pendingN.Load())
}

package tracker

import (
	"gonum.org/v1/gonum/mat"

	"github.com/skysieve/mlatd/internal/diaglog"
	"github.com/skysieve/mlatd/internal/domain/cluster"
	"github.com/skysieve/mlatd/internal/domain/geo"
	"github.com/skysieve/mlatd/internal/domain/model"
)

// Normalizer maps raw per-receiver timestamps onto one or more mutually
// comparable timebases. Receivers in different returned components cannot be
// compared and are clustered independently.
type Normalizer interface {
	Normalize(timestamps map[*model.Receiver][]float64) []cluster.Component
}

// Solver estimates a transmitter position from a feasible cluster. A nil
// Solution without error means the solver declined to produce an estimate.
type Solver interface {
	Solve(c []cluster.Entry, altitude, altitudeError *float64, seed geo.ECEF) (*model.Solution, error)
}

// AircraftRegistry resolves decoded addresses to tracked aircraft. Messages
// from aircraft the registry does not know are discarded.
type AircraftRegistry interface {
	Aircraft(addr uint32) (*model.Aircraft, bool)
}

// Blacklist reports whether a receiver operator's measurements are excluded
// from resolution.
type Blacklist interface {
	Contains(operator string) bool
}

// TrackSmoother consumes accepted fixes for filtering over time.
type TrackSmoother interface {
	Update(ac *model.Aircraft, firstSeen float64, entries []cluster.Entry,
		altitude, altitudeError *float64, pos geo.ECEF, cov *mat.SymDense, distinct int)
}

// DiagnosticLog receives one record per accepted fix. Implementations must
// not block the resolution path.
type DiagnosticLog interface {
	Write(r diaglog.Record)
}

// Result is one accepted fix as delivered to output handlers.
type Result struct {
	FirstSeen  float64 // unix seconds the message was first heard
	Address    uint32
	Position   geo.ECEF
	Covariance *mat.SymDense // nil when the solver returned none
	Receivers  []*model.Receiver
	Distinct   int
	Aircraft   *model.Aircraft
}

// OutputHandler is invoked for every accepted fix, from the resolution loop.
type OutputHandler func(r Result)

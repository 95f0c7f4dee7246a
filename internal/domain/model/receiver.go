// Package model contains domain entities shared between layers.
package model

import (
	"sync"

	"github.com/skysieve/mlatd/internal/domain/geo"
)

// Receiver is a ground station feeding observations into the engine. Each
// receiver owns its own clock domain; its timestamps are not comparable to
// other receivers' until normalized.
type Receiver struct {
	ID       string
	Operator string
	Position geo.ECEF

	mu        sync.Mutex
	distances map[*Receiver]float64
}

// NewReceiver constructs a receiver at the given position.
func NewReceiver(id, operator string, position geo.ECEF) *Receiver {
	return &Receiver{
		ID:        id,
		Operator:  operator,
		Position:  position,
		distances: make(map[*Receiver]float64),
	}
}

// DistanceTo returns the pairwise distance to another receiver in metres.
// Results are cached per pair; the clustering pass asks for the same pairs
// over and over.
func (r *Receiver) DistanceTo(other *Receiver) float64 {
	if r == other {
		return 0
	}

	r.mu.Lock()
	d, ok := r.distances[other]
	r.mu.Unlock()
	if ok {
		return d
	}

	d = geo.Distance(r.Position, other.Position)

	r.mu.Lock()
	r.distances[other] = d
	r.mu.Unlock()

	other.mu.Lock()
	other.distances[r] = d
	other.mu.Unlock()

	return d
}

// Observation is one receiver's clock reading for one captured message copy.
type Observation struct {
	Receiver  *Receiver
	Timestamp float64 // seconds, receiver clock domain
	Message   []byte
}

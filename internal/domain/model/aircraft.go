package model

import (
	"gonum.org/v1/gonum/mat"

	"github.com/skysieve/mlatd/internal/domain/geo"
)

// Result is an accepted multilateration fix. At most one Result is live per
// aircraft at any time; the acceptance policy replaces it, never merges.
type Result struct {
	Position   geo.ECEF
	Covariance *mat.SymDense // may be nil when the solver returned none
	Variance   float64       // trace of Covariance, or the low-confidence sentinel
	Distinct   int
	Time       float64 // unix seconds of the cluster this fix was solved from
}

// Solution is what the external position solver returns. Covariance may be
// nil; the acceptance policy then treats the estimate as low-confidence.
type Solution struct {
	Position   geo.ECEF
	Covariance *mat.SymDense
}

// Aircraft holds the mutable per-aircraft track state this engine reads and
// writes. It is owned by the single resolution loop; see the tracker package
// for the single-writer contract.
//
// All times are unix seconds, matching measurement timestamps.
type Aircraft struct {
	Address uint32 // 24-bit ICAO address

	Altitude         *float64 // feet; nil when never observed
	LastAltitudeTime float64
	Squawk   *uint16
	Callsign string

	// LastSeen is maintained by the registry, under its lock, from frames
	// with a verified CRC. It drives expiry, nothing else.
	LastSeen float64

	// LastResult is nil when the aircraft has no live accepted result.
	LastResult *Result
}

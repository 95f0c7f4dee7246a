package tracker

import (
	"time"

	"github.com/skysieve/mlatd/internal/adapters/modes"
	"github.com/skysieve/mlatd/internal/domain/cluster"
	"github.com/skysieve/mlatd/internal/domain/geo"
	"github.com/skysieve/mlatd/internal/domain/model"
	"github.com/skysieve/mlatd/pkg/logger"
	"github.com/skysieve/mlatd/pkg/metrics"
)

// Abort reasons for the resolution pipeline.
const (
	abortQuorum      = "quorum"
	abortDecode      = "decode"
	abortUnknown     = "unknown_aircraft"
	abortReceivers   = "insufficient_receivers"
	abortRateLimited = "rate_limited"
	abortNoSolver    = "no_solver"
	abortNoCluster   = "no_cluster"
	abortNotAccepted = "not_accepted"
)

// Altitude-aiding error model: base uncertainty plus linear growth with the
// age of the last altitude report, in feet.
const (
	altitudeErrorBaseFt = 250.0
	altitudeErrorRateFt = 70.0 // per second

	// altitudeAidedQuorum applies when the altitude error (in metres) is
	// under altitudeErrorLimit; otherwise the full quorum is required so a
	// stale altitude cannot hide a 2D/3D ambiguity.
	altitudeAidedQuorum = 3
	defaultQuorum       = 4
	altitudeErrorLimit  = 1000.0
)

// Rate limiting of repeated resolutions for one aircraft. Improvements are
// never throttled; equal-or-worse evidence is, and the throttle loosens with
// time since the last accepted result.
const (
	rateLimitWorse = 15.0 // seconds, candidate receiver count below prior
	rateLimitEqual = 2.0  // seconds, candidate receiver count equal to prior
)

// priorContext is the last accepted result as seen by one resolution. When
// no live prior exists the sentinel fields mean "unconstrained": no seed
// bias, effectively infinite variance, zero distinct count, and an elapsed
// time beyond every rate-limit horizon.
type priorContext struct {
	elapsed  float64
	distinct int
	variance float64
	position geo.ECEF
	hasPos   bool
}

func priorFor(ac *model.Aircraft, now float64) priorContext {
	r := ac.LastResult
	if r == nil || now-r.Time > priorExpiry {
		return priorContext{
			elapsed:  priorExpiry,
			distinct: 0,
			variance: noPriorVariance,
		}
	}
	return priorContext{
		elapsed:  now - r.Time,
		distinct: r.Distinct,
		variance: r.Variance,
		position: r.Position,
		hasPos:   true,
	}
}

// resolve runs the pipeline for one fired message group. Every early exit is
// a silent no-op; nothing here is an error.
func (e *Engine) resolve(now float64, g *messageGroup) {
	start := time.Now()
	defer func() {
		metrics.RecordResolutionDuration(time.Since(start).Seconds())
	}()

	if len(g.copies) < quorumFloor {
		metrics.RecordResolutionAborted(abortQuorum)
		return
	}

	msg, err := modes.Decode(g.copies[0].Message)
	if err != nil {
		metrics.RecordResolutionAborted(abortDecode)
		return
	}
	ac, ok := e.registry.Aircraft(msg.Address)
	if !ok {
		metrics.RecordResolutionAborted(abortUnknown)
		return
	}

	// State refresh happens regardless of whether a position comes out.
	if msg.Altitude != nil {
		alt := float64(*msg.Altitude)
		ac.Altitude = &alt
		ac.LastAltitudeTime = now
	}
	if msg.Squawk != nil {
		ac.Squawk = msg.Squawk
	}
	if msg.Callsign != "" {
		ac.Callsign = msg.Callsign
	}

	prior := priorFor(ac, now)

	var altitude, altitudeError *float64
	minReceivers := defaultQuorum
	if ac.Altitude != nil {
		altM := *ac.Altitude * geo.FtToM
		altErrM := (altitudeErrorBaseFt + altitudeErrorRateFt*(now-ac.LastAltitudeTime)) * geo.FtToM
		altitude = &altM
		altitudeError = &altErrM
		if altErrM < altitudeErrorLimit {
			minReceivers = altitudeAidedQuorum
		}
	}

	timestamps := make(map[*model.Receiver][]float64, len(g.copies))
	for _, o := range g.copies {
		if e.blacklist != nil && e.blacklist.Contains(o.Receiver.Operator) {
			continue
		}
		timestamps[o.Receiver] = append(timestamps[o.Receiver], o.Timestamp)
	}
	if len(timestamps) < minReceivers {
		metrics.RecordResolutionAborted(abortReceivers)
		return
	}

	if prior.elapsed < rateLimitWorse && len(timestamps) < prior.distinct {
		metrics.RecordResolutionAborted(abortRateLimited)
		return
	}
	if prior.elapsed < rateLimitEqual && len(timestamps) == prior.distinct {
		metrics.RecordResolutionAborted(abortRateLimited)
		return
	}

	if e.solver == nil {
		metrics.RecordResolutionAborted(abortNoSolver)
		return
	}

	var clusters []cluster.Cluster
	for _, component := range e.normalizer.Normalize(timestamps) {
		if len(component) < minReceivers {
			continue
		}
		clusters = append(clusters, e.partitioner.Partition(component, minReceivers)...)
	}
	if len(clusters) == 0 {
		metrics.RecordResolutionAborted(abortNoCluster)
		return
	}
	metrics.RecordClustersFormed(len(clusters))

	if !e.selectAndAccept(now, ac, g.firstSeen, clusters, minReceivers, altitude, altitudeError, prior) {
		metrics.RecordResolutionAborted(abortNotAccepted)
		return
	}

	e.log.Debug("position accepted",
		logger.Uint32("icao", ac.Address),
		logger.Int("copies", len(g.copies)))
}

package tracker

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/skysieve/mlatd/internal/diaglog"
	"github.com/skysieve/mlatd/internal/domain/cluster"
	"github.com/skysieve/mlatd/internal/domain/geo"
	"github.com/skysieve/mlatd/internal/domain/model"
	"github.com/skysieve/mlatd/pkg/logger"
	"github.com/skysieve/mlatd/pkg/metrics"
)

const (
	// noPriorVariance stands in for "no accepted result": effectively
	// infinite, so any solved variance beats it.
	noPriorVariance = 1e9

	// lowConfidenceVariance is both the variance assigned to a solution
	// without covariance and the ceiling above which a solution is too
	// inaccurate to use. Roughly 10km of position uncertainty.
	lowConfidenceVariance = 100e6 // m^2

	// freshResultAge and varianceSlack implement the hysteresis: within
	// freshResultAge seconds of the prior, a candidate must not be more
	// than varianceSlack times noisier than the prior to replace it.
	freshResultAge = 2.0
	varianceSlack  = 1.1

	// holdDownAge rejects clusters with fewer distinct receivers than the
	// prior; equalEvidenceMargin is subtracted from the correlation delay
	// to form the window in which equal evidence is also rejected.
	holdDownAge         = 10.0
	equalEvidenceMargin = 0.5
)

// selectAndAccept tries candidate clusters richest-first and commits the
// first one that survives the acceptance policy. Returns whether any fix was
// accepted.
func (e *Engine) selectAndAccept(now float64, ac *model.Aircraft, firstSeen float64,
	clusters []cluster.Cluster, minReceivers int, altitude, altitudeError *float64, prior priorContext) bool {

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Distinct < clusters[j].Distinct
	})

	for i := len(clusters) - 1; i >= 0; i-- {
		c := clusters[i]

		// Weaker-than-prior evidence shortly after an accepted result is
		// not retried with smaller clusters: they are weaker still.
		if prior.elapsed < holdDownAge && c.Distinct < prior.distinct {
			return false
		}
		if prior.elapsed < e.delay-equalEvidenceMargin && c.Distinct == prior.distinct {
			return false
		}

		seed := c.Entries[0].Receiver.Position
		if prior.hasPos {
			seed = prior.position
		}

		metrics.RecordSolverAttempt()
		sol, err := e.solver.Solve(c.Entries, altitude, altitudeError, seed)
		if err != nil || sol == nil {
			metrics.RecordSolverFailure()
			continue
		}

		variance := lowConfidenceVariance
		if sol.Covariance != nil {
			variance = mat.Trace(sol.Covariance)
		}
		if variance > lowConfidenceVariance {
			continue
		}
		if prior.elapsed < freshResultAge && variance > prior.variance*varianceSlack {
			continue
		}

		e.commit(now, ac, firstSeen, c, minReceivers, altitude, altitudeError, sol, variance)
		return true
	}
	return false
}

// commit makes an accepted solution the aircraft's live result and fans it
// out to the smoother, output handlers, and diagnostic log.
func (e *Engine) commit(now float64, ac *model.Aircraft, firstSeen float64,
	c cluster.Cluster, minReceivers int, altitude, altitudeError *float64, sol *model.Solution, variance float64) {

	ac.LastResult = &model.Result{
		Position:   sol.Position,
		Covariance: sol.Covariance,
		Variance:   variance,
		Distinct:   c.Distinct,
		Time:       now,
	}
	metrics.RecordPositionAccepted(c.Distinct, variance)

	// A quorum-4 solve freed the vertical axis; the geometric altitude it
	// found is worth surfacing next to the reported one, if any.
	if minReceivers > quorumFloor {
		llh := geo.ECEFToLLH(sol.Position)
		fields := []logger.Field{
			logger.Uint32("icao", ac.Address),
			logger.Float64("solved_alt_ft", math.Round(llh.Alt*geo.MToFt)),
		}
		if altitude != nil {
			fields = append(fields,
				logger.Float64("reported_alt_ft", math.Round(*altitude*geo.MToFt)),
				logger.Float64("reported_alt_err_ft", math.Round(*altitudeError*geo.MToFt)))
		}
		e.log.Debug("solved geometric altitude", fields...)
	}

	if e.smoother != nil {
		e.smoother.Update(ac, firstSeen, c.Entries, altitude, altitudeError,
			sol.Position, sol.Covariance, c.Distinct)
	}

	if len(e.outputs) > 0 {
		receivers := make([]*model.Receiver, len(c.Entries))
		for i, entry := range c.Entries {
			receivers[i] = entry.Receiver
		}
		r := Result{
			FirstSeen:  firstSeen,
			Address:    ac.Address,
			Position:   sol.Position,
			Covariance: sol.Covariance,
			Receivers:  receivers,
			Distinct:   c.Distinct,
			Aircraft:   ac,
		}
		for _, handler := range e.outputs {
			handler(r)
		}
	}

	if e.diag != nil {
		e.diag.Write(diagRecord(ac, firstSeen, c, altitude, altitudeError, sol))
	}
}

// diagRecord flattens an accepted fix into the diagnostic log schema. All
// values are rounded: positions and covariance to the metre, relative
// arrival microseconds to 1 decimal, variance to 2, the group time to the
// millisecond.
func diagRecord(ac *model.Aircraft, firstSeen float64, c cluster.Cluster,
	altitude, altitudeError *float64, sol *model.Solution) diaglog.Record {

	base := c.Entries[0].Timestamp
	rows := make([][5]float64, len(c.Entries))
	for i, entry := range c.Entries {
		p := entry.Receiver.Position
		rows[i] = [5]float64{
			math.Round(p.X),
			math.Round(p.Y),
			math.Round(p.Z),
			round1((entry.Timestamp - base) * 1e6),
			round2(entry.Variance * 1e12),
		}
	}

	rec := diaglog.Record{
		ICAO: fmt.Sprintf("%06x", ac.Address),
		Time: round3(firstSeen),
		ECEF: [3]float64{
			math.Round(sol.Position.X),
			math.Round(sol.Position.Y),
			math.Round(sol.Position.Z),
		},
		Distinct: c.Distinct,
		Cluster:  rows,
	}
	if altitude != nil {
		alt := math.Round(*altitude)
		altErr := math.Round(*altitudeError)
		rec.Altitude = &alt
		rec.AltitudeError = &altErr
	}
	if sol.Covariance != nil {
		cov := make([][3]float64, 3)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				cov[i][j] = math.Round(sol.Covariance.At(i, j))
			}
		}
		rec.ECEFCov = cov
	}
	return rec
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

package tracker_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/mat"

	"github.com/skysieve/mlatd/internal/adapters/clocknorm"
	"github.com/skysieve/mlatd/internal/adapters/modes"
	"github.com/skysieve/mlatd/internal/adapters/registry"
	"github.com/skysieve/mlatd/internal/diaglog"
	"github.com/skysieve/mlatd/internal/domain/cluster"
	"github.com/skysieve/mlatd/internal/domain/geo"
	"github.com/skysieve/mlatd/internal/domain/model"
	"github.com/skysieve/mlatd/internal/tracker"
	"github.com/skysieve/mlatd/pkg/logger"
)

const testAddr uint32 = 0x4840d6

// surveillanceFrame builds a DF4 frame with the parity overlaid with addr.
// The discriminator byte keeps message identities apart between groups; an
// all-zero AC field carries no altitude.
func surveillanceFrame(addr uint32, discriminator byte) []byte {
	frame := []byte{0x20, discriminator, 0x00, 0x00, 0, 0, 0}
	ap := modes.Checksum(frame[:4]) ^ addr
	frame[4] = byte(ap >> 16)
	frame[5] = byte(ap >> 8)
	frame[6] = byte(ap)
	return frame
}

// receiverAt places a receiver at the given geodetic coordinates.
func receiverAt(id, operator string, lat, lon float64) *model.Receiver {
	return model.NewReceiver(id, operator, geo.LLHToECEF(geo.LLH{Lat: lat, Lon: lon, Alt: 100}))
}

// fourCorners is a ~40km receiver box around 45N 9E.
func fourCorners() []*model.Receiver {
	return []*model.Receiver{
		receiverAt("a", "op-a", 44.8, 8.8),
		receiverAt("b", "op-b", 44.8, 9.2),
		receiverAt("c", "op-c", 45.2, 8.8),
		receiverAt("d", "op-d", 45.2, 9.2),
	}
}

type fakeSolver struct {
	calls     int
	entries   [][]cluster.Entry
	altitudes []*float64
	seeds     []geo.ECEF
	solution  *model.Solution
	solutions []*model.Solution // overrides solution per call when set
}

func (s *fakeSolver) Solve(c []cluster.Entry, altitude, altitudeError *float64, seed geo.ECEF) (*model.Solution, error) {
	s.calls++
	s.entries = append(s.entries, c)
	s.altitudes = append(s.altitudes, altitude)
	s.seeds = append(s.seeds, seed)
	if s.solutions != nil {
		sol := s.solutions[0]
		s.solutions = s.solutions[1:]
		return sol, nil
	}
	return s.solution, nil
}

func goodSolution(variance float64) *model.Solution {
	cov := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		cov.SetSym(i, i, variance/3)
	}
	return &model.Solution{
		Position:   geo.LLHToECEF(geo.LLH{Lat: 45, Lon: 9, Alt: 10000}),
		Covariance: cov,
	}
}

type fakeBlacklist map[string]bool

func (b fakeBlacklist) Contains(operator string) bool { return b[operator] }

type testRig struct {
	store  *registry.Store
	solver *fakeSolver
	engine *tracker.Engine
	output []tracker.Result
}

func newRig(opts ...tracker.Option) *testRig {
	rig := &testRig{
		store:  registry.NewStore(),
		solver: &fakeSolver{solution: goodSolution(300)},
	}
	rig.store.UpsertAircraft(testAddr)
	base := []tracker.Option{
		tracker.WithSolver(rig.solver),
		tracker.WithOutputHandler(func(r tracker.Result) {
			rig.output = append(rig.output, r)
		}),
	}
	rig.engine = tracker.NewEngine(rig.store, clocknorm.NewGPS(), append(base, opts...)...)
	return rig
}

// aidAltitude gives the test aircraft a fresh altitude so the quorum relaxes
// from 4 to 3 distinct receivers.
func (rig *testRig) aidAltitude(now float64) {
	ac, _ := rig.store.Aircraft(testAddr)
	alt := 32000.0
	ac.Altitude = &alt
	ac.LastAltitudeTime = now
}

func (rig *testRig) feed(now float64, msg []byte, receivers []*model.Receiver, timestamps []float64) {
	for i, rx := range receivers {
		rig.engine.Record(now, model.Observation{
			Receiver:  rx,
			Timestamp: timestamps[i],
			Message:   msg,
		})
	}
}

func evenTimes(n int, at float64) []float64 {
	ts := make([]float64, n)
	for i := range ts {
		ts[i] = at
	}
	return ts
}

func TestResolutionPipeline(t *testing.T) {
	msg := surveillanceFrame(testAddr, 0x01)

	Convey("Given four well-separated receivers hearing one message", t, func() {
		rig := newRig()
		rxs := fourCorners()

		Convey("A consistent burst resolves to one cluster of four", func() {
			rig.feed(1000.0, msg, rxs, evenTimes(4, 1000.0))
			So(rig.engine.Pending(), ShouldEqual, 1)

			rig.engine.Advance(1002.5)

			So(rig.solver.calls, ShouldEqual, 1)
			So(len(rig.solver.entries[0]), ShouldEqual, 4)
			So(len(rig.output), ShouldEqual, 1)
			So(rig.output[0].Distinct, ShouldEqual, 4)
			So(rig.output[0].Address, ShouldEqual, testAddr)
			So(rig.output[0].FirstSeen, ShouldEqual, 1000.0)
			So(len(rig.output[0].Receivers), ShouldEqual, 4)
			So(rig.engine.Pending(), ShouldEqual, 0)

			ac, _ := rig.store.Aircraft(testAddr)
			So(ac.LastResult, ShouldNotBeNil)
			So(ac.LastResult.Distinct, ShouldEqual, 4)
			So(ac.LastResult.Variance, ShouldAlmostEqual, 300, 1e-6)
		})

		Convey("Fewer than three copies produce nothing", func() {
			rig.feed(1000.0, msg, rxs[:2], evenTimes(2, 1000.0))
			rig.engine.Advance(1002.5)

			So(rig.solver.calls, ShouldEqual, 0)
			So(rig.output, ShouldBeEmpty)
		})

		Convey("An unknown aircraft aborts without side effects", func() {
			other := surveillanceFrame(0x111111, 0x01)
			rig.feed(1000.0, other, rxs, evenTimes(4, 1000.0))
			rig.engine.Advance(1002.5)

			So(rig.solver.calls, ShouldEqual, 0)
		})

		Convey("The resolution fires once and only once", func() {
			rig.feed(1000.0, msg, rxs, evenTimes(4, 1000.0))
			rig.engine.Advance(1002.5)
			rig.engine.Advance(1010.0)

			So(rig.solver.calls, ShouldEqual, 1)
		})

		Convey("A second copy does not extend the window", func() {
			rig.feed(1000.0, msg, rxs[:3], evenTimes(3, 1000.0))
			rig.engine.Record(1002.0, model.Observation{
				Receiver: rxs[3], Timestamp: 1000.0, Message: msg,
			})

			deadline, ok := rig.engine.NextDeadline()
			So(ok, ShouldBeTrue)
			So(deadline, ShouldAlmostEqual, 1002.5, 1e-9)
		})
	})

	Convey("Given a fifth receiver whose timestamp is 50ms off", t, func() {
		rig := newRig()
		rxs := append(fourCorners(), receiverAt("e", "op-e", 45.0, 9.0))
		times := []float64{1000.0, 1000.0, 1000.0, 1000.0, 1000.050}

		rig.feed(1000.0, msg, rxs, times)
		rig.engine.Advance(1002.5)

		So(rig.solver.calls, ShouldEqual, 1)
		entries := rig.solver.entries[0]
		So(len(entries), ShouldEqual, 4)
		for _, entry := range entries {
			So(entry.Receiver.ID, ShouldNotEqual, "e")
		}
		So(rig.output[0].Distinct, ShouldEqual, 4)
	})

	Convey("Given two receivers only 500m apart", t, func() {
		rig := newRig()
		rig.aidAltitude(1000.0)
		rxs := []*model.Receiver{
			receiverAt("a", "op-a", 45.0000, 9.0),
			receiverAt("a2", "op-a", 45.0045, 9.0),
			receiverAt("c", "op-c", 45.2, 8.8),
			receiverAt("d", "op-d", 45.2, 9.2),
		}

		rig.feed(1000.0, msg, rxs, evenTimes(4, 1000.0))
		rig.engine.Advance(1002.5)

		So(rig.solver.calls, ShouldEqual, 1)
		So(len(rig.solver.entries[0]), ShouldEqual, 4)
		So(rig.output[0].Distinct, ShouldEqual, 3)
	})

	Convey("Given an aircraft with unknown altitude", t, func() {
		rig := newRig()
		rxs := fourCorners()

		Convey("Three receivers are not enough without altitude aiding", func() {
			rig.feed(1000.0, msg, rxs[:3], evenTimes(3, 1000.0))
			rig.engine.Advance(1002.5)

			So(rig.solver.calls, ShouldEqual, 0)
		})

		Convey("A fresh altitude relaxes the quorum to three", func() {
			rig.aidAltitude(1000.0)
			rig.feed(1000.0, msg, rxs[:3], evenTimes(3, 1000.0))
			rig.engine.Advance(1002.5)

			So(rig.solver.calls, ShouldEqual, 1)
			So(rig.solver.altitudes[0], ShouldNotBeNil)
			So(*rig.solver.altitudes[0], ShouldAlmostEqual, 32000*geo.FtToM, 1e-6)
		})

		Convey("A stale altitude does not", func() {
			ac, _ := rig.store.Aircraft(testAddr)
			alt := 32000.0
			ac.Altitude = &alt
			ac.LastAltitudeTime = 900.0 // ~100s old: error well past the bound

			rig.feed(1000.0, msg, rxs[:3], evenTimes(3, 1000.0))
			rig.engine.Advance(1002.5)

			So(rig.solver.calls, ShouldEqual, 0)
		})
	})

	Convey("Given a blacklisted operator", t, func() {
		rig := newRig(tracker.WithBlacklist(fakeBlacklist{"op-d": true}))
		rxs := fourCorners()

		rig.feed(1000.0, msg, rxs, evenTimes(4, 1000.0))
		rig.engine.Advance(1002.5)

		// Losing op-d leaves three receivers, below the unaided quorum.
		So(rig.solver.calls, ShouldEqual, 0)
	})

	Convey("State refresh happens even when resolution aborts", t, func() {
		rig := newRig()
		// DF4 at FL320: AC13 = 0x1498
		altMsg := []byte{0x20, 0x00, 0x14, 0x98, 0, 0, 0}
		ap := modes.Checksum(altMsg[:4]) ^ testAddr
		altMsg[4] = byte(ap >> 16)
		altMsg[5] = byte(ap >> 8)
		altMsg[6] = byte(ap)

		// Only three receivers: aided quorum is met but the solver declines.
		rig.solver.solution = nil
		rig.feed(1000.0, altMsg, fourCorners()[:3], evenTimes(3, 1000.0))
		rig.engine.Advance(1002.5)

		So(rig.output, ShouldBeEmpty)
		ac, _ := rig.store.Aircraft(testAddr)
		So(ac.Altitude, ShouldNotBeNil)
		So(*ac.Altitude, ShouldEqual, 32000.0)
		So(ac.LastAltitudeTime, ShouldEqual, 1002.5)
	})
}

type fakeSmoother struct {
	calls    int
	distinct int
}

func (s *fakeSmoother) Update(ac *model.Aircraft, firstSeen float64, entries []cluster.Entry,
	altitude, altitudeError *float64, pos geo.ECEF, cov *mat.SymDense, distinct int) {
	s.calls++
	s.distinct = distinct
}

type fakeDiag struct {
	records []diaglog.Record
}

func (d *fakeDiag) Write(r diaglog.Record) {
	d.records = append(d.records, r)
}

func TestAcceptedResultFanOut(t *testing.T) {
	msg := surveillanceFrame(testAddr, 0x04)

	Convey("An accepted fix reaches the smoother and the diagnostic log", t, func() {
		smoother := &fakeSmoother{}
		diag := &fakeDiag{}
		rig := newRig(
			tracker.WithSmoother(smoother),
			tracker.WithDiagnosticLog(diag),
		)

		rig.feed(1000.0, msg, fourCorners(), evenTimes(4, 1000.0))
		rig.engine.Advance(1002.5)

		So(len(rig.output), ShouldEqual, 1)
		So(smoother.calls, ShouldEqual, 1)
		So(smoother.distinct, ShouldEqual, 4)

		So(len(diag.records), ShouldEqual, 1)
		rec := diag.records[0]
		So(rec.ICAO, ShouldEqual, "4840d6")
		So(rec.Time, ShouldEqual, 1000.0)
		So(rec.Distinct, ShouldEqual, 4)
		So(len(rec.Cluster), ShouldEqual, 4)
		// equal arrival times: every relative timestamp is zero microseconds
		for _, row := range rec.Cluster {
			So(row[3], ShouldEqual, 0)
		}
		So(len(rec.ECEFCov), ShouldEqual, 3)
	})
}

func TestDiagnosticRecordRounding(t *testing.T) {
	msg := surveillanceFrame(testAddr, 0x05)

	Convey("Diagnostic records are written in the rounded log format", t, func() {
		cov := mat.NewSymDense(3, nil)
		for i := 0; i < 3; i++ {
			cov.SetSym(i, i, 100.37)
		}
		sol := &model.Solution{
			Position:   geo.ECEF{X: 4472201.789, Y: 708381.123, Z: 4486769.456},
			Covariance: cov,
		}

		store := registry.NewStore()
		store.UpsertAircraft(testAddr)
		ac, _ := store.Aircraft(testAddr)
		alt := 32000.0
		ac.Altitude = &alt
		ac.LastAltitudeTime = 1000.12345

		diag := &fakeDiag{}
		engine := tracker.NewEngine(store,
			clocknorm.NewGPS(clocknorm.WithVariance(3.14159e-12)),
			tracker.WithSolver(&fakeSolver{solution: sol}),
			tracker.WithDiagnosticLog(diag),
		)
		for _, rx := range fourCorners() {
			engine.Record(1000.12345, model.Observation{
				Receiver:  rx,
				Timestamp: 1000.12345,
				Message:   msg,
			})
		}
		engine.Advance(1002.62345)

		So(len(diag.records), ShouldEqual, 1)
		rec := diag.records[0]

		// group time to the millisecond
		So(rec.Time, ShouldAlmostEqual, 1000.123, 1e-9)
		// position and covariance to the metre
		So(rec.ECEF, ShouldResemble, [3]float64{4472202, 708381, 4486769})
		So(len(rec.ECEFCov), ShouldEqual, 3)
		for i := 0; i < 3; i++ {
			So(rec.ECEFCov[i][i], ShouldEqual, 100)
		}
		// per-receiver variance in picoseconds^2 to 2 decimals
		for _, row := range rec.Cluster {
			So(row[4], ShouldEqual, 3.14)
		}
		// altitude aiding in whole metres: 32000ft and a 2.5s-old
		// error model of 425ft
		So(*rec.Altitude, ShouldEqual, 9754)
		So(*rec.AltitudeError, ShouldEqual, 130)
	})
}

type fakeLogger struct {
	debug []string
}

func (l *fakeLogger) Named(string) logger.Logger { return l }
func (l *fakeLogger) Info(string, ...logger.Field)  {}
func (l *fakeLogger) Error(string, ...logger.Field) {}
func (l *fakeLogger) Warn(string, ...logger.Field)  {}
func (l *fakeLogger) Debug(msg string, _ ...logger.Field) {
	l.debug = append(l.debug, msg)
}

func (l *fakeLogger) sawSolvedAltitude() bool {
	for _, msg := range l.debug {
		if msg == "solved geometric altitude" {
			return true
		}
	}
	return false
}

func TestSolvedAltitudeLogging(t *testing.T) {
	msg := surveillanceFrame(testAddr, 0x06)

	Convey("A quorum-4 solve reports its geometric altitude", t, func() {
		Convey("when no altitude is known", func() {
			log := &fakeLogger{}
			rig := newRig(tracker.WithLogger(log))

			rig.feed(1000.0, msg, fourCorners(), evenTimes(4, 1000.0))
			rig.engine.Advance(1002.5)

			So(len(rig.output), ShouldEqual, 1)
			So(log.sawSolvedAltitude(), ShouldBeTrue)
		})

		Convey("when the known altitude is too stale to relax the quorum", func() {
			log := &fakeLogger{}
			rig := newRig(tracker.WithLogger(log))
			ac, _ := rig.store.Aircraft(testAddr)
			alt := 32000.0
			ac.Altitude = &alt
			ac.LastAltitudeTime = 940.0 // 62.5s old at resolution

			rig.feed(1000.0, msg, fourCorners(), evenTimes(4, 1000.0))
			rig.engine.Advance(1002.5)

			So(len(rig.output), ShouldEqual, 1)
			So(log.sawSolvedAltitude(), ShouldBeTrue)
		})

		Convey("but not when fresh aiding relaxed the quorum to 3", func() {
			log := &fakeLogger{}
			rig := newRig(tracker.WithLogger(log))
			rig.aidAltitude(1000.0)

			rig.feed(1000.0, msg, fourCorners(), evenTimes(4, 1000.0))
			rig.engine.Advance(1002.5)

			So(len(rig.output), ShouldEqual, 1)
			So(log.sawSolvedAltitude(), ShouldBeFalse)
		})
	})
}

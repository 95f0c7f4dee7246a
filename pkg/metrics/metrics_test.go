package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManager(t *testing.T) {
	Convey("Given a metrics manager with its own registry", t, func() {
		reg := prometheus.NewRegistry()
		m := NewManager(WithPrometheusRegistry(reg))

		Convey("Then it should register all collectors without panicking", func() {
			So(m, ShouldNotBeNil)

			families, err := reg.Gather()
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
		})

		Convey("When options override the defaults", func() {
			reg2 := prometheus.NewRegistry()
			m2 := NewManager(
				WithPrometheusRegistry(reg2),
				WithNamespace("testns"),
				WithSubsystem("testsub"),
				WithHistogramBuckets([]float64{0.1, 1, 10}),
			)

			Convey("Then metric names should carry the namespace", func() {
				So(m2.namespace, ShouldEqual, "testns")
				So(m2.subsystem, ShouldEqual, "testsub")

				families, err := reg2.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "testns_testsub_observations_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})
	})
}

func TestGlobalRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("Then the recording helpers should not panic", func() {
			So(func() {
				RecordObservation()
				RecordGroupCreated()
				RecordGroupResolved()
				RecordResolutionAborted("quorum")
				UpdatePendingGroups(3)
				RecordClustersFormed(2)
				RecordSolverAttempt()
				RecordSolverFailure()
				RecordPositionAccepted(4, 1e6)
				RecordResolutionDuration(0.01)
				RecordIngestLine()
				RecordIngestError()
				UpdateConnectedReceivers(5)
				UpdateQueueSize(10)
				UpdateQueueCapacity(100)
				RecordQueueDropped()
				UpdateKnownAircraft(2)
				RecordBlacklistReload(1)
				RecordDiagDropped()
			}, ShouldNotPanic)
		})
	})
}

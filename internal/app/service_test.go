package service_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"gonum.org/v1/gonum/mat"

	service "github.com/skysieve/mlatd/internal/app"
	"github.com/skysieve/mlatd/internal/domain/cluster"
	"github.com/skysieve/mlatd/internal/domain/geo"
	"github.com/skysieve/mlatd/internal/domain/model"
	"github.com/skysieve/mlatd/internal/tracker"
)

const df17Ident = "8D4840D6202CC371C32CE0576098"

type staticSolver struct{}

func (staticSolver) Solve(c []cluster.Entry, altitude, altitudeError *float64, seed geo.ECEF) (*model.Solution, error) {
	cov := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		cov.SetSym(i, i, 100)
	}
	return &model.Solution{
		Position:   geo.LLHToECEF(geo.LLH{Lat: 45, Lon: 9, Alt: 10000}),
		Covariance: cov,
	}, nil
}

func feedReceiver(t *testing.T, addr, id string, lat, lon float64, ts float64) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	fmt.Fprintf(conn, `{"receiver":%q,"operator":"op-%s","lat":%v,"lon":%v,"alt":100}`+"\n",
		id, id, lat, lon)
	fmt.Fprintf(conn, `{"t":%v,"m":%q}`+"\n", ts, df17Ident)
}

func TestServiceEndToEnd(t *testing.T) {
	Convey("Given a running service with four feeding receivers", t, func() {
		results := make(chan tracker.Result, 4)
		svc := service.New(
			service.WithIngestAddr("127.0.0.1:0"),
			service.WithResolutionDelay(100*time.Millisecond),
			service.WithSolver(staticSolver{}),
			service.WithOutputHandler(func(r tracker.Result) {
				results <- r
			}),
		)

		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		addr := svc.IngestAddr().String()
		ts := float64(time.Now().UnixNano()) / 1e9
		feedReceiver(t, addr, "a", 44.8, 8.8, ts)
		feedReceiver(t, addr, "b", 44.8, 9.2, ts)
		feedReceiver(t, addr, "c", 45.2, 8.8, ts)
		feedReceiver(t, addr, "d", 45.2, 9.2, ts)

		Convey("One fix comes out after the correlation window", func() {
			select {
			case r := <-results:
				So(r.Address, ShouldEqual, uint32(0x4840d6))
				So(r.Distinct, ShouldEqual, 4)
				So(r.Aircraft.Callsign, ShouldEqual, "KLM1023 ")
			case <-time.After(3 * time.Second):
				t.Fatal("no fix produced")
			}

			Convey("And the stats surface reflects the load", func() {
				stats := svc.GetStats()
				So(stats["receivers"], ShouldEqual, 4)
				So(stats["aircraft"], ShouldEqual, 1)
			})
		})
	})
}

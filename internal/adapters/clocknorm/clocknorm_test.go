package clocknorm

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/skysieve/mlatd/internal/domain/geo"
	"github.com/skysieve/mlatd/internal/domain/model"
)

func TestGPSNormalizer(t *testing.T) {
	Convey("Given receivers on a GPS timebase", t, func() {
		a := model.NewReceiver("a", "op", geo.ECEF{X: 1})
		b := model.NewReceiver("b", "op", geo.ECEF{X: 2})
		in := map[*model.Receiver][]float64{
			a: {100.0, 101.5},
			b: {100.0001},
		}

		Convey("All receivers land in a single component", func() {
			components := NewGPS().Normalize(in)
			So(len(components), ShouldEqual, 1)
			So(len(components[0]), ShouldEqual, 2)
			So(components[0][a].Timestamps, ShouldResemble, []float64{100.0, 101.5})
			So(components[0][a].Variance, ShouldEqual, 1e-12)
		})

		Convey("The variance is configurable", func() {
			components := NewGPS(WithVariance(4e-12)).Normalize(in)
			So(components[0][b].Variance, ShouldEqual, 4e-12)
		})

		Convey("Empty input yields no components", func() {
			So(NewGPS().Normalize(nil), ShouldBeNil)
		})
	})
}

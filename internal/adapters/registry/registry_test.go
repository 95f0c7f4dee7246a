package registry

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/skysieve/mlatd/internal/domain/geo"
)

func TestStore(t *testing.T) {
	Convey("Given an empty registry", t, func() {
		s := NewStore()

		Convey("Aircraft lookups miss until upserted", func() {
			_, ok := s.Aircraft(0x4840d6)
			So(ok, ShouldBeFalse)

			ac := s.UpsertAircraft(0x4840d6)
			So(ac, ShouldNotBeNil)
			So(ac.Address, ShouldEqual, uint32(0x4840d6))

			got, ok := s.Aircraft(0x4840d6)
			So(ok, ShouldBeTrue)
			So(got, ShouldEqual, ac)

			Convey("And a second upsert returns the same aircraft", func() {
				So(s.UpsertAircraft(0x4840d6), ShouldEqual, ac)
				_, n := s.Counts()
				So(n, ShouldEqual, 1)
			})
		})

		Convey("TouchAircraft only moves last-seen forward", func() {
			ac := s.TouchAircraft(0x4840d6, 150)
			So(ac.LastSeen, ShouldEqual, 150)
			s.TouchAircraft(0x4840d6, 120)
			So(ac.LastSeen, ShouldEqual, 150)
			s.TouchAircraft(0x4840d6, 200)
			So(ac.LastSeen, ShouldEqual, 200)
		})

		Convey("Stale aircraft are expired by last-seen time", func() {
			old := s.UpsertAircraft(0x100000)
			old.LastSeen = 100
			fresh := s.UpsertAircraft(0x200000)
			fresh.LastSeen = 500

			So(s.ExpireAircraft(200), ShouldEqual, 1)
			_, ok := s.Aircraft(0x100000)
			So(ok, ShouldBeFalse)
			_, ok = s.Aircraft(0x200000)
			So(ok, ShouldBeTrue)
		})

		Convey("Receivers are keyed by ID", func() {
			pos := geo.ECEF{X: 4027893, Y: 306400, Z: 4919094}
			rx := s.UpsertReceiver("rx1", "op1", pos)
			So(rx.ID, ShouldEqual, "rx1")

			Convey("Re-registering with the same position keeps the entry", func() {
				So(s.UpsertReceiver("rx1", "op1", pos), ShouldEqual, rx)
			})

			Convey("A moved receiver gets a fresh entry", func() {
				moved := s.UpsertReceiver("rx1", "op1", geo.ECEF{X: 1, Y: 2, Z: 3})
				So(moved, ShouldNotEqual, rx)
				So(moved.Position, ShouldResemble, geo.ECEF{X: 1, Y: 2, Z: 3})
			})

			Convey("Removal deregisters", func() {
				s.RemoveReceiver("rx1")
				_, ok := s.Receiver("rx1")
				So(ok, ShouldBeFalse)
				n, _ := s.Counts()
				So(n, ShouldEqual, 0)
			})
		})
	})
}

package modes

import (
	"encoding/hex"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

// shortFrame builds a 7-byte frame with the parity field overlaid with addr.
func shortFrame(b0, b1, b2, b3 byte, addr uint32) []byte {
	frame := []byte{b0, b1, b2, b3, 0, 0, 0}
	ap := Checksum(frame[:4]) ^ addr
	frame[4] = byte(ap >> 16)
	frame[5] = byte(ap >> 8)
	frame[6] = byte(ap)
	return frame
}

func TestDecodeExtendedSquitter(t *testing.T) {
	Convey("Given a DF17 identification squitter", t, func() {
		frame := mustHex(t, "8D4840D6202CC371C32CE0576098")

		msg, err := Decode(frame)
		So(err, ShouldBeNil)
		So(msg.DF, ShouldEqual, 17)
		So(msg.Address, ShouldEqual, uint32(0x4840D6))
		So(msg.EST, ShouldEqual, ESIdentAndCategory)
		So(msg.Callsign, ShouldEqual, "KLM1023 ")
		So(msg.Altitude, ShouldBeNil)
		So(msg.CRCOK, ShouldNotBeNil)
		So(*msg.CRCOK, ShouldBeTrue)
	})

	Convey("Given a DF17 airborne position squitter", t, func() {
		// metype 11, AC12 = 0xC38 (38000ft, 25ft encoding)
		frame := []byte{0x8D, 0xAB, 0xCD, 0xEF, 0x58, 0xC3, 0x80, 0, 0, 0, 0, 0, 0, 0}
		pi := Checksum(frame[:11])
		frame[11] = byte(pi >> 16)
		frame[12] = byte(pi >> 8)
		frame[13] = byte(pi)

		msg, err := Decode(frame)
		So(err, ShouldBeNil)
		So(msg.Address, ShouldEqual, uint32(0xABCDEF))
		So(msg.EST, ShouldEqual, ESAirbornePosition)
		So(msg.Altitude, ShouldNotBeNil)
		So(*msg.Altitude, ShouldEqual, 38000)
		So(msg.Callsign, ShouldEqual, "")
		So(*msg.CRCOK, ShouldBeTrue)
	})

	Convey("Given a corrupted DF17 frame", t, func() {
		frame := mustHex(t, "8D4840D6202CC371C32CE0576098")
		frame[6] ^= 0x40

		msg, err := Decode(frame)
		So(err, ShouldBeNil)
		So(*msg.CRCOK, ShouldBeFalse)
	})
}

func TestDecodeSurveillance(t *testing.T) {
	Convey("Given a DF4 altitude reply at FL320", t, func() {
		// AC13 = 0x1498: Q-bit, N = 1320 -> 32000ft
		frame := shortFrame(0x20, 0x00, 0x14, 0x98, 0x123456)

		msg, err := Decode(frame)
		So(err, ShouldBeNil)
		So(msg.DF, ShouldEqual, 4)
		So(msg.Address, ShouldEqual, uint32(0x123456))
		So(msg.Altitude, ShouldNotBeNil)
		So(*msg.Altitude, ShouldEqual, 32000)
		So(msg.Squawk, ShouldBeNil)
		So(msg.CRCOK, ShouldBeNil)
	})

	Convey("Given a DF4 reply with the M bit set", t, func() {
		frame := shortFrame(0x20, 0x00, 0x00, 0x40, 0x123456)

		msg, err := Decode(frame)
		So(err, ShouldBeNil)
		So(msg.Altitude, ShouldBeNil)
	})

	Convey("Given a DF5 identity reply squawking 7700", t, func() {
		// ID13 = 0xAAA
		frame := shortFrame(0x28, 0x00, 0x0A, 0xAA, 0xA1B2C3)

		msg, err := Decode(frame)
		So(err, ShouldBeNil)
		So(msg.DF, ShouldEqual, 5)
		So(msg.Address, ShouldEqual, uint32(0xA1B2C3))
		So(msg.Squawk, ShouldNotBeNil)
		So(*msg.Squawk, ShouldEqual, uint16(7700))
		So(msg.Altitude, ShouldBeNil)
	})
}

func TestDecodeAllCall(t *testing.T) {
	build := func(addr uint32, mangle uint32) []byte {
		frame := []byte{0x5D, byte(addr >> 16), byte(addr >> 8), byte(addr), 0, 0, 0}
		pi := Checksum(frame[:4]) ^ mangle
		frame[4] = byte(pi >> 16)
		frame[5] = byte(pi >> 8)
		frame[6] = byte(pi)
		return frame
	}

	Convey("Given a DF11 all-call reply", t, func() {
		Convey("With a clean parity field the CRC verifies", func() {
			msg, err := Decode(build(0x3C6544, 0))
			So(err, ShouldBeNil)
			So(msg.DF, ShouldEqual, 11)
			So(msg.Address, ShouldEqual, uint32(0x3C6544))
			So(msg.CRCOK, ShouldNotBeNil)
			So(*msg.CRCOK, ShouldBeTrue)
		})

		Convey("With an overlaid interrogator ID the CRC is indeterminate", func() {
			msg, err := Decode(build(0x3C6544, 0x35))
			So(err, ShouldBeNil)
			So(msg.CRCOK, ShouldBeNil)
		})

		Convey("With a damaged parity field the CRC fails", func() {
			msg, err := Decode(build(0x3C6544, 0x4000))
			So(err, ShouldBeNil)
			So(msg.CRCOK, ShouldNotBeNil)
			So(*msg.CRCOK, ShouldBeFalse)
		})
	})
}

func TestDecodeModeAC(t *testing.T) {
	Convey("Given a 2-byte Mode A/C frame with every pulse set", t, func() {
		msg, err := Decode([]byte{0xFF, 0xFF})
		So(err, ShouldBeNil)
		So(msg.DF, ShouldEqual, 32)
		So(msg.Squawk, ShouldNotBeNil)
		So(*msg.Squawk, ShouldEqual, uint16(0x7777))
		So(msg.Address, ShouldEqual, uint32(0x00FF7777))
	})
}

func TestDecodeRejects(t *testing.T) {
	Convey("Given malformed input", t, func() {
		Convey("A frame of unexpected length is rejected", func() {
			_, err := Decode(make([]byte, 10))
			So(err, ShouldNotBeNil)
		})

		Convey("An unsupported DF is rejected", func() {
			// DF24 in a 7-byte frame
			_, err := Decode([]byte{0xC0, 0, 0, 0, 0, 0, 0})
			So(err, ShouldNotBeNil)
		})

		Convey("A DF17 packed into 7 bytes is rejected", func() {
			_, err := Decode([]byte{0x8D, 0, 0, 0, 0, 0, 0})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestGillhamAltitude(t *testing.T) {
	Convey("Given Gillham-coded AC13 fields", t, func() {
		Convey("The lowest valid code decodes to -1200ft", func() {
			// C4 only
			alt, ok := decodeAC13(0x0100)
			So(ok, ShouldBeTrue)
			So(alt, ShouldEqual, -1200)
		})

		Convey("A zero hundreds code is invalid", func() {
			_, ok := decodeAC13(0x0800)
			So(ok, ShouldBeFalse)
		})

		Convey("An all-zero field carries no altitude", func() {
			_, ok := decodeAC13(0)
			So(ok, ShouldBeFalse)
		})
	})
}

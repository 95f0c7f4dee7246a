// Package modes decodes Mode S responses and ADS-B extended squitter frames.
//
// Only the fields the correlation engine cares about are extracted: the
// transmitting address, altitude, squawk, and callsign. Position payloads are
// deliberately not decoded; positions come from multilateration, not from the
// aircraft's own reports.
package modes

import (
	"errors"
	"fmt"
)

const aisCharset = " ABCDEFGHIJKLMNOPQRSTUVWXYZ????? ???????????????0123456789??????"

// ESType identifies the type of an extended squitter payload.
type ESType int

const (
	ESOther ESType = iota
	ESIdentAndCategory
	ESAirbornePosition
	ESSurfacePosition
	ESAirborneVelocity
)

// esTypes maps the 5-bit ME type code to an ESType.
var esTypes = map[uint32]ESType{
	0: ESAirbornePosition,
	1: ESIdentAndCategory, 2: ESIdentAndCategory, 3: ESIdentAndCategory, 4: ESIdentAndCategory,
	5: ESSurfacePosition, 6: ESSurfacePosition, 7: ESSurfacePosition, 8: ESSurfacePosition,
	9: ESAirbornePosition, 10: ESAirbornePosition, 11: ESAirbornePosition,
	12: ESAirbornePosition, 13: ESAirbornePosition, 14: ESAirbornePosition,
	15: ESAirbornePosition, 16: ESAirbornePosition, 17: ESAirbornePosition,
	18: ESAirbornePosition, 19: ESAirborneVelocity,
	20: ESAirbornePosition, 21: ESAirbornePosition, 22: ESAirbornePosition,
}

// Message is a decoded Mode S frame. Altitude and Squawk are nil when the
// frame does not carry them; Callsign is empty when absent. CRCOK is nil when
// the frame's parity is overlaid with the address and cannot be verified.
type Message struct {
	DF       int
	Address  uint32
	Altitude *int // feet
	Squawk   *uint16
	Callsign string
	CRCOK    *bool
	EST      ESType
}

var (
	// ErrUnsupported marks downlink formats this decoder does not handle.
	ErrUnsupported = errors.New("modes: unsupported downlink format")
	// ErrFrameLength marks frames whose length does not match their DF.
	ErrFrameLength = errors.New("modes: bad frame length")
)

// Decode decodes a 2-byte Mode A/C, 7-byte short, or 14-byte long frame.
func Decode(frame []byte) (*Message, error) {
	if len(frame) == 2 {
		return decodeModeAC(frame), nil
	}
	if len(frame) != 7 && len(frame) != 14 {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameLength, len(frame))
	}

	df := int(frame[0]&0xf8) >> 3
	switch df {
	case 0, 4, 16, 20:
		if err := wantLen(frame, df); err != nil {
			return nil, err
		}
		return decodeAltitudeReply(frame, df), nil
	case 5, 21:
		if err := wantLen(frame, df); err != nil {
			return nil, err
		}
		return decodeIdentityReply(frame, df), nil
	case 11:
		if err := wantLen(frame, df); err != nil {
			return nil, err
		}
		return decodeAllCall(frame), nil
	case 17, 18:
		if err := wantLen(frame, df); err != nil {
			return nil, err
		}
		return decodeExtendedSquitter(frame, df), nil
	default:
		return nil, fmt.Errorf("%w: DF%d", ErrUnsupported, df)
	}
}

func wantLen(frame []byte, df int) error {
	want := 7
	if df >= 16 {
		want = 14
	}
	if len(frame) != want {
		return fmt.Errorf("%w: DF%d with %d bytes", ErrFrameLength, df, len(frame))
	}
	return nil
}

// decodeAltitudeReply handles DF0/4/16/20, which all carry a 13-bit AC field
// in the same position. DF20 additionally carries a Comm-B payload that may
// hold a callsign.
func decodeAltitudeReply(frame []byte, df int) *Message {
	m := &Message{DF: df, Address: residual(frame)}

	ac13 := uint32(frame[2]&0x1f)<<8 | uint32(frame[3])
	if alt, ok := decodeAC13(ac13); ok {
		m.Altitude = &alt
	}
	if df == 20 {
		m.Callsign = commBCallsign(frame)
	}
	return m
}

// decodeIdentityReply handles DF5/21. DF21 additionally carries Comm-B.
func decodeIdentityReply(frame []byte, df int) *Message {
	m := &Message{DF: df, Address: residual(frame)}

	id13 := uint32(frame[2]&0x1f)<<8 | uint32(frame[3])
	squawk := decodeID13(id13)
	m.Squawk = &squawk
	if df == 21 {
		m.Callsign = commBCallsign(frame)
	}
	return m
}

// decodeAllCall handles DF11. The parity field is either a clean CRC or one
// overlaid with a 7-bit interrogator identifier; the latter leaves the CRC
// unverifiable.
func decodeAllCall(frame []byte) *Message {
	m := &Message{DF: 11}
	m.Address = uint32(frame[1])<<16 | uint32(frame[2])<<8 | uint32(frame[3])

	r := residual(frame)
	switch {
	case r == 0:
		ok := true
		m.CRCOK = &ok
	case r&^0x7f == 0:
		// overlaid interrogator ID; cannot verify
	default:
		notOK := false
		m.CRCOK = &notOK
	}
	return m
}

// decodeExtendedSquitter handles DF17/18.
func decodeExtendedSquitter(frame []byte, df int) *Message {
	m := &Message{DF: df}
	m.Address = uint32(frame[1])<<16 | uint32(frame[2])<<8 | uint32(frame[3])
	ok := residual(frame) == 0
	m.CRCOK = &ok

	metype := uint32(frame[4]&0xf8) >> 3
	est, known := esTypes[metype]
	if !known {
		est = ESOther
	}
	m.EST = est

	switch est {
	case ESAirbornePosition:
		ac12 := uint32(frame[5])<<4 | uint32(frame[6]&0xf0)>>4
		if alt, ok := decodeAC12(ac12); ok {
			m.Altitude = &alt
		}
	case ESIdentAndCategory:
		m.Callsign = aisCallsign(frame[5:11])
	}
	return m
}

// decodeModeAC handles 2-byte Mode A/C frames. The reshuffled code doubles as
// both the squawk and a synthetic address in a reserved block.
func decodeModeAC(frame []byte) *Message {
	var code uint32
	set := func(cond byte, bit uint32) {
		if cond != 0 {
			code |= bit
		}
	}
	set(frame[0]&0x10, 0x0010)
	set(frame[0]&0x08, 0x1000)
	set(frame[0]&0x04, 0x0020)
	set(frame[0]&0x02, 0x2000)
	set(frame[0]&0x01, 0x0040)
	set(frame[1]&0x80, 0x4000)
	set(frame[1]&0x20, 0x0100)
	set(frame[1]&0x10, 0x0001)
	set(frame[1]&0x08, 0x0200)
	set(frame[1]&0x04, 0x0002)
	set(frame[1]&0x02, 0x0400)
	set(frame[1]&0x01, 0x0004)
	set(frame[0]&0x80, 0x0080)

	squawk := uint16(code & 0x7777)
	return &Message{
		DF:      32,
		Address: code&0x7777 | 0x00ff0000,
		Squawk:  &squawk,
	}
}

// commBCallsign extracts a callsign from a Comm-B payload, if the BDS2,0
// identification register is present.
func commBCallsign(frame []byte) string {
	if frame[4] != 0x20 {
		return ""
	}
	return aisCallsign(frame[5:11])
}

// aisCallsign unpacks eight 6-bit AIS characters from 6 bytes. Returns ""
// for all-blank or malformed callsigns.
func aisCallsign(b []byte) string {
	chars := []uint32{
		uint32(b[0]&0xfc) >> 2,
		uint32(b[0]&0x03)<<4 | uint32(b[1]&0xf0)>>4,
		uint32(b[1]&0x0f)<<2 | uint32(b[2]&0xc0)>>6,
		uint32(b[2] & 0x3f),
		uint32(b[3]&0xfc) >> 2,
		uint32(b[3]&0x03)<<4 | uint32(b[4]&0xf0)>>4,
		uint32(b[4]&0x0f)<<2 | uint32(b[5]&0xc0)>>6,
		uint32(b[5] & 0x3f),
	}

	out := make([]byte, 8)
	blank := true
	for i, c := range chars {
		ch := aisCharset[c]
		if ch == '?' {
			return ""
		}
		if ch != ' ' {
			blank = false
		}
		out[i] = ch
	}
	if blank {
		return ""
	}
	return string(out)
}

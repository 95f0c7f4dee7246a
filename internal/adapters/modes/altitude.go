package modes

// decodeAC13 decodes a 13-bit Mode S altitude (AC) field to feet.
// Returns false when the field is absent, metric, or an invalid Gillham code.
func decodeAC13(ac13 uint32) (int, bool) {
	if ac13 == 0 {
		return 0, false
	}
	if ac13&0x0040 != 0 {
		// M bit: metric altitude, not handled
		return 0, false
	}
	if ac13&0x0010 != 0 {
		// Q bit: 25ft encoding
		n := (ac13&0x1f80)>>2 | (ac13&0x0020)>>1 | ac13&0x000f
		return int(n)*25 - 1000, true
	}
	return decodeGillham(ac13)
}

// decodeAC12 decodes the 12-bit altitude field carried in extended squitter
// airborne position messages.
func decodeAC12(ac12 uint32) (int, bool) {
	if ac12 == 0 {
		return 0, false
	}
	if ac12&0x0010 != 0 {
		n := (ac12&0x0fe0)>>1 | ac12&0x000f
		return int(n)*25 - 1000, true
	}
	// reinsert a zero M bit and decode as AC13
	return decodeGillham((ac12&0x0fc0)<<1 | ac12&0x003f)
}

// decodeGillham decodes a 100ft Gillham-coded AC13 field (M=0, Q=0).
// Bit layout, MSB first: C1 A1 C2 A2 C4 A4 M B1 Q B2 D2 B4 D4.
func decodeGillham(ac13 uint32) (int, bool) {
	c1 := ac13 >> 12 & 1
	a1 := ac13 >> 11 & 1
	c2 := ac13 >> 10 & 1
	a2 := ac13 >> 9 & 1
	c4 := ac13 >> 8 & 1
	a4 := ac13 >> 7 & 1
	b1 := ac13 >> 5 & 1
	b2 := ac13 >> 3 & 1
	d2 := ac13 >> 2 & 1
	b4 := ac13 >> 1 & 1
	d4 := ac13 & 1

	// 500ft increments: gray code D2 D4 A1 A2 A4 B1 B2 B4 (D1 is always 0)
	n500 := grayToBinary(d2<<7 | d4<<6 | a1<<5 | a2<<4 | a4<<3 | b1<<2 | b2<<1 | b4)

	// 100ft sub-increment: gray code C1 C2 C4
	n100 := grayToBinary(c1<<2 | c2<<1 | c4)
	if n100 == 0 || n100 == 5 || n100 == 6 {
		return 0, false
	}
	if n100 == 7 {
		n100 = 5
	}
	if n500%2 != 0 {
		n100 = 6 - n100
	}

	alt := int(n500)*500 + int(n100)*100 - 1300
	if alt < -1200 {
		return 0, false
	}
	return alt, true
}

func grayToBinary(g uint32) uint32 {
	b := g
	for g >>= 1; g != 0; g >>= 1 {
		b ^= g
	}
	return b
}

package modes

// decodeID13 decodes a 13-bit Mode S identity (ID) field to a 4-digit squawk.
// Bit layout, MSB first: C1 A1 C2 A2 C4 A4 X B1 D1 B2 D2 B4 D4.
func decodeID13(id13 uint32) uint16 {
	c1 := id13 >> 12 & 1
	a1 := id13 >> 11 & 1
	c2 := id13 >> 10 & 1
	a2 := id13 >> 9 & 1
	c4 := id13 >> 8 & 1
	a4 := id13 >> 7 & 1
	b1 := id13 >> 5 & 1
	d1 := id13 >> 4 & 1
	b2 := id13 >> 3 & 1
	d2 := id13 >> 2 & 1
	b4 := id13 >> 1 & 1
	d4 := id13 & 1

	a := a1 | a2<<1 | a4<<2
	b := b1 | b2<<1 | b4<<2
	c := c1 | c2<<1 | c4<<2
	d := d1 | d2<<1 | d4<<2

	return uint16(a*1000 + b*100 + c*10 + d)
}

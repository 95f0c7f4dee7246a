package modes

// crcPoly is the 24-bit Mode S CRC generator polynomial.
const crcPoly = 0xfff409

// Checksum computes the 24-bit Mode S CRC over data.
func Checksum(data []byte) uint32 {
	var rem uint32
	for _, b := range data {
		rem ^= uint32(b) << 16
		for i := 0; i < 8; i++ {
			if rem&0x800000 != 0 {
				rem = (rem << 1) ^ crcPoly
			} else {
				rem <<= 1
			}
			rem &= 0xffffff
		}
	}
	return rem
}

// residual returns the CRC remainder of a full frame: the checksum of the
// payload XORed with the trailing 24 parity bits. For AP/PI-protected frames
// the remainder equals the transmitting aircraft's address.
func residual(frame []byte) uint32 {
	n := len(frame)
	parity := uint32(frame[n-3])<<16 | uint32(frame[n-2])<<8 | uint32(frame[n-1])
	return Checksum(frame[:n-3]) ^ parity
}

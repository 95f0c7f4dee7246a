// Command test-feed simulates a ring of GPS-clocked receivers feeding the
// ingest port. It flies a synthetic aircraft and emits identification and
// altitude squitters whose arrival timestamps are physically consistent with
// the geometry, so a running daemon forms real clusters.
package main

import (
	"flag"
	"fmt"
	"math"
	"net"
	"os"
	"time"

	"github.com/skysieve/mlatd/internal/adapters/modes"
	"github.com/skysieve/mlatd/internal/domain/cluster"
	"github.com/skysieve/mlatd/internal/domain/geo"
)

const (
	defaultReceivers = 5
	defaultInterval  = 500 * time.Millisecond
	defaultDuration  = 60 * time.Second

	centerLat = 45.0
	centerLon = 9.0

	receiverRingKM = 40.0
	aircraftRingKM = 25.0
	aircraftAltFt  = 32000
	orbitPeriod    = 300.0 // seconds per lap

	testAddress  = 0x3C6544
	testCallsign = "MLATSIM "
)

type receiver struct {
	id   string
	pos  geo.ECEF
	conn net.Conn
}

func main() {
	var (
		addr      = flag.String("addr", "127.0.0.1:30004", "ingest address of the daemon")
		receivers = flag.Int("receivers", defaultReceivers, "number of simulated receivers")
		interval  = flag.Duration("interval", defaultInterval, "time between transmissions")
		duration  = flag.Duration("duration", defaultDuration, "how long to feed")
	)
	flag.Parse()

	rxs, err := connectRing(*addr, *receivers)
	if err != nil {
		os.Stderr.WriteString("test-feed: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		for _, rx := range rxs {
			rx.conn.Close()
		}
	}()
	fmt.Printf("connected %d receivers to %s\n", len(rxs), *addr)

	ident := identFrame(testAddress, testCallsign)
	deadline := time.Now().Add(*duration)
	sent := 0
	for tick := 0; time.Now().Before(deadline); tick++ {
		now := float64(time.Now().UnixNano()) / 1e9
		pos := aircraftAt(now)

		// Alternate between identification and altitude squitters so the
		// daemon learns both the callsign and the altitude.
		frame := ident
		if tick%2 == 1 {
			frame = positionFrame(testAddress, aircraftAltFt)
		}

		for _, rx := range rxs {
			arrival := now + geo.Distance(pos, rx.pos)/cluster.DefaultPropagationSpeed
			if _, err := fmt.Fprintf(rx.conn, `{"t":%.9f,"m":"%X"}`+"\n", arrival, frame); err != nil {
				os.Stderr.WriteString("test-feed: write to " + rx.id + ": " + err.Error() + "\n")
				os.Exit(1)
			}
		}
		sent++
		time.Sleep(*interval)
	}
	fmt.Printf("sent %d transmissions to %d receivers\n", sent, len(rxs))
}

// connectRing dials one connection per receiver, spaced evenly on a ring
// around the center, and completes the handshakes.
func connectRing(addr string, n int) ([]receiver, error) {
	rxs := make([]receiver, 0, n)
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		lat := centerLat + receiverRingKM/111.0*math.Sin(angle)
		lon := centerLon + receiverRingKM/111.0*math.Cos(angle)/math.Cos(centerLat*math.Pi/180)

		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		id := fmt.Sprintf("sim-%02d", i)
		_, err = fmt.Fprintf(conn,
			`{"receiver":%q,"operator":"sim","lat":%.6f,"lon":%.6f,"alt":200}`+"\n", id, lat, lon)
		if err != nil {
			return nil, fmt.Errorf("handshake %s: %w", id, err)
		}

		rxs = append(rxs, receiver{
			id:   id,
			pos:  geo.LLHToECEF(geo.LLH{Lat: lat, Lon: lon, Alt: 200}),
			conn: conn,
		})
	}
	return rxs, nil
}

// aircraftAt orbits the aircraft around the center.
func aircraftAt(now float64) geo.ECEF {
	angle := 2 * math.Pi * math.Mod(now, orbitPeriod) / orbitPeriod
	lat := centerLat + aircraftRingKM/111.0*math.Sin(angle)
	lon := centerLon + aircraftRingKM/111.0*math.Cos(angle)/math.Cos(centerLat*math.Pi/180)
	return geo.LLHToECEF(geo.LLH{Lat: lat, Lon: lon, Alt: float64(aircraftAltFt) * geo.FtToM})
}

// identFrame builds a DF17 identification squitter with a valid CRC.
func identFrame(addr uint32, callsign string) []byte {
	frame := make([]byte, 14)
	frame[0] = 0x8D
	frame[1] = byte(addr >> 16)
	frame[2] = byte(addr >> 8)
	frame[3] = byte(addr)
	frame[4] = 4 << 3 // type 4: aircraft identification
	packAIS(callsign, frame[5:11])
	return sealed(frame)
}

// positionFrame builds a DF17 airborne position squitter carrying only the
// 25ft-encoded altitude; the CPR position fields stay zero.
func positionFrame(addr uint32, altFt int) []byte {
	frame := make([]byte, 14)
	frame[0] = 0x8D
	frame[1] = byte(addr >> 16)
	frame[2] = byte(addr >> 8)
	frame[3] = byte(addr)
	frame[4] = 11 << 3 // type 11: airborne position
	n := uint32(altFt+1000) / 25
	ac12 := (n&0x7f0)<<1 | 0x10 | n&0xf
	frame[5] = byte(ac12 >> 4)
	frame[6] = byte(ac12&0xf) << 4
	return sealed(frame)
}

// sealed fills in the trailing parity bytes.
func sealed(frame []byte) []byte {
	pi := modes.Checksum(frame[:11])
	frame[11] = byte(pi >> 16)
	frame[12] = byte(pi >> 8)
	frame[13] = byte(pi)
	return frame
}

// packAIS packs eight characters into six bytes of 6-bit AIS code.
func packAIS(callsign string, dst []byte) {
	var codes [8]byte
	for i := 0; i < 8; i++ {
		c := byte(' ')
		if i < len(callsign) {
			c = callsign[i]
		}
		switch {
		case c >= 'A' && c <= 'Z':
			codes[i] = c - 'A' + 1
		case c >= '0' && c <= '9':
			codes[i] = c
		default:
			codes[i] = 32 // space
		}
	}
	dst[0] = codes[0]<<2 | codes[1]>>4
	dst[1] = codes[1]<<4 | codes[2]>>2
	dst[2] = codes[2]<<6 | codes[3]
	dst[3] = codes[4]<<2 | codes[5]>>4
	dst[4] = codes[5]<<4 | codes[6]>>2
	dst[5] = codes[6]<<6 | codes[7]
}

// Package ingest accepts receiver connections over TCP. The protocol is
// newline-delimited JSON: one handshake object identifying the receiver and
// its position, then one object per captured message carrying the GPS
// timestamp and the raw frame in hex.
package ingest

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/skysieve/mlatd/internal/adapters/modes"
	"github.com/skysieve/mlatd/internal/adapters/mq/queue"
	"github.com/skysieve/mlatd/internal/adapters/registry"
	"github.com/skysieve/mlatd/internal/domain/geo"
	"github.com/skysieve/mlatd/internal/domain/model"
	"github.com/skysieve/mlatd/pkg/logger"
	"github.com/skysieve/mlatd/pkg/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxLineBytes bounds a single protocol line.
const maxLineBytes = 64 * 1024

// handshake is the first line a receiver sends after connecting.
type handshake struct {
	Receiver string  `json:"receiver"`
	Operator string  `json:"operator"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Alt      float64 `json:"alt"`
}

// handshakeAck is the server's reply.
type handshakeAck struct {
	OK      bool   `json:"ok"`
	Session string `json:"session,omitempty"`
	Error   string `json:"error,omitempty"`
}

// sample is one captured message copy.
type sample struct {
	T float64 `json:"t"`
	M string  `json:"m"`
}

// Server accepts receiver feeds and forwards observations to the queue.
type Server struct {
	addr  string
	store *registry.Store
	queue queue.Queue
	log   logger.Logger

	ln   net.Listener
	wg   sync.WaitGroup
	stop chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// NewServer creates an ingest server feeding q and registering receivers and
// aircraft in store.
func NewServer(addr string, store *registry.Store, q queue.Queue, opts ...Option) *Server {
	s := &Server{
		addr:  addr,
		store: store,
		queue: q,
		log:   logger.Get().Named("ingest"),
		stop:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listen address and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("ingest listen on %s: %w", s.addr, err)
	}
	s.ln = ln
	s.log.Info("ingest listening", logger.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop(ctx)
	return nil
}

// Addr returns the bound listen address. Valid after Start.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Stop closes the listener and waits for connection handlers to drain.
func (s *Server) Stop() {
	close(s.stop)
	if s.ln != nil {
		s.ln.Close()
	}
	s.wg.Wait()
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stop:
			case <-ctx.Done():
			default:
				s.log.Error("accept failed", logger.Error(err))
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// handle runs one receiver session to completion.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Drop the connection when the server shuts down mid-session.
	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-s.stop:
			conn.Close()
		case <-ctx.Done():
			conn.Close()
		case <-closed:
		}
	}()

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)

	rx, session, err := s.doHandshake(sc, conn)
	if err != nil {
		s.log.Warn("handshake rejected",
			logger.String("remote", conn.RemoteAddr().String()),
			logger.Error(err))
		return
	}
	log := s.log.Named(rx.ID)
	log.Info("receiver connected",
		logger.String("session", session),
		logger.String("remote", conn.RemoteAddr().String()))
	defer func() {
		s.store.RemoveReceiver(rx.ID)
		log.Info("receiver disconnected", logger.String("session", session))
	}()

	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		metrics.RecordIngestLine()
		if err := s.ingestLine(ctx, rx, line); err != nil {
			metrics.RecordIngestError()
			log.Debug("bad line", logger.Error(err))
		}
	}
	if err := sc.Err(); err != nil {
		log.Debug("connection read ended", logger.Error(err))
	}
}

func (s *Server) doHandshake(sc *bufio.Scanner, conn net.Conn) (*model.Receiver, string, error) {
	if !sc.Scan() {
		return nil, "", fmt.Errorf("connection closed before handshake")
	}

	var hs handshake
	if err := json.Unmarshal(sc.Bytes(), &hs); err != nil {
		s.reject(conn, "malformed handshake")
		return nil, "", fmt.Errorf("malformed handshake: %w", err)
	}
	if hs.Receiver == "" || hs.Operator == "" {
		s.reject(conn, "receiver and operator are required")
		return nil, "", fmt.Errorf("incomplete handshake %+v", hs)
	}

	pos := geo.LLHToECEF(geo.LLH{Lat: hs.Lat, Lon: hs.Lon, Alt: hs.Alt})
	rx := s.store.UpsertReceiver(hs.Receiver, hs.Operator, pos)

	session := uuid.NewString()
	ack, _ := json.Marshal(handshakeAck{OK: true, Session: session})
	conn.Write(append(ack, '\n'))
	return rx, session, nil
}

func (s *Server) reject(conn net.Conn, reason string) {
	ack, _ := json.Marshal(handshakeAck{OK: false, Error: reason})
	conn.Write(append(ack, '\n'))
}

// ingestLine parses one sample, refreshes the aircraft registry from frames
// whose CRC verifies, and enqueues the observation for correlation.
func (s *Server) ingestLine(ctx context.Context, rx *model.Receiver, line []byte) error {
	var smp sample
	if err := json.Unmarshal(line, &smp); err != nil {
		return fmt.Errorf("malformed sample: %w", err)
	}
	frame, err := hex.DecodeString(smp.M)
	if err != nil {
		return fmt.Errorf("bad frame hex: %w", err)
	}
	msg, err := modes.Decode(frame)
	if err != nil {
		return err
	}

	// All-call and extended squitter frames carry a verifiable CRC; use
	// them to learn which aircraft exist. AP-protected frames cannot prove
	// their address and never create registry entries.
	if msg.CRCOK != nil && *msg.CRCOK {
		s.store.TouchAircraft(msg.Address, smp.T)
	}

	s.queue.Enqueue(ctx, model.Observation{
		Receiver:  rx,
		Timestamp: smp.T,
		Message:   frame,
	})
	return nil
}

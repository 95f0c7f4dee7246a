// Package service assembles the multilateration daemon: ingest, observation
// queue, correlation engine, registries, blacklist, and diagnostic log.
package service

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/skysieve/mlatd/internal/adapters/clocknorm"
	"github.com/skysieve/mlatd/internal/adapters/ingest"
	"github.com/skysieve/mlatd/internal/adapters/mq/queue"
	"github.com/skysieve/mlatd/internal/adapters/registry"
	"github.com/skysieve/mlatd/internal/blacklist"
	"github.com/skysieve/mlatd/internal/diaglog"
	"github.com/skysieve/mlatd/internal/tracker"
	"github.com/skysieve/mlatd/pkg/logger"
)

// Service owns the component lifecycle and implements the stats surface the
// HTTP API serves.
type Service struct {
	ingestAddr       string
	queueSize        int
	delay            time.Duration
	propagationSpeed float64
	blacklistPath    string
	pseudorangeLog   string
	aircraftExpiry   time.Duration
	solver           tracker.Solver
	smoother         tracker.TrackSmoother
	outputs          []tracker.OutputHandler

	store  *registry.Store
	queue  queue.Queue
	engine *tracker.Engine
	list   *blacklist.List
	diag   *diaglog.Writer
	server *ingest.Server

	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithIngestAddr sets the receiver TCP listen address.
func WithIngestAddr(addr string) Option {
	return func(s *Service) {
		if addr != "" {
			s.ingestAddr = addr
		}
	}
}

// WithQueueSize bounds the observation queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithResolutionDelay sets the correlation window D.
func WithResolutionDelay(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithPropagationSpeed overrides the feasibility-check propagation speed.
func WithPropagationSpeed(speed float64) Option {
	return func(s *Service) {
		if speed > 0 {
			s.propagationSpeed = speed
		}
	}
}

// WithBlacklistPath sets the operator blacklist file.
func WithBlacklistPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.blacklistPath = path
		}
	}
}

// WithPseudorangeLog enables the per-fix diagnostic JSON log at path.
func WithPseudorangeLog(path string) Option {
	return func(s *Service) {
		s.pseudorangeLog = path
	}
}

// WithAircraftExpiry drops aircraft not heard for this long.
func WithAircraftExpiry(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.aircraftExpiry = d
		}
	}
}

// WithSolver attaches the external position solver.
func WithSolver(solver tracker.Solver) Option {
	return func(s *Service) {
		s.solver = solver
	}
}

// WithSmoother attaches the track smoother.
func WithSmoother(smoother tracker.TrackSmoother) Option {
	return func(s *Service) {
		s.smoother = smoother
	}
}

// WithOutputHandler registers a handler for accepted fixes.
func WithOutputHandler(h tracker.OutputHandler) Option {
	return func(s *Service) {
		if h != nil {
			s.outputs = append(s.outputs, h)
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// New creates an unstarted Service.
func New(opts ...Option) *Service {
	s := &Service{
		ingestAddr:     ":30004",
		queueSize:      65536,
		delay:          2500 * time.Millisecond,
		blacklistPath:  "mlat-blacklist.txt",
		aircraftExpiry: 5 * time.Minute,
		logger:         logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds and starts all components. It returns once the ingest
// listener is bound and the correlation loop is running.
func (s *Service) Start(ctx context.Context) error {
	if s.started {
		return fmt.Errorf("service already started")
	}

	s.store = registry.NewStore()

	list, err := blacklist.New(s.blacklistPath)
	if err != nil {
		return fmt.Errorf("blacklist: %w", err)
	}
	s.list = list

	if s.pseudorangeLog != "" {
		diag, err := diaglog.New(s.pseudorangeLog)
		if err != nil {
			return fmt.Errorf("diagnostic log: %w", err)
		}
		s.diag = diag
	}

	s.queue = queue.NewInMemoryQueue(
		queue.WithCapacity(s.queueSize),
		queue.WithBufferSize(s.queueSize),
	)

	engineOpts := []tracker.Option{
		tracker.WithDelay(s.delay),
		tracker.WithBlacklist(s.list),
	}
	if s.propagationSpeed > 0 {
		engineOpts = append(engineOpts, tracker.WithPropagationSpeed(s.propagationSpeed))
	}
	if s.solver != nil {
		engineOpts = append(engineOpts, tracker.WithSolver(s.solver))
	} else {
		s.logger.Warn("no position solver attached, resolutions will not produce fixes")
	}
	if s.smoother != nil {
		engineOpts = append(engineOpts, tracker.WithSmoother(s.smoother))
	}
	if s.diag != nil {
		engineOpts = append(engineOpts, tracker.WithDiagnosticLog(s.diag))
	}
	for _, h := range s.outputs {
		engineOpts = append(engineOpts, tracker.WithOutputHandler(h))
	}
	s.engine = tracker.NewEngine(s.store, clocknorm.NewGPS(), engineOpts...)

	s.server = ingest.NewServer(s.ingestAddr, s.store, s.queue)

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if err := s.server.Start(runCtx); err != nil {
		cancel()
		return err
	}

	tr := tracker.NewTracker(s.engine, s.queue)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = tr.Run(runCtx)
	}()

	s.wg.Add(1)
	go s.expireLoop(runCtx)

	s.started = true
	s.logger.Info("service started",
		logger.String("ingest_addr", s.ingestAddr),
		logger.Duration("resolution_delay", s.delay))
	return nil
}

// expireLoop periodically drops aircraft that went quiet.
func (s *Service) expireLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			cutoff := float64(now.Add(-s.aircraftExpiry).UnixNano()) / 1e9
			if n := s.store.ExpireAircraft(cutoff); n > 0 {
				s.logger.Debug("expired aircraft", logger.Int("count", n))
			}
		}
	}
}

// Stop shuts everything down: the ingest listener first, then the queue so
// the correlation loop drains, then the diagnostic log.
func (s *Service) Stop() {
	if !s.started {
		return
	}
	s.server.Stop()
	_ = s.queue.Close()
	s.cancel()
	s.wg.Wait()
	if s.diag != nil {
		s.diag.Close()
	}
	s.started = false
	s.logger.Info("service stopped")
}

// IngestAddr returns the bound receiver listen address. Valid after Start.
func (s *Service) IngestAddr() net.Addr {
	return s.server.Addr()
}

// ReloadBlacklist re-reads the operator blacklist. Wired to SIGHUP.
func (s *Service) ReloadBlacklist() error {
	return s.list.Reload()
}

// RotateDiagnostics reopens the diagnostic log file. Wired to SIGHUP.
func (s *Service) RotateDiagnostics() {
	if s.diag != nil {
		s.diag.Reopen()
	}
}

// GetStats implements the HTTP API stats surface.
func (s *Service) GetStats() map[string]any {
	receivers, aircraft := s.store.Counts()
	stats := map[string]any{
		"receivers":             receivers,
		"aircraft":              aircraft,
		"pending_groups":        s.engine.Pending(),
		"queue_depth":           s.queue.Len(context.Background()),
		"blacklisted_operators": s.list.Len(),
	}
	if s.diag != nil {
		stats["diagnostic_drops"] = s.diag.Dropped()
	}
	return stats
}

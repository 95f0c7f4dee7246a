// Package diaglog writes one JSON line per successful position resolution to
// a file, for offline analysis of receiver timing quality. Writes are
// decoupled from the resolution path through a buffered channel; when the
// writer falls behind, records are dropped rather than stalling resolution.
package diaglog

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"github.com/skysieve/mlatd/pkg/logger"
	"github.com/skysieve/mlatd/pkg/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultBuffer = 256

// Record is one resolved position with the measurements that produced it.
// Cluster rows are receiver position and arrival time:
// [x, y, z, timestamp, variance].
type Record struct {
	ICAO          string       `json:"icao"`
	Time          float64      `json:"time"`
	ECEF          [3]float64   `json:"ecef"`
	ECEFCov       [][3]float64 `json:"ecef_cov,omitempty"`
	Distinct      int          `json:"distinct"`
	Cluster       [][5]float64 `json:"cluster"`
	Altitude      *float64     `json:"altitude,omitempty"`
	AltitudeError *float64     `json:"altitude_error,omitempty"`
}

// Writer appends Records to a log file as JSON lines.
type Writer struct {
	path string
	log  logger.Logger

	ch      chan Record
	reopen  chan struct{}
	done    chan struct{}
	dropped atomic.Uint64

	closeOnce sync.Once
}

// Option configures a Writer.
type Option func(*Writer)

// WithBuffer sets the channel depth between resolution and the writer
// goroutine.
func WithBuffer(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.ch = make(chan Record, n)
		}
	}
}

// WithLogger sets the logger for writer errors.
func WithLogger(log logger.Logger) Option {
	return func(w *Writer) {
		w.log = log
	}
}

// New opens (creating or appending) the log file at path and starts the
// writer goroutine.
func New(path string, opts ...Option) (*Writer, error) {
	w := &Writer{
		path:   path,
		log:    logger.Get().Named("diaglog"),
		ch:     make(chan Record, defaultBuffer),
		reopen: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	f, err := w.open()
	if err != nil {
		return nil, err
	}
	go w.run(f)
	return w, nil
}

func (w *Writer) open() (*os.File, error) {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open diagnostic log %s: %w", w.path, err)
	}
	return f, nil
}

// Write queues a record. It never blocks; if the writer is behind the record
// is counted as dropped and discarded.
func (w *Writer) Write(r Record) {
	select {
	case w.ch <- r:
	default:
		w.dropped.Add(1)
		metrics.RecordDiagDropped()
	}
}

// Reopen makes the writer close and reopen the backing file before the next
// record, so the log can be rotated externally.
func (w *Writer) Reopen() {
	select {
	case w.reopen <- struct{}{}:
	default:
	}
}

// Dropped returns the number of records discarded due to backpressure.
func (w *Writer) Dropped() uint64 {
	return w.dropped.Load()
}

// Close drains queued records and closes the file.
func (w *Writer) Close() {
	w.closeOnce.Do(func() {
		close(w.ch)
		<-w.done
	})
}

func (w *Writer) run(f *os.File) {
	defer close(w.done)

	enc := json.NewEncoder(f)
	for {
		select {
		case <-w.reopen:
			f.Close()
			nf, err := w.open()
			if err != nil {
				w.log.Error("reopen failed, keeping log closed", logger.Error(err))
				// drain until closed
				for range w.ch {
					w.dropped.Add(1)
				}
				return
			}
			f = nf
			enc = json.NewEncoder(f)
			w.log.Info("diagnostic log reopened", logger.String("path", w.path))

		case r, ok := <-w.ch:
			if !ok {
				f.Close()
				return
			}
			if err := enc.Encode(r); err != nil {
				w.log.Error("write failed", logger.Error(err))
			}
		}
	}
}

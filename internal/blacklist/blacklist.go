// Package blacklist maintains the set of receiver operators whose
// measurements are excluded from position resolution. The set is loaded from
// a flat text file, one operator name per line, and can be reloaded at
// runtime without dropping queries in flight.
package blacklist

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/skysieve/mlatd/pkg/logger"
	"github.com/skysieve/mlatd/pkg/metrics"
)

// List holds the current blacklist. Lookups are lock-free; Reload swaps the
// whole set atomically.
type List struct {
	path string
	log  logger.Logger
	set  atomic.Pointer[map[string]struct{}]
}

// Option configures a List.
type Option func(*List)

// WithLogger sets the logger used for reload reporting.
func WithLogger(log logger.Logger) Option {
	return func(l *List) {
		l.log = log
	}
}

// New creates a List backed by the file at path and performs the initial
// load. A missing file is not an error; it yields an empty blacklist.
func New(path string, opts ...Option) (*List, error) {
	l := &List{
		path: path,
		log:  logger.Get().Named("blacklist"),
	}
	for _, opt := range opts {
		opt(l)
	}

	empty := map[string]struct{}{}
	l.set.Store(&empty)

	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Contains reports whether operator is blacklisted.
func (l *List) Contains(operator string) bool {
	_, ok := (*l.set.Load())[operator]
	return ok
}

// Len returns the number of blacklisted operators.
func (l *List) Len() int {
	return len(*l.set.Load())
}

// Reload re-reads the backing file and swaps the active set. On read errors
// the previous set stays in effect.
func (l *List) Reload() error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			empty := map[string]struct{}{}
			l.set.Store(&empty)
			metrics.RecordBlacklistReload(0)
			l.log.Info("blacklist file absent, using empty set",
				logger.String("path", l.path))
			return nil
		}
		return fmt.Errorf("open blacklist %s: %w", l.path, err)
	}
	defer f.Close()

	set := make(map[string]struct{})
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		op := strings.TrimSpace(sc.Text())
		if op == "" || strings.HasPrefix(op, "#") {
			continue
		}
		set[op] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read blacklist %s: %w", l.path, err)
	}

	l.set.Store(&set)
	metrics.RecordBlacklistReload(len(set))
	l.log.Info("blacklist reloaded",
		logger.String("path", l.path),
		logger.Int("operators", len(set)))
	return nil
}

// Package registry tracks the receivers currently connected and the aircraft
// heard from them. It is the tracker's source for decoded state (altitude,
// squawk, callsign) and the anchor for per-aircraft resolution history.
package registry

import (
	"sync"

	"github.com/skysieve/mlatd/internal/domain/geo"
	"github.com/skysieve/mlatd/internal/domain/model"
	"github.com/skysieve/mlatd/pkg/metrics"
)

// Store is an in-memory registry. All methods are safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	aircraft  map[uint32]*model.Aircraft
	receivers map[string]*model.Receiver
}

// NewStore creates an empty registry.
func NewStore() *Store {
	return &Store{
		aircraft:  make(map[uint32]*model.Aircraft),
		receivers: make(map[string]*model.Receiver),
	}
}

// Aircraft returns the aircraft with the given Mode S address, if known.
func (s *Store) Aircraft(addr uint32) (*model.Aircraft, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ac, ok := s.aircraft[addr]
	return ac, ok
}

// UpsertAircraft returns the aircraft with the given address, creating it if
// unseen.
func (s *Store) UpsertAircraft(addr uint32) *model.Aircraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	ac, ok := s.aircraft[addr]
	if !ok {
		ac = &model.Aircraft{Address: addr}
		s.aircraft[addr] = ac
		metrics.UpdateKnownAircraft(len(s.aircraft))
	}
	return ac
}

// TouchAircraft records that an aircraft was heard at the given time,
// creating it if unseen. LastSeen only moves forward.
func (s *Store) TouchAircraft(addr uint32, seen float64) *model.Aircraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	ac, ok := s.aircraft[addr]
	if !ok {
		ac = &model.Aircraft{Address: addr}
		s.aircraft[addr] = ac
		metrics.UpdateKnownAircraft(len(s.aircraft))
	}
	if ac.LastSeen < seen {
		ac.LastSeen = seen
	}
	return ac
}

// RemoveAircraft forgets an aircraft.
func (s *Store) RemoveAircraft(addr uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.aircraft[addr]; ok {
		delete(s.aircraft, addr)
		metrics.UpdateKnownAircraft(len(s.aircraft))
	}
}

// ExpireAircraft drops aircraft not heard since the given time and returns
// how many were removed.
func (s *Store) ExpireAircraft(cutoff float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for addr, ac := range s.aircraft {
		if ac.LastSeen < cutoff {
			delete(s.aircraft, addr)
			removed++
		}
	}
	if removed > 0 {
		metrics.UpdateKnownAircraft(len(s.aircraft))
	}
	return removed
}

// Receiver returns the receiver with the given ID, if connected.
func (s *Store) Receiver(id string) (*model.Receiver, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rx, ok := s.receivers[id]
	return rx, ok
}

// UpsertReceiver registers a receiver. A reconnect with a changed position
// replaces the previous entry, invalidating its cached distances.
func (s *Store) UpsertReceiver(id, operator string, pos geo.ECEF) *model.Receiver {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rx, ok := s.receivers[id]; ok && rx.Operator == operator && rx.Position == pos {
		return rx
	}
	rx := model.NewReceiver(id, operator, pos)
	s.receivers[id] = rx
	metrics.UpdateConnectedReceivers(len(s.receivers))
	return rx
}

// RemoveReceiver deregisters a receiver.
func (s *Store) RemoveReceiver(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receivers[id]; ok {
		delete(s.receivers, id)
		metrics.UpdateConnectedReceivers(len(s.receivers))
	}
}

// Counts returns the number of connected receivers and known aircraft.
func (s *Store) Counts() (receivers, aircraft int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.receivers), len(s.aircraft)
}

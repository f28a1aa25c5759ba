package hardware

import (
	"context"
	"sync"
)

// SimulatedBackend keeps one virtual door per locker in memory. Doors start
// closed; Actuate opens a door and it stays open until ForceClose.
type SimulatedBackend struct {
	mu         sync.Mutex
	closed     map[int64]bool
	actuations map[int64]int
}

// NewSimulatedBackend creates closed doors for lockers 1..size.
func NewSimulatedBackend(size int) *SimulatedBackend {
	s := &SimulatedBackend{
		closed:     make(map[int64]bool, size),
		actuations: make(map[int64]int),
	}
	for id := int64(1); id <= int64(size); id++ {
		s.closed[id] = true
	}
	return s
}

func (s *SimulatedBackend) Kind() Kind { return KindSimulated }

func (s *SimulatedBackend) Actuate(_ context.Context, m Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed[m.Locker] = false
	s.actuations[m.Locker]++
	return nil
}

func (s *SimulatedBackend) ReadSensor(_ context.Context, m Mapping) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isClosed(m.Locker), nil
}

func (s *SimulatedBackend) ReadAll(_ context.Context, ms []Mapping) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]bool, len(ms))
	for _, m := range ms {
		out[m.Locker] = s.isClosed(m.Locker)
	}
	return out, nil
}

// ForceClose marks a door as closed, standing in for a person shutting it.
func (s *SimulatedBackend) ForceClose(id int64) {
	s.SetClosed(id, true)
}

// SetClosed sets a door state without counting an actuation.
func (s *SimulatedBackend) SetClosed(id int64, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed[id] = closed
}

// Actuations returns how many times a locker has been pulsed.
func (s *SimulatedBackend) Actuations(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actuations[id]
}

func (s *SimulatedBackend) isClosed(id int64) bool {
	closed, ok := s.closed[id]
	return !ok || closed
}

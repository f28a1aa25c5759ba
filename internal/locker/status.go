package locker

import (
	"context"
	"fmt"

	"smart-locker-backend/internal/model"
)

type LockerStatus struct {
	ID         int64 `json:"id"`
	Occupied   bool  `json:"occupied"`
	DoorClosed bool  `json:"door_closed"`
}

type HardwareStatus struct {
	Simulated      bool   `json:"simulated"`
	FallbackReason string `json:"fallback_reason,omitempty"`
}

// StatusReport is the fleet view served to operators. SensorError is set
// when the live read failed and door states come from the database.
type StatusReport struct {
	Lockers     []LockerStatus `json:"lockers"`
	Hardware    HardwareStatus `json:"hardware"`
	SensorError string         `json:"sensor_error,omitempty"`
}

// Drift is a locker whose persisted door state disagreed with its sensor.
type Drift struct {
	LockerID  int64 `json:"locker_id"`
	Persisted bool  `json:"persisted"`
	Observed  bool  `json:"observed"`
}

// Status merges persisted occupancy with a live sensor sweep, persisting any
// door state that drifted. A failed sweep degrades to the persisted states.
func (s *Service) Status(ctx context.Context) (*StatusReport, error) {
	lockers, err := s.store.ListLockers(ctx)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	report := &StatusReport{
		Lockers:  make([]LockerStatus, 0, len(lockers)),
		Hardware: s.HardwareStatus(),
	}

	states, err := s.hw.ReadAll(ctx)
	if err != nil {
		s.logger.Warn("sensor sweep failed, serving persisted door states", "error", err)
		report.SensorError = err.Error()
		states = nil
	} else {
		s.persistDrift(ctx, lockers, states)
	}

	for _, l := range lockers {
		closed := l.DoorClosed
		if observed, ok := states[l.ID]; ok {
			closed = observed
		}
		report.Lockers = append(report.Lockers, LockerStatus{ID: l.ID, Occupied: l.Occupied, DoorClosed: closed})
	}
	return report, nil
}

// Reconcile compares every persisted door flag with the sensors and writes
// back the ones that changed.
func (s *Service) Reconcile(ctx context.Context) ([]Drift, error) {
	lockers, err := s.store.ListLockers(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	states, err := s.hw.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}
	return s.persistDrift(ctx, lockers, states), nil
}

func (s *Service) persistDrift(ctx context.Context, lockers []model.Locker, states map[int64]bool) []Drift {
	var drifts []Drift
	for _, l := range lockers {
		observed, ok := states[l.ID]
		if !ok || observed == l.DoorClosed {
			continue
		}
		s.logger.Warn("door state drift", "locker", l.ID, "persisted_closed", l.DoorClosed, "observed_closed", observed)
		if err := s.store.SetDoorClosed(ctx, l.ID, observed); err != nil {
			s.logger.Error("failed to persist door state", "locker", l.ID, "error", err)
			continue
		}
		drifts = append(drifts, Drift{LockerID: l.ID, Persisted: l.DoorClosed, Observed: observed})
	}
	return drifts
}

// HardwareStatus reports whether real hardware is in use.
func (s *Service) HardwareStatus() HardwareStatus {
	return HardwareStatus{Simulated: s.hw.Simulated(), FallbackReason: s.hw.FallbackReason()}
}

// WatchDoor polls one locker's sensor. It returns true once the door reads
// closed, after persisting that state.
func (s *Service) WatchDoor(ctx context.Context, id int64) (bool, error) {
	closed, err := s.hw.ReadSensor(ctx, id)
	if err != nil || !closed {
		return false, err
	}
	if err := s.store.SetDoorClosed(ctx, id, true); err != nil {
		return false, fmt.Errorf("persist door closed for locker %d: %w", id, err)
	}
	return true, nil
}

// LockerConfig is one row of the wiring listing. The special code itself is
// never exposed.
type LockerConfig struct {
	ID             int64  `json:"id"`
	BackendKind    string `json:"backend_kind"`
	ActuatorPin    int    `json:"actuator_pin"`
	SensorPin      *int   `json:"sensor_pin"`
	HasSpecialCode bool   `json:"has_special_code"`
	Occupied       bool   `json:"occupied"`
}

// ListConfig returns the persisted wiring of every locker.
func (s *Service) ListConfig(ctx context.Context) ([]LockerConfig, error) {
	lockers, err := s.store.ListLockers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lockers: %w", err)
	}
	out := make([]LockerConfig, 0, len(lockers))
	for _, l := range lockers {
		out = append(out, LockerConfig{
			ID:             l.ID,
			BackendKind:    l.BackendKind,
			ActuatorPin:    l.ActuatorPin,
			SensorPin:      l.SensorPin,
			HasSpecialCode: l.SpecialCode != nil,
			Occupied:       l.Occupied,
		})
	}
	return out, nil
}

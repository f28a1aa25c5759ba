package locker

import (
	"smart-locker-backend/internal/hardware"
	"smart-locker-backend/internal/model"
)

// LayoutFromLockers rebuilds the hardware layout from persisted wiring.
func LayoutFromLockers(size int, lockers []model.Locker) (*hardware.Layout, error) {
	mappings := make([]hardware.Mapping, 0, len(lockers))
	for _, l := range lockers {
		kind, err := hardware.ParseKind(l.BackendKind)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, hardware.Mapping{
			Locker:      l.ID,
			Kind:        kind,
			ActuatorPin: l.ActuatorPin,
			SensorPin:   l.SensorPin,
		})
	}
	return hardware.NewLayout(size, mappings)
}

// SeedLockers turns a layout into fresh rows: empty, door closed.
func SeedLockers(layout *hardware.Layout) []model.Locker {
	rows := make([]model.Locker, 0, layout.Size())
	for _, m := range layout.Mappings() {
		rows = append(rows, model.Locker{
			ID:          m.Locker,
			DoorClosed:  true,
			BackendKind: string(m.Kind),
			ActuatorPin: m.ActuatorPin,
			SensorPin:   m.SensorPin,
		})
	}
	return rows
}

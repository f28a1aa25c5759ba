package hardware

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"smart-locker-backend/config"
)

// Kind identifies which backend owns a locker's lines.
type Kind string

const (
	KindDirect    Kind = "direct"
	KindExpander  Kind = "expander"
	KindSimulated Kind = "simulated"
)

const (
	maxBCMPin      = 27
	expanderLines  = 16
	i2cSDA, i2cSCL = 2, 3
)

// ParseKind accepts the persisted/user-facing backend names.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindDirect:
		return KindDirect, nil
	case KindExpander:
		return KindExpander, nil
	}
	return "", configErrorf("unknown backend kind %q", s)
}

// Mapping binds one locker to a backend and the lines within it. For
// KindDirect the pins are BCM numbers; for KindExpander they are relay and
// sensor indexes 0-15 on the two chips.
type Mapping struct {
	Locker      int64
	Kind        Kind
	ActuatorPin int
	SensorPin   *int
}

// HasSensor reports whether a door sensor is wired for the locker.
func (m Mapping) HasSensor() bool {
	return m.SensorPin != nil
}

func (m Mapping) String() string {
	if m.SensorPin == nil {
		return fmt.Sprintf("locker %d: %s actuator=%d sensor=none", m.Locker, m.Kind, m.ActuatorPin)
	}
	return fmt.Sprintf("locker %d: %s actuator=%d sensor=%d", m.Locker, m.Kind, m.ActuatorPin, *m.SensorPin)
}

// Layout is a validated, immutable locker-to-line mapping for the whole fleet.
type Layout struct {
	size     int
	mappings map[int64]Mapping
}

// NewLayout validates mappings for lockers 1..size. Every locker must be
// mapped exactly once and no two lockers may share a physical line.
func NewLayout(size int, mappings []Mapping) (*Layout, error) {
	if size <= 0 {
		return nil, configErrorf("fleet size must be positive, got %d", size)
	}
	l := &Layout{size: size, mappings: make(map[int64]Mapping, len(mappings))}
	for _, m := range mappings {
		if _, dup := l.mappings[m.Locker]; dup {
			return nil, configErrorf("locker %d is mapped twice", m.Locker)
		}
		l.mappings[m.Locker] = m
	}
	if err := l.validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// DefaultLayout builds the stock wiring: lockers 1..DirectLockers on the
// direct GPIO pin tables, the remainder on consecutive expander lines.
func DefaultLayout(cfg config.HardwareConfig) (*Layout, error) {
	mappings := make([]Mapping, 0, cfg.FleetSize)
	for i := 0; i < cfg.FleetSize; i++ {
		id := int64(i + 1)
		if i < cfg.DirectLockers {
			m := Mapping{Locker: id, Kind: KindDirect, ActuatorPin: cfg.DirectActuatorPins[i]}
			if i < len(cfg.DirectSensorPins) {
				m.SensorPin = intPtr(cfg.DirectSensorPins[i])
			}
			mappings = append(mappings, m)
			continue
		}
		idx := i - cfg.DirectLockers
		mappings = append(mappings, Mapping{Locker: id, Kind: KindExpander, ActuatorPin: idx, SensorPin: intPtr(idx)})
	}
	return NewLayout(cfg.FleetSize, mappings)
}

// Size returns the fleet size.
func (l *Layout) Size() int { return l.size }

// Get returns the mapping for a locker.
func (l *Layout) Get(id int64) (Mapping, bool) {
	m, ok := l.mappings[id]
	return m, ok
}

// Mappings returns all mappings ordered by locker id.
func (l *Layout) Mappings() []Mapping {
	ids := make([]int64, 0, len(l.mappings))
	for id := range l.mappings {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Mapping, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.mappings[id])
	}
	return out
}

// Kinds returns the distinct backend kinds in use.
func (l *Layout) Kinds() []Kind {
	seen := make(map[Kind]bool)
	var kinds []Kind
	for _, m := range l.Mappings() {
		if !seen[m.Kind] {
			seen[m.Kind] = true
			kinds = append(kinds, m.Kind)
		}
	}
	return kinds
}

// With returns a copy of the layout with one mapping replaced. The receiver
// is left untouched whether or not the result validates.
func (l *Layout) With(m Mapping) (*Layout, error) {
	next := &Layout{size: l.size, mappings: maps.Clone(l.mappings)}
	next.mappings[m.Locker] = m
	if err := next.validate(); err != nil {
		return nil, err
	}
	return next, nil
}

// line is a physical line identity. Direct actuators and sensors share the
// BCM namespace; expander relays and sensors live on separate chips.
type line struct {
	space string
	pin   int
}

func (l *Layout) validate() error {
	owners := make(map[line]int64)
	usesExpander := false
	for _, m := range l.mappings {
		if m.Kind == KindExpander {
			usesExpander = true
		}
	}

	claim := func(ln line, id int64) error {
		if other, taken := owners[ln]; taken && other != id {
			return configErrorf("lockers %d and %d share %s line %d", other, id, ln.space, ln.pin)
		} else if taken {
			return configErrorf("locker %d uses %s line %d for both actuator and sensor", id, ln.space, ln.pin)
		}
		owners[ln] = id
		return nil
	}

	for _, m := range l.Mappings() {
		if m.Locker < 1 || m.Locker > int64(l.size) {
			return configErrorf("locker %d is outside the fleet 1..%d", m.Locker, l.size)
		}
		switch m.Kind {
		case KindDirect:
			pins := []int{m.ActuatorPin}
			if m.SensorPin != nil {
				pins = append(pins, *m.SensorPin)
			}
			for _, p := range pins {
				if p < 0 || p > maxBCMPin {
					return configErrorf("locker %d: BCM pin %d out of range 0..%d", m.Locker, p, maxBCMPin)
				}
				if usesExpander && (p == i2cSDA || p == i2cSCL) {
					return configErrorf("locker %d: BCM pin %d is reserved for the I2C bus", m.Locker, p)
				}
				if err := claim(line{"bcm", p}, m.Locker); err != nil {
					return err
				}
			}
		case KindExpander:
			if m.ActuatorPin < 0 || m.ActuatorPin >= expanderLines {
				return configErrorf("locker %d: relay index %d out of range 0..%d", m.Locker, m.ActuatorPin, expanderLines-1)
			}
			if err := claim(line{"relay", m.ActuatorPin}, m.Locker); err != nil {
				return err
			}
			if m.SensorPin != nil {
				if *m.SensorPin < 0 || *m.SensorPin >= expanderLines {
					return configErrorf("locker %d: sensor index %d out of range 0..%d", m.Locker, *m.SensorPin, expanderLines-1)
				}
				if err := claim(line{"sensor", *m.SensorPin}, m.Locker); err != nil {
					return err
				}
			}
		default:
			return configErrorf("locker %d: unknown backend kind %q", m.Locker, m.Kind)
		}
	}

	for id := int64(1); id <= int64(l.size); id++ {
		if _, ok := l.mappings[id]; !ok {
			return configErrorf("locker %d has no pin mapping", id)
		}
	}
	return nil
}

func intPtr(v int) *int { return &v }

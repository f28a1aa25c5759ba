package hardware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"smart-locker-backend/config"
)

// Drivers opens the physical resources. Tests swap in fakes.
type Drivers struct {
	OpenGPIO func() (GPIO, error)
	OpenBus  func(name string) (Bus, error)
}

// DefaultDrivers returns the Raspberry Pi drivers.
func DefaultDrivers() Drivers {
	return Drivers{OpenGPIO: OpenRPIO, OpenBus: OpenI2C}
}

// Router owns the fleet's hardware: it maps every locker to one backend and
// dispatches actuate and read calls to it.
//
// Operations hold the read lock for their whole duration and Apply holds the
// write lock while it rebuilds backends, so an in-flight pulse finishes on the
// mapping it started with and nothing ever runs against a half-built one.
type Router struct {
	logger  *slog.Logger
	cfg     config.HardwareConfig
	drivers Drivers

	mu       sync.RWMutex
	layout   *Layout
	backends map[Kind]PinBackend
	sim      *SimulatedBackend
	fallback error

	// Opened lazily, owned for the router's lifetime.
	gpio  GPIO
	bus   Bus
	chips map[uint16]*mcp23017
}

// Open builds a router for layout. With cfg.Simulate set, or when the real
// hardware cannot be initialised, the whole fleet runs on the simulator; the
// latter is logged at ERROR and reported by FallbackReason. Only an invalid
// layout makes Open fail.
func Open(cfg config.HardwareConfig, layout *Layout, logger *slog.Logger, drivers Drivers) (*Router, error) {
	if layout == nil {
		return nil, configErrorf("no layout")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Expander.RelayAddress == cfg.Expander.SensorAddress {
		return nil, configErrorf("relay and sensor expanders share address 0x%02x", cfg.Expander.RelayAddress)
	}

	r := &Router{
		logger:  logger.With("component", "hardware"),
		cfg:     cfg,
		drivers: drivers,
		layout:  layout,
		chips:   make(map[uint16]*mcp23017),
	}

	if cfg.Simulate {
		r.sim = NewSimulatedBackend(layout.Size())
		r.logger.Info("hardware simulation enabled", "lockers", layout.Size())
		return r, nil
	}

	backends, err := r.buildBackends(layout)
	if err != nil {
		r.closeDrivers()
		r.sim = NewSimulatedBackend(layout.Size())
		r.fallback = err
		r.logger.Error("hardware initialisation failed, falling back to simulator", "error", err)
		return r, nil
	}
	r.backends = backends
	r.logger.Info("hardware initialised", "lockers", layout.Size(), "kinds", layout.Kinds())
	return r, nil
}

// buildBackends opens whatever drivers the layout needs and constructs one
// backend per kind. Caller holds mu or has exclusive access.
func (r *Router) buildBackends(layout *Layout) (map[Kind]PinBackend, error) {
	backends := make(map[Kind]PinBackend)
	for _, kind := range layout.Kinds() {
		switch kind {
		case KindDirect:
			gpio, err := r.openGPIO()
			if err != nil {
				return nil, err
			}
			b, err := NewDirectGPIOBackend(gpio, layout.Mappings(), r.cfg.Dwell)
			if err != nil {
				return nil, err
			}
			backends[KindDirect] = b
		case KindExpander:
			relay, sensor, err := r.openExpanders()
			if err != nil {
				return nil, err
			}
			backends[KindExpander] = newPortExpanderBackend(relay, sensor, r.cfg.Dwell)
		}
	}
	return backends, nil
}

func (r *Router) openGPIO() (GPIO, error) {
	if r.gpio != nil {
		return r.gpio, nil
	}
	if r.drivers.OpenGPIO == nil {
		return nil, &HardwareError{Op: "open gpio", Err: errors.New("no gpio driver")}
	}
	gpio, err := r.drivers.OpenGPIO()
	if err != nil {
		return nil, &HardwareError{Op: "open gpio", Err: err}
	}
	r.gpio = gpio
	return gpio, nil
}

func (r *Router) openExpanders() (relay, sensor *mcp23017, err error) {
	if r.bus == nil {
		if r.drivers.OpenBus == nil {
			return nil, nil, &HardwareError{Op: "open i2c", Err: errors.New("no i2c driver")}
		}
		bus, err := r.drivers.OpenBus(r.cfg.Expander.Bus)
		if err != nil {
			return nil, nil, &HardwareError{Op: "open i2c", Err: err}
		}
		r.bus = bus
	}

	relay, err = r.chip(r.cfg.Expander.RelayAddress, (*mcp23017).initOutputs)
	if err != nil {
		return nil, nil, &HardwareError{Op: "init relay expander", Err: err}
	}
	sensor, err = r.chip(r.cfg.Expander.SensorAddress, (*mcp23017).initInputs)
	if err != nil {
		return nil, nil, &HardwareError{Op: "init sensor expander", Err: err}
	}
	return relay, sensor, nil
}

// chip returns the chip at addr, initialising it on first use.
func (r *Router) chip(addr uint16, init func(*mcp23017) error) (*mcp23017, error) {
	if c, ok := r.chips[addr]; ok {
		return c, nil
	}
	c := &mcp23017{bus: r.bus, addr: addr}
	if err := init(c); err != nil {
		return nil, err
	}
	r.chips[addr] = c
	return c, nil
}

func (r *Router) closeDrivers() {
	if r.gpio != nil {
		if err := r.gpio.Close(); err != nil {
			r.logger.Warn("failed to close gpio", "error", err)
		}
		r.gpio = nil
	}
	if r.bus != nil {
		if err := r.bus.Close(); err != nil {
			r.logger.Warn("failed to close i2c bus", "error", err)
		}
		r.bus = nil
	}
	clear(r.chips)
}

// backendFor returns the backend owning id. Caller holds mu.
func (r *Router) backendFor(id int64) (PinBackend, Mapping, error) {
	m, ok := r.layout.Get(id)
	if !ok {
		return nil, Mapping{}, configErrorf("locker %d has no pin mapping", id)
	}
	if r.sim != nil {
		return r.sim, m, nil
	}
	b, ok := r.backends[m.Kind]
	if !ok {
		return nil, m, configErrorf("no %s backend for locker %d", m.Kind, id)
	}
	return b, m, nil
}

// Actuate pulses the locker's relay.
func (r *Router) Actuate(ctx context.Context, id int64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, m, err := r.backendFor(id)
	if err != nil {
		return err
	}
	r.logger.Info("actuating locker", "locker", id, "backend", b.Kind())
	return b.Actuate(ctx, m)
}

// ReadSensor reports whether the locker's door is closed.
func (r *Router) ReadSensor(ctx context.Context, id int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, m, err := r.backendFor(id)
	if err != nil {
		return false, err
	}
	return b.ReadSensor(ctx, m)
}

// ReadAll reports every locker's door state, one batched read per backend.
func (r *Router) ReadAll(ctx context.Context) (map[int64]bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.sim != nil {
		return r.sim.ReadAll(ctx, r.layout.Mappings())
	}

	groups := make(map[Kind][]Mapping)
	for _, m := range r.layout.Mappings() {
		groups[m.Kind] = append(groups[m.Kind], m)
	}
	out := make(map[int64]bool, r.layout.Size())
	for kind, ms := range groups {
		b, ok := r.backends[kind]
		if !ok {
			return nil, configErrorf("no %s backend", kind)
		}
		states, err := b.ReadAll(ctx, ms)
		if err != nil {
			return nil, err
		}
		maps.Copy(out, states)
	}
	return out, nil
}

// Apply rebuilds the backends for layout and swaps both in under the write
// lock. On error the previous mapping stays active.
func (r *Router) Apply(layout *Layout) error {
	if layout == nil {
		return configErrorf("no layout")
	}
	if layout.Size() != r.Layout().Size() {
		return configErrorf("fleet size is fixed at %d", r.Layout().Size())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sim != nil {
		r.layout = layout
		r.logger.Info("layout applied", "simulated", true)
		return nil
	}

	backends, err := r.buildBackends(layout)
	if err != nil {
		return fmt.Errorf("apply layout: %w", err)
	}
	r.layout = layout
	r.backends = backends
	r.logger.Info("layout applied", "kinds", layout.Kinds())
	return nil
}

// Layout returns the active layout.
func (r *Router) Layout() *Layout {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.layout
}

// ForceClose closes a simulated door.
func (r *Router) ForceClose(id int64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.sim == nil {
		return ErrNotSimulated
	}
	if _, ok := r.layout.Get(id); !ok {
		return configErrorf("locker %d has no pin mapping", id)
	}
	r.sim.ForceClose(id)
	return nil
}

// RestoreSimulated loads door states into the simulator, typically the
// persisted ones at startup so a restart does not shut every open door.
func (r *Router) RestoreSimulated(closed map[int64]bool) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.sim == nil {
		return ErrNotSimulated
	}
	for id, c := range closed {
		if _, ok := r.layout.Get(id); ok {
			r.sim.SetClosed(id, c)
		}
	}
	return nil
}

// Simulated reports whether the fleet runs on the simulator.
func (r *Router) Simulated() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sim != nil
}

// FallbackReason is the hardware error that forced the simulator, or "".
func (r *Router) FallbackReason() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.fallback == nil {
		return ""
	}
	return r.fallback.Error()
}

// Close waits for in-flight operations and releases the drivers.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeDrivers()
	r.backends = nil
	return nil
}

package hardware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Bus is an addressed serial bus. periph's i2c.BusCloser satisfies it.
type Bus interface {
	Tx(addr uint16, w, r []byte) error
	Close() error
}

// OpenI2C initialises the host drivers and opens the named I2C bus. An empty
// name opens the first bus found.
func OpenI2C(name string) (Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	return b, nil
}

// MCP23017 register addresses (IOCON.BANK = 0).
const (
	regIODIRA = 0x00
	regIODIRB = 0x01
	regGPPUA  = 0x0C
	regGPPUB  = 0x0D
	regGPIOA  = 0x12
	regGPIOB  = 0x13
	regOLATA  = 0x14
	regOLATB  = 0x15
)

// mcp23017 is one chip on the bus. mu serialises every register access so a
// read-modify-write cannot interleave with another caller.
type mcp23017 struct {
	mu   sync.Mutex
	bus  Bus
	addr uint16
}

func (c *mcp23017) readReg(reg byte) (byte, error) {
	r := make([]byte, 1)
	if err := c.bus.Tx(c.addr, []byte{reg}, r); err != nil {
		return 0, fmt.Errorf("read register 0x%02x at 0x%02x: %w", reg, c.addr, err)
	}
	return r[0], nil
}

func (c *mcp23017) writeReg(reg, v byte) error {
	if err := c.bus.Tx(c.addr, []byte{reg, v}, nil); err != nil {
		return fmt.Errorf("write register 0x%02x at 0x%02x: %w", reg, c.addr, err)
	}
	return nil
}

func (c *mcp23017) writeRegs(pairs ...[2]byte) error {
	for _, p := range pairs {
		if err := c.writeReg(p[0], p[1]); err != nil {
			return err
		}
	}
	return nil
}

// initOutputs makes all 16 lines outputs at rest.
func (c *mcp23017) initOutputs() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeRegs(
		[2]byte{regOLATA, 0x00}, [2]byte{regOLATB, 0x00},
		[2]byte{regIODIRA, 0x00}, [2]byte{regIODIRB, 0x00},
	)
}

// initInputs makes all 16 lines inputs with the internal pull-ups enabled.
func (c *mcp23017) initInputs() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeRegs(
		[2]byte{regIODIRA, 0xFF}, [2]byte{regIODIRB, 0xFF},
		[2]byte{regGPPUA, 0xFF}, [2]byte{regGPPUB, 0xFF},
	)
}

// setBitLocked reads the output latch holding index, changes only that bit
// and writes the byte back. Caller holds mu.
func (c *mcp23017) setBitLocked(index int, high bool) error {
	reg, bit := byte(regOLATA), uint(index)
	if index >= 8 {
		reg, bit = regOLATB, uint(index-8)
	}
	cur, err := c.readReg(reg)
	if err != nil {
		return err
	}
	next := cur &^ (1 << bit)
	if high {
		next = cur | (1 << bit)
	}
	return c.writeReg(reg, next)
}

// readPortLocked reads GPIOA and GPIOB once each. Bit n of the result is line n.
// Caller holds mu.
func (c *mcp23017) readPortLocked() (uint16, error) {
	a, err := c.readReg(regGPIOA)
	if err != nil {
		return 0, err
	}
	b, err := c.readReg(regGPIOB)
	if err != nil {
		return 0, err
	}
	return uint16(b)<<8 | uint16(a), nil
}

// PortExpanderBackend drives up to 16 lockers through a pair of MCP23017
// chips: one with every line an output for the relays, one with every line a
// pulled-up input for the door sensors (LOW means closed).
type PortExpanderBackend struct {
	relay  *mcp23017
	sensor *mcp23017
	dwell  time.Duration
}

func newPortExpanderBackend(relay, sensor *mcp23017, dwell time.Duration) *PortExpanderBackend {
	return &PortExpanderBackend{relay: relay, sensor: sensor, dwell: dwell}
}

func (b *PortExpanderBackend) Kind() Kind { return KindExpander }

// Actuate holds the relay chip's lock for the whole pulse so a concurrent
// actuation of a neighbouring line observes the latch at rest.
func (b *PortExpanderBackend) Actuate(ctx context.Context, m Mapping) (err error) {
	b.relay.mu.Lock()
	defer b.relay.mu.Unlock()

	if err := b.relay.setBitLocked(m.ActuatorPin, true); err != nil {
		return &HardwareError{Locker: m.Locker, Op: "actuate", Err: err}
	}
	defer func() {
		if relErr := b.relay.setBitLocked(m.ActuatorPin, false); relErr != nil {
			err = errors.Join(err, &HardwareError{Locker: m.Locker, Op: "release", Err: relErr})
		}
	}()

	hold(ctx, b.dwell)
	return nil
}

func (b *PortExpanderBackend) ReadSensor(_ context.Context, m Mapping) (bool, error) {
	if m.SensorPin == nil {
		return true, nil
	}
	b.sensor.mu.Lock()
	defer b.sensor.mu.Unlock()

	port, err := b.sensor.readPortLocked()
	if err != nil {
		return false, &HardwareError{Locker: m.Locker, Op: "read sensor", Err: err}
	}
	return port&(1<<uint(*m.SensorPin)) == 0, nil
}

// ReadAll samples both sensor registers once and unpacks every locker from
// that single snapshot.
func (b *PortExpanderBackend) ReadAll(_ context.Context, ms []Mapping) (map[int64]bool, error) {
	b.sensor.mu.Lock()
	port, err := b.sensor.readPortLocked()
	b.sensor.mu.Unlock()
	if err != nil {
		return nil, &HardwareError{Op: "read sensors", Err: err}
	}

	out := make(map[int64]bool, len(ms))
	for _, m := range ms {
		if m.SensorPin == nil {
			out[m.Locker] = true
			continue
		}
		out[m.Locker] = port&(1<<uint(*m.SensorPin)) == 0
	}
	return out, nil
}

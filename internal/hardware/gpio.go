package hardware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
)

// GPIO is the per-pin digital I/O surface the direct backend needs.
// Pins are BCM numbers.
type GPIO interface {
	ConfigureOutput(pin int) error
	ConfigureInputPullUp(pin int) error
	Write(pin int, high bool) error
	Read(pin int) (bool, error)
	Close() error
}

// rpioGPIO drives the SoC GPIO block through /dev/gpiomem.
type rpioGPIO struct{}

// OpenRPIO maps the Raspberry Pi GPIO registers.
func OpenRPIO() (GPIO, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}
	return rpioGPIO{}, nil
}

func (rpioGPIO) ConfigureOutput(pin int) error {
	p := rpio.Pin(pin)
	p.Output()
	p.Low()
	return nil
}

func (rpioGPIO) ConfigureInputPullUp(pin int) error {
	p := rpio.Pin(pin)
	p.Input()
	p.PullUp()
	return nil
}

func (rpioGPIO) Write(pin int, high bool) error {
	if high {
		rpio.Pin(pin).High()
	} else {
		rpio.Pin(pin).Low()
	}
	return nil
}

func (rpioGPIO) Read(pin int) (bool, error) {
	return rpio.Pin(pin).Read() == rpio.High, nil
}

func (rpioGPIO) Close() error {
	return rpio.Close()
}

// DirectGPIOBackend gives every locker a dedicated output line and, optionally,
// a dedicated input line. Sensor inputs are pulled up; LOW means closed.
type DirectGPIOBackend struct {
	mu    sync.Mutex
	gpio  GPIO
	dwell time.Duration
}

// NewDirectGPIOBackend configures the lines of every direct mapping: actuators
// as outputs at rest (low), sensors as pulled-up inputs.
func NewDirectGPIOBackend(gpio GPIO, mappings []Mapping, dwell time.Duration) (*DirectGPIOBackend, error) {
	for _, m := range mappings {
		if m.Kind != KindDirect {
			continue
		}
		if err := gpio.ConfigureOutput(m.ActuatorPin); err != nil {
			return nil, &HardwareError{Locker: m.Locker, Op: "configure actuator", Err: err}
		}
		if m.SensorPin != nil {
			if err := gpio.ConfigureInputPullUp(*m.SensorPin); err != nil {
				return nil, &HardwareError{Locker: m.Locker, Op: "configure sensor", Err: err}
			}
		}
	}
	return &DirectGPIOBackend{gpio: gpio, dwell: dwell}, nil
}

func (b *DirectGPIOBackend) Kind() Kind { return KindDirect }

func (b *DirectGPIOBackend) Actuate(ctx context.Context, m Mapping) (err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.gpio.Write(m.ActuatorPin, true); err != nil {
		// The line may be half-driven; try to put it back at rest.
		_ = b.gpio.Write(m.ActuatorPin, false)
		return &HardwareError{Locker: m.Locker, Op: "actuate", Err: err}
	}
	defer func() {
		if relErr := b.gpio.Write(m.ActuatorPin, false); relErr != nil {
			err = errors.Join(err, &HardwareError{Locker: m.Locker, Op: "release", Err: relErr})
		}
	}()

	hold(ctx, b.dwell)
	return nil
}

func (b *DirectGPIOBackend) ReadSensor(_ context.Context, m Mapping) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readLocked(m)
}

func (b *DirectGPIOBackend) ReadAll(_ context.Context, ms []Mapping) (map[int64]bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[int64]bool, len(ms))
	for _, m := range ms {
		closed, err := b.readLocked(m)
		if err != nil {
			return nil, err
		}
		out[m.Locker] = closed
	}
	return out, nil
}

func (b *DirectGPIOBackend) readLocked(m Mapping) (bool, error) {
	if m.SensorPin == nil {
		return true, nil
	}
	high, err := b.gpio.Read(*m.SensorPin)
	if err != nil {
		return false, &HardwareError{Locker: m.Locker, Op: "read sensor", Err: err}
	}
	return !high, nil
}

package hardware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectGPIO_ConfiguresLines(t *testing.T) {
	gpio := newFakeGPIO()
	_, err := NewDirectGPIOBackend(gpio, []Mapping{
		{Locker: 1, Kind: KindDirect, ActuatorPin: 4, SensorPin: intPtr(27)},
		{Locker: 2, Kind: KindDirect, ActuatorPin: 5},
		{Locker: 3, Kind: KindExpander, ActuatorPin: 0, SensorPin: intPtr(0)},
	}, 0)
	require.NoError(t, err)

	assert.True(t, gpio.outputs[4])
	assert.True(t, gpio.outputs[5])
	assert.True(t, gpio.pullups[27])
	assert.False(t, gpio.outputs[0], "expander mappings are not touched")
	assert.Len(t, gpio.pullups, 1)
}

func TestDirectGPIO_ActuatePulses(t *testing.T) {
	gpio := newFakeGPIO()
	m := Mapping{Locker: 1, Kind: KindDirect, ActuatorPin: 4}
	b, err := NewDirectGPIOBackend(gpio, []Mapping{m}, 5*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, b.Actuate(context.Background(), m))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)

	assert.Equal(t, []pinWrite{{4, true}, {4, false}}, gpio.history())
}

func TestDirectGPIO_ActuateWriteFailure(t *testing.T) {
	gpio := newFakeGPIO()
	m := Mapping{Locker: 7, Kind: KindDirect, ActuatorPin: 4}
	b, err := NewDirectGPIOBackend(gpio, []Mapping{m}, 0)
	require.NoError(t, err)

	gpio.writeErr = errors.New("permission denied")
	err = b.Actuate(context.Background(), m)
	require.Error(t, err)
	var hwErr *HardwareError
	require.True(t, errors.As(err, &hwErr))
	assert.Equal(t, int64(7), hwErr.Locker)
	assert.Equal(t, "actuate", hwErr.Op)
}

func TestDirectGPIO_SensorPolarity(t *testing.T) {
	gpio := newFakeGPIO()
	withSensor := Mapping{Locker: 1, Kind: KindDirect, ActuatorPin: 4, SensorPin: intPtr(27)}
	noSensor := Mapping{Locker: 2, Kind: KindDirect, ActuatorPin: 5}
	b, err := NewDirectGPIOBackend(gpio, []Mapping{withSensor, noSensor}, 0)
	require.NoError(t, err)
	ctx := context.Background()

	gpio.set(27, false)
	closed, err := b.ReadSensor(ctx, withSensor)
	require.NoError(t, err)
	assert.True(t, closed, "LOW means closed")

	gpio.set(27, true)
	closed, err = b.ReadSensor(ctx, withSensor)
	require.NoError(t, err)
	assert.False(t, closed, "pulled-up HIGH means open")

	states, err := b.ReadAll(ctx, []Mapping{withSensor, noSensor})
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{1: false, 2: true}, states)

	gpio.readErr = errors.New("io")
	closed, err = b.ReadSensor(ctx, noSensor)
	require.NoError(t, err, "a locker without a sensor never touches the bus")
	assert.True(t, closed)

	_, err = b.ReadAll(ctx, []Mapping{withSensor})
	assert.ErrorIs(t, err, ErrHardware)
}

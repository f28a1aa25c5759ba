package hardware

import (
	"context"
	"time"
)

// PinBackend drives relays and reads door sensors for the lockers it owns.
//
// Actuate asserts the actuator line, holds it for the dwell interval and
// deasserts it. The line is always returned to rest, even when ctx ends the
// hold early. ReadSensor and ReadAll report true when a door is closed;
// lockers without a sensor line report closed.
type PinBackend interface {
	Kind() Kind
	Actuate(ctx context.Context, m Mapping) error
	ReadSensor(ctx context.Context, m Mapping) (bool, error)
	ReadAll(ctx context.Context, ms []Mapping) (map[int64]bool, error)
}

// hold blocks for d or until ctx is done.
func hold(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

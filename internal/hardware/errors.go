package hardware

import (
	"errors"
	"fmt"
)

var (
	// ErrHardware is matched by every HardwareError.
	ErrHardware = errors.New("hardware error")
	// ErrConfiguration is matched by every ConfigurationError.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotSimulated is returned by simulator-only operations while real hardware is active.
	ErrNotSimulated = errors.New("hardware is not simulated")
)

// HardwareError reports a bus or pin failure while operating a locker.
// State must not be advanced when one is returned; the operation is safe to retry.
type HardwareError struct {
	Locker int64
	Op     string
	Err    error
}

func (e *HardwareError) Error() string {
	if e.Locker == 0 {
		return fmt.Sprintf("hardware %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("hardware %s failed for locker %d: %v", e.Op, e.Locker, e.Err)
}

func (e *HardwareError) Unwrap() []error {
	return []error{ErrHardware, e.Err}
}

// ConfigurationError reports an invalid or colliding pin mapping.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid hardware configuration: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

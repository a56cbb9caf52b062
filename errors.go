package godaq

import (
	"errors"
	"fmt"
)

// ErrStopped reports that a device's acquisition session has already ended.
// It is wrapped inside the AcquisitionError returned by Read after Stop.
var ErrStopped = errors.New("acquisition session is stopped")

// ConfigurationError reports that a device could not be constructed: invalid
// channel identifiers, or a backend that was absent or uninitialized. It is
// never retried internally; the caller sees it immediately.
type ConfigurationError struct {
	Device string // adapter kind, e.g. "task" or "armband"
	Op     string // the operation that failed
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s device: %s: %v", e.Device, e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// AcquisitionError reports a failure of a running session: backend lost,
// ring-buffer overrun, or use of a device after Stop. Backend-native errors
// are wrapped, never swallowed, so the failing backend can be diagnosed.
type AcquisitionError struct {
	Device string
	Op     string
	Err    error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("%s device: %s: %v", e.Device, e.Op, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsAcquisition reports whether err is (or wraps) an AcquisitionError.
func IsAcquisition(err error) bool {
	var ae *AcquisitionError
	return errors.As(err, &ae)
}

func configErr(device, op string, err error) *ConfigurationError {
	return &ConfigurationError{Device: device, Op: op, Err: err}
}

func acqErr(device, op string, err error) *AcquisitionError {
	return &AcquisitionError{Device: device, Op: op, Err: err}
}

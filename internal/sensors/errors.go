// Package sensors holds what the individual sensor drivers share.
package sensors

import "fmt"

// IOError reports a failed bus transaction with a device. The transport error
// is kept as is so callers can still match it with errors.Is.
type IOError struct {
	Device string
	Op     string
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Device, e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// WrapIO returns nil when err is nil, otherwise an *IOError.
func WrapIO(device, op string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Device: device, Op: op, Err: err}
}

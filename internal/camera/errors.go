package camera

import (
	"context"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	// KindPermissionDenied means the user or platform refused camera access.
	// Recoverable by changing platform settings; the session moves to denied.
	KindPermissionDenied ErrorKind = "permission_denied"
	// KindDeviceUnavailable means no camera exists or the hardware is busy.
	// Recoverable by retry; the session stays idle.
	KindDeviceUnavailable ErrorKind = "device_unavailable"
	KindUnknown           ErrorKind = "unknown"
)

// Error is a camera acquisition failure classified for the caller.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("camera %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("camera %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// classify wraps an acquisition error, preserving an existing *Error.
// A timed-out or cancelled acquisition counts as the device being
// unavailable; the user retries.
func classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindDeviceUnavailable, Err: err}
	}
	return &Error{Kind: KindUnknown, Err: err}
}

var (
	// ErrEmptyLabel is returned by Start when no area label was supplied.
	// Hardware is never acquired without a destination for its output.
	ErrEmptyLabel = fmt.Errorf("camera: area label must not be empty")
	// ErrCaptureLimit is returned once a set already holds the maximum
	// number of photos. Expected, not a fault.
	ErrCaptureLimit = fmt.Errorf("camera: photo limit reached for this set")
)

package server

import (
	"errors"
	"fmt"
)

// ErrAlreadyStarted is returned by Start on a running controller.
var ErrAlreadyStarted = errors.New("layout server already started")

// BindError reports that the layout port could not be bound.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string { return fmt.Sprintf("bind %s: %v", e.Addr, e.Err) }

func (e *BindError) Unwrap() error { return e.Err }

// AdvertiseError reports a failed discovery registration. The listener has
// already been shut down when it is returned.
type AdvertiseError struct {
	Name string
	Port int
	Err  error
}

func (e *AdvertiseError) Error() string {
	return fmt.Sprintf("advertise %q on port %d: %v", e.Name, e.Port, e.Err)
}

func (e *AdvertiseError) Unwrap() error { return e.Err }

// ShutdownError is a fault hit while stopping. It is logged, never returned
// from Stop.
type ShutdownError struct {
	Op  string
	Err error
}

func (e *ShutdownError) Error() string { return fmt.Sprintf("shutdown: %s: %v", e.Op, e.Err) }

func (e *ShutdownError) Unwrap() error { return e.Err }

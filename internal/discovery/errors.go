package discovery

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by Run while another run is in progress
var ErrAlreadyRunning = errors.New("discovery already running")

// ErrCancelled is the completion error of a cancelled run
var ErrCancelled = errors.New("discovery cancelled")

// AddressResolutionError means no usable scan address was found
type AddressResolutionError struct {
	Address string // Requested address, empty when auto-detecting
	Reason  string
}

// Error implements the error interface
func (e *AddressResolutionError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("cannot scan from address %q: %s", e.Address, e.Reason)
	}
	return fmt.Sprintf("no usable local address: %s", e.Reason)
}

// PanicError wraps a value recovered from a panicking pipeline goroutine
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface
func (e *PanicError) Error() string {
	return fmt.Sprintf("discovery panicked: %v", e.Value)
}

// Unwrap returns the panic value when it is an error
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

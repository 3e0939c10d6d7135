package jit

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupported is returned by Load and Compile where native execution
	// is not available (anything but linux/amd64 with cgo)
	ErrUnsupported = errors.New("jit: native execution not supported on this platform")

	// ErrClosed is returned when running a program after Close
	ErrClosed = errors.New("jit: program closed")

	// ErrSealed is returned when writing to executable memory after Seal
	ErrSealed = errors.New("jit: memory region already sealed")
)

// InitError reports a failed memory operation while making code executable.
// Err is the underlying system error.
type InitError struct {
	Op   string // "mmap", "mprotect", ...
	Size int
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("jit: %s of %d bytes failed: %v", e.Op, e.Size, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// IsInitError checks if an error is an executable memory initialization error
func IsInitError(err error) bool {
	var ie *InitError
	return errors.As(err, &ie)
}

//go:build linux

package jit

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// System calls used for the region lifecycle. Tests replace them to
// exercise failure paths.
var (
	mmap     = unix.Mmap
	mprotect = unix.Mprotect
	munmap   = unix.Munmap
)

// PageAlign rounds size up to the next whole multiple of the page size.
// A zero or negative size still takes one page.
func PageAlign(size int) int {
	pageSize := unix.Getpagesize()
	if size <= 0 {
		return pageSize
	}
	return (size + pageSize - 1) / pageSize * pageSize
}

// ExecutableMemory is an anonymous mapping in its writable phase. Code is
// copied in with Write; Seal switches the mapping to read+execute and hands
// out the only handle that can run it. The mapping is never writable and
// executable at the same time.
type ExecutableMemory struct {
	buffer []byte
	used   int
	sealed bool
	mu     sync.Mutex
}

// NewExecutableMemory maps size bytes, rounded up to whole pages, with
// read+write permission and no backing file.
func NewExecutableMemory(size int) (*ExecutableMemory, error) {
	size = PageAlign(size)

	buffer, err := mmap(
		-1, 0,
		size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS,
	)
	if err != nil {
		return nil, &InitError{Op: "mmap", Size: size, Err: err}
	}

	return &ExecutableMemory{
		buffer: buffer,
	}, nil
}

// Write appends code to the region
func (em *ExecutableMemory) Write(code []byte) error {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.sealed || em.buffer == nil {
		return ErrSealed
	}
	if em.used+len(code) > len(em.buffer) {
		return fmt.Errorf("out of executable memory: need %d, have %d", len(code), len(em.buffer)-em.used)
	}

	copy(em.buffer[em.used:], code)
	em.used += len(code)
	return nil
}

// Seal makes the region read+execute and returns the executable handle.
// The writable handle is unusable afterwards, whether or not Seal succeeds.
// If the permission change is rejected the mapping is released so that no
// partially initialized region stays reachable.
func (em *ExecutableMemory) Seal() (*ExecutableRegion, error) {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.sealed || em.buffer == nil {
		return nil, ErrSealed
	}
	em.sealed = true

	buffer := em.buffer
	em.buffer = nil

	if err := mprotect(buffer, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		munmap(buffer)
		return nil, &InitError{Op: "mprotect", Size: len(buffer), Err: err}
	}

	return &ExecutableRegion{
		buffer:   buffer,
		codeSize: em.used,
	}, nil
}

// Free releases a region that was never sealed
func (em *ExecutableMemory) Free() error {
	em.mu.Lock()
	defer em.mu.Unlock()

	if em.buffer == nil {
		return nil
	}

	err := munmap(em.buffer)
	em.buffer = nil
	em.used = 0
	return err
}

// Used returns the amount of memory currently in use
func (em *ExecutableMemory) Used() int {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.used
}

// Capacity returns the total capacity
func (em *ExecutableMemory) Capacity() int {
	em.mu.Lock()
	defer em.mu.Unlock()
	return len(em.buffer)
}

// ExecutableRegion is a sealed, read+execute mapping. It is never written again.
type ExecutableRegion struct {
	buffer   []byte
	codeSize int
}

// Entry returns the address of the first code byte
func (r *ExecutableRegion) Entry() uintptr {
	if len(r.buffer) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&r.buffer[0]))
}

// Size returns the mapped size in bytes (whole pages)
func (r *ExecutableRegion) Size() int {
	return len(r.buffer)
}

// CodeSize returns the number of code bytes copied in before sealing
func (r *ExecutableRegion) CodeSize() int {
	return r.codeSize
}

// Code returns a copy of the code bytes
func (r *ExecutableRegion) Code() []byte {
	if r.buffer == nil {
		return nil
	}
	result := make([]byte, r.codeSize)
	copy(result, r.buffer[:r.codeSize])
	return result
}

// Free unmaps the region
func (r *ExecutableRegion) Free() error {
	if r.buffer == nil {
		return nil
	}
	err := munmap(r.buffer)
	r.buffer = nil
	return err
}

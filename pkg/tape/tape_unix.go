//go:build unix

package tape

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// New maps a tape of the given number of cells. The cells start right after
// the leading guard page, and the trailing guard page follows the last whole
// page of cells.
func New(cells int) (*Tape, error) {
	if err := checkSize(cells); err != nil {
		return nil, err
	}

	pageSize := unix.Getpagesize()
	dataSize := (cells + pageSize - 1) / pageSize * pageSize
	total := pageSize + dataSize + pageSize

	region, err := unix.Mmap(
		-1, 0,
		total,
		unix.PROT_NONE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS,
	)
	if err != nil {
		return nil, fmt.Errorf("tape: mmap of %d bytes: %w", total, err)
	}

	data := region[pageSize : pageSize+dataSize]
	if err := unix.Mprotect(data, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		unix.Munmap(region)
		return nil, fmt.Errorf("tape: mprotect of %d bytes: %w", dataSize, err)
	}

	return &Tape{
		cells:  data[:cells:cells],
		region: region,
	}, nil
}

// Free unmaps the tape, guards included
func (t *Tape) Free() error {
	if t.region == nil {
		return ErrFreed
	}
	err := unix.Munmap(t.region)
	t.region = nil
	t.cells = nil
	return err
}

// Guarded reports whether overruns fault
func (t *Tape) Guarded() bool {
	return t.region != nil
}

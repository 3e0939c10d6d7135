// Package tape allocates the data tape programs run against.
//
// On unix systems the cells are mapped between two inaccessible guard pages,
// so a data pointer that walks off either end of the tape faults instead of
// silently corrupting memory. Elsewhere the tape is an ordinary slice.
package tape

import (
	"errors"
	"fmt"
)

// ErrFreed is returned when using a tape after Free
var ErrFreed = errors.New("tape: already freed")

// Tape is a zero-initialised array of byte cells
type Tape struct {
	cells  []byte
	region []byte // whole mapping including guards, nil when not mapped
}

// Cells returns the cells. The slice is only valid until Free.
func (t *Tape) Cells() []byte {
	return t.cells
}

// Len returns the number of cells
func (t *Tape) Len() int {
	return len(t.cells)
}

// Reset zeroes every cell
func (t *Tape) Reset() {
	clear(t.cells)
}

func checkSize(cells int) error {
	if cells <= 0 {
		return fmt.Errorf("tape: invalid size %d", cells)
	}
	return nil
}

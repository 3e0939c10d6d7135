//go:build !unix

package tape

// New allocates a tape of the given number of cells
func New(cells int) (*Tape, error) {
	if err := checkSize(cells); err != nil {
		return nil, err
	}
	return &Tape{cells: make([]byte, cells)}, nil
}

// Free releases the tape
func (t *Tape) Free() error {
	if t.cells == nil {
		return ErrFreed
	}
	t.cells = nil
	return nil
}

// Guarded reports whether overruns fault. Always false here.
func (t *Tape) Guarded() bool {
	return false
}

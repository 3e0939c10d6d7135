// Package interp is the reference interpreter for the tape language. It runs
// the same programs as the JIT with the same exit behaviour, and is used
// wherever native execution is unavailable or not wanted.
package interp

import (
	"io"

	"github.com/pkg/errors"

	"bfjit/pkg/bf"
)

// noJump marks a ']' without a matching '['; it is executed as a no-op
const noJump = -1

// Program is a source text with its loop jump table resolved
type Program struct {
	code []byte // instructions only
	jump []int  // jump[i] is the matching bracket of code[i] for '[' and ']'
}

// Compile strips comments and resolves every loop. Unmatched '[' is an error
// with the same offset the code generator reports. In strict mode the source
// is validated first.
func Compile(source string, strict bool) (*Program, error) {
	if strict {
		if err := bf.Validate(source); err != nil {
			return nil, err
		}
	}

	p := &Program{
		code: make([]byte, 0, len(source)),
	}
	var open []int    // indexes into code
	var offsets []int // source offsets of the open brackets
	for i := 0; i < len(source); i++ {
		c := source[i]
		if !bf.IsInstruction(c) {
			continue
		}
		pc := len(p.code)
		p.code = append(p.code, c)
		p.jump = append(p.jump, noJump)

		switch c {
		case bf.LoopStart:
			open = append(open, pc)
			offsets = append(offsets, i)
		case bf.LoopEnd:
			if len(open) == 0 {
				continue
			}
			start := open[len(open)-1]
			open = open[:len(open)-1]
			offsets = offsets[:len(offsets)-1]
			p.jump[start] = pc
			p.jump[pc] = start
		}
	}
	if len(open) > 0 {
		return nil, bf.NewUnmatchedLoopError(source, offsets[0])
	}
	return p, nil
}

// Len returns the number of instructions
func (p *Program) Len() int {
	return len(p.code)
}

// Run executes the program against tape starting at cell 0. Exit reporting
// follows the JIT: end of input and I/O failures stop the program and are
// described in the Exit, not returned as errors. Touching a cell outside
// the tape returns an error wrapping bf.ErrTapeOverrun.
func (p *Program) Run(tape []byte, w io.ByteWriter, r io.ByteReader) (bf.Exit, error) {
	if len(tape) == 0 {
		return bf.Exit{}, errors.New("interp: empty tape")
	}
	if w == nil || r == nil {
		return bf.Exit{}, errors.New("interp: nil reader or writer")
	}

	ptr := 0
	for pc := 0; pc < len(p.code); pc++ {
		op := p.code[pc]
		if op != bf.Left && op != bf.Right && op != bf.LoopEnd && (ptr < 0 || ptr >= len(tape)) {
			return bf.Exit{}, errors.Wrapf(bf.ErrTapeOverrun, "cell %d of %d at instruction %d", ptr, len(tape), pc)
		}

		switch op {
		case bf.Left:
			ptr--
		case bf.Right:
			ptr++
		case bf.Dec:
			tape[ptr]--
		case bf.Inc:
			tape[ptr]++
		case bf.Read:
			b, err := r.ReadByte()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return bf.Exit{Reason: bf.ExitEndOfInput}, nil
				}
				return bf.Exit{Reason: bf.ExitReadFailed, Err: err}, nil
			}
			tape[ptr] = b
		case bf.Write:
			if err := w.WriteByte(tape[ptr]); err != nil {
				return bf.Exit{Reason: bf.ExitWriteFailed, Err: err}, nil
			}
		case bf.LoopStart:
			if tape[ptr] == 0 {
				pc = p.jump[pc]
			}
		case bf.LoopEnd:
			if p.jump[pc] != noJump {
				pc = p.jump[pc] - 1
			}
		}
	}
	return bf.Exit{Reason: bf.ExitCompleted}, nil
}

// Close is a no-op; interpreted programs hold no native resources
func (p *Program) Close() error {
	return nil
}

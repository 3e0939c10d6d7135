// Package bf defines the eight-instruction tape language shared by the JIT
// and the interpreter.
package bf

import "fmt"

// Instruction set
const (
	Left      = '<' // move the data pointer left
	Right     = '>' // move the data pointer right
	Dec       = '-' // decrement the current cell
	Inc       = '+' // increment the current cell
	Read      = ',' // read one byte into the current cell
	Write     = '.' // write the current cell
	LoopStart = '['
	LoopEnd   = ']'
)

// DefaultTapeSize is the classic tape length of 30000 cells
const DefaultTapeSize = 30000

// IsInstruction reports whether c is one of the eight instructions.
// Every other byte is a no-op.
func IsInstruction(c byte) bool {
	switch c {
	case Left, Right, Dec, Inc, Read, Write, LoopStart, LoopEnd:
		return true
	}
	return false
}

// FindLoopEnd returns the index of the ']' matching the '[' at start.
// The scan tracks nesting depth and stops at the end of source.
func FindLoopEnd(source string, start int) (int, bool) {
	level := 1
	for i := start + 1; i < len(source); i++ {
		switch source[i] {
		case LoopStart:
			level++
		case LoopEnd:
			level--
			if level == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// Validate applies the strict rules: only instructions and ASCII whitespace
// are allowed and every bracket must be paired.
func Validate(source string) error {
	var open []int
	for i := 0; i < len(source); i++ {
		c := source[i]
		switch {
		case c == LoopStart:
			open = append(open, i)
		case c == LoopEnd:
			if len(open) == 0 {
				return &SyntaxError{Offset: i, Remaining: source[i:], Reason: "unmatched loop end"}
			}
			open = open[:len(open)-1]
		case IsInstruction(c), isSpace(c):
		default:
			return &SyntaxError{Offset: i, Remaining: source[i:], Reason: fmt.Sprintf("invalid character %q", c)}
		}
	}
	if len(open) > 0 {
		return NewUnmatchedLoopError(source, open[0])
	}
	return nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

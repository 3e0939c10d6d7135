package bf

import (
	"errors"
	"fmt"
)

// ErrTapeOverrun is returned by the interpreter when the data pointer leaves the tape
var ErrTapeOverrun = errors.New("data pointer outside tape")

// maxQuoted bounds how much of the remaining source an error message repeats
const maxQuoted = 64

// SyntaxError is a structural error found before any code is made executable
type SyntaxError struct {
	Offset    int    // byte offset of the offending instruction
	Remaining string // source text starting at Offset
	Reason    string
}

// NewUnmatchedLoopError reports a '[' at offset with no matching ']'
func NewUnmatchedLoopError(source string, offset int) *SyntaxError {
	return &SyntaxError{
		Offset:    offset,
		Remaining: source[offset:],
		Reason:    "unable to find loop end",
	}
}

func (e *SyntaxError) Error() string {
	block := e.Remaining
	if len(block) > maxQuoted {
		block = block[:maxQuoted] + "..."
	}
	return fmt.Sprintf("%s at offset %d in block starting with: %q", e.Reason, e.Offset, block)
}

// IsSyntaxError checks if an error is a syntax error
func IsSyntaxError(err error) bool {
	var se *SyntaxError
	return errors.As(err, &se)
}

// IsUnmatchedLoop reports whether err is a '[' without its ']'.
// The REPL uses it to keep reading continuation lines.
func IsUnmatchedLoop(err error) bool {
	var se *SyntaxError
	if !errors.As(err, &se) {
		return false
	}
	return len(se.Remaining) > 0 && se.Remaining[0] == LoopStart
}

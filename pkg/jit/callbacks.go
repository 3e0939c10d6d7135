//go:build linux && amd64 && cgo

package jit

/*
#include <stdint.h>
*/
import "C"
import (
	"errors"
	"fmt"
	"io"
	"runtime/cgo"

	"bfjit/pkg/bf"
)

// session is the Go side of one run: the I/O endpoints the generated code
// calls back into, and how the run ended
type session struct {
	w    io.ByteWriter
	r    io.ByteReader
	exit bf.Exit
}

// bfjitWrite is the write callback. It returns writeSuccess when the byte
// was taken; anything else makes the generated code jump to its exit.
//
//export bfjitWrite
func bfjitWrite(ctx C.uintptr_t, c C.uchar) (ret C.int) {
	s := cgo.Handle(ctx).Value().(*session)

	// A panic must not unwind through the generated frames
	defer func() {
		if r := recover(); r != nil {
			s.exit = bf.Exit{Reason: bf.ExitWriteFailed, Err: fmt.Errorf("write callback panic: %v", r)}
			ret = 0
		}
	}()

	if err := s.w.WriteByte(byte(c)); err != nil {
		s.exit = bf.Exit{Reason: bf.ExitWriteFailed, Err: err}
		return 0
	}
	return writeSuccess
}

// bfjitRead is the read callback. It returns the next byte, or -1 at end of
// input or on a reader error.
//
//export bfjitRead
func bfjitRead(ctx C.uintptr_t) (ret C.int) {
	s := cgo.Handle(ctx).Value().(*session)

	defer func() {
		if r := recover(); r != nil {
			s.exit = bf.Exit{Reason: bf.ExitReadFailed, Err: fmt.Errorf("read callback panic: %v", r)}
			ret = -1
		}
	}()

	b, err := s.r.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.exit = bf.Exit{Reason: bf.ExitEndOfInput}
		} else {
			s.exit = bf.Exit{Reason: bf.ExitReadFailed, Err: err}
		}
		return -1
	}
	return C.int(b)
}

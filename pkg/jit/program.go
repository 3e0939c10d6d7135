//go:build linux && amd64 && cgo

package jit

/*
#include "trampoline.h"
*/
import "C"
import (
	"errors"
	"io"
	"runtime"
	"runtime/cgo"
	"sync"
	"unsafe"

	"bfjit/pkg/bf"
)

// Supported reports whether generated code can be executed on this platform
const Supported = true

// Program is generated code sealed in executable memory. It exposes one
// operation: run once against a tape.
//
// Runs are serialised: a single tape and one set of staged registers belong
// to one execution, and Close waits for a running program to return.
type Program struct {
	mu     sync.Mutex
	region *ExecutableRegion
}

// Load copies already generated code into a fresh executable region
func Load(code []byte) (*Program, error) {
	if len(code) == 0 {
		return nil, errors.New("jit: no code to load")
	}

	mem, err := NewExecutableMemory(len(code))
	if err != nil {
		return nil, err
	}
	if err := mem.Write(code); err != nil {
		mem.Free()
		return nil, err
	}

	region, err := mem.Seal()
	if err != nil {
		return nil, err
	}

	return &Program{region: region}, nil
}

// Compile generates code for source and loads it. Structural errors are
// reported before any memory is mapped.
func Compile(source string, opts GenerateOptions) (*Program, error) {
	code, err := Generate(source, opts)
	if err != nil {
		return nil, err
	}
	return Load(code)
}

// Run executes the program against tape, starting at tape[0], writing
// through w and reading through r. The tape is not bounds checked by the
// generated code; use tape.New for guard pages.
//
// The returned error is only non-nil when the program could not be started.
// How the program ended, including end of input and I/O failures, is
// reported in the Exit.
func (p *Program) Run(tape []byte, w io.ByteWriter, r io.ByteReader) (bf.Exit, error) {
	if len(tape) == 0 {
		return bf.Exit{}, errors.New("jit: empty tape")
	}
	if w == nil || r == nil {
		return bf.Exit{}, errors.New("jit: nil reader or writer")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.region == nil {
		return bf.Exit{}, ErrClosed
	}

	s := &session{w: w, r: r}
	h := cgo.NewHandle(s)
	defer h.Delete()

	C.bfjit_invoke(
		C.uintptr_t(p.region.Entry()),
		C.uintptr_t(h),
		C.uintptr_t(h),
		(*C.uchar)(unsafe.Pointer(&tape[0])),
	)
	runtime.KeepAlive(tape)

	return s.exit, nil
}

// Code returns a copy of the generated machine code
func (p *Program) Code() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.region == nil {
		return nil
	}
	return p.region.Code()
}

// Size returns the size of the executable mapping in bytes
func (p *Program) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.region == nil {
		return 0
	}
	return p.region.Size()
}

// Close unmaps the program. Further runs return ErrClosed.
func (p *Program) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.region == nil {
		return nil
	}
	err := p.region.Free()
	p.region = nil
	return err
}

//go:build !linux || !amd64 || !cgo

package jit

import (
	"io"

	"bfjit/pkg/bf"
)

// Supported reports whether generated code can be executed on this platform.
// Code generation itself works everywhere.
const Supported = false

// Program is a stub for platforms without native execution
type Program struct{}

// Load always fails with ErrUnsupported
func Load(code []byte) (*Program, error) {
	return nil, ErrUnsupported
}

// Compile still reports syntax errors, then fails with ErrUnsupported
func Compile(source string, opts GenerateOptions) (*Program, error) {
	if _, err := Generate(source, opts); err != nil {
		return nil, err
	}
	return nil, ErrUnsupported
}

func (p *Program) Run(tape []byte, w io.ByteWriter, r io.ByteReader) (bf.Exit, error) {
	return bf.Exit{}, ErrUnsupported
}

func (p *Program) Code() []byte { return nil }
func (p *Program) Size() int    { return 0 }
func (p *Program) Close() error { return nil }

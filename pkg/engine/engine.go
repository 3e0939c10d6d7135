// Package engine picks how a program is executed and hides the difference
// between native code and the interpreter behind one interface.
package engine

import (
	"errors"
	"io"
	"log"

	"bfjit/pkg/bf"
	"bfjit/pkg/codecache"
	"bfjit/pkg/interp"
	"bfjit/pkg/jit"
)

// Program is a compiled program ready to run against a tape
type Program interface {
	Run(tape []byte, w io.ByteWriter, r io.ByteReader) (bf.Exit, error)
	Close() error
}

// Options controls Compile
type Options struct {
	Mode   ExecutionMode
	Strict bool

	// Cache, if set, is consulted before generating native code and filled
	// after. The interpreter never uses it.
	Cache *codecache.Cache
}

// Compile prepares source for execution in the requested mode. JIT mode
// falls back to the interpreter where native execution is unsupported.
func Compile(source string, opts Options) (Program, error) {
	mode := opts.Mode
	if mode == ModeJIT && !jit.Supported {
		log.Printf("engine: native execution unsupported on this platform, using the interpreter")
		mode = ModeInterpreter
	}

	switch mode {
	case ModeInterpreter:
		p, err := interp.Compile(source, opts.Strict)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ModeJIT:
		return compileNative(source, opts)
	}
	return nil, errors.New("engine: unknown execution mode " + mode.String())
}

func compileNative(source string, opts Options) (Program, error) {
	if opts.Strict {
		if err := bf.Validate(source); err != nil {
			return nil, err
		}
	}

	if opts.Cache != nil {
		code, ok, err := opts.Cache.Get(source)
		if err != nil {
			log.Printf("engine: code cache lookup failed: %v", err)
		} else if ok {
			return load(code)
		}
	}

	code, err := jit.Generate(source, jit.GenerateOptions{Strict: opts.Strict})
	if err != nil {
		return nil, err
	}

	if opts.Cache != nil {
		if err := opts.Cache.Put(source, code); err != nil {
			log.Printf("engine: code cache store failed: %v", err)
		}
	}

	return load(code)
}

func load(code []byte) (Program, error) {
	p, err := jit.Load(code)
	if err != nil {
		return nil, err
	}
	return p, nil
}

package jit

import (
	"fmt"

	"bfjit/pkg/bf"
)

// GenerateOptions controls code generation
type GenerateOptions struct {
	// Strict rejects any byte that is not an instruction or whitespace and
	// any ']' without a '['. By default such bytes are no-ops.
	Strict bool
}

// generator walks the source once and drives an Emitter
type generator struct {
	emit Emitter
	exit int // offset of the shared epilogue, fixed after the prologue
}

// Generate translates source into x86-64 machine code for a function with
// the signature
//
//	void (*)(int (*write)(void*, unsigned char), void* write_ctx,
//	         int (*read)(void*), void* read_ctx, unsigned char* tape)
//
// The layout is:
//
//	prologue
//	jmp   body
//	exit: epilogue
//	body: ...
//	jmp   exit
func Generate(source string, opts GenerateOptions) ([]byte, error) {
	return generateWith(newX86Emitter(estimateSize(source)), source, opts)
}

func generateWith(emit Emitter, source string, opts GenerateOptions) ([]byte, error) {
	if opts.Strict {
		if err := bf.Validate(source); err != nil {
			return nil, err
		}
	}

	g := &generator{emit: emit}

	emit.Prologue()
	skip := emit.ReserveShortJump()
	g.exit = emit.Offset()
	emit.Epilogue()
	if err := emit.PatchJump(skip, emit.Offset()); err != nil {
		return nil, err
	}

	if err := g.generateSequence(source, 0, len(source)); err != nil {
		return nil, err
	}
	emit.Jump(g.exit)

	if n := emit.Pending(); n != 0 {
		return nil, fmt.Errorf("%w: %d jumps left unpatched", ErrPatch, n)
	}
	return emit.Bytes(), nil
}

// generateSequence emits code for source[start:end]
func (g *generator) generateSequence(source string, start, end int) error {
	for i := start; i < end; i++ {
		switch source[i] {
		case bf.Left:
			g.emit.MovePointer(-1)
		case bf.Right:
			g.emit.MovePointer(1)
		case bf.Dec:
			g.emit.AddCell(-1)
		case bf.Inc:
			g.emit.AddCell(1)
		case bf.Read:
			g.emit.ReadCell(g.exit)
		case bf.Write:
			g.emit.WriteCell(g.exit)
		case bf.LoopStart:
			loopEnd, ok := bf.FindLoopEnd(source[:end], i)
			if !ok {
				return bf.NewUnmatchedLoopError(source[:end], i)
			}
			if err := g.generateLoop(source, i, loopEnd); err != nil {
				return err
			}
			i = loopEnd
		}
	}
	return nil
}

// generateLoop converts
//
//	[<code>]
//
// into
//
//	loop_start:
//	  cmp  byte [ptr], 0
//	  je   loop_end
//	  <code>
//	  jmp  loop_start
//	loop_end:
func (g *generator) generateLoop(source string, start, end int) error {
	loopStart := g.emit.Offset()
	g.emit.TestCell()
	skip := g.emit.ReserveJumpIfZero()

	if err := g.generateSequence(source, start+1, end); err != nil {
		return err
	}

	g.emit.Jump(loopStart)
	return g.emit.PatchJump(skip, g.emit.Offset())
}

// estimateSize guesses the code size so the buffer rarely grows:
// fixed overhead plus the longest encoding (the I/O calls) per instruction.
func estimateSize(source string) int {
	n := 0
	for i := 0; i < len(source); i++ {
		if bf.IsInstruction(source[i]) {
			n++
		}
	}
	return 64 + 24*n
}

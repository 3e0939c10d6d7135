package jit

// Emitter encodes the primitive operations of the tape machine for one
// instruction set. The generator in codegen.go only talks to this interface;
// every byte of machine code comes from an implementation.
//
// Offsets are byte positions in the code buffer. Jump targets are offsets,
// and implementations turn them into whatever relative form the hardware
// needs.
type Emitter interface {
	Offset() int
	Bytes() []byte

	// Prologue saves callee state and stages the five entry arguments
	// (write, write context, read, read context, tape) where calls to the
	// I/O callbacks cannot disturb them. Epilogue undoes it and returns.
	Prologue()
	Epilogue()

	MovePointer(delta int32)
	AddCell(delta int8)

	// ReadCell calls the read callback, jumps to exit on a negative result,
	// and otherwise stores the byte in the current cell.
	ReadCell(exit int)
	// WriteCell calls the write callback with the current cell and jumps to
	// exit unless it reports success.
	WriteCell(exit int)

	// TestCell compares the current cell with zero for a following
	// ReserveJumpIfZero.
	TestCell()
	Jump(target int)

	// ReserveShortJump emits a forward jump whose target is not known yet;
	// ReserveJumpIfZero does the same for the loop exit. The returned site
	// is resolved with PatchJump exactly once.
	ReserveShortJump() int
	ReserveJumpIfZero() int
	PatchJump(site, target int) error

	// Pending is the number of reserved jumps not patched yet
	Pending() int
}

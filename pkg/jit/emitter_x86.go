package jit

// Register allocation for generated programs.
//
// All five entry arguments are moved into callee-saved registers so they
// survive the calls into the I/O callbacks (System V AMD64 ABI):
//
//	RDI write function  -> R12
//	RSI write context   -> R13
//	RDX read function   -> R14
//	RCX read context    -> RBP
//	R8  tape pointer    -> RBX
//
// RAX, RDI and RSI are scratch around the callback calls.
const (
	WriteFuncReg = R12
	WriteCtxReg  = R13
	ReadFuncReg  = R14
	ReadCtxReg   = RBP
	TapeReg      = RBX
)

// writeSuccess is the value the write callback returns when the byte was taken
const writeSuccess = 1

// savedRegs are pushed by the prologue in this order and popped in reverse.
// Five pushes on top of the return address leave RSP 16-byte aligned for
// the callback calls.
var savedRegs = [...]Reg{WriteFuncReg, WriteCtxReg, ReadFuncReg, ReadCtxReg, TapeReg}

// x86Emitter encodes tape machine operations as x86-64 machine code
type x86Emitter struct {
	asm *Assembler
}

func newX86Emitter(capacity int) *x86Emitter {
	return &x86Emitter{asm: NewAssembler(capacity)}
}

func (e *x86Emitter) Offset() int   { return e.asm.Offset() }
func (e *x86Emitter) Bytes() []byte { return e.asm.Bytes() }
func (e *x86Emitter) Pending() int  { return e.asm.Pending() }

func (e *x86Emitter) Prologue() {
	for _, r := range savedRegs {
		e.asm.Push(r)
	}
	e.asm.MovRegReg(WriteFuncReg, RDI)
	e.asm.MovRegReg(WriteCtxReg, RSI)
	e.asm.MovRegReg(ReadFuncReg, RDX)
	e.asm.MovRegReg(ReadCtxReg, RCX)
	e.asm.MovRegReg(TapeReg, R8)
}

func (e *x86Emitter) Epilogue() {
	for i := len(savedRegs) - 1; i >= 0; i-- {
		e.asm.Pop(savedRegs[i])
	}
	e.asm.Ret()
}

// MovePointer: add/sub rbx, delta
func (e *x86Emitter) MovePointer(delta int32) {
	if delta < 0 {
		e.asm.SubRegImm32(TapeReg, -delta)
		return
	}
	e.asm.AddRegImm32(TapeReg, delta)
}

// AddCell: add/sub byte [rbx], delta
func (e *x86Emitter) AddCell(delta int8) {
	if delta < 0 {
		e.asm.SubMem8Imm8(TapeReg, 0, byte(-int16(delta)))
		return
	}
	e.asm.AddMem8Imm8(TapeReg, 0, byte(delta))
}

// ReadCell:
//
//	mov  rdi, rbp
//	call r14
//	cmp  eax, 0
//	jl   exit
//	mov  [rbx], al
func (e *x86Emitter) ReadCell(exit int) {
	e.asm.MovRegReg(RDI, ReadCtxReg)
	e.asm.CallReg(ReadFuncReg)
	e.asm.CmpReg32Imm8(RAX, 0)
	e.asm.JccNearTo(CondL, exit)
	e.asm.MovMem8Reg(TapeReg, 0, RAX)
}

// WriteCell:
//
//	mov   rdi, r13
//	movzx rsi, byte [rbx]
//	call  r12
//	cmp   eax, 1
//	jne   exit
func (e *x86Emitter) WriteCell(exit int) {
	e.asm.MovRegReg(RDI, WriteCtxReg)
	e.asm.MovRegMem8(RSI, TapeReg, 0)
	e.asm.CallReg(WriteFuncReg)
	e.asm.CmpReg32Imm8(RAX, writeSuccess)
	e.asm.JccNearTo(CondNE, exit)
}

// TestCell: cmp byte [rbx], 0
func (e *x86Emitter) TestCell() {
	e.asm.CmpMem8Imm8(TapeReg, 0, 0)
}

func (e *x86Emitter) Jump(target int) {
	e.asm.JmpTo(target)
}

func (e *x86Emitter) ReserveShortJump() int {
	return e.asm.ReserveJmpRel8()
}

// ReserveJumpIfZero: je rel32, taken when the preceding TestCell saw zero
func (e *x86Emitter) ReserveJumpIfZero() int {
	return e.asm.ReserveJccNear(CondE)
}

func (e *x86Emitter) PatchJump(site, target int) error {
	return e.asm.Patch(site, target)
}

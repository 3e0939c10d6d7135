package jit

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrPatch is returned when a patch site is unknown or already resolved
var ErrPatch = errors.New("invalid patch site")

// Reg is an x86-64 general purpose register number
type Reg byte

const (
	RAX Reg = 0
	RCX Reg = 1
	RDX Reg = 2
	RBX Reg = 3
	RSP Reg = 4
	RBP Reg = 5
	RSI Reg = 6
	RDI Reg = 7
	R8  Reg = 8
	R9  Reg = 9
	R10 Reg = 10
	R11 Reg = 11
	R12 Reg = 12
	R13 Reg = 13
	R14 Reg = 14
	R15 Reg = 15
)

// Condition codes for near conditional jumps (second opcode byte after 0x0F)
type Cond byte

const (
	CondE  Cond = 0x84 // equal / zero
	CondNE Cond = 0x85 // not equal / not zero
	CondL  Cond = 0x8C // less (signed)
	CondGE Cond = 0x8D // greater or equal (signed)
)

type patchKind byte

const (
	patchRel8 patchKind = iota + 1
	patchRel32
)

// Assembler emits x86-64 machine code into a growable buffer.
//
// Jump displacements that are not yet known are reserved as placeholders.
// Each reservation records a patch site (the offset of the displacement
// field) which must be resolved exactly once.
type Assembler struct {
	buf     []byte
	pending map[int]patchKind
}

// NewAssembler creates an assembler with the given initial capacity
func NewAssembler(capacity int) *Assembler {
	return &Assembler{
		buf:     make([]byte, 0, capacity),
		pending: make(map[int]patchKind),
	}
}

// Offset is the position the next instruction is written at
func (a *Assembler) Offset() int {
	return len(a.buf)
}

// Bytes returns the code assembled so far. The slice aliases the buffer.
func (a *Assembler) Bytes() []byte {
	return a.buf
}

// Pending returns the number of reserved displacements not yet patched
func (a *Assembler) Pending() int {
	return len(a.pending)
}

func (a *Assembler) emit(b ...byte) {
	a.buf = append(a.buf, b...)
}

// emitInt32 appends v little-endian
func (a *Assembler) emitInt32(v int32) {
	a.buf = binary.LittleEndian.AppendUint32(a.buf, uint32(v))
}

// rel32 returns the displacement from the end of a 4-byte field that ends at
// end to target.
func rel32(target, end int) int32 {
	return int32(target - end)
}

// REX prefix bits (0100WRXB)
const (
	rexBase = 0x40
	rexWBit = 0x08 // 64-bit operand size
	rexRBit = 0x04 // extends ModRM.reg
	rexBBit = 0x01 // extends ModRM.rm or the opcode register
)

func rex(w bool, reg, rm Reg) byte {
	prefix := byte(rexBase)
	if w {
		prefix |= rexWBit
	}
	if reg >= R8 {
		prefix |= rexRBit
	}
	if rm >= R8 {
		prefix |= rexBBit
	}
	return prefix
}

// emitRexB emits a bare REX.B when rm is one of R8-R15
func (a *Assembler) emitRexB(rm Reg) {
	if rm >= R8 {
		a.emit(rex(false, 0, rm))
	}
}

// ModRM mod field values
const (
	modIndirect = 0x00
	modDisp8    = 0x40
	modDisp32   = 0x80
	modDirect   = 0xC0
)

func modRM(mod byte, reg, rm Reg) byte {
	return mod | (byte(reg)&7)<<3 | byte(rm)&7
}

func fitsInt8(v int32) bool {
	return v >= -128 && v <= 127
}

// emitMemOperand emits the ModRM byte, SIB byte and displacement for
// [base + disp]. An rm of RSP/R12 needs a SIB byte, and RBP/R13 with mod 00
// would mean RIP-relative, so they always carry a displacement.
func (a *Assembler) emitMemOperand(reg, base Reg, disp int32) {
	var mod byte
	switch {
	case disp == 0 && base&7 != RBP:
		mod = modIndirect
	case fitsInt8(disp):
		mod = modDisp8
	default:
		mod = modDisp32
	}

	a.emit(modRM(mod, reg, base))
	if base&7 == RSP {
		a.emit(0x24) // SIB: no index, base = rm
	}

	switch mod {
	case modDisp8:
		a.emit(byte(disp))
	case modDisp32:
		a.emitInt32(disp)
	}
}

// MovRegReg: mov dst, src
func (a *Assembler) MovRegReg(dst, src Reg) {
	a.emit(rex(true, src, dst), 0x89, modRM(modDirect, src, dst))
}

// MovRegMem8: movzx reg, byte [base + disp]
func (a *Assembler) MovRegMem8(reg, base Reg, disp int32) {
	a.emit(rex(true, reg, base), 0x0F, 0xB6)
	a.emitMemOperand(reg, base, disp)
}

// MovMem8Reg: mov byte [base + disp], reg8. Any REX prefix selects
// SPL/BPL/SIL/DIL instead of AH/CH/DH/BH for registers 4-7.
func (a *Assembler) MovMem8Reg(base Reg, disp int32, reg Reg) {
	if reg >= RSP || base >= R8 {
		a.emit(rex(false, reg, base))
	}
	a.emit(0x88)
	a.emitMemOperand(reg, base, disp)
}

// group1 opcode extensions (the reg field of 0x80/0x81/0x83)
const (
	extAdd = 0
	extSub = 5
	extCmp = 7
)

// aluRegImm: <op> reg, imm (64-bit, immediate sign-extended)
func (a *Assembler) aluRegImm(ext Reg, reg Reg, imm int32) {
	if fitsInt8(imm) {
		a.emit(rex(true, 0, reg), 0x83, modRM(modDirect, ext, reg), byte(imm))
		return
	}
	a.emit(rex(true, 0, reg), 0x81, modRM(modDirect, ext, reg))
	a.emitInt32(imm)
}

// aluMem8Imm: <op> byte [base + disp], imm8
func (a *Assembler) aluMem8Imm(ext Reg, base Reg, disp int32, imm byte) {
	a.emitRexB(base)
	a.emit(0x80)
	a.emitMemOperand(ext, base, disp)
	a.emit(imm)
}

// AddRegImm32: add reg, imm
func (a *Assembler) AddRegImm32(reg Reg, imm int32) {
	a.aluRegImm(extAdd, reg, imm)
}

// SubRegImm32: sub reg, imm
func (a *Assembler) SubRegImm32(reg Reg, imm int32) {
	a.aluRegImm(extSub, reg, imm)
}

// AddMem8Imm8: add byte [base + disp], imm8 (wraps modulo 256)
func (a *Assembler) AddMem8Imm8(base Reg, disp int32, imm byte) {
	a.aluMem8Imm(extAdd, base, disp, imm)
}

// SubMem8Imm8: sub byte [base + disp], imm8 (wraps modulo 256)
func (a *Assembler) SubMem8Imm8(base Reg, disp int32, imm byte) {
	a.aluMem8Imm(extSub, base, disp, imm)
}

// CmpMem8Imm8: cmp byte [base + disp], imm8
func (a *Assembler) CmpMem8Imm8(base Reg, disp int32, imm byte) {
	a.aluMem8Imm(extCmp, base, disp, imm)
}

// CmpReg32Imm8: cmp reg32, imm8
func (a *Assembler) CmpReg32Imm8(reg Reg, imm int8) {
	a.emitRexB(reg)
	a.emit(0x83, modRM(modDirect, extCmp, reg), byte(imm))
}

// JccNearTo emits a near conditional jump to an already known offset
func (a *Assembler) JccNearTo(cond Cond, target int) {
	a.emit(0x0F, byte(cond))
	a.emitInt32(rel32(target, a.Offset()+4))
}

// JmpTo emits a near jump to an already known offset
func (a *Assembler) JmpTo(target int) {
	a.emit(0xE9)
	a.emitInt32(rel32(target, a.Offset()+4))
}

// ReserveJmpRel8 emits a short jmp with a placeholder displacement and
// returns its patch site.
func (a *Assembler) ReserveJmpRel8() int {
	a.emit(0xEB)
	site := a.Offset()
	a.emit(0x00)
	a.pending[site] = patchRel8
	return site
}

// ReserveJccNear emits a near conditional jump with a placeholder
// displacement and returns its patch site.
func (a *Assembler) ReserveJccNear(cond Cond) int {
	a.emit(0x0F, byte(cond))
	site := a.Offset()
	a.emitInt32(0)
	a.pending[site] = patchRel32
	return site
}

// Patch resolves a reserved displacement so the jump lands on target.
// The displacement is relative to the first byte after the field.
func (a *Assembler) Patch(site, target int) error {
	kind, ok := a.pending[site]
	if !ok {
		return fmt.Errorf("%w: offset %d", ErrPatch, site)
	}

	switch kind {
	case patchRel8:
		rel := target - (site + 1)
		if rel < -128 || rel > 127 {
			return fmt.Errorf("%w: short jump from %d to %d out of range", ErrPatch, site, target)
		}
		a.buf[site] = byte(int8(rel))
	case patchRel32:
		binary.LittleEndian.PutUint32(a.buf[site:], uint32(rel32(target, site+4)))
	}

	delete(a.pending, site)
	return nil
}

// CallReg: call reg
func (a *Assembler) CallReg(reg Reg) {
	a.emitRexB(reg)
	a.emit(0xFF, modRM(modDirect, 2, reg))
}

// Ret: ret
func (a *Assembler) Ret() {
	a.emit(0xC3)
}

// Push: push reg
func (a *Assembler) Push(reg Reg) {
	a.emitRexB(reg)
	a.emit(0x50 | byte(reg&7))
}

// Pop: pop reg
func (a *Assembler) Pop(reg Reg) {
	a.emitRexB(reg)
	a.emit(0x58 | byte(reg&7))
}

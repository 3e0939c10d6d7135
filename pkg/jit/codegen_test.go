package jit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"testing"

	"bfjit/pkg/bf"

	"github.com/google/go-cmp/cmp"
)

var (
	prologueBytes = []byte{
		0x41, 0x54,       // push r12
		0x41, 0x55,       // push r13
		0x41, 0x56,       // push r14
		0x55,             // push rbp
		0x53,             // push rbx
		0x49, 0x89, 0xfc, // mov r12, rdi
		0x49, 0x89, 0xf5, // mov r13, rsi
		0x49, 0x89, 0xd6, // mov r14, rdx
		0x48, 0x89, 0xcd, // mov rbp, rcx
		0x4c, 0x89, 0xc3, // mov rbx, r8
	}
	epilogueBytes = []byte{
		0x5b,       // pop rbx
		0x5d,       // pop rbp
		0x41, 0x5e, // pop r14
		0x41, 0x5d, // pop r13
		0x41, 0x5c, // pop r12
		0xc3,       // ret
	}
)

const (
	testExitOffset = 25 // prologue + jmp short
	testBodyOffset = 34 // exit + epilogue
	overhead       = testBodyOffset + 5
)

// header is the fixed code every program starts with
func header() []byte {
	code := append([]byte{}, prologueBytes...)
	code = append(code, 0xeb, byte(len(epilogueBytes)))
	return append(code, epilogueBytes...)
}

func le32(v int32) []byte {
	return binary.LittleEndian.AppendUint32(nil, uint32(v))
}

// target decodes the rel32 field at site into an absolute offset
func target(code []byte, site int) int {
	return site + 4 + int(int32(binary.LittleEndian.Uint32(code[site:])))
}

func generate(t *testing.T, source string) []byte {
	t.Helper()
	code, err := Generate(source, GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate(%q): %v", source, err)
	}
	return code
}

func TestGenerateEmptyProgram(t *testing.T) {
	code := generate(t, "")

	want := header()
	want = append(want, 0xe9)
	want = append(want, le32(testExitOffset-overhead)...)

	if diff := cmp.Diff(want, code); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
	if len(code) != overhead {
		t.Errorf("len = %d, want %d", len(code), overhead)
	}
}

func TestGenerateSimpleInstructions(t *testing.T) {
	tests := []struct {
		source string
		body   []byte
	}{
		{"<", []byte{0x48, 0x83, 0xeb, 0x01}},
		{">", []byte{0x48, 0x83, 0xc3, 0x01}},
		{"-", []byte{0x80, 0x2b, 0x01}},
		{"+", []byte{0x80, 0x03, 0x01}},
	}

	for _, tt := range tests {
		code := generate(t, tt.source)
		got := code[testBodyOffset : testBodyOffset+len(tt.body)]
		if diff := cmp.Diff(tt.body, got); diff != "" {
			t.Errorf("%q body mismatch (-want +got):\n%s", tt.source, diff)
		}
		if len(code) != overhead+len(tt.body) {
			t.Errorf("%q len = %d, want %d", tt.source, len(code), overhead+len(tt.body))
		}
	}
}

func TestGenerateRead(t *testing.T) {
	code := generate(t, ",")
	body := code[testBodyOffset:]

	want := []byte{
		0x48, 0x89, 0xef, // mov rdi, rbp
		0x41, 0xff, 0xd6, // call r14
		0x83, 0xf8, 0x00, // cmp eax, 0
		0x0f, 0x8c,       // jl exit
	}
	want = append(want, le32(testExitOffset-(testBodyOffset+15))...)
	want = append(want, 0x88, 0x03) // mov [rbx], al

	if diff := cmp.Diff(want, body[:len(want)]); diff != "" {
		t.Errorf("read mismatch (-want +got):\n%s", diff)
	}
	if got := target(code, testBodyOffset+11); got != testExitOffset {
		t.Errorf("jl lands at %d, want exit %d", got, testExitOffset)
	}
}

func TestGenerateWrite(t *testing.T) {
	code := generate(t, ".")
	body := code[testBodyOffset:]

	want := []byte{
		0x4c, 0x89, 0xef,       // mov rdi, r13
		0x48, 0x0f, 0xb6, 0x33, // movzx rsi, byte [rbx]
		0x41, 0xff, 0xd4,       // call r12
		0x83, 0xf8, 0x01,       // cmp eax, 1
		0x0f, 0x85,             // jne exit
	}
	want = append(want, le32(testExitOffset-(testBodyOffset+19))...)

	if diff := cmp.Diff(want, body[:len(want)]); diff != "" {
		t.Errorf("write mismatch (-want +got):\n%s", diff)
	}
	if got := target(code, testBodyOffset+15); got != testExitOffset {
		t.Errorf("jne lands at %d, want exit %d", got, testExitOffset)
	}
}

func TestGenerateLoop(t *testing.T) {
	code := generate(t, "[-]")

	want := header()
	want = append(want, 0x80, 0x3b, 0x00) // 34: cmp byte [rbx], 0
	want = append(want, 0x0f, 0x84)       // 37: je loop_end
	want = append(want, le32(51-43)...)
	want = append(want, 0x80, 0x2b, 0x01) // 43: sub byte [rbx], 1
	want = append(want, 0xe9)             // 46: jmp loop_start
	want = append(want, le32(34-51)...)
	want = append(want, 0xe9) // 51: jmp exit
	want = append(want, le32(testExitOffset-56)...)

	if diff := cmp.Diff(want, code); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateIgnoresComments(t *testing.T) {
	plain := generate(t, "+[->+<]")
	commented := generate(t, "add +\n loop [ -  move > + back < ] done")
	if diff := cmp.Diff(plain, commented); diff != "" {
		t.Errorf("comments changed the code (-plain +commented):\n%s", diff)
	}
}

func TestGenerateUnmatchedLoop(t *testing.T) {
	tests := []struct {
		source    string
		offset    int
		remaining string
	}{
		{"[", 0, "["},
		{"++[>+", 2, "[>+"},
		{"[[]", 0, "[[]"},
		{"[]+[-", 3, "[-"},
	}

	for _, tt := range tests {
		code, err := Generate(tt.source, GenerateOptions{})
		if code != nil {
			t.Errorf("Generate(%q) returned code with an error", tt.source)
		}
		var se *bf.SyntaxError
		if !errors.As(err, &se) {
			t.Fatalf("Generate(%q) = %v, want *bf.SyntaxError", tt.source, err)
		}
		if se.Offset != tt.offset || se.Remaining != tt.remaining {
			t.Errorf("Generate(%q): offset %d remaining %q, want %d %q", tt.source, se.Offset, se.Remaining, tt.offset, tt.remaining)
		}
		if !strings.Contains(err.Error(), tt.remaining) {
			t.Errorf("error %q does not show %q", err, tt.remaining)
		}
	}
}

func TestGenerateStrayLoopEnd(t *testing.T) {
	// A lone ']' is a no-op unless strict
	if _, err := Generate("+]+", GenerateOptions{}); err != nil {
		t.Errorf("Generate: %v", err)
	}
	if _, err := Generate("+]+", GenerateOptions{Strict: true}); !bf.IsSyntaxError(err) {
		t.Errorf("strict Generate = %v, want syntax error", err)
	}
	if _, err := Generate("+ comment", GenerateOptions{Strict: true}); !bf.IsSyntaxError(err) {
		t.Errorf("strict Generate = %v, want syntax error", err)
	}
}

// loopTrace wraps the x86 emitter and records each loop's reserved jump and
// where it was patched to
type loopTrace struct {
	*x86Emitter
	starts  map[int]int // je site -> loop start offset
	patched map[int]int // je site -> target
}

func (l *loopTrace) ReserveJumpIfZero() int {
	site := l.x86Emitter.ReserveJumpIfZero()
	l.starts[site] = site - 5 // cmp byte [rbx], 0 (3 bytes) + 0f 84
	return site
}

func (l *loopTrace) PatchJump(site, target int) error {
	if _, ok := l.starts[site]; ok {
		l.patched[site] = target
	}
	return l.x86Emitter.PatchJump(site, target)
}

func TestNestedLoopTargets(t *testing.T) {
	sources := []string{
		"[[-]]",
		"+[[-]>[-]<]",
		"++[>++[>++[-]<-]<-]",
		"[[[[[[[[]]]]]]]]",
		"[][][[][]]",
	}

	for _, src := range sources {
		trace := &loopTrace{
			x86Emitter: newX86Emitter(64),
			starts:     make(map[int]int),
			patched:    make(map[int]int),
		}
		code, err := generateWith(trace, src, GenerateOptions{})
		if err != nil {
			t.Fatalf("generate %q: %v", src, err)
		}

		if len(trace.patched) != strings.Count(src, "[") {
			t.Fatalf("%q: %d loops patched, want %d", src, len(trace.patched), strings.Count(src, "["))
		}

		for site, end := range trace.patched {
			start := trace.starts[site]
			if got := target(code, site); got != end {
				t.Errorf("%q: je at %d lands at %d, patched to %d", src, site, got, end)
			}
			// The loop exit lands right after the jump back to this loop's test
			if code[end-5] != 0xe9 {
				t.Errorf("%q: byte before loop end %d is %#x, want jmp", src, end, code[end-5])
				continue
			}
			if back := target(code, end-4); back != start {
				t.Errorf("%q: loop ending at %d jumps back to %d, want %d", src, end, back, start)
			}
			if diff := cmp.Diff([]byte{0x80, 0x3b, 0x00}, code[start:start+3]); diff != "" {
				t.Errorf("%q: loop start %d is not a cell test:\n%s", src, start, diff)
			}
		}
	}
}

func TestGenerateOverhead(t *testing.T) {
	for _, src := range []string{"", "+", "[]", "+++[>+++<-]>.", "hello"} {
		code := generate(t, src)
		if len(code) < overhead {
			t.Errorf("%q: len %d below fixed overhead %d", src, len(code), overhead)
		}
		if diff := cmp.Diff(header(), code[:testBodyOffset]); diff != "" {
			t.Errorf("%q: header mismatch:\n%s", src, diff)
		}
	}
}

// recorder is an Emitter that writes mnemonics instead of machine code
type recorder struct {
	ops     []string
	pending int
}

func (r *recorder) Offset() int   { return len(r.ops) }
func (r *recorder) Bytes() []byte { return []byte(strings.Join(r.ops, ";")) }
func (r *recorder) Pending() int  { return r.pending }
func (r *recorder) Prologue()     { r.ops = append(r.ops, "enter") }
func (r *recorder) Epilogue()     { r.ops = append(r.ops, "leave") }
func (r *recorder) TestCell()     { r.ops = append(r.ops, "test") }

func (r *recorder) MovePointer(delta int32) {
	r.ops = append(r.ops, "move"+sign(int(delta)))
}

func (r *recorder) AddCell(delta int8) {
	r.ops = append(r.ops, "add"+sign(int(delta)))
}

func (r *recorder) ReadCell(exit int)  { r.ops = append(r.ops, "read@"+itoa(exit)) }
func (r *recorder) WriteCell(exit int) { r.ops = append(r.ops, "write@"+itoa(exit)) }
func (r *recorder) Jump(target int)    { r.ops = append(r.ops, "jmp@"+itoa(target)) }

func (r *recorder) ReserveShortJump() int {
	r.pending++
	r.ops = append(r.ops, "jmp@?")
	return len(r.ops) - 1
}

func (r *recorder) ReserveJumpIfZero() int {
	r.pending++
	r.ops = append(r.ops, "jz@?")
	return len(r.ops) - 1
}

func (r *recorder) PatchJump(site, target int) error {
	r.pending--
	r.ops[site] = strings.Replace(r.ops[site], "?", itoa(target), 1)
	return nil
}

func sign(d int) string {
	if d < 0 {
		return "-"
	}
	return "+"
}

func itoa(i int) string {
	return fmt.Sprintf("%02d", i)
}

func TestGeneratorIsSeparableFromEncoding(t *testing.T) {
	r := &recorder{}
	out, err := generateWith(r, "+[>,.<-]", GenerateOptions{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	want := strings.Join([]string{
		"enter",    // 00
		"jmp@03",   // 01
		"leave",    // 02 exit
		"add+",     // 03 body
		"test",     // 04 loop start
		"jz@12",    // 05
		"move+",    // 06
		"read@02",  // 07
		"write@02", // 08
		"move-",    // 09
		"add-",     // 10
		"jmp@04",   // 11
		"jmp@02",   // 12 loop end
	}, ";")
	if diff := cmp.Diff(want, string(out)); diff != "" {
		t.Errorf("operation stream mismatch (-want +got):\n%s", diff)
	}
}

// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The bytecode interpreter: two stacks, an instruction pointer, the frame
// discipline and the fetch-decode-dispatch loop.

package tvm

import (
	"fmt"
	"io"
	"strings"
)

// maxFunctions bounds the user function table; user call indexes are 14
// bits on the wire.
const maxFunctions = 1 << 14

type opHandler struct {
	name string
	fn   func(*VM) error
}

/*

VM is the Tacit virtual machine.

The data stack and the return stack are memory segments of their own; SP
and RSP always hold the index of the next free cell and overflow and
underflow are detected before any mutation. BP is the frame base: on entry
to a user function the return stack receives the CODE-tagged return IP and
the caller's BP, then BP is set to RSP. The Exit opcode restores both.

Dispatch reads one opcode byte and advances IP. Opcodes 0..127 dispatch
through the handler table; a first byte with the high bit set combines with
the following byte into a 14 bit index into the function table, which holds
entry offsets registered by the compiler. Any handler may clear the running
flag to stop the loop.

Cells on the data stack own their heap allocations: an operation that
duplicates a heap reference acquires a share, one that discards a cell
releases it.

Errors raised by handlers unwind the dispatch loop wrapped with the opcode
name, the IP and the stringified data stack. The stacks are NOT wiped - the
host may inspect them - but the compiler preserve flag is cleared.

*/
type VM struct {
	mem    *Memory
	heap   *Heap
	digest Digest
	words  *Words

	ip      int  // byte offset into CODE
	sp      int  // data stack: index of the next free cell
	rsp     int  // return stack: index of the next free cell
	bp      int  // frame base on the return stack
	running bool

	preserve bool // compiler state preservation flag

	// Debug enables per-instruction tracing to Trace.
	Debug bool
	Trace io.Writer

	dataCells   int
	returnCells int

	handlers  [128]opHandler
	functions []int
}

// NewVM returns a VM with a fresh memory of the given size, an initialised
// heap, an empty digest and word dictionary, and the core opcode set
// installed.
func NewVM(memSize int) (vm *VM, err error) {
	mem, err := NewMemory(memSize)
	if err != nil {
		return
	}

	heap, err := NewHeap(mem)
	if err != nil {
		return
	}

	vm = &VM{
		mem:         mem,
		heap:        heap,
		digest:      NewSegmentDigest(mem),
		words:       NewWords(mem),
		dataCells:   mem.SegSize(SegData) / CellSize,
		returnCells: mem.SegSize(SegReturn) / CellSize,
	}
	vm.installCoreOps()
	return vm, nil
}

// Memory returns the VM's memory.
func (vm *VM) Memory() *Memory { return vm.mem }

// Heap returns the VM's block heap.
func (vm *VM) Heap() *Heap { return vm.heap }

// Digest returns the VM's string digest.
func (vm *VM) Digest() Digest { return vm.digest }

// Words returns the VM's word dictionary.
func (vm *VM) Words() *Words { return vm.words }

// SP returns the data stack pointer in cells.
func (vm *VM) SP() int { return vm.sp }

// RSP returns the return stack pointer in cells.
func (vm *VM) RSP() int { return vm.rsp }

// BP returns the frame base.
func (vm *VM) BP() int { return vm.bp }

// IP returns the instruction pointer.
func (vm *VM) IP() int { return vm.ip }

// Running reports whether the dispatch loop is live.
func (vm *VM) Running() bool { return vm.running }

// Preserve returns the compiler state preservation flag.
func (vm *VM) Preserve() bool { return vm.preserve }

// SetPreserve sets the compiler state preservation flag. The flag is
// cleared whenever an error unwinds the dispatch loop.
func (vm *VM) SetPreserve(v bool) { vm.preserve = v }

// Reset returns the VM to its initial execution state: both stacks empty,
// IP zero, not running. Heap, digest and dictionary content are untouched.
func (vm *VM) Reset() {
	vm.ip, vm.sp, vm.rsp, vm.bp = 0, 0, 0, 0
	vm.running = false
	vm.preserve = false
}

// RestoreState sets the execution registers directly. It exists for image
// restore; everything else goes through Execute and the stack methods.
func (vm *VM) RestoreState(ip, sp, rsp, bp int) {
	vm.ip, vm.sp, vm.rsp, vm.bp = ip, sp, rsp, bp
	vm.running = false
}

// Push pushes c onto the data stack. Overflow is detected before any
// mutation.
func (vm *VM) Push(c Cell) (err error) {
	if vm.sp >= vm.dataCells {
		return &ErrSTACK{Op: "push", Rq: 1, Have: vm.dataCells - vm.sp, Grow: true}
	}

	if err = vm.mem.WriteCell(SegData, vm.sp, c); err != nil {
		return
	}

	vm.sp++
	return
}

// Pop pops and returns the top cell of the data stack. Ownership of a heap
// reference transfers to the caller.
func (vm *VM) Pop() (c Cell, err error) {
	if vm.sp < 1 {
		return NilCell, &ErrSTACK{Op: "pop", Rq: 1, Have: vm.sp}
	}

	if c, err = vm.mem.ReadCell(SegData, vm.sp-1); err != nil {
		return
	}

	vm.sp--
	return
}

// Top returns the top cell without popping it.
func (vm *VM) Top() (c Cell, err error) {
	if vm.sp < 1 {
		return NilCell, &ErrSTACK{Op: "top", Rq: 1, Have: vm.sp}
	}

	return vm.mem.ReadCell(SegData, vm.sp-1)
}

func (vm *VM) stackCell(i int) (c Cell, err error) {
	return vm.mem.ReadCell(SegData, i)
}

func (vm *VM) setStackCell(i int, c Cell) (err error) {
	return vm.mem.WriteCell(SegData, i, c)
}

func (vm *VM) rpush(c Cell) (err error) {
	if vm.rsp >= vm.returnCells {
		return &ErrSTACK{Op: "rpush", Rq: 1, Have: vm.returnCells - vm.rsp, Grow: true}
	}

	if err = vm.mem.WriteCell(SegReturn, vm.rsp, c); err != nil {
		return
	}

	vm.rsp++
	return
}

func (vm *VM) rpop() (c Cell, err error) {
	if vm.rsp < 1 {
		return NilCell, &ErrSTACK{Op: "rpop", Rq: 1, Have: vm.rsp}
	}

	if c, err = vm.mem.ReadCell(SegReturn, vm.rsp-1); err != nil {
		return
	}

	vm.rsp--
	return
}

// GetStackData returns a copy of the data stack, bottom first.
func (vm *VM) GetStackData() (cells []Cell) {
	cells = make([]Cell, 0, vm.sp)
	for i := 0; i < vm.sp; i++ {
		c, err := vm.stackCell(i)
		if err != nil {
			break
		}

		cells = append(cells, c)
	}
	return
}

func (vm *VM) fmtStack() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, c := range vm.GetStackData() {
		if i != 0 {
			b.WriteByte(' ')
		}
		b.WriteString(c.String())
	}
	b.WriteByte(']')
	return b.String()
}

// RegisterBuiltin installs fn as the handler of opcode op. Opcodes are 7
// bits; the high bit selects user function calls.
func (vm *VM) RegisterBuiltin(op byte, name string, fn func(*VM) error) error {
	if op > 127 {
		return &ErrINVAL{"VM.RegisterBuiltin: opcode out of range", int(op)}
	}

	vm.handlers[op] = opHandler{name: name, fn: fn}
	return nil
}

// RegisterFunction appends entry (a CODE byte offset) to the function table
// and returns the 14 bit index user call sites encode.
func (vm *VM) RegisterFunction(entry int) (index int, err error) {
	if len(vm.functions) >= maxFunctions {
		return 0, &ErrINVAL{"VM.RegisterFunction: function table full", len(vm.functions)}
	}

	vm.functions = append(vm.functions, entry)
	return len(vm.functions) - 1, nil
}

// LoadCode copies a compiled byte stream into the CODE segment at off.
func (vm *VM) LoadCode(code []byte, off int) (err error) {
	return vm.mem.writeCode(code, off)
}

// ExecuteProgram loads code at offset 0 and executes it to completion.
func (vm *VM) ExecuteProgram(code []byte) (err error) {
	if err = vm.LoadCode(code, 0); err != nil {
		return
	}

	return vm.Execute(0, -1)
}

// Execute runs the dispatch loop from start. When control reaches breakAt
// between two instructions the loop exits cleanly; pass a negative breakAt
// to run until Abort or an error.
func (vm *VM) Execute(start, breakAt int) (err error) {
	vm.ip = start
	vm.running = true
	return vm.run(breakAt)
}

func (vm *VM) run(breakAt int) (err error) {
	for vm.running {
		if breakAt >= 0 && vm.ip == breakAt {
			return nil
		}

		opIP := vm.ip
		op, err := vm.mem.ReadU8(SegCode, vm.ip)
		if err != nil {
			return vm.fail("fetch", opIP, err)
		}

		vm.ip++
		if op&0x80 != 0 {
			lo, err := vm.mem.ReadU8(SegCode, vm.ip)
			if err != nil {
				return vm.fail("call", opIP, err)
			}

			vm.ip++
			index := int(op&0x7F)<<7 | int(lo&0x7F)
			if err = vm.enterFunction(index); err != nil {
				return vm.fail("call", opIP, err)
			}
			continue
		}

		h := vm.handlers[op]
		if h.fn == nil {
			return vm.fail("dispatch", opIP, &ErrINVAL{"unknown opcode", int(op)})
		}

		if vm.Debug && vm.Trace != nil {
			fmt.Fprintf(vm.Trace, "%04x\t%s\t%s\n", opIP, h.name, vm.fmtStack())
		}
		if err := h.fn(vm); err != nil {
			return vm.fail(h.name, opIP, err)
		}
	}
	return nil
}

// fail wraps err with the opcode context and the stringified data stack,
// and clears the compiler preserve flag. The stacks are left as they were.
func (vm *VM) fail(op string, ip int, err error) error {
	vm.preserve = false
	return &ErrVM{Op: op, IP: ip, Stack: vm.fmtStack(), More: err}
}

// enterFunction pushes the return frame and jumps to the entry of function
// table slot index.
func (vm *VM) enterFunction(index int) (err error) {
	if index < 0 || index >= len(vm.functions) {
		return &ErrINVAL{"call of unregistered function", index}
	}

	return vm.enter(vm.functions[index])
}

func (vm *VM) enter(entry int) (err error) {
	if err = vm.rpush(Tagged(TagCode, uint16(vm.ip), 0)); err != nil {
		return
	}

	if err = vm.rpush(Integer(int16(vm.bp))); err != nil {
		return
	}

	vm.bp = vm.rsp
	vm.ip = entry
	return
}

// CallCompiled executes compiled code at entry and returns when control
// comes back to the call site. It is the only mechanism by which the host
// (and re-entrant handlers like the MAP processor) invoke compiled code:
//
//	1. the current IP is saved as the return IP,
//	2. the return stack receives the CODE-tagged return IP and BP,
//	3. IP jumps to entry and the dispatch loop runs with the return IP
//	   as its break point,
//	4. the callee's Exit pops the frame, so the loop observes IP at the
//	   break point and stops with the callee's stack effects applied.
func (vm *VM) CallCompiled(entry int) (err error) {
	returnIP := vm.ip
	if err = vm.enter(entry); err != nil {
		return
	}

	vm.running = true
	return vm.run(returnIP)
}

// invokeBuiltin dispatches a builtin opcode outside the fetch loop. It is
// used by sequence processors applying a BUILTIN-tagged function cell.
func (vm *VM) invokeBuiltin(op byte) (err error) {
	if op > 127 || vm.handlers[op].fn == nil {
		return &ErrINVAL{"unknown opcode", int(op)}
	}

	return vm.handlers[op].fn(vm)
}

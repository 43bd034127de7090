// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The core opcode set.

package tvm

// Core opcodes. The numeric values are the wire encoding; opcodes 0..127
// are builtins, a first byte with the high bit set is a user function call.
const (
	OpNop = iota
	OpLitNumber
	OpLitString
	OpBranch
	OpBranchZ
	OpExit
	OpAbort
	OpDup
	OpDrop
	OpSwap
	OpOver
	OpRot
	OpRevRot
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpNeg
	OpEq
	OpLt
	OpSeqNext
)

func (vm *VM) installCoreOps() {
	for _, op := range []struct {
		code byte
		name string
		fn   func(*VM) error
	}{
		{OpNop, "nop", func(*VM) error { return nil }},
		{OpLitNumber, "lit", opLitNumber},
		{OpLitString, "litstr", opLitString},
		{OpBranch, "branch", opBranch},
		{OpBranchZ, "branch0", opBranchZ},
		{OpExit, "exit", opExit},
		{OpAbort, "abort", opAbort},
		{OpDup, "dup", (*VM).dupTop},
		{OpDrop, "drop", (*VM).dropTop},
		{OpSwap, "swap", opSwap},
		{OpOver, "over", opOver},
		{OpRot, "rot", opRot},
		{OpRevRot, "revrot", opRevRot},
		{OpAdd, "add", opAdd},
		{OpSub, "sub", opSub},
		{OpMul, "mul", opMul},
		{OpDiv, "div", opDiv},
		{OpNeg, "neg", opNeg},
		{OpEq, "eq", opEq},
		{OpLt, "lt", opLt},
		{OpSeqNext, "seqnext", opSeqNext},
	} {
		vm.RegisterBuiltin(op.code, op.name, op.fn)
	}
}

// opLitNumber pushes the inline 32 bit float following the opcode.
func opLitNumber(vm *VM) (err error) {
	v, err := vm.mem.readCodeU32(vm.ip)
	if err != nil {
		return
	}

	vm.ip += 4
	return vm.Push(Cell(v))
}

// opLitString pushes a STRING cell for the inline 16 bit digest handle.
func opLitString(vm *VM) (err error) {
	v, err := vm.mem.readCodeU16(vm.ip)
	if err != nil {
		return
	}

	vm.ip += 2
	return vm.Push(Tagged(TagString, v, 0))
}

// branchOperand consumes the signed 16 bit offset following the opcode.
// Offsets are relative to the byte immediately after the operand.
func (vm *VM) branchOperand() (off int, err error) {
	v, err := vm.mem.readCodeU16(vm.ip)
	if err != nil {
		return
	}

	vm.ip += 2
	return int(int16(v)), nil
}

func opBranch(vm *VM) (err error) {
	off, err := vm.branchOperand()
	if err != nil {
		return
	}

	vm.ip += off
	return
}

// opBranchZ pops one cell and branches when it is numerically zero or NIL.
func opBranchZ(vm *VM) (err error) {
	off, err := vm.branchOperand()
	if err != nil {
		return
	}

	c, err := vm.Pop()
	if err != nil {
		return
	}

	vm.heap.DecRef(c)
	if c.IsNil() || (c.IsNumber() && c.Float() == 0) {
		vm.ip += off
	}
	return
}

// opExit pops the return frame: the caller's BP, then the CODE-tagged
// return IP.
func opExit(vm *VM) (err error) {
	bpc, err := vm.rpop()
	if err != nil {
		return
	}

	ipc, err := vm.rpop()
	if err != nil {
		return
	}

	if bpc.Tag() != TagInteger || ipc.Tag() != TagCode {
		return &ErrILSEQ{Type: ErrBadTag, Off: int64(ipc), Arg: int64(ipc.Tag())}
	}

	vm.bp = int(bpc.Int())
	vm.ip = int(ipc.Value())
	return
}

func opAbort(vm *VM) (err error) {
	vm.running = false
	return
}

func (vm *VM) popNumber(op string) (f float32, err error) {
	c, err := vm.Pop()
	if err != nil {
		return
	}

	if !c.IsNumber() {
		return 0, &ErrINVAL{op + ": expected a number, got", c.Tag()}
	}

	return c.Float(), nil
}

func (vm *VM) binary(op string, fn func(a, b float32) float32) (err error) {
	b, err := vm.popNumber(op)
	if err != nil {
		return
	}

	a, err := vm.popNumber(op)
	if err != nil {
		return
	}

	return vm.Push(Number(fn(a, b)))
}

func opAdd(vm *VM) error { return vm.binary("add", func(a, b float32) float32 { return a + b }) }
func opSub(vm *VM) error { return vm.binary("sub", func(a, b float32) float32 { return a - b }) }
func opMul(vm *VM) error { return vm.binary("mul", func(a, b float32) float32 { return a * b }) }
func opDiv(vm *VM) error { return vm.binary("div", func(a, b float32) float32 { return a / b }) }

func opNeg(vm *VM) (err error) {
	a, err := vm.popNumber("neg")
	if err != nil {
		return
	}

	return vm.Push(Number(-a))
}

func boolCell(b bool) Cell {
	if b {
		return Number(1)
	}

	return Number(0)
}

func opEq(vm *VM) (err error) {
	b, err := vm.Pop()
	if err != nil {
		return
	}

	a, err := vm.Pop()
	if err != nil {
		return
	}

	vm.heap.DecRef(a)
	vm.heap.DecRef(b)
	return vm.Push(boolCell(a == b))
}

func opLt(vm *VM) (err error) {
	b, err := vm.popNumber("lt")
	if err != nil {
		return
	}

	a, err := vm.popNumber("lt")
	if err != nil {
		return
	}

	return vm.Push(boolCell(a < b))
}

// opSeqNext pops a sequence and advances it, leaving the yielded element
// (or NIL) on the stack. The popped share is released; callers that keep
// iterating hold their own share of the sequence.
func opSeqNext(vm *VM) (err error) {
	s, err := vm.Pop()
	if err != nil {
		return
	}

	if s.Tag() != TagSequence {
		return &ErrILSEQ{Type: ErrBadTag, Off: int64(s), Arg: int64(s.Tag())}
	}

	if _, err = vm.SeqNext(s); err != nil {
		return
	}

	vm.heap.DecRef(s)
	return
}

// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Sequences: lazy iterators over ranges, vectors, strings, constants,
// dictionaries and composable processors, built on the vector layout.

package tvm

// Sequence source types.
const (
	SourceRange = iota
	SourceVector
	SourceString
	SourceProcessor
	SourceConstant
	SourceDict
)

// Processor opcodes, stored in meta[0] of a PROCESSOR sequence.
const (
	ProcMap = iota
	ProcFilter
	ProcSift
	ProcTake
	ProcDrop
	ProcMulti
	ProcMultiSource
)

// Sequence header cell indexes within the vector payload. A sequence is a
// vector whose payload is {source, cursor, metaCount, meta...}; all state a
// step mutates lives in the cursor cell, so advancing a sequence never
// needs copy-on-write.
const (
	seqSourceCell = 0
	seqCursorCell = 1
	seqCountCell  = 2
	seqMetaCell   = 3
)

// SeqCreate builds a sequence of the given source type and returns its
// tagged cell, or NilCell when the heap cannot satisfy the allocation.
// Heap-tagged metas are incref'd. For a RANGE the cursor starts at meta[0]
// (the range start); for every other source it starts at zero.
func (h *Heap) SeqCreate(source int, metas []Cell) (s Cell, err error) {
	cursor := Number(0)
	if source == SourceRange && len(metas) > 0 {
		cursor = metas[0]
	}

	data := make([]Cell, 0, seqMetaCell+len(metas))
	data = append(data, Integer(int16(source)), cursor, Integer(int16(len(metas))))
	data = append(data, metas...)

	head, err := h.vectorAlloc(len(data), data)
	if err != nil || head == InvalidBlock {
		return NilCell, err
	}

	return Tagged(TagSequence, head, 0), nil
}

func (h *Heap) seqCell(s Cell, i int) (c Cell, err error) {
	return h.VectorGet(s, i)
}

func (h *Heap) setSeqCell(s Cell, i int, c Cell) (err error) {
	head, err := h.compoundHead(s)
	if err != nil {
		return
	}

	b, off, err := h.vecLocate(head, i)
	if err != nil {
		return
	}

	return h.vecWriteCell(b, off, c)
}

func (h *Heap) seqMeta(s Cell, i int) (c Cell, err error) {
	return h.seqCell(s, seqMetaCell+i)
}

// sequenceCleanup releases the references a sequence holds: child
// sequences, source compounds and constant cells. Numeric metas (processor
// opcodes, counts, range bounds) hold no references and are skipped by
// DecRef itself.
func sequenceCleanup(h *Heap, head uint16) {
	s := Tagged(TagSequence, head, 0)
	count, err := h.seqCell(s, seqCountCell)
	if err != nil {
		h.Log(err)
		return
	}

	cursor, err := h.seqCell(s, seqCursorCell)
	if err != nil {
		h.Log(err)
		return
	}

	h.DecRef(cursor)
	for i := 0; i < int(count.Int()); i++ {
		m, e := h.seqMeta(s, i)
		if e != nil {
			h.Log(e)
			return
		}

		h.DecRef(m)
	}
}

// SeqNext advances seq by one step: it pushes the next element (or NIL when
// the sequence is exhausted) onto the VM data stack and returns the same
// sequence cell. All iteration state lives in the sequence's cursor cell.
func (vm *VM) SeqNext(seq Cell) (s Cell, err error) {
	s = seq
	h := vm.heap
	src, err := h.seqCell(seq, seqSourceCell)
	if err != nil {
		return
	}

	switch int(src.Int()) {
	case SourceRange:
		err = vm.seqNextRange(seq)
	case SourceVector:
		err = vm.seqNextVector(seq)
	case SourceString:
		err = vm.seqNextString(seq)
	case SourceConstant:
		var c Cell
		if c, err = h.seqMeta(seq, 0); err != nil {
			return
		}

		err = vm.pushOwned(c)
	case SourceDict:
		err = vm.seqNextDict(seq)
	case SourceProcessor:
		err = vm.seqNextProcessor(seq)
	default:
		err = &ErrINVAL{"SeqNext: unknown source type", int(src.Int())}
	}
	return
}

// pushOwned pushes c and acquires a share when c is a heap reference:
// cells on the data stack own their allocations.
func (vm *VM) pushOwned(c Cell) (err error) {
	if err = vm.Push(c); err != nil {
		return
	}

	if c.IsHeap() {
		vm.heap.IncRef(c.Value())
	}
	return
}

func (vm *VM) seqNextRange(seq Cell) (err error) {
	h := vm.heap
	cursor, err := h.seqCell(seq, seqCursorCell)
	if err != nil {
		return
	}

	end, err := h.seqMeta(seq, 2)
	if err != nil {
		return
	}

	if cursor.Float() > end.Float() {
		return vm.Push(NilCell)
	}

	step, err := h.seqMeta(seq, 1)
	if err != nil {
		return
	}

	if err = vm.Push(cursor); err != nil {
		return
	}

	return h.setSeqCell(seq, seqCursorCell, Number(cursor.Float()+step.Float()))
}

func (vm *VM) seqNextVector(seq Cell) (err error) {
	h := vm.heap
	cursor, err := h.seqCell(seq, seqCursorCell)
	if err != nil {
		return
	}

	vec, err := h.seqMeta(seq, 0)
	if err != nil {
		return
	}

	i := int(cursor.Float())
	c, err := h.VectorGet(vec, i)
	if err != nil {
		return
	}

	if c.IsNil() {
		return vm.Push(NilCell)
	}

	if err = vm.pushOwned(c); err != nil {
		return
	}

	return h.setSeqCell(seq, seqCursorCell, Number(float32(i+1)))
}

func (vm *VM) seqNextString(seq Cell) (err error) {
	h := vm.heap
	cursor, err := h.seqCell(seq, seqCursorCell)
	if err != nil {
		return
	}

	sc, err := h.seqMeta(seq, 0)
	if err != nil {
		return
	}

	str, ok := vm.digest.Get(sc.Value())
	i := int(cursor.Float())
	if !ok || i >= len(str) {
		return vm.Push(NilCell)
	}

	if err = vm.Push(Number(float32(str[i]))); err != nil {
		return
	}

	return h.setSeqCell(seq, seqCursorCell, Number(float32(i+1)))
}

func (vm *VM) seqNextDict(seq Cell) (err error) {
	h := vm.heap
	cursor, err := h.seqCell(seq, seqCursorCell)
	if err != nil {
		return
	}

	d, err := h.seqMeta(seq, 0)
	if err != nil {
		return
	}

	i := int(cursor.Float())
	k, err := h.VectorGet(d, 2*i)
	if err != nil {
		return
	}

	if k.IsNil() {
		return vm.Push(NilCell)
	}

	v, err := h.VectorGet(d, 2*i+1)
	if err != nil {
		return
	}

	if err = vm.pushOwned(k); err != nil {
		return
	}

	if err = vm.pushOwned(v); err != nil {
		return
	}

	return h.setSeqCell(seq, seqCursorCell, Number(float32(i+1)))
}

func (vm *VM) seqNextProcessor(seq Cell) (err error) {
	h := vm.heap
	op, err := h.seqMeta(seq, 0)
	if err != nil {
		return
	}

	switch int(op.Int()) {
	case ProcMap:
		return vm.seqNextMap(seq)
	case ProcFilter:
		return vm.seqNextFilter(seq)
	case ProcSift:
		return vm.seqNextSift(seq)
	case ProcTake:
		return vm.seqNextTake(seq)
	case ProcDrop:
		return vm.seqNextDrop(seq)
	case ProcMulti:
		return vm.seqNextMulti(seq, false)
	case ProcMultiSource:
		return vm.seqNextMulti(seq, true)
	}
	return &ErrINVAL{"SeqNext: unknown processor", int(op.Int())}
}

// apply runs a function cell against the current top of stack: compiled
// code re-enters the dispatch loop through CallCompiled, builtins dispatch
// directly.
func (vm *VM) apply(fn Cell) (err error) {
	tag, value, _, err := fn.Untag()
	if err != nil {
		return
	}

	switch tag {
	case TagCode:
		return vm.CallCompiled(int(value))
	case TagBuiltin:
		return vm.invokeBuiltin(byte(value))
	}
	return &ErrILSEQ{Type: ErrBadTag, Off: int64(fn), Arg: int64(tag)}
}

func (vm *VM) seqNextMap(seq Cell) (err error) {
	h := vm.heap
	child, err := h.seqMeta(seq, 1)
	if err != nil {
		return
	}

	fn, err := h.seqMeta(seq, 2)
	if err != nil {
		return
	}

	if _, err = vm.SeqNext(child); err != nil {
		return
	}

	top, err := vm.Top()
	if err != nil {
		return
	}

	if top.IsNil() {
		return
	}

	return vm.apply(fn)
}

func (vm *VM) seqNextFilter(seq Cell) (err error) {
	h := vm.heap
	child, err := h.seqMeta(seq, 1)
	if err != nil {
		return
	}

	pred, err := h.seqMeta(seq, 2)
	if err != nil {
		return
	}

	for {
		if _, err = vm.SeqNext(child); err != nil {
			return
		}

		top, e := vm.Top()
		if e != nil {
			return e
		}

		if top.IsNil() {
			return
		}

		if err = vm.dupTop(); err != nil {
			return
		}

		if err = vm.apply(pred); err != nil {
			return
		}

		flag, e := vm.Pop()
		if e != nil {
			return e
		}

		if flag.Truthy() {
			return
		}

		if err = vm.dropTop(); err != nil {
			return
		}
	}
}

func (vm *VM) seqNextSift(seq Cell) (err error) {
	h := vm.heap
	child, err := h.seqMeta(seq, 1)
	if err != nil {
		return
	}

	mask, err := h.seqMeta(seq, 2)
	if err != nil {
		return
	}

	for {
		if _, err = vm.SeqNext(child); err != nil {
			return
		}

		top, e := vm.Top()
		if e != nil {
			return e
		}

		if top.IsNil() {
			return
		}

		if _, err = vm.SeqNext(mask); err != nil {
			return
		}

		m, e := vm.Pop()
		if e != nil {
			return e
		}

		vm.heap.DecRef(m)
		if m.IsNil() {
			// Mask exhausted: the sequence ends here.
			if err = vm.dropTop(); err != nil {
				return
			}

			return vm.Push(NilCell)
		}

		if m.Truthy() {
			return
		}

		if err = vm.dropTop(); err != nil {
			return
		}
	}
}

func (vm *VM) seqNextTake(seq Cell) (err error) {
	h := vm.heap
	child, err := h.seqMeta(seq, 1)
	if err != nil {
		return
	}

	limit, err := h.seqMeta(seq, 2)
	if err != nil {
		return
	}

	cursor, err := h.seqCell(seq, seqCursorCell)
	if err != nil {
		return
	}

	taken := int(cursor.Float())
	if taken >= int(limit.Float()) {
		return vm.Push(NilCell)
	}

	if _, err = vm.SeqNext(child); err != nil {
		return
	}

	top, err := vm.Top()
	if err != nil || top.IsNil() {
		return
	}

	return h.setSeqCell(seq, seqCursorCell, Number(float32(taken+1)))
}

func (vm *VM) seqNextDrop(seq Cell) (err error) {
	h := vm.heap
	child, err := h.seqMeta(seq, 1)
	if err != nil {
		return
	}

	cursor, err := h.seqCell(seq, seqCursorCell)
	if err != nil {
		return
	}

	if cursor.Float() == 0 {
		n, e := h.seqMeta(seq, 2)
		if e != nil {
			return e
		}

		for i := 0; i < int(n.Float()); i++ {
			if _, err = vm.SeqNext(child); err != nil {
				return
			}

			if err = vm.dropTop(); err != nil {
				return
			}
		}
		if err = h.setSeqCell(seq, seqCursorCell, Number(1)); err != nil {
			return
		}
	}

	_, err = vm.SeqNext(child)
	return
}

// seqNextMulti advances all child sequences in lock step. With pushValues
// set, every child's value is left on the stack; without it, only the first
// child's value is the yielded element and the others are released. Either
// way a single NIL is pushed as soon as any child is exhausted.
func (vm *VM) seqNextMulti(seq Cell, pushValues bool) (err error) {
	h := vm.heap
	count, err := h.seqCell(seq, seqCountCell)
	if err != nil {
		return
	}

	n := int(count.Int()) - 1 // meta[0] is the processor opcode
	values := make([]Cell, 0, n)
	exhausted := false
	for i := 0; i < n; i++ {
		child, e := h.seqMeta(seq, 1+i)
		if e != nil {
			return e
		}

		if _, err = vm.SeqNext(child); err != nil {
			return
		}

		v, e := vm.Pop()
		if e != nil {
			return e
		}

		values = append(values, v)
		if v.IsNil() {
			exhausted = true
		}
	}

	if exhausted {
		for _, v := range values {
			h.DecRef(v)
		}
		return vm.Push(NilCell)
	}

	if pushValues {
		for _, v := range values {
			if err = vm.Push(v); err != nil {
				return
			}
		}
		return
	}

	for _, v := range values[1:] {
		h.DecRef(v)
	}
	return vm.Push(values[0])
}

// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Compound-aware stack manipulation.

package tvm

// An inline compound occupies several contiguous stack cells:
//
//	+--------+--------+- ... -+----------+
//	| LIST:n | cell 0 |       | LINK:n+1 |
//	+--------+--------+- ... -+----------+
//
// with the LINK on top. The LINK's VALUE is the distance in raw cells back
// to the LIST header, counting nested LIST/LINK overhead, so the span of
// the logical element whose topmost cell is a LINK is VALUE+1. Stack
// operations move whole spans; for plain cells the span is one and the
// operations degenerate to the classic single-cell shuffles.

// span returns the size in cells of the logical element whose topmost cell
// sits at stack index top-1.
func (vm *VM) span(top int) (n int, err error) {
	if top < 1 {
		return 0, &ErrSTACK{Op: "span", Rq: 1, Have: top}
	}

	c, err := vm.stackCell(top - 1)
	if err != nil {
		return
	}

	if c.Tag() != TagLink {
		return 1, nil
	}

	n = int(c.Value()) + 1
	if n > top {
		return 0, &ErrILSEQ{Type: ErrListShape, Off: int64(top - 1), Arg: int64(n)}
	}

	return n, nil
}

// adjustRefs acquires (delta > 0) or releases (delta < 0) one share of
// every heap reference in the stack cell range [from, to).
func (vm *VM) adjustRefs(from, to, delta int) (err error) {
	for i := from; i < to; i++ {
		c, e := vm.stackCell(i)
		if e != nil {
			return e
		}

		if !c.IsHeap() {
			continue
		}

		if delta > 0 {
			vm.heap.IncRef(c.Value())
		} else {
			vm.heap.DecRef(c)
		}
	}
	return
}

// reverseCells reverses the stack cell range [from, to).
func (vm *VM) reverseCells(from, to int) (err error) {
	for to--; from < to; from, to = from+1, to-1 {
		a, e := vm.stackCell(from)
		if e != nil {
			return e
		}

		b, e := vm.stackCell(to)
		if e != nil {
			return e
		}

		if err = vm.setStackCell(from, b); err != nil {
			return
		}

		if err = vm.setStackCell(to, a); err != nil {
			return
		}
	}
	return
}

// rotateCells rotates the stack cell range [start, end) so that [mid, end)
// comes first, using three reversals for O(n) in-place movement.
func (vm *VM) rotateCells(start, mid, end int) (err error) {
	if err = vm.reverseCells(start, mid); err != nil {
		return
	}

	if err = vm.reverseCells(mid, end); err != nil {
		return
	}

	return vm.reverseCells(start, end)
}

// copySpan copies the cell range [from, from+n) to the top of the stack.
func (vm *VM) copySpan(from, n int) (err error) {
	if vm.sp+n > vm.dataCells {
		return &ErrSTACK{Op: "copy", Rq: n, Have: vm.dataCells - vm.sp, Grow: true}
	}

	for i := 0; i < n; i++ {
		c, e := vm.stackCell(from + i)
		if e != nil {
			return e
		}

		if err = vm.setStackCell(vm.sp+i, c); err != nil {
			return
		}
	}
	vm.sp += n
	return vm.adjustRefs(vm.sp-n, vm.sp, 1)
}

// dupTop duplicates the top logical element.
func (vm *VM) dupTop() (err error) {
	n, err := vm.span(vm.sp)
	if err != nil {
		return
	}

	return vm.copySpan(vm.sp-n, n)
}

// dropTop removes the top logical element, releasing the heap references
// it holds.
func (vm *VM) dropTop() (err error) {
	n, err := vm.span(vm.sp)
	if err != nil {
		return
	}

	if err = vm.adjustRefs(vm.sp-n, vm.sp, -1); err != nil {
		return
	}

	vm.sp -= n
	return
}

// topSpans measures the spans of the top k logical elements, returned
// bottom first.
func (vm *VM) topSpans(k int) (spans []int, err error) {
	spans = make([]int, k)
	top := vm.sp
	for i := k - 1; i >= 0; i-- {
		n, e := vm.span(top)
		if e != nil {
			return nil, e
		}

		spans[i] = n
		top -= n
	}
	return
}

// opSwap exchanges the top two logical elements.
func opSwap(vm *VM) (err error) {
	s, err := vm.topSpans(2)
	if err != nil {
		return
	}

	start := vm.sp - s[0] - s[1]
	return vm.rotateCells(start, start+s[0], vm.sp)
}

// opOver copies the second logical element over the top one.
func opOver(vm *VM) (err error) {
	s, err := vm.topSpans(2)
	if err != nil {
		return
	}

	return vm.copySpan(vm.sp-s[0]-s[1], s[0])
}

// opRot rotates the third logical element to the top: ( a b c -- b c a ).
func opRot(vm *VM) (err error) {
	s, err := vm.topSpans(3)
	if err != nil {
		return
	}

	start := vm.sp - s[0] - s[1] - s[2]
	return vm.rotateCells(start, start+s[0], vm.sp)
}

// opRevRot rotates the top element under the other two: ( a b c -- c a b ).
func opRevRot(vm *VM) (err error) {
	s, err := vm.topSpans(3)
	if err != nil {
		return
	}

	start := vm.sp - s[0] - s[1] - s[2]
	return vm.rotateCells(start, vm.sp-s[2], vm.sp)
}

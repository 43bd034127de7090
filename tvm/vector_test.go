// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tvm

import (
	"math/rand"
	"testing"
)

func numbers(xs ...float32) []Cell {
	cells := make([]Cell, len(xs))
	for i, x := range xs {
		cells[i] = Number(x)
	}
	return cells
}

func TestVectorCreateGet(t *testing.T) {
	h := newTestHeap(t)
	for _, n := range []int{0, 1, vecHeadCells, vecHeadCells + 1, vecHeadCells + vecTailCells, 100} {
		data := make([]Cell, n)
		for i := range data {
			data[i] = Number(float32(i) * 1.5)
		}

		v, err := h.VectorCreate(data)
		if err != nil {
			t.Fatal(err)
		}

		if v.IsNil() {
			t.Fatal("create failed for", n)
		}

		ln, err := h.VectorLength(v)
		if err != nil {
			t.Fatal(err)
		}

		if g, e := ln, n; g != e {
			t.Fatal(g, e)
		}

		for i := 0; i < n; i++ {
			c, err := h.VectorGet(v, i)
			if err != nil {
				t.Fatal(err)
			}

			if g, e := c, data[i]; g != e {
				t.Fatal(n, i, g, e)
			}
		}

		h.DecRef(v)
	}

	if g, e := h.Available(), h.Blocks()*BlockSize; g != e {
		t.Fatal(g, e)
	}
}

func TestVectorGetOutOfRange(t *testing.T) {
	h := newTestHeap(t)
	v, err := h.VectorCreate(numbers(1, 2, 3))
	if err != nil {
		t.Fatal(err)
	}

	for _, i := range []int{-1, 3, 1000} {
		c, err := h.VectorGet(v, i)
		if err != nil {
			t.Fatal(err)
		}

		if !c.IsNil() {
			t.Fatal(i, c)
		}
	}
	h.DecRef(v)
}

func TestVectorAllocFailure(t *testing.T) {
	h := newTestHeap(t)
	// Exhaust the heap, then ask for a vector.
	hold, err := h.Alloc(h.Blocks() * BlockUsable)
	if err != nil || hold == InvalidBlock {
		t.Fatal(hold, err)
	}

	v, err := h.VectorCreate(numbers(1, 2, 3))
	if err != nil {
		t.Fatal(err)
	}

	if !v.IsNil() {
		t.Fatal(v)
	}

	h.DecRefBlock(hold, TagVector)
}

// Copy-on-write preserves history: updates are invisible through prior
// references.
func TestVectorUpdateSnapshot(t *testing.T) {
	h := newTestHeap(t)
	v, err := h.VectorCreate(numbers(10, 20, 30))
	if err != nil || v.IsNil() {
		t.Fatal(v, err)
	}

	w := v
	h.IncRef(w.Value()) // w is an independent share

	v2, err := h.VectorUpdate(v, 1, Number(99))
	if err != nil || v2.IsNil() {
		t.Fatal(v2, err)
	}

	g, err := h.VectorGet(w, 1)
	if err != nil {
		t.Fatal(err)
	}

	if e := Number(20); g != e {
		t.Fatal(g, e)
	}

	if g, err = h.VectorGet(v2, 1); err != nil {
		t.Fatal(err)
	}

	if e := Number(99); g != e {
		t.Fatal(g, e)
	}

	h.DecRef(w)
	h.DecRef(v2)
	if g, e := h.Available(), h.Blocks()*BlockSize; g != e {
		t.Fatal(g, e)
	}
}

// An unshared vector updates in place: no blocks move.
func TestVectorUpdateInPlace(t *testing.T) {
	h := newTestHeap(t)
	v, err := h.VectorCreate(numbers(1, 2, 3))
	if err != nil {
		t.Fatal(err)
	}

	v2, err := h.VectorUpdate(v, 2, Number(7))
	if err != nil {
		t.Fatal(err)
	}

	if g, e := v2, v; g != e {
		t.Fatal(g, e)
	}

	c, err := h.VectorGet(v2, 2)
	if err != nil {
		t.Fatal(err)
	}

	if g, e := c, Number(7); g != e {
		t.Fatal(g, e)
	}

	h.DecRef(v2)
}

// Snapshots survive updates deep in a multi-block chain, where the path to
// the target block has to be cloned and restitched.
func TestVectorUpdateMultiBlockSnapshot(t *testing.T) {
	h := newTestHeap(t)
	const n = 40 // three blocks
	data := make([]Cell, n)
	for i := range data {
		data[i] = Number(float32(i))
	}

	v, err := h.VectorCreate(data)
	if err != nil || v.IsNil() {
		t.Fatal(v, err)
	}

	w := v
	h.IncRef(w.Value())

	target := vecHeadCells + vecTailCells + 3 // in the third block
	v2, err := h.VectorUpdate(v, target, Number(-1))
	if err != nil || v2.IsNil() {
		t.Fatal(v2, err)
	}

	for i := 0; i < n; i++ {
		g, err := h.VectorGet(w, i)
		if err != nil {
			t.Fatal(err)
		}

		if e := data[i]; g != e {
			t.Fatal(i, g, e)
		}

		if g, err = h.VectorGet(v2, i); err != nil {
			t.Fatal(err)
		}

		e := data[i]
		if i == target {
			e = Number(-1)
		}
		if g != e {
			t.Fatal(i, g, e)
		}
	}

	h.DecRef(w)
	h.DecRef(v2)
	if g, e := h.Available(), h.Blocks()*BlockSize; g != e {
		t.Fatal(g, e)
	}
}

// Vectors own their heap elements: creating releases nothing, destroying
// releases everything, and updates rebalance the counts.
func TestVectorNestedOwnership(t *testing.T) {
	h := newTestHeap(t)
	inner, err := h.VectorCreate(numbers(1, 2))
	if err != nil {
		t.Fatal(err)
	}

	outer, err := h.VectorCreate([]Cell{inner, Number(3)})
	if err != nil {
		t.Fatal(err)
	}

	refs, err := h.Refs(inner.Value())
	if err != nil {
		t.Fatal(err)
	}

	if g, e := refs, uint16(2); g != e {
		t.Fatal(g, e)
	}

	h.DecRef(inner) // drop our direct share; the outer vector keeps it

	inner2, err := h.VectorCreate(numbers(9))
	if err != nil {
		t.Fatal(err)
	}

	outer, err = h.VectorUpdate(outer, 0, inner2)
	if err != nil {
		t.Fatal(err)
	}

	h.DecRef(inner2)
	h.DecRef(outer)
	if g, e := h.Available(), h.Blocks()*BlockSize; g != e {
		t.Fatal(g, e)
	}

	if err = h.Check(nil); err != nil {
		t.Fatal(err)
	}
}

func TestVectorElements(t *testing.T) {
	h := newTestHeap(t)
	data := numbers(5, 6, 7, 8)
	v, err := h.VectorCreate(data)
	if err != nil {
		t.Fatal(err)
	}

	cells, err := h.VectorElements(v)
	if err != nil {
		t.Fatal(err)
	}

	if g, e := len(cells), len(data); g != e {
		t.Fatal(g, e)
	}

	for i, c := range cells {
		if g, e := c, data[i]; g != e {
			t.Fatal(i, g, e)
		}
	}
	h.DecRef(v)
}

func TestVectorUpdateRandomised(t *testing.T) {
	h := newTestHeap(t)
	rng := rand.New(rand.NewSource(11))
	const n = 50

	data := make([]Cell, n)
	for i := range data {
		data[i] = Number(rng.Float32())
	}

	v, err := h.VectorCreate(data)
	if err != nil || v.IsNil() {
		t.Fatal(v, err)
	}

	// Mirror of the expected content, updated alongside.
	for op := 0; op < 200; op++ {
		i := rng.Intn(n)
		x := Number(rng.Float32())
		if v, err = h.VectorUpdate(v, i, x); err != nil || v.IsNil() {
			t.Fatal(op, v, err)
		}

		data[i] = x
		j := rng.Intn(n)
		g, err := h.VectorGet(v, j)
		if err != nil {
			t.Fatal(err)
		}

		if e := data[j]; g != e {
			t.Fatal(op, j, g, e)
		}
	}

	h.DecRef(v)
	if g, e := h.Available(), h.Blocks()*BlockSize; g != e {
		t.Fatal(g, e)
	}
}

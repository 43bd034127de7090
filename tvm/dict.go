// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Heap dictionaries: association values stored as alternating key/value
// cells in a vector chain.

package tvm

// DictCreate builds a dictionary from parallel key and value slices and
// returns its tagged cell, or NilCell when the heap cannot satisfy the
// allocation. Keys are compared by bit pattern, which makes numbers,
// INTEGER cells and interned STRING handles all usable as keys.
func (h *Heap) DictCreate(keys, values []Cell) (d Cell, err error) {
	if len(keys) != len(values) {
		return NilCell, &ErrINVAL{"Heap.DictCreate: key/value length mismatch", len(values)}
	}

	data := make([]Cell, 0, 2*len(keys))
	for i := range keys {
		data = append(data, keys[i], values[i])
	}

	head, err := h.vectorAlloc(len(data), data)
	if err != nil || head == InvalidBlock {
		return NilCell, err
	}

	return Tagged(TagDict, head, 0), nil
}

// DictLen returns the number of entries in d.
func (h *Heap) DictLen(d Cell) (n int, err error) {
	cells, err := h.VectorLength(d)
	return cells / 2, err
}

// DictGet returns the value bound to key in d, or NilCell when the key is
// absent. Lookup is a linear scan; dictionaries are small.
func (h *Heap) DictGet(d Cell, key Cell) (v Cell, err error) {
	n, err := h.DictLen(d)
	if err != nil {
		return NilCell, err
	}

	for i := 0; i < n; i++ {
		k, e := h.VectorGet(d, 2*i)
		if e != nil {
			return NilCell, e
		}

		if k == key {
			return h.VectorGet(d, 2*i+1)
		}
	}
	return NilCell, nil
}

// DictSet binds key to value and returns the dictionary to use afterwards.
// An existing binding is updated through the vector's copy-on-write path,
// so prior holders keep their snapshot; a new binding extends the
// dictionary into a fresh chain. Returns NilCell when the heap cannot
// satisfy the allocation.
func (h *Heap) DictSet(d Cell, key, value Cell) (nd Cell, err error) {
	n, err := h.DictLen(d)
	if err != nil {
		return NilCell, err
	}

	for i := 0; i < n; i++ {
		k, e := h.VectorGet(d, 2*i)
		if e != nil {
			return NilCell, e
		}

		if k == key {
			return h.VectorUpdate(d, 2*i+1, value)
		}
	}

	cells, err := h.VectorElements(d)
	if err != nil {
		return NilCell, err
	}

	cells = append(cells, key, value)
	head, err := h.vectorAlloc(len(cells), cells)
	if err != nil || head == InvalidBlock {
		return NilCell, err
	}

	return Tagged(TagDict, head, 0), nil
}

// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Vectors: length-prefixed cell payload stored across chained blocks.

package tvm

import (
	"github.com/cznic/mathutil"
)

// Vector layout. The head block stores the logical length as a u16 behind
// the block header; payload cells start at the next 4-aligned offset. On
// every other block of the chain the payload starts right after the header.
//
//	head:  | next | refs | len | pad | cell 0 ... cell 13 |
//	tail:  | next | refs | cell 14 ... cell 28 |
const (
	vecLenOff     = blockHdrSize     // u16 logical length
	vecPayloadOff = blockHdrSize + 4 // first payload cell, 4-aligned
	vecHeadCells  = (BlockSize - vecPayloadOff) / CellSize
	vecTailCells  = (BlockSize - blockHdrSize) / CellSize
)

// vecBlocks returns the number of blocks a vector of n cells occupies. The
// empty vector still occupies its head block.
func vecBlocks(n int) int {
	if n <= vecHeadCells {
		return 1
	}

	return 1 + (n-vecHeadCells+vecTailCells-1)/vecTailCells
}

// vecLocate returns the block and byte offset of payload cell i, walking
// the chain from the head block.
func (h *Heap) vecLocate(head uint16, i int) (b uint16, off int, err error) {
	if i < vecHeadCells {
		return head, vecPayloadOff + i*CellSize, nil
	}

	i -= vecHeadCells
	b = head
	for {
		if b, err = h.Next(b); err != nil {
			return
		}

		if b == InvalidBlock {
			return InvalidBlock, 0, &ErrILSEQ{Type: ErrBadBlock, Off: int64(b)}
		}

		if i < vecTailCells {
			return b, blockHdrSize + i*CellSize, nil
		}

		i -= vecTailCells
	}
}

func (h *Heap) vecReadCell(b uint16, off int) (c Cell, err error) {
	bo, err := h.blockOff(b)
	if err != nil {
		return
	}

	v, err := h.mem.ReadU32(SegHeap, bo+off)
	return Cell(v), err
}

func (h *Heap) vecWriteCell(b uint16, off int, c Cell) (err error) {
	bo, err := h.blockOff(b)
	if err != nil {
		return
	}

	return h.mem.WriteU32(SegHeap, bo+off, uint32(c))
}

// VectorCreate builds a vector holding data and returns its tagged cell.
// Heap-tagged cells inside data are incref'd as they are written, so the
// vector shares structure with its sources. Returns NilCell when the heap
// cannot satisfy the allocation.
func (h *Heap) VectorCreate(data []Cell) (v Cell, err error) {
	head, err := h.vectorAlloc(len(data), data)
	if err != nil || head == InvalidBlock {
		return NilCell, err
	}

	return Tagged(TagVector, head, 0), nil
}

// vectorAlloc carves a chain for n payload cells, stores the length and the
// payload, and increfs heap-tagged payload cells. Callers retag the head.
func (h *Heap) vectorAlloc(n int, data []Cell) (head uint16, err error) {
	if n > maxVectorLen {
		return InvalidBlock, &ErrINVAL{"vector too long", n}
	}

	if head, err = h.allocBlocks(vecBlocks(n)); err != nil || head == InvalidBlock {
		return InvalidBlock, err
	}

	ho, err := h.blockOff(head)
	if err != nil {
		return InvalidBlock, err
	}

	if err = h.mem.WriteU16(SegHeap, ho+vecLenOff, uint16(n)); err != nil {
		return InvalidBlock, err
	}

	b, off := head, vecPayloadOff
	for i := 0; i < n; i++ {
		if off+CellSize > BlockSize {
			if b, err = h.Next(b); err != nil {
				return InvalidBlock, err
			}

			off = blockHdrSize
		}
		if err = h.vecWriteCell(b, off, data[i]); err != nil {
			return InvalidBlock, err
		}

		if data[i].IsHeap() {
			h.IncRef(data[i].Value())
		}
		off += CellSize
	}
	return head, nil
}

// maxVectorLen bounds a vector's logical length to what the u16 length
// field can express.
const maxVectorLen = 0xFFFF

// VectorLength returns the logical length of v.
func (h *Heap) VectorLength(v Cell) (n int, err error) {
	head, err := h.compoundHead(v)
	if err != nil {
		return
	}

	ho, err := h.blockOff(head)
	if err != nil {
		return
	}

	ln, err := h.mem.ReadU16(SegHeap, ho+vecLenOff)
	return int(ln), err
}

// compoundHead returns the head block of a heap-tagged cell.
func (h *Heap) compoundHead(v Cell) (head uint16, err error) {
	if !v.IsHeap() {
		return InvalidBlock, &ErrILSEQ{Type: ErrBadTag, Off: int64(v), Arg: int64(v.Tag())}
	}

	head = v.Value()
	if int(head) >= h.blocks {
		return InvalidBlock, &ErrILSEQ{Type: ErrBadBlock, Off: int64(head)}
	}

	return head, nil
}

// VectorGet returns payload cell i of v, or NilCell when i is out of range.
func (h *Heap) VectorGet(v Cell, i int) (c Cell, err error) {
	head, err := h.compoundHead(v)
	if err != nil {
		return NilCell, err
	}

	n, err := h.VectorLength(v)
	if err != nil {
		return NilCell, err
	}

	if i < 0 || i >= n {
		return NilCell, nil
	}

	b, off, err := h.vecLocate(head, i)
	if err != nil {
		return NilCell, err
	}

	return h.vecReadCell(b, off)
}

// VectorUpdate writes value at index i of v and returns the vector to use
// afterwards. Blocks on the path from the head to the target are cloned
// when shared, so every prior holder of v keeps an unchanged snapshot
// (persistent update). The overwritten cell's reference is released and the
// incoming value's acquired. Returns NilCell when a needed clone cannot be
// allocated.
func (h *Heap) VectorUpdate(v Cell, i int, value Cell) (nv Cell, err error) {
	head, err := h.compoundHead(v)
	if err != nil {
		return NilCell, err
	}

	n, err := h.VectorLength(v)
	if err != nil {
		return NilCell, err
	}

	if i < 0 || i >= n {
		return NilCell, &ErrINVAL{"Heap.VectorUpdate: index out of range", i}
	}

	// Copy-on-write along the path. Each shared block on the way to the
	// target is cloned and stitched to its (already private) predecessor,
	// with the duplicated payload references re-counted.
	b, prev := head, InvalidBlock
	cells, first := vecHeadCells, 0
	newHead := head
	for {
		nb, cerr := h.cowVectorBlock(b, prev, mathutil.Min(cells, n-first))
		if cerr != nil || nb == InvalidBlock {
			return NilCell, cerr
		}

		if prev == InvalidBlock {
			newHead = nb
		}
		if i < first+cells {
			// Target block reached.
			off := vecPayloadOff
			if prev != InvalidBlock {
				off = blockHdrSize
			}
			off += (i - first) * CellSize

			old, rerr := h.vecReadCell(nb, off)
			if rerr != nil {
				return NilCell, rerr
			}

			if err = h.vecWriteCell(nb, off, value); err != nil {
				return NilCell, err
			}

			if value.IsHeap() {
				h.IncRef(value.Value())
			}
			h.DecRef(old)
			return Tagged(v.Tag(), newHead, v.Meta()), nil
		}

		first += cells
		cells = vecTailCells
		prev = nb
		if b, err = h.Next(nb); err != nil {
			return NilCell, err
		}

		if b == InvalidBlock {
			panic("internal error")
		}
	}
}

// cowVectorBlock is CopyOnWrite plus payload re-counting: when a clone was
// made, the heap-tagged cells duplicated into it acquire one more share
// each, keeping cell level counts exact across block clones.
func (h *Heap) cowVectorBlock(b, prev uint16, count int) (use uint16, err error) {
	if use, err = h.CopyOnWrite(b, prev); err != nil || use == InvalidBlock || use == b {
		return
	}

	off := vecPayloadOff
	if prev != InvalidBlock {
		off = blockHdrSize
	}
	for i := 0; i < count; i++ {
		c, e := h.vecReadCell(use, off+i*CellSize)
		if e != nil {
			return InvalidBlock, e
		}

		if c.IsHeap() {
			h.IncRef(c.Value())
		}
	}
	return use, nil
}

// VectorElements drains v into a fresh slice. It is used by DictSet and by
// tests; the returned cells are unshared copies of the bit patterns, no
// references are acquired.
func (h *Heap) VectorElements(v Cell) (cells []Cell, err error) {
	n, err := h.VectorLength(v)
	if err != nil {
		return
	}

	head, err := h.compoundHead(v)
	if err != nil {
		return
	}

	cells = make([]Cell, 0, n)
	b, off := head, vecPayloadOff
	for i := 0; i < n; i++ {
		if off+CellSize > BlockSize {
			if b, err = h.Next(b); err != nil {
				return nil, err
			}

			off = blockHdrSize
		}
		c, e := h.vecReadCell(b, off)
		if e != nil {
			return nil, e
		}

		cells = append(cells, c)
		off += CellSize
	}
	return cells, nil
}

// registerCompoundCleanup installs the cleanup handlers for the compound
// heap types. A handler releases the references its payload holds; it walks
// only blocks this allocation owns exclusively, because cells in a shared
// suffix are still referenced through the surviving chain.
func registerCompoundCleanup(h *Heap) {
	h.RegisterCleanup(TagVector, vectorCleanup)
	h.RegisterCleanup(TagDict, vectorCleanup)
	h.RegisterCleanup(TagSequence, sequenceCleanup)
}

func vectorCleanup(h *Heap, head uint16) {
	ho, err := h.blockOff(head)
	if err != nil {
		h.Log(err)
		return
	}

	ln, err := h.mem.ReadU16(SegHeap, ho+vecLenOff)
	if err != nil {
		h.Log(err)
		return
	}

	n := int(ln)
	b, off := head, vecPayloadOff
	for i := 0; i < n; i++ {
		if off+CellSize > BlockSize {
			if b, err = h.Next(b); err != nil {
				h.Log(err)
				return
			}

			off = blockHdrSize
			refs, e := h.Refs(b)
			if e != nil {
				h.Log(e)
				return
			}

			if refs > 1 {
				// Shared suffix: its cells stay owned by the
				// surviving chain.
				return
			}
		}
		c, e := h.vecReadCell(b, off)
		if e != nil {
			h.Log(e)
			return
		}

		h.DecRef(c)
		off += CellSize
	}
}

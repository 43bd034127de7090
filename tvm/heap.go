// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The block heap: free list, allocation, chaining, reference counting,
// copy-on-write and type-dispatched cleanup.

package tvm

import (
	"github.com/cznic/mathutil"
)

const (
	// BlockSize is the size of one heap block in bytes.
	BlockSize = 64

	// BlockUsable is the payload capacity of one block.
	BlockUsable = BlockSize - blockHdrSize

	// InvalidBlock is the nil block index.
	InvalidBlock = uint16(0xFFFF)

	blockHdrSize = 4
	blockNextOff = 0 // next: u16
	blockRefsOff = 2 // refs: u16

	maxRefs = 0xFFFF
)

// A CleanupFunc releases the internal references an allocation of its tag
// holds. It runs exactly once, when the final reference to the allocation
// is released and before any block of the chain is returned to the free
// list, so it observes live structure. A handler MUST NOT re-enter DecRef
// on the block it is cleaning up.
type CleanupFunc func(h *Heap, head uint16)

/*

Heap manages the HEAP segment as an array of fixed size blocks.

Free blocks are organized in a single linked list threaded through the
blocks' next fields and rooted at the heap's free head. Initialisation links
all blocks in ascending index order.

An allocation is a chain of one or more blocks linked by next, terminated by
InvalidBlock. A block's refs field counts its owners: for the head of an
allocation the owners are the tagged cells referring to the allocation, for
any other block the owners are the blocks whose next field points at it.
Alloc MUST take exactly the blocks it returns from the free list; on
shortage it MUST leave the free list unchanged. A block is pushed back onto
the free list exactly when its owner count reaches zero; releasing a chain
is iterative, never host-stack recursive, because chains can be long.

CloneBlock and CopyOnWrite implement structural sharing: cloning a block
bulk-copies its 64 bytes and acquires a share of the original's tail, so
two chains may converge on a common suffix. The resulting block graph is a
DAG, never a cycle - nothing in the API constructs back-edges.

Reference counting faults (decrementing zero, overflowing the counter) are
reported through the Log callback and otherwise ignored; the allocator is
defensive. Structural corruption (bad block index, free list cycle) is an
error returned to the caller by operations which return an error; Available
and the chain release paths of DecRef and SetNext report it through Log.

*/
type Heap struct {
	mem    *Memory
	free   uint16 // head of the free list or InvalidBlock
	blocks int    // number of blocks the HEAP segment holds

	// Log receives defensive diagnostics (reference counting faults,
	// free list corruption). The heap ignores its return value. The
	// default keeps no state and discards every report.
	Log func(error) bool

	cleanup [MaxTag + 1]CleanupFunc
}

var nolog = func(error) bool { return false }

// NewHeap returns a new Heap over the HEAP segment of mem with all blocks
// linked into the free list in ascending index order.
func NewHeap(mem *Memory) (h *Heap, err error) {
	nblocks := mathutil.Min(mem.SegSize(SegHeap)/BlockSize, int(InvalidBlock))
	if nblocks == 0 {
		return nil, &ErrINVAL{"NewHeap: HEAP segment too small", mem.SegSize(SegHeap)}
	}

	h = &Heap{mem: mem, blocks: nblocks, Log: nolog}
	for i := 0; i < nblocks; i++ {
		next := uint16(i + 1)
		if i == nblocks-1 {
			next = InvalidBlock
		}
		if err = h.setNext(uint16(i), next); err != nil {
			return nil, err
		}

		if err = h.setRefs(uint16(i), 0); err != nil {
			return nil, err
		}
	}
	h.free = 0

	registerCompoundCleanup(h)
	return h, nil
}

// Blocks returns the total number of blocks the heap manages.
func (h *Heap) Blocks() int { return h.blocks }

// RegisterCleanup installs fn as the cleanup handler for allocations
// referenced through cells of the given tag. DecRef consults the handler
// only when the final reference is released, so a new heap-tagged type can
// be added without changing DecRef.
func (h *Heap) RegisterCleanup(tag Tag, fn CleanupFunc) {
	h.cleanup[tag] = fn
}

func (h *Heap) blockOff(b uint16) (off int, err error) {
	if int(b) >= h.blocks {
		return 0, &ErrILSEQ{Type: ErrBadBlock, Off: int64(b)}
	}

	return int(b) * BlockSize, nil
}

// Next returns the chain successor of block b.
func (h *Heap) Next(b uint16) (next uint16, err error) {
	off, err := h.blockOff(b)
	if err != nil {
		return InvalidBlock, err
	}

	return h.mem.ReadU16(SegHeap, off+blockNextOff)
}

func (h *Heap) setNext(b, next uint16) (err error) {
	off, err := h.blockOff(b)
	if err != nil {
		return
	}

	return h.mem.WriteU16(SegHeap, off+blockNextOff, next)
}

// Refs returns the owner count of block b.
func (h *Heap) Refs(b uint16) (refs uint16, err error) {
	off, err := h.blockOff(b)
	if err != nil {
		return
	}

	return h.mem.ReadU16(SegHeap, off+blockRefsOff)
}

func (h *Heap) setRefs(b, refs uint16) (err error) {
	off, err := h.blockOff(b)
	if err != nil {
		return
	}

	return h.mem.WriteU16(SegHeap, off+blockRefsOff, refs)
}

// blocksFor returns the number of blocks needed for size payload bytes.
func blocksFor(size int) int {
	return (size + BlockUsable - 1) / BlockUsable
}

// Alloc allocates storage for size payload bytes and returns the head block
// of a fresh chain, or InvalidBlock when size is zero or the free list
// cannot satisfy the request. On shortage no blocks are consumed - the free
// list is left exactly as it was.
func (h *Heap) Alloc(size int) (head uint16, err error) {
	return h.allocBlocks(blocksFor(size))
}

// allocBlocks takes exactly k blocks off the free list and links them into
// a chain with every block's owner count set to one.
func (h *Heap) allocBlocks(k int) (head uint16, err error) {
	if k <= 0 {
		return InvalidBlock, nil
	}

	// Walk first: the free list prefix is only detached once it is known
	// to be long enough, which makes shortage rollback trivial.
	b := h.free
	for n := 0; n < k; n++ {
		if b == InvalidBlock {
			return InvalidBlock, nil
		}

		if b, err = h.Next(b); err != nil {
			return InvalidBlock, err
		}
	}

	head = h.free
	h.free = b

	last := head
	for n := 0; n < k; n++ {
		if err = h.setRefs(last, 1); err != nil {
			return InvalidBlock, err
		}

		if n == k-1 {
			break
		}

		if last, err = h.Next(last); err != nil {
			return InvalidBlock, err
		}
	}
	if err = h.setNext(last, InvalidBlock); err != nil {
		return InvalidBlock, err
	}

	return head, nil
}

// IncRef acquires one more share of block b. It is a no-op on InvalidBlock.
// The counter saturates at 0xFFFF: an increment that would wrap is
// reported through Log and refused.
func (h *Heap) IncRef(b uint16) {
	if b == InvalidBlock {
		return
	}

	refs, err := h.Refs(b)
	if err != nil {
		h.Log(err)
		return
	}

	if refs == maxRefs {
		h.Log(&ErrREFS{Src: "Heap.IncRef: refcount overflow", Block: b, Refs: int(refs)})
		return
	}

	h.setRefs(b, refs+1)
}

// DecRef releases one share of the allocation referenced by c. When the
// owner count of the head reaches zero the tag's cleanup handler runs and
// the chain is returned to the free list. Cells which are not heap
// references are ignored, as is NIL.
func (h *Heap) DecRef(c Cell) {
	if !c.IsHeap() {
		return
	}

	h.DecRefBlock(uint16(uint32(c)&valMask), c.Tag())
}

// DecRefBlock is DecRef for a known (block, tag) pair. Decrementing a block
// whose owner count is already zero is reported through Log and otherwise
// ignored.
func (h *Heap) DecRefBlock(b uint16, tag Tag) {
	if b == InvalidBlock {
		return
	}

	refs, err := h.Refs(b)
	if err != nil {
		h.Log(err)
		return
	}

	if refs == 0 {
		h.Log(&ErrREFS{Src: "Heap.DecRefBlock: decrement of free block", Block: b, Refs: 0})
		return
	}

	if refs--; refs > 0 {
		h.setRefs(b, refs)
		return
	}

	// Final reference released. Cleanup observes live structure, so it
	// runs before any block of the chain hits the free list.
	if fn := h.cleanup[tag]; fn != nil {
		fn(h, b)
	}
	h.freeChain(b)
}

// freeChain returns the chain starting at b to the free list. The walk is
// iterative; a successor which is still co-owned by another chain is
// released (its owner count drops by one) and the walk stops there.
func (h *Heap) freeChain(b uint16) {
	for b != InvalidBlock {
		next, err := h.Next(b)
		if err != nil {
			h.Log(err)
			return
		}

		if err = h.pushFree(b); err != nil {
			h.Log(err)
			return
		}

		if next == InvalidBlock {
			return
		}

		refs, err := h.Refs(next)
		if err != nil {
			h.Log(err)
			return
		}

		switch {
		case refs == 0:
			h.Log(&ErrREFS{Src: "Heap.freeChain: unowned chain successor", Block: next, Refs: 0})
			return
		case refs > 1:
			// Shared suffix, kept alive by its other owner.
			h.setRefs(next, refs-1)
			return
		}
		b = next
	}
}

func (h *Heap) pushFree(b uint16) (err error) {
	if err = h.setRefs(b, 0); err != nil {
		return
	}

	if err = h.setNext(b, h.free); err != nil {
		return
	}

	h.free = b
	return
}

// SetNext rewires the chain successor of parent to child. The new pointer
// is written before the old chain is released, so re-entrant cleanup never
// observes the stale link. The parent's share of the old successor moves to
// the new one.
func (h *Heap) SetNext(parent, child uint16) (err error) {
	old, err := h.Next(parent)
	if err != nil {
		return
	}

	if old == child {
		return
	}

	if err = h.setNext(parent, child); err != nil {
		return
	}

	if old != InvalidBlock {
		refs, err := h.Refs(old)
		if err != nil {
			return err
		}

		switch {
		case refs == 0:
			h.Log(&ErrREFS{Src: "Heap.SetNext: release of free block", Block: old, Refs: 0})
		case refs > 1:
			h.setRefs(old, refs-1)
		default:
			h.freeChain(old)
		}
	}

	h.IncRef(child)
	return
}

// CloneBlock allocates a new block, bulk-copies the 64 bytes of b into it
// and acquires a share of b's successor: the clone and the original share
// the tail of the chain from there on.
func (h *Heap) CloneBlock(b uint16) (clone uint16, err error) {
	srcOff, err := h.blockOff(b)
	if err != nil {
		return InvalidBlock, err
	}

	if clone, err = h.allocBlocks(1); err != nil || clone == InvalidBlock {
		return InvalidBlock, err
	}

	dstOff, err := h.blockOff(clone)
	if err != nil {
		return InvalidBlock, err
	}

	src, err := h.mem.Resolve(SegHeap, srcOff)
	if err != nil {
		return InvalidBlock, err
	}

	dst, err := h.mem.Resolve(SegHeap, dstOff)
	if err != nil {
		return InvalidBlock, err
	}

	copy(dst[:BlockSize], src[:BlockSize])

	if err = h.setRefs(clone, 1); err != nil {
		return InvalidBlock, err
	}

	next, err := h.Next(clone)
	if err != nil {
		return InvalidBlock, err
	}

	h.IncRef(next)
	return clone, nil
}

// CopyOnWrite returns the block the caller may mutate in place of b. A
// block with a single owner is returned as is. A shared block is cloned;
// when prev is a valid block its next pointer is rewired to the clone and
// the caller's share of the original is released, so the surviving owners
// keep their snapshot. Returns InvalidBlock when the clone cannot be
// allocated.
func (h *Heap) CopyOnWrite(b, prev uint16) (use uint16, err error) {
	refs, err := h.Refs(b)
	if err != nil {
		return InvalidBlock, err
	}

	if refs <= 1 {
		return b, nil
	}

	if use, err = h.CloneBlock(b); err != nil || use == InvalidBlock {
		return InvalidBlock, err
	}

	if prev != InvalidBlock {
		// Raw rewire: the parent's share of b transfers to the clone,
		// which already carries its single owner count from CloneBlock.
		if err = h.setNext(prev, use); err != nil {
			return InvalidBlock, err
		}
	}

	// The caller gave up its share of the original.
	h.setRefs(b, refs-1)
	return use, nil
}

// Available returns the number of free bytes: the free block count times
// BlockSize, block headers included. The free list walk
// carries a visited-set cycle guard: corruption is reported through Log and
// the walk stops at the damage.
func (h *Heap) Available() (bytes int) {
	visited := make([]bool, h.blocks)
	count := 0
	for b := h.free; b != InvalidBlock; {
		if int(b) >= h.blocks {
			h.Log(&ErrILSEQ{Type: ErrBadBlock, Off: int64(b)})
			break
		}

		if visited[b] {
			h.Log(&ErrILSEQ{Type: ErrFreeListCycle, Off: int64(b)})
			break
		}

		visited[b] = true
		count++
		next, err := h.Next(b)
		if err != nil {
			h.Log(err)
			break
		}

		b = next
	}
	return count * BlockSize
}

// Check verifies that the free list and the chains reachable from roots
// cover the block space exactly once: no leaks, no double counting, no
// block both free and reachable. Problems are reported through log; Check
// returns nil only if it completed without detecting any.
func (h *Heap) Check(log func(error) bool, roots ...Cell) (err error) {
	if log == nil {
		log = nolog
	}

	seen := make([]bool, h.blocks)
	free := make([]bool, h.blocks)
	fail := func(e error) error {
		log(e)
		return e
	}

	for b := h.free; b != InvalidBlock; {
		if int(b) >= h.blocks {
			return fail(&ErrILSEQ{Type: ErrBadBlock, Off: int64(b)})
		}

		if seen[b] {
			return fail(&ErrILSEQ{Type: ErrFreeListCycle, Off: int64(b)})
		}

		refs, e := h.Refs(b)
		if e != nil {
			return fail(e)
		}

		if refs != 0 {
			return fail(&ErrILSEQ{Type: ErrExpFree, Off: int64(b), Arg: int64(refs)})
		}

		seen[b], free[b] = true, true
		if b, e = h.Next(b); e != nil {
			return fail(e)
		}
	}

	var walk func(b uint16) error
	walk = func(b uint16) error {
		for b != InvalidBlock {
			if int(b) >= h.blocks {
				return fail(&ErrILSEQ{Type: ErrBadBlock, Off: int64(b)})
			}

			if free[b] {
				return fail(&ErrILSEQ{Type: ErrOther, Off: int64(b), More: &ErrREFS{Src: "Heap.Check: reachable block on the free list", Block: b}})
			}

			if seen[b] {
				// Shared suffix: already accounted for.
				return nil
			}

			seen[b] = true
			next, e := h.Next(b)
			if e != nil {
				return fail(e)
			}

			b = next
		}
		return nil
	}

	for _, c := range roots {
		if !c.IsHeap() {
			continue
		}

		if err = walk(c.Value()); err != nil {
			return
		}
	}

	for i, ok := range seen {
		if !ok {
			err = &ErrILSEQ{Type: ErrOther, Off: int64(i), More: &ErrREFS{Src: "Heap.Check: leaked block", Block: uint16(i)}}
			log(err)
			return
		}
	}
	return nil
}

// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The fixed-region linear memory and its primitive accessors.

package tvm

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/cznic/mathutil"
)

// A Segment names one of the fixed regions the memory buffer is partitioned
// into at construction time.
type Segment int

// The memory segments.
const (
	SegData   Segment = iota // data stack
	SegReturn                // return stack
	SegCode                  // compiled bytecode
	SegDigest                // string digest backing storage
	SegDict                  // word dictionary entries
	SegHeap                  // block heap
	segCount
)

// String implements fmt.Stringer.
func (s Segment) String() string {
	switch s {
	case SegData:
		return "DATA-STACK"
	case SegReturn:
		return "RETURN-STACK"
	case SegCode:
		return "CODE"
	case SegDigest:
		return "STRING-DIGEST"
	case SegDict:
		return "DICT"
	case SegHeap:
		return "HEAP"
	}
	return "invalid segment"
}

// CellSize is the size of one cell in bytes.
const CellSize = 4

// Fixed segment sizes. The HEAP segment takes whatever remains of the
// buffer, so MinMemory is the smallest buffer which still leaves room for a
// useful heap.
const (
	dataStackSize   = 8 << 10
	returnStackSize = 4 << 10
	codeSize        = 16 << 10
	digestSize      = 8 << 10
	dictSize        = 12 << 10

	fixedSize = dataStackSize + returnStackSize + codeSize + digestSize + dictSize

	// MinMemory is the smallest acceptable memory buffer size.
	MinMemory = 64 << 10
)

type segDesc struct {
	off  int
	size int
}

// Memory is one contiguous byte buffer of fixed size, partitioned into
// named segments. Every runtime address is a pair (segment,
// offset-in-segment); nothing in the core holds raw buffer offsets.
type Memory struct {
	buf  []byte
	segs [segCount]segDesc
}

// NewMemory returns a new Memory of the given total size. The size must be
// at least MinMemory.
func NewMemory(size int) (m *Memory, err error) {
	if size < MinMemory {
		return nil, &ErrINVAL{"NewMemory: size below minimum", size}
	}

	m = &Memory{buf: make([]byte, size)}
	off := 0
	for _, p := range []struct {
		seg Segment
		sz  int
	}{
		{SegData, dataStackSize},
		{SegReturn, returnStackSize},
		{SegCode, codeSize},
		{SegDigest, digestSize},
		{SegDict, dictSize},
	} {
		m.segs[p.seg] = segDesc{off, p.sz}
		off += p.sz
	}
	m.segs[SegHeap] = segDesc{off, size - off}
	return m, nil
}

// Size returns the total size of the memory buffer in bytes.
func (m *Memory) Size() int { return len(m.buf) }

// SegSize returns the size of segment seg in bytes.
func (m *Memory) SegSize(seg Segment) int {
	if seg < 0 || seg >= segCount {
		return 0
	}

	return m.segs[seg].size
}

func (m *Memory) check(seg Segment, off, width int) (abs int, err error) {
	if seg < 0 || seg >= segCount {
		return 0, &ErrINVAL{"invalid segment", int(seg)}
	}

	d := m.segs[seg]
	if off < 0 || off+width > d.size {
		return 0, &ErrMEM{Type: ErrBounds, Seg: seg, Off: off, Width: width}
	}

	if width > 1 && off&(width-1) != 0 {
		return 0, &ErrMEM{Type: ErrAlignment, Seg: seg, Off: off, Width: width}
	}

	return d.off + off, nil
}

// ReadU8 reads the byte at (seg, off).
func (m *Memory) ReadU8(seg Segment, off int) (b byte, err error) {
	abs, err := m.check(seg, off, 1)
	if err != nil {
		return
	}

	return m.buf[abs], nil
}

// WriteU8 writes the byte at (seg, off).
func (m *Memory) WriteU8(seg Segment, off int, b byte) (err error) {
	abs, err := m.check(seg, off, 1)
	if err != nil {
		return
	}

	m.buf[abs] = b
	return
}

// ReadU16 reads the little-endian 16 bit value at (seg, off). The offset
// must be 2-aligned.
func (m *Memory) ReadU16(seg Segment, off int) (v uint16, err error) {
	abs, err := m.check(seg, off, 2)
	if err != nil {
		return
	}

	return binary.LittleEndian.Uint16(m.buf[abs:]), nil
}

// WriteU16 writes the little-endian 16 bit value at (seg, off). The offset
// must be 2-aligned.
func (m *Memory) WriteU16(seg Segment, off int, v uint16) (err error) {
	abs, err := m.check(seg, off, 2)
	if err != nil {
		return
	}

	binary.LittleEndian.PutUint16(m.buf[abs:], v)
	return
}

// ReadU32 reads the little-endian 32 bit value at (seg, off). The offset
// must be 4-aligned.
func (m *Memory) ReadU32(seg Segment, off int) (v uint32, err error) {
	abs, err := m.check(seg, off, 4)
	if err != nil {
		return
	}

	return binary.LittleEndian.Uint32(m.buf[abs:]), nil
}

// WriteU32 writes the little-endian 32 bit value at (seg, off). The offset
// must be 4-aligned.
func (m *Memory) WriteU32(seg Segment, off int, v uint32) (err error) {
	abs, err := m.check(seg, off, 4)
	if err != nil {
		return
	}

	binary.LittleEndian.PutUint32(m.buf[abs:], v)
	return
}

// ReadF32 reads the float at (seg, off) as its raw bit pattern re-assembled
// into a float32. NaN payloads survive because the value never passes
// through a float64 conversion.
func (m *Memory) ReadF32(seg Segment, off int) (f float32, err error) {
	v, err := m.ReadU32(seg, off)
	if err != nil {
		return
	}

	return math.Float32frombits(v), nil
}

// WriteF32 writes the float at (seg, off) as its raw bit pattern.
func (m *Memory) WriteF32(seg Segment, off int, f float32) (err error) {
	return m.WriteU32(seg, off, math.Float32bits(f))
}

// ReadCell reads the cell at cell index ix of seg.
func (m *Memory) ReadCell(seg Segment, ix int) (c Cell, err error) {
	v, err := m.ReadU32(seg, ix*CellSize)
	return Cell(v), err
}

// WriteCell writes the cell at cell index ix of seg.
func (m *Memory) WriteCell(seg Segment, ix int, c Cell) (err error) {
	return m.WriteU32(seg, ix*CellSize, uint32(c))
}

// Resolve returns the backing bytes of seg from off to the end of the
// segment. It is used for bulk block copies; all other access goes through
// the width-checked accessors.
func (m *Memory) Resolve(seg Segment, off int) (b []byte, err error) {
	abs, err := m.check(seg, off, 1)
	if err != nil {
		return
	}

	d := m.segs[seg]
	return m.buf[abs : d.off+d.size], nil
}

// WriteTo writes the whole memory image to w. It is a helper for in-memory
// image checkpoints; the core itself never persists anything.
func (m *Memory) WriteTo(w io.Writer) (n int64, err error) {
	wn, err := w.Write(m.buf)
	return int64(wn), err
}

// LoadImage replaces the memory content with b. The image must have exactly
// the size of the buffer.
func (m *Memory) LoadImage(b []byte) (err error) {
	if len(b) != len(m.buf) {
		return &ErrINVAL{"Memory.LoadImage: image size mismatch", len(b)}
	}

	copy(m.buf, b)
	return
}

// Image returns a copy of the whole memory buffer.
func (m *Memory) Image() []byte {
	b := make([]byte, len(m.buf))
	copy(b, m.buf)
	return b
}

// readCodeU16 reads a possibly unaligned little-endian 16 bit bytecode
// operand. Inline operands follow the opcode byte and carry no alignment
// guarantee, in contrast to cell accesses.
func (m *Memory) readCodeU16(off int) (v uint16, err error) {
	lo, err := m.ReadU8(SegCode, off)
	if err != nil {
		return
	}

	hi, err := m.ReadU8(SegCode, off+1)
	if err != nil {
		return
	}

	return uint16(lo) | uint16(hi)<<8, nil
}

// readCodeU32 reads a possibly unaligned little-endian 32 bit bytecode
// operand.
func (m *Memory) readCodeU32(off int) (v uint32, err error) {
	lo, err := m.readCodeU16(off)
	if err != nil {
		return
	}

	hi, err := m.readCodeU16(off + 2)
	if err != nil {
		return
	}

	return uint32(lo) | uint32(hi)<<16, nil
}

// writeCode copies a compiled byte stream into the CODE segment at off.
func (m *Memory) writeCode(b []byte, off int) (err error) {
	d := m.segs[SegCode]
	if off < 0 || off+len(b) > d.size {
		return &ErrMEM{Type: ErrBounds, Seg: SegCode, Off: off, Width: mathutil.Max(len(b), 1)}
	}

	copy(m.buf[d.off+off:], b)
	return
}

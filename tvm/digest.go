// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The string digest: an interner mapping strings to stable small integer
// handles.

package tvm

// A Digest interns strings and hands out stable small integer handles. The
// core consumes only this interface; the backing storage is the
// implementation's business. Intern is idempotent: interning the same
// string twice returns the same handle. Handles are stable for the
// lifetime of the VM.
type Digest interface {
	Intern(s string) (handle uint16, err error)
	Get(handle uint16) (s string, ok bool)
}

var _ Digest = &SegmentDigest{} // Ensure SegmentDigest is a Digest.

// SegmentDigest is a ready to use Digest backed by the STRING-DIGEST
// segment. Records are length-prefixed byte runs laid out back to back:
//
//	+--------+-- ... --+--------+-- ... --+
//	| len u16|  bytes  | len u16|  bytes  |
//	+--------+---------+--------+---------+
//
// The handle of a string is its record ordinal. The host-side index is a
// pure cache: it can be rebuilt from the segment alone, which is what
// Rebuild does after a memory image is restored.
type SegmentDigest struct {
	mem     *Memory
	wp      int            // next free byte in the segment
	offsets []int          // record offset by handle
	index   map[string]int // interned string -> handle
}

// NewSegmentDigest returns an empty SegmentDigest over the STRING-DIGEST
// segment of mem.
func NewSegmentDigest(mem *Memory) *SegmentDigest {
	return &SegmentDigest{mem: mem, index: map[string]int{}}
}

// Len returns the number of interned strings.
func (d *SegmentDigest) Len() int { return len(d.offsets) }

// Intern implements Digest.
func (d *SegmentDigest) Intern(s string) (handle uint16, err error) {
	if h, ok := d.index[s]; ok {
		return uint16(h), nil
	}

	rec := 2 + len(s)
	rec += rec & 1 // keep records 2-aligned for the length prefix
	if d.wp+rec > d.mem.SegSize(SegDigest) {
		return 0, &ErrINVAL{"SegmentDigest.Intern: segment full", len(s)}
	}

	if len(d.offsets) > int(maxRefs) {
		return 0, &ErrINVAL{"SegmentDigest.Intern: handle space exhausted", len(d.offsets)}
	}

	if err = d.mem.WriteU16(SegDigest, d.wp, uint16(len(s))); err != nil {
		return
	}

	for i := 0; i < len(s); i++ {
		if err = d.mem.WriteU8(SegDigest, d.wp+2+i, s[i]); err != nil {
			return
		}
	}

	h := len(d.offsets)
	d.offsets = append(d.offsets, d.wp)
	d.index[s] = h
	d.wp += rec
	return uint16(h), nil
}

// Get implements Digest.
func (d *SegmentDigest) Get(handle uint16) (s string, ok bool) {
	if int(handle) >= len(d.offsets) {
		return "", false
	}

	off := d.offsets[handle]
	n, err := d.mem.ReadU16(SegDigest, off)
	if err != nil {
		return "", false
	}

	b := make([]byte, n)
	for i := range b {
		c, err := d.mem.ReadU8(SegDigest, off+2+i)
		if err != nil {
			return "", false
		}

		b[i] = c
	}
	return string(b), true
}

// Rebuild reconstructs the host-side index from the segment content,
// assuming count records were interned. It is used after restoring a
// memory image.
func (d *SegmentDigest) Rebuild(count int) (err error) {
	d.offsets = d.offsets[:0]
	d.index = map[string]int{}
	d.wp = 0
	for h := 0; h < count; h++ {
		n, e := d.mem.ReadU16(SegDigest, d.wp)
		if e != nil {
			return e
		}

		rec := 2 + int(n)
		rec += rec & 1
		d.offsets = append(d.offsets, d.wp)
		s, ok := d.Get(uint16(h))
		if !ok {
			return &ErrILSEQ{Type: ErrOther, Off: int64(d.wp)}
		}

		d.index[s] = h
		d.wp += rec
	}
	return
}

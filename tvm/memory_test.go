// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tvm

import (
	"testing"
)

func TestNewMemorySize(t *testing.T) {
	if _, err := NewMemory(MinMemory - 1); err == nil {
		t.Fatal("accepted undersized buffer")
	}

	m, err := NewMemory(MinMemory)
	if err != nil {
		t.Fatal(err)
	}

	if g, e := m.Size(), MinMemory; g != e {
		t.Fatal(g, e)
	}

	total := 0
	for seg := Segment(0); seg < segCount; seg++ {
		total += m.SegSize(seg)
	}
	if g, e := total, MinMemory; g != e {
		t.Fatal(g, e)
	}

	if m.SegSize(SegHeap) < 16<<10 {
		t.Fatal("heap segment too small:", m.SegSize(SegHeap))
	}
}

func TestMemoryBounds(t *testing.T) {
	m, err := NewMemory(MinMemory)
	if err != nil {
		t.Fatal(err)
	}

	sz := m.SegSize(SegData)
	if _, err = m.ReadU8(SegData, sz); err == nil {
		t.Fatal("read past segment end")
	}

	if _, err = m.ReadU8(SegData, -1); err == nil {
		t.Fatal("read before segment start")
	}

	// A wide access must not cross the segment boundary even though the
	// neighbouring segment's bytes are right there.
	if _, err = m.ReadU32(SegData, sz-2); err == nil {
		t.Fatal("u32 read crossed segment boundary")
	}

	if err = m.WriteU16(SegData, sz-1, 0); err == nil {
		t.Fatal("u16 write crossed segment boundary")
	}

	e, ok := err.(*ErrMEM)
	if !ok {
		t.Fatalf("%T", err)
	}

	if e.Type != ErrBounds && e.Type != ErrAlignment {
		t.Fatal(e.Type)
	}
}

func TestMemoryAlignment(t *testing.T) {
	m, err := NewMemory(MinMemory)
	if err != nil {
		t.Fatal(err)
	}

	if _, err = m.ReadU16(SegHeap, 1); err == nil {
		t.Fatal("accepted misaligned u16 read")
	}

	if _, err = m.ReadU32(SegHeap, 2); err == nil {
		t.Fatal("accepted misaligned u32 read")
	}

	if err = m.WriteF32(SegHeap, 6, 1); err == nil {
		t.Fatal("accepted misaligned float write")
	}

	e, ok := err.(*ErrMEM)
	if !ok {
		t.Fatalf("%T", err)
	}

	if g, i := e.Type, ErrAlignment; g != i {
		t.Fatal(g, i)
	}

	if err = m.WriteU16(SegHeap, 2, 0xBEEF); err != nil {
		t.Fatal(err)
	}

	if err = m.WriteU32(SegHeap, 4, 0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryEndianness(t *testing.T) {
	m, err := NewMemory(MinMemory)
	if err != nil {
		t.Fatal(err)
	}

	if err = m.WriteU32(SegHeap, 0, 0x04030201); err != nil {
		t.Fatal(err)
	}

	for i, e := range []byte{1, 2, 3, 4} {
		g, err := m.ReadU8(SegHeap, i)
		if err != nil {
			t.Fatal(err)
		}

		if g != e {
			t.Fatalf("byte %d: %#x %#x", i, g, e)
		}
	}

	g16, err := m.ReadU16(SegHeap, 0)
	if err != nil {
		t.Fatal(err)
	}

	if g, e := g16, uint16(0x0201); g != e {
		t.Fatalf("%#x %#x", g, e)
	}
}

func TestMemoryResolve(t *testing.T) {
	m, err := NewMemory(MinMemory)
	if err != nil {
		t.Fatal(err)
	}

	b, err := m.Resolve(SegHeap, 0)
	if err != nil {
		t.Fatal(err)
	}

	if g, e := len(b), m.SegSize(SegHeap); g != e {
		t.Fatal(g, e)
	}

	b[0] = 0x5A
	g, err := m.ReadU8(SegHeap, 0)
	if err != nil {
		t.Fatal(err)
	}

	if g != 0x5A {
		t.Fatal("Resolve does not alias the segment")
	}

	if _, err = m.Resolve(SegHeap, m.SegSize(SegHeap)); err == nil {
		t.Fatal("resolved past segment end")
	}
}

func TestMemoryImageRoundTrip(t *testing.T) {
	m, err := NewMemory(MinMemory)
	if err != nil {
		t.Fatal(err)
	}

	if err = m.WriteU32(SegCode, 8, 0x12345678); err != nil {
		t.Fatal(err)
	}

	img := m.Image()
	if err = m.WriteU32(SegCode, 8, 0); err != nil {
		t.Fatal(err)
	}

	if err = m.LoadImage(img); err != nil {
		t.Fatal(err)
	}

	g, err := m.ReadU32(SegCode, 8)
	if err != nil {
		t.Fatal(err)
	}

	if g != 0x12345678 {
		t.Fatalf("%#x", g)
	}

	if err = m.LoadImage(img[1:]); err == nil {
		t.Fatal("accepted short image")
	}
}

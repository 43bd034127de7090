// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tvm

import (
	"testing"
)

func TestWordsDefineLookup(t *testing.T) {
	vm := newTestVM(t)
	w := vm.Words()

	square, err := vm.digest.Intern("square")
	if err != nil {
		t.Fatal(err)
	}

	twice, err := vm.digest.Intern("twice")
	if err != nil {
		t.Fatal(err)
	}

	if _, ok, err := w.Lookup(square); err != nil || ok {
		t.Fatal(ok, err)
	}

	if err = w.Define(square, Tagged(TagCode, 100, 0)); err != nil {
		t.Fatal(err)
	}

	if err = w.Define(twice, Tagged(TagCode, 200, 0)); err != nil {
		t.Fatal(err)
	}

	p, ok, err := w.Lookup(square)
	if err != nil || !ok {
		t.Fatal(ok, err)
	}

	if g, e := p, Tagged(TagCode, 100, 0); g != e {
		t.Fatal(g, e)
	}

	// Redefinition shadows: Lookup returns the most recent binding.
	if err = w.Define(square, Tagged(TagCode, 300, 0)); err != nil {
		t.Fatal(err)
	}

	if p, _, err = w.Lookup(square); err != nil {
		t.Fatal(err)
	}

	if g, e := p, Tagged(TagCode, 300, 0); g != e {
		t.Fatal(g, e)
	}
}

func TestWordsEntryShape(t *testing.T) {
	vm := newTestVM(t)
	w := vm.Words()

	name, err := vm.digest.Intern("x")
	if err != nil {
		t.Fatal(err)
	}

	if err = w.Define(name, Number(1)); err != nil {
		t.Fatal(err)
	}

	// LIST:3 [prev payload name] LINK:4 - the standard inline compound
	// shape, walkable from either end.
	head := w.Head()
	if !head.IsRef() {
		t.Fatal(head)
	}

	entry := int(head.Value())
	hdr, err := vm.mem.ReadCell(SegDict, entry)
	if err != nil {
		t.Fatal(err)
	}

	if g, e := hdr, Tagged(TagList, 3, 0); g != e {
		t.Fatal(g, e)
	}

	link, err := vm.mem.ReadCell(SegDict, entry+4)
	if err != nil {
		t.Fatal(err)
	}

	if g, e := link, Tagged(TagLink, 4, 0); g != e {
		t.Fatal(g, e)
	}

	prev, err := vm.mem.ReadCell(SegDict, entry+wordPrevCell)
	if err != nil {
		t.Fatal(err)
	}

	if !prev.IsNil() {
		t.Fatal(prev)
	}
}

func TestWordsMarkForget(t *testing.T) {
	vm := newTestVM(t)
	w := vm.Words()

	intern := func(s string) uint16 {
		h, err := vm.digest.Intern(s)
		if err != nil {
			t.Fatal(err)
		}

		return h
	}

	a, b, c := intern("a"), intern("b"), intern("c")
	if err := w.Define(a, Number(1)); err != nil {
		t.Fatal(err)
	}

	mark := w.Mark()
	if err := w.Define(b, Number(2)); err != nil {
		t.Fatal(err)
	}

	if err := w.Define(c, Number(3)); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := w.Lookup(c); !ok {
		t.Fatal("c not defined")
	}

	if err := w.Forget(mark); err != nil {
		t.Fatal(err)
	}

	// Everything defined since the mark is gone; earlier bindings
	// survive.
	for _, h := range []uint16{b, c} {
		if _, ok, err := w.Lookup(h); err != nil || ok {
			t.Fatal(h, ok, err)
		}
	}

	p, ok, err := w.Lookup(a)
	if err != nil || !ok {
		t.Fatal(ok, err)
	}

	if g, e := p, Number(1); g != e {
		t.Fatal(g, e)
	}

	// The reclaimed cells are reused by the next definition.
	if g, e := w.Mark(), mark; g != e {
		t.Fatal(g, e)
	}

	if err = w.Forget(mark + 1); err == nil {
		t.Fatal("accepted mark beyond write pointer")
	}
}

func TestWordsForgetAll(t *testing.T) {
	vm := newTestVM(t)
	w := vm.Words()

	name, err := vm.digest.Intern("gone")
	if err != nil {
		t.Fatal(err)
	}

	if err = w.Define(name, Number(1)); err != nil {
		t.Fatal(err)
	}

	if err = w.Forget(0); err != nil {
		t.Fatal(err)
	}

	if !w.Head().IsNil() {
		t.Fatal(w.Head())
	}

	if _, ok, _ := w.Lookup(name); ok {
		t.Fatal("binding survived a full rewind")
	}
}

// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The word dictionary: a single linked list of definitions stitched through
// cells of the DICT segment, with checkpoint/rewind.

package tvm

// Word dictionary storage convention. Each entry is an inline LIST of
// length 3 followed by its LINK terminator, 5 cells in total:
//
//	+--------+----------+---------+------+--------+
//	| LIST:3 | prev_ref | payload | name | LINK:4 |
//	+--------+----------+---------+------+--------+
//
// prev_ref is a DATA_REF to the previous entry's LIST header cell, or NIL
// for the first definition. name is a STRING cell carrying a digest handle.
// The head cell points at the most recently defined entry.
const (
	wordEntryCells = 5
	wordPrevCell   = 1
	wordValueCell  = 2
	wordNameCell   = 3
)

// Words is the word dictionary. Definitions only ever append; Forget
// rewinds the write pointer to an earlier Mark and relinks the head past
// every entry defined since.
type Words struct {
	mem  *Memory
	wp   int  // next free cell index in the DICT segment
	head Cell // DATA_REF to the newest entry, or NIL
}

// NewWords returns an empty word dictionary over the DICT segment of mem.
func NewWords(mem *Memory) *Words {
	return &Words{mem: mem, head: NilCell}
}

// Head returns the DATA_REF of the newest entry, or NIL.
func (w *Words) Head() Cell { return w.head }

// Define appends a definition binding name (a digest handle) to payload.
func (w *Words) Define(name uint16, payload Cell) (err error) {
	if (w.wp+wordEntryCells)*CellSize > w.mem.SegSize(SegDict) {
		return &ErrINVAL{"Words.Define: dictionary segment full", w.wp}
	}

	entry := [wordEntryCells]Cell{
		Tagged(TagList, 3, 0),
		w.head,
		payload,
		Tagged(TagString, name, 0),
		Tagged(TagLink, 4, 0),
	}
	for i, c := range entry {
		if err = w.mem.WriteCell(SegDict, w.wp+i, c); err != nil {
			return
		}
	}

	w.head = DataRef(uint16(w.wp))
	w.wp += wordEntryCells
	return
}

func (w *Words) entryCell(entry int, field int) (c Cell, err error) {
	return w.mem.ReadCell(SegDict, entry+field)
}

// Lookup returns the payload of the most recent binding of name, walking
// the list from the head. The second result reports whether a binding
// exists.
func (w *Words) Lookup(name uint16) (payload Cell, ok bool, err error) {
	for ref := w.head; !ref.IsNil(); {
		entry := int(ref.Value())
		nc, e := w.entryCell(entry, wordNameCell)
		if e != nil {
			return NilCell, false, e
		}

		if nc.Tag() == TagString && nc.Value() == name {
			payload, err = w.entryCell(entry, wordValueCell)
			return payload, err == nil, err
		}

		if ref, err = w.entryCell(entry, wordPrevCell); err != nil {
			return NilCell, false, err
		}
	}
	return NilCell, false, nil
}

// Mark captures the current write pointer as a checkpoint for Forget.
func (w *Words) Mark() int { return w.wp }

// RestoreState sets the head and write pointer directly. It exists for
// image restore; definitions otherwise only move through Define and
// Forget.
func (w *Words) RestoreState(head Cell, wp int) {
	w.head, w.wp = head, wp
}

// Forget rewinds the dictionary to the state captured by mark: the write
// pointer moves back and the head is relinked past every entry defined at
// or after the mark.
func (w *Words) Forget(mark int) (err error) {
	if mark < 0 || mark > w.wp {
		return &ErrINVAL{"Words.Forget: invalid mark", mark}
	}

	for ref := w.head; ; {
		if ref.IsNil() {
			w.head = NilCell
			break
		}

		entry := int(ref.Value())
		if entry < mark {
			w.head = ref
			break
		}

		if ref, err = w.entryCell(entry, wordPrevCell); err != nil {
			return
		}
	}
	w.wp = mark
	return
}

// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*

Package tvm implements the Tacit runtime core: a byte-addressable virtual
machine with a fixed-region linear memory, NaN-boxed 32 bit tagged cells, a
reference-counted block heap with copy-on-write, compound data structures
(vectors, sequences, dictionaries) layered on the heap, and a two-stack
bytecode interpreter.

The terms MUST or MUST NOT, if/where used in the documentation of this
package, written in all caps as seen here, are a requirement for any possible
alternative implementations aiming for compatibility with this one.

Memory

All runtime state lives in one contiguous byte buffer, partitioned at
construction time into named segments:

	+------------+--------------+------+---------------+------+------+
	| DATA-STACK | RETURN-STACK | CODE | STRING-DIGEST | DICT | HEAP |
	+------------+--------------+------+---------------+------+------+

Every address inside the runtime is a pair (segment, offset-in-segment).
16 bit accesses MUST be 2-aligned, 32 bit and float accesses MUST be
4-aligned. Byte order is little-endian.

Cells

A cell is a 32 bit IEEE-754 float bit pattern. A cell is either a number (any
non-NaN float, or the canonical quiet NaN 0x7FC00000) or a tagged value - a
quiet NaN whose mantissa encodes a 6 bit tag and a 16 bit payload, with an
optional meta bit in the sign:

	 31  30......23  22  21....16  15.........0
	+---+----------+---+---------+-------------+
	| M | 11111111 | 1 |   TAG   |    VALUE    |
	+---+----------+---+---------+-------------+

The NaN-ness of tagged cells is preserved across the float pipe because the
runtime moves cells as raw 32 bit loads and stores, never through a wider
float conversion.

Blocks

The HEAP segment is divided into 64 byte blocks. Every block has a 4 byte
header:

	+--------+--------+-- ... --+
	| 0...1  | 2...3  | 4...63  |
	+--------+--------+---------+
	|  next  |  refs  | payload |
	+--------+--------+---------+

An allocation is a chain of blocks linked through `next` and terminated by
the invalid block index. `refs` counts the owners of a block: for the head
of an allocation the owners are the tagged cells referring to it, for any
other block the owners are the blocks whose `next` points at it. A block is
returned to the free list exactly when its owner count reaches zero.
Copy-on-write is the sole mechanism for safe update of shared structures:
any write that would mutate a block with more than one owner clones the
block first, so prior readers keep an immutable snapshot.

Out of memory is a non-fatal, observable outcome: Alloc returns InvalidBlock
and every compound constructor built on it returns NilCell. Accessing an
invalid block index is a logic error and fails loudly.

Interpreter

The VM executes a flat byte stream of opcodes with inline operands from the
CODE segment. Opcodes 0..127 are builtins dispatched through a handler
table; a first byte with the high bit set combines with the following byte
into a 14 bit user function index. The data stack and the return stack are
memory segments of their own; SP and RSP always point at the next free cell
and overflow and underflow are detected before any mutation.

CallCompiled is the only mechanism by which the host calls into compiled
code. It pushes the caller's IP and BP on the return stack and runs the
dispatch loop until control returns to the saved IP, which composes with the
Exit opcode to yield clean return semantics at any re-entrancy depth.

*/
package tvm

// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*

Package tacit is the embedding facade of the Tacit runtime. It wires the
core VM together with option handling, environment defaults and in-memory
image checkpoints, so a host (typically a REPL or a batch runner) deals
with one value and a handful of methods.

The core itself takes every operation an explicit VM; this package holds
the process-wide convenience instance for hosts which want one.

*/
package tacit

import (
	"os"
	"sync"

	"github.com/tacit-lang/tacit/tvm"
)

// Machine is a Tacit VM bundled with its construction options.
type Machine struct {
	// VM is the underlying virtual machine. It is exported: the facade
	// adds convenience, it does not hide the core.
	VM *tvm.VM

	opts *Options
}

// New returns a new Machine. A nil opts selects the defaults.
func New(opts *Options) (m *Machine, err error) {
	o, err := opts.check()
	if err != nil {
		return
	}

	vm, err := tvm.NewVM(o.MemSize)
	if err != nil {
		return
	}

	if o.Log != nil {
		vm.Heap().Log = o.Log
	}
	if o.Debug {
		vm.Debug = true
		vm.Trace = os.Stderr
	}
	return &Machine{VM: vm, opts: o}, nil
}

// Run loads a compiled byte stream at CODE offset 0 and executes it to
// completion. The first error unwinds with the opcode context and a stack
// snapshot; the stacks stay inspectable through Stack.
func (m *Machine) Run(code []byte) (err error) {
	return m.VM.ExecuteProgram(code)
}

// Stack returns a copy of the data stack, bottom first.
func (m *Machine) Stack() []tvm.Cell {
	return m.VM.GetStackData()
}

// Reset returns the machine to its initial execution state. Heap, digest
// and dictionary content survive; use RestoreImage to roll those back.
func (m *Machine) Reset() { m.VM.Reset() }

var (
	defaultOnce sync.Once
	defaultM    *Machine
	defaultErr  error
)

// Default returns the process-wide Machine, creating it on first use with
// FromEnv options. It is a convenience for REPL-style hosts; nothing in
// the runtime requires it.
func Default() (m *Machine, err error) {
	defaultOnce.Do(func() {
		defaultM, defaultErr = New(FromEnv())
	})
	return defaultM, defaultErr
}

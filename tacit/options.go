// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tacit

import (
	"github.com/xyproto/env/v2"

	"github.com/tacit-lang/tacit/tvm"
)

// Options are passed to New to amend the behavior of the machine. The
// compatibility promise is the same as of struct types in the Go standard
// library - changes can be made only by adding new exported fields.
type Options struct {
	// MemSize is the total size of the VM memory buffer in bytes. Zero
	// selects DefaultMemSize; anything below tvm.MinMemory is an error.
	MemSize int

	// Debug enables per-instruction tracing.
	Debug bool

	// Log receives defensive heap diagnostics (reference counting
	// faults, free list corruption). Nil keeps the core's default,
	// which discards them.
	Log func(error) bool
}

// DefaultMemSize is the memory buffer size used when Options.MemSize is
// zero.
const DefaultMemSize = 256 << 10

// Environment variables read by FromEnv.
const (
	envMemSize = "TACIT_MEM"
	envDebug   = "TACIT_DEBUG"
)

// FromEnv returns Options with defaults taken from the environment:
// TACIT_MEM overrides the memory size, TACIT_DEBUG enables tracing.
func FromEnv() *Options {
	return &Options{
		MemSize: env.Int(envMemSize, DefaultMemSize),
		Debug:   env.Bool(envDebug),
	}
}

func (o *Options) check() (r *Options, err error) {
	r = &Options{MemSize: DefaultMemSize}
	if o != nil {
		*r = *o
	}
	if r.MemSize == 0 {
		r.MemSize = DefaultMemSize
	}
	if r.MemSize < tvm.MinMemory {
		return nil, &tvm.ErrINVAL{Src: "tacit.Options: MemSize below minimum", Val: r.MemSize}
	}

	return r, nil
}

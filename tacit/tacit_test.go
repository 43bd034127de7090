// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tacit

import (
	"encoding/binary"
	"math"
	"os"
	"testing"

	"github.com/tacit-lang/tacit/tvm"
)

// prog assembles `a b add abort` for two literals.
func prog(a, b float32) []byte {
	code := []byte{tvm.OpLitNumber}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], math.Float32bits(a))
	code = append(code, buf[:]...)
	code = append(code, tvm.OpLitNumber)
	binary.LittleEndian.PutUint32(buf[:], math.Float32bits(b))
	code = append(code, buf[:]...)
	return append(code, tvm.OpAdd, tvm.OpAbort)
}

func TestNewDefaults(t *testing.T) {
	m, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}

	if g, e := m.VM.Memory().Size(), DefaultMemSize; g != e {
		t.Fatal(g, e)
	}
}

func TestNewRejectsTinyMemory(t *testing.T) {
	if _, err := New(&Options{MemSize: 1024}); err == nil {
		t.Fatal("accepted undersized memory")
	}
}

func TestRun(t *testing.T) {
	m, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}

	if err = m.Run(prog(2, 3)); err != nil {
		t.Fatal(err)
	}

	s := m.Stack()
	if len(s) != 1 || s[0] != tvm.Number(5) {
		t.Fatal(s)
	}

	m.Reset()
	if g, e := len(m.Stack()), 0; g != e {
		t.Fatal(g, e)
	}
}

func TestRunErrorKeepsStack(t *testing.T) {
	m, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}

	// add on an empty stack underflows; the error comes back as an
	// ErrVM and the machine remains inspectable.
	code := []byte{tvm.OpAdd, tvm.OpAbort}
	if err = m.Run(code); err == nil {
		t.Fatal("underflow accepted")
	}

	if _, ok := err.(*tvm.ErrVM); !ok {
		t.Fatalf("%T", err)
	}
}

func TestFromEnv(t *testing.T) {
	defer os.Unsetenv("TACIT_MEM")
	defer os.Unsetenv("TACIT_DEBUG")

	os.Setenv("TACIT_MEM", "131072")
	os.Setenv("TACIT_DEBUG", "1")
	o := FromEnv()
	if g, e := o.MemSize, 131072; g != e {
		t.Fatal(g, e)
	}

	if !o.Debug {
		t.Fatal("TACIT_DEBUG not honoured")
	}

	os.Unsetenv("TACIT_MEM")
	o = FromEnv()
	if g, e := o.MemSize, DefaultMemSize; g != e {
		t.Fatal(g, e)
	}
}

func TestDefaultSingleton(t *testing.T) {
	a, err := Default()
	if err != nil {
		t.Fatal(err)
	}

	b, err := Default()
	if err != nil {
		t.Fatal(err)
	}

	if a != b {
		t.Fatal("Default returned two machines")
	}
}

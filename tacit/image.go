// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// In-memory image checkpoints. An image captures the whole memory buffer
// plus the registers and host-side write pointers; the VM's user function
// table is not part of it.
// Images are plain byte slices; whether one ever reaches a disk is the
// embedder's business.

package tacit

import (
	"encoding/binary"

	"github.com/cznic/zappy"

	"github.com/tacit-lang/tacit/tvm"
)

// Image header layout, little-endian u32 fields:
//
//	+-------+----+----+-----+----+------+----+-----------+---------+
//	| magic | ip | sp | rsp | bp | head | wp | digestLen | memSize |
//	+-------+----+----+-----+----+------+----+-----------+---------+
//
// followed by the zappy-compressed memory buffer.
const (
	imgMagic  = 0x74c17a40
	imgFields = 9
	imgHdrLen = imgFields * 4
)

// SaveImage returns a checkpoint of the machine. The memory buffer is
// zappy-compressed; the registers, the dictionary head and the digest
// record count ride in a fixed header so RestoreImage can rebuild the
// host-side caches.
func (m *Machine) SaveImage() (img []byte, err error) {
	vm := m.VM
	d, ok := vm.Digest().(*tvm.SegmentDigest)
	if !ok {
		return nil, &tvm.ErrINVAL{Src: "Machine.SaveImage: digest does not support imaging", Val: vm.Digest()}
	}

	mem := vm.Memory().Image()
	z, err := zappy.Encode(nil, mem)
	if err != nil {
		return
	}

	img = make([]byte, imgHdrLen, imgHdrLen+len(z))
	for i, v := range []uint32{
		imgMagic,
		uint32(vm.IP()),
		uint32(vm.SP()),
		uint32(vm.RSP()),
		uint32(vm.BP()),
		uint32(vm.Words().Head()),
		uint32(vm.Words().Mark()),
		uint32(d.Len()),
		uint32(len(mem)),
	} {
		binary.LittleEndian.PutUint32(img[4*i:], v)
	}
	return append(img, z...), nil
}

// RestoreImage rolls the machine back to a checkpoint taken by SaveImage.
// The memory buffer, registers, dictionary and digest all return to their
// captured state; the image must come from a machine of the same memory
// size.
func (m *Machine) RestoreImage(img []byte) (err error) {
	if len(img) < imgHdrLen || binary.LittleEndian.Uint32(img) != imgMagic {
		return &tvm.ErrINVAL{Src: "Machine.RestoreImage: not an image", Val: len(img)}
	}

	vm := m.VM
	d, ok := vm.Digest().(*tvm.SegmentDigest)
	if !ok {
		return &tvm.ErrINVAL{Src: "Machine.RestoreImage: digest does not support imaging", Val: vm.Digest()}
	}

	var f [imgFields]uint32
	for i := range f {
		f[i] = binary.LittleEndian.Uint32(img[4*i:])
	}
	if int(f[8]) != vm.Memory().Size() {
		return &tvm.ErrINVAL{Src: "Machine.RestoreImage: memory size mismatch", Val: int(f[8])}
	}

	mem, err := zappy.Decode(nil, img[imgHdrLen:])
	if err != nil {
		return
	}

	if err = vm.Memory().LoadImage(mem); err != nil {
		return
	}

	vm.RestoreState(int(f[1]), int(f[2]), int(f[3]), int(f[4]))
	vm.Words().RestoreState(tvm.Cell(f[5]), int(f[6]))
	return d.Rebuild(int(f[7]))
}

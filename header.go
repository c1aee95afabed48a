// Copyright 2024 The first-fit-heap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Boundary-tag layout (§4.2). Every conversion between a block's Address
// and Go pointers lives in this file; other files go through the block
// helper type defined here (region.go separately derives a region's base
// Address from its []byte). Safety precondition for every
// function below: addr must lie inside [region.Base(), region.End()) of a
// region currently owned by a live Heap, and the Heap's backing storage
// (a FixedRegion's buf/raw, or whatever a caller-supplied Region keeps
// alive) must not be collected or moved for as long as any Address derived
// from it is retained — true of Go's current non-moving allocator for
// heap objects kept reachable.
package heap

import (
	"math/bits"
	"unsafe"
)

const (
	flagPrevFree = uintptr(1) << (bits.UintSize - 1)
	flagThisFree = uintptr(1) << (bits.UintSize - 2)
	sizeMask     = ^(flagPrevFree | flagThisFree)

	// maxBlockSize is the largest payload size the packed size+flags
	// word can represent — a consequence of stealing its top two bits
	// for flags (§4.2, §9: "this limits maximum block size to a word
	// minus two bits; acceptable for all practical heap sizes").
	maxBlockSize = sizeMask
)

// canaryValue is computed at run time, with a variable shift count, not
// declared as a constant expression, so the literal 0x13371337 (which fits
// in 32 bits) can be shifted into the top half of a 64-bit word without
// overflowing a 32-bit uintptr at compile time: a run-time shift count >=
// the operand's bit width yields 0 per the Go spec, so on 32-bit platforms
// this is just 0x13371337, and on 64-bit it is the original's
// 0x1337133713371337.
var canaryShift uint = 32

var canaryValue = uintptr(0x13371337)<<canaryShift | uintptr(0x13371337)

// header is the fixed-size metadata present at the lowest address of every
// block, used or free. Its Go struct size is not necessarily the layout's
// effective header size: see Heap.headerSize.
type header struct {
	sizeAndFlags uintptr
	canary       uintptr
}

const rawHeaderSize = unsafe.Sizeof(header{})
const footerSize = unsafe.Sizeof(uintptr(0))
const nextFieldSize = unsafe.Sizeof(Address(0))

func (h *header) size() uintptr { return h.sizeAndFlags & sizeMask }

func (h *header) setSize(s uintptr) {
	if s&sizeMask != s {
		panic("heap: requested block size does not fit in the packed size field")
	}
	h.sizeAndFlags = (h.sizeAndFlags &^ sizeMask) | (s & sizeMask)
}

func (h *header) thisFree() bool { return h.sizeAndFlags&flagThisFree != 0 }

func (h *header) setThisFree(v bool) {
	if v {
		h.sizeAndFlags |= flagThisFree
	} else {
		h.sizeAndFlags &^= flagThisFree
	}
}

func (h *header) prevFree() bool { return h.sizeAndFlags&flagPrevFree != 0 }

func (h *header) setPrevFree(v bool) {
	if v {
		h.sizeAndFlags |= flagPrevFree
	} else {
		h.sizeAndFlags &^= flagPrevFree
	}
}

func (h *header) canaryAlive() bool { return h.canary == canaryValue }

func (h *header) setCanary() { h.canary = canaryValue }

// block is a header address paired with the heap it belongs to, giving
// every layout computation (payload, footer, following/preceding block)
// access to the heap's region and effective header size without threading
// both through every call.
type block struct {
	heap *Heap
	addr Address
}

func (b block) header() *header { return (*header)(unsafe.Pointer(b.addr)) }

// payload returns the address of the first payload byte: where a used
// block's caller-visible data starts, and where a free block's next link
// lives.
func (b block) payload() Address { return b.addr + Address(b.heap.headerSize) }

// end returns the address immediately past this block, i.e. the address of
// the following block, or the region's end if this is the last block.
func (b block) end() Address {
	return b.addr + Address(b.heap.headerSize) + Address(b.header().size())
}

// next returns a pointer to the free-list link field, valid to dereference
// only while this block is free (it overlaps the start of the payload).
func (b block) next() *Address { return (*Address)(unsafe.Pointer(b.payload())) }

// footerAddr returns the address of this (free) block's footer.
func (b block) footerAddr() Address { return b.end() - Address(footerSize) }

// footer returns a pointer to this (free) block's footer word, valid to
// dereference only while this block is free.
func (b block) footer() *uintptr { return (*uintptr)(unsafe.Pointer(b.footerAddr())) }

// following returns the block physically adjacent to, and after, b, or
// (zero value, false) if b is the last block in the region.
func (b block) following() (block, bool) {
	e := b.end()
	if e >= b.heap.region.End() {
		return block{}, false
	}
	return block{b.heap, e}, true
}

// preceding returns the block physically adjacent to, and before, b, using
// b's prev_free flag and the predecessor's footer — O(1), per §4.2. It
// returns (zero value, false) whenever prev_free is false, including for
// the first block in the region.
func (b block) preceding() (block, bool) {
	if !b.header().prevFree() {
		return block{}, false
	}
	footerAddr := b.addr - Address(footerSize)
	prevSize := *(*uintptr)(unsafe.Pointer(footerAddr))
	prevAddr := b.addr - Address(b.heap.headerSize) - Address(prevSize)
	return block{b.heap, prevAddr}, true
}

// fullBytesAt builds a []byte view of length and capacity capLen starting
// at addr, without a Go allocation — the modern unsafe.Slice replacement
// for the reflect.SliceHeader trick modernc.org/memory's Malloc/
// UnsafeMalloc use for the same purpose. Callers reslice down to the
// requested length; keeping the full block capacity visible in cap(...) is
// what lets Free recover it (mirrors modernc.org/memory.Free's own
// `b = b[:cap(b)]`).
func fullBytesAt(addr Address, capLen uintptr) []byte {
	if addr == 0 || capLen == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(capLen))
}

// uintptrOf returns the address of the byte pointed to by p, the inverse of
// fullBytesAt's (*byte)(unsafe.Pointer(addr)).
func uintptrOf(p *byte) uintptr { return uintptr(unsafe.Pointer(p)) }

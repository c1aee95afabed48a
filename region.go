// Copyright 2024 The first-fit-heap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import "unsafe"

// Address is a byte address inside, or one past the end of, a Region.
// Payload slices returned by Allocate are backed by memory at such an
// address, and Free recovers a block's header from one. The zero Address
// never occurs inside a live region (Go never hands out a zero-address
// allocation), so it doubles as the "no block"/"empty list" sentinel
// throughout the free-list engine.
type Address uintptr

// Region describes one contiguous range of memory the heap is allowed to
// manage: [Base, End), with every block's payload address required to be a
// multiple of Alignment. The region's backing storage is owned by the
// caller and must outlive the Heap built over it; the heap performs no I/O
// through a Region beyond reading these four values (§4.1).
type Region interface {
	Base() Address
	Size() uintptr
	End() Address
	Alignment() uintptr
}

// FixedRegion is a Region backed by a single, already-allocated []byte. It
// is the only Region implementation this package provides; callers needing
// a region backed by, say, a memory-mapped page need only implement the
// four-method Region interface themselves (§9: "best modelled as a small
// interface... the heap holds a reference with lifetime >= heap").
type FixedRegion struct {
	// raw is retained even when buf is a sub-slice of it (see
	// NewAlignedRegion) purely to keep the backing array reachable: base
	// is derived from buf's address via unsafe.Pointer and must remain
	// valid for the FixedRegion's lifetime.
	raw       []byte
	buf       []byte
	base      Address
	size      uintptr
	alignment uintptr
}

// NewRegion wraps buf, whose first byte must already satisfy alignment, as
// a Region. Use NewAlignedRegion when the caller has no particular
// alignment guarantee on buf's backing array.
func NewRegion(buf []byte, alignment uintptr) (*FixedRegion, error) {
	if len(buf) == 0 {
		return nil, &InvalidRegionError{Reason: "region size must be > 0"}
	}
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return nil, &InvalidRegionError{Reason: "alignment must be a power of two"}
	}
	if alignment < unsafe.Sizeof(uintptr(0)) {
		return nil, &InvalidRegionError{Reason: "alignment must be >= the platform word size"}
	}
	base := Address(uintptr(unsafe.Pointer(&buf[0])))
	if uintptr(base)%alignment != 0 {
		return nil, &InvalidRegionError{Reason: "buf is not aligned to the requested alignment"}
	}
	return &FixedRegion{raw: buf, buf: buf, base: base, size: uintptr(len(buf)), alignment: alignment}, nil
}

// NewAlignedRegion allocates a fresh buffer of the given size, aligned to
// alignment, and returns it as a Region. It over-allocates by up to
// alignment-1 bytes and carves the aligned sub-slice out of it, giving an
// aligned buffer without a platform-specific allocator.
func NewAlignedRegion(size, alignment uintptr) (*FixedRegion, error) {
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return nil, &InvalidRegionError{Reason: "alignment must be a power of two"}
	}
	if alignment < unsafe.Sizeof(uintptr(0)) {
		return nil, &InvalidRegionError{Reason: "alignment must be >= the platform word size"}
	}
	if size == 0 {
		return nil, &InvalidRegionError{Reason: "region size must be > 0"}
	}

	raw := make([]byte, size+alignment-1)
	rawBase := uintptr(unsafe.Pointer(&raw[0]))
	alignedBase := (rawBase + alignment - 1) &^ (alignment - 1)
	off := alignedBase - rawBase
	buf := raw[off : off+size]

	return &FixedRegion{
		raw:       raw,
		buf:       buf,
		base:      Address(alignedBase),
		size:      size,
		alignment: alignment,
	}, nil
}

// Base implements Region.
func (r *FixedRegion) Base() Address { return r.base }

// Size implements Region.
func (r *FixedRegion) Size() uintptr { return r.size }

// End implements Region.
func (r *FixedRegion) End() Address { return r.base + Address(r.size) }

// Alignment implements Region.
func (r *FixedRegion) Alignment() uintptr { return r.alignment }

// roundUp rounds n up to the next multiple of m. m must be a power of two —
// the same idiom as the original's `align`, carried over unchanged.
func roundUp(n, m uintptr) uintptr { return (n + m - 1) &^ (m - 1) }

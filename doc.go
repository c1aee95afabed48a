// Copyright 2024 The first-fit-heap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*

Package heap implements a first-fit, coalescing, boundary-tag heap allocator
over a single, externally supplied, contiguous memory region.

The allocator is a []byte (or raw memory-mapped) region manager suitable for
a freestanding environment — a bootloader, a microkernel, an embedded system
— where no underlying allocator exists to delegate to. It serves allocation
requests of arbitrary byte size at a configurable power-of-two alignment,
recycles freed blocks in place, and merges adjacent free blocks to fight
fragmentation.

Region

A Region describes the memory the heap is allowed to manage: a base address,
a size in bytes, and an alignment every returned payload pointer must satisfy.
FixedRegion is the only implementation provided; it wraps a []byte, either
caller-owned (NewRegion) or allocated by the package (NewAlignedRegion).

Blocks

Every block carries a header at its lowest address. Free blocks additionally
carry a footer at their highest address and a free-list link field in their
payload area, forming the classic boundary-tag layout: the footer lets a
block's successor find the block's header in O(1) without scanning, and a
per-header prev_free flag avoids reading that footer unless the physical
predecessor is actually free.

Concurrency

A Heap is single-threaded and non-reentrant. No method blocks, suspends, or
is safe to call concurrently with any other method on the same Heap; callers
that need concurrent access must serialize externally. Do not call Allocate
or Free on a Heap from within a Config.OnCorruption callback triggered by
that same Heap — corruption leaves the heap's internal state undefined.

*/
package heap

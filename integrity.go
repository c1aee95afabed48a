// Copyright 2024 The first-fit-heap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// IntegrityCheck, the out-of-band validation sweep (§7): a scan over every
// block that cross-checks a bitmap of what the free list itself
// claims is free against what the physical block layout reports, built from
// github.com/bits-and-blooms/bitset.
package heap

import "github.com/bits-and-blooms/bitset"

// IntegrityCheck walks the entire region twice and the free list once,
// verifying every invariant in §3: canaries are alive, every block's size is a multiple of
// the region's alignment and, for free blocks, at least the minimum block
// size, the two free/used views of each block (the thisFree flag and
// free-list membership) agree, prevFree flags match reality, footers of
// free blocks match their headers, and no two physically adjacent blocks
// are both free. It panics with a *CorruptionError, the same as a failed
// check during Free, on the first violation found; a call that
// returns normally found none.
//
// IntegrityCheck is O(n) in the number of blocks and is not run implicitly
// by Allocate or Free — callers in a freestanding environment are expected
// to schedule it themselves, e.g. from an idle task or a watchdog tick.
func (h *Heap) IntegrityCheck() {
	free := bitset.New(0)
	index := make(map[Address]uint)

	i := uint(0)
	for cur := h.region.Base(); cur < h.region.End(); i++ {
		b := block{h, cur}
		hdr := b.header()

		if !hdr.canaryAlive() {
			h.corrupt(cur, "dead canary during integrity check")
		}
		if hdr.size() == 0 {
			h.corrupt(cur, "zero-size block during integrity check")
		}
		if hdr.size()%h.region.Alignment() != 0 {
			h.corrupt(cur, "block size is not a multiple of the region's alignment")
		}
		if hdr.thisFree() && hdr.size() < h.minBlockSize {
			h.corrupt(cur, "free block is smaller than the minimum block size")
		}
		end := b.end()
		if end <= cur || end > h.region.End() {
			h.corrupt(cur, "block extends past the end of the region")
		}

		index[cur] = i
		if hdr.thisFree() {
			free.Set(i)
		}
		cur = end
	}

	// Cross-check: walk the free list and confirm every address on it is
	// a block boundary the physical sweep above actually saw, marked
	// free, and not visited twice (a cycle or a fork in the list would
	// otherwise go undetected).
	seen := bitset.New(0)
	prevAddr := Address(0)
	for cur := h.head; cur != 0; {
		i, ok := index[cur]
		if !ok {
			h.corrupt(cur, "free list references an address that is not a block boundary")
		}
		if seen.Test(i) {
			h.corrupt(cur, "free list contains a cycle")
		}
		seen.Set(i)
		if !free.Test(i) {
			h.corrupt(cur, "free list entry's block is not marked free")
		}
		if prevAddr != 0 && cur <= prevAddr {
			h.corrupt(cur, "free list is not in strictly ascending address order")
		}
		b := block{h, cur}
		if *b.footer() != b.header().size() {
			h.corrupt(cur, "free block's footer does not match its header size")
		}
		prevAddr = cur
		cur = *b.next()
	}

	if seen.Count() != free.Count() {
		h.corrupt(0, "a block is marked free but absent from the free list")
	}

	// No two physically adjacent blocks may both be free (§3): the
	// allocator must have coalesced them. Re-walk physically, checking
	// each free block's successor.
	for cur := h.region.Base(); cur < h.region.End(); {
		b := block{h, cur}
		hdr := b.header()
		following, ok := b.following()
		if ok {
			fHdr := following.header()
			if hdr.thisFree() && fHdr.thisFree() {
				h.corrupt(cur, "two physically adjacent blocks are both free: a coalesce was missed")
			}
			if fHdr.prevFree() != hdr.thisFree() {
				h.corrupt(following.addr, "prevFree flag does not match the physical predecessor's free state")
			}
		}
		cur = b.end()
	}
}

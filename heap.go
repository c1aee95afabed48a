// Copyright 2024 The first-fit-heap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The free-list engine (§4.3): construction, allocate, free, and the
// read-only enumerators.
package heap

import (
	"modernc.org/mathutil"
)

// Heap manages dynamic allocation over a single Region using a first-fit,
// coalescing, boundary-tag free list (§1). A Heap is single-threaded and
// non-reentrant (§5); the zero value is not usable, use New.
type Heap struct {
	region Region
	config Config

	// headerSize is the effective header size for this heap's alignment
	// — rawHeaderSize rounded up to region.Alignment() — not the Go
	// struct's sizeof, so that a payload immediately following a header
	// is always aligned even when alignment exceeds rawHeaderSize.
	headerSize uintptr

	// minBlockSize is the smallest payload capacity a block may have:
	// enough room for the free-list link plus the footer, rounded up to
	// alignment so a split never leaves an illegal remainder (§3, §4.3
	// step 4).
	minBlockSize uintptr

	// head is the address of the first block on the free list, in
	// strictly ascending address order, or 0 if the region is fully
	// allocated.
	head Address
}

// New seeds one free block spanning the whole region (minus one header)
// and returns a Heap ready to serve Allocate/Free.
func New(region Region, config Config) (*Heap, error) {
	alignment := region.Alignment()
	if alignment == 0 || alignment&(alignment-1) != 0 {
		return nil, &InvalidRegionError{Reason: "alignment must be a power of two"}
	}
	if region.Size() == 0 {
		return nil, &InvalidRegionError{Reason: "region size must be > 0"}
	}
	if uintptr(region.Base())%alignment != 0 {
		return nil, &InvalidRegionError{Reason: "region base is not aligned"}
	}

	headerSize := roundUp(rawHeaderSize, alignment)
	minBlockSize := roundUp(nextFieldSize+footerSize, alignment)

	if region.Size() <= headerSize {
		return nil, &InvalidRegionError{Reason: "region is too small to hold even one header"}
	}
	rootPayload := region.Size() - headerSize
	if rootPayload%alignment != 0 {
		return nil, &InvalidRegionError{Reason: "region.Size() - header size must be a multiple of alignment"}
	}
	if rootPayload < minBlockSize {
		return nil, &InvalidRegionError{Reason: "region is too small to hold one minimum-sized block"}
	}
	if rootPayload > maxBlockSize {
		return nil, &InvalidRegionError{Reason: "region is too large: payload size overflows the packed size field"}
	}

	h := &Heap{
		region:       region,
		config:       config,
		headerSize:   headerSize,
		minBlockSize: minBlockSize,
	}

	root := block{h, region.Base()}
	hdr := root.header()
	hdr.setSize(rootPayload)
	hdr.setCanary()
	hdr.setThisFree(true)
	hdr.setPrevFree(false)
	*root.footer() = rootPayload
	*root.next() = 0
	h.head = root.addr

	return h, nil
}

// Alignment returns the region's alignment (§4.3: "exposed for callers that
// wish to align requests themselves").
func (h *Heap) Alignment() uintptr { return h.region.Alignment() }

// Allocate serves a first-fit allocation of n bytes, splitting the chosen
// free block if the remainder would still be a legal block (§4.3). It
// returns nil if no free block is large enough; n == 0 is not an error and
// returns a non-nil, zero-length slice backed by a minimum-sized block,
// which may be passed to Free like any other allocation.
func (h *Heap) Allocate(n uintptr) []byte {
	req := uintptr(mathutil.MaxInt64(int64(h.minBlockSize), int64(roundUp(n, h.region.Alignment()))))
	if req > maxBlockSize {
		return nil
	}

	var prevAddr, chosenAddr Address
	found := false
	for cur := h.head; cur != 0; {
		b := block{h, cur}
		if b.header().size() >= req {
			chosenAddr = cur
			found = true
			break
		}
		prevAddr = cur
		cur = *b.next()
	}
	if !found {
		return nil
	}

	chosen := block{h, chosenAddr}
	chosenHdr := chosen.header()
	rem := chosenHdr.size() - req
	replacement := *chosen.next() // the free list's view of "whatever comes after chosen"

	if rem >= h.headerSize+h.minBlockSize {
		// Split: chosen shrinks to req, a new free block takes the
		// remainder and is spliced into chosen's old list slot.
		newFreeAddr := chosen.addr + Address(h.headerSize) + Address(req)
		chosenHdr.setSize(req)

		newFree := block{h, newFreeAddr}
		newFreeHdr := newFree.header()
		newFreeSize := rem - h.headerSize
		newFreeHdr.setSize(newFreeSize)
		newFreeHdr.setCanary()
		newFreeHdr.setThisFree(true)
		newFreeHdr.setPrevFree(false) // predecessor is chosen, about to become used
		*newFree.footer() = newFreeSize
		*newFree.next() = replacement

		replacement = newFreeAddr
	}
	// Else: the remainder can't hold a legal block, so chosen absorbs it
	// whole — req effectively grows to chosenHdr.size() unchanged, no
	// split, no new footer write (chosen is about to become used, and
	// used blocks carry no footer per §3).

	if prevAddr == 0 {
		h.head = replacement
	} else {
		*(block{h, prevAddr}).next() = replacement
	}

	chosenHdr.setThisFree(false)
	if following, ok := chosen.following(); ok {
		following.header().setPrevFree(false)
	}

	return fullBytesAt(chosen.payload(), chosenHdr.size())[:n]
}

// Free returns p, previously obtained from Allocate on this Heap and not
// already freed, to the free list, coalescing with any free physical
// neighbour (§4.3). Free is a no-op for a nil or already-fully-consumed
// slice; passing a slice not obtained from this Heap's Allocate, or one
// already freed, is detected as corruption (canary mismatch or
// already-free) and panics with a *CorruptionError.
func (h *Heap) Free(p []byte) {
	p = p[:cap(p)]
	if len(p) == 0 {
		return
	}

	addr := Address(uintptrOf(&p[0])) - Address(h.headerSize)
	b := block{h, addr}
	hdr := b.header()

	if !hdr.canaryAlive() {
		h.corrupt(addr, "dead canary: not a valid allocation from this heap, or memory was corrupted")
	}
	if hdr.thisFree() {
		h.corrupt(addr, "double free")
	}

	// Find the insertion point: the largest free-list address < addr
	// (prevAddr, 0 meaning "insert at head") and the smallest >= addr
	// (succAddr, which — since addr was used and the list is address-
	// ordered — is either 0 or the next free block after addr).
	var prevAddr Address
	succAddr := h.head
	for succAddr != 0 && succAddr < addr {
		prevAddr = succAddr
		succAddr = *(block{h, succAddr}).next()
	}

	hdr.setThisFree(true)
	*b.next() = succAddr
	if prevAddr == 0 {
		h.head = addr
	} else {
		*(block{h, prevAddr}).next() = addr
	}
	*b.footer() = hdr.size()

	if following, ok := b.following(); ok {
		following.header().setPrevFree(true)
	}

	// Coalesce back: following is necessarily the free list's succAddr
	// when it's free, since nothing can sit between b and a physically
	// adjacent block in address order.
	if following, ok := b.following(); ok && following.header().thisFree() {
		merged := hdr.size() + h.headerSize + following.header().size()
		hdr.setSize(merged)
		*b.next() = *following.next()
		*b.footer() = merged
	}

	// Coalesce front: prev_free was maintained continuously by every
	// following.setPrevFree() call above and in Allocate, so it already
	// reflects whether the physical predecessor is free right now.
	if hdr.prevFree() {
		if preceding, ok := b.preceding(); ok {
			pHdr := preceding.header()
			merged := pHdr.size() + h.headerSize + hdr.size()
			pHdr.setSize(merged)
			*preceding.footer() = merged
			*preceding.next() = *b.next()
			b, hdr = preceding, pHdr
		}
	}

	if following, ok := b.following(); ok {
		following.header().setPrevFree(true)
	}
}

// FreeBlocks returns the number of blocks currently on the free list.
func (h *Heap) FreeBlocks() int {
	n := 0
	for cur := h.head; cur != 0; cur = *(block{h, cur}).next() {
		n++
	}
	return n
}

// FreeBytes returns the sum of payload capacities of every block currently
// on the free list.
func (h *Heap) FreeBytes() uintptr {
	var total uintptr
	for cur := h.head; cur != 0; cur = *(block{h, cur}).next() {
		total += (block{h, cur}).header().size()
	}
	return total
}

// Stats aggregates FreeBlocks and FreeBytes into one call.
type Stats struct {
	FreeBlocks int
	FreeBytes  uintptr
}

// Stats returns a snapshot of the free list's size and byte count.
func (h *Heap) Stats() Stats {
	return Stats{FreeBlocks: h.FreeBlocks(), FreeBytes: h.FreeBytes()}
}

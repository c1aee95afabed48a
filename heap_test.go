// Copyright 2024 The first-fit-heap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHeap(t *testing.T, size, alignment uintptr) *Heap {
	t.Helper()
	r, err := NewAlignedRegion(size, alignment)
	require.NoError(t, err)
	h, err := New(r, Config{})
	require.NoError(t, err)
	return h
}

func TestNewSeedsOneFreeBlock(t *testing.T) {
	h := newTestHeap(t, 4096, 16)
	assert.Equal(t, 1, h.FreeBlocks())
	assert.Equal(t, uintptr(4096)-h.headerSize, h.FreeBytes())
	h.IntegrityCheck()
}

func TestNewRejectsTooSmallRegion(t *testing.T) {
	r, err := NewAlignedRegion(4, 16)
	require.NoError(t, err)
	_, err = New(r, Config{})
	require.Error(t, err)
	assert.IsType(t, &InvalidRegionError{}, err)
}

func TestSimpleAllocAndFree(t *testing.T) {
	h := newTestHeap(t, 4096, 16)

	p := h.Allocate(64)
	require.NotNil(t, p)
	assert.GreaterOrEqual(t, cap(p), 64)
	assert.Equal(t, uintptr(0), uintptr(len(p))%16)

	for i := range p {
		p[i] = byte(i)
	}

	h.Free(p)
	h.IntegrityCheck()
	assert.Equal(t, 1, h.FreeBlocks(), "freeing the only allocation should restore a single free block")
}

func TestZeroSizeAllocationIsFreeable(t *testing.T) {
	h := newTestHeap(t, 4096, 16)

	p := h.Allocate(0)
	require.NotNil(t, p, "a zero-size allocation must return a non-nil slice")
	assert.Equal(t, 0, len(p))
	assert.Greater(t, cap(p), 0)

	h.Free(p)
	h.IntegrityCheck()
	assert.Equal(t, 1, h.FreeBlocks())
}

func TestAllocationSizesRoundUpToAlignment(t *testing.T) {
	h := newTestHeap(t, 1<<20, 64)
	for _, n := range []uintptr{31, 60, 129, 277} {
		p := h.Allocate(n)
		require.NotNil(t, p)
		assert.Equal(t, uintptr(0), uintptr(cap(p))%64, "cap of a block returned for size %d must be alignment-multiple", n)
		h.Free(p)
	}
	h.IntegrityCheck()
	assert.Equal(t, 1, h.FreeBlocks(), "every block should have coalesced back into one")
}

func TestAlignmentSweep(t *testing.T) {
	for _, alignment := range []uintptr{16, 32, 64, 128, 256, 1024} {
		h := newTestHeap(t, 1<<20, alignment)
		p := h.Allocate(100)
		require.NotNil(t, p)
		assert.Equal(t, uintptr(0), uintptrOf(&p[0])%alignment, "payload address must satisfy alignment %d", alignment)
		h.Free(p)
		h.IntegrityCheck()
	}
}

func TestOutOfMemoryReturnsNil(t *testing.T) {
	h := newTestHeap(t, 256, 16)
	p := h.Allocate(1 << 20)
	assert.Nil(t, p)
	h.IntegrityCheck()
}

func TestCoalesceOnFree(t *testing.T) {
	h := newTestHeap(t, 4096, 16)

	a := h.Allocate(64)
	b := h.Allocate(64)
	c := h.Allocate(64)
	require.NotNil(t, a)
	require.NotNil(t, b)
	require.NotNil(t, c)

	blocksBeforeFree := h.FreeBlocks()

	h.Free(b)
	assert.Equal(t, blocksBeforeFree+1, h.FreeBlocks(), "freeing the middle block with both neighbours used adds exactly one free block")

	h.Free(a)
	assert.Equal(t, blocksBeforeFree+1, h.FreeBlocks(), "freeing the physical predecessor of a freed block should coalesce, not grow the list")

	h.Free(c)
	h.IntegrityCheck()
	assert.Equal(t, 1, h.FreeBlocks(), "freeing the last live block should coalesce everything back to one")
}

func TestLinearAllocAndFreeTenPasses(t *testing.T) {
	h := newTestHeap(t, 1<<16, 16)
	rng := rand.New(rand.NewSource(1))

	for pass := 0; pass < 10; pass++ {
		var blocks [][]byte
		for {
			n := uintptr(1 + rng.Intn(256))
			p := h.Allocate(n)
			if p == nil {
				break
			}
			for i := range p {
				p[i] = byte(pass)
			}
			blocks = append(blocks, p)
		}

		for i := len(blocks) - 1; i >= 0; i-- {
			p := blocks[i]
			for _, bb := range p {
				assert.Equal(t, byte(pass), bb, "payload must not be disturbed while it is live")
			}
			h.Free(p)
		}

		h.IntegrityCheck()
		assert.Equal(t, 1, h.FreeBlocks(), "pass %d should fully drain back to one free block", pass)
	}
}

func TestDoubleFreePanics(t *testing.T) {
	h := newTestHeap(t, 4096, 16)
	p := h.Allocate(32)
	require.NotNil(t, p)
	h.Free(p)
	assert.Panics(t, func() { h.Free(p) })
}

func TestCorruptedCanaryDetected(t *testing.T) {
	h := newTestHeap(t, 4096, 16)
	p := h.Allocate(32)
	require.NotNil(t, p)

	addr := Address(uintptrOf(&p[0])) - Address(h.headerSize)
	hdr := (block{h, addr}).header()
	hdr.canary = 0

	assert.Panics(t, func() { h.Free(p) })
}

func TestOnCorruptionHookInvokedBeforePanic(t *testing.T) {
	h := newTestHeap(t, 4096, 16)
	var got *CorruptionError
	h.config.OnCorruption = func(e *CorruptionError) { got = e }

	p := h.Allocate(32)
	require.NotNil(t, p)
	h.Free(p)

	assert.Panics(t, func() { h.Free(p) })
	require.NotNil(t, got)
	assert.Contains(t, got.Error(), "double free")
}

func TestStatsTracksFreeBytesAcrossAllocations(t *testing.T) {
	h := newTestHeap(t, 4096, 16)
	before := h.Stats()

	p := h.Allocate(128)
	require.NotNil(t, p)
	after := h.Stats()

	assert.Equal(t, before.FreeBytes-uintptr(cap(p))-h.headerSize, after.FreeBytes)

	h.Free(p)
	assert.Equal(t, before, h.Stats())
}

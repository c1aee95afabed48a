// Copyright 2024 The first-fit-heap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Diagnostic dumps: a plain fmt.Fprintf report and, for deeper inspection,
// a github.com/davecgh/go-spew rendering of each block's metadata.
package heap

import (
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
)

// Dump writes a one-line-per-block summary of the entire region to w, in
// address order: offset from the region base, size, and used/free state.
// It does not validate anything; use IntegrityCheck for that.
func (h *Heap) Dump(w io.Writer) error {
	i := 0
	for cur := h.region.Base(); cur < h.region.End(); i++ {
		b := block{h, cur}
		hdr := b.header()
		state := "used"
		if hdr.thisFree() {
			state = "free"
		}
		if _, err := fmt.Fprintf(w, "block %d: off=%#x size=%d %s\n",
			i, uintptr(cur-h.region.Base()), hdr.size(), state); err != nil {
			return err
		}
		cur = b.end()
	}
	stats := h.Stats()
	_, err := fmt.Fprintf(w, "free: %d blocks, %d bytes\n", stats.FreeBlocks, stats.FreeBytes)
	return err
}

// dumpHeader is the spew-friendly projection of a block's metadata; spew
// dumps the raw header struct poorly (it has no exported fields and mixes
// size with flag bits), so DumpVerbose hands it this instead.
type dumpHeader struct {
	Offset   uintptr
	Size     uintptr
	ThisFree bool
	PrevFree bool
	Canary   bool
}

// DumpVerbose is Dump's richer sibling: one github.com/davecgh/go-spew dump
// per block, suitable for a failing test's output or a corruption report
// passed to Config.OnCorruption.
func (h *Heap) DumpVerbose(w io.Writer) {
	cfg := spew.ConfigState{Indent: "  ", DisableMethods: true}
	for cur := h.region.Base(); cur < h.region.End(); {
		b := block{h, cur}
		hdr := b.header()
		cfg.Fdump(w, dumpHeader{
			Offset:   uintptr(cur - h.region.Base()),
			Size:     hdr.size(),
			ThisFree: hdr.thisFree(),
			PrevFree: hdr.prevFree(),
			Canary:   hdr.canaryAlive(),
		})
		cur = b.end()
	}
}

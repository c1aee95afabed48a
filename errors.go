// Copyright 2024 The first-fit-heap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import "fmt"

// InvalidRegionError reports that a Region fails the constraints New
// requires of it (§3: alignment, base, size). It is returned, never
// panicked — this is a caller setup mistake, not heap corruption.
type InvalidRegionError struct {
	Reason string
}

func (e *InvalidRegionError) Error() string {
	return fmt.Sprintf("heap: invalid region: %s", e.Reason)
}

// CorruptionError reports a violation of the allocator's boundary-tag
// invariants: a dead canary, a double free, or a failed integrity sweep.
// Per spec, corruption is an unrecoverable programming error; a
// CorruptionError is always delivered via panic, never returned.
type CorruptionError struct {
	// Addr is the header address at which the violation was observed, or
	// 0 if the violation is not anchored to a single block (e.g. a block
	// marked free that is absent from the free list).
	Addr   Address
	Reason string
}

func (e *CorruptionError) Error() string {
	if e.Addr == 0 {
		return fmt.Sprintf("heap: corruption detected: %s", e.Reason)
	}
	return fmt.Sprintf("heap: corruption detected at %#x: %s", uintptr(e.Addr), e.Reason)
}

// Config amends the behavior of New. The zero value is the default: no
// corruption hook.
type Config struct {
	// OnCorruption, if set, is invoked with the CorruptionError just
	// before a corruption panic unwinds. It exists so a freestanding
	// caller (the heap's intended habitat has no OS to catch a panic for
	// it) can flush diagnostics or halt cleanly. OnCorruption must not
	// call Allocate or Free on the same Heap — see the package doc.
	OnCorruption func(*CorruptionError)
}

func (h *Heap) corrupt(addr Address, reason string) {
	err := &CorruptionError{Addr: addr, Reason: reason}
	if h.config.OnCorruption != nil {
		h.config.OnCorruption(err)
	}
	panic(err)
}

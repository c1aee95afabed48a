// Copyright 2024 The first-fit-heap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpReportsBlocksAndStats(t *testing.T) {
	h := newTestHeap(t, 4096, 16)
	p := h.Allocate(64)
	require.NotNil(t, p)

	var buf bytes.Buffer
	require.NoError(t, h.Dump(&buf))

	out := buf.String()
	assert.Contains(t, out, "used")
	assert.Contains(t, out, "free")
	assert.Contains(t, out, "blocks,")

	h.Free(p)
}

func TestDumpVerboseDoesNotPanic(t *testing.T) {
	h := newTestHeap(t, 4096, 16)
	p := h.Allocate(64)
	require.NotNil(t, p)

	var buf bytes.Buffer
	assert.NotPanics(t, func() { h.DumpVerbose(&buf) })
	assert.NotEmpty(t, buf.String())

	h.Free(p)
}

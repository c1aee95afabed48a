// Copyright 2024 The first-fit-heap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeaderSizeAndFlagsPacking(t *testing.T) {
	var hdr header
	hdr.setSize(4096)
	hdr.setThisFree(true)
	hdr.setPrevFree(false)

	assert.Equal(t, uintptr(4096), hdr.size())
	assert.True(t, hdr.thisFree())
	assert.False(t, hdr.prevFree())

	hdr.setPrevFree(true)
	assert.True(t, hdr.prevFree())
	assert.Equal(t, uintptr(4096), hdr.size(), "setting prevFree must not disturb size")

	hdr.setThisFree(false)
	assert.False(t, hdr.thisFree())
	assert.True(t, hdr.prevFree(), "setting thisFree must not disturb prevFree")
}

func TestHeaderSetSizeRejectsOversizedValue(t *testing.T) {
	var hdr header
	assert.Panics(t, func() { hdr.setSize(maxBlockSize + 1) })
}

func TestHeaderCanary(t *testing.T) {
	var hdr header
	assert.False(t, hdr.canaryAlive())
	hdr.setCanary()
	assert.True(t, hdr.canaryAlive())
}

func TestFullBytesAtZeroLength(t *testing.T) {
	assert.Nil(t, fullBytesAt(0, 0))
	assert.Nil(t, fullBytesAt(1, 0))
}

// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvolmgr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsitem"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsvol"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfsvolmgr"
)

func TestMapBlockSingleStripe(t *testing.T) {
	t.Parallel()
	idx := btrfsvolmgr.NewMappingIndex()
	idx.Insert(0, btrfsitem.Chunk{
		Head: btrfsitem.ChunkHeader{
			Size:       8 << 20,
			StripeLen:  64 << 10,
			Type:       btrfsvol.BLOCK_GROUP_DATA,
			NumStripes: 1,
		},
		Stripes: []btrfsitem.ChunkStripe{
			{DeviceID: 1, Offset: 0},
		},
	})

	got, err := idx.MapBlock(0)
	require.NoError(t, err)
	assert.Equal(t, btrfsvol.DeviceID(1), got.Dev)
	assert.Equal(t, btrfsvol.PhysicalAddr(0), got.Physical)
	assert.Equal(t, uint64(8<<20), got.Length)
}

func TestMapBlockRAID0Striping(t *testing.T) {
	t.Parallel()
	idx := btrfsvolmgr.NewMappingIndex()
	const stripeLen = 64 << 10
	idx.Insert(0, btrfsitem.Chunk{
		Head: btrfsitem.ChunkHeader{
			Size:       16 << 20,
			StripeLen:  stripeLen,
			Type:       btrfsvol.BLOCK_GROUP_DATA | btrfsvol.BLOCK_GROUP_RAID0,
			NumStripes: 2,
		},
		Stripes: []btrfsitem.ChunkStripe{
			{DeviceID: 1, Offset: 1000},
			{DeviceID: 2, Offset: 2000},
		},
	})

	at0, err := idx.MapBlock(0)
	require.NoError(t, err)
	assert.Equal(t, btrfsvol.DeviceID(1), at0.Dev)
	assert.Equal(t, btrfsvol.PhysicalAddr(1000), at0.Physical)
	assert.Equal(t, uint64(stripeLen), at0.Length)

	atStripe1, err := idx.MapBlock(stripeLen)
	require.NoError(t, err)
	assert.Equal(t, btrfsvol.DeviceID(2), atStripe1.Dev)
	assert.Equal(t, btrfsvol.PhysicalAddr(2000), atStripe1.Physical)

	atRound2, err := idx.MapBlock(2 * stripeLen)
	require.NoError(t, err)
	assert.Equal(t, btrfsvol.DeviceID(1), atRound2.Dev)
	assert.Equal(t, btrfsvol.PhysicalAddr(1000+stripeLen), atRound2.Physical)
}

func TestMapBlockOutsideAnyChunkIsCorruption(t *testing.T) {
	t.Parallel()
	idx := btrfsvolmgr.NewMappingIndex()
	idx.Insert(0, btrfsitem.Chunk{
		Head: btrfsitem.ChunkHeader{
			Size:       8 << 20,
			StripeLen:  64 << 10,
			NumStripes: 1,
		},
		Stripes: []btrfsitem.ChunkStripe{{DeviceID: 1}},
	})
	_, err := idx.MapBlock(16 << 20)
	assert.ErrorIs(t, err, btrfsvolmgr.ErrCorruption)
}

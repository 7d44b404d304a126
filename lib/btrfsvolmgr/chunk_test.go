// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvolmgr_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsprim"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsvol"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfsvolmgr"
)

// seedDevices registers each of fsd's devices in tree's catalog via
// AddDevice, so that AllocChunk's UpdateDevice call (persisting the
// post-allocation bytes_used) has an existing DEV_ITEM to find.
func seedDevices(t *testing.T, tx btrfsvolmgr.Transaction, fsd *btrfsvolmgr.FsDevices) {
	t.Helper()
	for _, dev := range fsd.Devices {
		require.NoError(t, btrfsvolmgr.AddDevice(tx, dev))
	}
}

func TestAllocChunkSingleDeviceSingleStripe(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tree := newFakeTree(btrfsprim.CHUNK_TREE_OBJECTID)
	tx := fakeTransaction{writer: fakeWriter{tree}}
	fsd := &btrfsvolmgr.FsDevices{
		Devices: []*btrfsvolmgr.Device{
			{TotalBytes: 1 << 30},
		},
	}
	seedDevices(t, tx, fsd)
	idx := btrfsvolmgr.NewMappingIndex()

	key, chunk, err := btrfsvolmgr.AllocChunk(ctx, tx, fsd, idx, btrfsvol.BLOCK_GROUP_DATA)
	require.NoError(t, err)
	assert.Equal(t, btrfsprim.ObjID(0), key.ObjectID)
	assert.Equal(t, uint64(8<<20), key.Offset)
	assert.Equal(t, uint16(1), chunk.Head.NumStripes)
	assert.Equal(t, uint64(8<<20), fsd.Devices[0].BytesUsed, "bytes_used is persisted after allocation")

	devExtentKey := btrfsprim.Key{ObjectID: btrfsprim.ObjID(fsd.Devices[0].DevID), ItemType: btrfsprim.DEV_EXTENT_KEY, Offset: 0}
	_, err = tree.TreeLookup(btrfsprim.CHUNK_TREE_OBJECTID, devExtentKey)
	require.NoError(t, err, "a DevExtent is reserved for the stripe")

	resolved, err := idx.MapBlock(0)
	require.NoError(t, err)
	assert.Equal(t, fsd.Devices[0].DevID, resolved.Dev)
	assert.Equal(t, btrfsvol.PhysicalAddr(0), resolved.Physical)
	assert.Equal(t, uint64(8<<20), resolved.Length)

	// A second allocation starts at the logical end of the first chunk.
	key2, _, err := btrfsvolmgr.AllocChunk(ctx, tx, fsd, idx, btrfsvol.BLOCK_GROUP_DATA)
	require.NoError(t, err)
	assert.Equal(t, btrfsprim.ObjID(8<<20), key2.ObjectID)
}

func TestAllocChunkTwoDeviceRAID0(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tree := newFakeTree(btrfsprim.CHUNK_TREE_OBJECTID)
	tx := fakeTransaction{writer: fakeWriter{tree}}
	fsd := &btrfsvolmgr.FsDevices{
		Devices: []*btrfsvolmgr.Device{
			{TotalBytes: 1 << 30},
			{TotalBytes: 1 << 30},
		},
	}
	seedDevices(t, tx, fsd)
	idx := btrfsvolmgr.NewMappingIndex()

	key, chunk, err := btrfsvolmgr.AllocChunk(ctx, tx, fsd, idx, btrfsvol.BLOCK_GROUP_DATA|btrfsvol.BLOCK_GROUP_RAID0)
	require.NoError(t, err)
	assert.Equal(t, uint64(16<<20), key.Offset)
	assert.Equal(t, uint16(2), chunk.Head.NumStripes)
	assert.Equal(t, uint64(64<<10), chunk.Head.StripeLen)
	for _, dev := range fsd.Devices {
		assert.Equal(t, uint64(8<<20), dev.BytesUsed)
	}

	atZero, err := idx.MapBlock(0)
	require.NoError(t, err)
	atStripe, err := idx.MapBlock(btrfsvol.LogicalAddr(64 << 10))
	require.NoError(t, err)
	assert.NotEqual(t, atZero.Dev, atStripe.Dev)

	atRound2, err := idx.MapBlock(btrfsvol.LogicalAddr(128 << 10))
	require.NoError(t, err)
	assert.Equal(t, atZero.Dev, atRound2.Dev)
	assert.Equal(t, atZero.Physical+btrfsvol.PhysicalAddr(64<<10), atRound2.Physical)
}

func TestAllocChunkShrinkRetryFailsWithNoSpace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tree := newFakeTree(btrfsprim.CHUNK_TREE_OBJECTID)
	tx := fakeTransaction{writer: fakeWriter{tree}}
	fsd := &btrfsvolmgr.FsDevices{
		Devices: []*btrfsvolmgr.Device{
			{TotalBytes: 5 << 20},
			{TotalBytes: 7 << 20},
			{TotalBytes: 9 << 20},
		},
	}
	seedDevices(t, tx, fsd)
	idx := btrfsvolmgr.NewMappingIndex()

	before := make([]uint64, len(fsd.Devices))
	for i, d := range fsd.Devices {
		before[i] = d.BytesUsed
	}

	_, _, err := btrfsvolmgr.AllocChunk(ctx, tx, fsd, idx, btrfsvol.BLOCK_GROUP_DATA|btrfsvol.BLOCK_GROUP_RAID0)
	assert.ErrorIs(t, err, btrfsvolmgr.ErrNoSpace)
	for i, d := range fsd.Devices {
		assert.Equal(t, before[i], d.BytesUsed)
	}
}

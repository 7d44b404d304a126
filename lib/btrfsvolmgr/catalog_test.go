// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvolmgr_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsitem"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsprim"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsvol"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfsvolmgr"
)

func TestReadChunkTreeTwoPhase(t *testing.T) {
	t.Parallel()
	tree := newFakeTree(btrfsprim.CHUNK_TREE_OBJECTID)

	// Chunk item is inserted (and so sorts) before the device item
	// it references, exercising the two-phase restart.
	tree.insert(
		btrfsprim.Key{ObjectID: 0, ItemType: btrfsprim.CHUNK_ITEM_KEY, Offset: 8 << 20},
		btrfsitem.Chunk{
			Head: btrfsitem.ChunkHeader{Size: 8 << 20, StripeLen: 64 << 10, NumStripes: 1},
			Stripes: []btrfsitem.ChunkStripe{
				{DeviceID: 5, Offset: 0},
			},
		},
	)
	tree.insert(
		btrfsprim.Key{ObjectID: btrfsprim.DEV_ITEMS_OBJECTID, ItemType: btrfsprim.DEV_ITEM_KEY, Offset: 5},
		btrfsitem.Dev{DevID: 5, NumBytes: 1 << 30},
	)

	fsd := &btrfsvolmgr.FsDevices{}
	idx := btrfsvolmgr.NewMappingIndex()

	err := btrfsvolmgr.ReadChunkTree(context.Background(), tree, fsd, idx)
	require.NoError(t, err)
	require.NotNil(t, fsd.Lookup(5))
	assert.Equal(t, uint64(1<<30), fsd.Lookup(5).TotalBytes)

	resolved, err := idx.MapBlock(0)
	require.NoError(t, err)
	assert.Equal(t, btrfsvol.DeviceID(5), resolved.Dev)
}

func TestReadChunkTreeMissingDevice(t *testing.T) {
	t.Parallel()
	tree := newFakeTree(btrfsprim.CHUNK_TREE_OBJECTID)
	tree.insert(
		btrfsprim.Key{ObjectID: 0, ItemType: btrfsprim.CHUNK_ITEM_KEY, Offset: 8 << 20},
		btrfsitem.Chunk{
			Head:    btrfsitem.ChunkHeader{Size: 8 << 20, NumStripes: 1},
			Stripes: []btrfsitem.ChunkStripe{{DeviceID: 99}},
		},
	)
	fsd := &btrfsvolmgr.FsDevices{}
	idx := btrfsvolmgr.NewMappingIndex()

	err := btrfsvolmgr.ReadChunkTree(context.Background(), tree, fsd, idx)
	assert.ErrorIs(t, err, btrfsvolmgr.ErrCorruption)
}

func TestAddDeviceThenUpdateDevice(t *testing.T) {
	t.Parallel()
	tree := newFakeTree(btrfsprim.CHUNK_TREE_OBJECTID)
	w := fakeWriter{tree}
	tx := fakeTransaction{writer: w}

	dev := &btrfsvolmgr.Device{TotalBytes: 1 << 30}
	require.NoError(t, btrfsvolmgr.AddDevice(tx, dev))
	assert.Equal(t, btrfsvol.DeviceID(1), dev.DevID, "first device in an empty catalog gets devid 1")

	dev2 := &btrfsvolmgr.Device{TotalBytes: 2 << 30}
	require.NoError(t, btrfsvolmgr.AddDevice(tx, dev2))
	assert.Equal(t, btrfsvol.DeviceID(2), dev2.DevID)

	dev.BytesUsed = 8 << 20
	require.NoError(t, btrfsvolmgr.UpdateDevice(tx, dev))

	item, err := tree.TreeLookup(btrfsprim.CHUNK_TREE_OBJECTID, btrfsprim.Key{
		ObjectID: btrfsprim.DEV_ITEMS_OBJECTID,
		ItemType: btrfsprim.DEV_ITEM_KEY,
		Offset:   1,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(8<<20), item.Body.(btrfsitem.Dev).NumBytesUsed)
}

func TestUpdateDeviceNotFound(t *testing.T) {
	t.Parallel()
	tree := newFakeTree(btrfsprim.CHUNK_TREE_OBJECTID)
	tx := fakeTransaction{writer: fakeWriter{tree}}
	err := btrfsvolmgr.UpdateDevice(tx, &btrfsvolmgr.Device{DevID: 7})
	assert.ErrorIs(t, err, btrfsvolmgr.ErrNotFound)
}

type fakeTransaction struct {
	writer fakeWriter
}

func (tx fakeTransaction) ChunkTree() btrfsvolmgr.TreeWriter          { return tx.writer }
func (tx fakeTransaction) Superblock() btrfsvolmgr.SuperblockAccessor { return nil }

var _ btrfsvolmgr.Transaction = fakeTransaction{}

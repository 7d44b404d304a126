// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvolmgr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsitem"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsprim"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsvol"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfsvolmgr"
)

func TestFindFreeDevExtentEmptyCatalog(t *testing.T) {
	t.Parallel()
	tree := newFakeTree(btrfsprim.CHUNK_TREE_OBJECTID)
	start, err := btrfsvolmgr.FindFreeDevExtent(tree, 1, 1<<30, 8<<20)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), start)
}

func TestFindFreeDevExtentGapBetweenExtents(t *testing.T) {
	t.Parallel()
	tree := newFakeTree(btrfsprim.CHUNK_TREE_OBJECTID)
	tree.insert(
		btrfsprim.Key{ObjectID: 1, ItemType: btrfsprim.DEV_EXTENT_KEY, Offset: 0},
		btrfsitem.DevExtent{Length: 10 << 20},
	)
	tree.insert(
		btrfsprim.Key{ObjectID: 1, ItemType: btrfsprim.DEV_EXTENT_KEY, Offset: 30 << 20},
		btrfsitem.DevExtent{Length: 10 << 20},
	)

	start, err := btrfsvolmgr.FindFreeDevExtent(tree, 1, 1<<30, 8<<20)
	require.NoError(t, err)
	assert.Equal(t, uint64(10<<20), start)
}

func TestFindFreeDevExtentLeadingGap(t *testing.T) {
	t.Parallel()
	tree := newFakeTree(btrfsprim.CHUNK_TREE_OBJECTID)
	tree.insert(
		btrfsprim.Key{ObjectID: 1, ItemType: btrfsprim.DEV_EXTENT_KEY, Offset: 8 << 20},
		btrfsitem.DevExtent{Length: 8 << 20},
	)

	start, err := btrfsvolmgr.FindFreeDevExtent(tree, 1, 1<<30, 4<<20)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), start, "the region before the first extent is a candidate gap")
}

func TestFindFreeDevExtentNoSpace(t *testing.T) {
	t.Parallel()
	tree := newFakeTree(btrfsprim.CHUNK_TREE_OBJECTID)
	tree.insert(
		btrfsprim.Key{ObjectID: 1, ItemType: btrfsprim.DEV_EXTENT_KEY, Offset: 0},
		btrfsitem.DevExtent{Length: 1 << 20},
	)
	_, err := btrfsvolmgr.FindFreeDevExtent(tree, 1, 2<<20, 8<<20)
	assert.ErrorIs(t, err, btrfsvolmgr.ErrNoSpace)
}

func TestFindFreeDevExtentIgnoresOtherDevices(t *testing.T) {
	t.Parallel()
	tree := newFakeTree(btrfsprim.CHUNK_TREE_OBJECTID)
	tree.insert(
		btrfsprim.Key{ObjectID: 2, ItemType: btrfsprim.DEV_EXTENT_KEY, Offset: 0},
		btrfsitem.DevExtent{Length: 1 << 30},
	)
	start, err := btrfsvolmgr.FindFreeDevExtent(tree, btrfsvol.DeviceID(1), 1<<30, 8<<20)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), start)
}

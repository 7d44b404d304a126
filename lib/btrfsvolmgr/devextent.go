// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvolmgr

import (
	"fmt"
	"sort"

	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsitem"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsprim"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfstree"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsvol"
)

// FindFreeDevExtent implements the §4.2 first-fit-over-sorted-gaps
// search: it reads every DEV_EXTENT_KEY entry belonging to devid out
// of the chunk catalog (keyed by (devid, DEV_EXTENT_KEY,
// offset_on_device)), in tree order, and returns the start of the
// first gap of at least numBytes.
//
// The actual leaf-by-leaf traversal is the tree's concern (chunkTree
// is read through the already-ordered TreeSearchAll); this only
// implements the gap-finding policy on top of that ordering.
func FindFreeDevExtent(chunkTree btrfstree.TreeOperator, devid btrfsvol.DeviceID, totalBytes, numBytes uint64) (uint64, error) {
	items, err := chunkTree.TreeSearchAll(btrfsprim.CHUNK_TREE_OBJECTID, func(key btrfsprim.Key, _ uint32) int {
		switch {
		case key.ObjectID < btrfsprim.ObjID(devid):
			return 1
		case key.ObjectID > btrfsprim.ObjID(devid):
			return -1
		case key.ItemType < btrfsprim.DEV_EXTENT_KEY:
			return 1
		case key.ItemType > btrfsprim.DEV_EXTENT_KEY:
			return -1
		default:
			return 0
		}
	})
	if err != nil && len(items) == 0 {
		// An empty catalog for this devid is not an error: it
		// just means there are no existing reservations.
		if numBytes > totalBytes {
			return 0, fmt.Errorf("%w: device has no room for %v bytes", ErrNoSpace, numBytes)
		}
		return 0, nil
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Key.Offset < items[j].Key.Offset })

	var lastByte uint64
	for _, item := range items {
		extent, ok := item.Body.(btrfsitem.DevExtent)
		if !ok {
			continue
		}
		offset := item.Key.Offset
		if offset > lastByte && offset-lastByte >= numBytes {
			return lastByte, nil
		}
		end := offset + uint64(extent.Length)
		if end > lastByte {
			lastByte = end
		}
	}

	if lastByte+numBytes > totalBytes {
		return 0, fmt.Errorf("%w: no gap of %v bytes on devid=%v", ErrNoSpace, numBytes, devid)
	}
	return lastByte, nil
}

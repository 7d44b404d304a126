// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvolmgr

import (
	"fmt"

	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsitem"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsprim"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsvol"
)

// findNextDevID implements §4.6's add_device devid assignment: the
// highest-keyed DEV_ITEM's offset (the devid) plus one, or 1 if the
// catalog has no device items yet.
func findNextDevID(chunkTree TreeWriter) (btrfsvol.DeviceID, error) {
	items, _ := chunkTree.TreeSearchAll(btrfsprim.CHUNK_TREE_OBJECTID, func(key btrfsprim.Key, _ uint32) int {
		switch {
		case key.ObjectID < btrfsprim.DEV_ITEMS_OBJECTID:
			return 1
		case key.ObjectID > btrfsprim.DEV_ITEMS_OBJECTID:
			return -1
		case key.ItemType < btrfsprim.DEV_ITEM_KEY:
			return 1
		case key.ItemType > btrfsprim.DEV_ITEM_KEY:
			return -1
		default:
			return 0
		}
	})
	if len(items) == 0 {
		// empty device catalog: first devid is 1
		return 1, nil
	}
	return btrfsvol.DeviceID(items[len(items)-1].Key.Offset) + 1, nil
}

// AddDevice implements §4.6's add_device: assigns dev the next free
// devid, then inserts its DEV_ITEM into the chunk catalog tree.
func AddDevice(tx Transaction, dev *Device) error {
	chunkTree := tx.ChunkTree()

	devid, err := findNextDevID(chunkTree)
	if err != nil {
		return fmt.Errorf("btrfsvolmgr.AddDevice: %w", err)
	}
	dev.DevID = devid

	key := btrfsprim.Key{
		ObjectID: btrfsprim.DEV_ITEMS_OBJECTID,
		ItemType: btrfsprim.DEV_ITEM_KEY,
		Offset:   uint64(devid),
	}
	body := btrfsitem.Dev{
		DevID:          devid,
		NumBytes:       dev.TotalBytes,
		NumBytesUsed:   dev.BytesUsed,
		IOOptimalAlign: dev.IOAlign,
		IOOptimalWidth: dev.IOWidth,
		IOMinSize:      dev.SectorSize,
		Type:           dev.Type,
		Generation:     dev.Generation,
		DevUUID:        dev.UUID,
		FSUUID:         dev.FSID,
	}
	if _, err := chunkTree.InsertItem(btrfsprim.CHUNK_TREE_OBJECTID, key, body); err != nil {
		return fmt.Errorf("btrfsvolmgr.AddDevice: %w", err)
	}
	return nil
}

// UpdateDevice implements §4.6's update_device: overwrite the mutable
// fields of an existing DEV_ITEM, failing with ErrNotFound if devid
// has no catalog entry.
func UpdateDevice(tx Transaction, dev *Device) error {
	chunkTree := tx.ChunkTree()

	key := btrfsprim.Key{
		ObjectID: btrfsprim.DEV_ITEMS_OBJECTID,
		ItemType: btrfsprim.DEV_ITEM_KEY,
		Offset:   uint64(dev.DevID),
	}
	item, err := chunkTree.TreeLookup(btrfsprim.CHUNK_TREE_OBJECTID, key)
	if err != nil {
		return fmt.Errorf("btrfsvolmgr.UpdateDevice: devid=%v: %w", dev.DevID, ErrNotFound)
	}
	existing, ok := item.Body.(btrfsitem.Dev)
	if !ok {
		return fmt.Errorf("btrfsvolmgr.UpdateDevice: devid=%v: %w: DEV_ITEM key holds a %T", dev.DevID, ErrCorruption, item.Body)
	}

	existing.NumBytes = dev.TotalBytes
	existing.NumBytesUsed = dev.BytesUsed
	existing.IOOptimalAlign = dev.IOAlign
	existing.IOOptimalWidth = dev.IOWidth
	existing.IOMinSize = dev.SectorSize
	existing.Type = dev.Type

	if _, err := chunkTree.InsertItem(btrfsprim.CHUNK_TREE_OBJECTID, key, existing); err != nil {
		return fmt.Errorf("btrfsvolmgr.UpdateDevice: devid=%v: %w", dev.DevID, err)
	}
	return nil
}

// AddSystemChunk implements §4.6's add_system_chunk: append
// (disk_key, chunk_bytes) to the superblock's sys_chunk_array,
// failing with ErrTooBig if that would exceed the array's fixed
// capacity.
func AddSystemChunk(sbAccess SuperblockAccessor, key btrfsprim.Key, chunk btrfsitem.Chunk) error {
	chunkBytes, err := chunk.MarshalBinary()
	if err != nil {
		return fmt.Errorf("btrfsvolmgr.AddSystemChunk: %w", err)
	}
	if err := sbAccess.AppendSystemChunk(key, chunkBytes); err != nil {
		return fmt.Errorf("btrfsvolmgr.AddSystemChunk: %w", err)
	}
	return nil
}

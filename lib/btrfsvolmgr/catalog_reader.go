// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvolmgr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsitem"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsprim"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfstree"
)

// ReadSysArray implements §4.5's read_sys_array: it walks the packed
// sys_chunk_array bootstrap out of sb, rejecting any entry whose key
// isn't a CHUNK_ITEM as fatal corruption, and installs a mapping entry
// for each into idx -- without touching the catalog, since the
// bootstrap array is the only copy of these chunks available before
// the chunk tree itself can be read.
func ReadSysArray(sb btrfstree.Superblock, idx *MappingIndex) error {
	entries, err := sb.ParseSysChunkArray()
	if err != nil {
		return fmt.Errorf("btrfsvolmgr.ReadSysArray: %w", err)
	}
	for _, entry := range entries {
		if entry.Key.ItemType != btrfsprim.CHUNK_ITEM_KEY {
			return fmt.Errorf("btrfsvolmgr.ReadSysArray: %w: sys_chunk_array entry has key type %v, not CHUNK_ITEM", ErrCorruption, entry.Key.ItemType)
		}
		idx.Insert(uint64(entry.Key.ObjectID), entry.Chunk)
	}
	return nil
}

// ReadChunkTree implements §4.5's read_chunk_tree two-phase scan of
// the chunk catalog tree: devices must be known before a chunk's
// stripes can be resolved, so the device-item pass always runs first
// regardless of how the two key ranges interleave in tree order.
func ReadChunkTree(ctx context.Context, chunkTree btrfstree.TreeOperator, fsd *FsDevices, idx *MappingIndex) error {
	devItems, err := chunkTree.TreeSearchAll(btrfsprim.CHUNK_TREE_OBJECTID, func(key btrfsprim.Key, _ uint32) int {
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
	if err != nil && len(devItems) == 0 && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("btrfsvolmgr.ReadChunkTree: device-item pass: %w", err)
	}
	for _, item := range devItems {
		dev, ok := item.Body.(btrfsitem.Dev)
		if !ok {
			continue
		}
		devid := dev.DevID
		d := fsd.Lookup(devid)
		if d == nil {
			d = &Device{DevID: devid, FSID: fsd.FSID}
			fsd.Devices = append(fsd.Devices, d)
			fsd.index(d)
		}
		d.UUID = dev.DevUUID
		d.TotalBytes = dev.NumBytes
		d.BytesUsed = dev.NumBytesUsed
		d.IOAlign = dev.IOOptimalAlign
		d.IOWidth = dev.IOOptimalWidth
		d.SectorSize = dev.IOMinSize
		d.Type = dev.Type
		dlog.Debugf(ctx, "btrfsvolmgr: read device item devid=%v total_bytes=%v", devid, dev.NumBytes)
	}

	chunkItems, err := chunkTree.TreeSearchAll(btrfsprim.CHUNK_TREE_OBJECTID, func(key btrfsprim.Key, _ uint32) int {
		switch {
		case key.ItemType < btrfsprim.CHUNK_ITEM_KEY:
			return 1
		case key.ItemType > btrfsprim.CHUNK_ITEM_KEY:
			return -1
		default:
			return 0
		}
	})
	if err != nil && len(chunkItems) == 0 {
		return fmt.Errorf("btrfsvolmgr.ReadChunkTree: chunk-item pass: %w", err)
	}
	for _, item := range chunkItems {
		chunk, ok := item.Body.(btrfsitem.Chunk)
		if !ok {
			continue
		}
		for _, stripe := range chunk.Stripes {
			if fsd.Lookup(stripe.DeviceID) == nil {
				return ErrMissingDevice(stripe.DeviceID)
			}
		}
		idx.Insert(uint64(item.Key.ObjectID), chunk)
	}

	return nil
}

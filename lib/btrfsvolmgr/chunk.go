// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvolmgr

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dlog"

	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsitem"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsprim"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfstree"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsvol"
)

const (
	defaultChunkSize = 8 * 1024 * 1024
	dataStripeLen    = 64 * 1024
	metaStripeLen    = 32 * 1024
)

// findNextChunk implements §4.3's find_next_chunk: the next chunk's
// logical_start is the highest existing chunk's objectid+offset
// (start+length), or 0 if the catalog has no chunks yet.
func findNextChunk(chunkTree btrfstree.TreeOperator) (uint64, error) {
	items, _ := chunkTree.TreeSearchAll(btrfsprim.CHUNK_TREE_OBJECTID, func(key btrfsprim.Key, _ uint32) int {
		switch {
		case key.ItemType < btrfsprim.CHUNK_ITEM_KEY:
			return 1
		case key.ItemType > btrfsprim.CHUNK_ITEM_KEY:
			return -1
		default:
			return 0
		}
	})
	if len(items) == 0 {
		// empty chunk catalog: start from logical offset 0
		return 0, nil
	}
	last := items[len(items)-1]
	return uint64(last.Key.ObjectID) + last.Key.Offset, nil
}

// AllocChunk implements §4.3 in full: two-pass device selection with
// calc_size retry, reserving one device extent per stripe, persisting
// each chosen device's updated bytes_used, inserting the resulting
// CHUNK_ITEM into the catalog, and installing the new range into idx
// so that MapBlock sees it immediately. It returns the (key, Chunk)
// that was written.
//
// Unlike the original's in-place device_list rotation, fsd.Devices is
// walked in its existing order and is not reordered; tx is
// responsible for serializing the actual writes against the
// underlying tree (see collaborators.go). The in-memory effects on
// fsd and idx are applied by this call directly -- they need no
// transaction of their own, and AllocChunk is not safe to call
// concurrently with another AllocChunk or a MapBlock against the same
// fsd/idx (§5).
func AllocChunk(ctx context.Context, tx Transaction, fsd *FsDevices, idx *MappingIndex, typ btrfsvol.BlockGroupFlags) (key btrfsprim.Key, chunk btrfsitem.Chunk, err error) {
	chunkTree := tx.ChunkTree()

	if len(fsd.Devices) == 0 {
		return btrfsprim.Key{}, btrfsitem.Chunk{}, fmt.Errorf("btrfsvolmgr.AllocChunk: %w: no devices", ErrNoSpace)
	}

	numStripes := 1
	if typ&btrfsvol.BLOCK_GROUP_RAID0 != 0 {
		numStripes = len(fsd.Devices)
	}
	stripeLen := uint64(dataStripeLen)
	if typ&(btrfsvol.BLOCK_GROUP_METADATA|btrfsvol.BLOCK_GROUP_SYSTEM) != 0 {
		stripeLen = metaStripeLen
	}

	calcSize := uint64(defaultChunkSize)
	var chosen []*Device
	var maxAvail uint64
	looped := false

again:
	chosen = chosen[:0]
	maxAvail = 0
	for _, dev := range fsd.Devices {
		if len(chosen) >= numStripes {
			break
		}
		avail := dev.TotalBytes - dev.BytesUsed
		if avail > maxAvail {
			maxAvail = avail
		}
		if avail >= calcSize {
			chosen = append(chosen, dev)
		}
	}
	if len(chosen) < numStripes {
		if !looped && maxAvail > 0 {
			looped = true
			calcSize = maxAvail
			goto again
		}
		return btrfsprim.Key{}, btrfsitem.Chunk{}, fmt.Errorf("btrfsvolmgr.AllocChunk: %w: need %d stripes of %d bytes", ErrNoSpace, numStripes, calcSize)
	}

	logicalStart, err := findNextChunk(chunkTree)
	if err != nil {
		return btrfsprim.Key{}, btrfsitem.Chunk{}, fmt.Errorf("btrfsvolmgr.AllocChunk: %w", err)
	}
	numBytes := calcSize * uint64(numStripes)

	stripes := make([]btrfsitem.ChunkStripe, numStripes)
	for i, dev := range chosen[:numStripes] {
		offset, ferr := FindFreeDevExtent(chunkTree, dev.DevID, dev.TotalBytes, calcSize)
		if ferr != nil {
			return btrfsprim.Key{}, btrfsitem.Chunk{}, fmt.Errorf("btrfsvolmgr.AllocChunk: %w", ferr)
		}
		stripes[i] = btrfsitem.ChunkStripe{
			DeviceID:   dev.DevID,
			Offset:     btrfsvol.PhysicalAddr(offset),
			DeviceUUID: dev.UUID,
		}
		dlog.Debugf(ctx, "btrfsvolmgr: reserving %d bytes on devid=%v at offset=%d", calcSize, dev.DevID, offset)

		extentKey := btrfsprim.Key{
			ObjectID: btrfsprim.ObjID(dev.DevID),
			ItemType: btrfsprim.DEV_EXTENT_KEY,
			Offset:   offset,
		}
		extent := btrfsitem.DevExtent{
			ChunkTree:     btrfsprim.CHUNK_TREE_OBJECTID,
			ChunkObjectID: btrfsprim.FIRST_CHUNK_TREE_OBJECTID,
			ChunkOffset:   btrfsvol.LogicalAddr(logicalStart),
			Length:        btrfsvol.AddrDelta(calcSize),
		}
		if _, ierr := chunkTree.InsertItem(btrfsprim.CHUNK_TREE_OBJECTID, extentKey, extent); ierr != nil {
			return btrfsprim.Key{}, btrfsitem.Chunk{}, fmt.Errorf("btrfsvolmgr.AllocChunk: %w", ierr)
		}

		dev.BytesUsed += calcSize
		if uerr := UpdateDevice(tx, dev); uerr != nil {
			return btrfsprim.Key{}, btrfsitem.Chunk{}, fmt.Errorf("btrfsvolmgr.AllocChunk: %w", uerr)
		}
	}

	key = btrfsprim.Key{
		ObjectID: btrfsprim.ObjID(logicalStart),
		ItemType: btrfsprim.CHUNK_ITEM_KEY,
		Offset:   numBytes,
	}
	chunk = btrfsitem.Chunk{
		Head: btrfsitem.ChunkHeader{
			Size:           btrfsvol.AddrDelta(numBytes),
			Owner:          btrfsprim.EXTENT_TREE_OBJECTID,
			StripeLen:      stripeLen,
			Type:           typ,
			IOOptimalAlign: uint32(stripeLen),
			IOOptimalWidth: uint32(stripeLen),
			IOMinSize:      uint32(stripeLen),
			NumStripes:     uint16(numStripes),
			SubStripes:     1,
		},
		Stripes: stripes,
	}

	if _, ierr := chunkTree.InsertItem(btrfsprim.CHUNK_TREE_OBJECTID, key, chunk); ierr != nil {
		return btrfsprim.Key{}, btrfsitem.Chunk{}, fmt.Errorf("btrfsvolmgr.AllocChunk: %w", ierr)
	}
	idx.Insert(logicalStart, chunk)

	return key, chunk, nil
}

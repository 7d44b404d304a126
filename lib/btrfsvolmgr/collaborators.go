// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvolmgr

import (
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsitem"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsprim"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfstree"
)

// TreeWriter is the write side of a B-tree root: insertion and
// dirtying. The read side (TreeLookup/TreeSearch/TreeSearchAll/
// TreeWalk) is already satisfied by btrfstree.TreeOperator, which
// every collaborator is expected to also implement.
//
// The B-tree engine itself -- splitting nodes, balancing, choosing
// where bytes land -- is not this package's concern; a TreeWriter is
// supplied by the host (a transaction-aware tree implementation) and
// is treated here as opaque.
type TreeWriter interface {
	btrfstree.TreeOperator

	// InsertEmptyItem reserves space for a new item with the
	// given key and data size, returning a path to the new
	// (still zeroed) item.
	InsertEmptyItem(treeID btrfsprim.ObjID, key btrfsprim.Key, dataSize uint32) (btrfstree.TreePath, error)

	// InsertItem inserts a fully-formed item body at key.
	InsertItem(treeID btrfsprim.ObjID, key btrfsprim.Key, body btrfsitem.Item) (btrfstree.TreePath, error)

	// MarkDirty marks the leaf referenced by path as needing to
	// be written back before the transaction commits.
	MarkDirty(path btrfstree.TreePath) error
}

// SuperblockAccessor is the mutable side of the superblock: the
// fields the volume manager needs to update in place (the
// sys_chunk_array bootstrap and the device count) without owning the
// superblock buffer or its write-back.
type SuperblockAccessor interface {
	Superblock() (*btrfstree.Superblock, error)

	// AppendSystemChunk appends a (disk_key, chunk_bytes) pair to
	// sys_chunk_array, bumping sys_array_size. Fails with
	// ErrTooBig if the cap would be exceeded.
	AppendSystemChunk(key btrfsprim.Key, chunkBytes []byte) error

	// SetNumDevices updates the superblock's num_devices field.
	SetNumDevices(n uint64) error
}

// Transaction serializes a batch of catalog mutations, matching the
// "all catalog operations execute inside an externally supplied
// transaction handle" concurrency model: one TreeWriter per catalog
// tree, and the superblock accessor, all visible through a single
// handle so callers never reach for global state.
type Transaction interface {
	// ChunkTree returns the writer for the chunk-catalog tree
	// (device items and device-extent items also live here, at
	// DEV_ITEMS_OBJECTID and per-devid keys respectively).
	ChunkTree() TreeWriter

	Superblock() SuperblockAccessor
}

// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvolmgr

import (
	"fmt"

	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsitem"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsvol"
	"git.lukeshu.com/btrfs-progs-ng/lib/containers"
)

// Resolved is the result of a MapBlock lookup: the device and
// physical offset that a logical address resolves to, along with the
// run length for which that same (device, delta) relationship holds
// (so callers can split a larger I/O across stripe boundaries without
// re-querying for every byte).
type Resolved struct {
	Dev      btrfsvol.DeviceID
	Physical btrfsvol.PhysicalAddr
	Length   uint64
}

// mappedChunk is one entry of the MappingIndex: a logical interval
// backed by a specific Chunk, keyed by its own [Start, Start+Size)
// span.
//
// This does not reuse btrfsvol.LogicalVolume's chunkMapping: that
// type's Resolve semantics treat every stripe as an alternative whole
// copy of the chunk (mirroring), which is what BLOCK_GROUP_RAID_MASK
// intentionally excludes BLOCK_GROUP_RAID0 from (see
// blockgroupflags.go). RAID0 instead interleaves stripes across the
// logical range, which needs the arithmetic MapBlock implements
// below.
type mappedChunk struct {
	Start uint64
	Size  uint64
	Chunk btrfsitem.Chunk
}

func (m mappedChunk) min() containers.NativeOrdered[btrfsvol.LogicalAddr] {
	return containers.NativeOrdered[btrfsvol.LogicalAddr]{Val: btrfsvol.LogicalAddr(m.Start)}
}

func (m mappedChunk) max() containers.NativeOrdered[btrfsvol.LogicalAddr] {
	return containers.NativeOrdered[btrfsvol.LogicalAddr]{Val: btrfsvol.LogicalAddr(m.Start + m.Size - 1)}
}

// MappingIndex is the in-memory interval index described by §4.4: an
// ordered, non-overlapping map from logical offsets to the Chunk that
// backs them, built at mount from the chunk catalog and appended to
// by each successful AllocChunk.
type MappingIndex struct {
	tree containers.IntervalTree[containers.NativeOrdered[btrfsvol.LogicalAddr], mappedChunk]
}

// NewMappingIndex returns an empty mapping index.
func NewMappingIndex() *MappingIndex {
	idx := &MappingIndex{}
	idx.tree.MinFn = mappedChunk.min
	idx.tree.MaxFn = mappedChunk.max
	return idx
}

// Insert registers the logical range [start, start+chunk.Head.Size)
// as backed by chunk. Callers (ReadChunkTree, AllocChunk) are
// responsible for ensuring ranges never overlap; Insert does not
// re-check this, matching §4.4's "read-only thereafter for map-block"
// append-only model.
func (idx *MappingIndex) Insert(start uint64, chunk btrfsitem.Chunk) {
	idx.tree.Insert(mappedChunk{
		Start: start,
		Size:  uint64(chunk.Head.Size),
		Chunk: chunk,
	})
}

// MapBlock implements §4.4's map_block: locate the chunk containing
// logical, then apply the striping arithmetic to find which stripe
// (and so which device and physical offset) the byte falls in.
//
// It is a hard error, signaling catalog/bootstrap inconsistency, for
// no chunk to contain logical.
func (idx *MappingIndex) MapBlock(logical btrfsvol.LogicalAddr) (Resolved, error) {
	entry, ok := idx.tree.Lookup(containers.NativeOrdered[btrfsvol.LogicalAddr]{Val: logical})
	if !ok {
		return Resolved{}, fmt.Errorf("btrfsvolmgr.MapBlock: %w: logical=%v is not covered by any chunk", ErrCorruption, logical)
	}

	offset := uint64(logical) - entry.Start
	stripeLen := entry.Chunk.Head.StripeLen
	numStripes := uint64(len(entry.Chunk.Stripes))
	if numStripes == 0 || stripeLen == 0 {
		return Resolved{}, fmt.Errorf("btrfsvolmgr.MapBlock: %w: chunk at logical=%v has no stripes", ErrCorruption, entry.Start)
	}

	stripeNr := offset / stripeLen
	stripeOffset := offset - stripeNr*stripeLen
	stripeIndex := stripeNr % numStripes
	stripeNr = stripeNr / numStripes

	stripe := entry.Chunk.Stripes[stripeIndex]
	physical := stripe.Offset + btrfsvol.PhysicalAddr(stripeOffset) + btrfsvol.PhysicalAddr(stripeNr*stripeLen)

	length := entry.Size - offset
	if entry.Chunk.Head.Type&btrfsvol.BLOCK_GROUP_RAID0 != 0 {
		if remaining := stripeLen - stripeOffset; remaining < length {
			length = remaining
		}
	}

	return Resolved{
		Dev:      stripe.DeviceID,
		Physical: physical,
		Length:   length,
	}, nil
}

// Min returns the lowest mapped logical address, if any.
func (idx *MappingIndex) Min() (btrfsvol.LogicalAddr, bool) {
	k, ok := idx.tree.Min()
	return k.Val, ok
}

// Max returns the highest mapped logical address, if any.
func (idx *MappingIndex) Max() (btrfsvol.LogicalAddr, bool) {
	k, ok := idx.tree.Max()
	return k.Val, ok
}

// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package btrfsvolmgr implements the multi-device volume manager: the
// device registry, the device-extent and chunk allocators, the
// logical-to-physical mapping index, and the catalog reader/writer
// that persist devices and chunks.
package btrfsvolmgr

import (
	"errors"
	"fmt"

	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsvol"
)

// Sentinel errors, matching the taxonomy of the original volume
// manager: allocator refusal, catalog-lookup misses, and on-disk
// corruption are all distinguishable by errors.Is.
var (
	// ErrNoSpace is returned when no device extent satisfies a
	// request, or when fewer than num_stripes devices have
	// sufficient free space for a chunk.
	ErrNoSpace = errors.New("btrfsvolmgr: no space")

	// ErrNotBtrfs is returned by ScanOneDevice when the magic at
	// the candidate superblock offset does not match.
	ErrNotBtrfs = errors.New("btrfsvolmgr: not a btrfs superblock")

	// ErrNotFound is returned when a catalog lookup expected to
	// find an entry (e.g. UpdateDevice on a nonexistent devid)
	// does not.
	ErrNotFound = errors.New("btrfsvolmgr: not found")

	// ErrTooBig is returned when appending to the superblock's
	// sys_chunk_array would exceed its fixed capacity.
	ErrTooBig = errors.New("btrfsvolmgr: exceeds sys_chunk_array capacity")

	// ErrCorruption is returned for inconsistent on-disk state:
	// a chunk referencing an unknown devid, a sys-array entry
	// that isn't a CHUNK_ITEM, a mapping lookup that falls
	// outside every known chunk.
	ErrCorruption = errors.New("btrfsvolmgr: catalog corruption")
)

// ErrMissingDevice wraps ErrCorruption for the specific case of a
// chunk stripe whose devid was never seen by the device-item scan
// pass of ReadChunkTree.
func ErrMissingDevice(devid btrfsvol.DeviceID) error {
	return fmt.Errorf("%w: stripe references devid=%v which is not registered", ErrCorruption, devid)
}

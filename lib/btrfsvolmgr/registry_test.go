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
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfstree"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsvol"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfsvolmgr"
)

func sbFor(fsid btrfsprim.UUID, gen btrfsprim.Generation, devid btrfsvol.DeviceID) *btrfstree.Superblock {
	return &btrfstree.Superblock{
		FSUUID:     fsid,
		Generation: gen,
		DevItem: btrfsitem.Dev{
			DevID:    devid,
			NumBytes: 1 << 30,
			DevUUID:  btrfsprim.UUID{byte(devid)},
		},
	}
}

func TestDeviceListAddConvergesLatestAndLowest(t *testing.T) {
	t.Parallel()
	reg := btrfsvolmgr.NewRegistry()
	fsid := btrfsprim.UUID{1, 2, 3}

	fsd, err := reg.DeviceListAdd("/dev/a", sbFor(fsid, 5, 2), 2)
	require.NoError(t, err)
	assert.Equal(t, btrfsvol.DeviceID(2), fsd.LatestDevID)
	assert.Equal(t, btrfsvol.DeviceID(2), fsd.LowestDevID)

	fsd, err = reg.DeviceListAdd("/dev/b", sbFor(fsid, 9, 1), 1)
	require.NoError(t, err)
	assert.Equal(t, btrfsvol.DeviceID(1), fsd.LatestDevID, "higher generation device becomes latest")
	assert.Equal(t, btrfsvol.DeviceID(1), fsd.LowestDevID, "lower devid becomes lowest")

	fsd, err = reg.DeviceListAdd("/dev/c", sbFor(fsid, 3, 3), 3)
	require.NoError(t, err)
	assert.Equal(t, btrfsvol.DeviceID(1), fsd.LatestDevID, "stale generation does not override latest")
	assert.Equal(t, btrfsvol.DeviceID(1), fsd.LowestDevID)
	assert.Len(t, fsd.Devices, 3)
}

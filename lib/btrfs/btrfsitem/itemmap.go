// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"reflect"

	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsprim"
)

var keytype2gotype = map[btrfsprim.ItemType]reflect.Type{
	btrfsprim.INODE_ITEM_KEY: reflect.TypeOf(Inode{}),
	btrfsprim.INODE_REF_KEY:  reflect.TypeOf(InodeRef{}),
	btrfsprim.XATTR_ITEM_KEY: reflect.TypeOf(DirEntry{}),
	btrfsprim.ORPHAN_ITEM_KEY: reflect.TypeOf(Empty{}),

	btrfsprim.DIR_ITEM_KEY:  reflect.TypeOf(DirEntry{}),
	btrfsprim.DIR_INDEX_KEY: reflect.TypeOf(DirEntry{}),

	btrfsprim.EXTENT_DATA_KEY: reflect.TypeOf(FileExtent{}),

	btrfsprim.EXTENT_CSUM_KEY: reflect.TypeOf(ExtentCSum{}),

	btrfsprim.ROOT_ITEM_KEY:    reflect.TypeOf(Root{}),
	btrfsprim.ROOT_BACKREF_KEY: reflect.TypeOf(RootRef{}),
	btrfsprim.ROOT_REF_KEY:     reflect.TypeOf(RootRef{}),

	btrfsprim.EXTENT_ITEM_KEY:   reflect.TypeOf(Extent{}),
	btrfsprim.METADATA_ITEM_KEY: reflect.TypeOf(Metadata{}),

	btrfsprim.TREE_BLOCK_REF_KEY:   reflect.TypeOf(Empty{}),
	btrfsprim.EXTENT_DATA_REF_KEY:  reflect.TypeOf(ExtentDataRef{}),
	btrfsprim.SHARED_BLOCK_REF_KEY: reflect.TypeOf(Empty{}),
	btrfsprim.SHARED_DATA_REF_KEY:  reflect.TypeOf(SharedDataRef{}),

	btrfsprim.BLOCK_GROUP_ITEM_KEY: reflect.TypeOf(BlockGroup{}),

	btrfsprim.FREE_SPACE_INFO_KEY:   reflect.TypeOf(FreeSpaceInfo{}),
	btrfsprim.FREE_SPACE_EXTENT_KEY: reflect.TypeOf(Empty{}),
	btrfsprim.FREE_SPACE_BITMAP_KEY: reflect.TypeOf(FreeSpaceBitmap{}),

	btrfsprim.DEV_EXTENT_KEY: reflect.TypeOf(DevExtent{}),
	btrfsprim.DEV_ITEM_KEY:   reflect.TypeOf(Dev{}),
	btrfsprim.CHUNK_ITEM_KEY: reflect.TypeOf(Chunk{}),

	btrfsprim.QGROUP_STATUS_KEY:   reflect.TypeOf(QGroupStatus{}),
	btrfsprim.QGROUP_INFO_KEY:     reflect.TypeOf(QGroupInfo{}),
	btrfsprim.QGROUP_LIMIT_KEY:    reflect.TypeOf(QGroupLimit{}),
	btrfsprim.QGROUP_RELATION_KEY: reflect.TypeOf(Empty{}),

	btrfsprim.UUID_SUBVOL_KEY:          reflect.TypeOf(UUIDMap{}),
	btrfsprim.UUID_RECEIVED_SUBVOL_KEY: reflect.TypeOf(UUIDMap{}),
}

var untypedObjID2gotype = map[btrfsprim.ObjID]reflect.Type{
	btrfsprim.FREE_SPACE_OBJECTID: reflect.TypeOf(FreeSpaceHeader{}),
}

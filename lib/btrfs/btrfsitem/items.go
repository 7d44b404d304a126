// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"fmt"
	"reflect"

	"git.lukeshu.com/btrfs-progs-ng/lib/binstruct"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsprim"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfssum"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsvol"
)

type Type = btrfsprim.ItemType

const (
	UNTYPED_KEY = btrfsprim.UNTYPED_KEY

	INODE_ITEM_KEY   = btrfsprim.INODE_ITEM_KEY
	INODE_REF_KEY    = btrfsprim.INODE_REF_KEY
	INODE_EXTREF_KEY = btrfsprim.INODE_EXTREF_KEY
	XATTR_ITEM_KEY   = btrfsprim.XATTR_ITEM_KEY
	ORPHAN_ITEM_KEY  = btrfsprim.ORPHAN_ITEM_KEY

	DIR_LOG_ITEM_KEY  = btrfsprim.DIR_LOG_ITEM_KEY
	DIR_LOG_INDEX_KEY = btrfsprim.DIR_LOG_INDEX_KEY
	DIR_ITEM_KEY      = btrfsprim.DIR_ITEM_KEY
	DIR_INDEX_KEY     = btrfsprim.DIR_INDEX_KEY

	EXTENT_DATA_KEY = btrfsprim.EXTENT_DATA_KEY

	EXTENT_CSUM_KEY = btrfsprim.EXTENT_CSUM_KEY

	ROOT_ITEM_KEY    = btrfsprim.ROOT_ITEM_KEY
	ROOT_BACKREF_KEY = btrfsprim.ROOT_BACKREF_KEY
	ROOT_REF_KEY     = btrfsprim.ROOT_REF_KEY

	EXTENT_ITEM_KEY   = btrfsprim.EXTENT_ITEM_KEY
	METADATA_ITEM_KEY = btrfsprim.METADATA_ITEM_KEY

	TREE_BLOCK_REF_KEY   = btrfsprim.TREE_BLOCK_REF_KEY
	EXTENT_DATA_REF_KEY  = btrfsprim.EXTENT_DATA_REF_KEY
	SHARED_BLOCK_REF_KEY = btrfsprim.SHARED_BLOCK_REF_KEY
	SHARED_DATA_REF_KEY  = btrfsprim.SHARED_DATA_REF_KEY

	BLOCK_GROUP_ITEM_KEY = btrfsprim.BLOCK_GROUP_ITEM_KEY

	FREE_SPACE_INFO_KEY   = btrfsprim.FREE_SPACE_INFO_KEY
	FREE_SPACE_EXTENT_KEY = btrfsprim.FREE_SPACE_EXTENT_KEY
	FREE_SPACE_BITMAP_KEY = btrfsprim.FREE_SPACE_BITMAP_KEY

	DEV_EXTENT_KEY = btrfsprim.DEV_EXTENT_KEY
	DEV_ITEM_KEY   = btrfsprim.DEV_ITEM_KEY
	CHUNK_ITEM_KEY = btrfsprim.CHUNK_ITEM_KEY

	QGROUP_STATUS_KEY   = btrfsprim.QGROUP_STATUS_KEY
	QGROUP_INFO_KEY     = btrfsprim.QGROUP_INFO_KEY
	QGROUP_LIMIT_KEY    = btrfsprim.QGROUP_LIMIT_KEY
	QGROUP_RELATION_KEY = btrfsprim.QGROUP_RELATION_KEY

	UUID_SUBVOL_KEY          = btrfsprim.UUID_SUBVOL_KEY
	UUID_RECEIVED_SUBVOL_KEY = btrfsprim.UUID_RECEIVED_SUBVOL_KEY
)

type Item interface {
	isItem()
}

type Error struct {
	Dat []byte
	Err error
}

func (Error) isItem() {}

func (o Error) MarshalBinary() ([]byte, error) {
	return o.Dat, nil
}

func (o *Error) UnmarshalBinary(dat []byte) (int, error) {
	o.Dat = dat
	return len(dat), nil
}

// Rather than returning a separate error value, return an Error item.
func UnmarshalItem(key btrfsprim.Key, csumType btrfssum.CSumType, dat []byte) Item {
	var gotyp reflect.Type
	if key.ItemType == UNTYPED_KEY {
		var ok bool
		gotyp, ok = untypedObjID2gotype[key.ObjectID]
		if !ok {
			return Error{
				Dat: dat,
				Err: fmt.Errorf("btrfsitem.UnmarshalItem({ItemType:%v, ObjectID:%v}, dat): unknown object ID for untyped item",
					key.ItemType, key.ObjectID),
			}
		}
	} else {
		var ok bool
		gotyp, ok = keytype2gotype[key.ItemType]
		if !ok {
			return Error{
				Dat: dat,
				Err: fmt.Errorf("btrfsitem.UnmarshalItem({ItemType:%v}, dat): unknown item type", key.ItemType),
			}
		}
	}
	retPtr := reflect.New(gotyp)
	if csums, ok := retPtr.Interface().(*ExtentCSum); ok {
		csums.ChecksumSize = csumType.Size()
		csums.Addr = btrfsvol.LogicalAddr(key.Offset)
	}
	n, err := binstruct.Unmarshal(dat, retPtr.Interface())
	if err != nil {
		return Error{
			Dat: dat,
			Err: fmt.Errorf("btrfsitem.UnmarshalItem({ItemType:%v}, dat): %w", key.ItemType, err),
		}

	}
	if n < len(dat) {
		return Error{
			Dat: dat,
			Err: fmt.Errorf("btrfsitem.UnmarshalItem({ItemType:%v}, dat): left over data: got %v bytes but only consumed %v",
				key.ItemType, len(dat), n),
		}
	}
	return retPtr.Elem().Interface().(Item)
}

// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

func (Inode) isItem()         {}
func (InodeRef) isItem()      {}
func (DirEntry) isItem()      {}
func (Empty) isItem()         {}
func (FileExtent) isItem()    {}
func (ExtentCSum) isItem()    {}
func (Root) isItem()          {}
func (RootRef) isItem()       {}
func (Extent) isItem()        {}
func (Metadata) isItem()      {}
func (ExtentDataRef) isItem() {}
func (SharedDataRef) isItem() {}
func (BlockGroup) isItem()    {}
func (FreeSpaceInfo) isItem() {}
func (FreeSpaceBitmap) isItem() {}
func (DevExtent) isItem()     {}
func (Dev) isItem()           {}
func (Chunk) isItem()         {}
func (QGroupStatus) isItem()  {}
func (QGroupInfo) isItem()    {}
func (QGroupLimit) isItem()   {}
func (UUIDMap) isItem()       {}
func (FreeSpaceHeader) isItem() {}

// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvolmgr_test

import (
	"context"
	"fmt"
	"io/fs"
	"sort"

	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsitem"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsprim"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfstree"
)

// fakeTree is a minimal in-memory btrfstree.TreeOperator backing a
// single tree ID, used to drive the catalog-reader/allocator tests
// without a real disk image.
type fakeTree struct {
	treeID btrfsprim.ObjID
	items  map[btrfsprim.Key]btrfsitem.Item
}

func newFakeTree(treeID btrfsprim.ObjID) *fakeTree {
	return &fakeTree{treeID: treeID, items: make(map[btrfsprim.Key]btrfsitem.Item)}
}

func (t *fakeTree) insert(key btrfsprim.Key, body btrfsitem.Item) {
	t.items[key] = body
}

func (t *fakeTree) sortedKeys() []btrfsprim.Key {
	keys := make([]btrfsprim.Key, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Cmp(keys[j]) < 0 })
	return keys
}

func (t *fakeTree) TreeWalk(_ context.Context, _ btrfsprim.ObjID, _ func(*btrfstree.TreeError), _ btrfstree.TreeWalkHandler) {
}

func (t *fakeTree) TreeLookup(treeID btrfsprim.ObjID, key btrfsprim.Key) (btrfstree.Item, error) {
	if treeID != t.treeID {
		return btrfstree.Item{}, fs.ErrNotExist
	}
	body, ok := t.items[key]
	if !ok {
		return btrfstree.Item{}, fs.ErrNotExist
	}
	return btrfstree.Item{Key: key, Body: body}, nil
}

func (t *fakeTree) TreeSearch(treeID btrfsprim.ObjID, fn func(btrfsprim.Key, uint32) int) (btrfstree.Item, error) {
	if treeID != t.treeID {
		return btrfstree.Item{}, fs.ErrNotExist
	}
	keys := t.sortedKeys()
	for i := len(keys) - 1; i >= 0; i-- {
		if fn(keys[i], 0) == 0 {
			return btrfstree.Item{Key: keys[i], Body: t.items[keys[i]]}, nil
		}
	}
	return btrfstree.Item{}, fmt.Errorf("fakeTree: no match: %w", fs.ErrNotExist)
}

func (t *fakeTree) TreeSearchAll(treeID btrfsprim.ObjID, fn func(btrfsprim.Key, uint32) int) ([]btrfstree.Item, error) {
	if treeID != t.treeID {
		return nil, fs.ErrNotExist
	}
	var ret []btrfstree.Item
	for _, key := range t.sortedKeys() {
		if fn(key, 0) == 0 {
			ret = append(ret, btrfstree.Item{Key: key, Body: t.items[key]})
		}
	}
	if len(ret) == 0 {
		return nil, fmt.Errorf("fakeTree: no match: %w", fs.ErrNotExist)
	}
	return ret, nil
}

var _ btrfstree.TreeOperator = (*fakeTree)(nil)

// fakeWriter adds the write side needed to satisfy btrfsvolmgr.TreeWriter
// on top of a fakeTree's read side.
type fakeWriter struct {
	*fakeTree
}

func (w fakeWriter) InsertEmptyItem(treeID btrfsprim.ObjID, key btrfsprim.Key, _ uint32) (btrfstree.TreePath, error) {
	if treeID != w.treeID {
		return nil, fs.ErrNotExist
	}
	w.items[key] = nil
	return nil, nil
}

func (w fakeWriter) InsertItem(treeID btrfsprim.ObjID, key btrfsprim.Key, body btrfsitem.Item) (btrfstree.TreePath, error) {
	if treeID != w.treeID {
		return nil, fs.ErrNotExist
	}
	w.items[key] = body
	return nil, nil
}

func (w fakeWriter) MarkDirty(_ btrfstree.TreePath) error { return nil }

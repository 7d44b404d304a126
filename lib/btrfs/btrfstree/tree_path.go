// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfstree

import (
	"fmt"
	"io"
	"strings"

	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsprim"
	"git.lukeshu.com/btrfs-progs-ng/lib/btrfs/btrfsvol"
)

// TreePath holds the path from the superblock (or a ROOT_ITEM) down
// to a node or item within one of the trees in the filesystem.
//
//   - The first element will always have a FromItemSlot of -1,
//     except in the path reported for an error looking up the tree
//     root, where it is 0.
//
//   - For .Item() callbacks, the last element will always have a
//     ToNodeAddr of 0.
type TreePath []TreePathElem

// A TreePathElem essentially represents a KeyPointer.  If there is an
// error looking up the tree root, everything but FromTree and
// ToMaxKey is zero.
type TreePathElem struct {
	// FromTree is the owning tree ID of the parent node; or the
	// well-known tree ID if this is the root.
	FromTree btrfsprim.ObjID
	// FromItemSlot is the index of this KeyPointer in the parent
	// Node; or -1 if this is the root and there is no KeyPointer.
	FromItemSlot int

	// ToNodeAddr is the address of the node that the KeyPointer
	// points at, or 0 if this is a leaf item and nothing is being
	// pointed at.
	ToNodeAddr btrfsvol.LogicalAddr
	// ToNodeGeneration is the generation of the node at
	// ToNodeAddr, as recorded in the parent KeyPointer (or the
	// superblock, if this is the root).
	ToNodeGeneration btrfsprim.Generation
	// ToNodeLevel is the expected or actual level of the node at
	// ToNodeAddr, or 0 if this is a leaf item and nothing is
	// being pointed at.
	ToNodeLevel uint8
	// ToMaxKey bounds the largest key reachable beneath this
	// element, as known from the structure of the tree so far.
	ToMaxKey btrfsprim.Key
}

func (elem TreePathElem) writeNodeTo(w io.Writer) {
	fmt.Fprintf(w, "node:%d@%v", elem.ToNodeLevel, elem.ToNodeAddr)
}

func (path TreePath) String() string {
	if len(path) == 0 {
		return "(empty-path)"
	}
	var ret strings.Builder
	fmt.Fprintf(&ret, "%s->", path[0].FromTree.Format(btrfsprim.ROOT_TREE_OBJECTID))
	if len(path) == 1 && path[0] == (TreePathElem{FromTree: path[0].FromTree, ToMaxKey: path[0].ToMaxKey}) {
		ret.WriteString("(empty-path)")
	} else {
		path[0].writeNodeTo(&ret)
	}
	for _, elem := range path[1:] {
		fmt.Fprintf(&ret, "[%v]", elem.FromItemSlot)
		if elem.ToNodeAddr != 0 {
			ret.WriteString("->")
			elem.writeNodeTo(&ret)
		}
	}
	return ret.String()
}

func (path TreePath) DeepCopy() TreePath {
	return append(TreePath(nil), path...)
}

func (path TreePath) Parent() TreePath {
	return path[:len(path)-1]
}

// path.Node(x) is like &path[x], but negative values of x move down
// from the end of path (similar to how lists work in many other
// languages, such as Python).
func (path TreePath) Node(x int) *TreePathElem {
	if x < 0 {
		x += len(path)
	}
	return &path[x]
}

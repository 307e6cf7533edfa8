// Copyright 2026 The MTT Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package critnib implements a path-compressed radix tree keyed by
// uintptr, with lock-free reads: writers (Insert/Remove) serialize on a
// single mutex and publish structural changes with atomic pointer
// stores, so concurrent Get/Find calls never block and never observe a
// torn node.
package critnib

import (
	"math/bits"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/memkind-go/mtt/pkg/atomicbitops"
	"github.com/memkind-go/mtt/pkg/mkerr"
)

const (
	sliceBits = 4
	sliceSize = 1 << sliceBits
	sliceMask = sliceSize - 1
)

// leafRec is an immutable key/value pair. Once published, a leafRec is
// never mutated in place; updates replace the child slot that points to
// it instead.
type leafRec struct {
	key   uintptr
	value unsafe.Pointer
}

// inode is an internal node covering all keys whose high bits (above
// shift+sliceBits) equal path. Its children dispatch on the sliceBits
// bits of the key located at shift.
type inode struct {
	path  uintptr
	shift uint
	child [sliceSize]atomic.Pointer[child]
}

// child is the sum-type slot stored in the tree: exactly one of node or
// leaf is set for a non-empty slot, and both are nil for an empty one.
type child struct {
	node *inode
	leaf *leafRec
}

// Critnib is a concurrent uintptr-keyed map.
type Critnib struct {
	mu    sync.Mutex
	root  atomic.Pointer[child]
	count atomicbitops.Int64
}

// New returns an empty Critnib.
func New() *Critnib { return &Critnib{} }

// Len returns the number of keys currently stored.
func (cn *Critnib) Len() int64 { return cn.count.Load() }

// Insert adds key -> value. It returns a mkerr.Exists error if key is
// already present.
func (cn *Critnib) Insert(key uintptr, value unsafe.Pointer) error {
	cn.mu.Lock()
	defer cn.mu.Unlock()

	slot := &cn.root
	for {
		c := slot.Load()
		if c == nil {
			slot.Store(&child{leaf: &leafRec{key: key, value: value}})
			cn.count.Add(1)
			return nil
		}
		if c.leaf != nil {
			if c.leaf.key == key {
				return mkerr.New(mkerr.Exists, "critnib: key %#x already present", key)
			}
			slot.Store(&child{node: splitLeaf(c.leaf, key, value)})
			cn.count.Add(1)
			return nil
		}
		n := c.node
		if key&pathMask(n.shift) != n.path {
			slot.Store(&child{node: splitNode(n, c, key, value)})
			cn.count.Add(1)
			return nil
		}
		slot = &n.child[sliceIndex(key, n.shift)]
	}
}

// Upsert adds key -> value, replacing any existing value for key instead
// of returning mkerr.Exists. It is Insert's update=true variant from
// spec.md's insert(key, value, update?) contract.
func (cn *Critnib) Upsert(key uintptr, value unsafe.Pointer) {
	cn.mu.Lock()
	defer cn.mu.Unlock()

	slot := &cn.root
	for {
		c := slot.Load()
		if c == nil {
			slot.Store(&child{leaf: &leafRec{key: key, value: value}})
			cn.count.Add(1)
			return
		}
		if c.leaf != nil {
			if c.leaf.key == key {
				slot.Store(&child{leaf: &leafRec{key: key, value: value}})
				return
			}
			slot.Store(&child{node: splitLeaf(c.leaf, key, value)})
			cn.count.Add(1)
			return
		}
		n := c.node
		if key&pathMask(n.shift) != n.path {
			slot.Store(&child{node: splitNode(n, c, key, value)})
			cn.count.Add(1)
			return
		}
		slot = &n.child[sliceIndex(key, n.shift)]
	}
}

// Get returns the value for key, if present.
func (cn *Critnib) Get(key uintptr) (unsafe.Pointer, bool) {
	c := cn.root.Load()
	for c != nil {
		if c.leaf != nil {
			if c.leaf.key == key {
				return c.leaf.value, true
			}
			return nil, false
		}
		n := c.node
		if key&pathMask(n.shift) != n.path {
			return nil, false
		}
		c = n.child[sliceIndex(key, n.shift)].Load()
	}
	return nil, false
}

// Remove deletes key, returning its value if it was present. Unlinked
// nodes are left for the garbage collector to reclaim once no reader
// holds a reference to them; no manual quiescence bookkeeping is needed.
func (cn *Critnib) Remove(key uintptr) (unsafe.Pointer, bool) {
	cn.mu.Lock()
	defer cn.mu.Unlock()

	type frame struct {
		slot *atomic.Pointer[child]
		node *inode
	}
	var stack []frame
	slot := &cn.root
	for {
		c := slot.Load()
		if c == nil {
			return nil, false
		}
		if c.leaf != nil {
			if c.leaf.key != key {
				return nil, false
			}
			value := c.leaf.value
			slot.Store(nil)
			cn.count.Add(-1)
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				collapseIfSingleton(top.slot, top.node)
			}
			return value, true
		}
		n := c.node
		if key&pathMask(n.shift) != n.path {
			return nil, false
		}
		stack = append(stack, frame{slot: slot, node: n})
		slot = &n.child[sliceIndex(key, n.shift)]
	}
}

// collapseIfSingleton replaces *slot (which currently points to {node: n})
// with n's sole remaining child, if n has exactly one.
func collapseIfSingleton(slot *atomic.Pointer[child], n *inode) {
	var only *child
	count := 0
	for i := range n.child {
		if c := n.child[i].Load(); c != nil {
			count++
			only = c
			if count > 1 {
				return
			}
		}
	}
	if count == 1 {
		slot.Store(only)
	}
}

// Dir selects which neighbor of the queried key Find returns.
type Dir int

const (
	// Lt finds the greatest key strictly below the query.
	Lt Dir = iota
	// Le finds the greatest key at or below the query.
	Le
	// Eq finds the query key itself.
	Eq
	// Ge finds the smallest key at or above the query.
	Ge
	// Gt finds the smallest key strictly above the query.
	Gt
)

// Find returns the entry related to key per dir, if any. The strict
// variants are implemented by shifting the query one key toward the
// requested side, which is exact because keys are integers.
func (cn *Critnib) Find(key uintptr, dir Dir) (uintptr, unsafe.Pointer, bool) {
	switch dir {
	case Lt:
		if key == 0 {
			return 0, nil, false
		}
		return cn.FindLE(key - 1)
	case Le:
		return cn.FindLE(key)
	case Eq:
		v, ok := cn.Get(key)
		if !ok {
			return 0, nil, false
		}
		return key, v, true
	case Ge:
		return cn.FindGE(key)
	case Gt:
		if key == ^uintptr(0) {
			return 0, nil, false
		}
		return cn.FindGE(key + 1)
	}
	return 0, nil, false
}

// FindLE returns the entry with the greatest key <= key, if any.
func (cn *Critnib) FindLE(key uintptr) (uintptr, unsafe.Pointer, bool) {
	leaf := findLE(cn.root.Load(), key)
	if leaf == nil {
		return 0, nil, false
	}
	return leaf.key, leaf.value, true
}

// FindGE returns the entry with the smallest key >= key, if any.
func (cn *Critnib) FindGE(key uintptr) (uintptr, unsafe.Pointer, bool) {
	leaf := findGE(cn.root.Load(), key)
	if leaf == nil {
		return 0, nil, false
	}
	return leaf.key, leaf.value, true
}

func findLE(c *child, key uintptr) *leafRec {
	if c == nil {
		return nil
	}
	if c.leaf != nil {
		if c.leaf.key <= key {
			return c.leaf
		}
		return nil
	}
	n := c.node
	prefix := key & pathMask(n.shift)
	if prefix != n.path {
		if prefix < n.path {
			return nil
		}
		return nodeMax(c)
	}
	idx := sliceIndex(key, n.shift)
	if res := findLE(n.child[idx].Load(), key); res != nil {
		return res
	}
	for j := int(idx) - 1; j >= 0; j-- {
		if cc := n.child[j].Load(); cc != nil {
			return nodeMax(cc)
		}
	}
	return nil
}

func findGE(c *child, key uintptr) *leafRec {
	if c == nil {
		return nil
	}
	if c.leaf != nil {
		if c.leaf.key >= key {
			return c.leaf
		}
		return nil
	}
	n := c.node
	prefix := key & pathMask(n.shift)
	if prefix != n.path {
		if prefix > n.path {
			return nil
		}
		return nodeMin(c)
	}
	idx := sliceIndex(key, n.shift)
	if res := findGE(n.child[idx].Load(), key); res != nil {
		return res
	}
	for j := int(idx) + 1; j < sliceSize; j++ {
		if cc := n.child[j].Load(); cc != nil {
			return nodeMin(cc)
		}
	}
	return nil
}

func nodeMax(c *child) *leafRec {
	for c != nil {
		if c.leaf != nil {
			return c.leaf
		}
		n := c.node
		var next *child
		for j := sliceSize - 1; j >= 0; j-- {
			if cc := n.child[j].Load(); cc != nil {
				next = cc
				break
			}
		}
		c = next
	}
	return nil
}

func nodeMin(c *child) *leafRec {
	for c != nil {
		if c.leaf != nil {
			return c.leaf
		}
		n := c.node
		var next *child
		for j := 0; j < sliceSize; j++ {
			if cc := n.child[j].Load(); cc != nil {
				next = cc
				break
			}
		}
		c = next
	}
	return nil
}

// Ascend calls fn for every key in [lo, hi) in ascending order, stopping
// early if fn returns false.
func (cn *Critnib) Ascend(lo, hi uintptr, fn func(key uintptr, value unsafe.Pointer) bool) {
	ascend(cn.root.Load(), lo, hi, fn)
}

func ascend(c *child, lo, hi uintptr, fn func(uintptr, unsafe.Pointer) bool) bool {
	if c == nil {
		return true
	}
	if c.leaf != nil {
		if c.leaf.key < lo || c.leaf.key >= hi {
			return true
		}
		return fn(c.leaf.key, c.leaf.value)
	}
	n := c.node
	for j := 0; j < sliceSize; j++ {
		if cc := n.child[j].Load(); cc != nil {
			if !ascend(cc, lo, hi, fn) {
				return false
			}
		}
	}
	return true
}

func sliceIndex(key uintptr, shift uint) uintptr { return (key >> shift) & sliceMask }

func pathMask(shift uint) uintptr {
	total := shift + sliceBits
	if total >= 64 {
		return ^uintptr(0)
	}
	return ^uintptr(0) << total
}

// divergingShift returns the shift (a multiple of sliceBits) of the
// highest slice at which diff has a set bit.
func divergingShift(diff uintptr) uint {
	top := bits.Len64(uint64(diff))
	if top == 0 {
		return 0
	}
	bit := uint(top - 1)
	return bit - bit%sliceBits
}

func splitLeaf(old *leafRec, key uintptr, value unsafe.Pointer) *inode {
	shift := divergingShift(old.key ^ key)
	n := &inode{path: key & pathMask(shift), shift: shift}
	n.child[sliceIndex(old.key, shift)].Store(&child{leaf: old})
	n.child[sliceIndex(key, shift)].Store(&child{leaf: &leafRec{key: key, value: value}})
	return n
}

func splitNode(n *inode, existing *child, key uintptr, value unsafe.Pointer) *inode {
	diff := (key & pathMask(n.shift)) ^ n.path
	shift := divergingShift(diff)
	newNode := &inode{path: key & pathMask(shift), shift: shift}
	newNode.child[sliceIndex(n.path, shift)].Store(existing)
	newNode.child[sliceIndex(key, shift)].Store(&child{leaf: &leafRec{key: key, value: value}})
	return newNode
}

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

package slab

import (
	"sync/atomic"
	"unsafe"

	"github.com/memkind-go/mtt/pkg/atomicbitops"
	"github.com/memkind-go/mtt/pkg/bigary"
	"github.com/memkind-go/mtt/pkg/mkerr"
)

const cacheLine = 64

// fastNode is a Treiber-stack freelist node for FastSlab. Unlike Slab,
// these nodes never live inline with the data they describe: they are
// themselves allocated from a nested, ordinary Slab, so the data region
// a FastSlab hands out carries zero allocator metadata.
type fastNode struct {
	addr uintptr
	next *fastNode
}

// FastSlab is a fixed-size-element allocator whose data slots are
// cache-line-aligned, metadata-free bump allocations from a bigary.Bigary
// arena. Its freelist is a Treiber stack of wrapper nodes drawn from a
// private inner Slab; every Free allocates one such wrapper (recycling a
// previously-returned one whenever possible) and every Alloc that hits
// the freelist returns its wrapper back to the inner Slab immediately
// after extracting the address.
type FastSlab struct {
	arena       *bigary.Bigary
	elementSize uint64
	slotSize    uint64

	bump atomicbitops.Uint64
	free atomic.Pointer[fastNode]

	nodeAlloc *Slab
	used      atomicbitops.Int64
}

// NewFast creates a FastSlab over arena whose elements are elementSize
// bytes, aligned to a cache line, backed by a nested node arena.
// nodeArena must be distinct from arena: both allocators bump from
// offset zero of their backing region, so sharing one Bigary would hand
// out the same addresses as both data slots and freelist nodes.
func NewFast(arena, nodeArena *bigary.Bigary, elementSize uint64) *FastSlab {
	if elementSize == 0 {
		elementSize = 1
	}
	return &FastSlab{
		arena:       arena,
		elementSize: elementSize,
		slotSize:    align(elementSize, cacheLine),
		nodeAlloc:   New(nodeArena, uint64(unsafe.Sizeof(fastNode{}))),
	}
}

// ElementSize returns the size of each element.
func (f *FastSlab) ElementSize() uint64 { return f.elementSize }

// Alloc returns the address of an elementSize-byte, cache-aligned slot.
func (f *FastSlab) Alloc() (uintptr, error) {
	addr, _, _, err := f.AllocPages()
	return addr, err
}

// AllocPages is Alloc plus a report of the address range this call
// caused the arena to newly cover: commitLen is zero when the slot was
// already backed, including every freelist hit. The range comes from
// the arena's own commit bookkeeping, taken under the arena mutex, so
// two concurrent callers never report the same bytes twice.
func (f *FastSlab) AllocPages() (addr, commitAddr uintptr, commitLen uint64, err error) {
	for {
		node := f.free.Load()
		if node == nil {
			break
		}
		if f.free.CompareAndSwap(node, node.next) {
			addr = node.addr
			f.nodeAlloc.Free(uintptr(unsafe.Pointer(node)))
			f.used.Add(1)
			return addr, 0, 0, nil
		}
	}

	off := f.bump.Add(f.slotSize) - f.slotSize
	from, n, err := f.arena.Alloc(off + f.slotSize)
	if err != nil {
		return 0, 0, 0, mkerr.Wrap(mkerr.OutOfMemory, err)
	}
	f.used.Add(1)
	addr = f.arena.Area() + uintptr(off)
	if n == 0 {
		return addr, 0, 0, nil
	}
	return addr, f.arena.Area() + uintptr(from), n, nil
}

// Free returns addr (as previously returned by Alloc) to the freelist.
func (f *FastSlab) Free(addr uintptr) error {
	raw, err := f.nodeAlloc.Alloc()
	if err != nil {
		return err
	}
	node := (*fastNode)(unsafe.Pointer(raw))
	node.addr = addr

	for {
		head := f.free.Load()
		node.next = head
		if f.free.CompareAndSwap(head, node) {
			f.used.Add(-1)
			return nil
		}
	}
}

// Stats reports the number of currently-allocated elements.
func (f *FastSlab) Stats() (used int64) { return f.used.Load() }

func align(v, a uint64) uint64 { return (v + a - 1) / a * a }

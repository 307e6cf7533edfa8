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

// Package slab implements fixed-size-element allocators backed by a
// bigary.Bigary arena. Slab embeds its freelist linkage immediately
// before each element, matching the layout of the allocator this package
// is modeled on; FastSlab (fastslab.go) instead keeps its data region
// free of any inline metadata and stores freelist nodes in a nested Slab.
package slab

import (
	"sync/atomic"
	"unsafe"

	"github.com/memkind-go/mtt/pkg/atomicbitops"
	"github.com/memkind-go/mtt/pkg/bigary"
	"github.com/memkind-go/mtt/pkg/mkerr"
)

// slotHeader is the inline freelist node: the first headerSize bytes of
// each slot hold this struct while the slot is free, and the caller's
// data starts right after them, so the header bytes are never handed
// out. The struct is reinterpreted in place via unsafe.Pointer, never
// copied.
type slotHeader struct {
	next *slotHeader
}

var headerSize = uint64(unsafe.Sizeof(slotHeader{}))

// Slab is a fixed-size-element allocator with a lock-free Treiber-stack
// freelist. Every element's storage is headerSize bytes larger than the
// requested element size to make room for the inline freelist node.
type Slab struct {
	arena       *bigary.Bigary
	elementSize uint64
	slotSize    uint64

	bump atomicbitops.Uint64
	free atomic.Pointer[slotHeader]
	used atomicbitops.Int64
}

// New creates a Slab over arena whose elements are elementSize bytes.
func New(arena *bigary.Bigary, elementSize uint64) *Slab {
	if elementSize == 0 {
		elementSize = 1
	}
	return &Slab{
		arena:       arena,
		elementSize: elementSize,
		slotSize:    align8(headerSize + elementSize),
	}
}

// ElementSize returns the usable (data) size of each element.
func (s *Slab) ElementSize() uint64 { return s.elementSize }

// Alloc returns a pointer to elementSize bytes of zero-initialized-or-
// reused storage, reusing a freed slot if one is available.
func (s *Slab) Alloc() (uintptr, error) {
	for {
		head := s.free.Load()
		if head == nil {
			break
		}
		next := head.next
		if s.free.CompareAndSwap(head, next) {
			s.used.Add(1)
			return dataPtr(uintptr(unsafe.Pointer(head))), nil
		}
	}

	// No free slot: bump-allocate a fresh one from the arena.
	off := s.bump.Add(s.slotSize) - s.slotSize
	if _, _, err := s.arena.Alloc(off + s.slotSize); err != nil {
		return 0, mkerr.Wrap(mkerr.OutOfMemory, err)
	}
	s.used.Add(1)
	return dataPtr(s.arena.Area() + uintptr(off)), nil
}

// Free returns ptr (as previously returned by Alloc) to the freelist.
func (s *Slab) Free(ptr uintptr) {
	hdr := (*slotHeader)(unsafe.Pointer(headerPtr(ptr)))
	for {
		head := s.free.Load()
		hdr.next = head
		if s.free.CompareAndSwap(head, hdr) {
			s.used.Add(-1)
			return
		}
	}
}

// Stats reports the number of currently-allocated elements.
func (s *Slab) Stats() (used int64) { return s.used.Load() }

func dataPtr(slotAddr uintptr) uintptr   { return slotAddr + uintptr(headerSize) }
func headerPtr(dataAddr uintptr) uintptr { return dataAddr - uintptr(headerSize) }

func align8(v uint64) uint64 { return (v + 7) &^ 7 }

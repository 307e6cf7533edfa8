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

// Package memkind is the public malloc-family surface: Handle wraps a
// tiermem.Policy with the usual malloc/calloc/realloc/posix_memalign/
// free/usable_size operations callers expect from an allocator.
package memkind

import (
	"math/bits"
	"sync"
	"unsafe"

	"github.com/memkind-go/mtt/pkg/mkerr"
	"github.com/memkind-go/mtt/pkg/slabtracker"
	"github.com/memkind-go/mtt/pkg/tiermem"
)

// UsableSizer reports the true usable size of a live allocation, which
// may exceed the size originally requested because allocations round up
// to their owning slab's element size.
type UsableSizer interface {
	UsableSize(ptr uintptr) (uint64, bool)
}

// TrackerSizer implements UsableSizer over one or more SlabTrackers,
// trying each in turn — used when a Handle's Policy spans more than one
// underlying pool allocator (StaticRatio, DynamicThreshold).
type TrackerSizer struct {
	Trackers []*slabtracker.SlabTracker
}

// UsableSize implements UsableSizer.
func (s *TrackerSizer) UsableSize(ptr uintptr) (uint64, bool) {
	for _, tr := range s.Trackers {
		if sl, ok := tr.Lookup(ptr); ok {
			return sl.ElementSize(), true
		}
	}
	return 0, false
}

// Handle is an allocator instance: immutable after construction, safe
// for concurrent use by every exported method.
type Handle struct {
	policy tiermem.Policy
	sizer  UsableSizer

	alignedMu   sync.Mutex
	alignedOrig map[uintptr]uintptr
}

// NewHandle builds a Handle over policy, using sizer to answer
// UsableSize and Realloc's "how much of the old allocation do I need to
// copy" question.
func NewHandle(policy tiermem.Policy, sizer UsableSizer) *Handle {
	return &Handle{
		policy:      policy,
		sizer:       sizer,
		alignedOrig: make(map[uintptr]uintptr),
	}
}

// Malloc returns size bytes of zero-or-garbage storage, or (0, nil) for
// a zero-size request, matching the standard malloc(0) contract instead
// of handing back a real, free-able one-byte allocation.
func (h *Handle) Malloc(size uint64) (uintptr, error) {
	if size == 0 {
		return 0, nil
	}
	ptr, _, err := h.policy.Alloc(size)
	return ptr, err
}

// Calloc returns n*size bytes of zeroed storage, rejecting overflow in
// the multiplication the way the original allocator's calloc guard
// does before ever reaching malloc. A total of zero returns (0, nil),
// the same as Malloc(0).
func (h *Handle) Calloc(n, size uint64) (uintptr, error) {
	hi, total := bits.Mul64(n, size)
	if hi != 0 {
		return 0, mkerr.New(mkerr.InvalidArgument, "memkind: calloc(%d, %d) overflows", n, size)
	}
	if total == 0 {
		return 0, nil
	}
	ptr, err := h.Malloc(total)
	if err != nil {
		return 0, err
	}
	zero(ptr, total)
	return ptr, nil
}

// Realloc resizes the allocation at ptr to newSize, preserving as much
// of its content as fits.
func (h *Handle) Realloc(ptr uintptr, newSize uint64) (uintptr, error) {
	if newSize == 0 {
		if ptr != 0 {
			if err := h.Free(ptr); err != nil {
				return 0, err
			}
		}
		return 0, nil
	}
	if ptr == 0 {
		return h.Malloc(newSize)
	}

	oldSize, ok := h.sizer.UsableSize(ptr)
	if !ok {
		return 0, mkerr.Wrap(mkerr.InvalidArgument, mkerr.ErrNotFound)
	}
	if oldSize == newSize {
		return ptr, nil
	}

	newPtr, err := h.Malloc(newSize)
	if err != nil {
		return 0, err
	}
	n := oldSize
	if newSize < n {
		n = newSize
	}
	copyBytes(newPtr, ptr, n)
	if err := h.Free(ptr); err != nil {
		return 0, err
	}
	return newPtr, nil
}

// PosixMemalign returns a size-byte allocation aligned to align, which
// must be a power of two. Over-aligned requests allocate extra padding
// from the underlying policy and hand back an interior pointer; Free
// recovers the original pointer from a side table.
func (h *Handle) PosixMemalign(align, size uint64) (uintptr, error) {
	if align == 0 || align&(align-1) != 0 {
		return 0, mkerr.New(mkerr.InvalidArgument, "memkind: alignment %d is not a power of two", align)
	}
	if align%uint64(unsafe.Sizeof(uintptr(0))) != 0 {
		return 0, mkerr.New(mkerr.InvalidArgument, "memkind: alignment %d is not a multiple of pointer size", align)
	}
	raw, _, err := h.policy.Alloc(size + align - 1)
	if err != nil {
		return 0, err
	}
	aligned := (raw + uintptr(align-1)) &^ uintptr(align-1)
	if aligned == raw {
		return raw, nil
	}
	h.alignedMu.Lock()
	h.alignedOrig[aligned] = raw
	h.alignedMu.Unlock()
	return aligned, nil
}

// Free releases ptr, previously returned by Malloc, Calloc, Realloc, or
// PosixMemalign.
func (h *Handle) Free(ptr uintptr) error {
	if ptr == 0 {
		return nil
	}
	h.alignedMu.Lock()
	orig, ok := h.alignedOrig[ptr]
	if ok {
		delete(h.alignedOrig, ptr)
	}
	h.alignedMu.Unlock()
	if ok {
		ptr = orig
	}
	return h.policy.Free(ptr)
}

// UsableSize returns the true usable size of the allocation at ptr,
// which rounds up to its owning slab's element size.
func (h *Handle) UsableSize(ptr uintptr) (uint64, error) {
	size, ok := h.sizer.UsableSize(ptr)
	if !ok {
		return 0, mkerr.Wrap(mkerr.InvalidArgument, mkerr.ErrNotFound)
	}
	return size, nil
}

func zero(ptr uintptr, n uint64) {
	buf := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n)
	for i := range buf {
		buf[i] = 0
	}
}

func copyBytes(dst, src uintptr, n uint64) {
	d := unsafe.Slice((*byte)(unsafe.Pointer(dst)), n)
	s := unsafe.Slice((*byte)(unsafe.Pointer(src)), n)
	copy(d, s)
}

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

package memkind

import (
	"testing"
	"unsafe"

	"github.com/memkind-go/mtt/pkg/bigary"
	"github.com/memkind-go/mtt/pkg/pool"
	"github.com/memkind-go/mtt/pkg/slabtracker"
	"github.com/memkind-go/mtt/pkg/tiermem"
)

// poolPolicy adapts a single pool.Allocator into a tiermem.Policy for
// tests that don't need tiering at all.
type poolPolicy struct{ p *pool.Allocator }

func (pp *poolPolicy) Alloc(size uint64) (uintptr, tiermem.TierID, error) {
	ptr, err := pp.p.Malloc(size)
	return ptr, tiermem.Near, err
}
func (pp *poolPolicy) Free(ptr uintptr) error { return pp.p.Free(ptr) }

func newTestHandle(t *testing.T) *Handle {
	t.Helper()
	arena, err := bigary.New(256 * bigary.PageSize)
	if err != nil {
		t.Fatalf("bigary.New: %v", err)
	}
	t.Cleanup(func() { arena.Destroy() })
	tracker := slabtracker.New(uintptr(bigary.PageSize))
	p := pool.New(arena, tracker, uintptr(bigary.PageSize))
	return NewHandle(&poolPolicy{p: p}, &TrackerSizer{Trackers: []*slabtracker.SlabTracker{tracker}})
}

func TestMallocFreeUsableSize(t *testing.T) {
	h := newTestHandle(t)
	ptr, err := h.Malloc(20)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}
	size, err := h.UsableSize(ptr)
	if err != nil {
		t.Fatalf("UsableSize: %v", err)
	}
	if size < 20 {
		t.Fatalf("UsableSize() = %d, want >= 20", size)
	}
	if err := h.Free(ptr); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

func TestCallocZeroesAndRejectsOverflow(t *testing.T) {
	h := newTestHandle(t)
	ptr, err := h.Calloc(10, 8)
	if err != nil {
		t.Fatalf("Calloc: %v", err)
	}
	buf := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), 80)
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("Calloc buffer not zeroed at %d", i)
		}
	}

	if _, err := h.Calloc(1<<63, 2); err == nil {
		t.Fatalf("Calloc overflow: want error")
	}
}

func TestMallocZeroReturnsNull(t *testing.T) {
	h := newTestHandle(t)
	ptr, err := h.Malloc(0)
	if err != nil {
		t.Fatalf("Malloc(0): %v", err)
	}
	if ptr != 0 {
		t.Fatalf("Malloc(0) = %#x, want 0", ptr)
	}
}

func TestCallocZeroTotalReturnsNull(t *testing.T) {
	h := newTestHandle(t)
	ptr, err := h.Calloc(0, 8)
	if err != nil {
		t.Fatalf("Calloc(0, 8): %v", err)
	}
	if ptr != 0 {
		t.Fatalf("Calloc(0, 8) = %#x, want 0", ptr)
	}
	if ptr, err = h.Calloc(8, 0); err != nil {
		t.Fatalf("Calloc(8, 0): %v", err)
	} else if ptr != 0 {
		t.Fatalf("Calloc(8, 0) = %#x, want 0", ptr)
	}
}

func TestReallocPreservesContentAndGrows(t *testing.T) {
	h := newTestHandle(t)
	ptr, err := h.Malloc(16)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}
	buf := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), 16)
	for i := range buf {
		buf[i] = byte(i + 1)
	}

	newPtr, err := h.Realloc(ptr, 64)
	if err != nil {
		t.Fatalf("Realloc: %v", err)
	}
	newBuf := unsafe.Slice((*byte)(unsafe.Pointer(newPtr)), 16)
	for i := range newBuf {
		if newBuf[i] != byte(i+1) {
			t.Fatalf("Realloc lost content at %d: got %d", i, newBuf[i])
		}
	}
}

func TestReallocToZeroFrees(t *testing.T) {
	h := newTestHandle(t)
	ptr, err := h.Malloc(16)
	if err != nil {
		t.Fatalf("Malloc: %v", err)
	}
	if _, err := h.Realloc(ptr, 0); err != nil {
		t.Fatalf("Realloc to 0: %v", err)
	}
	if _, err := h.UsableSize(ptr); err == nil {
		t.Fatalf("UsableSize after Realloc-to-zero: want error (freed)")
	}
}

func TestPosixMemalignAlignsAndFrees(t *testing.T) {
	h := newTestHandle(t)
	ptr, err := h.PosixMemalign(128, 32)
	if err != nil {
		t.Fatalf("PosixMemalign: %v", err)
	}
	if ptr%128 != 0 {
		t.Fatalf("PosixMemalign: ptr %#x not aligned to 128", ptr)
	}
	if err := h.Free(ptr); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

func TestPosixMemalignRejectsBadAlignment(t *testing.T) {
	h := newTestHandle(t)
	if _, err := h.PosixMemalign(3, 32); err == nil {
		t.Fatalf("PosixMemalign(3, ...): want error for non-power-of-two alignment")
	}
}

func TestPosixMemalignRejectsSubPointerAlignment(t *testing.T) {
	h := newTestHandle(t)
	if _, err := h.PosixMemalign(2, 32); err == nil {
		t.Fatalf("PosixMemalign(2, ...): want error for alignment smaller than pointer size")
	}
}

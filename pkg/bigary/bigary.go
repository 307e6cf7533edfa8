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

// Package bigary implements a large, sparsely-committed virtual memory
// region: a fixed amount of address space is reserved up front with
// PROT_NONE, and pages are committed on demand as the region grows.
package bigary

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/memkind-go/mtt/pkg/atomicbitops"
)

// DefaultMax is the default size of the reserved address space, matching
// the original allocator's default ceiling.
const DefaultMax = 4 << 30 // 4 GiB

// PageSize is the granularity at which Bigary extends its committed
// region. It need not match the host's hardware page size; it is chosen
// to amortize the cost of mmap calls on the hot allocation path.
const PageSize = 2 << 20 // 2 MiB

var log = logrus.WithField("component", "bigary")

// Bigary is a reserved region of address space that grows by committing
// additional pages as callers request more of it. It never moves once
// initialized, so pointers into it remain valid for its lifetime.
type Bigary struct {
	mu sync.Mutex

	area     uintptr
	declared uint64
	top      atomicbitops.Uint64
	// reported is the extent some Alloc call has taken responsibility
	// for; it trails top only by the page New commits up front.
	reported atomicbitops.Uint64

	fd       int
	hogMemory bool
}

// Option configures a Bigary at construction time.
type Option func(*Bigary)

// WithFile backs the reservation with the given file descriptor instead
// of an anonymous mapping. This hook exists for a file-backed persistent
// memory tier; no such tier is implemented by this module, but the
// plumbing is kept so a future backend can use it without touching the
// commit/grow logic below.
func WithFile(fd uintptr) Option {
	return func(b *Bigary) { b.fd = int(fd) }
}

// WithHogMemory causes Destroy to retain the mapping instead of
// unmapping it, matching the original allocator's "never give pages back
// to the OS" mode.
func WithHogMemory(hog bool) Option {
	return func(b *Bigary) { b.hogMemory = hog }
}

// New reserves declared bytes of address space (rounded up to PageSize)
// and commits the first page.
func New(declared uint64, opts ...Option) (*Bigary, error) {
	if declared == 0 {
		declared = DefaultMax
	}
	declared = roundUp(declared, PageSize)

	b := &Bigary{fd: -1}
	for _, opt := range opts {
		opt(b)
	}

	prot := unix.PROT_NONE
	flags := unix.MAP_PRIVATE | unix.MAP_ANON
	if b.fd >= 0 {
		flags = unix.MAP_PRIVATE
	}
	region, err := unix.Mmap(b.fd, 0, int(declared), prot, flags)
	if err != nil {
		return nil, fmt.Errorf("bigary: reserve %d bytes: %w", declared, err)
	}
	area := uintptr(unsafe.Pointer(&region[0]))

	if err := unix.Mprotect(region[:PageSize], unix.PROT_READ|unix.PROT_WRITE); err != nil {
		unix.Munmap(region)
		return nil, fmt.Errorf("bigary: commit first page: %w", err)
	}

	b.area = area
	b.declared = declared
	b.top.Store(PageSize)
	log.WithField("declared", declared).Debug("bigary reserved")
	return b, nil
}

// Area returns the base address of the reserved region.
func (b *Bigary) Area() uintptr { return b.area }

// Top returns the current committed extent, in bytes from the base.
func (b *Bigary) Top() uint64 { return b.top.Load() }

// Declared returns the total reserved extent, in bytes.
func (b *Bigary) Declared() uint64 { return b.declared }

// Stats reports (declared, top) for introspection.
func (b *Bigary) Stats() (declared, top uint64) {
	return b.declared, b.top.Load()
}

// Alloc ensures that at least newTop bytes from the base are committed,
// growing the mapping if necessary, and returns the byte range (offset
// from base, length) this call newly covered — zero-length when another
// caller already covered it. The range is computed under the same mutex
// as the commit itself, so concurrent callers partition the region with
// no overlap; the page committed at construction is attributed to the
// first Alloc that reaches it. The fast path (already covered) takes no
// lock.
func (b *Bigary) Alloc(newTop uint64) (from, n uint64, err error) {
	newTop = roundUp(newTop, PageSize)
	if newTop <= b.reported.Load() {
		return 0, 0, nil
	}
	if newTop > b.declared {
		return 0, 0, fmt.Errorf("bigary: grow to %d exceeds declared size %d", newTop, b.declared)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.reported.Load()
	if newTop <= prev {
		return 0, 0, nil
	}
	if top := b.top.Load(); newTop > top {
		region := regionBytes(b.area+uintptr(top), newTop-top)
		if err := unix.Mprotect(region, unix.PROT_READ|unix.PROT_WRITE); err != nil {
			return 0, 0, fmt.Errorf("bigary: commit [%d,%d): %w", top, newTop, err)
		}
		b.top.Store(newTop)
	}
	b.reported.Store(newTop)
	return prev, newTop - prev, nil
}

// Destroy releases the reserved region. If the Bigary was constructed
// with WithHogMemory(true), the mapping is retained instead.
func (b *Bigary) Destroy() error {
	if b.hogMemory {
		log.Debug("bigary destroy: hog_memory set, retaining mapping")
		return nil
	}
	region := regionBytes(b.area, b.declared)
	if err := unix.Munmap(region); err != nil {
		return fmt.Errorf("bigary: munmap: %w", err)
	}
	return nil
}

func roundUp(v, align uint64) uint64 {
	return (v + align - 1) / align * align
}

// regionBytes reinterprets the n bytes starting at addr as a byte slice,
// for passing to unix.Mprotect/unix.Munmap which operate on []byte views
// of a still-reserved mapping.
func regionBytes(addr uintptr, n uint64) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

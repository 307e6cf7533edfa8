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

// Package pool implements a size-classed allocator over a FastSlab per
// (size class, shard) pair, installed lazily with a CAS-install-or-
// discard-and-reload pattern so concurrent first allocations never
// block on a lock.
package pool

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/memkind-go/mtt/pkg/atomicbitops"
	"github.com/memkind-go/mtt/pkg/bigary"
	"github.com/memkind-go/mtt/pkg/mkerr"
	"github.com/memkind-go/mtt/pkg/slab"
	"github.com/memkind-go/mtt/pkg/slabtracker"
)

// numShards is the number of independent FastSlab instances kept per
// size class, selected by hash16 to spread contention.
const numShards = 16

var log = logrus.WithField("component", "pool")

type sizeClass struct {
	shards [numShards]atomic.Pointer[slab.FastSlab]
}

// Allocator is a size-classed allocator. Each (rank, shard) pair gets
// its own pair of private Bigary arenas — one for data, one for the
// FastSlab's internal freelist nodes — minted lazily the first time
// that shard is installed, so no two shards ever bump-allocate against
// the same base address. template only supplies the declared size and
// hog_memory setting every minted arena is built with. Every page
// committed is registered with a SlabTracker so pointers can be routed
// back to their owning shard on Free.
type Allocator struct {
	template  *bigary.Bigary
	hogMemory bool
	tracker   *slabtracker.SlabTracker
	pageSize  uintptr
	onCommit  func(addr uintptr, n uint64)

	classes [NumRanks]sizeClass
	seq     atomicbitops.Uint64

	mu    sync.Mutex
	owned []*bigary.Bigary
}

// Option configures an Allocator at construction time.
type Option func(*Allocator)

// WithOnCommit registers a callback invoked with every page range newly
// committed by Malloc, in page-sized units starting at addr. This is
// how the migration engine learns about fresh address ranges to trace
// without the pool allocator needing to know anything about tiering.
func WithOnCommit(fn func(addr uintptr, n uint64)) Option {
	return func(a *Allocator) { a.onCommit = fn }
}

// WithHogMemory carries the hog_memory setting through to every arena
// the Allocator mints for a shard, matching the template arena's own
// teardown behavior.
func WithHogMemory(hog bool) Option {
	return func(a *Allocator) { a.hogMemory = hog }
}

// New creates an Allocator sized off template: every per-shard arena it
// lazily mints reserves template.Declared() bytes. template itself is
// never used to back an allocation and remains owned by the caller.
// Newly-committed pages are registered in tracker.
func New(template *bigary.Bigary, tracker *slabtracker.SlabTracker, pageSize uintptr, opts ...Option) *Allocator {
	a := &Allocator{
		template: template,
		tracker:  tracker,
		pageSize: pageSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Malloc returns size bytes of storage, registering any newly committed
// pages with the pool's SlabTracker.
func (a *Allocator) Malloc(size uint64) (uintptr, error) {
	if size == 0 {
		size = 1
	}
	rank := sizeToRank(size)
	if rank >= NumRanks {
		return 0, mkerr.New(mkerr.InvalidArgument, "pool: size %d exceeds largest size class", size)
	}
	class := &a.classes[rank]

	shardIdx := hash16(a.seq.Add(1)) % numShards
	shard := class.shards[shardIdx].Load()
	if shard == nil {
		dataArena, err := a.newShardArena()
		if err != nil {
			return 0, err
		}
		nodeArena, err := a.newShardArena()
		if err != nil {
			dataArena.Destroy()
			return 0, err
		}
		candidate := slab.NewFast(dataArena, nodeArena, rankToSize(rank))
		if class.shards[shardIdx].CompareAndSwap(nil, candidate) {
			shard = candidate
			a.track(dataArena, nodeArena)
		} else {
			// Another goroutine installed first; discard our candidate
			// arenas (nothing was allocated from them yet) and use theirs.
			dataArena.Destroy()
			nodeArena.Destroy()
			shard = class.shards[shardIdx].Load()
		}
	}

	ptr, commitAddr, commitLen, err := shard.AllocPages()
	if err != nil {
		return 0, err
	}
	if commitLen > 0 {
		a.registerNewPages(commitAddr, commitLen, shard)
	}
	return ptr, nil
}

// newShardArena mints a fresh, independently-reserved Bigary sized and
// configured like the Allocator's template. Separate mmap reservations
// never overlap in address space, which is what guarantees two shards'
// bump-allocation offsets can never alias the same pointer.
func (a *Allocator) newShardArena() (*bigary.Bigary, error) {
	arena, err := bigary.New(a.template.Declared(), bigary.WithHogMemory(a.hogMemory))
	if err != nil {
		return nil, mkerr.Wrap(mkerr.OutOfMemory, err)
	}
	return arena, nil
}

// track records arenas as owned by this Allocator so Close can release
// them later.
func (a *Allocator) track(arenas ...*bigary.Bigary) {
	a.mu.Lock()
	a.owned = append(a.owned, arenas...)
	a.mu.Unlock()
}

// Close releases every per-shard arena this Allocator has minted. The
// template arena passed to New is owned by its caller and untouched.
func (a *Allocator) Close() error {
	a.mu.Lock()
	owned := a.owned
	a.owned = nil
	a.mu.Unlock()

	var first error
	for _, arena := range owned {
		if err := arena.Destroy(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Free returns ptr to the shard that owns it, found via the SlabTracker.
func (a *Allocator) Free(ptr uintptr) error {
	s, ok := a.tracker.Lookup(ptr)
	if !ok {
		return mkerr.Wrap(mkerr.InvalidArgument, mkerr.ErrNotFound)
	}
	return s.Free(ptr)
}

// OwnerOf reports whether ptr was handed out by this Allocator. The
// tier facade asks each registered backend in turn on Free, and
// SlabTracker lookup is exactly the pointer-identity check that
// answers it (see pkg/engine's Backend adapter).
func (a *Allocator) OwnerOf(ptr uintptr) bool {
	_, ok := a.tracker.Lookup(ptr)
	return ok
}

// UsableSize returns the element size of the slab owning ptr, or false
// if ptr is not owned by this Allocator.
func (a *Allocator) UsableSize(ptr uintptr) (uint64, bool) {
	s, ok := a.tracker.Lookup(ptr)
	if !ok {
		return 0, false
	}
	return s.ElementSize(), true
}

// registerNewPages records every traced page in [start, start+length)
// as owned by s and reports the range through onCommit. Callers pass
// only ranges the arena attributed to their own AllocPages call, so a
// page is registered and reported at most once; a registration that
// still collides is skipped without being counted.
func (a *Allocator) registerNewPages(start uintptr, length uint64, s *slab.FastSlab) {
	n := uint64(0)
	for off := uint64(0); off < length; off += uint64(a.pageSize) {
		addr := start + uintptr(off)
		if err := a.tracker.Register(addr, s); err != nil {
			if !mkerr.Is(err, mkerr.Exists) {
				log.WithError(err).WithField("addr", addr).Warn("pool: failed to register page with tracker")
			}
			continue
		}
		n++
	}
	if n > 0 && a.onCommit != nil {
		a.onCommit(start, n)
	}
}

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

package ranking

import (
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/memkind-go/mtt/pkg/atomicbitops"
	"github.com/memkind-go/mtt/pkg/mkerr"
)

// TimestampRefreshNanos bounds how far into the past Update will walk
// the last-touch index looking for pages to refresh, matching the
// original allocator's three-minute window.
const TimestampRefreshNanos = int64(3 * 60 * 1_000_000_000)

// ToTouchMax bounds how many stale pages Update refreshes in a single
// call, so a long-idle Ranking can't make one tick unboundedly slow.
const ToTouchMax = 1024

type hotKey struct {
	hotness float64
	addr    uintptr
}

func lessHot(a, b hotKey) bool {
	if a.hotness != b.hotness {
		return a.hotness < b.hotness
	}
	return a.addr < b.addr
}

type lruKey struct {
	ts   int64
	addr uintptr
}

func lessLRU(a, b lruKey) bool {
	if a.ts != b.ts {
		return a.ts < b.ts
	}
	return a.addr < b.addr
}

// Ranking tracks a set of pages ordered by decaying hotness and by
// last-touch time, supporting O(log n) access to the hottest, coldest,
// and stalest pages.
type Ranking struct {
	mu sync.Mutex

	pageSize uint64

	byAddr    map[uintptr]*PageMetadata
	byHotness *btree.BTreeG[hotKey]
	byLRU     *btree.BTreeG[lruKey]

	pending map[uintptr]*PageMetadata

	totalSize atomicbitops.Uint64
}

// New creates an empty Ranking over pages of the given size.
func New(pageSize uint64) *Ranking {
	return &Ranking{
		pageSize:  pageSize,
		byAddr:    make(map[uintptr]*PageMetadata),
		byHotness: btree.NewG(32, lessHot),
		byLRU:     btree.NewG(32, lessLRU),
		pending:   make(map[uintptr]*PageMetadata),
	}
}

// TotalSize returns the total number of bytes tracked by this Ranking.
func (r *Ranking) TotalSize() uint64 { return r.totalSize.Load() }

// Len returns the number of tracked pages.
func (r *Ranking) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byAddr)
}

func (r *Ranking) keyFor(p *PageMetadata) (hotKey, lruKey) {
	return hotKey{hotness: p.Hotness.Value(), addr: p.StartAddr}, lruKey{ts: p.Hotness.previousTimestamp, addr: p.StartAddr}
}

func (r *Ranking) insertLocked(p *PageMetadata) {
	hk, lk := r.keyFor(p)
	r.byHotness.ReplaceOrInsert(hk)
	r.byLRU.ReplaceOrInsert(lk)
	r.byAddr[p.StartAddr] = p
}

func (r *Ranking) removeLocked(p *PageMetadata) {
	hk, lk := r.keyFor(p)
	r.byHotness.Delete(hk)
	r.byLRU.Delete(lk)
	delete(r.byAddr, p.StartAddr)
}

// AddPages registers n consecutive pages starting at addr, all stamped
// with ts, inheriting the current hottest page's hotness (or starting
// cold if the Ranking is empty) so a freshly-traced range doesn't look
// artificially cold relative to everything already tracked.
func (r *Ranking) AddPages(addr uintptr, n uint64, ts int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var inherit *Hotness
	if max, ok := r.byHotness.Max(); ok {
		if hottest := r.byAddr[max.addr]; hottest != nil {
			inherit = &hottest.Hotness
		}
	}

	for i := uint64(0); i < n; i++ {
		pageAddr := addr + uintptr(i*r.pageSize)
		if _, dup := r.byAddr[pageAddr]; dup {
			// A second metadata record for the same page would desync
			// totalSize from the index contents and leave an orphaned
			// entry in the ordered indexes; the producer must report
			// each committed page exactly once.
			panic(mkerr.NewFatal("ranking.page-unique", fmt.Sprintf("page %#x already tracked", pageAddr)))
		}
		h := NewHotness(ts, inherit)
		p := &PageMetadata{StartAddr: pageAddr, Hotness: h}
		r.insertLocked(p)
	}
	r.totalSize.Add(n * r.pageSize)
}

// Touch records a touch on the page containing addr, returning whether
// a tracked page was found.
func (r *Ranking) Touch(addr uintptr) bool {
	pageAddr := addr &^ (uintptr(r.pageSize) - 1)

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byAddr[pageAddr]
	if !ok {
		return false
	}
	if wasEmpty := p.Touch(); wasEmpty {
		r.pending[p.StartAddr] = p
	}
	return true
}

// Update folds every pending touch into its page's Hotness as of ts,
// additionally sweeping up to ToTouchMax pages whose last update is
// older than oldestTimestamp so long-untouched pages still decay.
func (r *Ranking) Update(ts, oldestTimestamp int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	swept := 0
	r.byLRU.Ascend(func(k lruKey) bool {
		if k.ts >= oldestTimestamp || swept >= ToTouchMax {
			return false
		}
		if p := r.byAddr[k.addr]; p != nil {
			if _, queued := r.pending[p.StartAddr]; !queued {
				p.markTouched()
				r.pending[p.StartAddr] = p
			}
		}
		swept++
		return true
	})

	for addr, p := range r.pending {
		r.removeLocked(p)
		p.UpdateHotness(ts)
		r.insertLocked(p)
		delete(r.pending, addr)
	}
}

// popExtreme removes and returns the page at the hot or cold end of the
// hotness index.
func (r *Ranking) popExtreme(hottest bool) (PageMetadata, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var key hotKey
	var ok bool
	if hottest {
		key, ok = r.byHotness.Max()
	} else {
		key, ok = r.byHotness.Min()
	}
	if !ok {
		return PageMetadata{}, false
	}
	p := r.byAddr[key.addr]
	r.removeLocked(p)
	delete(r.pending, p.StartAddr)
	r.totalSize.Sub(r.pageSize)
	return *p, true
}

// PopHottest removes and returns the page with the highest hotness.
func (r *Ranking) PopHottest() (PageMetadata, bool) { return r.popExtreme(true) }

// PopColdest removes and returns the page with the lowest hotness.
func (r *Ranking) PopColdest() (PageMetadata, bool) { return r.popExtreme(false) }

// HottestValue returns the hotness of the hottest tracked page, or
// (0, false) if the Ranking is empty — used by the migration engine's
// promote/demote swap loop without removing the page.
func (r *Ranking) HottestValue() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.byHotness.Max()
	if !ok {
		return 0, false
	}
	return k.hotness, true
}

// ColdestValue mirrors HottestValue for the coldest tracked page.
func (r *Ranking) ColdestValue() (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.byHotness.Min()
	if !ok {
		return 0, false
	}
	return k.hotness, true
}

// AddPage re-inserts a page previously removed by Pop{Hottest,Coldest}
// from another Ranking, preserving its accumulated Hotness.
func (r *Ranking) AddPage(p PageMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p
	r.insertLocked(&cp)
	r.totalSize.Add(r.pageSize)
}

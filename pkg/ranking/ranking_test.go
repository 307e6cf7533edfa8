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

import "testing"

const testPageSize = 4096

func TestAddPagesAndTotalSize(t *testing.T) {
	r := New(testPageSize)
	r.AddPages(0x10000, 4, 1000)
	if got, want := r.TotalSize(), uint64(4*testPageSize); got != want {
		t.Fatalf("TotalSize() = %d, want %d", got, want)
	}
	if got, want := r.Len(), 4; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
}

func TestTouchAndUpdatePromotesHotness(t *testing.T) {
	r := New(testPageSize)
	r.AddPages(0x10000, 2, 0)

	hot := uintptr(0x10000)
	cold := uintptr(0x10000 + testPageSize)

	ts := int64(0)
	for i := 0; i < 5; i++ {
		ts += int64(1e9) // 1 second
		if !r.Touch(hot) {
			t.Fatalf("Touch(hot): page not found")
		}
		r.Update(ts, -1)
	}

	hottest, ok := r.PopHottest()
	if !ok {
		t.Fatalf("PopHottest: empty")
	}
	if hottest.StartAddr != hot {
		t.Fatalf("PopHottest() = %#x, want %#x (cold untouched page was %#x)", hottest.StartAddr, hot, cold)
	}

	coldest, ok := r.PopColdest()
	if !ok {
		t.Fatalf("PopColdest: empty")
	}
	if coldest.StartAddr != cold {
		t.Fatalf("PopColdest() = %#x, want %#x", coldest.StartAddr, cold)
	}
}

func TestAddPageReinsertsMigratedPage(t *testing.T) {
	src := New(testPageSize)
	dst := New(testPageSize)

	src.AddPages(0x20000, 1, 0)
	src.Touch(0x20000)
	src.Update(int64(1e9), -1)

	p, ok := src.PopHottest()
	if !ok {
		t.Fatalf("PopHottest: empty")
	}
	if got := src.Len(); got != 0 {
		t.Fatalf("src.Len() after pop = %d, want 0", got)
	}

	dst.AddPage(p)
	if got := dst.Len(); got != 1 {
		t.Fatalf("dst.Len() after AddPage = %d, want 1", got)
	}
	if got := dst.TotalSize(); got != testPageSize {
		t.Fatalf("dst.TotalSize() = %d, want %d", got, testPageSize)
	}
}

func TestAddPagesDuplicateAddressPanics(t *testing.T) {
	r := New(testPageSize)
	r.AddPages(0x60000, 1, 0)
	defer func() {
		if recover() == nil {
			t.Fatalf("AddPages with an already-tracked address did not panic")
		}
	}()
	r.AddPages(0x60000, 1, 0)
}

func TestMarkTouchedDoesNotRecordATouch(t *testing.T) {
	p := &PageMetadata{StartAddr: 0x1000, Hotness: NewHotness(0, nil)}
	p.markTouched()
	if p.touches != 0 {
		t.Fatalf("markTouched: touches = %d, want 0", p.touches)
	}
	if !p.touched {
		t.Fatalf("markTouched: touched = false, want true")
	}
}

func TestStaleSweepDecaysWithoutPhantomTouch(t *testing.T) {
	r := New(testPageSize)
	r.AddPages(0x40000, 1, 0)
	addr := uintptr(0x40000)

	if !r.Touch(addr) {
		t.Fatalf("Touch: page not found")
	}
	r.Update(int64(1e9), -1)
	v1, ok := r.HottestValue()
	if !ok || v1 <= 0 {
		t.Fatalf("HottestValue() after a real touch = %v, want > 0", v1)
	}

	// oldestTimestamp forces the stale-page sweep to pick this page up
	// even though nothing touches it again; its hotness must only decay.
	r.Update(int64(5e9), int64(2e9))
	v2, ok := r.HottestValue()
	if !ok || v2 >= v1 {
		t.Fatalf("HottestValue() after untouched sweep = %v, want < %v (decay only, no phantom touch)", v2, v1)
	}
}

func TestStaleSweepCoversEveryStalePage(t *testing.T) {
	r := New(testPageSize)
	r.AddPages(0x50000, 3, 0)

	for i := uintptr(0); i < 3; i++ {
		r.Touch(0x50000 + i*testPageSize)
	}
	r.Update(int64(1e9), -1)

	before := make(map[uintptr]float64)
	r.mu.Lock()
	for addr, p := range r.byAddr {
		before[addr] = p.Hotness.Value()
	}
	r.mu.Unlock()

	// Every page is stale relative to the cutoff; a single Update must
	// decay all of them, not just the oldest.
	r.Update(int64(10e9), int64(5e9))
	r.mu.Lock()
	defer r.mu.Unlock()
	for addr, p := range r.byAddr {
		if got := p.Hotness.Value(); got >= before[addr] {
			t.Errorf("page %#x did not decay in sweep: before=%v after=%v", addr, before[addr], got)
		}
	}
}

func TestHotnessUpdateZeroIntervalKeepsValue(t *testing.T) {
	h := NewHotness(0, nil)
	h.Update(10, int64(1e9))
	v1 := h.Value()
	h.Update(0, int64(1e9))
	if v2 := h.Value(); v2 != v1 {
		t.Fatalf("zero-interval update changed value: before=%v after=%v", v1, v2)
	}
}

func TestHotnessDecaysOverTime(t *testing.T) {
	h := NewHotness(0, nil)
	h.Update(10, 0)
	v1 := h.Value()
	if v1 <= 0 {
		t.Fatalf("Value() after touches = %v, want > 0", v1)
	}
	h.Update(0, int64(1e9*3600)) // an hour with no further touches
	v2 := h.Value()
	if v2 >= v1 {
		t.Fatalf("Value() did not decay: before=%v after=%v", v1, v2)
	}
}

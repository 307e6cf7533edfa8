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

package tiermem

import "testing"

// fakeBackend is an in-memory Backend stand-in for policy unit tests.
type fakeBackend struct {
	name  string
	next  uintptr
	owned map[uintptr]bool
	fail  bool
}

func newFakeBackend(name string, base uintptr) *fakeBackend {
	return &fakeBackend{name: name, next: base, owned: make(map[uintptr]bool)}
}

func (f *fakeBackend) Alloc(size uint64) (uintptr, error) {
	if f.fail {
		return 0, errFake
	}
	ptr := f.next
	f.next += uintptr(size)
	f.owned[ptr] = true
	return ptr, nil
}

func (f *fakeBackend) Free(ptr uintptr) error {
	delete(f.owned, ptr)
	return nil
}

func (f *fakeBackend) OwnerOf(ptr uintptr) bool { return f.owned[ptr] }

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errFake = fakeErr("fake backend failure")

func TestStaticRatioConvergesToTarget(t *testing.T) {
	near := newFakeBackend("near", 0x1000)
	far := newFakeBackend("far", 0x100000)
	p, err := NewStaticRatio(near, far, 0.25)
	if err != nil {
		t.Fatalf("NewStaticRatio: %v", err)
	}

	var nearCount, total int
	for i := 0; i < 100; i++ {
		_, tier, err := p.Alloc(64)
		if err != nil {
			t.Fatalf("Alloc: %v", err)
		}
		total++
		if tier == Near {
			nearCount++
		}
	}
	frac := float64(nearCount) / float64(total)
	if frac < 0.15 || frac > 0.35 {
		t.Fatalf("near fraction = %v, want close to 0.25", frac)
	}
}

func TestStaticRatioInvalidRatio(t *testing.T) {
	near := newFakeBackend("near", 0x1000)
	far := newFakeBackend("far", 0x100000)
	if _, err := NewStaticRatio(near, far, 0); err == nil {
		t.Fatalf("NewStaticRatio(0): want error")
	}
	if _, err := NewStaticRatio(near, far, 1.5); err == nil {
		t.Fatalf("NewStaticRatio(1.5): want error")
	}
}

func TestDynamicThresholdSpillsToFarAsNearFills(t *testing.T) {
	near := newFakeBackend("near", 0x1000)
	far := newFakeBackend("far", 0x100000)
	p := NewDynamicThreshold(near, far, 1024, 256)

	_, tier, err := p.Alloc(100)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if tier != Near {
		t.Fatalf("first small alloc went to %v, want Near", tier)
	}

	// Fill near close to capacity with requests small enough to stay
	// under the shrinking threshold (700 of 1024 bytes leaves a threshold
	// of 81), then the same small request should spill to far because the
	// scaled threshold has shrunk below it.
	for i := 0; i < 6; i++ {
		if _, _, err := p.Alloc(100); err != nil {
			t.Fatalf("Alloc: %v", err)
		}
	}
	_, tier, err = p.Alloc(100)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if tier != Far {
		t.Fatalf("alloc after filling near went to %v, want Far", tier)
	}
}

func TestFreeRoutesByOwnership(t *testing.T) {
	near := newFakeBackend("near", 0x1000)
	far := newFakeBackend("far", 0x100000)
	p := NewDynamicThreshold(near, far, 1<<20, 256)

	ptr, tier, err := p.Alloc(64)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if tier != Near {
		t.Fatalf("tier = %v, want Near", tier)
	}
	if err := p.Free(ptr); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if near.owned[ptr] {
		t.Fatalf("Free did not remove ownership from near backend")
	}

	if err := p.Free(0xdeadbeef); err == nil {
		t.Fatalf("Free(unowned): want error")
	}
}

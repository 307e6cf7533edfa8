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

package critnib

import (
	"sort"
	"sync"
	"testing"
	"unsafe"

	"github.com/memkind-go/mtt/pkg/mkerr"
)

func val(i int) unsafe.Pointer {
	v := i
	return unsafe.Pointer(&v)
}

func TestInsertGetRemove(t *testing.T) {
	cn := New()
	keys := []uintptr{0x1000, 0x2000, 0x1800, 0x1080, 0xffffffff, 0x10000000000}

	for i, k := range keys {
		if err := cn.Insert(k, val(i)); err != nil {
			t.Fatalf("Insert(%#x): %v", k, err)
		}
	}
	if got, want := cn.Len(), int64(len(keys)); got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}

	for i, k := range keys {
		v, ok := cn.Get(k)
		if !ok {
			t.Fatalf("Get(%#x): not found", k)
		}
		if got := *(*int)(v); got != i {
			t.Fatalf("Get(%#x) = %d, want %d", k, got, i)
		}
	}

	if err := cn.Insert(keys[0], val(99)); !mkerr.Is(err, mkerr.Exists) {
		t.Fatalf("Insert duplicate: err = %v, want Exists", err)
	}

	for _, k := range keys {
		if _, ok := cn.Remove(k); !ok {
			t.Fatalf("Remove(%#x): not found", k)
		}
	}
	if got := cn.Len(); got != 0 {
		t.Fatalf("Len() after removing all = %d, want 0", got)
	}
	if _, ok := cn.Get(keys[0]); ok {
		t.Fatalf("Get after remove: found stale entry")
	}
}

func TestUpsertReplacesExistingValue(t *testing.T) {
	cn := New()
	k := uintptr(0x4000)
	if err := cn.Insert(k, val(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	cn.Upsert(k, val(2))
	if got := cn.Len(); got != 1 {
		t.Fatalf("Len() after Upsert of existing key = %d, want 1", got)
	}
	v, ok := cn.Get(k)
	if !ok || *(*int)(v) != 2 {
		t.Fatalf("Get(%#x) after Upsert = (%v, %v), want (2, true)", k, v, ok)
	}

	k2 := uintptr(0x4800)
	cn.Upsert(k2, val(3))
	if got := cn.Len(); got != 2 {
		t.Fatalf("Len() after Upsert of new key = %d, want 2", got)
	}
	v, ok = cn.Get(k2)
	if !ok || *(*int)(v) != 3 {
		t.Fatalf("Get(%#x) after Upsert of new key = (%v, %v), want (3, true)", k2, v, ok)
	}
}

func TestFindLEFindGE(t *testing.T) {
	cn := New()
	keys := []uintptr{0x1000, 0x2000, 0x3000, 0x5000}
	for i, k := range keys {
		if err := cn.Insert(k, val(i)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	tests := []struct {
		query   uintptr
		wantLE  uintptr
		haveLE  bool
		wantGE  uintptr
		haveGE  bool
	}{
		{0x1000, 0x1000, true, 0x1000, true},
		{0x1500, 0x1000, true, 0x2000, true},
		{0x0500, 0, false, 0x1000, true},
		{0x6000, 0x5000, true, 0, false},
		{0x4000, 0x3000, true, 0x5000, true},
	}
	for _, tt := range tests {
		k, _, ok := cn.FindLE(tt.query)
		if ok != tt.haveLE || (ok && k != tt.wantLE) {
			t.Errorf("FindLE(%#x) = (%#x, %v), want (%#x, %v)", tt.query, k, ok, tt.wantLE, tt.haveLE)
		}
		k, _, ok = cn.FindGE(tt.query)
		if ok != tt.haveGE || (ok && k != tt.wantGE) {
			t.Errorf("FindGE(%#x) = (%#x, %v), want (%#x, %v)", tt.query, k, ok, tt.wantGE, tt.haveGE)
		}
	}
}

func TestFindDirectional(t *testing.T) {
	cn := New()
	keys := []uintptr{0x1000, 0x2000, 0x3000}
	for i, k := range keys {
		if err := cn.Insert(k, val(i)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	tests := []struct {
		query uintptr
		dir   Dir
		want  uintptr
		have  bool
	}{
		{0x2000, Lt, 0x1000, true},
		{0x2000, Le, 0x2000, true},
		{0x2000, Eq, 0x2000, true},
		{0x2000, Ge, 0x2000, true},
		{0x2000, Gt, 0x3000, true},
		{0x1000, Lt, 0, false},
		{0x3000, Gt, 0, false},
		{0x2500, Eq, 0, false},
		{0x2500, Gt, 0x3000, true},
		{0, Lt, 0, false},
		{^uintptr(0), Gt, 0, false},
	}
	for _, tt := range tests {
		k, _, ok := cn.Find(tt.query, tt.dir)
		if ok != tt.have || (ok && k != tt.want) {
			t.Errorf("Find(%#x, %d) = (%#x, %v), want (%#x, %v)", tt.query, tt.dir, k, ok, tt.want, tt.have)
		}
	}
}

func TestAscendOrdered(t *testing.T) {
	cn := New()
	keys := []uintptr{0x9000, 0x1000, 0x5000, 0x3000, 0x7000}
	for i, k := range keys {
		if err := cn.Insert(k, val(i)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	var seen []uintptr
	cn.Ascend(0, ^uintptr(0), func(k uintptr, _ unsafe.Pointer) bool {
		seen = append(seen, k)
		return true
	})
	sorted := append([]uintptr(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if len(seen) != len(sorted) {
		t.Fatalf("Ascend visited %d keys, want %d", len(seen), len(sorted))
	}
	for i := range sorted {
		if seen[i] != sorted[i] {
			t.Fatalf("Ascend order[%d] = %#x, want %#x", i, seen[i], sorted[i])
		}
	}
}

func TestConcurrentReadsDuringWrites(t *testing.T) {
	cn := New()
	const n = 2000
	for i := 0; i < n; i++ {
		if err := cn.Insert(uintptr(i*16+1), val(i)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(4)
	for g := 0; g < 4; g++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for i := 0; i < n; i++ {
					cn.Get(uintptr(i*16 + 1))
				}
			}
		}()
	}

	for i := 0; i < n; i += 2 {
		cn.Remove(uintptr(i*16 + 1))
	}
	close(stop)
	wg.Wait()

	if got, want := cn.Len(), int64(n/2); got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
}

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

package slabtracker

import (
	"testing"

	"github.com/memkind-go/mtt/pkg/bigary"
	"github.com/memkind-go/mtt/pkg/slab"
)

const pageSize = 4096

func TestRegisterLookupUnregister(t *testing.T) {
	arena, err := bigary.New(64 * bigary.PageSize)
	if err != nil {
		t.Fatalf("bigary.New: %v", err)
	}
	defer arena.Destroy()

	nodes, err := bigary.New(64 * bigary.PageSize)
	if err != nil {
		t.Fatalf("bigary.New: %v", err)
	}
	defer nodes.Destroy()

	s1 := slab.NewFast(arena, nodes, 32)
	s2 := slab.NewFast(arena, nodes, 64)

	tr := New(pageSize)
	page0 := arena.Area()
	page1 := arena.Area() + pageSize

	if err := tr.Register(page0, s1); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := tr.Register(page1, s2); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, ok := tr.Lookup(page0 + 10)
	if !ok || got != s1 {
		t.Fatalf("Lookup(page0+10) = (%v, %v), want (%v, true)", got, ok, s1)
	}
	got, ok = tr.Lookup(page1 + 100)
	if !ok || got != s2 {
		t.Fatalf("Lookup(page1+100) = (%v, %v), want (%v, true)", got, ok, s2)
	}

	tr.Unregister(page0)
	if _, ok := tr.Lookup(page0); ok {
		t.Fatalf("Lookup after Unregister: still found")
	}
}

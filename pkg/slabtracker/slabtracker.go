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

// Package slabtracker maps committed page addresses back to the
// FastSlab that owns them, so a bare pointer handed to free() can be
// routed to the allocator that must reclaim it.
package slabtracker

import (
	"unsafe"

	"github.com/memkind-go/mtt/pkg/critnib"
	"github.com/memkind-go/mtt/pkg/slab"
)

// SlabTracker maps page-aligned addresses to the FastSlab owning them.
type SlabTracker struct {
	tree     *critnib.Critnib
	pageSize uintptr
}

// New creates a SlabTracker for pages of the given size.
func New(pageSize uintptr) *SlabTracker {
	return &SlabTracker{tree: critnib.New(), pageSize: pageSize}
}

// Register records that the page starting at pageAddr is owned by s.
// pageAddr must already be aligned to the tracker's page size.
func (t *SlabTracker) Register(pageAddr uintptr, s *slab.FastSlab) error {
	return t.tree.Insert(pageAddr, unsafe.Pointer(s))
}

// Unregister removes the mapping for pageAddr, if present.
func (t *SlabTracker) Unregister(pageAddr uintptr) {
	t.tree.Remove(pageAddr)
}

// Lookup returns the FastSlab owning the page containing addr.
func (t *SlabTracker) Lookup(addr uintptr) (*slab.FastSlab, bool) {
	pageAddr := addr &^ (t.pageSize - 1)
	v, ok := t.tree.Get(pageAddr)
	if !ok {
		return nil, false
	}
	return (*slab.FastSlab)(v), true
}

// Len reports the number of currently-registered pages.
func (t *SlabTracker) Len() int64 { return t.tree.Len() }

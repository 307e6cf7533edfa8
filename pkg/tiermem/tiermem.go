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

// Package tiermem is the tier memory facade: a Policy decides, at
// allocation time or continuously in the background, which tier backs
// a given allocation. Free doesn't know which policy served a pointer,
// so it asks each registered Backend in turn whether it owns the
// pointer — pointer identity, not a side channel, is the facade's
// mechanism for owner detection.
package tiermem

import "github.com/memkind-go/mtt/pkg/mkerr"

// TierID names one of the two memory tiers a Policy can place data in.
type TierID int

const (
	// Near is the faster, more capacity-constrained tier (DRAM in the
	// original allocator's vocabulary).
	Near TierID = iota
	// Far is the slower, larger-capacity tier (PMEM/DAX-KMEM).
	Far
)

func (t TierID) String() string {
	if t == Near {
		return "near"
	}
	return "far"
}

// Backend is the capability a Policy needs from each tier: allocate,
// free, and answer whether a given pointer belongs to it.
type Backend interface {
	Alloc(size uint64) (uintptr, error)
	Free(ptr uintptr) error
	OwnerOf(ptr uintptr) bool
}

// Policy decides which tier backs each allocation.
type Policy interface {
	Alloc(size uint64) (ptr uintptr, tier TierID, err error)
	Free(ptr uintptr) error
}

// freeViaOwnerLookup asks near then far which one owns ptr and routes
// Free accordingly; both StaticRatio and DynamicThreshold share this
// since neither policy itself remembers which tier served a pointer.
func freeViaOwnerLookup(near, far Backend, ptr uintptr) error {
	if near.OwnerOf(ptr) {
		return near.Free(ptr)
	}
	if far.OwnerOf(ptr) {
		return far.Free(ptr)
	}
	return mkerr.Wrap(mkerr.InvalidArgument, mkerr.ErrNotFound)
}

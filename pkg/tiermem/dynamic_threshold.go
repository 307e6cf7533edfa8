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

import "github.com/memkind-go/mtt/pkg/atomicbitops"

// DynamicThreshold routes allocations smaller than a size threshold to
// Near and everything else to Far. The threshold shrinks as Near fills
// up relative to NearCapacity, so large allocations spill to Far before
// Near is exhausted rather than failing outright.
type DynamicThreshold struct {
	Near, Far    Backend
	NearCapacity uint64
	BaseThreshold uint64

	nearBytes atomicbitops.Uint64
}

// NewDynamicThreshold returns a policy that starts routing at
// baseThreshold and tightens as nearCapacity fills up.
func NewDynamicThreshold(near, far Backend, nearCapacity, baseThreshold uint64) *DynamicThreshold {
	return &DynamicThreshold{Near: near, Far: far, NearCapacity: nearCapacity, BaseThreshold: baseThreshold}
}

func (p *DynamicThreshold) currentThreshold() uint64 {
	if p.NearCapacity == 0 {
		return p.BaseThreshold
	}
	used := p.nearBytes.Load()
	if used >= p.NearCapacity {
		return 0
	}
	headroom := p.NearCapacity - used
	// Linearly scale the threshold down to zero as Near fills, so the
	// last allocations before capacity all spill to Far instead of
	// being the ones that trigger an out-of-memory error.
	scaled := p.BaseThreshold * headroom / p.NearCapacity
	return scaled
}

// Alloc routes size to Near if it's under the current (capacity-aware)
// threshold and Near has room, otherwise to Far.
func (p *DynamicThreshold) Alloc(size uint64) (uintptr, TierID, error) {
	if size <= p.currentThreshold() {
		ptr, err := p.Near.Alloc(size)
		if err == nil {
			p.nearBytes.Add(size)
			return ptr, Near, nil
		}
		// Near is supposedly under threshold but failed anyway (e.g. an
		// accounting gap from a Free this policy didn't observe the
		// size of): fall through to Far rather than surface the error.
	}
	ptr, err := p.Far.Alloc(size)
	if err != nil {
		return 0, Far, err
	}
	return ptr, Far, nil
}

// Free routes ptr to whichever backend owns it.
func (p *DynamicThreshold) Free(ptr uintptr) error {
	return freeViaOwnerLookup(p.Near, p.Far, ptr)
}

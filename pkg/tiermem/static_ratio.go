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

import (
	"github.com/memkind-go/mtt/pkg/atomicbitops"
	"github.com/memkind-go/mtt/pkg/mkerr"
)

// StaticRatio routes allocations to near or far so that, over time, the
// fraction of bytes placed in near converges to Ratio. It never moves
// data once placed, unlike DataMovement.
type StaticRatio struct {
	Near, Far Backend
	Ratio     float64 // target fraction of bytes placed in Near, in (0, 1]

	nearBytes atomicbitops.Uint64
	farBytes  atomicbitops.Uint64
}

// NewStaticRatio validates ratio and returns a ready StaticRatio policy.
func NewStaticRatio(near, far Backend, ratio float64) (*StaticRatio, error) {
	if ratio <= 0 || ratio > 1 {
		return nil, mkerr.New(mkerr.InvalidArgument, "tiermem: ratio %v must be in (0, 1]", ratio)
	}
	return &StaticRatio{Near: near, Far: far, Ratio: ratio}, nil
}

// Alloc picks whichever tier is currently furthest below its target
// share and allocates size bytes from it.
func (p *StaticRatio) Alloc(size uint64) (uintptr, TierID, error) {
	total := p.nearBytes.Load() + p.farBytes.Load() + size
	targetNear := float64(total) * p.Ratio

	if float64(p.nearBytes.Load()) < targetNear || p.Far == nil {
		ptr, err := p.Near.Alloc(size)
		if err != nil {
			return 0, Near, err
		}
		p.nearBytes.Add(size)
		return ptr, Near, nil
	}

	ptr, err := p.Far.Alloc(size)
	if err != nil {
		return 0, Far, err
	}
	p.farBytes.Add(size)
	return ptr, Far, nil
}

// Free routes ptr to whichever backend owns it.
func (p *StaticRatio) Free(ptr uintptr) error {
	return freeViaOwnerLookup(p.Near, p.Far, ptr)
}

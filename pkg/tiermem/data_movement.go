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

// Engine is the subset of *mtt.Internals the DataMovement policy needs.
// Defined here (rather than importing pkg/mtt directly) so pkg/tiermem
// has no dependency cycle risk and can be tested against a fake.
type Engine interface {
	Malloc(size uint64) (uintptr, error)
	Free(ptr uintptr) error
}

// DataMovement is the policy backing the migration engine: allocations
// land wherever the pool allocator puts them, and the background
// RankingUpdate worker physically moves pages between NUMA nodes over
// time without ever changing their virtual address. Alloc's returned
// TierID is only the placement at the moment of allocation (always
// Near, since new pages always start hot/near per the engine's
// promotion rule) — it is not kept up to date as pages migrate.
type DataMovement struct {
	Engine Engine
}

// NewDataMovement wraps engine as a Policy.
func NewDataMovement(engine Engine) *DataMovement {
	return &DataMovement{Engine: engine}
}

// Alloc delegates to the engine.
func (p *DataMovement) Alloc(size uint64) (uintptr, TierID, error) {
	ptr, err := p.Engine.Malloc(size)
	if err != nil {
		return 0, Near, err
	}
	return ptr, Near, nil
}

// Free delegates to the engine.
func (p *DataMovement) Free(ptr uintptr) error {
	return p.Engine.Free(ptr)
}

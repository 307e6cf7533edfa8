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

// Package engine builds the single, process-wide allocator instance a
// config.Config describes: it wires a Bigary, PoolAllocator(s), the
// chosen tiermem.Policy, and — for the data-movement policy — the
// migration engine and its background worker, into one Handle. A
// caller builds exactly one Engine per configuration and holds onto it
// for the process lifetime, in place of the scattered global allocator
// state a malloc-family library traditionally keeps.
package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/memkind-go/mtt/internal/movepages"
	"github.com/memkind-go/mtt/pkg/bigary"
	"github.com/memkind-go/mtt/pkg/config"
	"github.com/memkind-go/mtt/pkg/memkind"
	"github.com/memkind-go/mtt/pkg/mkerr"
	"github.com/memkind-go/mtt/pkg/mtt"
	"github.com/memkind-go/mtt/pkg/pool"
	"github.com/memkind-go/mtt/pkg/slabtracker"
	"github.com/memkind-go/mtt/pkg/tiermem"
)

// defaultTickInterval is how often the background worker folds queued
// page ranges and touches into the rankings and rebalances tiers.
const defaultTickInterval = 100 * time.Millisecond

// defaultMovesPerTick caps move_pages syscalls issued per tick so a
// large rebalance can't monopolize the bigary mutex behind it.
const defaultMovesPerTick = 64

var log = logrus.WithField("component", "engine")

// Engine is a fully wired allocator instance: a *memkind.Handle for the
// malloc-family surface, plus (for the data-movement policy) the
// background worker that drives migration.
type Engine struct {
	Handle *memkind.Handle

	worker *mtt.Worker
	near   *bigary.Bigary
	far    *bigary.Bigary
	pools  []*pool.Allocator
}

// Build constructs an Engine from cfg, validating it first. The
// returned Engine owns its Bigary regions and worker goroutine (if
// any); callers must call Close when done.
func Build(cfg config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// The granularity at which the pool registers newly committed
	// memory with a SlabTracker is the traced page size, not bigary's
	// own commit granularity (a compile-time constant the config's
	// bigary_page_size_bytes field only documents). They can differ;
	// config.Validate checks only that the traced page size is a power
	// of two and does not check bigary_page_size_bytes at all.
	pageSize := cfg.TracedPageSizeBytes
	if pageSize == 0 {
		pageSize = 4096
	}

	switch cfg.Policy {
	case "data_movement":
		return buildDataMovement(cfg, pageSize)
	case "static_ratio":
		return buildStaticRatio(cfg, pageSize)
	case "dynamic_threshold":
		return buildDynamicThreshold(cfg, pageSize)
	default:
		return nil, mkerr.New(mkerr.InvalidArgument, "engine: unrecognized policy %q", cfg.Policy)
	}
}

func newArena(cfg config.Config) (*bigary.Bigary, error) {
	return bigary.New(bigary.DefaultMax, bigary.WithHogMemory(cfg.HogMemory))
}

func buildDataMovement(cfg config.Config, pageSize uint64) (*Engine, error) {
	arena, err := newArena(cfg)
	if err != nil {
		return nil, err
	}
	tracker := slabtracker.New(uintptr(pageSize))

	var internals *mtt.Internals
	p := pool.New(arena, tracker, uintptr(pageSize),
		pool.WithHogMemory(cfg.HogMemory),
		pool.WithOnCommit(func(addr uintptr, n uint64) {
			internals.TraceCommit(addr, n)
		}))

	dm := cfg.DataMovement
	internals, err = mtt.New(mtt.Config{
		Pool:     p,
		PageSize: pageSize,
		Limits: mtt.Limits{
			Low:  dm.LowLimitBytes,
			Soft: dm.SoftLimitBytes,
			Hard: dm.HardLimitBytes,
		},
		Mover:    movepages.NewMover(2 * time.Second),
		NearNode: dm.NearNUMANode,
		FarNode:  dm.FarNUMANode,
	})
	if err != nil {
		arena.Destroy()
		return nil, err
	}

	worker := mtt.NewWorker(internals, defaultTickInterval, defaultMovesPerTick)
	worker.Start(context.Background())

	policy := tiermem.NewDataMovement(internals)
	handle := memkind.NewHandle(policy, internals)

	log.WithField("policy", "data_movement").Info("engine built")
	return &Engine{Handle: handle, worker: worker, near: arena, pools: []*pool.Allocator{p}}, nil
}

// poolBackend adapts a *pool.Allocator (whose allocation entry point is
// named Malloc, matching the rest of this codebase) to tiermem.Backend,
// which spells the same operation Alloc to stay neutral between a bare
// pool and the migration engine sitting in front of one.
type poolBackend struct{ p *pool.Allocator }

func (b *poolBackend) Alloc(size uint64) (uintptr, error) { return b.p.Malloc(size) }
func (b *poolBackend) Free(ptr uintptr) error             { return b.p.Free(ptr) }
func (b *poolBackend) OwnerOf(ptr uintptr) bool           { return b.p.OwnerOf(ptr) }

func buildStaticRatio(cfg config.Config, pageSize uint64) (*Engine, error) {
	near, far, err := twoArenas(cfg)
	if err != nil {
		return nil, err
	}
	nearTracker, farTracker := slabtracker.New(uintptr(pageSize)), slabtracker.New(uintptr(pageSize))
	nearAlloc := pool.New(near, nearTracker, uintptr(pageSize), pool.WithHogMemory(cfg.HogMemory))
	farAlloc := pool.New(far, farTracker, uintptr(pageSize), pool.WithHogMemory(cfg.HogMemory))
	nearPool := &poolBackend{nearAlloc}
	farPool := &poolBackend{farAlloc}

	policy, err := tiermem.NewStaticRatio(nearPool, farPool, cfg.StaticRatio.NearFraction)
	if err != nil {
		near.Destroy()
		far.Destroy()
		return nil, err
	}
	sizer := &memkind.TrackerSizer{Trackers: []*slabtracker.SlabTracker{nearTracker, farTracker}}
	handle := memkind.NewHandle(policy, sizer)

	log.WithField("policy", "static_ratio").Info("engine built")
	return &Engine{Handle: handle, near: near, far: far, pools: []*pool.Allocator{nearAlloc, farAlloc}}, nil
}

func buildDynamicThreshold(cfg config.Config, pageSize uint64) (*Engine, error) {
	near, far, err := twoArenas(cfg)
	if err != nil {
		return nil, err
	}
	nearTracker, farTracker := slabtracker.New(uintptr(pageSize)), slabtracker.New(uintptr(pageSize))
	nearAlloc := pool.New(near, nearTracker, uintptr(pageSize), pool.WithHogMemory(cfg.HogMemory))
	farAlloc := pool.New(far, farTracker, uintptr(pageSize), pool.WithHogMemory(cfg.HogMemory))
	nearPool := &poolBackend{nearAlloc}
	farPool := &poolBackend{farAlloc}

	dt := cfg.DynamicThreshold
	policy := tiermem.NewDynamicThreshold(nearPool, farPool, dt.NearCapacityBytes, dt.BaseThresholdBytes)
	sizer := &memkind.TrackerSizer{Trackers: []*slabtracker.SlabTracker{nearTracker, farTracker}}
	handle := memkind.NewHandle(policy, sizer)

	log.WithField("policy", "dynamic_threshold").Info("engine built")
	return &Engine{Handle: handle, near: near, far: far, pools: []*pool.Allocator{nearAlloc, farAlloc}}, nil
}

func twoArenas(cfg config.Config) (near, far *bigary.Bigary, err error) {
	near, err = newArena(cfg)
	if err != nil {
		return nil, nil, err
	}
	far, err = newArena(cfg)
	if err != nil {
		near.Destroy()
		return nil, nil, err
	}
	return near, far, nil
}

// Close stops the background worker (if any) and releases the engine's
// reserved address space, in that order so no migration is left
// touching memory that's about to be unmapped.
func (e *Engine) Close() error {
	if e.worker != nil {
		if err := e.worker.Stop(); err != nil {
			log.WithError(err).Warn("engine: worker did not stop cleanly")
		}
	}
	for _, p := range e.pools {
		if err := p.Close(); err != nil {
			log.WithError(err).Warn("engine: pool allocator did not close cleanly")
		}
	}
	if e.near != nil {
		if err := e.near.Destroy(); err != nil {
			return err
		}
	}
	if e.far != nil {
		return e.far.Destroy()
	}
	return nil
}

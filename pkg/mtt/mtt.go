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

// Package mtt implements the migration-tracking-tiering engine: it owns
// a near-tier and a far-tier Ranking plus a pool allocator, consumes the
// mmap-tracing and touch queues the allocator and its callers feed, and
// rebalances pages between tiers against low/soft/hard size limits.
package mtt

import (
	"github.com/sirupsen/logrus"

	"github.com/memkind-go/mtt/internal/movepages"
	"github.com/memkind-go/mtt/pkg/atomicbitops"
	"github.com/memkind-go/mtt/pkg/mkerr"
	"github.com/memkind-go/mtt/pkg/mpscq"
	"github.com/memkind-go/mtt/pkg/pool"
	"github.com/memkind-go/mtt/pkg/ranking"
)

var log = logrus.WithField("component", "mtt")

// PageRange describes a span of newly-committed pages.
type PageRange struct {
	StartAddr uintptr
	NumPages  uint64
}

// Limits are the three watermarks that govern rebalancing, all in
// bytes and all required to be aligned to PageSize.
type Limits struct {
	Low  uint64
	Soft uint64
	Hard uint64
}

// Validate checks the low <= soft <= hard monotonicity and page-size
// alignment invariants.
func (l Limits) Validate(pageSize uint64) error {
	if l.Low > l.Soft || l.Soft > l.Hard {
		return mkerr.New(mkerr.InvalidArgument, "mtt: limits must satisfy low(%d) <= soft(%d) <= hard(%d)", l.Low, l.Soft, l.Hard)
	}
	for name, v := range map[string]uint64{"low": l.Low, "soft": l.Soft, "hard": l.Hard} {
		if v%pageSize != 0 {
			return mkerr.New(mkerr.InvalidArgument, "mtt: %s limit %d is not page-aligned (page size %d)", name, v, pageSize)
		}
	}
	return nil
}

// Internals is the migration engine: near/far Rankings, the pool
// allocator pages are drawn from, and the producer queues that feed
// RankingUpdate.
type Internals struct {
	near *ranking.Ranking
	far  *ranking.Ranking
	pool *pool.Allocator

	tracingQueue *mpscq.Queue[PageRange]
	touchQueue   *mpscq.Queue[uintptr]

	mover    *movepages.Mover
	nearNode int
	farNode  int

	limits   Limits
	pageSize uint64

	lastTimestamp atomicbitops.Int64
}

// Config collects the parameters needed to build an Internals.
type Config struct {
	Pool     *pool.Allocator
	PageSize uint64
	Limits   Limits
	Mover    *movepages.Mover
	NearNode int
	FarNode  int
}

// New validates cfg and returns a ready Internals. The caller is
// expected to have constructed cfg.Pool with pool.WithOnCommit wired to
// Internals.TraceCommit.
func New(cfg Config) (*Internals, error) {
	if err := cfg.Limits.Validate(cfg.PageSize); err != nil {
		return nil, err
	}
	return &Internals{
		near:         ranking.New(cfg.PageSize),
		far:          ranking.New(cfg.PageSize),
		pool:         cfg.Pool,
		tracingQueue: mpscq.New[PageRange](),
		touchQueue:   mpscq.New[uintptr](),
		mover:        cfg.Mover,
		nearNode:     cfg.NearNode,
		farNode:      cfg.FarNode,
		limits:       cfg.Limits,
		pageSize:     cfg.PageSize,
	}, nil
}

// Malloc forwards to the underlying pool allocator; newly committed
// pages are traced automatically via the pool's onCommit hook.
func (m *Internals) Malloc(size uint64) (uintptr, error) { return m.pool.Malloc(size) }

// Free forwards to the underlying pool allocator.
func (m *Internals) Free(ptr uintptr) error { return m.pool.Free(ptr) }

// OwnerOf reports whether ptr was handed out by this engine's pool
// allocator.
func (m *Internals) OwnerOf(ptr uintptr) bool { return m.pool.OwnerOf(ptr) }

// UsableSize returns the usable size of the allocation at ptr.
func (m *Internals) UsableSize(ptr uintptr) (uint64, bool) { return m.pool.UsableSize(ptr) }

// TraceCommit records a newly-committed page range, to be folded into
// the near-tier Ranking on the next RankingUpdate. Intended to be
// passed as the pool.WithOnCommit callback.
func (m *Internals) TraceCommit(addr uintptr, n uint64) {
	m.tracingQueue.Push(PageRange{StartAddr: addr, NumPages: n})
}

// Touch records a touch on the page containing addr. Cheap and
// lock-free; the actual Ranking update happens on the next
// RankingUpdate call.
func (m *Internals) Touch(addr uintptr) {
	m.touchQueue.Push(addr)
}

// NearSize and FarSize report each tier's current tracked byte size.
func (m *Internals) NearSize() uint64 { return m.near.TotalSize() }
func (m *Internals) FarSize() uint64  { return m.far.TotalSize() }

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

package mtt

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/memkind-go/mtt/pkg/ranking"
)

// RankingUpdate drains both producer queues, decays and refreshes both
// Rankings' hotness as of ts, and rebalances pages between tiers against
// the configured limits. limiter bounds the rate of move_pages calls
// issued during this tick; ctx governs how long limiter.Wait may block.
func (m *Internals) RankingUpdate(ctx context.Context, ts int64, limiter *rate.Limiter) {
	prevTs := m.lastTimestamp.Load()

	for _, pr := range m.tracingQueue.TakeAll() {
		m.near.AddPages(pr.StartAddr, pr.NumPages, prevTs)
	}
	for _, addr := range m.touchQueue.TakeAll() {
		if !m.near.Touch(addr) {
			m.far.Touch(addr)
		}
	}

	oldest := ts - ranking.TimestampRefreshNanos
	m.near.Update(ts, oldest)
	m.far.Update(ts, oldest)

	nearSize := m.near.TotalSize()
	switch {
	case nearSize < m.limits.Low:
		want := m.limits.Low - nearSize
		if farSize := m.far.TotalSize(); want > farSize {
			want = farSize
		}
		for moved := uint64(0); moved < want; moved += m.pageSize {
			if !m.promoteHottestFar(ctx, limiter) {
				break
			}
		}
	case nearSize > m.limits.Soft:
		want := nearSize - m.limits.Soft
		for moved := uint64(0); moved < want; moved += m.pageSize {
			if !m.demoteColdestNear(ctx, limiter) {
				break
			}
		}
	}

	// A near page colder than the hottest far page is a pure loss:
	// swap them regardless of where the size currently sits relative to
	// the low/soft band.
	for {
		coldNear, ok1 := m.near.ColdestValue()
		hotFar, ok2 := m.far.HottestValue()
		if !ok1 || !ok2 || coldNear >= hotFar {
			break
		}
		if !m.demoteColdestNear(ctx, limiter) {
			break
		}
		if !m.promoteHottestFar(ctx, limiter) {
			break
		}
	}

	// Safety valve: the low/soft band is advisory, but hard_limit must
	// never be exceeded even if that means demoting pages hotter than
	// anything currently in the far tier.
	for m.near.TotalSize() > m.limits.Hard {
		if !m.demoteColdestNear(ctx, limiter) {
			log.Warn("near tier still over hard_limit but has no pages left to demote")
			break
		}
	}

	m.lastTimestamp.Store(ts)
}

func (m *Internals) promoteHottestFar(ctx context.Context, limiter *rate.Limiter) bool {
	p, ok := m.far.PopHottest()
	if !ok {
		return false
	}
	m.near.AddPage(p)
	m.migrate(ctx, limiter, p.StartAddr, m.nearNode, "promote")
	return true
}

func (m *Internals) demoteColdestNear(ctx context.Context, limiter *rate.Limiter) bool {
	p, ok := m.near.PopColdest()
	if !ok {
		return false
	}
	m.far.AddPage(p)
	m.migrate(ctx, limiter, p.StartAddr, m.farNode, "demote")
	return true
}

// migrate issues the actual move_pages call. Failures are logged and
// the engine continues: the Ranking bookkeeping above has already been
// updated optimistically, matching the original allocator's "this is
// best-effort, not a consistency guarantee" treatment of data movement.
func (m *Internals) migrate(ctx context.Context, limiter *rate.Limiter, addr uintptr, node int, kind string) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			log.WithError(err).Debug("migrate: rate limiter wait aborted")
			return
		}
	}
	if m.mover == nil {
		return
	}
	if err := m.mover.Move(addr, node); err != nil {
		log.WithError(err).WithField("addr", addr).WithField("kind", kind).Warn("page migration failed")
	}
}

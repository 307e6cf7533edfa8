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
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Worker runs RankingUpdate on a fixed tick in the background until its
// context is canceled, then drains both queues one final time before
// returning so no traced page or touch is lost at shutdown.
type Worker struct {
	internals *Internals
	interval  time.Duration
	limiter   *rate.Limiter

	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewWorker creates a Worker that ticks every interval and rate-limits
// move_pages calls to movesPerTick per tick interval.
func NewWorker(internals *Internals, interval time.Duration, movesPerTick int) *Worker {
	var limiter *rate.Limiter
	if movesPerTick > 0 {
		limiter = rate.NewLimiter(rate.Every(interval/time.Duration(movesPerTick)), movesPerTick)
	}
	return &Worker{internals: internals, interval: interval, limiter: limiter}
}

// Start launches the background loop under ctx.
func (w *Worker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	group, gctx := errgroup.WithContext(runCtx)
	w.group = group

	group.Go(func() error {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				// Final drain: fold in anything queued since the last tick.
				w.internals.RankingUpdate(context.Background(), nowNanos(), w.limiter)
				return nil
			case t := <-ticker.C:
				w.internals.RankingUpdate(gctx, t.UnixNano(), w.limiter)
			}
		}
	})
}

// Stop cancels the background loop and waits for it to exit and drain.
func (w *Worker) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	return w.group.Wait()
}

// nowNanos supplies the wall-clock timestamp for the final drain.
var nowNanos = func() int64 { return time.Now().UnixNano() }

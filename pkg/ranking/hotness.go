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

// Package ranking tracks per-page access hotness with four parallel
// exponentially-decaying accumulators running at different time
// constants, and keeps pages ordered by both hotness and last-touch time
// so the migration engine can ask "hottest", "coldest", and "oldest
// untouched" in O(log n).
package ranking

import "math"

// timestampToSeconds converts nanosecond timestamps into the seconds
// unit the decay coefficients are calibrated against.
const timestampToSeconds = 1e-9

// hotnessTouchSingleValue is the "amount of hotness" a single touch
// contributes to the accumulators before decay is applied.
const hotnessTouchSingleValue = 1.0

// exponentialCoeffs are the four per-second decay rates tracked per
// page, chosen to span a range of recency windows: from "forgets within
// seconds" (0.9) to "remembers for a long time" (0.9999).
var exponentialCoeffs = [4]float64{0.9, 0.99, 0.999, 0.9999}

// compensationCoeffs normalize each accumulator's steady-state gain so
// that a page touched at a constant rate converges to comparable values
// across all four time constants.
var compensationCoeffs = [4]float64{
	1.00000000e+0,
	9.53899645e-02,
	9.49597036e-03,
	9.49169617e-04,
}

// hotnessCoeff is one exponentially-decaying accumulator.
type hotnessCoeff struct {
	value        float64
	decay        float64
	compensation float64
}

func (c *hotnessCoeff) update(add, secondsDiff float64) {
	c.value *= math.Pow(c.decay, secondsDiff)
	c.value += c.compensation * add
	if math.IsInf(c.value, 1) {
		c.value = math.MaxFloat64
	}
}

// Hotness is a page's decaying-hotness state: four accumulators running
// at different time constants, combined into a single scalar for
// ordering purposes.
type Hotness struct {
	coeffs            [4]hotnessCoeff
	previousTimestamp int64
}

// NewHotness returns a Hotness seeded at the given nanosecond timestamp,
// optionally inheriting an initial value from an existing hotness (used
// when a freshly-traced page inherits the current hottest page's score,
// so it isn't immediately evicted as coldest).
func NewHotness(ts int64, inherit *Hotness) Hotness {
	var h Hotness
	for i := range h.coeffs {
		h.coeffs[i] = hotnessCoeff{decay: exponentialCoeffs[i], compensation: compensationCoeffs[i]}
		if inherit != nil {
			h.coeffs[i].value = inherit.coeffs[i].value
		}
	}
	h.previousTimestamp = ts
	return h
}

// Value returns the combined hotness score used for ordering: the sum
// of all four accumulators, so a page that is hot on any time scale
// ranks above one that is cold on all of them.
func (h *Hotness) Value() float64 {
	var sum float64
	for _, c := range h.coeffs {
		sum += c.value
	}
	return sum
}

// Update decays every accumulator to ts and adds touches worth of
// hotness. Timestamps must be monotonically non-decreasing.
func (h *Hotness) Update(touches float64, ts int64) {
	secondsDiff := float64(ts-h.previousTimestamp) * timestampToSeconds
	if secondsDiff < 0 {
		secondsDiff = 0
	}
	add := touches * hotnessTouchSingleValue
	for i := range h.coeffs {
		h.coeffs[i].update(add, secondsDiff)
	}
	h.previousTimestamp = ts
}

// PageMetadata is the per-page record a Ranking tracks: its address,
// how many touches it has accumulated since the last Update, and its
// decaying Hotness.
type PageMetadata struct {
	StartAddr uintptr
	touches   uint64
	touched   bool
	Hotness   Hotness
}

// Touch records a touch on the page, returning true if this is the
// first touch since the last Update (so the caller knows to schedule
// this page for an out-of-band hotness refresh).
func (p *PageMetadata) Touch() bool {
	p.touches++
	wasEmpty := !p.touched
	p.touched = true
	return wasEmpty
}

// markTouched schedules the page for its next Update without recording
// an actual access, so a long-idle page picked up by the stale-page
// sweep still decays toward zero instead of gaining phantom hotness
// from a touch that never happened.
func (p *PageMetadata) markTouched() {
	p.touched = true
}

// UpdateHotness folds accumulated touches into the page's Hotness as of
// ts and resets the touch counter.
func (p *PageMetadata) UpdateHotness(ts int64) {
	p.Hotness.Update(float64(p.touches), ts)
	p.touches = 0
	p.touched = false
}

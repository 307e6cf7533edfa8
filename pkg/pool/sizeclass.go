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

package pool

import "math/bits"

// MinSize is the smallest size class, rank 0.
const MinSize = 16

// NumRanks bounds the size-class table; rank NumRanks-1 covers requests
// up to 192 MiB, which is as large as this allocator serves. Malloc
// rejects larger requests with InvalidArgument.
const NumRanks = 48

// sizeToRank maps a requested size to the smallest size class that can
// satisfy it. Size classes are MinSize<<o and 1.5*(MinSize<<o) for each
// octave o, using bits.Len64 in place of the original's architecture-
// specific bsr/bsf intrinsics, per the portability redesign.
func sizeToRank(size uint64) uint64 {
	if size <= MinSize {
		return 0
	}
	e := uint(bits.Len64(size - 1))
	half := uint64(1) << (e - 1)
	sub1 := half + half/2
	octave := int(e) - 4
	if size <= sub1 {
		return uint64(2*(octave-1) + 1)
	}
	return uint64(2 * octave)
}

// rankToSize is the inverse of sizeToRank.
func rankToSize(rank uint64) uint64 {
	octave := rank / 2
	sub := rank % 2
	base := uint64(MinSize) << octave
	if sub == 0 {
		return base
	}
	return base + base/2
}

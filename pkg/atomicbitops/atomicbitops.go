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

// Package atomicbitops provides explicitly-typed wrappers around
// sync/atomic operations, so that every shared counter in this module
// documents its own memory ordering at the call site instead of relying
// on the ordering implied by sync/atomic's untyped function names.
package atomicbitops

import "sync/atomic"

// Int32 is an int32 accessed only through atomic operations.
type Int32 struct {
	_ noCopy
	v atomic.Int32
}

// Load performs an acquire load.
func (i *Int32) Load() int32 { return i.v.Load() }

// Store performs a release store.
func (i *Int32) Store(val int32) { i.v.Store(val) }

// Add performs an acquire-release add and returns the new value.
func (i *Int32) Add(delta int32) int32 { return i.v.Add(delta) }

// CompareAndSwap performs an acquire-release CAS.
func (i *Int32) CompareAndSwap(old, new int32) bool { return i.v.CompareAndSwap(old, new) }

// Uint32 is a uint32 accessed only through atomic operations.
type Uint32 struct {
	_ noCopy
	v atomic.Uint32
}

func (u *Uint32) Load() uint32                         { return u.v.Load() }
func (u *Uint32) Store(val uint32)                     { u.v.Store(val) }
func (u *Uint32) Add(delta uint32) uint32              { return u.v.Add(delta) }
func (u *Uint32) CompareAndSwap(old, new uint32) bool  { return u.v.CompareAndSwap(old, new) }

// Uint64 is a uint64 accessed only through atomic operations.
type Uint64 struct {
	_ noCopy
	v atomic.Uint64
}

func (u *Uint64) Load() uint64                        { return u.v.Load() }
func (u *Uint64) Store(val uint64)                    { u.v.Store(val) }
func (u *Uint64) Add(delta uint64) uint64             { return u.v.Add(delta) }
func (u *Uint64) Sub(delta uint64) uint64             { return u.v.Add(-delta) }
func (u *Uint64) CompareAndSwap(old, new uint64) bool { return u.v.CompareAndSwap(old, new) }

// Int64 is an int64 accessed only through atomic operations.
type Int64 struct {
	_ noCopy
	v atomic.Int64
}

func (i *Int64) Load() int64            { return i.v.Load() }
func (i *Int64) Store(val int64)        { i.v.Store(val) }
func (i *Int64) Add(delta int64) int64  { return i.v.Add(delta) }

// Bool is a bool accessed only through atomic operations.
type Bool struct {
	_ noCopy
	v atomic.Bool
}

func (b *Bool) Load() bool               { return b.v.Load() }
func (b *Bool) Store(val bool)           { b.v.Store(val) }
func (b *Bool) CompareAndSwap(old, new bool) bool { return b.v.CompareAndSwap(old, new) }

// noCopy embeds in structs which must not be copied after first use,
// detected by `go vet` via its Lock method.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

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

// Package mpscq implements a lock-free multi-producer, single-consumer
// queue: producers push with a CAS-prepend onto a shared stack, and the
// single consumer drains everything at once with an atomic exchange
// against nil. Push order is restored by reversing the drained list
// before handing it to the caller.
package mpscq

import (
	"sync/atomic"

	"github.com/memkind-go/mtt/pkg/atomicbitops"
)

type node[T any] struct {
	value T
	next  *node[T]
}

// Queue is a generic lock-free MPSC queue.
type Queue[T any] struct {
	head  atomic.Pointer[node[T]]
	count atomicbitops.Int64
}

// New returns an empty Queue.
func New[T any]() *Queue[T] { return &Queue[T]{} }

// Push adds v. Safe for any number of concurrent callers.
func (q *Queue[T]) Push(v T) {
	n := &node[T]{value: v}
	for {
		head := q.head.Load()
		n.next = head
		if q.head.CompareAndSwap(head, n) {
			q.count.Add(1)
			return
		}
	}
}

// TakeAll atomically removes and returns every queued value, oldest
// first. Must be called from a single consumer goroutine at a time;
// concurrent Push calls are safe throughout.
func (q *Queue[T]) TakeAll() []T {
	head := q.head.Swap(nil)
	if head == nil {
		return nil
	}

	var prev *node[T]
	cur := head
	n := 0
	for cur != nil {
		next := cur.next
		cur.next = prev
		prev = cur
		cur = next
		n++
	}

	out := make([]T, 0, n)
	for c := prev; c != nil; c = c.next {
		out = append(out, c.value)
	}
	q.count.Add(-int64(n))
	return out
}

// Len reports the approximate number of queued values.
func (q *Queue[T]) Len() int64 { return q.count.Load() }

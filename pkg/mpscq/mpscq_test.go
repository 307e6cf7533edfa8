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

package mpscq

import (
	"sync"
	"testing"
)

func TestPushTakeAllOrder(t *testing.T) {
	q := New[int]()
	for i := 0; i < 10; i++ {
		q.Push(i)
	}
	got := q.TakeAll()
	if len(got) != 10 {
		t.Fatalf("TakeAll: len = %d, want 10", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("TakeAll()[%d] = %d, want %d", i, v, i)
		}
	}
	if got := q.TakeAll(); got != nil {
		t.Fatalf("second TakeAll: want nil, got %v", got)
	}
}

func TestConcurrentProducersSingleConsumer(t *testing.T) {
	q := New[int]()
	const producers = 8
	const perProducer = 1000

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(base*perProducer + i)
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, v := range q.TakeAll() {
		seen[v] = true
	}
	if len(seen) != producers*perProducer {
		t.Fatalf("got %d unique values, want %d", len(seen), producers*perProducer)
	}
	if got := q.Len(); got != 0 {
		t.Fatalf("Len() after drain = %d, want 0", got)
	}
}

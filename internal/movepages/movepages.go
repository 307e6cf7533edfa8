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

// Package movepages wraps the move_pages(2) syscall used to migrate a
// single page between NUMA nodes, with bounded retry for the transient
// failures the kernel can return under memory pressure.
package movepages

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/cenkalti/backoff"
	"golang.org/x/sys/unix"
)

// mpolMFMove asks the kernel to move pages currently mapped only by the
// calling process, matching the original allocator's migration flag.
const mpolMFMove = 1 << 1

// Mover issues move_pages calls for the current process, retrying
// transient failures with bounded backoff before giving up.
type Mover struct {
	maxElapsed time.Duration
}

// NewMover returns a Mover that retries a failing move for up to
// maxElapsed before returning an error. A zero maxElapsed disables
// retrying entirely (the call is attempted exactly once).
func NewMover(maxElapsed time.Duration) *Mover {
	return &Mover{maxElapsed: maxElapsed}
}

// Move migrates the page containing addr to the given NUMA node.
func (m *Mover) Move(addr uintptr, node int) error {
	if m.maxElapsed <= 0 {
		return movePage(addr, node)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Microsecond
	b.MaxElapsedTime = m.maxElapsed
	return backoff.Retry(func() error { return movePage(addr, node) }, b)
}

func movePage(addr uintptr, node int) error {
	pages := [1]unsafe.Pointer{unsafe.Pointer(addr)}
	nodes := [1]int32{int32(node)}
	status := [1]int32{0}

	_, _, errno := unix.Syscall6(
		unix.SYS_MOVE_PAGES,
		0, // pid: the calling process
		1, // count
		uintptr(unsafe.Pointer(&pages[0])),
		uintptr(unsafe.Pointer(&nodes[0])),
		uintptr(unsafe.Pointer(&status[0])),
		uintptr(mpolMFMove),
	)
	if errno != 0 {
		return errno
	}
	if status[0] < 0 {
		return fmt.Errorf("movepages: kernel reported status %d for addr %#x -> node %d", status[0], addr, node)
	}
	return nil
}

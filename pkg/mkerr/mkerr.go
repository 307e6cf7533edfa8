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

// Package mkerr defines the error vocabulary shared by every component
// of the allocator: a small Kind enum, sentinel errors built from it, and
// a FatalError type for violated invariants that should abort the
// process rather than be handled by the caller.
package mkerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of a small number of categories a
// caller can reasonably branch on.
type Kind int

const (
	// Unknown is the zero value; it should never be returned to a caller.
	Unknown Kind = iota
	// OutOfMemory means a commit, reservation, or pool extension failed
	// because no more memory/address space was available.
	OutOfMemory
	// InvalidArgument means a caller-supplied argument violated a
	// documented precondition (bad alignment, non-monotonic limits, ...).
	InvalidArgument
	// Unavailable means the requested resource exists but cannot be
	// serviced right now (e.g. a transient move_pages failure).
	Unavailable
	// Exists means an insertion collided with an already-present key.
	Exists
	// Fatal means an invariant was violated in a way that leaves
	// internal state untrustworthy; see FatalError.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case OutOfMemory:
		return "out_of_memory"
	case InvalidArgument:
		return "invalid_argument"
	case Unavailable:
		return "unavailable"
	case Exists:
		return "exists"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// kindError pairs a Kind with an underlying error so errors.Is/As and
// %w-wrapping both work normally while still exposing the Kind.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// New builds an error of the given kind from a format string.
func New(kind Kind, format string, args ...any) error {
	return &kindError{kind: kind, err: fmt.Errorf(format, args...)}
}

// Wrap attaches a Kind to an existing error, preserving it in the chain.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// KindOf returns the Kind attached to err via New/Wrap, or Unknown if
// none is present anywhere in err's chain.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return Unknown
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }

// FatalError records a violated invariant: internal state that can no
// longer be trusted. It is always wrapped in Kind Fatal.
type FatalError struct {
	Invariant string
	Detail    string
}

func (e *FatalError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("invariant violated: %s", e.Invariant)
	}
	return fmt.Sprintf("invariant violated: %s: %s", e.Invariant, e.Detail)
}

// NewFatal builds a Kind-Fatal error for a named invariant.
func NewFatal(invariant, detail string) error {
	return Wrap(Fatal, &FatalError{Invariant: invariant, Detail: detail})
}

var (
	// ErrNotFound is returned by lookups that find no matching entry.
	ErrNotFound = errors.New("mkerr: not found")
	// ErrClosed is returned by operations attempted after shutdown.
	ErrClosed = errors.New("mkerr: closed")
)

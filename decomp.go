// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigbox

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

var (
	// ErrInvalidAxis is returned by Plan when the decomposition axis
	// does not exist in the global shape. It is a sentinel: callers
	// compare with == and attach context when logging.
	ErrInvalidAxis = errors.New("decomposition axis exceeds variable rank")
	// ErrDegenerateDecomposition is returned by Plan when there are
	// more workers than elements along the decomposition axis, which
	// would assign some worker an empty box.
	ErrDegenerateDecomposition = errors.New("more workers than elements along decomposition axis")
)

// A Policy selects how Plan distributes the remainder when the worker
// count does not evenly divide the decomposed axis. The two policies
// are not interchangeable: Truncate silently drops trailing elements,
// RemainderToLast assigns them all to the final worker.
type Policy int

const (
	// Truncate gives every worker the same extent
	// (axis length / workers, integer division). When the division is
	// uneven the trailing remainder elements are never read or written
	// by any worker. This reproduces a likely bug in legacy tooling and
	// is kept only because existing outputs depend on it; prefer
	// RemainderToLast.
	Truncate Policy = iota
	// RemainderToLast gives workers 0..n-2 the base extent and extends
	// the last worker's box to cover the rest of the axis, so the
	// worker boxes exactly partition it.
	RemainderToLast
)

func (p Policy) String() string {
	switch p {
	case Truncate:
		return "truncate"
	case RemainderToLast:
		return "remainder-to-last"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy parses a policy name as accepted on tool command lines.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "truncate":
		return Truncate, nil
	case "remainder-to-last", "remainder":
		return RemainderToLast, nil
	}
	return 0, fmt.Errorf("unknown decomposition policy %q", name)
}

// Plan computes the box owned by worker rank (of nworkers total) when
// the global shape is split along the given axis under the provided
// policy. Axes other than the decomposition axis are kept whole. Plan
// fails with ErrInvalidAxis when axis is out of range and with
// ErrDegenerateDecomposition when nworkers exceeds the axis extent.
//
// Every worker must call Plan with identical arguments (apart from
// rank): downstream collective operations rely on all workers deriving
// consistent boxes from the same shape.
func Plan(global Shape, axis, nworkers, rank int) (Box, error) {
	if nworkers < 1 || rank < 0 || rank >= nworkers {
		panic(fmt.Sprintf("bigbox.Plan: invalid worker %d of %d", rank, nworkers))
	}
	if axis < 0 || axis >= global.Rank() {
		return Box{}, ErrInvalidAxis
	}
	base := global[axis] / nworkers
	if base == 0 {
		return Box{}, ErrDegenerateDecomposition
	}
	box := Box{Offset: make(Shape, global.Rank()), Extent: global.Clone()}
	box.Offset[axis] = rank * base
	box.Extent[axis] = base
	return box, nil
}

// PlanPolicy is like Plan but applies the remainder policy. Truncate
// returns Plan's box unchanged; RemainderToLast widens the last
// worker's box to absorb the remainder of the axis.
func PlanPolicy(global Shape, axis, nworkers, rank int, policy Policy) (Box, error) {
	box, err := Plan(global, axis, nworkers, rank)
	if err != nil {
		return Box{}, err
	}
	if policy == RemainderToLast && rank == nworkers-1 {
		box.Extent[axis] = global[axis] - box.Offset[axis]
	}
	return box, nil
}

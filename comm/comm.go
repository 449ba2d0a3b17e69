// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package comm abstracts the process group that bigbox pipelines run
// in: a fixed set of SPMD workers identified by rank, communicating
// only through value-carrying collective reductions and barriers.
// Every worker must issue the same collective calls in the same order;
// the collectives are synchronization barriers, and a group whose
// members diverge cannot make progress.
//
// The package provides an in-process implementation whose workers are
// goroutines. An MPI-style multi-process group can implement the same
// Group interface; pipelines do not care which one they run on.
package comm

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
)

// An Op names a reduction combining function.
type Op int

const (
	Sum Op = iota
	Max
	Min
	barrier
)

func (o Op) String() string {
	switch o {
	case Sum:
		return "sum"
	case Max:
		return "max"
	case Min:
		return "min"
	case barrier:
		return "barrier"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// A Group is one worker's membership in a process group. Collective
// methods block until every member of the group has made the matching
// call. Errors returned from collective methods are tagged
// errors.Fatal: after a failed or interrupted collective the group
// state is undefined and the run must terminate, never retry.
type Group interface {
	// Rank returns this worker's index in [0, Size).
	Rank() int
	// Size returns the number of workers in the group.
	Size() int
	// Allreduce combines value across all workers with op and returns
	// the combined result to every worker.
	Allreduce(ctx context.Context, value float64, op Op) (float64, error)
	// AllreduceCount sums an element count across all workers.
	AllreduceCount(ctx context.Context, n uint64) (uint64, error)
	// Barrier blocks until every worker has reached it.
	Barrier(ctx context.Context) error
}

func fatalf(format string, args ...interface{}) error {
	return errors.E(errors.Fatal, fmt.Sprintf(format, args...))
}

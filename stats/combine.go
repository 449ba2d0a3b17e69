// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stats

import (
	"context"

	"github.com/scigrid/bigbox/comm"
)

// A Global holds the group-wide statistics for one variable at one
// step, produced by combining every worker's Partial.
type Global struct {
	SumSqErr  float64
	SumSqOrig float64
	MaxAbsErr float64
	MinOrig   float64
	MaxOrig   float64
	Count     uint64
}

// Combine reduces p across the process group and returns the global
// statistics to every worker. The six reductions are issued in a fixed
// order; since every worker calls Combine once per (variable, step) in
// the same program order, the group's collective sequences stay
// aligned. Combine must not be called by a worker whose local phase
// failed: the local failure conditions are chosen so that all workers
// fail together or none does.
func Combine(ctx context.Context, group comm.Group, p Partial) (Global, error) {
	var (
		g   Global
		err error
	)
	if g.SumSqErr, err = group.Allreduce(ctx, p.SumSqErr, comm.Sum); err != nil {
		return Global{}, err
	}
	if g.SumSqOrig, err = group.Allreduce(ctx, p.SumSqOrig, comm.Sum); err != nil {
		return Global{}, err
	}
	if g.MaxAbsErr, err = group.Allreduce(ctx, p.MaxAbsErr, comm.Max); err != nil {
		return Global{}, err
	}
	if g.MinOrig, err = group.Allreduce(ctx, p.MinOrig, comm.Min); err != nil {
		return Global{}, err
	}
	if g.MaxOrig, err = group.Allreduce(ctx, p.MaxOrig, comm.Max); err != nil {
		return Global{}, err
	}
	if g.Count, err = group.AllreduceCount(ctx, p.Count); err != nil {
		return Global{}, err
	}
	return g, nil
}

// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package run assembles bigbox pipelines: it decomposes each variable
// across the worker group, drives the participating streams through
// lockstep steps, dispatches on runtime element types, and aggregates
// distributed fidelity metrics. The two pipelines are Compress (read,
// transform via an attached operator, write) and Analyze (read an
// original and a comparison stream, compute global error metrics).
package run

import (
	"context"

	"github.com/scigrid/bigbox"
	"github.com/scigrid/bigbox/boxtype"
	"github.com/scigrid/bigbox/stream"
)

// Options are the knobs common to both pipelines.
type Options struct {
	// Axis is the single array axis split across workers.
	Axis int
	// Policy picks how uneven splits are handled. RemainderToLast
	// covers every element; Truncate reproduces legacy truncation.
	Policy bigbox.Policy
	// Vars restricts processing to the named variables. Empty means
	// all variables present in the input.
	Vars []string
	// MaxSteps caps the number of steps processed; <= 0 means all.
	MaxSteps int
}

// selected reports whether the variable passes the target filter.
func (o Options) selected(name string) bool {
	if len(o.Vars) == 0 {
		return true
	}
	for _, v := range o.Vars {
		if v == name {
			return true
		}
	}
	return false
}

// Probe opens one step of the reader and snapshots the variables it
// advertises, then rewinds out of the step. Tools use it to resolve
// target-variable lists before the main pass. Every worker probes its
// own reader; the snapshot is identical on all of them.
func Probe(ctx context.Context, r stream.Reader) (map[string]stream.VarInfo, error) {
	status, err := r.BeginStep(ctx)
	if err != nil {
		return nil, err
	}
	if status == stream.EndOfStream {
		return nil, nil
	}
	vars := make(map[string]stream.VarInfo)
	for _, info := range r.Variables() {
		vars[info.Name] = info
	}
	return vars, r.EndStep(ctx)
}

// skippable reports whether err is one of the per-variable failures
// that every worker detects identically from shared inputs (the step's
// variable table and the decomposition plan). Such failures are logged
// and the variable is skipped for the step; anything else may leave
// the group in divergent states and must abort the whole run.
func skippable(err error) bool {
	switch err {
	case bigbox.ErrInvalidAxis,
		bigbox.ErrDegenerateDecomposition,
		bigbox.ErrShapeMismatch,
		boxtype.ErrUnsupportedType,
		stream.ErrNoSuchVariable:
		return true
	}
	return false
}

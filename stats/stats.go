// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package stats computes distributed error statistics comparing an
// original and a reconstructed version of an array variable. Each
// worker accumulates a Partial over its local boxes; the partials are
// combined across the process group with collective reductions into a
// Global, from which the reported fidelity metrics derive. No worker
// ever sees another worker's raw data, only the combinable sums.
package stats

import (
	"math"

	"github.com/scigrid/bigbox"
	"github.com/scigrid/bigbox/boxtype"
)

// A Partial holds one worker's combinable statistics for one variable
// at one step. All accumulation is in float64 regardless of the
// element storage type: squared sums over large counts lose too much
// precision in float32.
type Partial struct {
	SumSqErr  float64 // sum of squared per-element errors
	SumSqOrig float64 // sum of squared original values
	MaxAbsErr float64 // largest absolute per-element error
	MinOrig   float64 // smallest original value
	MaxOrig   float64 // largest original value
	Count     uint64  // number of elements accumulated
}

// Zero returns the identity Partial: adding it to another partial
// leaves the other unchanged.
func Zero() Partial {
	return Partial{MinOrig: math.Inf(1), MaxOrig: math.Inf(-1)}
}

// Accumulate computes a worker's partial statistics from its local
// original and comparison buffers. The buffers must be the same
// length; both sides of a run derive their lengths from the same
// decomposition plan, so a mismatch is detected identically on every
// worker (and reported as bigbox.ErrShapeMismatch) before any
// collective call is made.
func Accumulate[T boxtype.Elem](orig, comp []T) (Partial, error) {
	if len(orig) != len(comp) {
		return Partial{}, bigbox.ErrShapeMismatch
	}
	p := Zero()
	p.Count = uint64(len(orig))
	for i := range orig {
		o := float64(orig[i])
		err := math.Abs(o - float64(comp[i]))
		p.SumSqErr += err * err
		p.SumSqOrig += o * o
		p.MaxAbsErr = math.Max(p.MaxAbsErr, err)
		p.MinOrig = math.Min(p.MinOrig, o)
		p.MaxOrig = math.Max(p.MaxOrig, o)
	}
	return p, nil
}

// Add merges q into p, as if q's elements had been accumulated into p.
// It lets a worker fold several local boxes into one partial before
// the collective combine.
func (p *Partial) Add(q Partial) {
	p.SumSqErr += q.SumSqErr
	p.SumSqOrig += q.SumSqOrig
	p.MaxAbsErr = math.Max(p.MaxAbsErr, q.MaxAbsErr)
	p.MinOrig = math.Min(p.MinOrig, q.MinOrig)
	p.MaxOrig = math.Max(p.MaxOrig, q.MaxOrig)
	p.Count += q.Count
}

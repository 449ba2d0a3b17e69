// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package stream defines the boundary between bigbox pipelines and the
// step-streamed checkpoint files they process. A stream advances
// through discrete steps bracketed by BeginStep/EndStep; within a step
// a reader enumerates the variables present and serves sub-box reads,
// and a writer accepts a one-time schema declaration per variable
// followed by sub-box writes.
//
// Begin/end step calls may be collective in the underlying engine, so
// every worker must issue them in the same order; Sync (stepsync.go)
// enforces that ordering across multiple streams.
package stream

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/scigrid/bigbox"
	"github.com/scigrid/bigbox/boxtype"
)

// StepStatus is the result of beginning a step on a stream.
type StepStatus int

const (
	// Ready indicates the step is open and its data may be accessed.
	Ready StepStatus = iota
	// EndOfStream indicates no steps remain. It is a graceful end, not
	// an error.
	EndOfStream
)

// ErrSchemaRedeclared is returned by Writer.Declare when a variable's
// schema is declared more than once in a run. Schemas are declared
// exactly once, on the step where the variable first appears, and
// reused unchanged afterwards; the Registry exists to guarantee this
// error never triggers.
var ErrSchemaRedeclared = errors.New("variable schema already declared")

// ErrNoSuchVariable is returned by reads of a variable not present in
// the current step.
var ErrNoSuchVariable = errors.New("no such variable in current step")

// A Stepper is the step-advancing face of a stream. For every
// successful BeginStep there must be exactly one matching EndStep.
type Stepper interface {
	BeginStep(ctx context.Context) (StepStatus, error)
	EndStep(ctx context.Context) error
}

// VarInfo describes one variable available in a reader's current step.
type VarInfo struct {
	Name string
	// Type is the element type tag as reported by the stream (see
	// boxtype.Parse for the accepted set).
	Type  string
	Shape bigbox.Shape
	// CompressedBytes is the measured encoded size of the variable's
	// data in this step, or 0 when the stream cannot provide one (the
	// consumer must then fall back to an estimate and flag it as such).
	CompressedBytes int64
}

// A Reader is a stream opened for reading.
type Reader interface {
	Stepper
	// Variables enumerates the variables present in the current step.
	// The returned slice is ordered deterministically so all workers
	// traverse variables identically.
	Variables() []VarInfo
	// Get copies the sub-region box of the named variable into dst,
	// which must be a slice of the variable's element type sized
	// exactly for the box.
	Get(ctx context.Context, name string, box bigbox.Box, dst interface{}) error
	Close() error
}

// A Writer is a stream opened for writing.
type Writer interface {
	Stepper
	// Declare declares the named variable's output schema: its global
	// shape, this worker's box within it, and an optional attached
	// operator. Declare must be called exactly once per variable per
	// run on each worker; a second call returns ErrSchemaRedeclared.
	Declare(name string, kind boxtype.Kind, global bigbox.Shape, local bigbox.Box, op *Operator) error
	// Put writes src (a slice of the variable's element type sized for
	// the declared box) into the current step.
	Put(ctx context.Context, name string, src interface{}) error
	Close() error
}

// An Operator is an opaque named transform attached to a variable
// declaration, identified by a kind string from a small closed set and
// configured with string key/value parameters. Its behavior is the
// engine's business; pipelines only pass it through.
type Operator struct {
	Name   string
	Kind   string
	Params map[string]string
}

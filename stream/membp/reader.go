// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package membp

import (
	"context"

	"github.com/grailbio/base/must"
	"github.com/scigrid/bigbox"
	"github.com/scigrid/bigbox/stream"
)

// A Reader is one worker's read handle over a File. Each worker makes
// its own Reader; handles advance independently and perform no
// collective calls, so workers stay in lockstep simply by issuing the
// same sequence of begin/end calls.
type Reader struct {
	file   *File
	cursor int
	inStep bool
}

var _ stream.Reader = (*Reader)(nil)

// NewReader returns a reader positioned before the file's first step.
func NewReader(f *File) *Reader {
	return &Reader{file: f, cursor: -1}
}

// BeginStep advances to the next step, or reports EndOfStream when no
// steps remain.
func (r *Reader) BeginStep(ctx context.Context) (stream.StepStatus, error) {
	must.Truef(!r.inStep, "membp: BeginStep without ending previous step")
	if r.cursor+1 >= len(r.file.Steps) {
		return stream.EndOfStream, nil
	}
	r.cursor++
	r.inStep = true
	return stream.Ready, nil
}

// EndStep closes the current step.
func (r *Reader) EndStep(ctx context.Context) error {
	must.Truef(r.inStep, "membp: EndStep without a begun step")
	r.inStep = false
	return nil
}

// Variables enumerates the variables present in the current step in
// lexical name order.
func (r *Reader) Variables() []stream.VarInfo {
	must.Truef(r.inStep, "membp: Variables outside a step")
	step := r.file.Steps[r.cursor]
	infos := make([]stream.VarInfo, 0, len(step.Order))
	for _, name := range step.Order {
		v := step.Vars[name]
		infos = append(infos, stream.VarInfo{
			Name:            v.Name,
			Type:            v.Kind.String(),
			Shape:           v.Shape.Clone(),
			CompressedBytes: v.CompressedBytes,
		})
	}
	return infos
}

// Get copies the sub-region box of the named variable in the current
// step into dst.
func (r *Reader) Get(ctx context.Context, name string, box bigbox.Box, dst interface{}) error {
	must.Truef(r.inStep, "membp: Get outside a step")
	v, ok := r.file.Steps[r.cursor].Vars[name]
	if !ok {
		return stream.ErrNoSuchVariable
	}
	data, err := v.payload()
	if err != nil {
		return err
	}
	return gather(v.Kind, data, v.Shape, box, dst)
}

// Close releases the reader. Reads after Close panic.
func (r *Reader) Close() error {
	must.Truef(!r.inStep, "membp: Close inside a step")
	r.file = nil
	return nil
}

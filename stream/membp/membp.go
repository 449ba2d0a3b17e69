// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package membp implements the stream boundary over an in-memory
// sequence of steps with optional gob-encoded on-disk persistence. It
// exists so bigbox pipelines and tests can run without an external
// checkpoint format: readers serve sub-box gets against global arrays,
// writers assemble global arrays from the disjoint boxes put by an
// SPMD worker group, and a variable's attached operator is applied
// when a step is sealed, yielding measured encoded sizes.
//
// Supported operator kinds: "none" (pass-through), "zstd" (lossless,
// measured compressed size), and the opaque lossy identifiers
// "caesar", "mgard", "zfp" and "sz", which membp passes through
// unchanged (their real transforms live in external engines); their
// encoded sizes are unreported so consumers fall back to estimates.
package membp

import (
	"encoding/gob"
	"os"
	"sort"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/scigrid/bigbox"
	"github.com/scigrid/bigbox/boxtype"
	"github.com/scigrid/bigbox/stream"
)

func init() {
	gob.Register([]int32{})
	gob.Register([]uint32{})
	gob.Register([]int64{})
	gob.Register([]uint64{})
	gob.Register([]float32{})
	gob.Register([]float64{})
}

// OperatorKinds is the closed set of operator kind strings membp
// accepts at declaration time.
var OperatorKinds = map[string]bool{
	"none":   true,
	"zstd":   true,
	"caesar": true,
	"mgard":  true,
	"zfp":    true,
	"sz":     true,
}

// ErrCorrupt is returned when a sealed payload fails its integrity
// check on read.
var ErrCorrupt = errors.New("corrupt encoded payload")

// A File is a step-streamed dataset: an ordered sequence of steps,
// each holding the variables present at that step. Files are written
// by a Target and read by any number of Readers.
type File struct {
	Steps []*Step
}

// A Step holds the variables written in one step. Order lists variable
// names sorted lexically; readers enumerate in this order so every
// worker sees an identical traversal.
type Step struct {
	Order []string
	Vars  map[string]*Variable
}

// A Variable is one variable's data within one step. Exactly one of
// Data and Encoded is populated: Data holds the raw global array as a
// typed slice; Encoded holds the sealed operator output along with its
// murmur3 checksum and measured size.
type Variable struct {
	Name     string
	Kind     boxtype.Kind
	Shape    bigbox.Shape
	Operator *stream.Operator

	Data            interface{}
	Encoded         []byte
	Sum64           uint64
	CompressedBytes int64

	mu sync.Mutex
}

// Open reads a gob-encoded File from path.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var file File
	if err := gob.NewDecoder(f).Decode(&file); err != nil {
		return nil, errors.E(err, "membp: decode "+path)
	}
	return &file, nil
}

// Save writes the file to path in gob encoding.
func (f *File) Save(path string) (err error) {
	w, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()
	return gob.NewEncoder(w).Encode(f)
}

func newStep() *Step {
	return &Step{Vars: make(map[string]*Variable)}
}

func (s *Step) sortOrder() {
	s.Order = s.Order[:0]
	for name := range s.Vars {
		s.Order = append(s.Order, name)
	}
	sort.Strings(s.Order)
}

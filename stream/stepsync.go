// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stream

import "context"

// SyncState is the lifecycle state of a Sync.
type SyncState int

const (
	// Running: all streams are advancing; Begin may be called.
	Running SyncState = iota
	// Draining: one stream has ended mid-Begin and the streams already
	// begun that iteration are being given their matching EndStep.
	Draining
	// Stopped: a stream has ended (or a Begin failed); no further
	// steps may be begun.
	Stopped
)

// A Sync advances a set of independent streams through matched step
// sequences in lockstep. The begin/end calls of the underlying streams
// may be collective operations, so Sync calls them in the fixed order
// the streams were given, identically on every worker; skipping a
// stream or reordering calls on one worker would block the whole group
// indefinitely.
type Sync struct {
	steppers []Stepper
	begun    []bool
	state    SyncState
}

// NewSync returns a Sync over the given streams. The order of the
// arguments is the order in which their step calls are issued and must
// be the same on every worker.
func NewSync(steppers ...Stepper) *Sync {
	return &Sync{
		steppers: steppers,
		begun:    make([]bool, len(steppers)),
	}
}

// State returns the synchronizer's current state.
func (s *Sync) State() SyncState { return s.state }

// Begin begins the next combined step. It returns true when every
// stream reported Ready, in which case the caller must call End after
// the per-step work completes. When any stream reports end-of-stream,
// Begin gives the streams begun earlier in the iteration their
// matching EndStep, transitions to Stopped, and returns false: no
// stream is left with an unmatched begin. A stream error stops the
// synchronizer and is returned after the same drain.
func (s *Sync) Begin(ctx context.Context) (bool, error) {
	if s.state != Running {
		panic("stream: Begin on stopped synchronizer")
	}
	for i, st := range s.steppers {
		status, err := st.BeginStep(ctx)
		if err != nil {
			s.state = Draining
			derr := s.drain(ctx)
			s.state = Stopped
			if derr != nil {
				return false, derr
			}
			return false, err
		}
		if status == EndOfStream {
			s.state = Draining
			err := s.drain(ctx)
			s.state = Stopped
			return false, err
		}
		s.begun[i] = true
	}
	return true, nil
}

// End ends the current combined step, calling EndStep on every begun
// stream in the same fixed order as Begin.
func (s *Sync) End(ctx context.Context) error {
	if s.state != Running {
		panic("stream: End on stopped synchronizer")
	}
	return s.drain(ctx)
}

func (s *Sync) drain(ctx context.Context) error {
	var first error
	for i, st := range s.steppers {
		if !s.begun[i] {
			continue
		}
		s.begun[i] = false
		if err := st.EndStep(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package membp

import (
	"context"
	"fmt"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/must"
	"github.com/scigrid/bigbox"
	"github.com/scigrid/bigbox/boxtype"
	"github.com/scigrid/bigbox/comm"
	"github.com/scigrid/bigbox/stream"
)

// A Target is a destination file shared by an SPMD worker group. Each
// worker writes through its own Session; the target assembles the
// workers' disjoint boxes into global arrays, seals each step's
// variables with their attached operators, and persists the file when
// the last session closes.
type Target struct {
	path string
	size int

	mu      sync.Mutex
	file    *File
	schemas map[string]*schema
	pending *Step
	closed  int
	saveErr error
}

type schema struct {
	kind  boxtype.Kind
	shape bigbox.Shape
	op    *stream.Operator
}

// NewTarget returns a write target for a group of size workers. When
// path is empty the file is kept in memory only (retrieve it with
// File); otherwise it is saved to path when the last session closes.
func NewTarget(path string, size int) *Target {
	must.Truef(size > 0, "membp: target group size %d", size)
	return &Target{
		path:    path,
		size:    size,
		file:    &File{},
		schemas: make(map[string]*schema),
	}
}

// File returns the assembled file. Valid once all sessions are closed.
func (t *Target) File() *File { return t.file }

// Session returns the write handle for one worker of the group.
func (t *Target) Session(group comm.Group) *Session {
	must.Truef(group.Size() == t.size, "membp: group size %d, target wants %d", group.Size(), t.size)
	return &Session{target: t, group: group, boxes: make(map[string]bigbox.Box)}
}

// A Session is one worker's write handle on a Target. Begin/end step
// calls are collective across the group's sessions.
type Session struct {
	target *Target
	group  comm.Group
	boxes  map[string]bigbox.Box
	inStep bool
}

var _ stream.Writer = (*Session)(nil)

// BeginStep opens the next step. Collective: it blocks until every
// session in the group has begun the step.
func (s *Session) BeginStep(ctx context.Context) (stream.StepStatus, error) {
	must.Truef(!s.inStep, "membp: BeginStep without ending previous step")
	t := s.target
	t.mu.Lock()
	if t.pending == nil {
		t.pending = newStep()
	}
	t.mu.Unlock()
	if err := s.group.Barrier(ctx); err != nil {
		return 0, err
	}
	s.inStep = true
	return stream.Ready, nil
}

// Declare declares a variable's schema. The first declaration from any
// session fixes the schema; other sessions' first declarations must
// agree with it. A second declaration from the same session returns
// ErrSchemaRedeclared.
func (s *Session) Declare(name string, kind boxtype.Kind, global bigbox.Shape, local bigbox.Box, op *stream.Operator) error {
	if _, ok := s.boxes[name]; ok {
		return stream.ErrSchemaRedeclared
	}
	if !local.Within(global) {
		return bigbox.ErrShapeMismatch
	}
	if op != nil && !OperatorKinds[op.Kind] {
		return errors.E(errors.Invalid, fmt.Sprintf("membp: unknown operator kind %q", op.Kind))
	}
	t := s.target
	t.mu.Lock()
	defer t.mu.Unlock()
	if sc, ok := t.schemas[name]; ok {
		if sc.kind != kind || !sc.shape.Equal(global) {
			return bigbox.ErrShapeMismatch
		}
	} else {
		t.schemas[name] = &schema{kind: kind, shape: global.Clone(), op: op}
	}
	s.boxes[name] = local
	return nil
}

// Put writes src into the current step at the box this session
// declared for the variable.
func (s *Session) Put(ctx context.Context, name string, src interface{}) error {
	must.Truef(s.inStep, "membp: Put outside a step")
	box, ok := s.boxes[name]
	if !ok {
		return stream.ErrNoSuchVariable
	}
	t := s.target
	t.mu.Lock()
	defer t.mu.Unlock()
	sc := t.schemas[name]
	v, ok := t.pending.Vars[name]
	if !ok {
		v = &Variable{
			Name:     name,
			Kind:     sc.kind,
			Shape:    sc.shape.Clone(),
			Operator: sc.op,
			Data:     alloc(sc.kind, sc.shape.Size()),
		}
		t.pending.Vars[name] = v
	}
	return scatter(sc.kind, v.Data, sc.shape, box, src)
}

// EndStep closes the current step. Collective: after every session of
// the group arrives, the step's variables are sealed with their
// operators and the step is appended to the file.
func (s *Session) EndStep(ctx context.Context) error {
	must.Truef(s.inStep, "membp: EndStep without a begun step")
	s.inStep = false
	if err := s.group.Barrier(ctx); err != nil {
		return err
	}
	var err error
	if s.group.Rank() == 0 {
		err = s.target.sealPending()
	}
	// Sealing happens on one rank only; spread the outcome so either
	// every session fails the step or none does.
	failed := 0.0
	if err != nil {
		failed = 1
	}
	anyFailed, berr := s.group.Allreduce(ctx, failed, comm.Max)
	if berr != nil {
		return berr
	}
	if err != nil {
		return err
	}
	if anyFailed > 0 {
		return errors.New("membp: step seal failed on coordinating session")
	}
	return nil
}

func (t *Target) sealPending() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	step := t.pending
	t.pending = nil
	if step == nil {
		return nil
	}
	step.sortOrder()
	for _, name := range step.Order {
		if err := step.Vars[name].seal(); err != nil {
			return errors.E(err, "membp: seal "+name)
		}
	}
	t.file.Steps = append(t.file.Steps, step)
	return nil
}

// Close releases the session; when the last session of the group
// closes and the target has a path, the file is saved there. The save
// error is reported by the session that performs the save.
func (s *Session) Close() error {
	must.Truef(!s.inStep, "membp: Close inside a step")
	t := s.target
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	if t.closed == t.size && t.path != "" {
		t.saveErr = t.file.Save(t.path)
	}
	if t.closed >= t.size {
		return t.saveErr
	}
	return nil
}

// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stream

import (
	"context"
	"errors"
	"testing"
)

// fakeStepper records the begin/end calls made against it and ends the
// stream after a fixed number of steps.
type fakeStepper struct {
	name    string
	steps   int
	begun   int
	ended   int
	log     *[]string
	failOn  int
	failErr error
}

func (f *fakeStepper) BeginStep(ctx context.Context) (StepStatus, error) {
	if f.failErr != nil && f.begun+1 == f.failOn {
		return 0, f.failErr
	}
	if f.begun == f.steps {
		return EndOfStream, nil
	}
	f.begun++
	*f.log = append(*f.log, f.name+".begin")
	return Ready, nil
}

func (f *fakeStepper) EndStep(ctx context.Context) error {
	f.ended++
	*f.log = append(*f.log, f.name+".end")
	return nil
}

func TestSyncLockstep(t *testing.T) {
	ctx := context.Background()
	var calls []string
	a := &fakeStepper{name: "a", steps: 3, log: &calls}
	b := &fakeStepper{name: "b", steps: 3, log: &calls}
	sync := NewSync(a, b)
	steps := 0
	for {
		ok, err := sync.Begin(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		steps++
		if err := sync.End(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if steps != 3 {
		t.Errorf("got %d steps, want 3", steps)
	}
	if sync.State() != Stopped {
		t.Errorf("got state %v, want Stopped", sync.State())
	}
	// Fixed order: a begun before b, ended before b, every iteration.
	want := []string{
		"a.begin", "b.begin", "a.end", "b.end",
		"a.begin", "b.begin", "a.end", "b.end",
		"a.begin", "b.begin", "a.end", "b.end",
	}
	if len(calls) != len(want) {
		t.Fatalf("got %d calls, want %d: %v", len(calls), len(want), calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d: got %s, want %s", i, calls[i], want[i])
		}
	}
}

// TestSyncShorterStream checks that when one stream ends first, the
// streams already begun that iteration still get their matching end
// calls and no stream is begun after the end-of-stream discovery.
func TestSyncShorterStream(t *testing.T) {
	ctx := context.Background()
	var calls []string
	a := &fakeStepper{name: "a", steps: 5, log: &calls}
	b := &fakeStepper{name: "b", steps: 2, log: &calls}
	sync := NewSync(a, b)
	steps := 0
	for {
		ok, err := sync.Begin(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		steps++
		if err := sync.End(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if steps != 2 {
		t.Errorf("got %d steps, want 2", steps)
	}
	// On the third iteration a was begun, b reported end-of-stream,
	// and a received its matching end during the drain.
	if a.begun != 3 || a.ended != 3 {
		t.Errorf("stream a: begun %d ended %d, want 3/3", a.begun, a.ended)
	}
	if b.begun != 2 || b.ended != 2 {
		t.Errorf("stream b: begun %d ended %d, want 2/2", b.begun, b.ended)
	}
	if sync.State() != Stopped {
		t.Errorf("got state %v, want Stopped", sync.State())
	}
}

func TestSyncBeginError(t *testing.T) {
	ctx := context.Background()
	var calls []string
	boom := errors.New("boom")
	a := &fakeStepper{name: "a", steps: 5, log: &calls}
	b := &fakeStepper{name: "b", steps: 5, log: &calls, failOn: 2, failErr: boom}
	sync := NewSync(a, b)
	ok, err := sync.Begin(ctx)
	if !ok || err != nil {
		t.Fatalf("first step: ok %v err %v", ok, err)
	}
	if err := sync.End(ctx); err != nil {
		t.Fatal(err)
	}
	ok, err = sync.Begin(ctx)
	if ok || err != boom {
		t.Fatalf("second step: ok %v err %v, want false/boom", ok, err)
	}
	// a was begun before b failed; it must still have been ended.
	if a.begun != 2 || a.ended != 2 {
		t.Errorf("stream a: begun %d ended %d, want 2/2", a.begun, a.ended)
	}
	if sync.State() != Stopped {
		t.Errorf("got state %v, want Stopped", sync.State())
	}
}

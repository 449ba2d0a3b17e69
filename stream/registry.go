// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stream

import (
	"sync"

	"github.com/scigrid/bigbox"
)

// A Registry tracks, for the lifetime of a run, which variables have
// had their output schema declared. A destination stream's schema for a
// variable must be declared exactly once, on the step where the
// variable first appears; every later step reuses it unchanged. The
// registry is the single source of that decision: ShouldDeclare
// answers true exactly once per name, no matter how calls interleave
// across steps. There is no way to un-declare a name.
type Registry struct {
	mu       sync.Mutex
	declared map[string]bigbox.Box
}

// NewRegistry returns an empty registry. One registry is created per
// run per worker and passed explicitly to the code that declares
// schemas; it is deliberately not package-level state.
func NewRegistry() *Registry {
	return &Registry{declared: make(map[string]bigbox.Box)}
}

// ShouldDeclare reports whether name has not yet been declared, and
// marks it declared with box recorded as its first-declaration box.
// The first call for a name returns true; all later calls return false
// for the remainder of the run.
func (r *Registry) ShouldDeclare(name string, box bigbox.Box) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.declared[name]; ok {
		return false
	}
	r.declared[name] = box
	return true
}

// DeclaredBox returns the box recorded at name's first declaration.
func (r *Registry) DeclaredBox(name string) (bigbox.Box, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	box, ok := r.declared[name]
	return box, ok
}

// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigbox

import (
	"fmt"
	"strings"
)

// A Shape is the per-axis extent of an N-dimensional array. A shape's
// rank is its number of axes; valid shapes have rank >= 1.
type Shape []int

// Rank returns the number of axes in the shape.
func (s Shape) Rank() int { return len(s) }

// Size returns the total number of elements described by the shape.
func (s Shape) Size() int {
	size := 1
	for _, extent := range s {
		size *= extent
	}
	return size
}

// Clone returns a copy of the shape that shares no storage with it.
func (s Shape) Clone() Shape {
	t := make(Shape, len(s))
	copy(t, s)
	return t
}

// Equal reports whether shapes s and t have the same rank and extents.
func (s Shape) Equal(t Shape) bool {
	if len(s) != len(t) {
		return false
	}
	for i := range s {
		if s[i] != t[i] {
			return false
		}
	}
	return true
}

// String renders the shape in the bracketed form used in progress
// output, e.g. "[128, 64, 64]".
func (s Shape) String() string {
	elems := make([]string, len(s))
	for i, extent := range s {
		elems[i] = fmt.Sprint(extent)
	}
	return "[" + strings.Join(elems, ", ") + "]"
}

// A Box is an axis-aligned sub-region of a global shape, described by a
// per-axis offset and extent of equal rank.
type Box struct {
	Offset Shape
	Extent Shape
}

// Rank returns the box's rank.
func (b Box) Rank() int { return len(b.Offset) }

// Size returns the number of elements contained in the box.
func (b Box) Size() int { return b.Extent.Size() }

// Within reports whether the box lies entirely within global: for every
// axis, offset+extent must not exceed the global extent.
func (b Box) Within(global Shape) bool {
	if b.Rank() != global.Rank() || len(b.Offset) != len(b.Extent) {
		return false
	}
	for i := range global {
		if b.Offset[i] < 0 || b.Extent[i] < 0 || b.Offset[i]+b.Extent[i] > global[i] {
			return false
		}
	}
	return true
}

func (b Box) String() string {
	return fmt.Sprintf("start=%s, count=%s", b.Offset, b.Extent)
}

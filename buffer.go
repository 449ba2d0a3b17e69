// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigbox

import (
	"github.com/grailbio/base/errors"
	"github.com/scigrid/bigbox/boxtype"
)

// ErrShapeMismatch is returned when two buffers or selections that must
// agree in size do not. It is derived identically on every worker from
// the shared decomposition plan, so workers either all fail or all
// proceed.
var ErrShapeMismatch = errors.New("shape mismatch")

// A Buffer is a worker-owned contiguous block of elements holding the
// contents of one box in row-major order. Buffers are never shared
// between workers.
type Buffer[T boxtype.Elem] []T

// MakeBuffer returns a zeroed buffer sized for the box.
func MakeBuffer[T boxtype.Elem](box Box) Buffer[T] {
	return make(Buffer[T], box.Size())
}

// Bytes returns the storage size of the buffer in bytes.
func (b Buffer[T]) Bytes() int64 {
	return int64(len(b)) * int64(boxtype.Of[T]().Size())
}

// strides returns the row-major stride (in elements) of each axis of
// the shape.
func strides(shape Shape) []int {
	s := make([]int, shape.Rank())
	stride := 1
	for i := shape.Rank() - 1; i >= 0; i-- {
		s[i] = stride
		stride *= shape[i]
	}
	return s
}

// walkRows visits the flat start index in global storage of every
// contiguous innermost row of the box, in row-major order. The caller
// copies box.Extent[rank-1] elements per visit.
func walkRows(shape Shape, box Box, visit func(global, local int)) {
	rank := box.Rank()
	gstrides := strides(shape)
	rowLen := box.Extent[rank-1]
	// Odometer over all axes but the innermost.
	idx := make([]int, rank-1)
	local := 0
	for {
		global := box.Offset[rank-1]
		for i := 0; i < rank-1; i++ {
			global += (box.Offset[i] + idx[i]) * gstrides[i]
		}
		visit(global, local)
		local += rowLen
		i := rank - 2
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < box.Extent[i] {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

// Gather copies the elements of box out of the flat global array (laid
// out row-major with the given shape) into dst. dst must be sized
// exactly for the box and the box must lie within the shape.
func Gather[T boxtype.Elem](global []T, shape Shape, box Box, dst []T) error {
	if err := checkBox(len(global), shape, box, len(dst)); err != nil {
		return err
	}
	if box.Size() == 0 {
		return nil
	}
	rowLen := box.Extent[box.Rank()-1]
	walkRows(shape, box, func(g, l int) {
		copy(dst[l:l+rowLen], global[g:g+rowLen])
	})
	return nil
}

// Scatter copies src into the region of the flat global array selected
// by box. It is the inverse of Gather.
func Scatter[T boxtype.Elem](global []T, shape Shape, box Box, src []T) error {
	if err := checkBox(len(global), shape, box, len(src)); err != nil {
		return err
	}
	if box.Size() == 0 {
		return nil
	}
	rowLen := box.Extent[box.Rank()-1]
	walkRows(shape, box, func(g, l int) {
		copy(global[g:g+rowLen], src[l:l+rowLen])
	})
	return nil
}

func checkBox(globalLen int, shape Shape, box Box, localLen int) error {
	if shape.Rank() == 0 || globalLen != shape.Size() || !box.Within(shape) || localLen != box.Size() {
		return ErrShapeMismatch
	}
	return nil
}

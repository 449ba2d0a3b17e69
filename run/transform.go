// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package run

import (
	"github.com/scigrid/bigbox"
	"github.com/scigrid/bigbox/boxtype"
	"github.com/scigrid/bigbox/stream"
)

// invokeTransform is the boundary between the pipeline and the named
// operator. The operator's real transform runs inside the stream
// engine it is attached to; here the data passes through unchanged and
// only its shape consistency with the worker's box is enforced, so a
// buffer of the wrong size can never cross the boundary in either
// direction.
func invokeTransform[T boxtype.Elem](op *stream.Operator, box bigbox.Box, buf bigbox.Buffer[T]) (bigbox.Buffer[T], error) {
	if len(buf) != box.Size() {
		return nil, bigbox.ErrShapeMismatch
	}
	return buf, nil
}

// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package membp

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/grailbio/base/compress/zstd"
	"github.com/scigrid/bigbox"
	"github.com/scigrid/bigbox/boxtype"
	"github.com/spaolacci/murmur3"
)

// seal applies the variable's operator to its raw data. Only the
// "zstd" kind actually encodes; it replaces Data with the compressed
// gob payload and records its measured size and checksum. Other kinds
// leave the data raw with no reported size.
func (v *Variable) seal() error {
	if v.Operator == nil || v.Operator.Kind != "zstd" {
		return nil
	}
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return err
	}
	if err = gob.NewEncoder(zw).Encode(&v.Data); err != nil {
		zw.Close()
		return err
	}
	if err = zw.Close(); err != nil {
		return err
	}
	v.Encoded = buf.Bytes()
	v.CompressedBytes = int64(len(v.Encoded))
	v.Sum64 = murmur3.Sum64(v.Encoded)
	v.Data = nil
	return nil
}

// payload returns the variable's raw global array, decoding the sealed
// form on first use. Safe for concurrent readers.
func (v *Variable) payload() (interface{}, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.Data != nil {
		return v.Data, nil
	}
	if v.Encoded == nil {
		return nil, ErrCorrupt
	}
	if murmur3.Sum64(v.Encoded) != v.Sum64 {
		return nil, ErrCorrupt
	}
	zr, err := zstd.NewReader(bytes.NewReader(v.Encoded))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	if err = gob.NewDecoder(zr).Decode(&v.Data); err != nil && err != io.EOF {
		return nil, err
	}
	return v.Data, nil
}

// alloc returns a zeroed typed slice of n elements of the kind.
func alloc(kind boxtype.Kind, n int) interface{} {
	switch kind {
	case boxtype.Int32:
		return make([]int32, n)
	case boxtype.Uint32:
		return make([]uint32, n)
	case boxtype.Int64:
		return make([]int64, n)
	case boxtype.Uint64:
		return make([]uint64, n)
	case boxtype.Float32:
		return make([]float32, n)
	case boxtype.Float64:
		return make([]float64, n)
	}
	panic("alloc of invalid kind")
}

// gather dispatches bigbox.Gather over the kind's concrete type.
func gather(kind boxtype.Kind, global interface{}, shape bigbox.Shape, box bigbox.Box, dst interface{}) error {
	switch kind {
	case boxtype.Int32:
		return typedGather[int32](global, shape, box, dst)
	case boxtype.Uint32:
		return typedGather[uint32](global, shape, box, dst)
	case boxtype.Int64:
		return typedGather[int64](global, shape, box, dst)
	case boxtype.Uint64:
		return typedGather[uint64](global, shape, box, dst)
	case boxtype.Float32:
		return typedGather[float32](global, shape, box, dst)
	case boxtype.Float64:
		return typedGather[float64](global, shape, box, dst)
	}
	return boxtype.ErrUnsupportedType
}

// scatter dispatches bigbox.Scatter over the kind's concrete type.
func scatter(kind boxtype.Kind, global interface{}, shape bigbox.Shape, box bigbox.Box, src interface{}) error {
	switch kind {
	case boxtype.Int32:
		return typedScatter[int32](global, shape, box, src)
	case boxtype.Uint32:
		return typedScatter[uint32](global, shape, box, src)
	case boxtype.Int64:
		return typedScatter[int64](global, shape, box, src)
	case boxtype.Uint64:
		return typedScatter[uint64](global, shape, box, src)
	case boxtype.Float32:
		return typedScatter[float32](global, shape, box, src)
	case boxtype.Float64:
		return typedScatter[float64](global, shape, box, src)
	}
	return boxtype.ErrUnsupportedType
}

func typedGather[T boxtype.Elem](global interface{}, shape bigbox.Shape, box bigbox.Box, dst interface{}) error {
	g, ok := global.([]T)
	d, ok2 := dst.([]T)
	if !ok || !ok2 {
		return bigbox.ErrShapeMismatch
	}
	return bigbox.Gather(g, shape, box, d)
}

func typedScatter[T boxtype.Elem](global interface{}, shape bigbox.Shape, box bigbox.Box, src interface{}) error {
	g, ok := global.([]T)
	s, ok2 := src.([]T)
	if !ok || !ok2 {
		return bigbox.ErrShapeMismatch
	}
	return bigbox.Scatter(g, shape, box, s)
}

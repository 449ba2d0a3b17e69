// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package boxtype describes the closed set of element types that bigbox
// pipelines operate on. Streams report element types as strings; Parse
// maps those tags (including the C-style aliases emitted by legacy
// writers) onto Kinds, and the run package dispatches one generic
// pipeline instantiation per Kind.
package boxtype

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// Elem constrains the scalar element types supported by pipelines.
// The set is closed: every Elem instantiation has exactly one Kind.
type Elem interface {
	int32 | uint32 | int64 | uint64 | float32 | float64
}

// A Kind names one supported element type.
type Kind int

const (
	Invalid Kind = iota
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
)

// ErrUnsupportedType is the sentinel returned by Parse for tags outside
// the supported set. Variables with such types are skipped, not fatal.
var ErrUnsupportedType = errors.New("unsupported element type")

var kindNames = map[Kind]string{
	Int32:   "int32",
	Uint32:  "uint32",
	Int64:   "int64",
	Uint64:  "uint64",
	Float32: "float",
	Float64: "double",
}

// Tag aliases as produced by the stream boundary. The C-ish names are
// what BP-style files report; the Go names are accepted for symmetry.
var kindTags = map[string]Kind{
	"int32":              Int32,
	"int32_t":            Int32,
	"int":                Int32,
	"uint32":             Uint32,
	"uint32_t":           Uint32,
	"unsigned int":       Uint32,
	"int64":              Int64,
	"int64_t":            Int64,
	"long long":          Int64,
	"uint64":             Uint64,
	"uint64_t":           Uint64,
	"unsigned long long": Uint64,
	"float32":            Float32,
	"float":              Float32,
	"float64":            Float64,
	"double":             Float64,
}

// Parse maps a stream-reported type tag onto its Kind. It returns
// ErrUnsupportedType for tags outside the closed set.
func Parse(tag string) (Kind, error) {
	if kind, ok := kindTags[tag]; ok {
		return kind, nil
	}
	return Invalid, ErrUnsupportedType
}

// String returns the canonical tag for the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Size returns the storage size of one element of the kind, in bytes.
func (k Kind) Size() int {
	switch k {
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	}
	panic("size of invalid kind")
}

// Of returns the Kind for the concrete element type T.
func Of[T Elem]() Kind {
	switch any(*new(T)).(type) {
	case int32:
		return Int32
	case uint32:
		return Uint32
	case int64:
		return Int64
	case uint64:
		return Uint64
	case float32:
		return Float32
	case float64:
		return Float64
	}
	panic("unreachable")
}

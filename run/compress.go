// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package run

import (
	"context"

	"github.com/grailbio/base/log"
	"github.com/scigrid/bigbox"
	"github.com/scigrid/bigbox/boxtype"
	"github.com/scigrid/bigbox/comm"
	"github.com/scigrid/bigbox/stream"
)

// CompressConfig configures the compress pipeline.
type CompressConfig struct {
	Options
	// Operator is attached to every variable declaration in the
	// output. Nil writes a plain copy.
	Operator *stream.Operator
}

// Compress streams every step of in to out, splitting each selected
// variable across the worker group and declaring its output schema
// (with the configured operator attached) the first time the variable
// appears. Each worker reads and writes only its own box; the input
// and output streams advance in lockstep. Per-variable failures that
// all workers detect identically are logged and skipped; any other
// failure aborts the run.
func Compress(ctx context.Context, group comm.Group, in stream.Reader, out stream.Writer, cfg CompressConfig) error {
	registry := stream.NewRegistry()
	sync := stream.NewSync(in, out)
	for step := 0; cfg.MaxSteps <= 0 || step < cfg.MaxSteps; step++ {
		ok, err := sync.Begin(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		for _, info := range in.Variables() {
			if !cfg.selected(info.Name) {
				continue
			}
			if group.Rank() == 0 {
				log.Printf("step %d: %s %s shape %s", step, info.Name, info.Type, info.Shape)
			}
			if err := compressVariable(ctx, group, in, out, registry, info, cfg); err != nil {
				if !skippable(err) {
					return err
				}
				if group.Rank() == 0 {
					log.Error.Printf("step %d: skipping %s: %v", step, info.Name, err)
				}
			}
		}
		if err := sync.End(ctx); err != nil {
			return err
		}
	}
	return nil
}

// compressVariable handles one variable for one step: dispatch on the
// declared element type, plan this worker's box, read it, declare the
// output schema once, and write the box out.
func compressVariable(ctx context.Context, group comm.Group, in stream.Reader, out stream.Writer, registry *stream.Registry, info stream.VarInfo, cfg CompressConfig) error {
	kind, err := boxtype.Parse(info.Type)
	if err != nil {
		return err
	}
	switch kind {
	case boxtype.Int32:
		return copyBox[int32](ctx, group, in, out, registry, info, kind, cfg)
	case boxtype.Uint32:
		return copyBox[uint32](ctx, group, in, out, registry, info, kind, cfg)
	case boxtype.Int64:
		return copyBox[int64](ctx, group, in, out, registry, info, kind, cfg)
	case boxtype.Uint64:
		return copyBox[uint64](ctx, group, in, out, registry, info, kind, cfg)
	case boxtype.Float32:
		return copyBox[float32](ctx, group, in, out, registry, info, kind, cfg)
	case boxtype.Float64:
		return copyBox[float64](ctx, group, in, out, registry, info, kind, cfg)
	}
	return boxtype.ErrUnsupportedType
}

func copyBox[T boxtype.Elem](ctx context.Context, group comm.Group, in stream.Reader, out stream.Writer, registry *stream.Registry, info stream.VarInfo, kind boxtype.Kind, cfg CompressConfig) error {
	box, err := bigbox.PlanPolicy(info.Shape, cfg.Axis, group.Size(), group.Rank(), cfg.Policy)
	if err != nil {
		return err
	}
	if registry.ShouldDeclare(info.Name, box) {
		if err := out.Declare(info.Name, kind, info.Shape, box, cfg.Operator); err != nil {
			return err
		}
		if group.Rank() == 0 {
			op := "none"
			if cfg.Operator != nil {
				op = cfg.Operator.Kind
			}
			log.Printf("declared %s: global %s, worker 0 box %s, operator %s", info.Name, info.Shape, box, op)
		}
	}
	// The schema, including each worker's box, is fixed at first
	// declaration; later steps reuse it even if they could replan.
	declared, _ := registry.DeclaredBox(info.Name)
	buf := bigbox.MakeBuffer[T](declared)
	if err := in.Get(ctx, info.Name, declared, []T(buf)); err != nil {
		return err
	}
	buf, err = invokeTransform(cfg.Operator, declared, buf)
	if err != nil {
		return err
	}
	return out.Put(ctx, info.Name, []T(buf))
}

// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package run

import (
	"context"
	"math"
	"sort"

	"github.com/grailbio/base/data"
	"github.com/grailbio/base/log"
	"github.com/scigrid/bigbox"
	"github.com/scigrid/bigbox/boxtype"
	"github.com/scigrid/bigbox/comm"
	"github.com/scigrid/bigbox/stats"
	"github.com/scigrid/bigbox/stream"
)

// AnalyzeConfig configures the analyze pipeline.
type AnalyzeConfig struct {
	Options
}

// A Summary aggregates one variable's per-step global metrics over a
// whole run.
type Summary struct {
	Steps          int
	AvgRatio       float64
	RatioEstimated bool
	AvgNRMSE       float64
	MaxLinf        float64
}

// Analyze drives the original and comparison streams through matched
// steps and computes, for every selected variable at every step, the
// globally combined fidelity metrics. Each worker compares only its
// own box of each variable; the per-worker partial sums are combined
// with collective reductions, so the derived metrics are exact while
// no worker ever holds a full variable. Metrics are reported once per
// step by rank 0. The returned summaries (keyed by variable, identical
// on every worker) aggregate the per-step metrics.
func Analyze(ctx context.Context, group comm.Group, orig, comp stream.Reader, cfg AnalyzeConfig) (map[string]*Summary, error) {
	summaries := make(map[string]*Summary)
	sync := stream.NewSync(orig, comp)
	for step := 0; cfg.MaxSteps <= 0 || step < cfg.MaxSteps; step++ {
		ok, err := sync.Begin(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		compVars := make(map[string]stream.VarInfo)
		for _, info := range comp.Variables() {
			compVars[info.Name] = info
		}
		for _, info := range orig.Variables() {
			if !cfg.selected(info.Name) {
				continue
			}
			err := analyzeVariable(ctx, group, orig, comp, info, compVars, summaries, cfg, step)
			if err != nil {
				if !skippable(err) {
					return nil, err
				}
				if group.Rank() == 0 {
					log.Error.Printf("step %d: skipping %s: %v", step, info.Name, err)
				}
			}
		}
		if err := sync.End(ctx); err != nil {
			return nil, err
		}
	}
	for _, s := range summaries {
		if s.Steps > 0 {
			s.AvgRatio /= float64(s.Steps)
			s.AvgNRMSE /= float64(s.Steps)
		}
	}
	return summaries, nil
}

func analyzeVariable(ctx context.Context, group comm.Group, orig, comp stream.Reader, info stream.VarInfo, compVars map[string]stream.VarInfo, summaries map[string]*Summary, cfg AnalyzeConfig, step int) error {
	compInfo, ok := compVars[info.Name]
	if !ok {
		return stream.ErrNoSuchVariable
	}
	kind, err := boxtype.Parse(info.Type)
	if err != nil {
		return err
	}
	compKind, err := boxtype.Parse(compInfo.Type)
	if err != nil {
		return err
	}
	if kind != compKind || !info.Shape.Equal(compInfo.Shape) {
		return bigbox.ErrShapeMismatch
	}
	var partial stats.Partial
	switch kind {
	case boxtype.Int32:
		partial, err = accumulateBoxes[int32](ctx, group, orig, comp, info, cfg)
	case boxtype.Uint32:
		partial, err = accumulateBoxes[uint32](ctx, group, orig, comp, info, cfg)
	case boxtype.Int64:
		partial, err = accumulateBoxes[int64](ctx, group, orig, comp, info, cfg)
	case boxtype.Uint64:
		partial, err = accumulateBoxes[uint64](ctx, group, orig, comp, info, cfg)
	case boxtype.Float32:
		partial, err = accumulateBoxes[float32](ctx, group, orig, comp, info, cfg)
	case boxtype.Float64:
		partial, err = accumulateBoxes[float64](ctx, group, orig, comp, info, cfg)
	default:
		err = boxtype.ErrUnsupportedType
	}
	if err != nil {
		// All of the local-phase failures derive from the shared step
		// metadata and plan, so every worker takes this return and the
		// collective combine below is skipped by all of them together.
		return err
	}
	global, err := stats.Combine(ctx, group, partial)
	if err != nil {
		return err
	}
	metrics := global.Metrics()
	ratio := stats.CompressionRatio(int64(global.Count)*int64(kind.Size()), compInfo.CompressedBytes)
	summary, ok := summaries[info.Name]
	if !ok {
		summary = new(Summary)
		summaries[info.Name] = summary
	}
	summary.Steps++
	summary.AvgRatio += ratio.Value
	summary.RatioEstimated = summary.RatioEstimated || ratio.Estimated
	summary.AvgNRMSE += metrics.NRMSE
	summary.MaxLinf = math.Max(summary.MaxLinf, metrics.Linf)
	if group.Rank() == 0 {
		estimated := ""
		if ratio.Estimated {
			estimated = " (estimated)"
		}
		log.Printf("step %d: %s shape %s: elements %d, range [%g, %g], ratio %.2fx%s (%s -> %s), NRMSE %.6e, Linf %.6e, PSNR %.2f",
			step, info.Name, info.Shape, metrics.Count, metrics.MinOrig, metrics.MaxOrig,
			ratio.Value, estimated, data.Size(ratio.OriginalBytes), data.Size(ratio.CompressedBytes),
			metrics.NRMSE, metrics.Linf, metrics.PSNR)
	}
	return nil
}

// accumulateBoxes reads this worker's box of the variable from both
// streams and folds them into a partial.
func accumulateBoxes[T boxtype.Elem](ctx context.Context, group comm.Group, orig, comp stream.Reader, info stream.VarInfo, cfg AnalyzeConfig) (stats.Partial, error) {
	box, err := bigbox.PlanPolicy(info.Shape, cfg.Axis, group.Size(), group.Rank(), cfg.Policy)
	if err != nil {
		return stats.Partial{}, err
	}
	obuf := bigbox.MakeBuffer[T](box)
	cbuf := bigbox.MakeBuffer[T](box)
	if err := orig.Get(ctx, info.Name, box, []T(obuf)); err != nil {
		return stats.Partial{}, err
	}
	if err := comp.Get(ctx, info.Name, box, []T(cbuf)); err != nil {
		return stats.Partial{}, err
	}
	return stats.Accumulate[T](obuf, cbuf)
}

// SortedNames returns the summary keys in lexical order, for stable
// reporting.
func SortedNames(summaries map[string]*Summary) []string {
	names := make([]string, 0, len(summaries))
	for name := range summaries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

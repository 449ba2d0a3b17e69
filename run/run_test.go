// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package run

import (
	"context"
	"sync"
	"testing"

	"github.com/scigrid/bigbox"
	"github.com/scigrid/bigbox/boxtype"
	"github.com/scigrid/bigbox/comm"
	"github.com/scigrid/bigbox/stream"
	"github.com/scigrid/bigbox/stream/membp"
)

// makeInput builds a three-step input file. "temperature" (float64,
// [8, 4]) is present at every step; "pressure" (float32, [6]) appears
// from step 1 on.
func makeInput() *membp.File {
	f := &membp.File{}
	for step := 0; step < 3; step++ {
		temp := make([]float64, 32)
		for i := range temp {
			temp[i] = float64(1000*step + i)
		}
		vars := map[string]*membp.Variable{
			"temperature": {
				Name:  "temperature",
				Kind:  boxtype.Float64,
				Shape: bigbox.Shape{8, 4},
				Data:  temp,
			},
		}
		order := []string{"temperature"}
		if step >= 1 {
			press := make([]float32, 6)
			for i := range press {
				press[i] = float32(step) + float32(i)/10
			}
			vars["pressure"] = &membp.Variable{
				Name:  "pressure",
				Kind:  boxtype.Float32,
				Shape: bigbox.Shape{6},
				Data:  press,
			}
			order = []string{"pressure", "temperature"}
		}
		f.Steps = append(f.Steps, &membp.Step{Order: order, Vars: vars})
	}
	return f
}

// compress runs the compress pipeline with two workers, each reading
// through its own reader from open, and returns the output file.
func compress(t *testing.T, open func() stream.Reader, cfg CompressConfig) *membp.File {
	t.Helper()
	target := membp.NewTarget("", 2)
	err := comm.Run(context.Background(), 2, func(ctx context.Context, g comm.Group) error {
		r := open()
		w := target.Session(g)
		if err := Compress(ctx, g, r, w, cfg); err != nil {
			return err
		}
		if err := r.Close(); err != nil {
			return err
		}
		return w.Close()
	})
	if err != nil {
		t.Fatal(err)
	}
	return target.File()
}

// analyze runs the analyze pipeline over orig and comp with two
// workers and returns rank 0's summaries.
func analyze(t *testing.T, orig, comp *membp.File, cfg AnalyzeConfig) map[string]*Summary {
	t.Helper()
	var (
		mu        sync.Mutex
		summaries map[string]*Summary
	)
	err := comm.Run(context.Background(), 2, func(ctx context.Context, g comm.Group) error {
		ro, rc := membp.NewReader(orig), membp.NewReader(comp)
		s, err := Analyze(ctx, g, ro, rc, cfg)
		if err != nil {
			return err
		}
		if g.Rank() == 0 {
			mu.Lock()
			summaries = s
			mu.Unlock()
		}
		ro.Close()
		return rc.Close()
	})
	if err != nil {
		t.Fatal(err)
	}
	return summaries
}

// fileReader adapts a file to the compress helper's reader factory.
func fileReader(f *membp.File) func() stream.Reader {
	return func() stream.Reader { return membp.NewReader(f) }
}

func TestCompressAnalyzeLossless(t *testing.T) {
	in := makeInput()
	out := compress(t, fileReader(in), CompressConfig{
		Options:  Options{Policy: bigbox.RemainderToLast},
		Operator: &stream.Operator{Name: "zstd", Kind: "zstd"},
	})
	if len(out.Steps) != 3 {
		t.Fatalf("output has %d steps, want 3", len(out.Steps))
	}

	summaries := analyze(t, in, out, AnalyzeConfig{Options{Policy: bigbox.RemainderToLast}})
	if got := SortedNames(summaries); len(got) != 2 || got[0] != "pressure" || got[1] != "temperature" {
		t.Fatalf("summaries for %v", got)
	}
	temp := summaries["temperature"]
	if temp.Steps != 3 {
		t.Errorf("temperature analyzed over %d steps, want 3", temp.Steps)
	}
	if temp.AvgNRMSE != 0 || temp.MaxLinf != 0 {
		t.Errorf("lossless copy has error: NRMSE %v, Linf %v", temp.AvgNRMSE, temp.MaxLinf)
	}
	if temp.RatioEstimated {
		t.Error("zstd output should carry measured sizes")
	}
	if temp.AvgRatio <= 0 {
		t.Errorf("ratio %v", temp.AvgRatio)
	}
	press := summaries["pressure"]
	if press.Steps != 2 {
		t.Errorf("pressure analyzed over %d steps, want 2", press.Steps)
	}
	if press.AvgNRMSE != 0 || press.MaxLinf != 0 {
		t.Errorf("lossless copy has error: NRMSE %v, Linf %v", press.AvgNRMSE, press.MaxLinf)
	}
}

// TestCompressTruncate checks the truncating policy drops the trailing
// remainder: with 2 workers on a length 7 axis, element 6 is never
// written.
func TestCompressTruncate(t *testing.T) {
	orig := make([]float64, 7)
	for i := range orig {
		orig[i] = float64(i + 1)
	}
	in := &membp.File{Steps: []*membp.Step{{
		Order: []string{"v"},
		Vars: map[string]*membp.Variable{
			"v": {Name: "v", Kind: boxtype.Float64, Shape: bigbox.Shape{7}, Data: orig},
		},
	}}}
	out := compress(t, fileReader(in), CompressConfig{Options: Options{Policy: bigbox.Truncate}})
	got := out.Steps[0].Vars["v"].Data.([]float64)
	for i := 0; i < 6; i++ {
		if got[i] != orig[i] {
			t.Errorf("element %d: got %v, want %v", i, got[i], orig[i])
		}
	}
	if got[6] != 0 {
		t.Errorf("truncated element written: %v", got[6])
	}
}

// TestSkipUnsupportedType checks a variable with an unrecognized type
// tag is skipped without failing the run.
func TestSkipUnsupportedType(t *testing.T) {
	in := makeInput()
	open := func() stream.Reader { return badTypeReader{membp.NewReader(in)} }
	out := compress(t, open, CompressConfig{
		Options: Options{Policy: bigbox.RemainderToLast},
	})
	if len(out.Steps) != 3 {
		t.Fatalf("output has %d steps, want 3", len(out.Steps))
	}
	for i, step := range out.Steps {
		if _, ok := step.Vars["temperature"]; ok {
			t.Errorf("step %d: unsupported variable written", i)
		}
		if i >= 1 {
			if _, ok := step.Vars["pressure"]; !ok {
				t.Errorf("step %d: supported variable missing", i)
			}
		}
	}
}

// badTypeReader advertises "temperature" with an unknown element type.
type badTypeReader struct{ *membp.Reader }

func (r badTypeReader) Variables() []stream.VarInfo {
	infos := r.Reader.Variables()
	for i := range infos {
		if infos[i].Name == "temperature" {
			infos[i].Type = "complex double"
		}
	}
	return infos
}

// TestSkipDegenerate checks a variable too small for the worker group
// is skipped while larger variables in the same step are processed.
func TestSkipDegenerate(t *testing.T) {
	in := &membp.File{Steps: []*membp.Step{{
		Order: []string{"big", "tiny"},
		Vars: map[string]*membp.Variable{
			"big": {Name: "big", Kind: boxtype.Float64, Shape: bigbox.Shape{4},
				Data: []float64{1, 2, 3, 4}},
			"tiny": {Name: "tiny", Kind: boxtype.Float64, Shape: bigbox.Shape{1},
				Data: []float64{7}},
		},
	}}}
	out := compress(t, fileReader(in), CompressConfig{Options: Options{Policy: bigbox.RemainderToLast}})
	step := out.Steps[0]
	if _, ok := step.Vars["tiny"]; ok {
		t.Error("degenerate variable written")
	}
	if _, ok := step.Vars["big"]; !ok {
		t.Error("sibling variable missing")
	}
}

func TestVarSelection(t *testing.T) {
	in := makeInput()
	out := compress(t, fileReader(in), CompressConfig{
		Options: Options{Policy: bigbox.RemainderToLast, Vars: []string{"pressure"}},
	})
	for i, step := range out.Steps {
		if _, ok := step.Vars["temperature"]; ok {
			t.Errorf("step %d: unselected variable written", i)
		}
	}
	if _, ok := out.Steps[1].Vars["pressure"]; !ok {
		t.Error("selected variable missing")
	}
}

func TestMaxSteps(t *testing.T) {
	in := makeInput()
	out := compress(t, fileReader(in), CompressConfig{
		Options: Options{Policy: bigbox.RemainderToLast, MaxSteps: 1},
	})
	if len(out.Steps) != 1 {
		t.Fatalf("output has %d steps, want 1", len(out.Steps))
	}
}

// TestAnalyzeDetectsError perturbs one element of the comparison
// stream and checks the global metrics see it from every worker.
func TestAnalyzeDetectsError(t *testing.T) {
	orig := []float64{0, 10, 0, 0}
	comp := []float64{0, 8, 0, 0}
	step := func(data []float64) *membp.Step {
		return &membp.Step{
			Order: []string{"x"},
			Vars: map[string]*membp.Variable{
				"x": {Name: "x", Kind: boxtype.Float64, Shape: bigbox.Shape{4}, Data: data},
			},
		}
	}
	of := &membp.File{Steps: []*membp.Step{step(orig)}}
	cf := &membp.File{Steps: []*membp.Step{step(comp)}}
	summaries := analyze(t, of, cf, AnalyzeConfig{Options{Policy: bigbox.RemainderToLast}})
	s := summaries["x"]
	if s == nil {
		t.Fatal("no summary")
	}
	if s.MaxLinf != 2 {
		t.Errorf("Linf %v, want 2", s.MaxLinf)
	}
	// rmse = sqrt(4/4) = 1, l2norm = sqrt(100/4) = 5.
	if s.AvgNRMSE != 0.2 {
		t.Errorf("NRMSE %v, want 0.2", s.AvgNRMSE)
	}
	// The comparison stream carries no measured sizes, so the ratio is
	// the flagged estimate.
	if !s.RatioEstimated {
		t.Error("ratio not flagged as estimated")
	}
}

// TestAnalyzeMissingVariable checks a variable absent from the
// comparison stream is skipped, not fatal.
func TestAnalyzeMissingVariable(t *testing.T) {
	of := &membp.File{Steps: []*membp.Step{{
		Order: []string{"only"},
		Vars: map[string]*membp.Variable{
			"only": {Name: "only", Kind: boxtype.Float64, Shape: bigbox.Shape{4},
				Data: []float64{1, 2, 3, 4}},
		},
	}}}
	cf := &membp.File{Steps: []*membp.Step{{Vars: map[string]*membp.Variable{}}}}
	summaries := analyze(t, of, cf, AnalyzeConfig{Options{Policy: bigbox.RemainderToLast}})
	if len(summaries) != 0 {
		t.Errorf("got summaries %v, want none", SortedNames(summaries))
	}
}

func TestProbe(t *testing.T) {
	in := makeInput()
	r := membp.NewReader(in)
	vars, err := Probe(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	// The probe sees step 0 only.
	if len(vars) != 1 {
		t.Fatalf("probe saw %d variables, want 1", len(vars))
	}
	info, ok := vars["temperature"]
	if !ok || info.Type != "double" || !info.Shape.Equal(bigbox.Shape{8, 4}) {
		t.Errorf("probe info %+v", info)
	}
	// The probe rewinds nothing; the reader continues from step 1.
	status, err := r.BeginStep(context.Background())
	if err != nil || status != stream.Ready {
		t.Fatalf("BeginStep after probe: (%v, %v)", status, err)
	}
	if err := r.EndStep(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestSelected(t *testing.T) {
	o := Options{Vars: []string{"a", "b"}}
	for _, tc := range []struct {
		name string
		want bool
	}{{"a", true}, {"b", true}, {"c", false}} {
		if got := o.selected(tc.name); got != tc.want {
			t.Errorf("selected(%q) = %v", tc.name, got)
		}
	}
	if !(Options{}).selected("anything") {
		t.Error("empty filter must select all")
	}
}

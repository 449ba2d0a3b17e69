// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Boxdiff compares an original step stream against a compressed or
// otherwise reconstructed one, computing globally combined error
// metrics (compression ratio, NRMSE, max absolute error, PSNR) for
// every variable at every step without materializing any variable on
// a single worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/grailbio/base/data"
	"github.com/grailbio/base/log"
	"github.com/scigrid/bigbox"
	"github.com/scigrid/bigbox/comm"
	"github.com/scigrid/bigbox/run"
	"github.com/scigrid/bigbox/stream/membp"
)

func main() {
	log.AddFlags()
	log.SetFlags(0)
	log.SetPrefix("boxdiff: ")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `usage: boxdiff [flags] original compressed axis [var ...]

Boxdiff reads the two step streams in lockstep, splits every variable
across the worker group along the given axis, and reports per-step and
per-variable fidelity metrics. With no variable names, all variables
present in the original are compared.
`)
		flag.PrintDefaults()
		os.Exit(2)
	}
	var (
		workers  = flag.Int("workers", 1, "number of workers in the group")
		policy   = flag.String("policy", "remainder-to-last", "decomposition policy (truncate, remainder-to-last)")
		maxSteps = flag.Int("max-steps", 0, "maximum steps to compare (0 = all)")
	)
	flag.Parse()
	if flag.NArg() < 3 {
		flag.Usage()
	}
	origPath, compPath := flag.Arg(0), flag.Arg(1)
	axis, err := strconv.Atoi(flag.Arg(2))
	if err != nil || axis < 0 {
		fmt.Fprintf(os.Stderr, "boxdiff: bad axis %q\n", flag.Arg(2))
		flag.Usage()
	}
	vars := flag.Args()[3:]

	pol, err := bigbox.ParsePolicy(*policy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "boxdiff: %v\n", err)
		flag.Usage()
	}

	log.Printf("original %s, compressed %s, axis %d, workers %d, policy %s",
		origPath, compPath, axis, *workers, pol)
	if len(vars) == 0 {
		log.Printf("variables: ALL")
	} else {
		log.Printf("variables: %s", strings.Join(vars, ", "))
	}
	reportFileSizes(origPath, compPath)

	origFile, err := membp.Open(origPath)
	if err != nil {
		log.Error.Printf("boxdiff: open %s: %v", origPath, err)
		os.Exit(1)
	}
	compFile, err := membp.Open(compPath)
	if err != nil {
		log.Error.Printf("boxdiff: open %s: %v", compPath, err)
		os.Exit(1)
	}

	cfg := run.AnalyzeConfig{
		Options: run.Options{
			Axis:     axis,
			Policy:   pol,
			Vars:     vars,
			MaxSteps: *maxSteps,
		},
	}
	var (
		mu        sync.Mutex
		summaries map[string]*run.Summary
	)
	err = comm.Run(context.Background(), *workers, func(ctx context.Context, group comm.Group) error {
		orig := membp.NewReader(origFile)
		comp := membp.NewReader(compFile)
		s, err := run.Analyze(ctx, group, orig, comp, cfg)
		if err != nil {
			return err
		}
		// Summaries are identical on every worker; keep rank 0's.
		if group.Rank() == 0 {
			mu.Lock()
			summaries = s
			mu.Unlock()
		}
		if err := orig.Close(); err != nil {
			return err
		}
		return comp.Close()
	})
	if err != nil {
		log.Error.Printf("boxdiff: %v", err)
		os.Exit(1)
	}
	for _, name := range run.SortedNames(summaries) {
		s := summaries[name]
		estimated := ""
		if s.RatioEstimated {
			estimated = " (estimated)"
		}
		log.Printf("summary %s (%d steps): avg ratio %.2fx%s, avg NRMSE %.6e, max Linf %.6e",
			name, s.Steps, s.AvgRatio, estimated, s.AvgNRMSE, s.MaxLinf)
	}
	log.Printf("analysis complete")
}

// reportFileSizes logs the on-disk sizes of the two files and their
// whole-file ratio. This is a coarse, file-level number; the per-step
// ratios in the analysis are authoritative.
func reportFileSizes(origPath, compPath string) {
	origInfo, err1 := os.Stat(origPath)
	compInfo, err2 := os.Stat(compPath)
	if err1 != nil || err2 != nil || compInfo.Size() == 0 {
		return
	}
	log.Printf("file sizes: original %s, compressed %s, ratio %.2fx",
		data.Size(origInfo.Size()), data.Size(compInfo.Size()),
		float64(origInfo.Size())/float64(compInfo.Size()))
}

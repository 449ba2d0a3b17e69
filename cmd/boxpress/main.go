// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Boxpress compresses step-streamed array files: it splits every
// variable across a group of workers along one axis, attaches a named
// compression operator to each variable's output schema, and writes
// the transformed stream step by step.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/scigrid/bigbox"
	"github.com/scigrid/bigbox/comm"
	"github.com/scigrid/bigbox/run"
	"github.com/scigrid/bigbox/stream"
	"github.com/scigrid/bigbox/stream/membp"
)

func main() {
	log.AddFlags()
	log.SetFlags(0)
	log.SetPrefix("boxpress: ")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `usage: boxpress [flags] input output axis [var ...]

Boxpress copies the step stream in input to output, decomposing each
variable across the worker group along the given axis and attaching
the chosen operator to every variable's output schema. With no
variable names, all variables are processed.

Operators: none, zstd, caesar, mgard, zfp, sz
`)
		flag.PrintDefaults()
		os.Exit(2)
	}
	var (
		workers   = flag.Int("workers", 1, "number of workers in the group")
		policy    = flag.String("policy", "remainder-to-last", "decomposition policy (truncate, remainder-to-last)")
		operator  = flag.String("op", "none", "compression operator kind")
		tolerance = flag.Float64("tolerance", 1e-3, "operator error tolerance")
		maxSteps  = flag.Int("max-steps", 0, "maximum steps to process (0 = all)")
	)
	flag.Parse()
	if flag.NArg() < 3 {
		flag.Usage()
	}
	input, output := flag.Arg(0), flag.Arg(1)
	axis, err := strconv.Atoi(flag.Arg(2))
	if err != nil || axis < 0 {
		fmt.Fprintf(os.Stderr, "boxpress: bad axis %q\n", flag.Arg(2))
		flag.Usage()
	}
	vars := flag.Args()[3:]

	pol, err := bigbox.ParsePolicy(*policy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "boxpress: %v\n", err)
		flag.Usage()
	}
	op, err := makeOperator(*operator, *tolerance)
	if err != nil {
		fmt.Fprintf(os.Stderr, "boxpress: %v\n", err)
		flag.Usage()
	}

	log.Printf("input %s, output %s, axis %d, operator %s, workers %d, policy %s",
		input, output, axis, *operator, *workers, pol)
	if len(vars) == 0 {
		log.Printf("variables: ALL")
	} else {
		log.Printf("variables: %s", strings.Join(vars, ", "))
	}

	file, err := membp.Open(input)
	if err != nil {
		log.Error.Printf("boxpress: open %s: %v", input, err)
		os.Exit(1)
	}
	if err := checkVars(file, vars); err != nil {
		log.Error.Printf("boxpress: %v", err)
		os.Exit(1)
	}

	target := membp.NewTarget(output, *workers)
	cfg := run.CompressConfig{
		Options: run.Options{
			Axis:     axis,
			Policy:   pol,
			Vars:     vars,
			MaxSteps: *maxSteps,
		},
		Operator: op,
	}
	err = comm.Run(context.Background(), *workers, func(ctx context.Context, group comm.Group) error {
		in := membp.NewReader(file)
		out := target.Session(group)
		if err := run.Compress(ctx, group, in, out, cfg); err != nil {
			return err
		}
		if err := in.Close(); err != nil {
			return err
		}
		return out.Close()
	})
	if err != nil {
		log.Error.Printf("boxpress: %v", err)
		os.Exit(1)
	}
	log.Printf("compression complete: %s", output)
}

// makeOperator maps an operator kind onto its parameter preset.
func makeOperator(kind string, tolerance float64) (*stream.Operator, error) {
	tol := strconv.FormatFloat(tolerance, 'g', -1, 64)
	var params map[string]string
	switch kind {
	case "none":
		return nil, nil
	case "zstd":
	case "caesar":
		params = map[string]string{
			"error_bound": tol,
			"mode":        "CAESAR_V",
			"batch_size":  "32",
		}
	case "mgard", "zfp", "sz":
		params = map[string]string{"accuracy": tol}
	default:
		return nil, fmt.Errorf("unknown operator %q", kind)
	}
	return &stream.Operator{Name: "Comp", Kind: kind, Params: params}, nil
}

// checkVars verifies every requested variable exists somewhere in the
// input before the group starts.
func checkVars(file *membp.File, vars []string) error {
	if len(vars) == 0 {
		return nil
	}
	r := membp.NewReader(file)
	known, err := run.Probe(context.Background(), r)
	if err != nil {
		return err
	}
	for _, name := range vars {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("variable %q not found in input", name)
		}
	}
	return r.Close()
}

// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package bigbox implements domain decomposition for large
	N-dimensional array variables processed by a fixed group of SPMD
	workers. A variable's global extent is described by a Shape; the
	axis-aligned sub-region owned by one worker is described by a Box.
	Plan splits a shape across workers along a single chosen axis, and
	Gather/Scatter move a box's elements between a worker's contiguous
	buffer and the variable's row-major global array.

	Every worker of a group runs the same program over its own box.
	Workers coordinate only through the collective operations of the
	comm package, so the code a worker runs must issue the same sequence
	of collective calls on every rank; the decomposition plans and the
	error taxonomy in this package are designed so that per-variable
	failures are detected identically on all workers, keeping the
	group's collective sequences aligned.

	The subpackages compose into step-streamed pipelines:

	Package boxtype names the closed set of element types variables may
	carry and maps external type tags onto them.

	Package comm provides the worker group abstraction and its
	collective reductions.

	Package stream defines the step-streamed reader and writer
	boundaries, the declare-once schema registry, and the multi-stream
	step synchronizer; stream/membp implements the boundaries over an
	in-memory, optionally persisted, step sequence.

	Package stats computes distributed compression fidelity metrics
	(NRMSE, Linf, PSNR, compression ratio) from per-worker partial sums
	combined with collective reductions.

	Package run assembles the compress and analyze pipelines used by the
	boxpress and boxdiff tools under cmd.
*/
package bigbox

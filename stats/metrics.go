// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package stats

import "math"

// PSNRSentinel is reported instead of an infinite PSNR when the error
// is exactly zero (or the data has no range), so metrics stay
// representable in downstream tables.
const PSNRSentinel = 999.0

// Metrics are the derived fidelity metrics for one variable at one
// step. They are computed from Global sums only, never stored.
type Metrics struct {
	// NRMSE is the root-mean-squared error normalized by the
	// root-mean-square magnitude of the original data; zero when the
	// original is identically zero.
	NRMSE float64
	// Linf is the maximum absolute per-element error.
	Linf float64
	// PSNR derives from the original data range and the mean squared
	// error; PSNRSentinel when the error or range is zero.
	PSNR float64
	// MinOrig and MaxOrig bound the original data.
	MinOrig, MaxOrig float64
	// Count is the number of elements compared globally.
	Count uint64
}

// Metrics derives the reported metrics from the combined statistics.
func (g Global) Metrics() Metrics {
	m := Metrics{
		Linf:    g.MaxAbsErr,
		MinOrig: g.MinOrig,
		MaxOrig: g.MaxOrig,
		Count:   g.Count,
		PSNR:    PSNRSentinel,
	}
	if g.Count == 0 {
		m.MinOrig, m.MaxOrig = 0, 0
		return m
	}
	mse := g.SumSqErr / float64(g.Count)
	rmse := math.Sqrt(mse)
	l2norm := math.Sqrt(g.SumSqOrig / float64(g.Count))
	if l2norm > 0 {
		m.NRMSE = rmse / l2norm
	}
	dataRange := g.MaxOrig - g.MinOrig
	if mse > 0 && dataRange > 0 {
		m.PSNR = 20*math.Log10(dataRange) - 10*math.Log10(mse)
	}
	return m
}

// A Ratio is a compression ratio along with the provenance of its
// compressed size: measured by the stream boundary, or estimated when
// the boundary could not report one. Estimated ratios use a documented
// fallback of half the original size and must never be presented as
// measured fact.
type Ratio struct {
	Value           float64
	OriginalBytes   int64
	CompressedBytes int64
	Estimated       bool
}

// CompressionRatio computes originalBytes/compressedBytes. When
// compressedBytes is unavailable (<= 0) the fallback estimate
// originalBytes/2 is used and the result is flagged Estimated.
func CompressionRatio(originalBytes, compressedBytes int64) Ratio {
	r := Ratio{OriginalBytes: originalBytes, CompressedBytes: compressedBytes}
	if compressedBytes <= 0 {
		r.CompressedBytes = originalBytes / 2
		r.Estimated = true
	}
	if r.CompressedBytes > 0 {
		r.Value = float64(r.OriginalBytes) / float64(r.CompressedBytes)
	}
	return r
}

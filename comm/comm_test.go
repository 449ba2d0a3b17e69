// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAllreduce(t *testing.T) {
	const n = 8
	ctx := context.Background()
	err := Run(ctx, n, func(ctx context.Context, g Group) error {
		v := float64(g.Rank() + 1)
		sum, err := g.Allreduce(ctx, v, Sum)
		if err != nil {
			return err
		}
		if want := float64(n * (n + 1) / 2); sum != want {
			t.Errorf("rank %d: sum %v, want %v", g.Rank(), sum, want)
		}
		max, err := g.Allreduce(ctx, v, Max)
		if err != nil {
			return err
		}
		if max != n {
			t.Errorf("rank %d: max %v, want %v", g.Rank(), max, float64(n))
		}
		min, err := g.Allreduce(ctx, v, Min)
		if err != nil {
			return err
		}
		if min != 1 {
			t.Errorf("rank %d: min %v, want 1", g.Rank(), min)
		}
		count, err := g.AllreduceCount(ctx, uint64(g.Rank()))
		if err != nil {
			return err
		}
		if want := uint64(n * (n - 1) / 2); count != want {
			t.Errorf("rank %d: count %v, want %v", g.Rank(), count, want)
		}
		return g.Barrier(ctx)
	})
	if err != nil {
		t.Fatal(err)
	}
}

// TestAllreduceRepeated checks that consecutive collective rounds never
// bleed into each other, even when some workers race ahead.
func TestAllreduceRepeated(t *testing.T) {
	const (
		n      = 4
		rounds = 200
	)
	ctx := context.Background()
	err := Run(ctx, n, func(ctx context.Context, g Group) error {
		for i := 0; i < rounds; i++ {
			sum, err := g.Allreduce(ctx, float64(i), Sum)
			if err != nil {
				return err
			}
			if want := float64(i * n); sum != want {
				t.Errorf("rank %d round %d: sum %v, want %v", g.Rank(), i, sum, want)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestMismatchedCollective(t *testing.T) {
	err := Run(context.Background(), 2, func(ctx context.Context, g Group) error {
		op := Sum
		if g.Rank() == 1 {
			op = Max
		}
		_, err := g.Allreduce(ctx, 1, op)
		return err
	})
	if err == nil {
		t.Fatal("expected error from mismatched collective")
	}
}

// TestWorkerFailureUnblocks checks that when one worker fails before a
// collective, the others do not block forever waiting for it.
func TestWorkerFailureUnblocks(t *testing.T) {
	errBoom := errors.New("boom")
	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), 3, func(ctx context.Context, g Group) error {
			if g.Rank() == 0 {
				return errBoom
			}
			return g.Barrier(ctx)
		})
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("group blocked after worker failure")
	}
}

func TestLocalRanks(t *testing.T) {
	groups := Local(3)
	for rank, g := range groups {
		if g.Rank() != rank {
			t.Errorf("got rank %d, want %d", g.Rank(), rank)
		}
		if g.Size() != 3 {
			t.Errorf("got size %d, want 3", g.Size())
		}
	}
}

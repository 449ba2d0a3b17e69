// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package comm

import (
	"context"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Local returns an in-process group of n workers, one Group handle per
// rank. The handles share a hub; each handle must be used by exactly
// one goroutine.
func Local(n int) []Group {
	if n < 1 {
		panic("comm.Local: group size must be positive")
	}
	h := &hub{size: n}
	groups := make([]Group, n)
	for rank := range groups {
		groups[rank] = &local{hub: h, rank: rank}
	}
	return groups
}

// Run runs fn as an SPMD computation on an in-process group of n
// workers, one goroutine per rank, and returns the first error. When
// any worker fails, the shared context is canceled so workers blocked
// in collectives unblock with a fatal error instead of waiting forever
// for a peer that will never arrive.
func Run(ctx context.Context, n int, fn func(ctx context.Context, group Group) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, group := range Local(n) {
		group := group
		g.Go(func() error {
			return fn(ctx, group)
		})
	}
	return g.Wait()
}

type local struct {
	hub  *hub
	rank int
}

func (l *local) Rank() int { return l.rank }
func (l *local) Size() int { return l.hub.size }

func (l *local) Allreduce(ctx context.Context, value float64, op Op) (float64, error) {
	r, err := l.hub.arrive(ctx, op, value, 0)
	if err != nil {
		return 0, err
	}
	return r.value, nil
}

func (l *local) AllreduceCount(ctx context.Context, n uint64) (uint64, error) {
	r, err := l.hub.arrive(ctx, Sum, 0, n)
	if err != nil {
		return 0, err
	}
	return r.count, nil
}

func (l *local) Barrier(ctx context.Context) error {
	_, err := l.hub.arrive(ctx, barrier, 0, 0)
	return err
}

// A hub rendezvouses one collective at a time. Workers arriving at a
// collective join the current round; the last arrival completes it and
// wakes the others. SPMD call discipline guarantees rounds do not
// overlap: no worker can begin round k+1 before round k has released
// every member.
type hub struct {
	mu   sync.Mutex
	size int
	cur  *round
}

type round struct {
	op      Op
	arrived int
	value   float64
	count   uint64
	err     error
	done    chan struct{}
}

func (h *hub) arrive(ctx context.Context, op Op, value float64, count uint64) (*round, error) {
	h.mu.Lock()
	if h.cur == nil {
		h.cur = &round{op: op, value: identity(op), done: make(chan struct{})}
	}
	r := h.cur
	if r.op != op {
		// A mismatched collective means the workers' control flow has
		// diverged. Fail the whole round rather than deadlocking.
		r.err = fatalf("collective mismatch: %s joined a %s round", op, r.op)
	}
	r.value = combine(r.op, r.value, value)
	r.count += count
	r.arrived++
	if r.arrived == h.size {
		h.cur = nil
		close(r.done)
	}
	h.mu.Unlock()

	select {
	case <-r.done:
		return r, r.err
	case <-ctx.Done():
		// The group is now in an undefined state: some members may
		// have completed the round, others not. This is never retried.
		return nil, fatalf("collective %s interrupted: %v", op, ctx.Err())
	}
}

func identity(op Op) float64 {
	switch op {
	case Max:
		return math.Inf(-1)
	case Min:
		return math.Inf(1)
	}
	return 0
}

func combine(op Op, a, b float64) float64 {
	switch op {
	case Sum:
		return a + b
	case Max:
		return math.Max(a, b)
	case Min:
		return math.Min(a, b)
	}
	return 0
}

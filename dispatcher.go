package qbdt

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ParallelFunc receives one index of a parallel loop and the id of the
// worker running it.
type ParallelFunc func(i uint64, cpu int)

/*
Dispatcher fans a loop out over a fixed set of workers and joins before
returning. Workers pull strided chunks of the index range from a shared
counter, so uneven work per index still balances.

Thread-safe: a Dispatcher can be shared by any number of registers.
*/
type Dispatcher struct {
	workers int
	grain   uint64
}

// NewDispatcher creates a dispatcher with the given worker count and chunk
// size. Non-positive values fall back to GOMAXPROCS and 256.
func NewDispatcher(workers int, grain uint64) *Dispatcher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if grain == 0 {
		grain = 256
	}
	return &Dispatcher{
		workers: workers,
		grain:   grain,
	}
}

// Workers is the number of distinct cpu ids a callback can observe.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// ParFor calls fn for every index in [begin, end).
func (d *Dispatcher) ParFor(begin, end uint64, fn ParallelFunc) {
	d.parFor(begin, end, d.grain, fn)
}

func (d *Dispatcher) parFor(begin, end, grain uint64, fn ParallelFunc) {
	if end <= begin {
		return
	}
	count := end - begin

	if d.workers == 1 || count <= grain {
		for i := begin; i < end; i++ {
			fn(i, 0)
		}
		return
	}

	workers := d.workers
	if chunks := (count + grain - 1) / grain; chunks < uint64(workers) {
		workers = int(chunks)
	}

	var next atomic.Uint64
	var g errgroup.Group
	g.SetLimit(workers)

	for cpu := 0; cpu < workers; cpu++ {
		g.Go(func() error {
			for {
				start := next.Add(grain) - grain
				if start >= count {
					return nil
				}
				stop := min(start+grain, count)
				for i := start; i < stop; i++ {
					fn(begin+i, cpu)
				}
			}
		})
	}

	// Workers never fail; Wait only joins them.
	g.Wait()
}

// ParForNodes calls fn once for every node in nodes.
func (d *Dispatcher) ParForNodes(nodes []*Node, fn func(n *Node, cpu int)) {
	if len(nodes) < 2 {
		for _, n := range nodes {
			fn(n, 0)
		}
		return
	}
	d.parFor(0, uint64(len(nodes)), 1, func(i uint64, cpu int) {
		fn(nodes[i], cpu)
	})
}

// ParReduce sums fn over [begin, end) with one accumulator per worker.
func (d *Dispatcher) ParReduce(begin, end uint64, fn func(i uint64) Real) Real {
	partial := make([]Real, d.workers)
	d.ParFor(begin, end, func(i uint64, cpu int) {
		partial[cpu] += fn(i)
	})

	var total Real
	for _, p := range partial {
		total += p
	}
	return total
}

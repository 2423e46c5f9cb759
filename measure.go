package qbdt

import (
	"fmt"
	"math/rand/v2"

	"github.com/theapemachine/qbdt/bitcap"
)

// ParallelFuncBdt receives one sampled permutation and the id of the
// worker that drew it.
type ParallelFuncBdt func(perm bitcap.Int, cpu int)

// siteWeights returns the distinct non-zero nodes at depth together with
// the total squared amplitude of the paths reaching each of them.
func (q *QBdt) siteWeights(depth int) ([]*Node, []Real) {
	if q.root.IsZero() {
		return nil, nil
	}
	level := []*Node{q.root}
	weights := []Real{normC(q.root.Scale)}

	for d := 0; d < depth; d++ {
		index := make(map[*Node]int, 2*len(level))
		next := make([]*Node, 0, 2*len(level))
		nextW := make([]Real, 0, 2*len(level))

		for k, n := range level {
			for _, b := range n.Branches {
				if b == nil || b.IsZero() {
					continue
				}
				w := weights[k] * normC(b.Scale)
				if at, ok := index[b]; ok {
					nextW[at] += w
					continue
				}
				index[b] = len(next)
				next = append(next, b)
				nextW = append(nextW, w)
			}
		}
		level, weights = next, nextW
	}
	return level, weights
}

// probs returns the unnormalized weights of qubit reading 0 and 1.
func (q *QBdt) probs(qubit int) (Real, Real) {
	sites, weights := q.siteWeights(qubit)
	zero := make([]Real, q.dispatcher.Workers())
	one := make([]Real, q.dispatcher.Workers())

	q.dispatcher.ParFor(0, uint64(len(sites)), func(i uint64, cpu int) {
		n := sites[i]
		if n.IsLeaf() {
			return
		}
		zero[cpu] += weights[i] * normC(n.Branches[0].Scale)
		one[cpu] += weights[i] * normC(n.Branches[1].Scale)
	})

	var p0, p1 Real
	for cpu := range zero {
		p0 += zero[cpu]
		p1 += one[cpu]
	}
	return p0, p1
}

// Prob returns the probability that qubit reads 1.
func (q *QBdt) Prob(qubit int) (Real, error) {
	if err := q.checkQubit(qubit); err != nil {
		return 0, err
	}
	if s := q.shards[qubit]; s != nil && !s.IsPhase() {
		q.FlushBuffer(qubit)
	}

	p0, p1 := q.probs(qubit)
	if p0+p1 <= FPNormEpsilon {
		return 0, nil
	}
	return clampProb(p1 / (p0 + p1)), nil
}

func clampProb(p Real) Real {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

/*
ForceM measures qubit. Unless doForce is set the outcome is sampled from
the qubit's marginal probability; a forced outcome with zero probability
is an error. With doApply the register collapses onto the outcome.
*/
func (q *QBdt) ForceM(qubit int, result, doForce, doApply bool) (bool, error) {
	if err := q.checkQubit(qubit); err != nil {
		return false, err
	}

	if s := q.shards[qubit]; s != nil {
		if !s.IsPhase() {
			q.FlushBuffer(qubit)
		} else if doApply {
			// Diagonal on a collapsed qubit is a global phase.
			q.clearShard(qubit)
		}
	}

	q.metrics.recordMeasurement()
	p0, p1 := q.probs(qubit)

	if !doForce {
		result = q.rng.Float64()*float64(p0+p1) >= float64(p0)
	} else if (result && p1 <= FPNormEpsilon) || (!result && p0 <= FPNormEpsilon) {
		return result, fmt.Errorf("forcing qubit %d to %v: %w", qubit, result, ErrZeroProbability)
	}

	if doApply {
		q.collapse(qubit, result)
	}
	return result, nil
}

// M measures and collapses qubit.
func (q *QBdt) M(qubit int) (bool, error) {
	return q.ForceM(qubit, false, false, true)
}

// collapse drops every amplitude in which qubit disagrees with result and
// renormalizes.
func (q *QBdt) collapse(qubit int, result bool) {
	keep := 0
	if result {
		keep = 1
	}

	sites := q.sitesAt(qubit)
	for _, n := range sites {
		n.putBranch(1-keep, newZeroLeaf())
	}

	q.root.renorm(qubit+1, map[*Node]struct{}{})
	q.root.Scale = unitPhase(q.root.Scale)

	for _, n := range sites {
		n.Prune(1)
	}
	q.root.Prune(qubit)
}

// MAll measures and collapses every qubit.
func (q *QBdt) MAll() bitcap.Int {
	return q.MAllOptionalCollapse(true)
}

/*
MAllOptionalCollapse samples a full permutation in one walk from the root,
taking each branch with its locally normalized probability. When
isCollapsing is set the register is left in the sampled basis state;
otherwise the tree is only read.
*/
func (q *QBdt) MAllOptionalCollapse(isCollapsing bool) bitcap.Int {
	q.FlushNonPhaseBuffers()
	q.metrics.recordMeasurement()

	if !isCollapsing {
		return q.sample(q.rng)
	}
	// Only diagonal gates remain, and on a basis state they are a global phase.
	q.DumpBuffers()

	perm := bitcap.Zero
	n := q.root
	for j := 0; j < q.qubitCount; j++ {
		bit := pickBranch(n, q.rng)
		if bit == 1 {
			perm = perm.SetBit(j, 1)
		}
		n.putBranch(1-bit, newZeroLeaf())
		kept := n.own(bit)
		kept.Scale = unitPhase(kept.Scale)
		n = kept
	}
	q.root.Scale = unitPhase(q.root.Scale)
	return perm
}

// sample draws one permutation without touching the tree.
func (q *QBdt) sample(rng *rand.Rand) bitcap.Int {
	perm := bitcap.Zero
	n := q.root
	for j := 0; j < q.qubitCount; j++ {
		bit := pickBranch(n, rng)
		if bit == 1 {
			perm = perm.SetBit(j, 1)
		}
		n = n.Branches[bit]
	}
	return perm
}

func pickBranch(n *Node, rng *rand.Rand) int {
	if n.IsLeaf() {
		return 0
	}
	p0, p1 := normC(n.Branches[0].Scale), normC(n.Branches[1].Scale)
	if rng.Float64()*float64(p0+p1) >= float64(p0) {
		return 1
	}
	return 0
}

// SampleClone samples the register without collapsing it and packs the
// bits named by qPowers into the result, bit i for qPowers[i].
func (q *QBdt) SampleClone(qPowers []bitcap.Int) bitcap.Int {
	return packBits(q.MAllOptionalCollapse(false), qPowers)
}

func packBits(perm bitcap.Int, qPowers []bitcap.Int) bitcap.Int {
	out := bitcap.Zero
	for i, p := range qPowers {
		if !perm.And(p).IsZero() {
			out = out.SetBit(i, 1)
		}
	}
	return out
}

// ForEachSample draws shots independent samples in parallel and hands each
// to fn.
func (q *QBdt) ForEachSample(shots int, fn ParallelFuncBdt) error {
	if shots < 0 {
		return fmt.Errorf("%d shots: %w", shots, ErrInvalidRange)
	}
	q.FlushNonPhaseBuffers()

	rngs := make([]*rand.Rand, q.dispatcher.Workers())
	for i := range rngs {
		rngs[i] = rand.New(rand.NewPCG(q.rng.Uint64(), q.rng.Uint64()))
	}

	q.dispatcher.ParFor(0, uint64(shots), func(_ uint64, cpu int) {
		fn(q.sample(rngs[cpu]), cpu)
	})
	return nil
}

// MultiShotMeasureMask samples shots times without collapsing and counts
// the packed outcomes over qPowers.
func (q *QBdt) MultiShotMeasureMask(qPowers []bitcap.Int, shots int) (map[uint64]int, error) {
	partial := make([]map[uint64]int, q.dispatcher.Workers())
	for i := range partial {
		partial[i] = make(map[uint64]int)
	}

	if err := q.ForEachSample(shots, func(perm bitcap.Int, cpu int) {
		partial[cpu][packBits(perm, qPowers).Uint64()]++
	}); err != nil {
		return nil, err
	}

	counts := make(map[uint64]int)
	for _, p := range partial {
		for k, v := range p {
			counts[k] += v
		}
	}
	q.metrics.recordMeasurement()
	return counts, nil
}

package qbdt

import (
	"math"
	"math/rand/v2"

	"github.com/theapemachine/qbdt/bitcap"
)

const tolerance = 1e-6

func testOptions() []Option {
	return []Option{WithSeed(7), WithWorkers(4)}
}

func mustQBdt(n int, perm uint64, opts ...Option) *QBdt {
	q, err := NewQBdt(n, bitcap.FromUint64(perm), append(testOptions(), opts...)...)
	if err != nil {
		panic(err)
	}
	return q
}

func mustEngine(n int, perm uint64, opts ...Option) *QEngineCPU {
	e, err := NewQEngineCPU(n, bitcap.FromUint64(perm), append(testOptions(), opts...)...)
	if err != nil {
		panic(err)
	}
	return e
}

func stateOf(q QInterface) []Amplitude {
	out := make([]Amplitude, 1<<uint(q.QubitCount()))
	if err := q.GetQuantumState(out); err != nil {
		panic(err)
	}
	return out
}

func distance(a, b Amplitude) float64 {
	return float64(absC(a - b))
}

// maxDistance is the largest elementwise difference of two vectors.
func maxDistance(a, b []Amplitude) float64 {
	worst := 0.0
	for i := range a {
		worst = math.Max(worst, distance(a[i], b[i]))
	}
	return worst
}

func totalProb(v []Amplitude) float64 {
	var sum float64
	for _, a := range v {
		sum += float64(normC(a))
	}
	return sum
}

// randomState draws a normalized vector over n qubits.
func randomState(rng *rand.Rand, n int) []Amplitude {
	v := make([]Amplitude, 1<<uint(n))
	var sum float64
	for i := range v {
		re, im := rng.NormFloat64(), rng.NormFloat64()
		v[i] = Amplitude(complex(re, im))
		sum += re*re + im*im
	}
	scale := cmplxR(Real(1 / math.Sqrt(sum)))
	for i := range v {
		v[i] *= scale
	}
	return v
}

// localNormError walks the tree and returns the largest deviation of
// |s0|²+|s1|² from one over every non-zero inner node.
func localNormError(n *Node) float64 {
	seen := map[*Node]struct{}{}
	worst := 0.0

	var walk func(n *Node)
	walk = func(n *Node) {
		if n == nil || n.IsLeaf() || n.IsZero() {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		sum := float64(normC(n.Branches[0].Scale) + normC(n.Branches[1].Scale))
		worst = math.Max(worst, math.Abs(sum-1))
		walk(n.Branches[0])
		walk(n.Branches[1])
	}
	walk(n)
	return worst
}

/*
circuitStep applies one randomly chosen gate to every register in regs, so
a tree and a flat engine can be driven through the same circuit.
*/
func circuitStep(rng *rand.Rand, n int, regs ...QInterface) error {
	a := rng.IntN(n)
	b := (a + 1 + rng.IntN(n-1)) % n
	theta := Real(rng.Float64() * 2 * math.Pi)
	kind := rng.IntN(8)

	for _, r := range regs {
		var err error
		switch kind {
		case 0:
			err = r.Mtrx(Hadamard(), a)
		case 1:
			err = r.Mtrx(RotateY(theta), a)
		case 2:
			err = r.Mtrx(RotateZ(theta), a)
		case 3:
			err = r.MCMtrx([]int{a}, PauliX(), b)
		case 4:
			err = r.MACMtrx([]int{a}, RotateX(theta), b)
		case 5:
			err = r.MCMtrx([]int{a}, PhaseGate(theta), b)
		case 6:
			err = r.Swap(a, b)
		default:
			err = r.Mtrx(PauliY(), a)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

package qbdt

import (
	"fmt"
	"math/bits"

	"github.com/theapemachine/qbdt/bitcap"
)

// maxFlatQubits bounds the width of any flat form.
const maxFlatQubits = 62

func (q *QBdt) flatSize() (uint64, error) {
	if q.qubitCount > maxFlatQubits {
		return 0, fmt.Errorf("flat form of %d qubits: %w", q.qubitCount, ErrTooManyQubits)
	}
	return uint64(1) << uint(q.qubitCount), nil
}

// amplitudeAt walks the path of perm, reading bit j at depth j.
func (q *QBdt) amplitudeAt(bit func(int) uint) Amplitude {
	amp := q.root.Scale
	n := q.root
	for j := 0; j < q.qubitCount; j++ {
		if isNorm0(amp) {
			return 0
		}
		n = n.Branches[bit(j)]
		if n == nil {
			return 0
		}
		amp *= n.Scale
	}
	return amp
}

/*
GetTraversal commits every pending gate and delivers the amplitude of each
permutation in [0, 2^n) to fn. Indices are split across workers; fn is
called concurrently but never twice for one index.
*/
func (q *QBdt) GetTraversal(fn func(i uint64, amp Amplitude)) error {
	size, err := q.flatSize()
	if err != nil {
		return err
	}

	q.FlushAll()
	q.metrics.recordTraversal("get")

	q.dispatcher.ParFor(0, size, func(i uint64, _ int) {
		fn(i, q.amplitudeAt(func(j int) uint { return uint(i>>uint(j)) & 1 }))
	})
	return nil
}

/*
SetTraversal discards the tree and pending gates, builds a fully expanded
tree and lets fn fill in the leaf of every permutation. The result is then
compacted back into canonical shared form. fn must set leaf.Scale to the
amplitude of index i and may be called concurrently.
*/
func (q *QBdt) SetTraversal(fn func(i uint64, leaf *Node)) error {
	size, err := q.flatSize()
	if err != nil {
		return err
	}

	q.DumpBuffers()
	q.metrics.recordTraversal("set")

	root := newNode(1)
	q.buildFull(root)

	q.dispatcher.ParFor(0, size, func(i uint64, _ int) {
		leaf := root
		for j := 0; j < q.qubitCount; j++ {
			leaf = leaf.Branches[(i>>uint(j))&1]
		}
		fn(i, leaf)
	})

	root.pop(q.qubitCount)
	root.Prune(q.qubitCount)
	q.root = root
	return nil
}

// buildFull expands root to the register's depth. The top levels are built
// in place; each subtree below them is built by its own worker arena.
func (q *QBdt) buildFull(root *Node) {
	fan := min(q.qubitCount, bits.Len(uint(q.dispatcher.Workers()))+1)

	var top nodeArena
	top.expand(root, fan)

	frontier := []*Node{root}
	for d := 0; d < fan; d++ {
		next := make([]*Node, 0, 2*len(frontier))
		for _, n := range frontier {
			next = append(next, n.Branches[0], n.Branches[1])
		}
		frontier = next
	}

	arenas := make([]nodeArena, q.dispatcher.Workers())
	q.dispatcher.ParForNodes(frontier, func(n *Node, cpu int) {
		arenas[cpu].expand(n, q.qubitCount-fan)
	})
}

// GetQuantumState copies the full amplitude vector into out.
func (q *QBdt) GetQuantumState(out []Amplitude) error {
	size, err := q.flatSize()
	if err != nil {
		return err
	}
	if uint64(len(out)) != size {
		return fmt.Errorf("reading %d amplitudes into %d: %w", size, len(out), ErrStateLength)
	}
	return q.GetTraversal(func(i uint64, amp Amplitude) {
		out[i] = amp
	})
}

// SetQuantumState replaces the register with the amplitudes in in.
func (q *QBdt) SetQuantumState(in []Amplitude) error {
	size, err := q.flatSize()
	if err != nil {
		return err
	}
	if uint64(len(in)) != size {
		return fmt.Errorf("writing %d amplitudes into %d: %w", len(in), size, ErrStateLength)
	}
	return q.SetTraversal(func(i uint64, leaf *Node) {
		leaf.Scale = in[i]
	})
}

// GetProbs copies the probability of every permutation into out.
func (q *QBdt) GetProbs(out []Real) error {
	size, err := q.flatSize()
	if err != nil {
		return err
	}
	if uint64(len(out)) != size {
		return fmt.Errorf("reading %d probabilities into %d: %w", size, len(out), ErrStateLength)
	}
	return q.GetTraversal(func(i uint64, amp Amplitude) {
		out[i] = normC(amp)
	})
}

// GetEngine copies the register into a new flat engine.
func (q *QBdt) GetEngine() (*QEngineCPU, error) {
	if _, err := q.flatSize(); err != nil {
		return nil, err
	}
	e := newQEngineCPU(q.qubitCount, q.config)
	if err := q.GetTraversal(func(i uint64, amp Amplitude) {
		e.state.Write(i, amp)
	}); err != nil {
		return nil, err
	}
	return e, nil
}

// SetEngine replaces the register with the state of e.
func (q *QBdt) SetEngine(e *QEngineCPU) error {
	if e.QubitCount() != q.qubitCount {
		return fmt.Errorf("engine of %d qubits into %d: %w", e.QubitCount(), q.qubitCount, ErrQubitCountMismatch)
	}
	return q.SetTraversal(func(i uint64, leaf *Node) {
		leaf.Scale = e.state.Read(i)
	})
}

/*
ExecuteAsStateVector runs op against a flat copy of the register and loads
the result back. It is the path for every operation the tree has no native
form for.
*/
func (q *QBdt) ExecuteAsStateVector(op func(e *QEngineCPU) error) error {
	e, err := q.GetEngine()
	if err != nil {
		return err
	}
	q.metrics.recordDelegation()
	q.logger.Debug("delegating to flat engine", "qubits", q.qubitCount)

	if err := op(e); err != nil {
		return err
	}
	return q.SetEngine(e)
}

// GetAmplitude returns the amplitude of perm.
func (q *QBdt) GetAmplitude(perm bitcap.Int) (Amplitude, error) {
	if perm.BitLen() > q.qubitCount {
		return 0, fmt.Errorf("permutation %s of %d qubits: %w", perm, q.qubitCount, ErrInvalidRange)
	}
	q.FlushAll()
	return q.amplitudeAt(perm.Bit), nil
}

// SetAmplitude overwrites one amplitude without renormalizing.
func (q *QBdt) SetAmplitude(perm bitcap.Int, amp Amplitude) error {
	if perm.BitLen() > q.qubitCount {
		return fmt.Errorf("permutation %s of %d qubits: %w", perm, q.qubitCount, ErrInvalidRange)
	}
	return q.ExecuteAsStateVector(func(e *QEngineCPU) error {
		return e.SetAmplitude(perm, amp)
	})
}

// ProbAll returns the probability of perm.
func (q *QBdt) ProbAll(perm bitcap.Int) (Real, error) {
	if perm.BitLen() > q.qubitCount {
		return 0, fmt.Errorf("permutation %s of %d qubits: %w", perm, q.qubitCount, ErrInvalidRange)
	}
	q.FlushNonPhaseBuffers()
	return normC(q.amplitudeAt(perm.Bit)), nil
}

// SumSqrDiff is 1 - |⟨q|other⟩|², zero for states equal up to global phase.
func (q *QBdt) SumSqrDiff(other QInterface) (Real, error) {
	if other.QubitCount() != q.qubitCount {
		return 0, fmt.Errorf("comparing %d and %d qubits: %w", q.qubitCount, other.QubitCount(), ErrQubitCountMismatch)
	}
	size, err := q.flatSize()
	if err != nil {
		return 0, err
	}
	a := make([]Amplitude, size)
	b := make([]Amplitude, size)
	if err := q.GetQuantumState(a); err != nil {
		return 0, err
	}
	if err := other.GetQuantumState(b); err != nil {
		return 0, err
	}
	return sumSqrDiff(a, b), nil
}

func sumSqrDiff(a, b []Amplitude) Real {
	var inner Amplitude
	for i := range a {
		re, im := real(a[i]), imag(a[i])
		inner += Amplitude(complex(re, -im)) * b[i]
	}
	d := 1 - normC(inner)
	if d < 0 {
		return 0
	}
	return d
}

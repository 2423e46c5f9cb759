package qbdt

import (
	"fmt"
	"math"
	"slices"

	"github.com/bits-and-blooms/bitset"
)

// controlledGates is the part of a register the exchange gates are built
// from.
type controlledGates interface {
	QubitCount() int
	MCMtrx(controls []int, m Matrix2, target int) error
}

// ISwapMatrix is the exchange block of ISwap: |01⟩ and |10⟩ trade places
// picking up a factor of i.
func ISwapMatrix() Matrix2 {
	return Matrix2{0, 1i, 1i, 0}
}

func IISwapMatrix() Matrix2 {
	return Matrix2{0, -1i, -1i, 0}
}

// SqrtSwapMatrix is the exchange block of the square root of Swap.
func SqrtSwapMatrix() Matrix2 {
	a, b := Amplitude(complex(0.5, 0.5)), Amplitude(complex(0.5, -0.5))
	return Matrix2{a, b, b, a}
}

func ISqrtSwapMatrix() Matrix2 {
	a, b := Amplitude(complex(0.5, -0.5)), Amplitude(complex(0.5, 0.5))
	return Matrix2{a, b, b, a}
}

// checkExchange validates the qubits of a (controlled) two-qubit exchange.
// q1 may equal q2; no other qubit may repeat.
func checkExchange(width int, controls []int, q1, q2 int) error {
	seen := bitset.New(uint(width))
	for i, qb := range append([]int{q1, q2}, controls...) {
		if qb < 0 || qb >= width {
			return fmt.Errorf("qubit %d of %d: %w", qb, width, ErrInvalidQubit)
		}
		if i == 1 && qb == q1 {
			continue
		}
		if seen.Test(uint(qb)) {
			return fmt.Errorf("qubit %d: %w", qb, ErrDuplicateQubit)
		}
		seen.Set(uint(qb))
	}
	return nil
}

/*
exchange applies the symmetric block m to the |01⟩, |10⟩ pair of q1 and q2
when every control is set. The pair is folded onto q2 by a CNOT from q2 to
q1, rotated by m under q1 and the controls, then unfolded. Outside the
controls the two CNOTs cancel. The lower qubit always takes the CNOT
target so the tree sees the same gates whatever order the caller used.
*/
func exchange(g controlledGates, controls []int, m Matrix2, q1, q2 int) error {
	if err := checkExchange(g.QubitCount(), controls, q1, q2); err != nil {
		return err
	}
	if q1 == q2 {
		return nil
	}
	if q1 > q2 {
		q1, q2 = q2, q1
	}

	if err := g.MCMtrx([]int{q2}, PauliX(), q1); err != nil {
		return err
	}
	if err := g.MCMtrx(append(slices.Clone(controls), q1), m, q2); err != nil {
		return err
	}
	return g.MCMtrx([]int{q2}, PauliX(), q1)
}

func (q *QBdt) ISwap(q1, q2 int) error     { return exchange(q, nil, ISwapMatrix(), q1, q2) }
func (q *QBdt) IISwap(q1, q2 int) error    { return exchange(q, nil, IISwapMatrix(), q1, q2) }
func (q *QBdt) SqrtSwap(q1, q2 int) error  { return exchange(q, nil, SqrtSwapMatrix(), q1, q2) }
func (q *QBdt) ISqrtSwap(q1, q2 int) error { return exchange(q, nil, ISqrtSwapMatrix(), q1, q2) }

// CSwap exchanges q1 and q2 when every control is set.
func (q *QBdt) CSwap(controls []int, q1, q2 int) error {
	return exchange(q, controls, PauliX(), q1, q2)
}

func (q *QBdt) CSqrtSwap(controls []int, q1, q2 int) error {
	return exchange(q, controls, SqrtSwapMatrix(), q1, q2)
}

func (q *QBdt) CISqrtSwap(controls []int, q1, q2 int) error {
	return exchange(q, controls, ISqrtSwapMatrix(), q1, q2)
}

// FSim runs on the flat engine.
func (q *QBdt) FSim(theta, phi Real, q1, q2 int) error {
	if err := checkExchange(q.qubitCount, nil, q1, q2); err != nil {
		return err
	}
	if q1 == q2 {
		return nil
	}
	if q1 > q2 {
		q1, q2 = q2, q1
	}
	return q.ExecuteAsStateVector(func(e *QEngineCPU) error {
		return e.FSim(theta, phi, q1, q2)
	})
}

func (e *QEngineCPU) ISwap(q1, q2 int) error     { return exchange(e, nil, ISwapMatrix(), q1, q2) }
func (e *QEngineCPU) IISwap(q1, q2 int) error    { return exchange(e, nil, IISwapMatrix(), q1, q2) }
func (e *QEngineCPU) SqrtSwap(q1, q2 int) error  { return exchange(e, nil, SqrtSwapMatrix(), q1, q2) }
func (e *QEngineCPU) ISqrtSwap(q1, q2 int) error { return exchange(e, nil, ISqrtSwapMatrix(), q1, q2) }

func (e *QEngineCPU) CSwap(controls []int, q1, q2 int) error {
	return exchange(e, controls, PauliX(), q1, q2)
}

func (e *QEngineCPU) CSqrtSwap(controls []int, q1, q2 int) error {
	return exchange(e, controls, SqrtSwapMatrix(), q1, q2)
}

func (e *QEngineCPU) CISqrtSwap(controls []int, q1, q2 int) error {
	return exchange(e, controls, ISqrtSwapMatrix(), q1, q2)
}

/*
FSim applies the fermionic simulation gate: cos θ on the diagonal and
-i sin θ off it in the |01⟩, |10⟩ block, and e^{iφ} on |11⟩.
*/
func (e *QEngineCPU) FSim(theta, phi Real, q1, q2 int) error {
	if err := checkExchange(e.qubitCount, nil, q1, q2); err != nil {
		return err
	}
	if q1 == q2 {
		return nil
	}

	c := cmplxR(Real(math.Cos(float64(theta))))
	s := Amplitude(complex(0, -math.Sin(float64(theta))))
	phase := polar(1, phi)

	e.metrics.recordGate(false)

	b1, b2 := uint64(1)<<uint(q1), uint64(1)<<uint(q2)
	e.dispatcher.ParFor(0, e.size(), func(i uint64, _ int) {
		if i&(b1|b2) != 0 {
			return
		}
		i01, i10, i11 := i|b1, i|b2, i|b1|b2
		a01, a10 := e.state.Read(i01), e.state.Read(i10)
		if a01 != 0 || a10 != 0 {
			e.state.Write(i01, c*a01+s*a10)
			e.state.Write(i10, s*a01+c*a10)
		}
		if a11 := e.state.Read(i11); a11 != 0 {
			e.state.Write(i11, a11*phase)
		}
	})
	return nil
}

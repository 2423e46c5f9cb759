package qbdt

import (
	"fmt"
	"math/bits"
	"math/rand/v2"

	"github.com/theapemachine/errnie"

	"github.com/theapemachine/qbdt/bitcap"
)

/*
QEngineCPU holds the full amplitude vector of a register, densely or
sparsely. It implements everything the tree delegates to it and can serve
as a register on its own.

Not safe for concurrent use.
*/
type QEngineCPU struct {
	qubitCount int
	state      StateVector

	config     *Config
	dispatcher *Dispatcher
	metrics    *Metrics
	rng        *rand.Rand
}

// NewQEngineCPU creates a flat register in the basis state perm.
func NewQEngineCPU(qubitCount int, perm bitcap.Int, opts ...Option) (*QEngineCPU, error) {
	if qubitCount < 0 || qubitCount > maxFlatQubits {
		return nil, fmt.Errorf("flat engine of %d qubits: %w", qubitCount, ErrTooManyQubits)
	}
	if perm.BitLen() > qubitCount {
		return nil, fmt.Errorf("initial permutation %s for %d qubits: %w", perm, qubitCount, ErrInvalidRange)
	}

	e := newQEngineCPU(qubitCount, resolve(opts))
	e.state.Write(perm.Uint64(), 1)

	errnie.Info("NewQEngineCPU - qubits %v, perm %v, sparse %v", qubitCount, perm, e.config.SparseEngine)
	return e, nil
}

func newQEngineCPU(qubitCount int, cfg *Config) *QEngineCPU {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &QEngineCPU{
		qubitCount: qubitCount,
		state:      newStateVector(uint64(1)<<uint(qubitCount), cfg.SparseEngine),
		config:     cfg,
		dispatcher: cfg.Dispatcher,
		metrics:    cfg.Metrics,
		rng:        rand.New(rand.NewPCG(seed, ^seed)),
	}
}

func (e *QEngineCPU) QubitCount() int {
	return e.qubitCount
}

// State exposes the backing storage.
func (e *QEngineCPU) State() StateVector {
	return e.state
}

func (e *QEngineCPU) size() uint64 {
	return uint64(1) << uint(e.qubitCount)
}

func (e *QEngineCPU) checkQubit(qubit int) error {
	if qubit < 0 || qubit >= e.qubitCount {
		return fmt.Errorf("qubit %d of %d: %w", qubit, e.qubitCount, ErrInvalidQubit)
	}
	return nil
}

func (e *QEngineCPU) checkPerm(perm bitcap.Int) (uint64, error) {
	if perm.BitLen() > e.qubitCount {
		return 0, fmt.Errorf("permutation %s of %d qubits: %w", perm, e.qubitCount, ErrInvalidRange)
	}
	return perm.Uint64(), nil
}

func (e *QEngineCPU) Mtrx(m Matrix2, target int) error {
	return e.UCMtrx(nil, m, target, bitcap.Zero)
}

func (e *QEngineCPU) MCMtrx(controls []int, m Matrix2, target int) error {
	return e.UCMtrx(controls, m, target, bitcap.Pow2(len(controls)).Sub(bitcap.One))
}

func (e *QEngineCPU) MACMtrx(controls []int, m Matrix2, target int) error {
	return e.UCMtrx(controls, m, target, bitcap.Zero)
}

// UCMtrx applies m to target where control i reads bit i of perm.
func (e *QEngineCPU) UCMtrx(controls []int, m Matrix2, target int, perm bitcap.Int) error {
	if err := e.checkQubit(target); err != nil {
		return err
	}

	var ctrlMask, ctrlPerm uint64
	for i, c := range controls {
		if err := e.checkQubit(c); err != nil {
			return err
		}
		if c == target || ctrlMask&(1<<uint(c)) != 0 {
			return fmt.Errorf("control %d: %w", c, ErrDuplicateQubit)
		}
		ctrlMask |= 1 << uint(c)
		if perm.Bit(i) == 1 {
			ctrlPerm |= 1 << uint(c)
		}
	}

	e.metrics.recordGate(false)

	tbit := uint64(1) << uint(target)
	low := tbit - 1
	e.dispatcher.ParFor(0, e.size()>>1, func(k uint64, _ int) {
		i0 := (k&^low)<<1 | k&low
		if i0&ctrlMask != ctrlPerm {
			return
		}
		i1 := i0 | tbit
		a0, a1 := e.state.Read(i0), e.state.Read(i1)
		if a0 == 0 && a1 == 0 {
			return
		}
		e.state.Write(i0, m[0]*a0+m[1]*a1)
		e.state.Write(i1, m[2]*a0+m[3]*a1)
	})
	return nil
}

func (e *QEngineCPU) Swap(q1, q2 int) error {
	if err := e.checkQubit(q1); err != nil {
		return err
	}
	if err := e.checkQubit(q2); err != nil {
		return err
	}
	if q1 == q2 {
		return nil
	}

	b1, b2 := uint64(1)<<uint(q1), uint64(1)<<uint(q2)
	e.dispatcher.ParFor(0, e.size(), func(i uint64, _ int) {
		// Visit each swapped pair once, from its 01 side.
		if i&b1 == 0 || i&b2 != 0 {
			return
		}
		j := i&^b1 | b2
		a, b := e.state.Read(i), e.state.Read(j)
		e.state.Write(i, b)
		e.state.Write(j, a)
	})
	return nil
}

func (e *QEngineCPU) Prob(qubit int) (Real, error) {
	if err := e.checkQubit(qubit); err != nil {
		return 0, err
	}
	bit := uint64(1) << uint(qubit)
	return clampProb(e.probMask(func(i uint64) bool { return i&bit != 0 })), nil
}

func (e *QEngineCPU) probMask(match func(i uint64) bool) Real {
	partial := make([]Real, e.dispatcher.Workers())
	var total Real
	if e.state.IsSparse() {
		e.state.NonZero(func(i uint64, amp Amplitude) {
			if match(i) {
				total += normC(amp)
			}
		})
		return total
	}
	e.dispatcher.ParFor(0, e.size(), func(i uint64, cpu int) {
		if match(i) {
			partial[cpu] += normC(e.state.Read(i))
		}
	})
	for _, p := range partial {
		total += p
	}
	return total
}

func (e *QEngineCPU) ProbAll(perm bitcap.Int) (Real, error) {
	i, err := e.checkPerm(perm)
	if err != nil {
		return 0, err
	}
	return normC(e.state.Read(i)), nil
}

func (e *QEngineCPU) ForceM(qubit int, result, doForce, doApply bool) (bool, error) {
	p1, err := e.Prob(qubit)
	if err != nil {
		return false, err
	}
	e.metrics.recordMeasurement()

	bit := uint64(1) << uint(qubit)
	return e.forceMatch(func(i uint64) bool { return i&bit != 0 }, p1, result, doForce, doApply)
}

// forceMatch selects the outcome of a yes/no measurement whose yes set is
// described by match, and collapses onto it when doApply is set.
func (e *QEngineCPU) forceMatch(match func(i uint64) bool, pYes Real, result, doForce, doApply bool) (bool, error) {
	if !doForce {
		result = e.rng.Float64() < float64(pYes)
	} else if (result && pYes <= FPNormEpsilon) || (!result && 1-pYes <= FPNormEpsilon) {
		return result, fmt.Errorf("forcing outcome %v: %w", result, ErrZeroProbability)
	}
	if !doApply {
		return result, nil
	}

	keep := pYes
	if !result {
		keep = 1 - pYes
	}
	scale := cmplxR(1 / sqrtR(keep))
	e.dispatcher.ParFor(0, e.size(), func(i uint64, _ int) {
		amp := e.state.Read(i)
		if amp == 0 {
			return
		}
		if match(i) != result {
			e.state.Write(i, 0)
			return
		}
		e.state.Write(i, amp*scale)
	})
	return result, nil
}

func (e *QEngineCPU) M(qubit int) (bool, error) {
	return e.ForceM(qubit, false, false, true)
}

// MAll draws a permutation by cumulative probability and collapses onto it.
func (e *QEngineCPU) MAll() bitcap.Int {
	e.metrics.recordMeasurement()

	r := Real(e.rng.Float64())
	cumulative := Real(0)
	measured, last := uint64(0), uint64(0)
	found := false
	e.state.NonZero(func(i uint64, amp Amplitude) {
		if found {
			return
		}
		last = i
		cumulative += normC(amp)
		if r <= cumulative {
			measured = i
			found = true
		}
	})
	if !found {
		measured = last
	}

	e.state.Clear()
	e.state.Write(measured, 1)
	return bitcap.FromUint64(measured)
}

func (e *QEngineCPU) GetAmplitude(perm bitcap.Int) (Amplitude, error) {
	i, err := e.checkPerm(perm)
	if err != nil {
		return 0, err
	}
	return e.state.Read(i), nil
}

func (e *QEngineCPU) SetAmplitude(perm bitcap.Int, amp Amplitude) error {
	i, err := e.checkPerm(perm)
	if err != nil {
		return err
	}
	e.state.Write(i, amp)
	return nil
}

func (e *QEngineCPU) GetQuantumState(out []Amplitude) error {
	if uint64(len(out)) != e.size() {
		return fmt.Errorf("reading %d amplitudes into %d: %w", e.size(), len(out), ErrStateLength)
	}
	if e.state.IsSparse() {
		clear(out)
		e.state.NonZero(func(i uint64, amp Amplitude) { out[i] = amp })
		return nil
	}
	e.dispatcher.ParFor(0, e.size(), func(i uint64, _ int) {
		out[i] = e.state.Read(i)
	})
	return nil
}

func (e *QEngineCPU) SetQuantumState(in []Amplitude) error {
	if uint64(len(in)) != e.size() {
		return fmt.Errorf("writing %d amplitudes into %d: %w", len(in), e.size(), ErrStateLength)
	}
	e.state.Clear()
	e.dispatcher.ParFor(0, e.size(), func(i uint64, _ int) {
		if in[i] != 0 {
			e.state.Write(i, in[i])
		}
	})
	return nil
}

func (e *QEngineCPU) GetProbs(out []Real) error {
	if uint64(len(out)) != e.size() {
		return fmt.Errorf("reading %d probabilities into %d: %w", e.size(), len(out), ErrStateLength)
	}
	clear(out)
	e.state.NonZero(func(i uint64, amp Amplitude) { out[i] = normC(amp) })
	return nil
}

func (e *QEngineCPU) SetPermutation(perm bitcap.Int) error {
	i, err := e.checkPerm(perm)
	if err != nil {
		return err
	}
	e.state.Clear()
	e.state.Write(i, 1)
	return nil
}

func oddParity(i, mask uint64) bool {
	return bits.OnesCount64(i&mask)&1 == 1
}

// ProbParity returns the probability that the qubits in mask have odd
// parity.
func (e *QEngineCPU) ProbParity(mask bitcap.Int) (Real, error) {
	m, err := e.checkPerm(mask)
	if err != nil {
		return 0, err
	}
	if m == 0 {
		return 0, nil
	}
	return clampProb(e.probMask(func(i uint64) bool { return oddParity(i, m) })), nil
}

// ForceMParity measures the parity of the qubits in mask.
func (e *QEngineCPU) ForceMParity(mask bitcap.Int, result, doForce bool) (bool, error) {
	p, err := e.ProbParity(mask)
	if err != nil {
		return false, err
	}
	m := mask.Uint64()
	if m == 0 {
		return false, nil
	}
	e.metrics.recordMeasurement()
	return e.forceMatch(func(i uint64) bool { return oddParity(i, m) }, p, result, doForce, true)
}

// UniformParityRZ applies e^{iθ} to odd-parity permutations of mask and
// e^{-iθ} to even ones.
func (e *QEngineCPU) UniformParityRZ(mask bitcap.Int, angle Real) error {
	return e.CUniformParityRZ(nil, mask, angle)
}

// CUniformParityRZ is UniformParityRZ restricted to the permutations in
// which every control is set.
func (e *QEngineCPU) CUniformParityRZ(controls []int, mask bitcap.Int, angle Real) error {
	m, err := e.checkPerm(mask)
	if err != nil {
		return err
	}
	var ctrlMask uint64
	for _, c := range controls {
		if err := e.checkQubit(c); err != nil {
			return err
		}
		ctrlMask |= 1 << uint(c)
	}

	odd, even := polar(1, angle), polar(1, -angle)
	e.dispatcher.ParFor(0, e.size(), func(i uint64, _ int) {
		if i&ctrlMask != ctrlMask {
			return
		}
		amp := e.state.Read(i)
		if amp == 0 {
			return
		}
		if oddParity(i, m) {
			e.state.Write(i, amp*odd)
			return
		}
		e.state.Write(i, amp*even)
	})
	return nil
}

// Normalize rescales to unit total probability.
func (e *QEngineCPU) Normalize() {
	total := e.probMask(func(uint64) bool { return true })
	if total <= FPNormEpsilon {
		return
	}
	scale := cmplxR(1 / sqrtR(total))
	e.dispatcher.ParFor(0, e.size(), func(i uint64, _ int) {
		if amp := e.state.Read(i); amp != 0 {
			e.state.Write(i, amp*scale)
		}
	})
}

func (e *QEngineCPU) Clone() *QEngineCPU {
	c := newQEngineCPU(e.qubitCount, e.config)
	e.state.NonZero(func(i uint64, amp Amplitude) { c.state.Write(i, amp) })
	c.rng = rand.New(rand.NewPCG(e.rng.Uint64(), e.rng.Uint64()))
	return c
}

// SumSqrDiff is 1 - |⟨e|other⟩|².
func (e *QEngineCPU) SumSqrDiff(other QInterface) (Real, error) {
	if other.QubitCount() != e.qubitCount {
		return 0, fmt.Errorf("comparing %d and %d qubits: %w", e.qubitCount, other.QubitCount(), ErrQubitCountMismatch)
	}
	a := make([]Amplitude, e.size())
	b := make([]Amplitude, e.size())
	if err := e.GetQuantumState(a); err != nil {
		return 0, err
	}
	if err := other.GetQuantumState(b); err != nil {
		return 0, err
	}
	return sumSqrDiff(a, b), nil
}

package qbdt

import (
	"fmt"

	"github.com/theapemachine/qbdt/bitcap"
)

func (q *QBdt) checkMask(mask bitcap.Int) error {
	if mask.BitLen() > q.qubitCount {
		return fmt.Errorf("mask %s of %d qubits: %w", mask, q.qubitCount, ErrInvalidRange)
	}
	return nil
}

// ProbParity returns the probability that the qubits in mask have odd
// parity. Single-qubit masks are answered by the tree.
func (q *QBdt) ProbParity(mask bitcap.Int) (Real, error) {
	if err := q.checkMask(mask); err != nil {
		return 0, err
	}
	switch mask.OnesCount() {
	case 0:
		return 0, nil
	case 1:
		return q.Prob(mask.BitLen() - 1)
	}

	e, err := q.GetEngine()
	if err != nil {
		return 0, err
	}
	q.metrics.recordDelegation()
	return e.ProbParity(mask)
}

// ForceMParity measures and collapses the parity of the qubits in mask.
func (q *QBdt) ForceMParity(mask bitcap.Int, result, doForce bool) (bool, error) {
	if err := q.checkMask(mask); err != nil {
		return false, err
	}
	switch mask.OnesCount() {
	case 0:
		return false, nil
	case 1:
		return q.ForceM(mask.BitLen()-1, result, doForce, true)
	}

	var out bool
	err := q.ExecuteAsStateVector(func(e *QEngineCPU) error {
		var err error
		out, err = e.ForceMParity(mask, result, doForce)
		return err
	})
	return out, err
}

// UniformParityRZ applies e^{iθ} to odd-parity permutations of mask and
// e^{-iθ} to even ones. On one qubit that is a deferred diagonal gate.
func (q *QBdt) UniformParityRZ(mask bitcap.Int, angle Real) error {
	if err := q.checkMask(mask); err != nil {
		return err
	}
	switch mask.OnesCount() {
	case 0:
		q.root.Scale *= polar(1, -angle)
		return nil
	case 1:
		return q.Mtrx(Matrix2{polar(1, -angle), 0, 0, polar(1, angle)}, mask.BitLen()-1)
	}

	return q.ExecuteAsStateVector(func(e *QEngineCPU) error {
		return e.UniformParityRZ(mask, angle)
	})
}

// CUniformParityRZ is UniformParityRZ under controls. It always runs on
// the flat engine.
func (q *QBdt) CUniformParityRZ(controls []int, mask bitcap.Int, angle Real) error {
	if len(controls) == 0 {
		return q.UniformParityRZ(mask, angle)
	}
	if err := q.checkMask(mask); err != nil {
		return err
	}
	for _, c := range controls {
		if err := q.checkQubit(c); err != nil {
			return err
		}
	}

	return q.ExecuteAsStateVector(func(e *QEngineCPU) error {
		return e.CUniformParityRZ(controls, mask, angle)
	})
}

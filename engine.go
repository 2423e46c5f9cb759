package qbdt

import "github.com/theapemachine/qbdt/bitcap"

/*
QInterface is the capability set shared by the tree register, the flat
engine and the hybrid that switches between them. A facade picks the
implementation per operation instead of layering one on top of the other.
*/
type QInterface interface {
	QubitCount() int

	Mtrx(m Matrix2, target int) error
	MCMtrx(controls []int, m Matrix2, target int) error
	MACMtrx(controls []int, m Matrix2, target int) error
	Swap(q1, q2 int) error
	ISwap(q1, q2 int) error
	IISwap(q1, q2 int) error
	SqrtSwap(q1, q2 int) error
	ISqrtSwap(q1, q2 int) error
	CSwap(controls []int, q1, q2 int) error
	CSqrtSwap(controls []int, q1, q2 int) error
	CISqrtSwap(controls []int, q1, q2 int) error
	FSim(theta, phi Real, q1, q2 int) error

	Prob(qubit int) (Real, error)
	ProbAll(perm bitcap.Int) (Real, error)
	ForceM(qubit int, result, doForce, doApply bool) (bool, error)
	MAll() bitcap.Int

	GetAmplitude(perm bitcap.Int) (Amplitude, error)
	SetAmplitude(perm bitcap.Int, amp Amplitude) error
	GetQuantumState(out []Amplitude) error
	SetQuantumState(in []Amplitude) error
	SetPermutation(perm bitcap.Int) error

	ProbParity(mask bitcap.Int) (Real, error)
	ForceMParity(mask bitcap.Int, result, doForce bool) (bool, error)
	UniformParityRZ(mask bitcap.Int, angle Real) error
	CUniformParityRZ(controls []int, mask bitcap.Int, angle Real) error
}

var (
	_ QInterface = (*QBdt)(nil)
	_ QInterface = (*QEngineCPU)(nil)
	_ QInterface = (*QHybrid)(nil)
)

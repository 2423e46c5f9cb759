package qbdt

import (
	"fmt"
	"math"

	"github.com/charmbracelet/log"
	"github.com/theapemachine/errnie"

	"github.com/theapemachine/qbdt/bitcap"
)

/*
QHybrid is a register that starts on the tree and moves to the flat engine
once the tree stops compressing, measured as the node count against
Config.HybridNodeRatio × 2^n. A flat register that measures into a basis
state moves back to the tree.

Exactly one of bdt and engine is non-nil.
*/
type QHybrid struct {
	qubitCount int
	bdt        *QBdt
	engine     *QEngineCPU

	config  *Config
	metrics *Metrics
	logger  *log.Logger
}

func NewQHybrid(qubitCount int, perm bitcap.Int, opts ...Option) (*QHybrid, error) {
	cfg := resolve(opts)
	bdt, err := NewQBdt(qubitCount, perm, WithConfig(cfg))
	if err != nil {
		return nil, err
	}

	errnie.Info("NewQHybrid - qubits %v, ratio %v", qubitCount, cfg.HybridNodeRatio)
	return &QHybrid{
		qubitCount: qubitCount,
		bdt:        bdt,
		config:     cfg,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}, nil
}

// IsBdt reports whether the register currently lives on the tree.
func (h *QHybrid) IsBdt() bool {
	return h.bdt != nil
}

func (h *QHybrid) active() QInterface {
	if h.bdt != nil {
		return h.bdt
	}
	return h.engine
}

// SwitchMode moves the register to the tree (useBdt) or the flat engine.
func (h *QHybrid) SwitchMode(useBdt bool) error {
	if useBdt == h.IsBdt() {
		return nil
	}

	if useBdt {
		bdt := newQBdt(h.qubitCount, h.config)
		if err := bdt.SetEngine(h.engine); err != nil {
			return err
		}
		h.bdt, h.engine = bdt, nil
	} else {
		e, err := h.bdt.GetEngine()
		if err != nil {
			return err
		}
		h.bdt, h.engine = nil, e
	}

	h.metrics.recordSwitch()
	h.logger.Info("switched backend", "bdt", useBdt, "qubits", h.qubitCount)
	return nil
}

// checkThreshold moves a tree that has grown past the node budget to the
// flat engine.
func (h *QHybrid) checkThreshold() error {
	if h.bdt == nil || h.qubitCount < h.config.HybridMinQubits || h.qubitCount > maxFlatQubits {
		return nil
	}
	h.bdt.FlushAll()
	limit := h.config.HybridNodeRatio * math.Ldexp(1, h.qubitCount)
	if float64(h.bdt.CountBranches()) <= limit {
		return nil
	}
	return h.SwitchMode(false)
}

// checkCollapsed returns a flat register that sits in a basis state to the
// tree.
func (h *QHybrid) checkCollapsed(perm bitcap.Int) error {
	if h.engine == nil {
		return nil
	}
	p, err := h.engine.ProbAll(perm)
	if err != nil {
		return err
	}
	if 1-p > FPNormEpsilon {
		return nil
	}
	bdt := newQBdt(h.qubitCount, h.config)
	bdt.root = newPermutationTree(h.qubitCount, perm.Bit)
	h.bdt, h.engine = bdt, nil
	h.metrics.recordSwitch()
	return nil
}

func (h *QHybrid) QubitCount() int {
	return h.qubitCount
}

func (h *QHybrid) Mtrx(m Matrix2, target int) error {
	return h.active().Mtrx(m, target)
}

func (h *QHybrid) MCMtrx(controls []int, m Matrix2, target int) error {
	if err := h.active().MCMtrx(controls, m, target); err != nil {
		return err
	}
	return h.checkThreshold()
}

func (h *QHybrid) MACMtrx(controls []int, m Matrix2, target int) error {
	if err := h.active().MACMtrx(controls, m, target); err != nil {
		return err
	}
	return h.checkThreshold()
}

func (h *QHybrid) Swap(q1, q2 int) error {
	return h.active().Swap(q1, q2)
}

// entangled runs a multi-qubit gate and rechecks the node budget.
func (h *QHybrid) entangled(err error) error {
	if err != nil {
		return err
	}
	return h.checkThreshold()
}

func (h *QHybrid) ISwap(q1, q2 int) error {
	return h.entangled(h.active().ISwap(q1, q2))
}

func (h *QHybrid) IISwap(q1, q2 int) error {
	return h.entangled(h.active().IISwap(q1, q2))
}

func (h *QHybrid) SqrtSwap(q1, q2 int) error {
	return h.entangled(h.active().SqrtSwap(q1, q2))
}

func (h *QHybrid) ISqrtSwap(q1, q2 int) error {
	return h.entangled(h.active().ISqrtSwap(q1, q2))
}

func (h *QHybrid) CSwap(controls []int, q1, q2 int) error {
	return h.entangled(h.active().CSwap(controls, q1, q2))
}

func (h *QHybrid) CSqrtSwap(controls []int, q1, q2 int) error {
	return h.entangled(h.active().CSqrtSwap(controls, q1, q2))
}

func (h *QHybrid) CISqrtSwap(controls []int, q1, q2 int) error {
	return h.entangled(h.active().CISqrtSwap(controls, q1, q2))
}

func (h *QHybrid) FSim(theta, phi Real, q1, q2 int) error {
	return h.entangled(h.active().FSim(theta, phi, q1, q2))
}

func (h *QHybrid) Prob(qubit int) (Real, error) {
	return h.active().Prob(qubit)
}

func (h *QHybrid) ProbAll(perm bitcap.Int) (Real, error) {
	return h.active().ProbAll(perm)
}

func (h *QHybrid) ForceM(qubit int, result, doForce, doApply bool) (bool, error) {
	return h.active().ForceM(qubit, result, doForce, doApply)
}

func (h *QHybrid) MAll() bitcap.Int {
	perm := h.active().MAll()
	if err := h.checkCollapsed(perm); err != nil {
		h.logger.Error("returning to tree", "err", err)
	}
	return perm
}

func (h *QHybrid) GetAmplitude(perm bitcap.Int) (Amplitude, error) {
	return h.active().GetAmplitude(perm)
}

func (h *QHybrid) SetAmplitude(perm bitcap.Int, amp Amplitude) error {
	return h.active().SetAmplitude(perm, amp)
}

func (h *QHybrid) GetQuantumState(out []Amplitude) error {
	return h.active().GetQuantumState(out)
}

func (h *QHybrid) SetQuantumState(in []Amplitude) error {
	if err := h.active().SetQuantumState(in); err != nil {
		return err
	}
	return h.checkThreshold()
}

// SetPermutation always lands on the tree.
func (h *QHybrid) SetPermutation(perm bitcap.Int) error {
	if perm.BitLen() > h.qubitCount {
		return fmt.Errorf("permutation %s for %d qubits: %w", perm, h.qubitCount, ErrInvalidRange)
	}
	if h.engine != nil {
		return h.checkCollapsedAfter(h.engine.SetPermutation(perm), perm)
	}
	return h.bdt.SetPermutation(perm)
}

func (h *QHybrid) checkCollapsedAfter(err error, perm bitcap.Int) error {
	if err != nil {
		return err
	}
	return h.checkCollapsed(perm)
}

func (h *QHybrid) ProbParity(mask bitcap.Int) (Real, error) {
	return h.active().ProbParity(mask)
}

func (h *QHybrid) ForceMParity(mask bitcap.Int, result, doForce bool) (bool, error) {
	return h.active().ForceMParity(mask, result, doForce)
}

func (h *QHybrid) UniformParityRZ(mask bitcap.Int, angle Real) error {
	return h.active().UniformParityRZ(mask, angle)
}

func (h *QHybrid) CUniformParityRZ(controls []int, mask bitcap.Int, angle Real) error {
	return h.active().CUniformParityRZ(controls, mask, angle)
}

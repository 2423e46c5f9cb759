package qbdt

import (
	"fmt"
	"math/rand/v2"

	"github.com/bits-and-blooms/bitset"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/theapemachine/errnie"

	"github.com/theapemachine/qbdt/bitcap"
)

/*
QBdt is a quantum register held as a binary decision diagram.

Single-qubit gates are parked in per-qubit shards and only committed to the
tree when an operation needs the qubit's amplitudes. Operations the tree
has no native form for run on a flat QEngineCPU through
ExecuteAsStateVector.

Not safe for concurrent use: one register serves one caller at a time,
while its own operations fan out internally.
*/
type QBdt struct {
	id         uuid.UUID
	qubitCount int
	root       *Node
	shards     []*shard
	pending    *bitset.BitSet

	config     *Config
	dispatcher *Dispatcher
	metrics    *Metrics
	logger     *log.Logger
	rng        *rand.Rand
}

// NewQBdt creates a register of qubitCount qubits in the basis state perm.
func NewQBdt(qubitCount int, perm bitcap.Int, opts ...Option) (*QBdt, error) {
	if qubitCount < 0 {
		return nil, fmt.Errorf("new register of %d qubits: %w", qubitCount, ErrInvalidRange)
	}
	if perm.BitLen() > qubitCount {
		return nil, fmt.Errorf("initial permutation %s for %d qubits: %w", perm, qubitCount, ErrInvalidRange)
	}

	cfg := resolve(opts)
	q := newQBdt(qubitCount, cfg)
	q.root = newPermutationTree(qubitCount, perm.Bit)

	errnie.Info("NewQBdt - id %v, qubits %v, perm %v", q.id, qubitCount, perm)
	return q, nil
}

func newQBdt(qubitCount int, cfg *Config) *QBdt {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	id := uuid.New()

	return &QBdt{
		id:         id,
		qubitCount: qubitCount,
		shards:     make([]*shard, qubitCount),
		pending:    bitset.New(uint(qubitCount)),
		config:     cfg,
		dispatcher: cfg.Dispatcher,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With("register", id.String()),
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (q *QBdt) ID() uuid.UUID {
	return q.id
}

func (q *QBdt) QubitCount() int {
	return q.qubitCount
}

func (q *QBdt) Metrics() *Metrics {
	return q.metrics
}

// Root exposes the tree for inspection. Callers must not mutate it.
func (q *QBdt) Root() *Node {
	return q.root
}

func (q *QBdt) checkQubit(qubit int) error {
	if qubit < 0 || qubit >= q.qubitCount {
		return fmt.Errorf("qubit %d of %d: %w", qubit, q.qubitCount, ErrInvalidQubit)
	}
	return nil
}

func (q *QBdt) checkRange(start, length int) error {
	if start < 0 || length < 0 || start+length > q.qubitCount {
		return fmt.Errorf("range [%d, %d) of %d qubits: %w", start, start+length, q.qubitCount, ErrInvalidRange)
	}
	return nil
}

func (q *QBdt) checkGate(controls []int, target int) error {
	if err := q.checkQubit(target); err != nil {
		return err
	}
	seen := bitset.New(uint(q.qubitCount))
	seen.Set(uint(target))
	for _, c := range controls {
		if err := q.checkQubit(c); err != nil {
			return err
		}
		if seen.Test(uint(c)) {
			return fmt.Errorf("control %d: %w", c, ErrDuplicateQubit)
		}
		seen.Set(uint(c))
	}
	return nil
}

// Mtrx defers an arbitrary single-qubit gate on target.
func (q *QBdt) Mtrx(m Matrix2, target int) error {
	if err := q.checkQubit(target); err != nil {
		return err
	}

	q.metrics.recordGate(true)

	if s := q.shards[target]; s != nil {
		s.Compose(m)
		if s.IsIdentity() {
			q.clearShard(target)
		}
		return nil
	}
	if m.IsIdentity() {
		return nil
	}
	q.shards[target] = newShard(m)
	q.pending.Set(uint(target))
	return nil
}

func (q *QBdt) clearShard(qubit int) {
	q.shards[qubit] = nil
	q.pending.Clear(uint(qubit))
}

// MCMtrx applies m to target when every control is 1.
func (q *QBdt) MCMtrx(controls []int, m Matrix2, target int) error {
	return q.UCMtrx(controls, m, target, bitcap.Pow2(len(controls)).Sub(bitcap.One))
}

// MACMtrx applies m to target when every control is 0.
func (q *QBdt) MACMtrx(controls []int, m Matrix2, target int) error {
	return q.UCMtrx(controls, m, target, bitcap.Zero)
}

/*
UCMtrx applies m to target when control i reads bit i of perm. With no
controls the gate is deferred like Mtrx.
*/
func (q *QBdt) UCMtrx(controls []int, m Matrix2, target int, perm bitcap.Int) error {
	if len(controls) == 0 {
		return q.Mtrx(m, target)
	}
	if err := q.checkGate(controls, target); err != nil {
		return err
	}

	q.FlushIfBlocked(target, controls)
	if m.IsIdentity() {
		return nil
	}

	ctrl := make([]int8, q.qubitCount)
	for i := range ctrl {
		ctrl[i] = -1
	}
	for i, c := range controls {
		ctrl[c] = int8(perm.Bit(i))
	}

	q.metrics.recordGate(false)
	q.applyControlled(m, target, ctrl)
	return nil
}

// MCPhase applies diag(topLeft, bottomRight) to target under controls.
func (q *QBdt) MCPhase(controls []int, topLeft, bottomRight Amplitude, target int) error {
	return q.MCMtrx(controls, Matrix2{topLeft, 0, 0, bottomRight}, target)
}

// MCInvert applies the anti-diagonal (topRight, bottomLeft) under controls.
func (q *QBdt) MCInvert(controls []int, topRight, bottomLeft Amplitude, target int) error {
	return q.MCMtrx(controls, Matrix2{0, topRight, bottomLeft, 0}, target)
}

func (q *QBdt) H(target int) error { return q.Mtrx(Hadamard(), target) }
func (q *QBdt) X(target int) error { return q.Mtrx(PauliX(), target) }
func (q *QBdt) Y(target int) error { return q.Mtrx(PauliY(), target) }
func (q *QBdt) Z(target int) error { return q.Mtrx(PauliZ(), target) }

func (q *QBdt) CNOT(control, target int) error {
	return q.MCInvert([]int{control}, 1, 1, target)
}

func (q *QBdt) CZ(control, target int) error {
	return q.MCPhase([]int{control}, 1, -1, target)
}

// Swap exchanges two qubits.
func (q *QBdt) Swap(q1, q2 int) error {
	if err := q.checkGate([]int{q1}, q2); err != nil {
		if q1 == q2 && q.checkQubit(q1) == nil {
			return nil
		}
		return err
	}
	if q1 > q2 {
		q1, q2 = q2, q1
	}
	for _, pair := range [3][2]int{{q1, q2}, {q2, q1}, {q1, q2}} {
		if err := q.CNOT(pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}

// FlushBuffer commits the pending gate on qubit, if any.
func (q *QBdt) FlushBuffer(qubit int) {
	s := q.shards[qubit]
	if s == nil {
		return
	}
	q.clearShard(qubit)
	q.metrics.recordFlush()
	q.applyControlled(s.gate, qubit, nil)
}

// FlushAll commits every pending gate.
func (q *QBdt) FlushAll() {
	for i, ok := q.pending.NextSet(0); ok; i, ok = q.pending.NextSet(i + 1) {
		q.FlushBuffer(int(i))
	}
}

// FlushNonPhaseBuffers commits every pending gate that is not diagonal.
func (q *QBdt) FlushNonPhaseBuffers() {
	for i, ok := q.pending.NextSet(0); ok; i, ok = q.pending.NextSet(i + 1) {
		if !q.shards[i].IsPhase() {
			q.FlushBuffer(int(i))
		}
	}
}

// FlushIfBlocked prepares target and controls for a controlled gate.
// Diagonal gates on controls commute with it and stay pending.
func (q *QBdt) FlushIfBlocked(target int, controls []int) {
	q.FlushBuffer(target)
	for _, c := range controls {
		if s := q.shards[c]; s != nil && !s.IsPhase() {
			q.FlushBuffer(c)
		}
	}
}

// DumpBuffers drops every pending gate without applying it.
func (q *QBdt) DumpBuffers() {
	for i := range q.shards {
		q.shards[i] = nil
	}
	q.pending.ClearAll()
}

// SetPermutation resets the register to the basis state perm.
func (q *QBdt) SetPermutation(perm bitcap.Int) error {
	if perm.BitLen() > q.qubitCount {
		return fmt.Errorf("permutation %s for %d qubits: %w", perm, q.qubitCount, ErrInvalidRange)
	}
	q.DumpBuffers()
	q.root = newPermutationTree(q.qubitCount, perm.Bit)
	return nil
}

// Prune canonicalizes the whole tree.
func (q *QBdt) Prune() {
	q.root.Prune(q.qubitCount)
}

// Normalize rescales the register to unit total probability.
func (q *QBdt) Normalize() {
	q.root.Normalize()
}

// CountBranches returns the number of distinct nodes in the tree.
func (q *QBdt) CountBranches() int {
	n := q.root.countNodes(map[*Node]struct{}{})
	q.metrics.recordNodeCount(n)
	return n
}

// Clone returns an independent copy of the register, pending gates
// included. The copy draws from its own random stream.
func (q *QBdt) Clone() *QBdt {
	c := newQBdt(q.qubitCount, q.config)
	c.root = q.root.deepClone(map[*Node]*Node{})
	for i, s := range q.shards {
		if s != nil {
			c.shards[i] = &shard{gate: s.gate}
			c.pending.Set(uint(i))
		}
	}
	c.rng = rand.New(rand.NewPCG(q.rng.Uint64(), q.rng.Uint64()))
	return c
}

// insertShards opens length empty shard slots at start.
func (q *QBdt) insertShards(start, length int) {
	shards := make([]*shard, 0, len(q.shards)+length)
	shards = append(shards, q.shards[:start]...)
	shards = append(shards, make([]*shard, length)...)
	shards = append(shards, q.shards[start:]...)
	q.shards = shards
	q.rebuildPending()
}

// removeShards drops the shard slots of [start, start+length).
func (q *QBdt) removeShards(start, length int) {
	q.shards = append(q.shards[:start:start], q.shards[start+length:]...)
	q.rebuildPending()
}

func (q *QBdt) rebuildPending() {
	q.pending = bitset.New(uint(len(q.shards)))
	for i, s := range q.shards {
		if s != nil {
			q.pending.Set(uint(i))
		}
	}
}

package qbdt

import (
	"sync"
	"sync/atomic"
)

/*
Node is one vertex of the decision diagram. A node at depth d selects the
value of qubit d through its two branches; the amplitude of a permutation
is the product of the scales met on the way from the root to the leaf.

Branches are nil at the terminal depth and on zero-amplitude leaves.
A node may fill more than one branch slot of the same register after
pruning or tree surgery. refs counts those slots, and any mutation that
is not uniform across all of them must first take a private copy through
own. Nodes are never shared between registers.
*/
type Node struct {
	Scale    Amplitude
	Branches [2]*Node

	refs atomic.Int32
	mu   sync.Mutex
}

func newNode(scale Amplitude) *Node {
	n := &Node{Scale: scale}
	n.refs.Store(1)
	return n
}

func newZeroLeaf() *Node {
	return newNode(0)
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.Branches[0] == nil
}

// IsZero reports whether the subtree carries no amplitude.
func (n *Node) IsZero() bool {
	return isNorm0(n.Scale)
}

func (n *Node) retain() {
	if n != nil {
		n.refs.Add(1)
	}
}

// release drops one slot reference and, on the last one, the node's own
// references to its children.
func (n *Node) release() {
	if n == nil {
		return
	}
	if n.refs.Add(-1) == 0 {
		n.Branches[0].release()
		n.Branches[1].release()
	}
}

// SetZero turns the node into a canonical zero leaf.
func (n *Node) SetZero() {
	n.Scale = 0
	n.Branches[0].release()
	n.Branches[1].release()
	n.Branches = [2]*Node{}
}

func (n *Node) shallowClone() *Node {
	c := newNode(n.Scale)
	c.Branches = n.Branches
	c.Branches[0].retain()
	c.Branches[1].retain()
	return c
}

// setBranch installs child in slot i, taking a reference to it.
func (n *Node) setBranch(i int, child *Node) {
	if n.Branches[i] == child {
		return
	}
	child.retain()
	old := n.Branches[i]
	n.Branches[i] = child
	old.release()
}

// putBranch installs a freshly allocated child in slot i.
func (n *Node) putBranch(i int, child *Node) {
	old := n.Branches[i]
	n.Branches[i] = child
	old.release()
}

// setChildren replaces both branches, taking references to the new ones.
func (n *Node) setChildren(b [2]*Node) {
	b[0].retain()
	b[1].retain()
	old := n.Branches
	n.Branches = b
	old[0].release()
	old[1].release()
}

// ownSlot makes the node held in *slot private to that slot.
func ownSlot(slot **Node) *Node {
	child := *slot
	if child == nil || child.refs.Load() <= 1 {
		return child
	}
	c := child.shallowClone()
	*slot = c
	child.release()
	return c
}

// own makes branch i private to n and returns it.
func (n *Node) own(i int) *Node {
	return ownSlot(&n.Branches[i])
}

// branchOnce materializes and privatizes both children of n. The node's
// lock guarantees a single allocation when several goroutines race on
// first expansion.
func (n *Node) branchOnce() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.Branches[0] == nil {
		n.Branches[0] = newNode(cmplxR(sqrt1_2))
		n.Branches[1] = newNode(cmplxR(sqrt1_2))
		return
	}
	n.own(0)
	n.own(1)
}

// Branch materializes and privatizes every non-zero path below n down to
// depth levels.
func (n *Node) Branch(depth int) {
	if depth <= 0 || n.IsZero() {
		return
	}
	n.branchOnce()
	n.Branches[0].Branch(depth - 1)
	n.Branches[1].Branch(depth - 1)
}

// nodePair keys the memo of one subtree comparison.
type nodePair struct{ a, b *Node }

// equal compares two subtrees including their root scales. memo holds the
// pairs already compared below their scales, so shared structure is
// visited once per pair.
func equal(a, b *Node, memo map[nodePair]bool) bool {
	if a == b {
		return true
	}
	if a.IsZero() && b.IsZero() {
		return true
	}
	if !isSame(a.Scale, b.Scale) {
		return false
	}
	return equalBelow(a, b, memo)
}

func equalBelow(a, b *Node, memo map[nodePair]bool) bool {
	if a == b {
		return true
	}
	if a.IsLeaf() || b.IsLeaf() {
		return a.IsLeaf() && b.IsLeaf()
	}
	key := nodePair{a, b}
	if same, ok := memo[key]; ok {
		return same
	}
	same := equal(a.Branches[0], b.Branches[0], memo) && equal(a.Branches[1], b.Branches[1], memo)
	memo[key] = same
	return same
}

// equalUnder compares two subtrees below their root scales.
func equalUnder(a, b *Node) bool {
	return equalBelow(a, b, map[nodePair]bool{})
}

/*
Prune canonicalizes the top depth levels below n. Zero children become
zero leaves, the phase of the first non-zero child is folded into the
node's scale, and siblings that match below their scales end up sharing
structure. Amplitudes are unchanged.
*/
func (n *Node) Prune(depth int) {
	if depth <= 0 || n.IsLeaf() {
		return
	}
	if n.IsZero() {
		n.SetZero()
		return
	}

	b0, b1 := n.Branches[0], n.Branches[1]
	if b0 != b1 {
		for _, b := range []*Node{b0, b1} {
			// Shared nodes are canonical already.
			if b.refs.Load() == 1 {
				b.Prune(depth - 1)
			}
		}
	}

	n.pruneLocal()
}

func (n *Node) pruneLocal() {
	z0, z1 := n.Branches[0].IsZero(), n.Branches[1].IsZero()
	if z0 && z1 {
		n.SetZero()
		return
	}
	for i, z := range [2]bool{z0, z1} {
		if z && !(n.Branches[i].IsLeaf() && n.Branches[i].Scale == 0) {
			n.putBranch(i, newZeroLeaf())
		}
	}

	lead := n.Branches[0]
	if z0 {
		lead = n.Branches[1]
	}
	if phase := unitPhase(lead.Scale); !isSame(phase, 1) {
		n.Scale *= phase
		for i, z := range [2]bool{z0, z1} {
			if !z {
				n.own(i).Scale /= phase
			}
		}
	}

	if z0 || z1 {
		return
	}

	b0, b1 := n.Branches[0], n.Branches[1]
	if b0 == b1 || !equalUnder(b0, b1) {
		return
	}
	if isSame(b0.Scale, b1.Scale) {
		n.setBranch(1, b0)
		return
	}
	if !b0.IsLeaf() {
		n.own(1).setChildren(b0.Branches)
	}
}

// pop recomputes the scales of the top depth levels from the values held
// by their children, establishing the local normalization of every node.
// The node's previous scale is discarded.
func (n *Node) pop(depth int) {
	if depth <= 0 || n.IsLeaf() {
		return
	}
	b0, b1 := n.own(0), n.own(1)
	b0.pop(depth - 1)
	b1.pop(depth - 1)
	n.popLocal()
}

func (n *Node) popLocal() {
	b0, b1 := n.Branches[0], n.Branches[1]
	n0, n1 := normC(b0.Scale), normC(b1.Scale)

	switch {
	case n0+n1 <= FPNormEpsilon:
		n.SetZero()
	case n0 <= FPNormEpsilon:
		n.Scale = b1.Scale
		n.own(1).Scale = 1
		n.putBranch(0, newZeroLeaf())
	case n1 <= FPNormEpsilon:
		n.Scale = b0.Scale
		n.own(0).Scale = 1
		n.putBranch(1, newZeroLeaf())
	default:
		n.Scale = polar(sqrtR(n0+n1), argC(b0.Scale))
		n.own(0).Scale /= n.Scale
		n.own(1).Scale /= n.Scale
	}
}

// renorm restores local normalization of the top depth levels while
// keeping each node's phase. Magnitude lost or gained below a node moves
// into its scale. Each distinct node is visited once.
func (n *Node) renorm(depth int, seen map[*Node]struct{}) {
	if depth <= 0 || n.IsLeaf() || n.IsZero() {
		return
	}
	if _, ok := seen[n]; ok {
		return
	}
	seen[n] = struct{}{}

	n.Branches[0].renorm(depth-1, seen)
	n.Branches[1].renorm(depth-1, seen)

	nrm := normC(n.Branches[0].Scale) + normC(n.Branches[1].Scale)
	if nrm <= FPNormEpsilon {
		n.SetZero()
		return
	}
	r := cmplxR(sqrtR(nrm))
	n.Scale *= r
	n.own(0).Scale /= r
	n.own(1).Scale /= r
}

// mass is the squared norm of the subtree, memoized over shared nodes.
func (n *Node) mass(memo map[*Node]Real) Real {
	if n.IsZero() {
		return 0
	}
	if n.IsLeaf() {
		return normC(n.Scale)
	}
	if m, ok := memo[n]; ok {
		return m
	}
	m := normC(n.Scale) * (n.Branches[0].mass(memo) + n.Branches[1].mass(memo))
	memo[n] = m
	return m
}

// Normalize rescales n so the register it roots has unit total probability.
func (n *Node) Normalize() {
	total := n.mass(map[*Node]Real{})
	if total <= FPNormEpsilon {
		return
	}
	n.Scale /= cmplxR(sqrtR(total))
}

// deepClone copies the subtree, keeping the sharing structure inside it.
func (n *Node) deepClone(memo map[*Node]*Node) *Node {
	if n == nil {
		return nil
	}
	if c, ok := memo[n]; ok {
		c.retain()
		return c
	}
	c := newNode(n.Scale)
	if !n.IsLeaf() && !n.IsZero() {
		c.Branches[0] = n.Branches[0].deepClone(memo)
		c.Branches[1] = n.Branches[1].deepClone(memo)
	}
	memo[n] = c
	return c
}

// countNodes counts the distinct nodes reachable from n.
func (n *Node) countNodes(seen map[*Node]struct{}) int {
	if n == nil {
		return 0
	}
	if _, ok := seen[n]; ok {
		return 0
	}
	seen[n] = struct{}{}
	return 1 + n.Branches[0].countNodes(seen) + n.Branches[1].countNodes(seen)
}

// newPermutationTree builds the basis state |perm⟩ over qubitCount qubits.
func newPermutationTree(qubitCount int, bit func(int) uint) *Node {
	root := newNode(1)
	n := root
	for j := 0; j < qubitCount; j++ {
		b := bit(j)
		next := newNode(1)
		n.Branches[b] = next
		n.Branches[1-b] = newZeroLeaf()
		n = next
	}
	return root
}

package qbdt

import (
	"fmt"

	"github.com/theapemachine/qbdt/bitcap"
)

/*
Compose inserts the qubits of other at index start, so that other's qubit
0 becomes qubit start of this register. Every non-zero node at depth start
receives its own copy of other's tree, whose leaves adopt the node's former
children.

The registers are assumed to be unentangled; nothing checks it. other is
left unchanged. Returns start.
*/
func (q *QBdt) Compose(other *QBdt, start int) (int, error) {
	if start < 0 || start > q.qubitCount {
		return 0, fmt.Errorf("compose at %d into %d qubits: %w", start, q.qubitCount, ErrInvalidRange)
	}
	if other == q {
		other = q.Clone()
	}

	q.FlushAll()
	other.FlushAll()

	length := other.qubitCount
	if length == 0 {
		q.root.Scale *= other.root.Scale
		return start, nil
	}

	sites := q.sitesAt(start)

	if start == q.qubitCount {
		// Appending: leaves have no children to carry, so one copy serves
		// every site.
		graft := other.root.deepClone(map[*Node]*Node{})
		for _, n := range sites {
			n.Scale *= graft.Scale
			n.setChildren(graft.Branches)
		}
		graft.release()
	} else {
		for _, n := range sites {
			tails := n.Branches
			graft := graftClone(other.root, length, tails, map[*Node]*Node{})
			n.Scale *= graft.Scale
			n.setChildren(graft.Branches)
			graft.release()
		}
	}

	q.qubitCount += length
	q.insertShards(start, length)
	q.root.Prune(q.qubitCount)

	q.logger.Debug("composed", "start", start, "length", length, "qubits", q.qubitCount)
	return start, nil
}

// graftClone copies src down to depth levels; the copies of its non-zero
// leaves take tails as their children.
func graftClone(src *Node, depth int, tails [2]*Node, memo map[*Node]*Node) *Node {
	if c, ok := memo[src]; ok {
		c.retain()
		return c
	}
	c := newNode(src.Scale)
	switch {
	case src.IsZero():
		c.Scale = 0
	case depth == 0:
		c.setChildren(tails)
	default:
		c.Branches[0] = graftClone(src.Branches[0], depth-1, tails, memo)
		c.Branches[1] = graftClone(src.Branches[1], depth-1, tails, memo)
	}
	memo[src] = c
	return c
}

// Allocate inserts length fresh qubits in |0⟩ at start.
func (q *QBdt) Allocate(start, length int) (int, error) {
	if length < 0 || start < 0 || start > q.qubitCount {
		return 0, fmt.Errorf("allocate %d qubits at %d of %d: %w", length, start, q.qubitCount, ErrInvalidRange)
	}
	if length == 0 {
		return start, nil
	}
	fresh := newQBdt(length, q.config)
	fresh.root = newPermutationTree(length, bitcap.Zero.Bit)
	return q.Compose(fresh, start)
}

/*
DecomposeDispose removes the qubits [start, start+length) from the
register. When dest is non-nil it receives their state and must already be
length qubits wide.

The removed range is assumed to be unentangled with the rest; if it is
not, both results are well-formed but wrong.
*/
func (q *QBdt) DecomposeDispose(start, length int, dest *QBdt) error {
	if err := q.checkRange(start, length); err != nil {
		return err
	}
	if dest != nil && dest.qubitCount != length {
		return fmt.Errorf("decompose %d qubits into %d: %w", length, dest.qubitCount, ErrQubitCountMismatch)
	}
	if length == 0 {
		return nil
	}

	q.FlushAll()
	q.root.Prune(q.qubitCount)

	sites := q.sitesAt(start)
	if len(sites) == 0 {
		return nil
	}

	// The reference path through the removed range follows the heaviest
	// branch from the first site.
	ref := make([]int, length)
	k := sites[0]
	for j := range ref {
		ref[j] = heavier(k)
		k = k.Branches[ref[j]]
	}

	if dest != nil {
		dest.DumpBuffers()
		dest.root = extractRange(sites[0], length, k)
	}

	for _, n := range sites {
		scale := Amplitude(1)
		tail := n
		for _, bit := range ref {
			tail = tail.Branches[bit]
			if tail == nil {
				scale = 0
				break
			}
			scale *= tail.Scale
		}
		if isNorm0(scale) {
			n.SetZero()
			continue
		}
		n.Scale *= scale
		n.setChildren(tail.Branches)
	}

	q.qubitCount -= length
	q.removeShards(start, length)

	q.root.renorm(start+1, map[*Node]struct{}{})
	if q.root.IsZero() {
		q.logger.Warn("decomposition left no amplitude", "start", start, "length", length)
		q.root = newPermutationTree(q.qubitCount, bitcap.Zero.Bit)
		return nil
	}
	q.root.Scale = unitPhase(q.root.Scale)
	q.root.Prune(q.qubitCount)

	q.logger.Debug("decomposed", "start", start, "length", length, "qubits", q.qubitCount)
	return nil
}

func heavier(n *Node) int {
	if n.IsLeaf() {
		return 0
	}
	if normC(n.Branches[1].Scale) > normC(n.Branches[0].Scale) {
		return 1
	}
	return 0
}

// extractRange copies the length levels below site into a new normalized
// tree. Each node at the bottom of the range is weighted by the amplitude
// of the heaviest continuation of ref, the node the reference path ended
// on, so every copied leaf is read along the same suffix.
func extractRange(site *Node, length int, ref *Node) *Node {
	var suffix []int
	for n := ref; !n.IsLeaf(); {
		bit := heavier(n)
		suffix = append(suffix, bit)
		n = n.Branches[bit]
	}

	leafScale := func(k *Node) Amplitude {
		amp := k.Scale
		for _, bit := range suffix {
			if k = k.Branches[bit]; k == nil {
				return 0
			}
			amp *= k.Scale
		}
		return amp
	}

	memo := map[*Node]*Node{}
	var copyDown func(n *Node, depth int) *Node
	copyDown = func(n *Node, depth int) *Node {
		if c, ok := memo[n]; ok {
			c.retain()
			return c
		}
		var c *Node
		switch {
		case n.IsZero():
			c = newZeroLeaf()
		case depth == 0:
			c = newNode(leafScale(n))
		default:
			c = newNode(n.Scale)
			c.Branches[0] = copyDown(n.Branches[0], depth-1)
			c.Branches[1] = copyDown(n.Branches[1], depth-1)
		}
		memo[n] = c
		return c
	}

	root := newNode(1)
	if length > 0 {
		root.Branches[0] = copyDown(site.Branches[0], length-1)
		root.Branches[1] = copyDown(site.Branches[1], length-1)
	}
	// The copied inner scales carry the weights of the upper qubits of the
	// range, so they are renormalized in place rather than recomputed.
	root.renorm(length, map[*Node]struct{}{})
	root.Scale = unitPhase(root.Scale)
	root.Prune(length)
	return root
}

// Decompose moves the qubits [start, start+dest.QubitCount()) into dest.
func (q *QBdt) Decompose(start int, dest *QBdt) error {
	return q.DecomposeDispose(start, dest.qubitCount, dest)
}

// Dispose discards the qubits [start, start+length).
func (q *QBdt) Dispose(start, length int) error {
	return q.DecomposeDispose(start, length, nil)
}

// DisposePerm forces [start, start+length) to perm, then discards them.
func (q *QBdt) DisposePerm(start, length int, perm bitcap.Int) error {
	if err := q.checkRange(start, length); err != nil {
		return err
	}
	for i := 0; i < length; i++ {
		if _, err := q.ForceM(start+i, perm.Bit(i) == 1, true, true); err != nil {
			return err
		}
	}
	return q.DecomposeDispose(start, length, nil)
}

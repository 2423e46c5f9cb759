package qbdt

// applyControlled commits m on target into the tree. ctrl holds, per qubit,
// the value a control requires or -1; a nil ctrl means no controls.
func (q *QBdt) applyControlled(m Matrix2, target int, ctrl []int8) {
	above, below := false, -1
	for c, v := range ctrl {
		if v < 0 {
			continue
		}
		if c < target {
			above = true
		} else {
			below = c
		}
	}

	var targets []*Node
	if above {
		targets = q.controlledSites(target, ctrl)
	} else {
		targets = q.sitesAt(target)
	}

	remaining := q.qubitCount - target
	q.dispatcher.ParForNodes(targets, func(n *Node, _ int) {
		n.apply2x2(m, target+1, below, ctrl)
		n.Prune(remaining)
	})

	q.root.Prune(target)
}

// sitesAt returns every distinct non-zero node at depth, walking the
// shared structure level by level.
func (q *QBdt) sitesAt(depth int) []*Node {
	level := []*Node{q.root}
	if q.root.IsZero() {
		return nil
	}
	for d := 0; d < depth; d++ {
		seen := make(map[*Node]struct{}, 2*len(level))
		next := make([]*Node, 0, 2*len(level))
		for _, n := range level {
			if n.IsLeaf() {
				n.branchOnce()
			}
			for _, b := range n.Branches {
				if b.IsZero() {
					continue
				}
				if _, ok := seen[b]; ok {
					continue
				}
				seen[b] = struct{}{}
				next = append(next, b)
			}
		}
		level = next
	}
	return level
}

// controlledSites privatizes and returns the non-zero nodes at target
// reached by paths that satisfy the controls above it.
func (q *QBdt) controlledSites(target int, ctrl []int8) []*Node {
	var out []*Node
	var walk func(n *Node, d int)
	walk = func(n *Node, d int) {
		if n.IsZero() {
			return
		}
		if d == target {
			out = append(out, n)
			return
		}
		if n.IsLeaf() {
			n.branchOnce()
		}
		if v := ctrlAt(ctrl, d); v >= 0 {
			walk(n.own(int(v)), d+1)
			return
		}
		walk(n.own(0), d+1)
		walk(n.own(1), d+1)
	}
	walk(q.root, 0)
	return out
}

/*
apply2x2 applies m to the child pair of n. depth is the qubit selected by
the children's own branches, last the highest control below n (or -1).
*/
func (n *Node) apply2x2(m Matrix2, depth, last int, ctrl []int8) {
	if n.IsLeaf() || n.IsZero() {
		return
	}

	if last < 0 {
		switch {
		case m.IsPhase():
			if !n.Branches[0].IsZero() {
				n.own(0).Scale *= m[0]
			}
			if !n.Branches[1].IsZero() {
				n.own(1).Scale *= m[3]
			}
			return
		case m.IsInvert():
			n.Branches[0], n.Branches[1] = n.Branches[1], n.Branches[0]
			if !n.Branches[0].IsZero() {
				n.own(0).Scale *= m[1]
			}
			if !n.Branches[1].IsZero() {
				n.own(1).Scale *= m[2]
			}
			return
		}
	}

	pushStateVector(&m, &n.Branches[0], &n.Branches[1], depth, last, ctrl)
}

// pushStateVector replaces the pair of subtrees (*s0, *s1) with their
// linear combination under m. Controls at or below depth restrict the
// combination to the matching branches.
func pushStateVector(m *Matrix2, s0, s1 **Node, depth, last int, ctrl []int8) {
	b0, b1 := *s0, *s1
	z0, z1 := b0.IsZero(), b1.IsZero()
	if z0 && z1 {
		return
	}
	if z0 {
		c := b1.shallowClone()
		c.Scale = 0
		*s0 = c
		b0.release()
	}
	if z1 {
		c := b0.shallowClone()
		c.Scale = 0
		*s1 = c
		b1.release()
	}

	b0, b1 = ownSlot(s0), ownSlot(s1)

	if depth > last && equalUnder(b0, b1) {
		a0, a1 := b0.Scale, b1.Scale
		b0.Scale = m[0]*a0 + m[1]*a1
		b1.Scale = m[2]*a0 + m[3]*a1
		return
	}

	b0.branchOnce()
	b1.branchOnce()
	for i := range 2 {
		b0.Branches[i].Scale *= b0.Scale
		b1.Branches[i].Scale *= b1.Scale
	}
	b0.Scale, b1.Scale = 1, 1

	switch v := ctrlAt(ctrl, depth); v {
	case 0, 1:
		pushStateVector(m, &b0.Branches[v], &b1.Branches[v], depth+1, last, ctrl)
	default:
		pushStateVector(m, &b0.Branches[0], &b1.Branches[0], depth+1, last, ctrl)
		pushStateVector(m, &b0.Branches[1], &b1.Branches[1], depth+1, last, ctrl)
	}

	b0.popLocal()
	b1.popLocal()
}

func ctrlAt(ctrl []int8, qubit int) int8 {
	if qubit >= len(ctrl) {
		return -1
	}
	return ctrl[qubit]
}

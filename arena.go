package qbdt

const arenaChunk = 1 << 10

/*
nodeArena hands out nodes from contiguous slabs. Each goroutine that builds
part of a tree owns its own arena, so allocation needs no locking. Nodes
stay valid for as long as any of them is referenced.
*/
type nodeArena struct {
	slab []Node
	next int
}

func (a *nodeArena) alloc(scale Amplitude) *Node {
	if a.next == len(a.slab) {
		a.slab = make([]Node, arenaChunk)
		a.next = 0
	}
	n := &a.slab[a.next]
	a.next++
	n.Scale = scale
	n.refs.Store(1)
	return n
}

// expand builds a full binary tree of the given depth below n.
func (a *nodeArena) expand(n *Node, depth int) {
	if depth <= 0 {
		return
	}
	n.mu.Lock()
	if n.Branches[0] == nil {
		n.Branches[0] = a.alloc(cmplxR(sqrt1_2))
		n.Branches[1] = a.alloc(cmplxR(sqrt1_2))
	}
	n.mu.Unlock()

	a.expand(n.Branches[0], depth-1)
	a.expand(n.Branches[1], depth-1)
}

package qbdt

// Matrix2 is a row-major 2×2 complex matrix.
type Matrix2 [4]Amplitude

// Identity2 is the 2×2 identity.
var Identity2 = Matrix2{1, 0, 0, 1}

// Mul returns m × o.
func (m Matrix2) Mul(o Matrix2) Matrix2 {
	return Matrix2{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
	}
}

// IsPhase reports whether m is diagonal.
func (m Matrix2) IsPhase() bool {
	return isNorm0(m[1]) && isNorm0(m[2])
}

// IsInvert reports whether m is anti-diagonal.
func (m Matrix2) IsInvert() bool {
	return isNorm0(m[0]) && isNorm0(m[3])
}

func (m Matrix2) IsIdentity() bool {
	return m.IsPhase() && isSame(m[0], 1) && isSame(m[3], 1)
}

func (m Matrix2) IsX() bool {
	return m.IsInvert() && isSame(m[1], 1) && isSame(m[2], 1)
}

func (m Matrix2) IsZ() bool {
	return m.IsPhase() && isSame(m[0], 1) && isSame(m[3], -1)
}

func (m Matrix2) IsH() bool {
	h := cmplxR(sqrt1_2)
	return isSame(m[0], h) && isSame(m[1], h) && isSame(m[2], h) && isSame(m[3], -h)
}

/*
shard is a single-qubit gate that has been requested but not yet applied
to the tree. Consecutive gates on the same qubit multiply into it, and it
is flushed when another operation needs the qubit's amplitudes.
*/
type shard struct {
	gate Matrix2
}

func newShard(m Matrix2) *shard {
	s := &shard{gate: m}
	s.snap()
	return s
}

// Compose left-multiplies m into the pending gate.
func (s *shard) Compose(m Matrix2) {
	s.gate = m.Mul(s.gate)
	s.snap()
}

// snap removes rounding noise from products that are (anti-)diagonal.
func (s *shard) snap() {
	g := &s.gate
	switch {
	case g.IsPhase():
		g[1], g[2] = 0, 0
		g[0], g[3] = unitPhase(g[0]), unitPhase(g[3])
	case g.IsInvert():
		g[0], g[3] = 0, 0
		g[1], g[2] = unitPhase(g[1]), unitPhase(g[2])
	}
}

func (s *shard) IsPhase() bool    { return s.gate.IsPhase() }
func (s *shard) IsInvert() bool   { return s.gate.IsInvert() }
func (s *shard) IsIdentity() bool { return s.gate.IsIdentity() }

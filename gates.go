package qbdt

import "math"

func Hadamard() Matrix2 {
	h := cmplxR(sqrt1_2)
	return Matrix2{h, h, h, -h}
}

func PauliX() Matrix2 {
	return Matrix2{0, 1, 1, 0}
}

func PauliY() Matrix2 {
	return Matrix2{0, -1i, 1i, 0}
}

func PauliZ() Matrix2 {
	return Matrix2{1, 0, 0, -1}
}

// PhaseGate is diag(1, e^{iθ}).
func PhaseGate(theta Real) Matrix2 {
	return Matrix2{1, 0, 0, polar(1, theta)}
}

// RotateZ is diag(e^{-iθ/2}, e^{iθ/2}).
func RotateZ(theta Real) Matrix2 {
	return Matrix2{polar(1, -theta/2), 0, 0, polar(1, theta/2)}
}

func RotateY(theta Real) Matrix2 {
	c := cmplxR(Real(math.Cos(float64(theta) / 2)))
	s := cmplxR(Real(math.Sin(float64(theta) / 2)))
	return Matrix2{c, -s, s, c}
}

func RotateX(theta Real) Matrix2 {
	c := cmplxR(Real(math.Cos(float64(theta) / 2)))
	s := Amplitude(complex(0, -math.Sin(float64(theta)/2)))
	return Matrix2{c, s, s, c}
}

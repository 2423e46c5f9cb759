package qbdt

import (
	"math"
	"math/cmplx"
)

const sqrt1_2 = Real(math.Sqrt2 / 2)

func normC(c Amplitude) Real {
	re, im := real(c), imag(c)
	return re*re + im*im
}

func absC(c Amplitude) Real {
	return Real(cmplx.Abs(complex128(c)))
}

func argC(c Amplitude) Real {
	return Real(cmplx.Phase(complex128(c)))
}

func polar(r, theta Real) Amplitude {
	return Amplitude(cmplx.Rect(float64(r), float64(theta)))
}

func sqrtR(r Real) Real {
	return Real(math.Sqrt(float64(r)))
}

func cmplxR(r Real) Amplitude {
	return Amplitude(complex(float64(r), 0))
}

// isNorm0 reports whether c is zero within FPNormEpsilon.
func isNorm0(c Amplitude) bool {
	return normC(c) <= FPNormEpsilon
}

// isSame is fuzzy amplitude equality.
func isSame(a, b Amplitude) bool {
	return isNorm0(a - b)
}

// unitPhase returns c scaled to unit magnitude, or 1 for zero.
func unitPhase(c Amplitude) Amplitude {
	if isNorm0(c) {
		return 1
	}
	return c / cmplxR(absC(c))
}

//go:build qbdt_fp32

package qbdt

// Real is the float type every amplitude component is stored in.
type Real = float32

// Amplitude is a complex coefficient of one permutation basis state.
type Amplitude = complex64

// FPNormEpsilon is half the machine epsilon of Real, compared against |c|².
const FPNormEpsilon Real = 0x1p-24

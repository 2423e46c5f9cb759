// Package bitcap provides the permutation-index integer used by registers
// whose width may exceed a machine word.
package bitcap

import (
	"math/big"
	"math/bits"
)

/*
Int is an immutable non-negative integer wide enough to index every
permutation of a register. Values that fit in 64 bits never allocate;
wider values are carried in a math/big.Int that is never shared with a
caller.
*/
type Int struct {
	lo   uint64
	wide *big.Int
}

// Zero is the additive identity.
var Zero = Int{}

// One is the multiplicative identity.
var One = Int{lo: 1}

func FromUint64(v uint64) Int {
	return Int{lo: v}
}

// FromBig copies b. Negative values are kept as-is in the wide form.
func FromBig(b *big.Int) Int {
	return fromBig(new(big.Int).Set(b))
}

func fromBig(b *big.Int) Int {
	if b.Sign() >= 0 && b.IsUint64() {
		return Int{lo: b.Uint64()}
	}
	return Int{wide: b}
}

// Pow2 returns 2^n.
func Pow2(n int) Int {
	if n < 64 {
		return Int{lo: 1 << uint(n)}
	}
	return Int{wide: new(big.Int).Lsh(big.NewInt(1), uint(n))}
}

// Big returns a fresh math/big copy of x.
func (x Int) Big() *big.Int {
	if x.wide != nil {
		return new(big.Int).Set(x.wide)
	}
	return new(big.Int).SetUint64(x.lo)
}

// IsUint64 reports whether x fits in a uint64.
func (x Int) IsUint64() bool {
	return x.wide == nil
}

// Uint64 returns the low 64 bits of x.
func (x Int) Uint64() uint64 {
	if x.wide != nil {
		words := x.wide.Bits()
		if len(words) == 0 {
			return 0
		}
		return uint64(words[0])
	}
	return x.lo
}

func (x Int) IsZero() bool {
	return x.wide == nil && x.lo == 0
}

// BitLen is the number of bits needed to represent x.
func (x Int) BitLen() int {
	if x.wide != nil {
		return x.wide.BitLen()
	}
	return bits.Len64(x.lo)
}

// OnesCount is the population count of x.
func (x Int) OnesCount() int {
	if x.wide == nil {
		return bits.OnesCount64(x.lo)
	}
	count := 0
	for _, w := range x.wide.Bits() {
		count += bits.OnesCount64(uint64(w))
	}
	return count
}

// Bit returns bit i of x.
func (x Int) Bit(i int) uint {
	if x.wide != nil {
		return x.wide.Bit(i)
	}
	if i >= 64 {
		return 0
	}
	return uint(x.lo>>uint(i)) & 1
}

// SetBit returns x with bit i set to b.
func (x Int) SetBit(i int, b uint) Int {
	if x.wide == nil && i < 64 {
		if b == 0 {
			return Int{lo: x.lo &^ (1 << uint(i))}
		}
		return Int{lo: x.lo | 1<<uint(i)}
	}
	return fromBig(new(big.Int).SetBit(x.Big(), i, b))
}

func (x Int) Or(y Int) Int {
	if x.wide == nil && y.wide == nil {
		return Int{lo: x.lo | y.lo}
	}
	return fromBig(new(big.Int).Or(x.Big(), y.Big()))
}

func (x Int) And(y Int) Int {
	if x.wide == nil && y.wide == nil {
		return Int{lo: x.lo & y.lo}
	}
	return fromBig(new(big.Int).And(x.Big(), y.Big()))
}

func (x Int) Xor(y Int) Int {
	if x.wide == nil && y.wide == nil {
		return Int{lo: x.lo ^ y.lo}
	}
	return fromBig(new(big.Int).Xor(x.Big(), y.Big()))
}

// AndNot returns x &^ y.
func (x Int) AndNot(y Int) Int {
	if x.wide == nil && y.wide == nil {
		return Int{lo: x.lo &^ y.lo}
	}
	return fromBig(new(big.Int).AndNot(x.Big(), y.Big()))
}

func (x Int) Add(y Int) Int {
	if x.wide == nil && y.wide == nil {
		sum, carry := bits.Add64(x.lo, y.lo, 0)
		if carry == 0 {
			return Int{lo: sum}
		}
	}
	return fromBig(new(big.Int).Add(x.Big(), y.Big()))
}

func (x Int) Sub(y Int) Int {
	if x.wide == nil && y.wide == nil && x.lo >= y.lo {
		return Int{lo: x.lo - y.lo}
	}
	return fromBig(new(big.Int).Sub(x.Big(), y.Big()))
}

// Lsh returns x << n.
func (x Int) Lsh(n int) Int {
	if n == 0 {
		return x
	}
	if x.wide == nil && n < 64 && bits.Len64(x.lo)+n <= 64 {
		return Int{lo: x.lo << uint(n)}
	}
	return fromBig(new(big.Int).Lsh(x.Big(), uint(n)))
}

// Rsh returns x >> n.
func (x Int) Rsh(n int) Int {
	if x.wide == nil {
		if n >= 64 {
			return Zero
		}
		return Int{lo: x.lo >> uint(n)}
	}
	return fromBig(new(big.Int).Rsh(x.wide, uint(n)))
}

// Cmp returns -1, 0 or +1 as x is less than, equal to or greater than y.
func (x Int) Cmp(y Int) int {
	if x.wide == nil && y.wide == nil {
		switch {
		case x.lo < y.lo:
			return -1
		case x.lo > y.lo:
			return 1
		}
		return 0
	}
	return x.Big().Cmp(y.Big())
}

func (x Int) Equal(y Int) bool {
	return x.Cmp(y) == 0
}

func (x Int) String() string {
	if x.wide != nil {
		return x.wide.String()
	}
	return new(big.Int).SetUint64(x.lo).String()
}

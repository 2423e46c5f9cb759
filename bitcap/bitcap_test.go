package bitcap

import (
	"math/big"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNarrowValues(t *testing.T) {
	Convey("Given values that fit in a machine word", t, func() {
		x := FromUint64(0b1011)

		Convey("When reading bits", func() {
			Convey("Then each bit should match the binary form", func() {
				So(x.Bit(0), ShouldEqual, uint(1))
				So(x.Bit(1), ShouldEqual, uint(1))
				So(x.Bit(2), ShouldEqual, uint(0))
				So(x.Bit(3), ShouldEqual, uint(1))
				So(x.Bit(70), ShouldEqual, uint(0))
				So(x.OnesCount(), ShouldEqual, 3)
				So(x.BitLen(), ShouldEqual, 4)
			})
		})

		Convey("When combining with bitwise operators", func() {
			y := FromUint64(0b0110)

			Convey("Then results should stay narrow", func() {
				So(x.Or(y).Uint64(), ShouldEqual, uint64(0b1111))
				So(x.And(y).Uint64(), ShouldEqual, uint64(0b0010))
				So(x.Xor(y).Uint64(), ShouldEqual, uint64(0b1101))
				So(x.AndNot(y).Uint64(), ShouldEqual, uint64(0b1001))
				So(x.Or(y).IsUint64(), ShouldBeTrue)
			})
		})

		Convey("When setting and clearing bits", func() {
			So(x.SetBit(2, 1).Uint64(), ShouldEqual, uint64(0b1111))
			So(x.SetBit(0, 0).Uint64(), ShouldEqual, uint64(0b1010))
			So(Zero.IsZero(), ShouldBeTrue)
			So(One.IsZero(), ShouldBeFalse)
		})
	})
}

func TestWideValues(t *testing.T) {
	Convey("Given a power of two beyond 64 bits", t, func() {
		x := Pow2(100)

		Convey("Then it should use the wide form", func() {
			So(x.IsUint64(), ShouldBeFalse)
			So(x.Bit(100), ShouldEqual, uint(1))
			So(x.Bit(99), ShouldEqual, uint(0))
			So(x.BitLen(), ShouldEqual, 101)
			So(x.String(), ShouldEqual, new(big.Int).Lsh(big.NewInt(1), 100).String())
		})

		Convey("When shifting back into range", func() {
			y := x.Rsh(40)

			Convey("Then it should become narrow again", func() {
				So(y.IsUint64(), ShouldBeTrue)
				So(y.Uint64(), ShouldEqual, uint64(1)<<60)
			})
		})

		Convey("When subtracting one", func() {
			y := x.Sub(One)

			Convey("Then every low bit should be set", func() {
				So(y.OnesCount(), ShouldEqual, 100)
				So(y.Add(One).Equal(x), ShouldBeTrue)
				So(y.Cmp(x), ShouldEqual, -1)
				So(x.Cmp(y), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a narrow value shifted past 64 bits", t, func() {
		x := FromUint64(3).Lsh(63)

		Convey("Then no bits should be lost", func() {
			So(x.IsUint64(), ShouldBeFalse)
			So(x.Bit(63), ShouldEqual, uint(1))
			So(x.Bit(64), ShouldEqual, uint(1))
			So(x.Rsh(63).Uint64(), ShouldEqual, uint64(3))
		})
	})

	Convey("Given an addition that carries out of 64 bits", t, func() {
		x := FromUint64(^uint64(0)).Add(One)

		Convey("Then it should equal 2^64", func() {
			So(x.Equal(Pow2(64)), ShouldBeTrue)
			So(x.SetBit(64, 0).IsZero(), ShouldBeTrue)
		})
	})
}

package qbdt

import (
	"errors"
	"math"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/theapemachine/qbdt/bitcap"
)

func TestMatrixPredicates(t *testing.T) {
	Convey("Given the standard gates", t, func() {
		Convey("Then each should be classified by its shape", func() {
			So(PauliX().IsX(), ShouldBeTrue)
			So(PauliX().IsInvert(), ShouldBeTrue)
			So(PauliX().IsPhase(), ShouldBeFalse)
			So(PauliZ().IsZ(), ShouldBeTrue)
			So(PauliZ().IsPhase(), ShouldBeTrue)
			So(Hadamard().IsH(), ShouldBeTrue)
			So(Hadamard().IsPhase(), ShouldBeFalse)
			So(Hadamard().IsInvert(), ShouldBeFalse)
			So(Identity2.IsIdentity(), ShouldBeTrue)
			So(PhaseGate(0.3).IsIdentity(), ShouldBeFalse)
		})

		Convey("Then H·H should be the identity", func() {
			So(Hadamard().Mul(Hadamard()).IsIdentity(), ShouldBeTrue)
		})

		Convey("Then Y should equal i·X·Z", func() {
			xz := PauliX().Mul(PauliZ())
			y := PauliY()
			for k := range y {
				So(distance(1i*xz[k], y[k]), ShouldBeLessThan, tolerance)
			}
		})
	})
}

func TestShardCompose(t *testing.T) {
	Convey("Given a shard holding a T gate", t, func() {
		s := newShard(PhaseGate(math.Pi / 4))

		Convey("When seven more T gates are composed", func() {
			for range 7 {
				s.Compose(PhaseGate(math.Pi / 4))
			}

			Convey("Then the product should snap back to the identity", func() {
				So(s.IsIdentity(), ShouldBeTrue)
				So(s.gate[1], ShouldEqual, Amplitude(0))
				So(s.gate[2], ShouldEqual, Amplitude(0))
			})
		})

		Convey("When an X is composed", func() {
			s.Compose(PauliX())

			Convey("Then the product should be anti-diagonal", func() {
				So(s.IsInvert(), ShouldBeTrue)
				// X·T puts e^{iπ/4} in the upper-right corner.
				So(distance(s.gate[1], polar(1, math.Pi/4)), ShouldBeLessThan, tolerance)
				So(distance(s.gate[2], 1), ShouldBeLessThan, tolerance)
			})
		})
	})
}

func TestShardDeferral(t *testing.T) {
	Convey("Given a fresh register", t, func() {
		q := mustQBdt(3, 0)
		root := q.Root()

		Convey("When H is applied twice to one qubit", func() {
			So(q.H(1), ShouldBeNil)
			So(q.H(1), ShouldBeNil)

			Convey("Then nothing should be pending and the tree untouched", func() {
				So(q.pending.Count(), ShouldEqual, uint(0))
				So(q.Root(), ShouldPointTo, root)
				So(q.Metrics().GatesDeferred, ShouldEqual, int64(2))
				So(q.Metrics().Flushes, ShouldEqual, int64(0))
			})
		})

		Convey("When X is applied", func() {
			So(q.X(0), ShouldBeNil)

			Convey("Then the tree should not change until it is read", func() {
				So(q.Root(), ShouldPointTo, root)
				So(q.pending.Test(0), ShouldBeTrue)

				amp, err := q.GetAmplitude(bitcap.FromUint64(1))
				So(err, ShouldBeNil)
				So(distance(amp, 1), ShouldBeLessThan, tolerance)
				So(q.pending.Test(0), ShouldBeFalse)
				So(q.Metrics().Flushes, ShouldEqual, int64(1))
			})
		})

		Convey("When a phase gate is pending and the qubit is probed", func() {
			So(q.H(0), ShouldBeNil)
			q.FlushAll()
			So(q.Z(0), ShouldBeNil)
			p, err := q.Prob(0)

			Convey("Then the phase should stay deferred", func() {
				So(err, ShouldBeNil)
				So(float64(p), ShouldAlmostEqual, 0.5, tolerance)
				So(q.pending.Test(0), ShouldBeTrue)
			})
		})

		Convey("When a controlled gate has a phase pending on its control", func() {
			So(q.H(0), ShouldBeNil)
			q.FlushAll()
			So(q.Mtrx(PhaseGate(0.7), 0), ShouldBeNil)
			So(q.CNOT(0, 1), ShouldBeNil)

			Convey("Then only the non-commuting buffers should be flushed", func() {
				So(q.pending.Test(0), ShouldBeTrue)

				ref := mustEngine(3, 0)
				So(ref.Mtrx(Hadamard(), 0), ShouldBeNil)
				So(ref.Mtrx(PhaseGate(0.7), 0), ShouldBeNil)
				So(ref.MCMtrx([]int{0}, PauliX(), 1), ShouldBeNil)
				So(maxDistance(stateOf(q), stateOf(ref)), ShouldBeLessThan, tolerance)
			})
		})

		Convey("When pending gates are dumped", func() {
			So(q.X(2), ShouldBeNil)
			q.DumpBuffers()

			Convey("Then they should never reach the tree", func() {
				amp, err := q.GetAmplitude(bitcap.Zero)
				So(err, ShouldBeNil)
				So(distance(amp, 1), ShouldBeLessThan, tolerance)
			})
		})
	})
}

func TestShardFlushOrder(t *testing.T) {
	pairs := [][2]Matrix2{
		{Hadamard(), PhaseGate(0.4)},
		{RotateY(1.1), RotateX(-0.7)},
		{PauliX(), RotateZ(2.3)},
		{PauliY(), Hadamard()},
	}

	for _, pair := range pairs {
		Convey("Given two copies of an entangled register", t, func() {
			deferred := mustQBdt(3, 0)
			So(deferred.Mtrx(RotateY(0.8), 0), ShouldBeNil)
			So(deferred.CNOT(0, 2), ShouldBeNil)
			So(deferred.MCMtrx([]int{2}, RotateX(1.9), 1), ShouldBeNil)
			deferred.FlushAll()
			eager := deferred.Clone()

			Convey("When two gates are buffered and flushed once", func() {
				for _, target := range []int{0, 1} {
					So(deferred.Mtrx(pair[0], target), ShouldBeNil)
					So(deferred.Mtrx(pair[1], target), ShouldBeNil)
				}
				deferred.FlushAll()

				for _, target := range []int{0, 1} {
					So(eager.Mtrx(pair[0], target), ShouldBeNil)
					eager.FlushAll()
					So(eager.Mtrx(pair[1], target), ShouldBeNil)
					eager.FlushAll()
				}

				Convey("Then the result should match flushing after each gate", func() {
					So(maxDistance(stateOf(deferred), stateOf(eager)), ShouldBeLessThan, tolerance)
					So(localNormError(deferred.Root()), ShouldBeLessThan, tolerance)
				})
			})
		})
	}
}

func TestGateValidation(t *testing.T) {
	Convey("Given a two-qubit register", t, func() {
		q := mustQBdt(2, 0)

		Convey("Then out-of-range targets should be rejected", func() {
			So(errors.Is(q.Mtrx(PauliX(), 2), ErrInvalidQubit), ShouldBeTrue)
			So(errors.Is(q.Mtrx(PauliX(), -1), ErrInvalidQubit), ShouldBeTrue)
		})

		Convey("Then a control equal to the target should be rejected", func() {
			So(errors.Is(q.MCMtrx([]int{1}, PauliX(), 1), ErrDuplicateQubit), ShouldBeTrue)
			So(errors.Is(q.MCMtrx([]int{0, 0}, PauliX(), 1), ErrDuplicateQubit), ShouldBeTrue)
		})

		Convey("Then swapping a qubit with itself should do nothing", func() {
			So(q.Swap(1, 1), ShouldBeNil)
		})
	})
}

package qbdt

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/theapemachine/qbdt/bitcap"
)

func bell(opts ...Option) *QBdt {
	q := mustQBdt(2, 0, opts...)
	if err := q.H(0); err != nil {
		panic(err)
	}
	if err := q.CNOT(0, 1); err != nil {
		panic(err)
	}
	return q
}

func TestProb(t *testing.T) {
	Convey("Given a qubit rotated by RY(θ)", t, func() {
		q := mustQBdt(3, 0)
		So(q.Mtrx(RotateY(1.1), 1), ShouldBeNil)
		So(q.H(2), ShouldBeNil)

		Convey("Then its probability should be sin²(θ/2)", func() {
			p, err := q.Prob(1)
			So(err, ShouldBeNil)
			So(float64(p), ShouldAlmostEqual, math.Pow(math.Sin(0.55), 2), tolerance)
		})

		Convey("Then untouched qubits should read zero", func() {
			p, err := q.Prob(0)
			So(err, ShouldBeNil)
			So(float64(p), ShouldAlmostEqual, 0, tolerance)
		})
	})
}

func TestForceM(t *testing.T) {
	Convey("Given a Bell pair", t, func() {
		q := bell()

		Convey("When qubit 0 is forced to one", func() {
			result, err := q.ForceM(0, true, true, true)
			So(err, ShouldBeNil)
			So(result, ShouldBeTrue)

			Convey("Then its partner should follow", func() {
				p0, err := q.Prob(0)
				So(err, ShouldBeNil)
				p1, err := q.Prob(1)
				So(err, ShouldBeNil)
				So(float64(p0), ShouldAlmostEqual, 1, tolerance)
				So(float64(p1), ShouldAlmostEqual, 1, tolerance)
			})

			Convey("Then the register should stay normalized", func() {
				So(totalProb(stateOf(q)), ShouldAlmostEqual, 1, tolerance)
				So(localNormError(q.Root()), ShouldBeLessThan, tolerance)
			})

			Convey("Then forcing the opposite outcome should fail", func() {
				_, err := q.ForceM(1, false, true, true)
				So(errors.Is(err, ErrZeroProbability), ShouldBeTrue)
			})
		})

		Convey("When qubit 1 is measured without collapse", func() {
			before := stateOf(q)
			_, err := q.ForceM(1, false, false, false)
			So(err, ShouldBeNil)

			Convey("Then the state should be unchanged", func() {
				So(maxDistance(before, stateOf(q)), ShouldBeLessThan, tolerance)
			})
		})

		Convey("When qubit 1 is measured", func() {
			result, err := q.M(1)
			So(err, ShouldBeNil)

			Convey("Then both qubits should agree with the outcome", func() {
				want := uint64(0)
				if result {
					want = 3
				}
				p, err := q.ProbAll(bitcap.FromUint64(want))
				So(err, ShouldBeNil)
				So(float64(p), ShouldAlmostEqual, 1, tolerance)
				So(q.Metrics().Measurements, ShouldEqual, int64(1))
			})
		})
	})

	Convey("Given an entangled three-qubit state", t, func() {
		q := mustQBdt(3, 0)
		So(q.Mtrx(RotateY(0.8), 0), ShouldBeNil)
		So(q.H(2), ShouldBeNil)
		So(q.CNOT(0, 1), ShouldBeNil)
		So(q.MCMtrx([]int{1}, RotateX(0.5), 2), ShouldBeNil)

		ref := mustEngine(3, 0)
		So(ref.Mtrx(RotateY(0.8), 0), ShouldBeNil)
		So(ref.Mtrx(Hadamard(), 2), ShouldBeNil)
		So(ref.MCMtrx([]int{0}, PauliX(), 1), ShouldBeNil)
		So(ref.MCMtrx([]int{1}, RotateX(0.5), 2), ShouldBeNil)

		Convey("When the middle qubit is collapsed in both", func() {
			_, err := q.ForceM(1, true, true, true)
			So(err, ShouldBeNil)
			_, err = ref.ForceM(1, true, true, true)
			So(err, ShouldBeNil)

			Convey("Then the tree should match the flat engine up to phase", func() {
				d, err := q.SumSqrDiff(ref)
				So(err, ShouldBeNil)
				So(float64(d), ShouldAlmostEqual, 0, tolerance)
				So(localNormError(q.Root()), ShouldBeLessThan, tolerance)
			})
		})
	})
}

func TestMAll(t *testing.T) {
	Convey("Given a GHZ register on five qubits", t, func() {
		q := mustQBdt(5, 0)
		So(q.H(0), ShouldBeNil)
		for i := 1; i < 5; i++ {
			So(q.CNOT(0, i), ShouldBeNil)
		}

		Convey("When every qubit is measured", func() {
			perm := q.MAll()

			Convey("Then the outcome should be all zeros or all ones", func() {
				So(perm.Uint64(), ShouldBeIn, []uint64{0, 31})
			})

			Convey("Then the register should sit in that basis state", func() {
				p, err := q.ProbAll(perm)
				So(err, ShouldBeNil)
				So(float64(p), ShouldAlmostEqual, 1, tolerance)
			})
		})

		Convey("When sampled without collapse", func() {
			before := stateOf(q)
			perm := q.MAllOptionalCollapse(false)

			Convey("Then the state should be unchanged", func() {
				So(perm.Uint64(), ShouldBeIn, []uint64{0, 31})
				So(maxDistance(before, stateOf(q)), ShouldBeLessThan, tolerance)
			})
		})
	})
}

func TestSamplingDistribution(t *testing.T) {
	Convey("Given two qubits in uniform superposition", t, func() {
		q := mustQBdt(2, 0)
		So(q.H(0), ShouldBeNil)
		So(q.H(1), ShouldBeNil)

		Convey("When sampling many shots", func() {
			const shots = 20000
			counts, err := q.MultiShotMeasureMask([]bitcap.Int{bitcap.FromUint64(1), bitcap.FromUint64(2)}, shots)
			So(err, ShouldBeNil)

			Convey("Then each outcome should appear about a quarter of the time", func() {
				total := 0
				for k := uint64(0); k < 4; k++ {
					So(float64(counts[k])/shots, ShouldAlmostEqual, 0.25, 0.02)
					total += counts[k]
				}
				So(total, ShouldEqual, shots)
			})
		})
	})

	Convey("Given a Bell pair", t, func() {
		q := bell()

		Convey("When sampling only the second qubit", func() {
			counts, err := q.MultiShotMeasureMask([]bitcap.Int{bitcap.FromUint64(2)}, 10000)
			So(err, ShouldBeNil)

			Convey("Then it should read one about half the time", func() {
				So(float64(counts[1])/10000, ShouldAlmostEqual, 0.5, 0.03)
				So(counts[0]+counts[1], ShouldEqual, 10000)
			})
		})

		Convey("When samples are streamed", func() {
			var odd, total atomic.Int64
			So(q.ForEachSample(1000, func(perm bitcap.Int, _ int) {
				total.Add(1)
				if perm.OnesCount() == 1 {
					odd.Add(1)
				}
			}), ShouldBeNil)

			Convey("Then no sample should break the correlation", func() {
				So(total.Load(), ShouldEqual, int64(1000))
				So(odd.Load(), ShouldEqual, int64(0))
			})
		})

		Convey("When a negative shot count is asked for", func() {
			calls := 0
			err := q.ForEachSample(-1, func(bitcap.Int, int) { calls++ })
			_, maskErr := q.MultiShotMeasureMask([]bitcap.Int{bitcap.One}, -5)

			Convey("Then it should be rejected without sampling", func() {
				So(errors.Is(err, ErrInvalidRange), ShouldBeTrue)
				So(errors.Is(maskErr, ErrInvalidRange), ShouldBeTrue)
				So(calls, ShouldEqual, 0)
			})
		})

		Convey("When a clone is sampled into packed bits", func() {
			perm := q.SampleClone([]bitcap.Int{bitcap.FromUint64(2), bitcap.FromUint64(1)})

			Convey("Then both packed bits should agree", func() {
				So(perm.Uint64(), ShouldBeIn, []uint64{0, 3})
			})
		})
	})
}

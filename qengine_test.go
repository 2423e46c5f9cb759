package qbdt

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/davecgh/go-spew/spew"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/theapemachine/qbdt/bitcap"
)

func TestEngineGates(t *testing.T) {
	for _, sparse := range []bool{false, true} {
		Convey("Given a flat engine", t, func() {
			e := mustEngine(3, 0, WithSparseEngine(sparse))
			So(e.State().IsSparse(), ShouldEqual, sparse)

			Convey("When a GHZ circuit is applied", func() {
				So(e.Mtrx(Hadamard(), 0), ShouldBeNil)
				So(e.MCMtrx([]int{0}, PauliX(), 1), ShouldBeNil)
				So(e.MCMtrx([]int{1}, PauliX(), 2), ShouldBeNil)

				Convey("Then only the extremes should carry amplitude", func() {
					state := stateOf(e)
					h := cmplxR(sqrt1_2)
					want := []Amplitude{h, 0, 0, 0, 0, 0, 0, h}
					So(maxDistance(state, want), ShouldBeLessThan, tolerance)
				})

				Convey("Then measuring one qubit should fix the rest", func() {
					result, err := e.ForceM(2, true, true, true)
					So(err, ShouldBeNil)
					So(result, ShouldBeTrue)
					p, err := e.ProbAll(bitcap.FromUint64(7))
					So(err, ShouldBeNil)
					So(float64(p), ShouldAlmostEqual, 1, tolerance)
				})

				Convey("Then MAll should collapse onto an extreme", func() {
					perm := e.MAll()
					So(perm.Uint64(), ShouldBeIn, []uint64{0, 7})
					p, err := e.ProbAll(perm)
					So(err, ShouldBeNil)
					So(float64(p), ShouldAlmostEqual, 1, tolerance)
				})
			})

			Convey("When anti-controls are used", func() {
				So(e.MACMtrx([]int{0}, PauliX(), 2), ShouldBeNil)

				Convey("Then the target should flip on |0⟩", func() {
					p, err := e.ProbAll(bitcap.FromUint64(0b100))
					So(err, ShouldBeNil)
					So(float64(p), ShouldAlmostEqual, 1, tolerance)
				})
			})

			Convey("When two qubits are swapped", func() {
				So(e.Mtrx(PauliX(), 0), ShouldBeNil)
				So(e.Swap(0, 2), ShouldBeNil)

				Convey("Then the excitation should move", func() {
					p, err := e.ProbAll(bitcap.FromUint64(0b100))
					So(err, ShouldBeNil)
					So(float64(p), ShouldAlmostEqual, 1, tolerance)
				})
			})
		})
	}
}

func TestTreeMatchesEngine(t *testing.T) {
	Convey("Given random circuits on six qubits", t, func() {
		rng := rand.New(rand.NewPCG(3, 5))

		for round := 0; round < 8; round++ {
			q := mustQBdt(6, 0)
			e := mustEngine(6, 0)

			for range 40 {
				So(circuitStep(rng, 6, q, e), ShouldBeNil)
			}

			d, err := q.SumSqrDiff(e)
			So(err, ShouldBeNil)
			if float64(d) > tolerance {
				t.Log(round, spew.Sdump(stateOf(q), stateOf(e)))
			}
			So(float64(d), ShouldAlmostEqual, 0, tolerance)
			So(maxDistance(stateOf(q), stateOf(e)), ShouldBeLessThan, tolerance)
			So(localNormError(q.Root()), ShouldBeLessThan, tolerance)

			for i := range 6 {
				pq, err := q.Prob(i)
				So(err, ShouldBeNil)
				pe, err := e.Prob(i)
				So(err, ShouldBeNil)
				So(float64(pq), ShouldAlmostEqual, float64(pe), tolerance)
			}
		}
	})
}

func TestParity(t *testing.T) {
	Convey("Given a tree and an engine in the same state", t, func() {
		q := mustQBdt(4, 0)
		e := mustEngine(4, 0)
		rng := rand.New(rand.NewPCG(17, 19))
		for range 20 {
			So(circuitStep(rng, 4, q, e), ShouldBeNil)
		}
		mask := bitcap.FromUint64(0b1011)

		Convey("Then parity probabilities should agree", func() {
			pq, err := q.ProbParity(mask)
			So(err, ShouldBeNil)
			pe, err := e.ProbParity(mask)
			So(err, ShouldBeNil)
			So(float64(pq), ShouldAlmostEqual, float64(pe), tolerance)

			single, err := q.ProbParity(bitcap.FromUint64(0b10))
			So(err, ShouldBeNil)
			p1, err := q.Prob(1)
			So(err, ShouldBeNil)
			So(float64(single), ShouldAlmostEqual, float64(p1), tolerance)
		})

		Convey("When a parity rotation is applied to both", func() {
			So(q.UniformParityRZ(mask, 0.7), ShouldBeNil)
			So(e.UniformParityRZ(mask, 0.7), ShouldBeNil)

			Convey("Then the states should still agree", func() {
				So(maxDistance(stateOf(q), stateOf(e)), ShouldBeLessThan, tolerance)
			})
		})

		Convey("When a single-qubit parity rotation is applied", func() {
			So(q.UniformParityRZ(bitcap.FromUint64(0b100), 0.4), ShouldBeNil)
			So(e.UniformParityRZ(bitcap.FromUint64(0b100), 0.4), ShouldBeNil)

			Convey("Then it should stay deferred and still agree", func() {
				So(q.pending.Test(2), ShouldBeTrue)
				So(maxDistance(stateOf(q), stateOf(e)), ShouldBeLessThan, tolerance)
			})
		})
	})

	Convey("Given a GHZ state on three qubits", t, func() {
		q := mustQBdt(3, 0)
		So(q.H(0), ShouldBeNil)
		So(q.CNOT(0, 1), ShouldBeNil)
		So(q.CNOT(0, 2), ShouldBeNil)

		Convey("When the parity of the outer pair is forced even", func() {
			result, err := q.ForceMParity(bitcap.FromUint64(0b101), false, true)

			Convey("Then the state should be unchanged", func() {
				So(err, ShouldBeNil)
				So(result, ShouldBeFalse)
				p, err := q.ProbAll(bitcap.FromUint64(7))
				So(err, ShouldBeNil)
				So(float64(p), ShouldAlmostEqual, 0.5, tolerance)
			})
		})

		Convey("When the parity of all three is forced odd", func() {
			_, err := q.ForceMParity(bitcap.FromUint64(0b111), true, true)

			Convey("Then only |111⟩ should survive", func() {
				So(err, ShouldBeNil)
				p, err := q.ProbAll(bitcap.FromUint64(7))
				So(err, ShouldBeNil)
				So(float64(p), ShouldAlmostEqual, 1, tolerance)
			})
		})
	})
}

func TestEngineNormalize(t *testing.T) {
	Convey("Given an engine with a scaled amplitude", t, func() {
		e := mustEngine(2, 0)
		So(e.SetAmplitude(bitcap.FromUint64(3), 1), ShouldBeNil)
		e.Normalize()

		Convey("Then probabilities should sum to one", func() {
			probs := make([]Real, 4)
			So(e.GetProbs(probs), ShouldBeNil)
			So(float64(probs[0]), ShouldAlmostEqual, 0.5, tolerance)
			So(float64(probs[3]), ShouldAlmostEqual, 0.5, tolerance)
		})

		Convey("Then a clone should be independent", func() {
			c := e.Clone()
			So(c.Mtrx(PauliX(), 0), ShouldBeNil)
			amp, err := e.GetAmplitude(bitcap.Zero)
			So(err, ShouldBeNil)
			So(distance(amp, cmplxR(Real(1/math.Sqrt2))), ShouldBeLessThan, tolerance)
		})
	})
}

package qbdt

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

/*
StateVector stores the amplitudes of a flat engine. Writes to distinct
indices may happen concurrently.
*/
type StateVector interface {
	Read(i uint64) Amplitude
	Write(i uint64, amp Amplitude)
	Len() uint64
	Clear()
	// NonZero calls fn for every stored non-zero amplitude in index order.
	NonZero(fn func(i uint64, amp Amplitude))
	IsSparse() bool
}

func newStateVector(size uint64, sparse bool) StateVector {
	if sparse {
		return NewSparseStateVector(size)
	}
	return NewDenseStateVector(size)
}

// DenseStateVector is a plain amplitude slice.
type DenseStateVector struct {
	amps []Amplitude
}

func NewDenseStateVector(size uint64) *DenseStateVector {
	return &DenseStateVector{amps: make([]Amplitude, size)}
}

func (s *DenseStateVector) Read(i uint64) Amplitude       { return s.amps[i] }
func (s *DenseStateVector) Write(i uint64, amp Amplitude) { s.amps[i] = amp }
func (s *DenseStateVector) Len() uint64                   { return uint64(len(s.amps)) }
func (s *DenseStateVector) IsSparse() bool                { return false }

func (s *DenseStateVector) Clear() {
	clear(s.amps)
}

func (s *DenseStateVector) NonZero(fn func(i uint64, amp Amplitude)) {
	for i, amp := range s.amps {
		if amp != 0 {
			fn(uint64(i), amp)
		}
	}
}

/*
SparseStateVector keeps only non-zero amplitudes, with a roaring bitmap of
the occupied indices for ordered iteration.
*/
type SparseStateVector struct {
	mu    sync.RWMutex
	size  uint64
	amps  map[uint64]Amplitude
	index *roaring64.Bitmap
}

func NewSparseStateVector(size uint64) *SparseStateVector {
	return &SparseStateVector{
		size:  size,
		amps:  make(map[uint64]Amplitude),
		index: roaring64.New(),
	}
}

func (s *SparseStateVector) Read(i uint64) Amplitude {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.amps[i]
}

func (s *SparseStateVector) Write(i uint64, amp Amplitude) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amp == 0 {
		if _, ok := s.amps[i]; ok {
			delete(s.amps, i)
			s.index.Remove(i)
		}
		return
	}
	if _, ok := s.amps[i]; !ok {
		s.index.Add(i)
	}
	s.amps[i] = amp
}

func (s *SparseStateVector) Len() uint64    { return s.size }
func (s *SparseStateVector) IsSparse() bool { return true }

func (s *SparseStateVector) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.amps)
	s.index.Clear()
}

// Occupied is the number of stored amplitudes.
func (s *SparseStateVector) Occupied() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.GetCardinality()
}

func (s *SparseStateVector) NonZero(fn func(i uint64, amp Amplitude)) {
	s.mu.RLock()
	indices := s.index.ToArray()
	amps := make([]Amplitude, len(indices))
	for k, i := range indices {
		amps[k] = s.amps[i]
	}
	s.mu.RUnlock()

	for k, i := range indices {
		fn(i, amps[k])
	}
}

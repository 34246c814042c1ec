// Package bloom implements a fixed-size Bloom filter used for negative
// caching and cheap document-existence pre-checks.
//
// The filter is sized from an expected cardinality and a target false
// positive rate. It is not resizable; owners rebuild it when the estimated
// false positive rate exceeds their ceiling.
package bloom

import (
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Filter is a thread-safe Bloom filter.
// Contains never returns false for an inserted key.
type Filter struct {
	mu        sync.RWMutex
	bits      []uint64
	bitCount  uint64
	hashCount uint32
	inserted  uint64
}

// New creates a filter sized for expectedItems with the given target
// false positive rate. Out-of-range inputs are clamped to sane minimums.
func New(expectedItems int, falsePositiveRate float64) *Filter {
	if expectedItems < 1 {
		expectedItems = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	ln2 := math.Ln2
	m := uint64(math.Ceil(-float64(expectedItems) * math.Log(falsePositiveRate) / (ln2 * ln2)))
	if m < 64 {
		m = 64
	}
	k := uint32(math.Ceil(float64(m) / float64(expectedItems) * ln2))
	if k < 1 {
		k = 1
	}

	return &Filter{
		bits:      make([]uint64, (m+63)/64),
		bitCount:  m,
		hashCount: k,
	}
}

// hash derives the i-th bit position for key. The two halves of a seeded
// xxhash are combined with the classic double-hashing scheme so that each
// seed yields an independent position. Deterministic across runs.
func (f *Filter) hash(key string, seed uint32) uint64 {
	h1 := xxhash.Sum64String(key)
	h2 := xxhash.Sum64(append([]byte(key), byte(seed), byte(seed>>8), byte(seed>>16), byte(seed>>24)))
	return (h1 + uint64(seed)*h2) % f.bitCount
}

// Insert adds a key to the filter.
func (f *Filter) Insert(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := uint32(0); i < f.hashCount; i++ {
		pos := f.hash(key, i)
		f.bits[pos/64] |= 1 << (pos % 64)
	}
	f.inserted++
}

// Contains reports whether key may have been inserted.
// False means definitely absent.
func (f *Filter) Contains(key string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for i := uint32(0); i < f.hashCount; i++ {
		pos := f.hash(key, i)
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// EstimatedFPR returns the expected false positive rate given the number
// of keys inserted so far: (1 - e^(-k*n/m))^k.
func (f *Filter) EstimatedFPR() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	k := float64(f.hashCount)
	n := float64(f.inserted)
	m := float64(f.bitCount)
	return math.Pow(1-math.Exp(-k*n/m), k)
}

// Len returns the number of Insert calls.
func (f *Filter) Len() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.inserted
}

// BitSize returns the size of the bit array.
func (f *Filter) BitSize() uint64 {
	return f.bitCount
}

// HashCount returns the number of hash functions.
func (f *Filter) HashCount() uint32 {
	return f.hashCount
}

// Clear resets the filter to empty without resizing.
func (f *Filter) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.bits {
		f.bits[i] = 0
	}
	f.inserted = 0
}

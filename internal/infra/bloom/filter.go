// Package bloom implements the ledger's membership index: a fixed-size bit
// array probed by k projections of the key.
//
// MayContain never returns false for a key that was added. A true result only
// means "possibly present"; callers must confirm against the ledger before
// trusting it.
package bloom

import (
	"errors"
	"math"
	"math/bits"
	"sync"

	"memochain/internal/domain"

	"github.com/cespare/xxhash/v2"
)

const (
	DefaultExpectedItems     = 100000
	DefaultFalsePositiveRate = 0.01
)

// sizingMargin scales the rate the bit array is sized for; the requested rate
// is a ceiling at capacity.
const sizingMargin = 0.6

var ErrInvalidParams = errors.New("bloom: invalid parameters")

type Filter struct {
	mu    sync.RWMutex
	words []uint64
	m     uint64
	k     uint64
	items uint64

	expected uint64
	targetFP float64
}

// New sizes a filter so that expectedItems keys stay at or below the target
// false-positive rate.
func New(expectedItems uint64, falsePositiveRate float64) (*Filter, error) {
	if expectedItems == 0 || falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		return nil, ErrInvalidParams
	}
	m, k := OptimalParams(expectedItems, falsePositiveRate*sizingMargin)
	f := NewWithSize(m, k)
	f.expected = expectedItems
	f.targetFP = falsePositiveRate
	return f, nil
}

// NewWithSize builds a filter with exactly m bits (rounded up to a word) and k probes.
func NewWithSize(m, k uint64) *Filter {
	if m < 64 {
		m = 64
	}
	if k == 0 {
		k = 1
	}
	words := (m + 63) / 64
	return &Filter{
		words: make([]uint64, words),
		m:     words * 64,
		k:     k,
	}
}

// OptimalParams returns m = ceil(-n ln p / ln2^2) and k = round(m/n ln2).
func OptimalParams(n uint64, p float64) (m, k uint64) {
	ln2 := math.Ln2
	mf := math.Ceil(-float64(n) * math.Log(p) / (ln2 * ln2))
	m = uint64(mf)
	kf := math.Round(mf / float64(n) * ln2)
	if kf < 1 {
		kf = 1
	}
	return m, uint64(kf)
}

func (f *Filter) Add(key string) {
	h1, h2 := projections(key)
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := uint64(0); i < f.k; i++ {
		bit := (h1 + i*h2) % f.m
		f.words[bit>>6] |= 1 << (bit & 63)
	}
	f.items++
}

func (f *Filter) MayContain(key string) bool {
	h1, h2 := projections(key)
	f.mu.RLock()
	defer f.mu.RUnlock()
	for i := uint64(0); i < f.k; i++ {
		bit := (h1 + i*h2) % f.m
		if f.words[bit>>6]&(1<<(bit&63)) == 0 {
			return false
		}
	}
	return true
}

// Reset clears every bit in place, keeping the geometry.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.words {
		f.words[i] = 0
	}
	f.items = 0
}

// CloneEmpty returns a filter with the same geometry and no keys.
func (f *Filter) CloneEmpty() *Filter {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return &Filter{
		words:    make([]uint64, len(f.words)),
		m:        f.m,
		k:        f.k,
		expected: f.expected,
		targetFP: f.targetFP,
	}
}

func (f *Filter) Stats() domain.IndexStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var set uint64
	for _, w := range f.words {
		set += uint64(bits.OnesCount64(w))
	}
	load := float64(set) / float64(f.m)
	return domain.IndexStats{
		Bits:            f.m,
		HashCount:       f.k,
		SetBits:         set,
		LoadFactor:      load,
		ItemsAdded:      f.items,
		ExpectedItems:   f.expected,
		TargetFPRate:    f.targetFP,
		EstimatedFPRate: math.Pow(load, float64(f.k)),
	}
}

// projections derives the two base hashes for double hashing
// (g_i = h1 + i*h2). h2 is forced odd so the probe sequence never degenerates.
func projections(key string) (uint64, uint64) {
	h1 := xxhash.Sum64String(key)
	d := xxhash.New()
	_, _ = d.WriteString("memochain/bloom/h2")
	_, _ = d.WriteString(key)
	h2 := d.Sum64() | 1
	return h1, h2
}

package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/haukened/rr-matrix/internal/matrix/repos/rules"
)

// factory implements rules.BloomFactory using the package sizer.
type factory struct {
	sizer rules.BloomSizer
}

// NewFactory returns a BloomFactory that sizes filters from capacity and FP rate.
func NewFactory() rules.BloomFactory { return factory{sizer: NewSizer()} }

// New constructs a filter sized for capacity hostnames at the target
// false-positive rate.
func (f factory) New(capacity uint64, fpRate float64) rules.BloomFilter {
	m, k := f.sizer.Size(capacity, fpRate)
	return &filter{bf: bitsbloom.New(uint(m), uint(k))}
}

package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"
	"github.com/haukened/rr-matrix/internal/matrix/repos/rules"
)

// filter adapts a bits-and-blooms filter to rules.BloomFilter. The matrix is
// single-writer, so no locking happens here.
type filter struct {
	bf *bitsbloom.BloomFilter
}

func (f *filter) Add(key []byte) {
	f.bf.Add(key)
}

func (f *filter) MightContain(key []byte) bool {
	return f.bf.Test(key)
}

var _ rules.BloomFilter = (*filter)(nil)

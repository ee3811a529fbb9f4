package rules

import "github.com/haukened/rr-matrix/internal/matrix/domain"

// Reader is the read surface the evaluator and reconciler need from a layer.
type Reader interface {
	// Cell returns the explicit state at k. ok is false when no rule exists,
	// which is distinct from an explicit Graylist.
	Cell(k domain.CellKey) (h domain.Hue, ok bool)
	// Switch returns the explicit switch of scope.
	Switch(scope string) (enabled bool, ok bool)
}

// Writer is the key-level write surface used to reconcile layers.
type Writer interface {
	Reader
	SetRule(r domain.Rule) error
	RemoveKey(k domain.CellKey) bool
	SetSwitch(scope string, enabled bool) error
	RemoveSwitch(scope string) bool
}

// BloomFilter is the minimal interface the matrix needs for its hostname
// prefilter. False positives are allowed; false negatives are not.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds filters sized for a capacity and target FP rate.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// BloomSizer computes Bloom filter parameters from capacity (n) and target FP
// rate (p): m bits and k hash functions.
type BloomSizer interface {
	Size(n uint64, p float64) (m uint64, k uint8)
}

// StoreStats captures counts and metadata of a persisted layer.
type StoreStats struct {
	Cells       uint64
	Switches    uint64
	Version     uint64
	UpdatedUnix int64 // seconds since epoch
}

// Store persists one layer. RebuildAll replaces the stored layer atomically;
// either every rule is written or nothing changes.
type Store interface {
	Load() ([]domain.Rule, []domain.SwitchRule, error)
	RebuildAll(rules []domain.Rule, switches []domain.SwitchRule, version uint64, updatedUnix int64) error
	Purge() error
	Stats() StoreStats
	Close() error
}

var (
	_ Writer = (*Matrix)(nil)
)

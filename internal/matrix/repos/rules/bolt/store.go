package bolt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/rr-matrix/internal/matrix/domain"
	"github.com/haukened/rr-matrix/internal/matrix/repos/rules"
)

var (
	bucketCells    = []byte("cells")
	bucketSwitches = []byte("switches")
	bucketMeta     = []byte("meta")

	keyVersion = []byte("version")
	keyUpdated = []byte("updated")
)

// Cell values are a single hue byte; switch values a single 0/1 byte.
const (
	switchOff byte = 0
	switchOn  byte = 1
)

// boltStore implements rules.Store using bbolt. Cell keys are the rule-text
// key "scope hostname type".
type boltStore struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (rules.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(ensureBuckets); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func ensureBuckets(tx *bbolt.Tx) error {
	for _, name := range [][]byte{bucketCells, bucketSwitches, bucketMeta} {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return err
		}
	}
	return nil
}

func (s *boltStore) Close() error { return s.db.Close() }

// Load reads the stored layer. Entries that no longer decode are skipped.
func (s *boltStore) Load() ([]domain.Rule, []domain.SwitchRule, error) {
	var (
		out      []domain.Rule
		switches []domain.SwitchRule
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketCells); b != nil {
			if err := b.ForEach(func(k, v []byte) error {
				if r, ok := decodeCell(k, v); ok {
					out = append(out, r)
				}
				return nil
			}); err != nil {
				return err
			}
		}
		if b := tx.Bucket(bucketSwitches); b != nil {
			return b.ForEach(func(k, v []byte) error {
				if len(v) != 1 {
					return nil
				}
				sw, err := domain.NewSwitchRule(string(k), v[0] == switchOn)
				if err == nil {
					switches = append(switches, sw)
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return out, switches, nil
}

// RebuildAll replaces the stored layer in one transaction.
func (s *boltStore) RebuildAll(in []domain.Rule, switches []domain.SwitchRule, version uint64, updatedUnix int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := dropBuckets(tx); err != nil {
			return err
		}
		if err := ensureBuckets(tx); err != nil {
			return err
		}
		cells := tx.Bucket(bucketCells)
		for _, r := range in {
			if !r.Hue.Storable() {
				return fmt.Errorf("%w: %s", domain.ErrInvalidHue, r.CellKey)
			}
			if err := cells.Put([]byte(r.CellKey.String()), []byte{byte(r.Hue)}); err != nil {
				return err
			}
		}
		sb := tx.Bucket(bucketSwitches)
		for _, sw := range switches {
			v := switchOff
			if sw.Enabled {
				v = switchOn
			}
			if err := sb.Put([]byte(sw.Scope), []byte{v}); err != nil {
				return err
			}
		}
		return putMeta(tx.Bucket(bucketMeta), version, updatedUnix)
	})
}

// Purge removes every stored rule and the metadata.
func (s *boltStore) Purge() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := dropBuckets(tx); err != nil {
			return err
		}
		return ensureBuckets(tx)
	})
}

func (s *boltStore) Stats() rules.StoreStats {
	st := rules.StoreStats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketCells); b != nil {
			st.Cells = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketSwitches); b != nil {
			st.Switches = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketMeta); b != nil {
			if v := b.Get(keyVersion); len(v) == 8 {
				st.Version = binary.BigEndian.Uint64(v)
			}
			if v := b.Get(keyUpdated); len(v) == 8 {
				st.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
			}
		}
		return nil
	})
	return st
}

func dropBuckets(tx *bbolt.Tx) error {
	for _, name := range [][]byte{bucketCells, bucketSwitches, bucketMeta} {
		if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
	}
	return nil
}

func putMeta(b *bbolt.Bucket, version uint64, updatedUnix int64) error {
	vbuf := make([]byte, 8)
	ubuf := make([]byte, 8)
	binary.BigEndian.PutUint64(vbuf, version)
	binary.BigEndian.PutUint64(ubuf, uint64(updatedUnix))
	if err := b.Put(keyVersion, vbuf); err != nil {
		return err
	}
	return b.Put(keyUpdated, ubuf)
}

func decodeCell(k, v []byte) (domain.Rule, bool) {
	if len(v) != 1 {
		return domain.Rule{}, false
	}
	parts := strings.Fields(string(k))
	if len(parts) != 3 {
		return domain.Rule{}, false
	}
	t, err := domain.ParseRequestType(parts[2])
	if err != nil {
		return domain.Rule{}, false
	}
	r, err := domain.NewRule(parts[0], parts[1], t, domain.Hue(v[0]))
	if err != nil {
		return domain.Rule{}, false
	}
	return r, true
}

var _ rules.Store = (*boltStore)(nil)

package records

import (
	"bytes"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"pkg.jsn.cam/diskreduce/pkg/storage"
)

var (
	documentsBucket = []byte("documents")
	finalBucket     = []byte("final")
)

// Store persists results, the document index and final results. All methods
// run inside a caller-provided transaction so that several of them can be
// committed together.
type Store[V any] struct {
	codec storage.Codec
}

// NewStore returns a store encoding records with codec.
func NewStore[V any](codec storage.Codec) *Store[V] {
	return &Store[V]{codec: codec}
}

// Init creates every storage bucket the store uses.
func (s *Store[V]) Init(tx storage.Transaction) error {
	names := [][]byte{documentsBucket, finalBucket}
	for _, level := range Levels {
		names = append(names, areaBucket(Pending, level), areaBucket(Processed, level))
	}
	for _, name := range names {
		if err := tx.CreateBucket(name); err != nil {
			return errors.Wrapf(err, "create bucket %s", name)
		}
	}
	return nil
}

func (s *Store[V]) area(tx storage.Transaction, area Area, level Level) (storage.Bucket, error) {
	if err := level.Validate(); err != nil {
		return nil, err
	}
	return storage.MustBucket(tx, areaBucket(area, level))
}

// Put writes r into area under (r.Key, r.Bucket, r.ID) and records its location.
func (s *Store[V]) Put(tx storage.Transaction, area Area, r *Result[V]) error {
	if err := ValidateKey(r.Key); err != nil {
		return err
	}
	b, err := s.area(tx, area, r.Level)
	if err != nil {
		return err
	}

	data, err := s.codec.Marshal(r)
	if err != nil {
		return errors.Wrapf(err, "encode result %s/%d/%s", r.Key, r.Bucket, r.ID)
	}

	k := resultKey(r.Key, r.Bucket, r.ID)
	if err := b.Put(k, data); err != nil {
		return errors.Wrapf(err, "write result %q", k)
	}
	r.Location = Location{area: area, level: r.Level, storageKey: k}
	return nil
}

// Get reads the result at loc. A missing record yields nil without error.
func (s *Store[V]) Get(tx storage.Transaction, loc Location) (*Result[V], error) {
	b, err := s.area(tx, loc.area, loc.level)
	if err != nil {
		return nil, err
	}
	data, err := b.Get(loc.storageKey)
	if err != nil {
		return nil, errors.Wrapf(err, "read result %s", loc)
	}
	if data == nil {
		return nil, nil
	}
	return s.decode(loc, data)
}

func (s *Store[V]) decode(loc Location, data []byte) (*Result[V], error) {
	var r Result[V]
	if err := s.codec.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrapf(err, "decode result %s", loc)
	}
	r.Location = Location{area: loc.area, level: loc.level, storageKey: bytes.Clone(loc.storageKey)}
	return &r, nil
}

// Delete removes the record at loc. Deleting a missing record is a no-op.
func (s *Store[V]) Delete(tx storage.Transaction, loc Location) error {
	b, err := s.area(tx, loc.area, loc.level)
	if err != nil {
		return err
	}
	return b.Delete(loc.storageKey)
}

// Move relocates the record at loc into another area of the same level and
// returns its new location. Moving a missing record is a no-op.
func (s *Store[V]) Move(tx storage.Transaction, loc Location, to Area) (Location, error) {
	moved := Location{area: to, level: loc.level, storageKey: loc.storageKey}
	if loc.area == to {
		return moved, nil
	}

	from, err := s.area(tx, loc.area, loc.level)
	if err != nil {
		return Location{}, err
	}
	dst, err := s.area(tx, to, loc.level)
	if err != nil {
		return Location{}, err
	}

	data, err := from.Get(loc.storageKey)
	if err != nil {
		return Location{}, errors.Wrapf(err, "read %s for move", loc)
	}
	if data == nil {
		return moved, nil
	}
	if err := dst.Put(loc.storageKey, bytes.Clone(data)); err != nil {
		return Location{}, errors.Wrapf(err, "move %s to %s", loc, to)
	}
	if err := from.Delete(loc.storageKey); err != nil {
		return Location{}, errors.Wrapf(err, "remove %s after move", loc)
	}
	return moved, nil
}

// List decodes the results of key stored in area at level, in bucket order.
// When match is not nil only buckets it accepts are decoded.
func (s *Store[V]) List(tx storage.Transaction, area Area, level Level, key string, match func(bucket int) bool) ([]*Result[V], error) {
	b, err := s.area(tx, area, level)
	if err != nil {
		return nil, err
	}

	var out []*Result[V]
	err = b.ForEachPrefix(KeyPrefix(key), func(k, v []byte) error {
		_, bucket, _, err := parseResultKey(k)
		if err != nil {
			return err
		}
		if match != nil && !match(bucket) {
			return nil
		}
		r, err := s.decode(Location{area: area, level: level, storageKey: k}, v)
		if err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// ListRange decodes the results of key stored in area at level whose bucket
// lies in [lo, hi), in bucket order.
func (s *Store[V]) ListRange(tx storage.Transaction, area Area, level Level, key string, lo, hi int) ([]*Result[V], error) {
	b, err := s.area(tx, area, level)
	if err != nil {
		return nil, err
	}

	var out []*Result[V]
	err = b.ForEachRange(BucketKey(key, lo), BucketKey(key, hi), func(k, v []byte) error {
		r, err := s.decode(Location{area: area, level: level, storageKey: k}, v)
		if err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// CountBucket counts the results of (key, bucket) stored in area at level
// without decoding them.
func (s *Store[V]) CountBucket(tx storage.Transaction, area Area, level Level, key string, bucket int) (int, error) {
	b, err := s.area(tx, area, level)
	if err != nil {
		return 0, err
	}
	n := 0
	err = b.ForEachPrefix(append(BucketKey(key, bucket), sep...), func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

// DeleteBucket removes every result of (key, bucket) at level from both areas.
func (s *Store[V]) DeleteBucket(tx storage.Transaction, level Level, key string, bucket int) (int, error) {
	prefix := append(BucketKey(key, bucket), sep...)
	deleted := 0
	for _, area := range []Area{Pending, Processed} {
		b, err := s.area(tx, area, level)
		if err != nil {
			return deleted, err
		}
		keys, err := collectKeys(b, prefix)
		if err != nil {
			return deleted, err
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return deleted, errors.Wrapf(err, "delete %s_%d/%q", area, int(level), k)
			}
			deleted++
		}
	}
	return deleted, nil
}

// IndexDocument records that the level-0 result r belongs to its document.
func (s *Store[V]) IndexDocument(tx storage.Transaction, r *Result[V]) error {
	if err := ValidateDocumentID(r.DocumentID); err != nil {
		return err
	}
	if err := ValidateKey(r.Key); err != nil {
		return err
	}
	b, err := storage.MustBucket(tx, documentsBucket)
	if err != nil {
		return err
	}
	return b.Put(documentKey(r.DocumentID, r.Key), resultKey(r.Key, r.Bucket, r.ID))
}

// TakeDocument removes the index entries of a document and returns the
// level-0 results they pointed to, wherever they currently are. Entries whose
// record no longer exists are dropped silently.
func (s *Store[V]) TakeDocument(tx storage.Transaction, documentID string) ([]*Result[V], error) {
	if err := ValidateDocumentID(documentID); err != nil {
		return nil, err
	}
	docs, err := storage.MustBucket(tx, documentsBucket)
	if err != nil {
		return nil, err
	}

	var indexKeys, targets [][]byte
	err = docs.ForEachPrefix(documentPrefix(documentID), func(k, v []byte) error {
		indexKeys = append(indexKeys, bytes.Clone(k))
		targets = append(targets, bytes.Clone(v))
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []*Result[V]
	for i, target := range targets {
		for _, area := range []Area{Pending, Processed} {
			r, err := s.Get(tx, Location{area: area, level: LevelMap, storageKey: target})
			if err != nil {
				return nil, err
			}
			if r != nil {
				out = append(out, r)
				break
			}
		}
		if err := docs.Delete(indexKeys[i]); err != nil {
			return nil, errors.Wrapf(err, "unindex %q", indexKeys[i])
		}
	}
	return out, nil
}

// GetFinal returns the final result of key, or nil if there is none.
func (s *Store[V]) GetFinal(tx storage.Transaction, key string) (*Final[V], error) {
	b, err := storage.MustBucket(tx, finalBucket)
	if err != nil {
		return nil, err
	}
	data, err := b.Get([]byte(key))
	if err != nil {
		return nil, errors.Wrapf(err, "read final result %q", key)
	}
	if data == nil {
		return nil, nil
	}
	var f Final[V]
	if err := s.codec.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "decode final result %q", key)
	}
	return &f, nil
}

// PutFinal replaces the final result of f.Key.
func (s *Store[V]) PutFinal(tx storage.Transaction, f *Final[V]) error {
	if err := ValidateKey(f.Key); err != nil {
		return err
	}
	b, err := storage.MustBucket(tx, finalBucket)
	if err != nil {
		return err
	}
	data, err := s.codec.Marshal(f)
	if err != nil {
		return errors.Wrapf(err, "encode final result %q", f.Key)
	}
	return b.Put([]byte(f.Key), data)
}

// DeleteFinal removes the final result of key. Returns whether one existed.
func (s *Store[V]) DeleteFinal(tx storage.Transaction, key string) (bool, error) {
	b, err := storage.MustBucket(tx, finalBucket)
	if err != nil {
		return false, err
	}
	data, err := b.Get([]byte(key))
	if err != nil {
		return false, errors.Wrapf(err, "read final result %q", key)
	}
	if data == nil {
		return false, nil
	}
	return true, b.Delete([]byte(key))
}

// FinalKeys lists the grouping keys that have a final result, sorted.
func (s *Store[V]) FinalKeys(tx storage.Transaction) ([]string, error) {
	b, err := storage.MustBucket(tx, finalBucket)
	if err != nil {
		return nil, err
	}
	var keys []string
	err = b.ForEach(func(k, _ []byte) error {
		keys = append(keys, string(k))
		return nil
	})
	return keys, err
}

// DeleteKey removes every result, index entry and the final result of key.
func (s *Store[V]) DeleteKey(tx storage.Transaction, key string) (int, error) {
	if err := ValidateKey(key); err != nil {
		return 0, err
	}

	deleted := 0
	for _, level := range Levels {
		for _, area := range []Area{Pending, Processed} {
			b, err := s.area(tx, area, level)
			if err != nil {
				return deleted, err
			}
			keys, err := collectKeys(b, KeyPrefix(key))
			if err != nil {
				return deleted, err
			}
			for _, k := range keys {
				if err := b.Delete(k); err != nil {
					return deleted, err
				}
				deleted++
			}
		}
	}

	docs, err := storage.MustBucket(tx, documentsBucket)
	if err != nil {
		return deleted, err
	}
	var indexKeys [][]byte
	suffix := []byte(sep + key)
	err = docs.ForEach(func(k, _ []byte) error {
		if bytes.HasSuffix(k, suffix) && !strings.Contains(string(k[:len(k)-len(suffix)]), sep) {
			indexKeys = append(indexKeys, bytes.Clone(k))
		}
		return nil
	})
	if err != nil {
		return deleted, err
	}
	for _, k := range indexKeys {
		if err := docs.Delete(k); err != nil {
			return deleted, err
		}
	}

	if _, err := s.DeleteFinal(tx, key); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// Counts reports how many records each storage bucket of the store holds.
func (s *Store[V]) Counts(tx storage.Transaction) (map[string]int, error) {
	names := []string{string(documentsBucket), string(finalBucket)}
	for _, level := range Levels {
		names = append(names, string(areaBucket(Pending, level)), string(areaBucket(Processed, level)))
	}
	sort.Strings(names)

	counts := make(map[string]int, len(names))
	for _, name := range names {
		b, err := storage.MustBucket(tx, []byte(name))
		if err != nil {
			return nil, err
		}
		n := 0
		if err := b.ForEach(func(_, _ []byte) error {
			n++
			return nil
		}); err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, nil
}

func collectKeys(b storage.Bucket, prefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := b.ForEachPrefix(prefix, func(k, _ []byte) error {
		keys = append(keys, bytes.Clone(k))
		return nil
	})
	return keys, err
}

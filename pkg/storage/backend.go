package storage

import (
	"bytes"

	"github.com/pkg/errors"
)

// ErrBucketNotFound is returned when an operation names a missing bucket.
var ErrBucketNotFound = errors.New("bucket not found")

// Backend is an ordered key-value store with named buckets. Every access goes
// through Update or View so that the callers can group several writes.
//
// Iteration is always in ascending byte order of the keys, regardless of the
// implementation. Callbacks passed to ForEach must not modify the bucket they
// iterate; collect keys first and mutate afterwards.
type Backend interface {
	Update(fn func(tx Transaction) error) error
	View(fn func(tx Transaction) error) error
	Close() error
}

// Sizer is implemented by backends that can report their on-disk footprint.
type Sizer interface {
	Size() (int64, error)
}

// Compacter is implemented by backends that can reclaim free space.
type Compacter interface {
	Compact() error
}

// Transaction provides access to the buckets of a backend.
// Only the bbolt backend is atomic; the others apply writes in order as they
// are issued, with concurrent Update calls serialised.
type Transaction interface {
	CreateBucket(name []byte) error
	DeleteBucket(name []byte) error
	// Bucket returns nil when the bucket does not exist.
	Bucket(name []byte) Bucket
	ForEachBucket(fn func(name []byte) error) error
}

// Bucket provides access to a single bucket within a transaction. Slices
// passed to callbacks are only valid until the callback returns.
type Bucket interface {
	Put(key, value []byte) error
	// Get returns nil for a missing key; an error means the key could not be read.
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	ForEach(fn func(k, v []byte) error) error
	// ForEachPrefix visits, in key order, the entries whose key starts with prefix.
	ForEachPrefix(prefix []byte, fn func(k, v []byte) error) error
	// ForEachRange visits, in key order, the entries with start <= key < end.
	ForEachRange(start, end []byte, fn func(k, v []byte) error) error
}

// MustBucket returns the named bucket or ErrBucketNotFound.
func MustBucket(tx Transaction, name []byte) (Bucket, error) {
	b := tx.Bucket(name)
	if b == nil {
		return nil, errors.Wrapf(ErrBucketNotFound, "%s", name)
	}
	return b, nil
}

// CreateBuckets creates the named buckets in one write transaction.
func CreateBuckets(b Backend, names ...[]byte) error {
	return b.Update(func(tx Transaction) error {
		for _, name := range names {
			if err := tx.CreateBucket(name); err != nil {
				return errors.Wrapf(err, "create bucket %s", name)
			}
		}
		return nil
	})
}

// Put writes a single entry in its own write transaction.
func Put(b Backend, bucket, key, value []byte) error {
	return b.Update(func(tx Transaction) error {
		bkt, err := MustBucket(tx, bucket)
		if err != nil {
			return err
		}
		return bkt.Put(key, value)
	})
}

// Get reads a single entry. The returned slice is owned by the caller; a
// missing key yields nil.
func Get(b Backend, bucket, key []byte) ([]byte, error) {
	var value []byte
	err := b.View(func(tx Transaction) error {
		bkt, err := MustBucket(tx, bucket)
		if err != nil {
			return err
		}
		v, err := bkt.Get(key)
		if err != nil {
			return errors.Wrapf(err, "read %s/%q", bucket, key)
		}
		value = bytes.Clone(v)
		return nil
	})
	return value, err
}

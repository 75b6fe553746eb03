package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// BboltBackend implements Backend on a single bbolt file. It is the only
// backend whose Update is atomic.
type BboltBackend struct {
	db   *bolt.DB
	path string
	opts *bolt.Options
}

// BboltOption adjusts how the database file is opened.
type BboltOption func(*bolt.Options)

// WithOpenTimeout bounds the wait for the file lock held by another process.
func WithOpenTimeout(d time.Duration) BboltOption {
	return func(o *bolt.Options) { o.Timeout = d }
}

// WithNoSync skips fsync on commit. Only safe for scratch data.
func WithNoSync() BboltOption {
	return func(o *bolt.Options) { o.NoSync = true }
}

// NewBboltBackend opens, creating if needed, the database at dbPath.
func NewBboltBackend(dbPath string, options ...BboltOption) (*BboltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create db directory for %q", dbPath)
	}

	opts := &bolt.Options{Timeout: 5 * time.Second, FreelistType: bolt.FreelistMapType}
	for _, o := range options {
		o(opts)
	}

	db, err := bolt.Open(dbPath, 0o600, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open bbolt database %q", dbPath)
	}

	return &BboltBackend{db: db, path: dbPath, opts: opts}, nil
}

// Update runs fn in a read-write transaction, rolled back if fn fails.
func (b *BboltBackend) Update(fn func(tx Transaction) error) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return fn(&bboltTransaction{tx: tx})
	})
}

// View runs fn in a read-only transaction.
func (b *BboltBackend) View(fn func(tx Transaction) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		return fn(&bboltTransaction{tx: tx})
	})
}

// Size reports the size of the database file.
func (b *BboltBackend) Size() (int64, error) {
	info, err := os.Stat(b.path)
	if err != nil {
		return 0, errors.Wrap(err, "stat database")
	}
	return info.Size(), nil
}

// renameFile is replaced in tests.
var renameFile = os.Rename

// compactTxSize caps the bytes copied per transaction during Compact.
const compactTxSize = 64 << 10

// Compact rewrites the database into a fresh file, dropping the free pages
// left behind by deleted results, and swaps it in place.
func (b *BboltBackend) Compact() error {
	target := b.path + ".compact"
	dst, err := bolt.Open(target, 0o600, &bolt.Options{NoSync: true})
	if err != nil {
		return errors.Wrap(err, "open compaction target")
	}

	if err := bolt.Compact(dst, b.db, compactTxSize); err != nil {
		dst.Close()
		os.Remove(target)
		return errors.Wrap(err, "copy live pages")
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(target)
		return errors.Wrap(err, "sync compacted database")
	}
	if err := dst.Close(); err != nil {
		os.Remove(target)
		return errors.Wrap(err, "close compacted database")
	}

	if err := b.db.Close(); err != nil {
		os.Remove(target)
		return errors.Wrap(err, "close database")
	}

	swapErr := renameFile(target, b.path)
	if swapErr != nil {
		os.Remove(target)
	}

	// Reopen whichever file is now at b.path, the original one if the swap failed.
	db, err := bolt.Open(b.path, 0o600, b.opts)
	if err != nil {
		return errors.Wrap(err, "reopen database")
	}
	b.db = db
	return errors.Wrap(swapErr, "swap in compacted database")
}

// Close releases the file lock.
func (b *BboltBackend) Close() error {
	return errors.Wrap(b.db.Close(), "close bbolt database")
}

type bboltTransaction struct {
	tx *bolt.Tx
}

func (t *bboltTransaction) CreateBucket(name []byte) error {
	if !t.tx.Writable() {
		return errors.Errorf("create bucket %s in a read-only transaction", name)
	}
	_, err := t.tx.CreateBucketIfNotExists(name)
	return err
}

func (t *bboltTransaction) DeleteBucket(name []byte) error {
	err := t.tx.DeleteBucket(name)
	if errors.Is(err, bolt.ErrBucketNotFound) {
		return nil
	}
	return err
}

func (t *bboltTransaction) Bucket(name []byte) Bucket {
	bkt := t.tx.Bucket(name)
	if bkt == nil {
		return nil
	}
	return &bboltBucket{bucket: bkt}
}

func (t *bboltTransaction) ForEachBucket(fn func(name []byte) error) error {
	return t.tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
		return fn(name)
	})
}

type bboltBucket struct {
	bucket *bolt.Bucket
}

func (b *bboltBucket) Put(key, value []byte) error {
	return b.bucket.Put(key, value)
}

func (b *bboltBucket) Get(key []byte) ([]byte, error) {
	return b.bucket.Get(key), nil
}

func (b *bboltBucket) Delete(key []byte) error {
	return b.bucket.Delete(key)
}

func (b *bboltBucket) ForEach(fn func(k, v []byte) error) error {
	return b.bucket.ForEach(fn)
}

func (b *bboltBucket) ForEachPrefix(prefix []byte, fn func(k, v []byte) error) error {
	c := b.bucket.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (b *bboltBucket) ForEachRange(start, end []byte, fn func(k, v []byte) error) error {
	c := b.bucket.Cursor()
	for k, v := c.Seek(start); k != nil && bytes.Compare(k, end) < 0; k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}
